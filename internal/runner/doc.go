// Package runner launches the routing engine as a child process and streams
// its standard output back line by line. The exit status is reported but
// never interpreted; deciding success is the protocol package's job.
package runner

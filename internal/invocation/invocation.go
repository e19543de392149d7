// Package invocation turns a routing request into the command line for the
// routing engine executable.
//
// The argument order is fixed: variant, source longitude, source latitude,
// destination longitude, destination latitude. Longitude always precedes
// latitude, whatever order the caller collected them in; the engine parses
// its arguments positionally.
package invocation

import (
	"github.com/seantiz/routedesk/internal/model"
)

// Engine executable defaults.
const (
	// WindowsExecutable is the engine binary name on Windows hosts.
	WindowsExecutable = "router.exe"

	// DefaultExecutable is the engine path on every other host, relative to
	// the working directory.
	DefaultExecutable = "./router"

	goosWindows = "windows"
)

// Invocation is a ready-to-run engine command.
type Invocation struct {
	Path string   `json:"path"`
	Args []string `json:"args"`

	// Dir is the working directory for the engine. Empty means the current
	// directory. The engine writes its artifact here.
	Dir string `json:"dir,omitempty"`

	// Env holds extra environment entries appended to the parent environment.
	Env []string `json:"-"`
}

// ExecutableFor returns the default engine path for the given GOOS value.
func ExecutableFor(goos string) string {
	if goos == goosWindows {
		return WindowsExecutable
	}
	return DefaultExecutable
}

// Build returns the engine invocation for req on a host identified by goos.
// It performs no validation: coordinate text is forwarded exactly as given.
func Build(req model.RoutingRequest, goos string) Invocation {
	return Invocation{
		Path: ExecutableFor(goos),
		Args: Args(req),
	}
}

// Args returns the engine argument vector for req. The optional start and
// deadline arguments are positional, so a deadline without a start time
// carries the engine's default start time.
func Args(req model.RoutingRequest) []string {
	args := []string{
		req.Variant.Index(),
		req.SourceLon,
		req.SourceLat,
		req.DestLon,
		req.DestLat,
	}

	start := req.StartMinutes
	if start == "" && req.DeadlineMinutes != "" {
		start = DefaultStartMinutes
	}
	if start != "" {
		args = append(args, start)
	}
	if req.DeadlineMinutes != "" {
		args = append(args, req.DeadlineMinutes)
	}
	return args
}

// DefaultStartMinutes is the engine's own default start time (6:45 PM).
const DefaultStartMinutes = "1125"

// Builder builds invocations for a configured host.
type Builder struct {
	// GOOS selects the platform default executable.
	GOOS string

	// Path overrides the platform default when non-empty.
	Path string

	// Dir is copied into every invocation.
	Dir string
}

// Build returns the invocation for req.
func (b Builder) Build(req model.RoutingRequest) Invocation {
	inv := Build(req, b.GOOS)
	if b.Path != "" {
		inv.Path = b.Path
	}
	inv.Dir = b.Dir
	return inv
}

// Executable returns the path the builder will invoke.
func (b Builder) Executable() string {
	if b.Path != "" {
		return b.Path
	}
	return ExecutableFor(b.GOOS)
}

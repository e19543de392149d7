// Package engine orchestrates routing jobs. It admits one job at a time,
// launches the routing engine through a runner, folds its output into an
// outcome, persists every step to the store and hands the outcome to a
// publisher whose single dispatch goroutine updates the presentation layer.
package engine

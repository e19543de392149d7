package invocation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/seantiz/routedesk/internal/model"
)

// ValidationError reports a request field that cannot be passed to the engine.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CheckVariant returns a *ValidationError when the variant is not 1..6.
func CheckVariant(v model.Variant) error {
	if !v.Valid() {
		return &ValidationError{
			Field: "variant",
			Value: strconv.Itoa(int(v)),
			Err:   fmt.Errorf("must be between 1 and %d", len(model.Variants())),
		}
	}
	return nil
}

// Validate checks that every numeric field of req parses. Callers opt in to
// this; by default the engine is the only judge of its input.
func Validate(req model.RoutingRequest) error {
	if err := CheckVariant(req.Variant); err != nil {
		return err
	}

	fields := []struct {
		name     string
		value    string
		optional bool
	}{
		{"source_lon", req.SourceLon, false},
		{"source_lat", req.SourceLat, false},
		{"dest_lon", req.DestLon, false},
		{"dest_lat", req.DestLat, false},
		{"start_minutes", req.StartMinutes, true},
		{"deadline_minutes", req.DeadlineMinutes, true},
	}
	for _, f := range fields {
		if f.optional && f.value == "" {
			continue
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(f.value), 64); err != nil {
			return &ValidationError{Field: f.name, Value: f.value, Err: err}
		}
	}
	return nil
}

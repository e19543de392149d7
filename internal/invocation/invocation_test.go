package invocation_test

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/seantiz/routedesk/internal/invocation"
	"github.com/seantiz/routedesk/internal/model"
)

func dhakaRequest(v model.Variant) model.RoutingRequest {
	return model.RoutingRequest{
		Variant:   v,
		SourceLat: "23.855136",
		SourceLon: "90.404772",
		DestLat:   "23.757944",
		DestLon:   "90.439679",
	}
}

func TestBuildLongitudeBeforeLatitude(t *testing.T) {
	inv := invocation.Build(dhakaRequest(model.VariantShortestDistance), "linux")

	want := []string{"1", "90.404772", "23.855136", "90.439679", "23.757944"}
	if diff := cmp.Diff(want, inv.Args); diff != "" {
		t.Errorf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildEveryVariant(t *testing.T) {
	for _, v := range model.Variants() {
		req := model.RoutingRequest{
			Variant:   v,
			SourceLon: "a-lon",
			SourceLat: "a-lat",
			DestLon:   "b-lon",
			DestLat:   "b-lat",
		}
		got := invocation.Build(req, "linux").Args
		want := []string{strconv.Itoa(int(v)), "a-lon", "a-lat", "b-lon", "b-lat"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("variant %d Args mismatch (-want +got):\n%s", v, diff)
		}
	}
}

func TestBuildForwardsMalformedCoordinates(t *testing.T) {
	req := model.RoutingRequest{
		Variant:   model.VariantCheapestAllModes,
		SourceLon: " 90,40 ",
		SourceLat: "north",
		DestLon:   "",
		DestLat:   "1e999",
	}
	got := invocation.Build(req, "linux").Args
	want := []string{"3", " 90,40 ", "north", "", "1e999"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDeterministic(t *testing.T) {
	req := dhakaRequest(model.VariantFastestScheduled)
	first := invocation.Build(req, "linux")
	for i := 0; i < 100; i++ {
		if diff := cmp.Diff(first, invocation.Build(req, "linux")); diff != "" {
			t.Fatalf("build %d differs (-first +got):\n%s", i, diff)
		}
	}
}

func TestBuildExecutableByPlatform(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"windows", "router.exe"},
		{"linux", "./router"},
		{"darwin", "./router"},
		{"freebsd", "./router"},
		{"", "./router"},
	}
	for _, tt := range tests {
		got := invocation.Build(dhakaRequest(model.VariantShortestDistance), tt.goos).Path
		if got != tt.want {
			t.Errorf("Build(goos=%q).Path = %q, want %q", tt.goos, got, tt.want)
		}
	}
}

func TestArgsOptionalTimes(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		deadline string
		wantTail []string
	}{
		{"none", "", "", nil},
		{"start only", "600", "", []string{"600"}},
		{"both", "600", "700", []string{"600", "700"}},
		{"deadline only uses default start", "", "1240", []string{invocation.DefaultStartMinutes, "1240"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := dhakaRequest(model.VariantHardDeadline)
			req.StartMinutes = tt.start
			req.DeadlineMinutes = tt.deadline

			args := invocation.Args(req)
			want := append([]string{"6", "90.404772", "23.855136", "90.439679", "23.757944"}, tt.wantTail...)
			if diff := cmp.Diff(want, args); diff != "" {
				t.Errorf("Args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuilderOverridesPathAndDir(t *testing.T) {
	b := invocation.Builder{GOOS: "windows", Path: "/opt/engine/router", Dir: "/var/lib/routedesk"}
	inv := b.Build(dhakaRequest(model.VariantCheapestCarMetro))

	if inv.Path != "/opt/engine/router" {
		t.Errorf("Path = %q, want override", inv.Path)
	}
	if inv.Dir != "/var/lib/routedesk" {
		t.Errorf("Dir = %q", inv.Dir)
	}
	if b.Executable() != "/opt/engine/router" {
		t.Errorf("Executable() = %q", b.Executable())
	}

	plain := invocation.Builder{GOOS: "windows"}
	if plain.Executable() != invocation.WindowsExecutable {
		t.Errorf("Executable() = %q, want %q", plain.Executable(), invocation.WindowsExecutable)
	}
}

func TestValidate(t *testing.T) {
	ok := dhakaRequest(model.VariantShortestDistance)
	if err := invocation.Validate(ok); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	tests := []struct {
		name  string
		mod   func(*model.RoutingRequest)
		field string
	}{
		{"variant zero", func(r *model.RoutingRequest) { r.Variant = 0 }, "variant"},
		{"variant seven", func(r *model.RoutingRequest) { r.Variant = 7 }, "variant"},
		{"source lon", func(r *model.RoutingRequest) { r.SourceLon = "east" }, "source_lon"},
		{"dest lat empty", func(r *model.RoutingRequest) { r.DestLat = "" }, "dest_lat"},
		{"bad start", func(r *model.RoutingRequest) { r.StartMinutes = "noon" }, "start_minutes"},
		{"bad deadline", func(r *model.RoutingRequest) { r.DeadlineMinutes = "late" }, "deadline_minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := dhakaRequest(model.VariantShortestDistance)
			tt.mod(&req)

			err := invocation.Validate(req)
			var verr *invocation.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

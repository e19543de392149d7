package protocol

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseEndToEndScenario(t *testing.T) {
	out, err := Parse(strings.NewReader("processing...\nSUCCESS_KML_READY:route_7.kml\ndone\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := Outcome{Succeeded: true, Transcript: "processing...\ndone", ArtifactName: "route_7.kml"}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("Outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMarker(t *testing.T) {
	tests := []struct {
		line     string
		wantName string
		wantOK   bool
	}{
		{"SUCCESS_KML_READY:foo.kml ", "foo.kml", true},
		{"SUCCESS_KML_READY:  foo.kml\t", "foo.kml", true},
		{"SUCCESS_KML_READY", DefaultArtifactName, true},
		{"SUCCESS_KML_READY:", DefaultArtifactName, true},
		{"SUCCESS_KML_READY:   ", DefaultArtifactName, true},
		{"SUCCESS_KML_READY:C:\\maps\\a.kml", "C:\\maps\\a.kml", true},
		{"SUCCESS_KML_READY_EXTRA:x.kml", "x.kml", true},
		{" SUCCESS_KML_READY:x.kml", "", false},
		{"success_kml_ready:x.kml", "", false},
		{"ERROR: No valid route found.", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		name, ok := ParseMarker(tt.line)
		if ok != tt.wantOK || name != tt.wantName {
			t.Errorf("ParseMarker(%q) = (%q, %v), want (%q, %v)", tt.line, name, ok, tt.wantName, tt.wantOK)
		}
	}
}

func TestParseNoMarker(t *testing.T) {
	lines := []string{"Problem No: 1", "ERROR: No valid route found.", "", "bye"}
	out, err := Parse(strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if out.Succeeded {
		t.Error("Succeeded = true, want false")
	}
	if out.ArtifactName != "" {
		t.Errorf("ArtifactName = %q, want empty", out.ArtifactName)
	}
	if out.Transcript != strings.Join(lines, "\n") {
		t.Errorf("Transcript = %q", out.Transcript)
	}
}

func TestParseMarkerWithoutColonFallsBack(t *testing.T) {
	out, err := Parse(strings.NewReader("SUCCESS_KML_READY\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !out.Succeeded || out.ArtifactName != DefaultArtifactName {
		t.Errorf("Outcome = %+v, want success with %q", out, DefaultArtifactName)
	}
	if out.Transcript != "" {
		t.Errorf("Transcript = %q, want empty", out.Transcript)
	}
}

func TestMarkerLinesNeverInTranscript(t *testing.T) {
	inputs := []string{
		"SUCCESS_KML_READY:a.kml",
		"x\nSUCCESS_KML_READY\ny",
		"SUCCESS_KML_READY:a.kml\nSUCCESS_KML_READY:b.kml",
		"a\r\nSUCCESS_KML_READY:c.kml\r\nb\r\n",
	}
	for _, in := range inputs {
		out, err := Parse(strings.NewReader(in))
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if strings.Contains(out.Transcript, MarkerPrefix) {
			t.Errorf("Parse(%q).Transcript = %q contains a marker", in, out.Transcript)
		}
	}
}

func TestParseLastMarkerWins(t *testing.T) {
	out, _ := Parse(strings.NewReader("SUCCESS_KML_READY:a.kml\nSUCCESS_KML_READY:b.kml\n"))
	if out.ArtifactName != "b.kml" {
		t.Errorf("ArtifactName = %q, want b.kml", out.ArtifactName)
	}
}

func TestParseStripsCarriageReturns(t *testing.T) {
	out, _ := Parse(strings.NewReader("one\r\ntwo\r\nSUCCESS_KML_READY:r.kml\r\n"))
	want := Outcome{Succeeded: true, Transcript: "one\ntwo", ArtifactName: "r.kml"}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("Outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestParserFeedKinds(t *testing.T) {
	var p Parser
	if k := p.Feed("hello"); k != Diagnostic {
		t.Errorf("Feed(hello) = %v, want diagnostic", k)
	}
	if k := p.Feed("SUCCESS_KML_READY:x.kml"); k != Marker {
		t.Errorf("Feed(marker) = %v, want marker", k)
	}
	if p.Lines() != 1 {
		t.Errorf("Lines() = %d, want 1", p.Lines())
	}
	if Marker.String() != "marker" || Diagnostic.String() != "diagnostic" {
		t.Error("unexpected Kind strings")
	}
}

// errReader returns data then fails.
type errReader struct {
	data io.Reader
	err  error
}

func (r *errReader) Read(p []byte) (int, error) {
	n, err := r.data.Read(p)
	if err == io.EOF {
		return n, r.err
	}
	return n, err
}

func TestParseReadErrorKeepsPartialTranscript(t *testing.T) {
	boom := errors.New("pipe broke")
	out, err := Parse(&errReader{data: strings.NewReader("first\nsecond\n"), err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("Parse error = %v, want %v", err, boom)
	}
	if out.Succeeded {
		t.Error("Succeeded = true, want false")
	}
	if out.Transcript != "first\nsecond" {
		t.Errorf("Transcript = %q, want partial", out.Transcript)
	}
}

func TestScanLongLineThenMarker(t *testing.T) {
	long := strings.Repeat("x", 3<<20)
	var lines []string
	err := Scan(strings.NewReader("before\r\n"+long+"\nSUCCESS_KML_READY:big.kml\ntail"), func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	if lines[0] != "before" || lines[1] != long || lines[3] != "tail" {
		t.Errorf("lines not delivered intact: %q, len %d, %q", lines[0], len(lines[1]), lines[3])
	}

	out, err := Parse(strings.NewReader(long + "\nSUCCESS_KML_READY:big.kml\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !out.Succeeded || out.ArtifactName != "big.kml" || out.Transcript != long {
		t.Errorf("outcome = {Succeeded:%v ArtifactName:%q len(Transcript):%d}", out.Succeeded, out.ArtifactName, len(out.Transcript))
	}
}

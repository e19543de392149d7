// Package protocol parses the routing engine's standard output.
//
// The engine writes free-form diagnostic text, one line at a time, and
// signals success with a single marker line:
//
//	SUCCESS_KML_READY:route_prob1_1718000000.kml
//
// The name after the first colon is the artifact the engine wrote. A marker
// without a colon means the engine used the default artifact name.
package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Protocol constants.
const (
	// MarkerPrefix starts the line that reports a successful run.
	MarkerPrefix = "SUCCESS_KML_READY"

	// DefaultArtifactName is used when the marker does not name the artifact.
	DefaultArtifactName = "route.kml"
)

// Kind classifies one output line.
type Kind int

const (
	// Diagnostic lines are appended to the transcript.
	Diagnostic Kind = iota
	// Marker lines report success and never enter the transcript.
	Marker
)

func (k Kind) String() string {
	switch k {
	case Marker:
		return "marker"
	default:
		return "diagnostic"
	}
}

// Outcome is the parsed result of one engine run.
type Outcome struct {
	Succeeded    bool   `json:"succeeded"`
	Transcript   string `json:"transcript"`
	ArtifactName string `json:"artifact_name,omitempty"`
}

// Parser folds output lines into an Outcome. It is not safe for concurrent
// use; feed it from the goroutine that reads the stream.
type Parser struct {
	lines        []string
	succeeded    bool
	artifactName string
}

// Feed classifies line and records it.
func (p *Parser) Feed(line string) Kind {
	if name, ok := ParseMarker(line); ok {
		p.succeeded = true
		p.artifactName = name
		return Marker
	}
	p.lines = append(p.lines, line)
	return Diagnostic
}

// Outcome returns the result accumulated so far.
func (p *Parser) Outcome() Outcome {
	o := Outcome{
		Succeeded:  p.succeeded,
		Transcript: strings.Join(p.lines, "\n"),
	}
	if p.succeeded {
		o.ArtifactName = p.artifactName
	}
	return o
}

// Lines returns the number of diagnostic lines seen.
func (p *Parser) Lines() int {
	return len(p.lines)
}

// ParseMarker reports whether line is a marker line and, if so, the artifact
// name it carries.
func ParseMarker(line string) (string, bool) {
	if !strings.HasPrefix(line, MarkerPrefix) {
		return "", false
	}
	_, after, found := strings.Cut(line, ":")
	if !found {
		return DefaultArtifactName, true
	}
	name := strings.TrimSpace(after)
	if name == "" {
		return DefaultArtifactName, true
	}
	return name, true
}

// Parse reads r to EOF and returns the parsed outcome. On a read error the
// outcome holds everything read before the failure.
func Parse(r io.Reader) (Outcome, error) {
	var p Parser
	err := Scan(r, func(line string) { p.Feed(line) })
	return p.Outcome(), err
}

// Scan calls fn for every line of r in order. Line terminators, including a
// trailing carriage return, are stripped. Lines have no length limit; a final
// line without a terminator is still delivered.
func Scan(r io.Reader, fn func(line string)) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			fn(strings.TrimSuffix(line, "\r"))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("scan output: %w", err)
		}
	}
}

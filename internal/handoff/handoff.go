// Package handoff turns a finished engine run into what the user sees next:
// the map viewer opened in a browser and instructions for importing the
// generated file, or the engine's diagnostics when the run failed.
package handoff

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pkg/browser"
)

// DefaultViewerURL is the map viewer the user imports artifacts into.
const DefaultViewerURL = "https://www.google.com/mymaps"

// Viewer opens a web address in the user's external viewer.
type Viewer interface {
	Open(ctx context.Context, url string) error
}

// BrowserViewer opens URLs in the host's default web browser.
type BrowserViewer struct{}

// Open implements Viewer.
func (BrowserViewer) Open(_ context.Context, url string) error {
	if err := browser.OpenURL(url); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}

// Result is the input to a handoff: the parsed engine outcome plus what the
// caller knows about how the run ended.
type Result struct {
	Succeeded    bool
	Transcript   string
	ArtifactName string

	// ArtifactDir is the directory the engine wrote into.
	ArtifactDir string

	// LaunchFailed is set when the engine process never started.
	LaunchFailed bool

	// Executable is the engine path that was invoked.
	Executable string

	// Err describes a failure that is not in the transcript.
	Err string
}

// Notice is what the presentation layer shows after a run.
type Notice struct {
	// Text is the complete block to display: transcript plus any banner.
	Text string `json:"text"`

	// Instructions tells the user how to import the artifact. Empty on failure.
	Instructions string `json:"instructions,omitempty"`

	// Hint suggests a fix for a failed run. Empty when there is nothing to add.
	Hint string `json:"hint,omitempty"`

	ViewerURL    string `json:"viewer_url,omitempty"`
	ViewerOpened bool   `json:"viewer_opened"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// Handoff delivers finished runs to the user.
type Handoff struct {
	viewer    Viewer
	viewerURL string
	logger    *slog.Logger
}

// New creates a Handoff that opens viewerURL through viewer. An empty
// viewerURL selects DefaultViewerURL. A nil viewer disables opening; the
// notice then points the user at the address instead.
func New(viewer Viewer, viewerURL string, logger *slog.Logger) *Handoff {
	if viewerURL == "" {
		viewerURL = DefaultViewerURL
	}
	return &Handoff{
		viewer:    viewer,
		viewerURL: viewerURL,
		logger:    logger,
	}
}

// ViewerURL returns the address opened on success.
func (h *Handoff) ViewerURL() string {
	return h.viewerURL
}

// Deliver builds the notice for r. On success it also opens the viewer; a
// viewer failure is reported in the notice and does not fail the run.
func (h *Handoff) Deliver(ctx context.Context, r Result) Notice {
	if !r.Succeeded {
		return h.failed(r)
	}

	n := Notice{
		ViewerURL:    h.viewerURL,
		ArtifactPath: artifactPath(r.ArtifactDir, r.ArtifactName),
	}

	var b strings.Builder
	if r.Transcript != "" {
		b.WriteString(r.Transcript)
		b.WriteString("\n")
	}
	b.WriteString("\n" + separator + "\n")
	fmt.Fprintf(&b, ">> Unique file '%s' successfully generated!\n", r.ArtifactName)

	if h.viewer == nil {
		fmt.Fprintf(&b, ">> Visit %s to import it.\n", h.viewerURL)
	} else if err := h.viewer.Open(ctx, h.viewerURL); err != nil {
		h.logger.Warn("open viewer", "url", h.viewerURL, "error", err)
		fmt.Fprintf(&b, ">> Could not open the map viewer (%v). Visit %s manually.\n", err, h.viewerURL)
	} else {
		n.ViewerOpened = true
		b.WriteString(">> Opening Google MyMaps...\n")
	}
	n.Text = b.String()
	n.Instructions = Instructions(r.ArtifactName, h.viewerURL, n.ViewerOpened)
	return n
}

func (h *Handoff) failed(r Result) Notice {
	n := Notice{}
	var b strings.Builder
	b.WriteString(r.Transcript)
	if r.Err != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "\nSYSTEM ERROR: %s", r.Err)
	}
	if r.LaunchFailed {
		n.Hint = MissingEngineHint(r.Executable)
		fmt.Fprintf(&b, "\n%s", n.Hint)
	}
	n.Text = b.String()
	return n
}

const separator = "-------------------------------------------------"

// Instructions returns the manual import steps for artifactName. opened
// reports whether the viewer at viewerURL is already on its way.
func Instructions(artifactName, viewerURL string, opened bool) string {
	first := "1. Open Google MyMaps at " + viewerURL + "."
	if opened {
		first = "1. Google MyMaps is opening."
	}
	return "Advanced Route Generated Successfully!\n\n" +
		first + "\n" +
		"2. Click '+ CREATE A NEW MAP'.\n" +
		"3. Click 'Import' on the left panel.\n" +
		"4. Find and upload the new file:\n   " + artifactName + "\n\n" +
		"Enjoy your color-coded path!"
}

// MissingEngineHint suggests that the engine binary was never built.
func MissingEngineHint(executable string) string {
	return fmt.Sprintf("Is the routing engine built? Expected an executable at %q.", executable)
}

func artifactPath(dir, name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) || dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

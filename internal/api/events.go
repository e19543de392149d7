package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/routedesk/internal/engine"
	"github.com/seantiz/routedesk/internal/model"
)

// Named SSE events on the job feed.
const (
	sseStatus  = engine.EventStatus
	sseOutcome = engine.EventOutcome
	sseDone    = "done"
)

// pendingOutcomeWait bounds how long a feed for a finished job waits for the
// publisher to deliver its outcome.
const pendingOutcomeWait = 5 * time.Second

type statusEvent struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before reading the record so an outcome delivered in between
	// is either on the channel or already in the store.
	ch, unsub := s.engine.Publisher().Subscribe(chi.URLParam(r, "id"))
	defer unsub()

	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	eventStreamsActive.Inc()
	defer eventStreamsActive.Dec()

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	if err := writeSSEJSON(w, sseStatus, statusEvent{JobID: j.ID, Status: j.Status}); err != nil {
		return
	}

	if j.DeliveredAt != nil {
		streamOutcomesTotal.WithLabelValues(outcomeReplayed).Inc()
		_ = writeSSEJSON(w, sseOutcome, outcomeFromJob(j))
		_ = writeSSEEvent(w, sseDone, "stream complete")
		flush()
		return
	}
	flush()

	// A finished job whose outcome has not been delivered yet is still
	// queued on the publisher. Only wait so long for it.
	var pending <-chan time.Time
	if model.IsTerminal(j.Status) {
		timer := time.NewTimer(pendingOutcomeWait)
		defer timer.Stop()
		pending = timer.C
	}

	last := j.Status
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// The outcome was dropped for this subscriber; it is on the
				// record by the time the topic closes.
				s.replayOutcome(w, r, j.ID)
				flush()
				return
			}
			var err error
			switch ev.Type {
			case engine.EventOutcome:
				streamOutcomesTotal.WithLabelValues(outcomeLive).Inc()
				if err = writeSSEJSON(w, sseOutcome, ev.Outcome); err == nil {
					err = writeSSEEvent(w, sseDone, "stream complete")
				}
				flush()
				return
			default:
				if ev.Status == last {
					continue
				}
				last = ev.Status
				err = writeSSEJSON(w, sseStatus, statusEvent{JobID: ev.JobID, Status: ev.Status})
			}
			if err != nil {
				return // Write failed (e.g. client gone).
			}
			flush()
		case <-pending:
			s.replayOutcome(w, r, j.ID)
			flush()
			return
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

// replayOutcome writes the outcome of a finished job from its record, then
// the done event.
func (s *Server) replayOutcome(w http.ResponseWriter, r *http.Request, id string) {
	j, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		s.logger.Error("get job for outcome replay", "job_id", id, "error", err)
		return
	}
	streamOutcomesTotal.WithLabelValues(outcomeReplayed).Inc()
	if err := writeSSEJSON(w, sseOutcome, outcomeFromJob(j)); err != nil {
		return
	}
	_ = writeSSEEvent(w, sseDone, "stream complete")
}

// outcomeFromJob rebuilds the outcome of a finished job from its record. A
// job that was never delivered (the process stopped first) gets a notice
// made of its transcript and error.
func outcomeFromJob(j *model.Job) engine.Outcome {
	o := engine.Outcome{
		JobID:        j.ID,
		Status:       j.Status,
		Succeeded:    j.Succeeded,
		Transcript:   j.Transcript,
		ArtifactName: j.ArtifactName,
		ArtifactPath: j.ArtifactPath,
		ExitCode:     j.ExitCode,
		Error:        j.Error,
		Hint:         j.Hint,
		Notice:       j.Notice,
		Instructions: j.Instructions,
		ViewerURL:    j.ViewerURL,
		ViewerOpened: j.ViewerOpened,
	}
	if j.DeliveredAt == nil {
		o.Notice = j.Transcript
		if j.Error != "" {
			o.Notice = strings.TrimLeft(o.Notice+"\n\nSYSTEM ERROR: "+j.Error, "\n")
		}
	}
	return o
}

// transcriptLine is a single line in the transcript response.
type transcriptLine struct {
	Seq       int    `json:"seq"`
	Line      string `json:"line"`
	CreatedAt string `json:"created_at"`
}

// transcriptResponse is the JSON response for GET /v1/jobs/{id}/transcript.
type transcriptResponse struct {
	JobID string           `json:"job_id"`
	Lines []transcriptLine `json:"lines"`
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}

	persisted, err := s.store.GetTranscriptLines(r.Context(), j.ID)
	if err != nil {
		s.logger.Error("get transcript lines", "job_id", j.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get transcript")
		return
	}

	lines := make([]transcriptLine, len(persisted))
	for i, l := range persisted {
		lines[i] = transcriptLine{
			Seq:       l.Seq,
			Line:      l.Line,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		}
	}

	s.writeJSON(w, http.StatusOK, transcriptResponse{
		JobID: j.ID,
		Lines: lines,
	})
}

// writeSSEData writes a payload as an SSE data event. Multi-line strings are
// split so that each segment gets its own "data:" prefix as event streams require.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	return writeSSEData(w, data)
}

// writeSSEJSON writes v as the JSON payload of a named event.
func writeSSEJSON(w http.ResponseWriter, eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return writeSSEEvent(w, eventType, string(data))
}

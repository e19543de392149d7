package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/routedesk/internal/handoff"
	"github.com/seantiz/routedesk/internal/model"
)

const (
	// queueSize bounds the dispatch queue. Enqueue blocks when it is full.
	queueSize = 64

	// subscriberBufferSize is the channel buffer for each job subscriber.
	// Events are dropped if a subscriber falls this far behind.
	subscriberBufferSize = 16
)

// Event types delivered to job subscribers.
const (
	EventStatus  = "status"
	EventOutcome = "outcome"
)

// Outcome is the final result of a job as delivered to the presentation layer.
type Outcome struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Succeeded    bool   `json:"succeeded"`
	Transcript   string `json:"transcript"`
	ArtifactName string `json:"artifact_name,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	ExitCode     *int   `json:"exit_code,omitempty"`
	Error        string `json:"error,omitempty"`
	Hint         string `json:"hint,omitempty"`
	Notice       string `json:"notice"`
	Instructions string `json:"instructions,omitempty"`
	ViewerURL    string `json:"viewer_url,omitempty"`
	ViewerOpened bool   `json:"viewer_opened"`

	launchFailed bool
	executable   string
}

// DeliveryRecorder persists what was shown for a job. The dispatcher records
// a delivery before it closes the job's topic, so a reader that finds the
// topic closed also finds the delivery.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, jobID string, d model.Delivery) error
}

// Event is one message on a job's feed.
type Event struct {
	Type    string   `json:"type"`
	JobID   string   `json:"job_id"`
	Status  string   `json:"status"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Sink receives every outcome on the dispatch goroutine. Receive must not
// block for long; later events wait behind it.
type Sink interface {
	Receive(Outcome)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Outcome)

// Receive implements Sink.
func (f SinkFunc) Receive(o Outcome) { f(o) }

// Publisher marshals job events onto a single dispatch goroutine. Workers
// enqueue; the dispatcher, in FIFO order, runs the artifact handoff, replaces
// the surface text, fans events out to subscribers and calls sinks.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a job finishes) receive a closed channel instead of
// blocking forever.
type Publisher struct {
	handoff     *handoff.Handoff
	artifactDir string
	recorder    DeliveryRecorder
	surface     *Surface
	logger      *slog.Logger

	queue chan Event
	done  chan struct{}
	once  sync.Once

	mu     sync.Mutex
	topics map[string]*topic
	sinks  []Sink
}

type topic struct {
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewPublisher creates a publisher and starts its dispatch goroutine.
// artifactDir is the directory the engine writes artifacts into. rec may be
// nil when deliveries need not outlive the process.
func NewPublisher(h *handoff.Handoff, artifactDir string, rec DeliveryRecorder, logger *slog.Logger) *Publisher {
	p := &Publisher{
		handoff:     h,
		artifactDir: artifactDir,
		recorder:    rec,
		surface:     &Surface{},
		logger:      logger,
		queue:       make(chan Event, queueSize),
		done:        make(chan struct{}),
		topics:      make(map[string]*topic),
	}
	go p.dispatch()
	return p
}

// Surface returns the shared surface the dispatcher writes.
func (p *Publisher) Surface() *Surface {
	return p.surface
}

// AddSink registers s to receive every later outcome.
func (p *Publisher) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Starting enqueues the launching event for j. The dispatcher shows the
// placeholder on the surface.
func (p *Publisher) Starting(j *model.Job) {
	p.enqueue(Event{Type: EventStatus, JobID: j.ID, Status: model.StatusLaunching})
}

// Status enqueues a status change for a job.
func (p *Publisher) Status(jobID, status string) {
	p.enqueue(Event{Type: EventStatus, JobID: jobID, Status: status})
}

// Publish enqueues a job's outcome. It is the last event for the job.
func (p *Publisher) Publish(o Outcome) {
	p.enqueue(Event{Type: EventOutcome, JobID: o.JobID, Status: o.Status, Outcome: &o})
}

func (p *Publisher) enqueue(ev Event) {
	p.queue <- ev
	queueDepth.Set(float64(len(p.queue)))
}

// Close stops accepting events, drains the queue and waits for the
// dispatcher to exit. No Starting, Status or Publish call may follow.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.queue) })
	<-p.done
}

func (p *Publisher) dispatch() {
	defer close(p.done)
	for ev := range p.queue {
		queueDepth.Set(float64(len(p.queue)))
		switch ev.Type {
		case EventOutcome:
			p.deliver(ev)
		default:
			if ev.Status == model.StatusLaunching {
				p.surface.replace(ev.JobID, ev.Status, Placeholder)
			}
			p.fanOut(ev, false)
		}
	}
}

func (p *Publisher) deliver(ev Event) {
	o := ev.Outcome
	n := p.handoff.Deliver(context.Background(), handoff.Result{
		Succeeded:    o.Succeeded,
		Transcript:   o.Transcript,
		ArtifactName: o.ArtifactName,
		ArtifactDir:  p.artifactDir,
		LaunchFailed: o.launchFailed,
		Executable:   o.executable,
		Err:          o.Error,
	})
	o.Notice = n.Text
	o.Instructions = n.Instructions
	o.ViewerURL = n.ViewerURL
	o.ViewerOpened = n.ViewerOpened
	o.ArtifactPath = n.ArtifactPath
	if n.Hint != "" {
		o.Hint = n.Hint
	}

	if p.recorder != nil {
		now := time.Now().UTC()
		err := p.recorder.RecordDelivery(context.Background(), o.JobID, model.Delivery{
			Notice:       o.Notice,
			Instructions: o.Instructions,
			ViewerURL:    o.ViewerURL,
			ViewerOpened: o.ViewerOpened,
			ArtifactPath: o.ArtifactPath,
			DeliveredAt:  &now,
		})
		if err != nil {
			p.logger.Error("failed to record delivery", "job_id", o.JobID, "error", err)
		}
	}

	p.surface.replace(o.JobID, o.Status, n.Text)
	p.fanOut(ev, true)

	p.mu.Lock()
	sinks := append([]Sink(nil), p.sinks...)
	p.mu.Unlock()
	for _, s := range sinks {
		s.Receive(*o)
	}

	p.logger.Debug("outcome delivered", "job_id", o.JobID, "status", o.Status, "viewer_opened", o.ViewerOpened)
}

// fanOut sends ev to the job's subscribers and, when last is set, closes the
// topic. Events are dropped for subscribers whose buffers are full.
func (p *Publisher) fanOut(ev Event, last bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.topics[ev.JobID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		p.topics[ev.JobID] = t
	}
	if t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
		}
	}

	if last {
		t.closed = true
		for id, ch := range t.subs {
			close(ch)
			delete(t.subs, id)
		}
	}
}

// Subscribe returns a channel that receives the events of the given job and
// an unsubscribe function. If the job's outcome has already been delivered,
// the returned channel is immediately closed.
func (p *Publisher) Subscribe(jobID string) (<-chan Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[int]chan Event)}
		p.topics[jobID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(t.subs, id)
		// Open topics without subscribers are recreated on the next event.
		if !t.closed && len(t.subs) == 0 && p.topics[jobID] == t {
			delete(p.topics, jobID)
		}
	}
}

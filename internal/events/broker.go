// Package events streams sync activity to HTTP clients as Server-Sent Events.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/gtmkit/internal/plansync"
)

// Event types.
const (
	TypeSynced        = "sync.completed"
	TypeFailed        = "sync.failed"
	TypeConflict      = "sync.conflict"
	TypeStatusChanged = "status.changed"
)

// Event is one message. Project scopes delivery: subscribers filtered to
// another project do not receive it. An empty Project reaches everyone.
type Event struct {
	Type    string `json:"type"`
	Project string `json:"-"`
	Data    any    `json:"data"`
}

// StepEvent is the payload of the sync.* events.
type StepEvent struct {
	Project   string   `json:"project"`
	Step      string   `json:"step"`
	Direction string   `json:"direction"`
	Fields    int      `json:"fields_synced"`
	Orphaned  []string `json:"orphaned_fields"`
	Message   string   `json:"message,omitempty"`
}

// Subscription is one client's feed. C is closed when the client is
// unsubscribed or the broker stops.
type Subscription struct {
	C       <-chan []byte
	ch      chan []byte
	project string
	lastID  uint64
}

// frame is an encoded event kept for replay.
type frame struct {
	id      uint64
	project string
	raw     []byte
}

// Option configures a Broker.
type Option func(*Broker)

// WithStatusThrottle sends status.changed at most once per d for each project.
func WithStatusThrottle(d time.Duration) Option {
	return func(b *Broker) { b.statusMin = d }
}

// WithHeartbeat sets how often idle streams get a keep-alive comment.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) { b.heartbeat = d }
}

// WithReplay keeps the last n events for clients resuming with
// Last-Event-ID. Zero disables replay.
func WithReplay(n int) Option {
	return func(b *Broker) { b.replay = n }
}

// Broker fans events out to subscribed clients.
//
// A single loop goroutine owns the subscriptions, the replay buffer, the
// event sequence and the per-project throttle timestamps. Public methods
// talk to it over channels.
type Broker struct {
	statusMin time.Duration
	heartbeat time.Duration
	replay    int

	subscribeCh   chan *Subscription
	unsubscribeCh chan *Subscription
	publishCh     chan Event
	stepCh        chan *plansync.StepResult
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a Broker and starts its loop.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		statusMin:     2 * time.Second,
		heartbeat:     15 * time.Second,
		replay:        64,
		subscribeCh:   make(chan *Subscription),
		unsubscribeCh: make(chan *Subscription),
		publishCh:     make(chan Event, 256),
		stepCh:        make(chan *plansync.StepResult, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, o := range opts {
		o(b)
	}
	go b.run()
	return b
}

func (s *Subscription) wants(project string) bool {
	return s.project == "" || project == "" || s.project == project
}

func (s *Subscription) send(raw []byte) {
	select {
	case s.ch <- raw:
	default:
		// Slow client; drop rather than block the loop.
	}
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[*Subscription]struct{})
	lastStatus := make(map[string]time.Time)
	var seq uint64
	var backlog []frame

	emit := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		f := frame{
			id:      seq,
			project: event.Project,
			raw:     []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload)),
		}
		if b.replay > 0 {
			backlog = append(backlog, f)
			if len(backlog) > b.replay {
				backlog = backlog[len(backlog)-b.replay:]
			}
		}
		for s := range subs {
			if s.wants(f.project) {
				s.send(f.raw)
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for s := range subs {
				close(s.ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s] = struct{}{}
			if s.lastID > 0 {
				for _, f := range backlog {
					if f.id > s.lastID && s.wants(f.project) {
						s.send(f.raw)
					}
				}
			}

		case s := <-b.unsubscribeCh:
			if _, ok := subs[s]; ok {
				delete(subs, s)
				close(s.ch)
			}

		case event := <-b.publishCh:
			emit(event)

		case r := <-b.stepCh:
			emit(stepEvent(r))
			now := time.Now()
			if now.Sub(lastStatus[r.Project]) >= b.statusMin {
				lastStatus[r.Project] = now
				emit(Event{Type: TypeStatusChanged, Project: r.Project, Data: map[string]string{"project": r.Project}})
			}

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

func stepEvent(r *plansync.StepResult) Event {
	data := StepEvent{
		Project:   r.Project,
		Step:      r.Step,
		Direction: string(r.Direction),
		Fields:    r.FieldsSynced,
		Orphaned:  r.Orphaned,
	}
	ev := Event{Type: TypeSynced, Project: r.Project, Data: &data}
	switch {
	case r.Conflicted():
		ev.Type = TypeConflict
		if r.Resolution != nil {
			data.Message = r.Resolution.Message
		}
	case !r.Success:
		ev.Type = TypeFailed
		data.Message = r.Error
	}
	return ev
}

// Close stops the loop and closes every subscription.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. An empty project receives every event.
// A non-zero lastID first replays buffered events newer than it.
func (b *Broker) Subscribe(project string, lastID uint64) *Subscription {
	ch := make(chan []byte, 64)
	s := &Subscription{C: ch, ch: ch, project: project, lastID: lastID}
	if b.closed.Load() {
		close(ch)
		return s
	}
	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(ch)
	}
	return s
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(s *Subscription) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- s:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues an event for delivery.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishStep broadcasts a step result and a throttled status.changed for
// its project. Its signature matches plansync.EventCallback.
func (b *Broker) PublishStep(r *plansync.StepResult) {
	if b.closed.Load() || r == nil {
		return
	}
	select {
	case b.stepCh <- r:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client until it disconnects. The
// project query parameter (a project directory name) narrows the stream;
// a Last-Event-ID header resumes from the replay buffer.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := b.Subscribe(r.URL.Query().Get("project"), lastID)
	defer b.Unsubscribe(sub)

	var tick <-chan time.Time
	if b.heartbeat > 0 {
		t := time.NewTicker(b.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

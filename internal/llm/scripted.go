package llm

import (
	"context"
	"sync"
)

// Scripted is a Provider that replays canned replies in order. It records
// every request it receives. Tests and offline runs use it.
type Scripted struct {
	name    string
	mu      sync.Mutex
	replies []string
	err     error
	calls   []Request
}

// NewScripted creates a Scripted provider named name.
func NewScripted(name string, replies ...string) *Scripted {
	return &Scripted{name: name, replies: replies}
}

// FailWith makes every following call return err.
func (s *Scripted) FailWith(err error) { s.err = err }

// Name implements Provider.
func (s *Scripted) Name() string { return s.name }

// Complete implements Provider. When the script runs out the last reply
// repeats.
func (s *Scripted) Complete(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	text := ""
	switch len(s.replies) {
	case 0:
	case 1:
		text = s.replies[0]
	default:
		text, s.replies = s.replies[0], s.replies[1:]
	}
	return &Response{Model: req.Model, Text: text, StopReason: "end_turn"}, nil
}

// Calls returns the requests received so far.
func (s *Scripted) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}

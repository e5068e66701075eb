// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/jkaninda/oneline/internal/llm"
)

// Scripted replays queued responses in order and records every request.
type Scripted struct {
	name string

	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []*llm.Request
}

// New creates a scripted provider reporting the given name.
func New(name string) *Scripted {
	return &Scripted{name: name}
}

// Reply queues a plain text answer.
func (s *Scripted) Reply(text string) *Scripted {
	return s.Push(&llm.Response{
		Content:       text,
		ContentBlocks: []llm.ContentBlock{llm.TextBlock(text)},
		StopReason:    llm.StopEndTurn,
	})
}

// CallTool queues a response requesting a single tool call.
func (s *Scripted) CallTool(id, name string, input map[string]any) *Scripted {
	return s.Push(&llm.Response{
		ContentBlocks: []llm.ContentBlock{llm.ToolUseBlock(id, name, input)},
		StopReason:    llm.StopToolUse,
	})
}

// Fail queues an error.
func (s *Scripted) Fail(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, nil)
	s.errs = append(s.errs, err)
	return s
}

// Push queues an arbitrary response.
func (s *Scripted) Push(resp *llm.Response) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	s.errs = append(s.errs, nil)
	return s
}

func (s *Scripted) Name() string { return s.name }

// SendMessage pops the next queued response.
func (s *Scripted) SendMessage(_ context.Context, req *llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("llmtest: no scripted response left for %s", s.name)
	}
	resp, err := s.responses[0], s.errs[0]
	s.responses, s.errs = s.responses[1:], s.errs[1:]
	return resp, err
}

// Requests returns a copy of the recorded requests.
func (s *Scripted) Requests() []*llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*llm.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

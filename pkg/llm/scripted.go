package llm

import (
	"context"
	"strings"
	"sync"
)

// ScriptedClient is the test double for Client. Replies are matched against
// the prompt by substring; unmatched prompts fall through to Default or, when
// no default is set, to Err. Safe for concurrent use.
type ScriptedClient struct {
	mu      sync.Mutex
	replies []scriptedReply
	calls   []Request

	// Default is returned for prompts no rule matches.
	Default string

	// Err, when set, is returned for prompts no rule matches and no
	// default covers.
	Err error
}

type scriptedReply struct {
	substring string
	text      string
	err       error
}

// NewScripted creates an empty scripted client.
func NewScripted() *ScriptedClient {
	return &ScriptedClient{}
}

// Reply registers a canned completion for prompts containing substring.
// Rules are checked in registration order.
func (s *ScriptedClient) Reply(substring, text string) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptedReply{substring: substring, text: text})
	return s
}

// Fail registers a canned error for prompts containing substring.
func (s *ScriptedClient) Fail(substring string, err error) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, scriptedReply{substring: substring, err: err})
	return s
}

// Complete implements Client.
func (s *ScriptedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	for _, r := range s.replies {
		if strings.Contains(req.Prompt, r.substring) {
			if r.err != nil {
				return nil, r.err
			}
			return &Response{Text: r.text}, nil
		}
	}
	if s.Default != "" {
		return &Response{Text: s.Default}, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return nil, ErrEmptyCompletion
}

// Calls returns a copy of every request seen so far.
func (s *ScriptedClient) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// Package agent answers free-text questions by letting a language model
// call the review tools.  Conversations are kept per login session.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/tools"
)

// ToolRunner is the tool set the model may call.
type ToolRunner interface {
	Tools() []tools.Tool
	Call(ctx context.Context, id model.Identity, name string, args json.RawMessage) (tools.Result, error)
}

// ErrUnavailable wraps every failure to reach or decode the model.
var ErrUnavailable = errors.New("agent unavailable")

// Answer is the outcome of one question.
type Answer struct {
	Text      string   `json:"response"`
	ThreadID  string   `json:"thread_id"`
	ToolCalls []string `json:"tool_calls,omitempty"`
	Steps     int      `json:"steps"`
}

type thread struct {
	mu       sync.Mutex
	id       string
	messages []Message
}

// Agent runs the model/tool loop.
type Agent struct {
	provider Provider
	tools    ToolRunner
	cfg      Config
	log      logrus.FieldLogger

	// Observe, when set, receives "ok" or "error" for every model request.
	Observe func(outcome string)

	mu      sync.Mutex
	threads map[string]*thread
}

func New(p Provider, tr ToolRunner, cfg Config, log logrus.FieldLogger) *Agent {
	if cfg.MaxSteps < 1 {
		cfg.MaxSteps = 1
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	return &Agent{provider: p, tools: tr, cfg: cfg, log: log, threads: make(map[string]*thread)}
}

func (a *Agent) thread(key string) *thread {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.threads[key]
	if !ok {
		t = &thread{id: uuid.NewString()}
		a.threads[key] = t
	}
	return t
}

// NewThread discards the conversation of key and returns the new thread id.
func (a *Agent) NewThread(key string) string {
	t := &thread{id: uuid.NewString()}
	a.mu.Lock()
	a.threads[key] = t
	a.mu.Unlock()
	return t.id
}

// Forget drops the conversation of key.
func (a *Agent) Forget(key string) {
	a.mu.Lock()
	delete(a.threads, key)
	a.mu.Unlock()
}

// Threads returns the number of live conversations.
func (a *Agent) Threads() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.threads)
}

// History returns a copy of the conversation of key.
func (a *Agent) History(key string) []Message {
	a.mu.Lock()
	t, ok := a.threads[key]
	a.mu.Unlock()
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (a *Agent) toolSpecs() []ToolSpec {
	list := a.tools.Tools()
	specs := make([]ToolSpec, 0, len(list))
	for _, t := range list {
		specs = append(specs, ToolSpec{
			Type:     "function",
			Function: FunctionSpec{Name: t.Name, Description: t.Description, Parameters: t.InputSchema},
		})
	}
	return specs
}

// Ask appends question to the conversation of key and runs the model until
// it answers without calling tools or MaxSteps is reached.  Tool calls run
// as id.  A failed turn leaves the conversation unchanged.
func (a *Agent) Ask(ctx context.Context, id model.Identity, key, question string) (Answer, error) {
	t := a.thread(key)
	t.mu.Lock()
	defer t.mu.Unlock()

	turn := []Message{{Role: RoleUser, Content: question}}
	specs := a.toolSpecs()
	ans := Answer{ThreadID: t.id}
	log := a.log.WithFields(logrus.Fields{"thread": t.id, "user": id.Username})

	for ans.Steps < a.cfg.MaxSteps {
		ans.Steps++
		msgs := make([]Message, 0, len(t.messages)+len(turn)+1)
		msgs = append(msgs, Message{Role: RoleSystem, Content: a.cfg.SystemPrompt})
		msgs = append(msgs, t.messages...)
		msgs = append(msgs, turn...)

		start := time.Now()
		resp, err := a.provider.Complete(ctx, Request{
			Model:       a.cfg.Model,
			Messages:    msgs,
			Tools:       specs,
			Temperature: a.cfg.Temperature,
		})
		if err != nil {
			a.observe("error")
			log.WithError(err).Warn("agent: model request failed")
			return Answer{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		a.observe("ok")
		log.WithFields(logrus.Fields{"step": ans.Steps, "tool_calls": len(resp.Message.ToolCalls), "duration_ms": time.Since(start).Milliseconds()}).Debug("agent: model replied")

		reply := resp.Message
		reply.Role = RoleAssistant
		turn = append(turn, reply)
		if len(reply.ToolCalls) == 0 {
			ans.Text = reply.Content
			a.commit(t, turn)
			return ans, nil
		}
		for i, call := range reply.ToolCalls {
			if call.ID == "" {
				call.ID = fmt.Sprintf("call_%d_%d", ans.Steps, i)
				reply.ToolCalls[i].ID = call.ID
			}
			ans.ToolCalls = append(ans.ToolCalls, call.Function.Name)
			turn = append(turn, Message{Role: RoleTool, ToolCallID: call.ID, Content: a.runTool(ctx, id, call)})
		}
	}

	ans.Text = fmt.Sprintf("I could not finish this request within %d steps. Please narrow the question.", a.cfg.MaxSteps)
	turn = append(turn, Message{Role: RoleAssistant, Content: ans.Text})
	a.commit(t, turn)
	return ans, nil
}

func (a *Agent) runTool(ctx context.Context, id model.Identity, call ToolCall) string {
	args := json.RawMessage(call.Function.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	res, err := a.tools.Call(ctx, id, call.Function.Name, args)
	if err != nil {
		return "Error: " + err.Error()
	}
	return res.Text
}

func (a *Agent) observe(outcome string) {
	if a.Observe != nil {
		a.Observe(outcome)
	}
}

// commit appends a finished turn and trims the history to MaxHistory
// messages, dropping whole turns from the front.  The newest turn is kept
// even when it alone is longer than the limit.
func (a *Agent) commit(t *thread, turn []Message) {
	t.messages = append(t.messages, turn...)
	limit := a.cfg.MaxHistory
	if limit <= 0 {
		return
	}
	for len(t.messages) > limit {
		next := -1
		for i := 1; i < len(t.messages); i++ {
			if t.messages[i].Role == RoleUser {
				next = i
				break
			}
		}
		if next < 0 {
			return
		}
		t.messages = t.messages[next:]
	}
}

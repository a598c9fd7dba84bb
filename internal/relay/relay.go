// Package relay connects one client socket to the agent loop for a session.
// Inbound user messages are persisted and processed one at a time; loop
// output is streamed back as it is produced and the turns the loop appended
// are persisted once it returns.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"computeruse-backend/internal/agent"
	"computeruse-backend/internal/models"
	"computeruse-backend/internal/store"
)

// MissingKeyMessage is sent instead of running the loop when no API key is set.
const MissingKeyMessage = "Error: ANTHROPIC_API_KEY is not configured. Please set the environment variable."

// State is the lifecycle state of a relay.
type State int32

const (
	StateAwaitingMessage State = iota
	StateProcessing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingMessage:
		return "awaiting_message"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrSessionNotFound is returned by Run when the session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Deps are the collaborators of a relay.
type Deps struct {
	Store  store.Store
	Loop   agent.Loop
	Config agent.Config
	Logger *slog.Logger
}

type Relay struct {
	deps    Deps
	code    string
	t       Transport
	history *agent.History
	state   atomic.Int32
	logger  *slog.Logger
}

func New(deps Deps, code string, t Transport) *Relay {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		deps:    deps,
		code:    code,
		t:       t,
		history: agent.NewHistory(),
		logger:  logger.With("component", "relay", "session_id", code),
	}
}

// State reports Closed as soon as the client is gone, even while a loop
// invocation is still finishing.
func (r *Relay) State() State {
	if r.t.Disconnected() {
		return StateClosed
	}
	return State(r.state.Load())
}

func (r *Relay) setState(s State) { r.state.Store(int32(s)) }

// Run serves the connection until the client goes away. The session must
// exist; otherwise the connection is closed with CloseSessionNotFound.
func (r *Relay) Run(ctx context.Context) error {
	defer r.setState(StateClosed)

	if err := r.load(ctx); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.t.Close(CloseSessionNotFound, "session not found")
			return ErrSessionNotFound
		}
		r.logger.Error("Loading session failed", "error", err)
		r.t.Close(CloseServerError, "server error: "+err.Error())
		return err
	}

	r.logger.Info("Relay started", "history", r.history.Len())
	for {
		r.setState(StateAwaitingMessage)
		text, ok := r.t.Next()
		if !ok {
			r.logger.Info("Client disconnected")
			return nil
		}
		r.setState(StateProcessing)
		r.handle(ctx, text)
	}
}

// load replays the stored conversation into the running history.
func (r *Relay) load(ctx context.Context) error {
	if _, err := r.deps.Store.GetSession(ctx, r.code); err != nil {
		return err
	}
	msgs, err := r.deps.Store.ListMessages(ctx, r.code)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		r.history.Append(agent.Entry{Role: m.Role, Content: m.Content})
	}
	return nil
}

// handle runs one message cycle. Failures are reported to the client and
// never end the connection.
func (r *Relay) handle(ctx context.Context, text string) {
	// Persistence and the loop outlive a disconnecting client.
	ctx = context.WithoutCancel(ctx)

	content := models.Content{models.TextBlock(text)}
	if _, err := r.deps.Store.AppendMessage(ctx, r.code, models.RoleUser, content); err != nil {
		r.logger.Error("Persisting user message failed", "error", err)
		r.t.Send(errorEvent(fmt.Errorf("failed to save message: %w", err)))
		return
	}
	r.history.Append(agent.Entry{Role: models.RoleUser, Content: content})
	originalCount := r.history.Len()

	if !r.deps.Config.HasCredential() {
		r.t.Send(agentMessage(MissingKeyMessage))
		return
	}

	if err := r.runLoop(ctx); err != nil {
		r.logger.Error("Agent loop failed", "error", err)
		r.t.Send(errorEvent(err))
	}
	r.persistAppended(ctx, originalCount)
}

func (r *Relay) runLoop(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("agent loop panic: %v", p)
		}
	}()
	obs := &observer{t: r.t, logger: r.logger}
	return r.deps.Loop.Run(ctx, r.deps.Config, r.history, obs)
}

// persistAppended stores the turns the loop appended after originalCount.
// A user turn holding a single tool_result is stored as the result's content.
func (r *Relay) persistAppended(ctx context.Context, originalCount int) {
	appended := r.history.Since(originalCount)
	msgs := make([]store.NewMessage, 0, len(appended))
	for _, e := range appended {
		content := persistableContent(e)
		if len(content) == 0 {
			continue
		}
		msgs = append(msgs, store.NewMessage{Role: e.Role, Content: content})
	}
	if len(msgs) == 0 {
		return
	}
	if _, err := r.deps.Store.AppendMessages(ctx, r.code, msgs); err != nil {
		r.logger.Error("Persisting agent messages failed", "count", len(msgs), "error", err)
		return
	}
	r.logger.Debug("Persisted agent messages", "count", len(msgs))
}

func persistableContent(e agent.Entry) models.Content {
	switch e.Role {
	case models.RoleAssistant:
		return e.Content
	case models.RoleUser:
		if len(e.Content) == 1 && e.Content[0].Type == models.BlockTypeToolResult {
			return e.Content[0].Content
		}
		return e.Content
	default:
		return nil
	}
}

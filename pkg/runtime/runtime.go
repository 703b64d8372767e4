package runtime

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/gm-agent-org/gm-genai/pkg/config"
	"github.com/gm-agent-org/gm-genai/pkg/fileedit"
	"github.com/gm-agent-org/gm-genai/pkg/llm"
	"github.com/gm-agent-org/gm-genai/pkg/repair"
	"github.com/gm-agent-org/gm-genai/pkg/security"
	"github.com/gm-agent-org/gm-genai/pkg/store"
	"github.com/gm-agent-org/gm-genai/pkg/tool"
	"github.com/gm-agent-org/gm-genai/pkg/types"
)

var (
	// ErrMaxToolCalls ends a session that requested more tool calls than allowed.
	ErrMaxToolCalls = errors.New("maximum number of tool calls reached")
	// ErrBackendCancelled is reported when the backend itself cancelled the answer.
	ErrBackendCancelled = errors.New("generation cancelled by backend")
	// ErrUnfinished is reported when the answer stopped for any reason other than stop.
	ErrUnfinished = errors.New("generation did not finish")
)

type Config struct {
	Model          string `yaml:"model"` // used when a session names none
	MaxToolCalls   int    `yaml:"max_tool_calls"`
	MaxDataRepairs int    `yaml:"max_data_repairs"`
	// FallbackTools describes tools in the prompt and reads calls from
	// tool_calls fences instead of using native tool calling.
	FallbackTools bool `yaml:"fallback_tools"`
	Stream        bool `yaml:"stream"`
}

var DefaultConfig = Config{
	MaxToolCalls:   config.DefaultMaxToolCalls,
	MaxDataRepairs: config.DefaultMaxDataRepairs,
}

// ConfigFromSession maps the session section of the application config.
func ConfigFromSession(sc config.SessionConfig) Config {
	cfg := DefaultConfig
	cfg.Model = sc.Model
	if sc.MaxToolCalls > 0 {
		cfg.MaxToolCalls = sc.MaxToolCalls
	}
	if sc.MaxDataRepairs != nil {
		cfg.MaxDataRepairs = *sc.MaxDataRepairs
	}
	cfg.FallbackTools = sc.FallbackTools
	cfg.Stream = sc.Stream
	return cfg
}

// Session is the input of one Run.
type Session struct {
	ID       string
	Model    string
	Messages []types.Message

	Temperature *float64
	TopP        *float64
	MaxTokens   int
	Seed        *int

	ResponseType   types.ResponseType
	ResponseSchema types.JSONSchema
	// Schemas are referenced by schema= fence arguments and file outputs.
	Schemas map[string]types.JSONSchema

	Participants []Participant
	FileOutputs  []fileedit.FileOutput
	Merges       []fileedit.MergeFunc
	Processors   []fileedit.OutputProcessor

	// OnPartial receives streamed chunks of every turn.
	OnPartial func(llm.StreamChunk)
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithWorkspace reads current file contents through v. Targets outside the
// workspace are ignored by the file edit materializer.
func WithWorkspace(v *security.PathValidator) Option {
	return func(r *Runtime) {
		r.validator = v
		r.files = os.DirFS(v.Root())
	}
}

// WithFiles overrides where current file contents are read from.
func WithFiles(files fs.FS) Option {
	return func(r *Runtime) { r.files = files }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *Runtime) {
		if rec != nil {
			r.metrics = rec
		}
	}
}

type Runtime struct {
	config    Config
	store     store.Store
	llm       Completer
	tools     ToolDispatcher
	files     fs.FS
	validator *security.PathValidator
	metrics   Recorder
	log       *slog.Logger
}

// New creates a runtime. s and tools may be nil.
func New(cfg Config, s store.Store, llm Completer, tools ToolDispatcher, logger *slog.Logger, opts ...Option) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = config.DefaultMaxToolCalls
	}
	if cfg.MaxDataRepairs < 0 {
		cfg.MaxDataRepairs = 0
	}
	r := &Runtime{
		config:  cfg,
		store:   s,
		llm:     llm,
		tools:   tools,
		metrics: nopRecorder{},
		log:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type state int

const (
	stateRequesting state = iota
	stateToolDispatch
	stateRepairing
	stateParticipantTurn
	stateFinalizing
	stateDone
)

func (s state) String() string {
	switch s {
	case stateRequesting:
		return "requesting"
	case stateToolDispatch:
		return "tool_dispatch"
	case stateRepairing:
		return "repairing"
	case stateParticipantTurn:
		return "participant_turn"
	case stateFinalizing:
		return "finalizing"
	default:
		return "done"
	}
}

// run is the mutable state of one session.
type run struct {
	rt       *Runtime
	sess     *Session
	id       string
	model    string
	log      *slog.Logger
	messages []types.Message
	stats    types.GenerationStats
	vars     map[string]string
	pending  []types.ToolCall
	edits    []types.Edit
	last     *llm.ChatResponse
	result   *types.RunResult
	disabled map[int]bool // participants that failed, by index
}

// Run conducts the session until the backend produces an answer that needs
// no more tools, repairs or participant turns, then materializes it. The
// returned result is never nil; err is set when the status is not success.
func (r *Runtime) Run(ctx context.Context, sess *Session) (*types.RunResult, error) {
	started := time.Now()
	s := &run{
		rt:       r,
		sess:     sess,
		id:       sess.ID,
		model:    sess.Model,
		vars:     map[string]string{},
		disabled: map[int]bool{},
	}
	if s.id == "" {
		s.id = types.GenerateSessionID()
	}
	if s.model == "" {
		s.model = r.config.Model
	}
	s.log = r.log.With("session", s.id)

	var toolNames []string
	for _, t := range r.toolList() {
		toolNames = append(toolNames, t.Name)
	}
	s.emit(ctx, &types.SessionStartedEvent{
		BaseEvent: types.NewBaseEvent(types.EventSessionStarted, "runtime", s.id),
		Model:     s.model,
		Messages:  s.prompt(sess.Messages),
		Tools:     toolNames,
	})

	var err error
	for st := stateRequesting; st != stateDone; {
		if cerr := ctx.Err(); cerr != nil {
			err = cerr
			break
		}
		s.log.Debug("session state", "state", st.String())

		switch st {
		case stateRequesting:
			st, err = s.request(ctx)
		case stateToolDispatch:
			st, err = s.dispatch(ctx)
		case stateRepairing:
			st = s.repair(ctx)
		case stateParticipantTurn:
			st, err = s.participants(ctx)
		case stateFinalizing:
			st, err = s.finalize(ctx)
		}
		if err != nil {
			break
		}
	}

	res, err := s.finish(ctx, err)
	r.metrics.ObserveSession(s.model, res.Status, time.Since(started))
	if res.Status != types.StatusSuccess {
		return res, err
	}
	return res, nil
}

func (r *Runtime) toolList() []types.Tool {
	if r.tools == nil {
		return nil
	}
	return r.tools.List()
}

// prompt returns the initial transcript, with tool descriptions prepended
// when native tool calling is disabled.
func (s *run) prompt(messages []types.Message) []types.Message {
	msgs := types.CloneMessages(messages)
	if !s.rt.config.FallbackTools {
		return msgs
	}
	tools := s.rt.toolList()
	if len(tools) == 0 {
		return msgs
	}
	return append([]types.Message{{Role: types.RoleSystem, Content: fallbackToolsPrompt(tools)}}, msgs...)
}

// emit applies event to the transcript and persists it. Store failures are
// logged; they do not stop the session.
func (s *run) emit(ctx context.Context, event types.Event) {
	next, err := safeReduce(s.messages, event)
	if err != nil {
		s.log.Error("reducer failed", "event", event.EventType(), "error", err)
	} else {
		s.messages = next
	}

	if s.rt.store == nil {
		return
	}
	if err := s.rt.store.AppendEvent(context.WithoutCancel(ctx), event); err != nil {
		s.log.Warn("failed to persist event", "event", event.EventType(), "error", err)
	}
}

func (s *run) request(ctx context.Context) (state, error) {
	sess := s.sess
	req := &llm.ChatRequest{
		Model:          s.model,
		Messages:       types.CloneMessages(s.messages),
		Temperature:    sess.Temperature,
		TopP:           sess.TopP,
		MaxTokens:      sess.MaxTokens,
		Seed:           sess.Seed,
		ResponseType:   sess.ResponseType,
		ResponseSchema: sess.ResponseSchema,
	}
	if !s.rt.config.FallbackTools {
		req.Tools = s.rt.toolList()
	}

	s.stats.Turns++
	tokens := estimateTokens(req.Messages)
	s.log.Info("turn started", "turn", s.stats.Turns, "messages", len(req.Messages), "tokens", tokens)
	s.emit(ctx, &types.TurnStartedEvent{
		BaseEvent: types.NewBaseEvent(types.EventTurnStarted, "runtime", s.id),
		Turn:      s.stats.Turns,
		Model:     s.model,
		Messages:  len(req.Messages),
		Tokens:    tokens,
	})

	var onPartial func(llm.StreamChunk)
	if sess.OnPartial != nil {
		onPartial = sess.OnPartial
	} else if s.rt.config.Stream {
		onPartial = func(llm.StreamChunk) {}
	}

	started := time.Now()
	resp, err := s.rt.llm.Complete(ctx, req, onPartial)
	if err != nil {
		return stateDone, fmt.Errorf("completion failed: %w", err)
	}
	// A cancelled turn leaves no trace in the transcript.
	if err := ctx.Err(); err != nil {
		return stateDone, err
	}

	s.last = resp
	s.stats.Usage.Add(resp.Usage)
	for k, v := range resp.Vars {
		s.vars[k] = v
	}
	if resp.Model != "" {
		s.model = resp.Model
	}
	s.rt.metrics.ObserveTurn(s.model, resp.Usage, time.Since(started))
	if resp.FinishReason == types.FinishLength {
		s.log.Warn("response truncated by token limit", "turn", s.stats.Turns)
	}

	s.emit(ctx, &types.LLMResponseEvent{
		BaseEvent:    types.NewBaseEvent(types.EventLLMResponse, "llm", s.id),
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		Content:      resp.Content,
		ToolCalls:    resp.ToolCalls,
		Usage:        resp.Usage,
	})

	calls := resp.ToolCalls
	if s.rt.config.FallbackTools && len(calls) == 0 {
		calls = tool.ParseFallbackCalls(resp.Content)
	}
	if len(calls) > 0 {
		s.pending = calls
		return stateToolDispatch, nil
	}
	return stateRepairing, nil
}

func (s *run) repair(ctx context.Context) state {
	var responseSchema types.JSONSchema
	if s.sess.ResponseType != types.ResponseText {
		responseSchema = s.sess.ResponseSchema
	}
	issues := repair.Check(s.last.Content, s.sess.Schemas, responseSchema)
	if len(issues) == 0 {
		return stateParticipantTurn
	}

	summaries := make([]string, len(issues))
	for i, is := range issues {
		summaries[i] = fmt.Sprintf("%s: %s", is.SchemaID, is.Error)
	}

	if s.stats.Repairs >= s.rt.config.MaxDataRepairs {
		s.log.Warn("data repair budget exhausted", "repairs", s.stats.Repairs, "issues", len(issues))
		s.rt.metrics.ObserveRepair(true)
		s.emit(ctx, &types.RepairEvent{
			BaseEvent: types.NewBaseEvent(types.EventRepair, "runtime", s.id),
			Attempt:   s.stats.Repairs,
			Issues:    summaries,
			Exhausted: true,
		})
		return stateParticipantTurn
	}

	s.stats.Repairs++
	s.log.Info("requesting data repair", "attempt", s.stats.Repairs, "issues", len(issues))
	s.rt.metrics.ObserveRepair(false)
	s.emit(ctx, &types.RepairEvent{
		BaseEvent: types.NewBaseEvent(types.EventRepair, "runtime", s.id),
		Attempt:   s.stats.Repairs,
		Issues:    summaries,
	})
	s.emit(ctx, &types.MessageEvent{
		BaseEvent: types.NewBaseEvent(types.EventMessage, "runtime", s.id),
		Source:    "repair",
		Message:   types.Message{Role: types.RoleUser, Content: repair.Message(issues)},
	})
	return stateRequesting
}

func (s *run) participants(ctx context.Context) (state, error) {
	added := 0
	for i, p := range s.sess.Participants {
		if s.disabled[i] {
			continue
		}
		msgs, err := p.Respond(ctx, types.CloneMessages(s.messages))
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return stateDone, cerr
			}
			// a failed participant sits out the rest of the session
			s.disabled[i] = true
			s.log.Error("participant failed", "participant", p.Name(), "error", err)
			s.emit(ctx, &types.ParticipantEvent{
				BaseEvent: types.NewBaseEvent(types.EventParticipant, p.Name(), s.id),
				Label:     p.Name(),
				Error:     err.Error(),
			})
			continue
		}
		if len(msgs) == 0 {
			continue
		}
		s.emit(ctx, &types.ParticipantEvent{
			BaseEvent: types.NewBaseEvent(types.EventParticipant, p.Name(), s.id),
			Label:     p.Name(),
			Messages:  len(msgs),
		})
		for _, m := range msgs {
			s.emit(ctx, &types.MessageEvent{
				BaseEvent: types.NewBaseEvent(types.EventMessage, p.Name(), s.id),
				Source:    "participant",
				Message:   m,
			})
		}
		added += len(msgs)
	}
	if added > 0 {
		return stateRequesting, nil
	}
	return stateFinalizing, nil
}

// finish builds the result for a session that ended with err, or completes
// the one finalize produced, and records it. A session that ended without
// err still fails when the backend did not finish with stop.
func (s *run) finish(ctx context.Context, err error) (*types.RunResult, error) {
	res := s.result
	if res == nil {
		res = &types.RunResult{Status: types.StatusSuccess, FinishReason: types.FinishStop}
		if s.last != nil {
			res.Text = s.last.Content
		}
	}
	res.SessionID = s.id
	res.Model = s.model
	res.Stats = s.stats
	res.Messages = types.CloneMessages(s.messages)
	if len(s.vars) > 0 {
		res.Vars = s.vars
	}

	if err == nil {
		err = finishError(res.FinishReason)
	}

	switch {
	case err == nil:
	case errors.Is(err, ErrBackendCancelled):
		s.log.Info("session cancelled by backend")
		res.Status = types.StatusCancelled
		res.Error = err.Error()
	case errors.Is(err, ErrUnfinished):
		s.log.Warn("session did not finish", "finish_reason", res.FinishReason)
		res.Status = types.StatusError
		res.Error = err.Error()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		s.log.Info("session cancelled", "error", err)
		res.Status = types.StatusCancelled
		res.FinishReason = types.FinishCancel
		res.Error = err.Error()
	default:
		s.log.Error("session failed", "error", err)
		res.Status = types.StatusError
		res.FinishReason = types.FinishFail
		res.Error = err.Error()
	}

	s.emit(ctx, &types.SessionFinishedEvent{
		BaseEvent:    types.NewBaseEvent(types.EventSessionFinished, "runtime", s.id),
		Status:       res.Status,
		FinishReason: res.FinishReason,
		Error:        res.Error,
		Stats:        res.Stats,
	})
	if s.rt.store != nil {
		if err := s.rt.store.SaveResult(context.WithoutCancel(ctx), res); err != nil {
			s.log.Warn("failed to persist result", "error", err)
		}
	}
	s.log.Info("session finished", "status", res.Status, "turns", s.stats.Turns, "tool_calls", s.stats.ToolCalls, "repairs", s.stats.Repairs)
	return res, err
}

// finishError maps the backend finish reason of the final answer to the
// session outcome.
func finishError(reason string) error {
	switch reason {
	case "", types.FinishStop:
		return nil
	case types.FinishCancel:
		return ErrBackendCancelled
	default:
		return fmt.Errorf("%w: %s", ErrUnfinished, reason)
	}
}

func estimateTokens(messages []types.Message) int {
	n := 0
	for _, m := range messages {
		n += tool.CountTokens(m.Text())
	}
	return n
}

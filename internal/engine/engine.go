package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/studypal/studypal/internal/calendar"
	"github.com/studypal/studypal/internal/genai"
	"github.com/studypal/studypal/internal/models"
	"github.com/studypal/studypal/internal/plan"
	"github.com/studypal/studypal/internal/retrieval"
	"github.com/studypal/studypal/internal/store"
)

// apologyMessage is the node-boundary degradation for handler failures.
const apologyMessage = "Sorry, something went wrong on my end. Could you try that again?"

// HandlerResult is what a handler returns for one execution: exactly one
// response message, a state patch, and a next-node hint. Next is NodeEnd to
// terminate, a chain target, or empty to wait for the next user turn.
type HandlerResult struct {
	Response string
	Patch    *models.StatePatch
	Next     models.Node
}

// Handler consumes the conversation state and the latest user text and
// produces a response plus a state patch.
type Handler interface {
	Name() models.Node
	Handle(ctx context.Context, state *models.ConversationState, userText string) (*HandlerResult, error)
}

// permittedChains lists the only same-turn handler-to-handler hops the
// runner will follow. Everything else terminates the turn.
var permittedChains = map[models.Node]map[models.Node]bool{
	models.NodeScheduler: {
		models.NodeTutor:     true,
		models.NodeMotivator: true,
	},
}

// TurnResult is the outcome of one external turn.
type TurnResult struct {
	Response string
	Handler  models.Node // the handler that answered (the chained one, if a hop ran)
	Analysis *models.SessionAnalysis
	Schedule *models.Schedule
}

// Opts holds the collaborators an engine is built from.
type Opts struct {
	Store       store.Store
	Generator   genai.Generator
	Retriever   retrieval.Retriever
	Planner     plan.Planner
	Calendar    calendar.Connector
	IntentModel IntentModel
	ExitDecider ExitDecider
}

// Option defines a configuration option for engine construction.
type Option func(*Opts)

// WithStore sets the session store.
func WithStore(s store.Store) Option {
	return func(o *Opts) { o.Store = s }
}

// WithGenerator sets the text-generation client.
func WithGenerator(g genai.Generator) Option {
	return func(o *Opts) { o.Generator = g }
}

// WithRetriever sets the study-material retriever.
func WithRetriever(r retrieval.Retriever) Option {
	return func(o *Opts) { o.Retriever = r }
}

// WithPlanner sets the schedule planner.
func WithPlanner(p plan.Planner) Option {
	return func(o *Opts) { o.Planner = p }
}

// WithCalendar sets the calendar connector.
func WithCalendar(c calendar.Connector) Option {
	return func(o *Opts) { o.Calendar = c }
}

// WithIntentModel sets the model-backed intent fallback.
func WithIntentModel(m IntentModel) Option {
	return func(o *Opts) { o.IntentModel = m }
}

// WithExitDecider sets the tutoring exit decider.
func WithExitDecider(d ExitDecider) Option {
	return func(o *Opts) { o.ExitDecider = d }
}

// Engine orchestrates the turns of one session. Turns are strictly
// sequential per session; the mutex serializes concurrent callers.
type Engine struct {
	mu        sync.Mutex
	sessionID string
	userID    string

	store      store.Store
	classifier *IntentClassifier
	handlers   map[models.Node]Handler
}

// NewEngine creates an engine for one session. Missing collaborators get
// safe defaults: an in-memory store, a store-backed retriever, the Pomodoro
// planner, a discarding calendar connector, and the heuristic exit decider.
func NewEngine(sessionID, userID string, opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Engine.NewEngine invoked", "sessionID", sessionID, "userID", userID,
		"has_generator", cfg.Generator != nil, "has_store", cfg.Store != nil)

	if cfg.Store == nil {
		cfg.Store = store.NewInMemoryStore()
	}
	if cfg.Retriever == nil {
		cfg.Retriever = retrieval.NewStoreRetriever(cfg.Store)
	}
	if cfg.Planner == nil {
		cfg.Planner = plan.NewPomodoroPlanner(cfg.Generator)
	}
	if cfg.Calendar == nil {
		cfg.Calendar = calendar.NoopConnector{}
	}
	if cfg.ExitDecider == nil {
		if cfg.Generator != nil {
			cfg.ExitDecider = NewModelExitDecider(cfg.Generator)
		} else {
			cfg.ExitDecider = HeuristicExitDecider{}
		}
	}
	if cfg.IntentModel == nil && cfg.Generator != nil {
		cfg.IntentModel = NewModelIntentClassifier(cfg.Generator)
	}

	handlers := map[models.Node]Handler{
		models.NodeTutor:     NewTutorHandler(cfg.Generator, cfg.Retriever, cfg.ExitDecider),
		models.NodeScheduler: NewSchedulerHandler(cfg.Planner, cfg.Calendar),
		models.NodeAnalyzer:  NewAnalyzerHandler(cfg.Generator),
		models.NodeMotivator: NewMotivatorHandler(cfg.Generator, cfg.Store),
	}

	return &Engine{
		sessionID:  sessionID,
		userID:     userID,
		store:      cfg.Store,
		classifier: NewIntentClassifier(cfg.IntentModel),
		handlers:   handlers,
	}
}

// Turn processes one user message to completion, including at most one
// permitted chain hop, and persists the state exactly once at the end.
func (e *Engine) Turn(ctx context.Context, userText string) (*TurnResult, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, models.ErrEmptyMessage
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState()
	if err != nil {
		return nil, err
	}
	state.Apply(&models.StatePatch{Messages: []models.Message{
		{Role: models.RoleUser, Text: userText, Timestamp: time.Now()},
	}})

	intent, routePatch := e.classifier.Classify(ctx, state, userText)
	state.Apply(routePatch)

	node := nodeFor(intent)
	slog.Info("Engine.Turn executing handler", "sessionID", e.sessionID, "node", node)

	responses, answered := e.runNode(ctx, state, node, userText, true)

	if err := e.store.SaveConversationState(*state); err != nil {
		slog.Error("Engine.Turn failed to persist state", "error", err, "sessionID", e.sessionID)
		return nil, fmt.Errorf("failed to persist session %s: %w", e.sessionID, err)
	}

	return &TurnResult{
		Response: strings.Join(responses, "\n\n"),
		Handler:  answered,
		Analysis: state.LastAnalysis,
		Schedule: state.LastSchedule,
	}, nil
}

// runNode executes one handler, applies its patch, and follows a single
// permitted chain hop when allowChain is set. Handler failures and invalid
// patches degrade to the apology at the node boundary.
func (e *Engine) runNode(ctx context.Context, state *models.ConversationState, node models.Node, userText string, allowChain bool) ([]string, models.Node) {
	handler, ok := e.handlers[node]
	if !ok {
		slog.Error("Engine.runNode: no handler for node", "node", node)
		return []string{apologyMessage}, node
	}

	result, err := handler.Handle(ctx, state, userText)
	if err != nil || result == nil {
		slog.Error("Engine.runNode: handler failed", "error", err, "node", node, "sessionID", e.sessionID)
		e.appendAssistant(state, apologyMessage)
		return []string{apologyMessage}, node
	}
	if result.Patch != nil {
		if verr := result.Patch.Validate(); verr != nil {
			slog.Error("Engine.runNode: handler returned invalid patch", "error", verr, "node", node, "sessionID", e.sessionID)
			e.appendAssistant(state, apologyMessage)
			return []string{apologyMessage}, node
		}
		state.Apply(result.Patch)
	}
	e.appendAssistant(state, result.Response)

	responses := []string{result.Response}
	answered := node

	if allowChain && permittedChains[node][result.Next] {
		slog.Info("Engine.runNode: following chain hop", "from", node, "to", result.Next, "sessionID", e.sessionID)
		chained, chainedNode := e.runNode(ctx, state, result.Next, userText, false)
		responses = append(responses, chained...)
		answered = chainedNode
	}
	return responses, answered
}

func (e *Engine) appendAssistant(state *models.ConversationState, text string) {
	state.Apply(&models.StatePatch{Messages: []models.Message{
		{Role: models.RoleAssistant, Text: text, Timestamp: time.Now()},
	}})
}

// Reset restores the session to default state. It is idempotent.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, err := e.loadState()
	if err != nil {
		return err
	}
	state.Reset()
	if err := e.store.SaveConversationState(*state); err != nil {
		return fmt.Errorf("failed to persist reset for session %s: %w", e.sessionID, err)
	}
	slog.Info("Engine.Reset completed", "sessionID", e.sessionID)
	return nil
}

// State returns a copy of the current conversation state.
func (e *Engine) State() (*models.ConversationState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadState()
}

// loadState fetches the session record, creating defaults on first contact.
func (e *Engine) loadState() (*models.ConversationState, error) {
	state, err := e.store.GetConversationState(e.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", e.sessionID, err)
	}
	if state == nil {
		slog.Debug("Engine: creating default state", "sessionID", e.sessionID)
		state = models.NewConversationState(e.sessionID, e.userID)
	}
	return state, nil
}

// nodeFor maps an intent label onto its handler node.
func nodeFor(intent models.Intent) models.Node {
	switch intent {
	case models.IntentScheduler:
		return models.NodeScheduler
	case models.IntentAnalyzer:
		return models.NodeAnalyzer
	case models.IntentMotivator:
		return models.NodeMotivator
	default:
		return models.NodeTutor
	}
}

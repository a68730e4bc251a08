package replay

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/storyteller/pkg/contextwindow"
	"github.com/go-go-golems/storyteller/pkg/conversation"
	"github.com/go-go-golems/storyteller/pkg/events"
	"github.com/go-go-golems/storyteller/pkg/inference/engine"
)

// ReplayTopic is the topic replay lifecycle events are published on.
const ReplayTopic = "replay"

// State of the controller. Sending is the only long-lived state; Completed
// and Failed are the terminal outcomes of the last replay, observable after
// the call returns while the controller is already accepting the next one.
type State string

const (
	StateIdle    State = "idle"
	StateSending State = "sending"
)

// Outcome of the most recent replay.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// ErrCancelled is returned when the caller aborted an in-flight replay. The
// in-flight response is discarded and nothing is appended.
var ErrCancelled = errors.New("replay cancelled")

// ErrReplayInFlight guards against overlapping replays on one controller; a
// conversation has a single logical owner, so this is a caller bug.
var ErrReplayInFlight = errors.New("a replay is already in flight")

// DefaultTimeout bounds the model call so a stuck provider fails instead of
// hanging the controller forever.
const DefaultTimeout = 60 * time.Second

// Controller orchestrates re-submission of the (possibly edited and
// truncated) active branch to the model collaborator.
//
// The conversation is mutated only after the collaborator succeeded: any
// transport, rate-limit, model or cancellation failure leaves the timeline
// exactly as it was, so retrying a failed replay can never produce partial
// or duplicate assistant messages.
type Controller struct {
	engine   engine.Engine
	selector *contextwindow.Selector
	budget   int
	timeout  time.Duration

	publisher *events.PublisherManager

	mu      sync.Mutex
	state   State
	outcome Outcome
}

type ControllerOption func(*Controller)

func WithTimeout(timeout time.Duration) ControllerOption {
	return func(c *Controller) {
		c.timeout = timeout
	}
}

func WithBudget(budget int) ControllerOption {
	return func(c *Controller) {
		c.budget = budget
	}
}

func WithPublisher(publisher *events.PublisherManager) ControllerOption {
	return func(c *Controller) {
		c.publisher = publisher
	}
}

func NewController(eng engine.Engine, selector *contextwindow.Selector, options ...ControllerOption) *Controller {
	ret := &Controller{
		engine:   eng,
		selector: selector,
		budget:   8192,
		timeout:  DefaultTimeout,
		state:    StateIdle,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) LastOutcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Replay computes the context window for the manager's active branch, sends
// it to the model collaborator, and appends the returned text as a new
// assistant message under the current active leaf.
func (c *Controller) Replay(ctx context.Context, m conversation.Manager) (*conversation.Message, error) {
	if err := c.begin(); err != nil {
		return nil, err
	}

	conversationID := ""
	if mi, ok := m.(*conversation.ManagerImpl); ok {
		conversationID = mi.ConversationID().String()
	}
	c.publishBlind(events.NewReplayStartedEvent(conversationID))

	msg, err := c.send(ctx, m)
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, ErrCancelled) {
			outcome = OutcomeCancelled
		}
		c.finish(outcome)
		c.publishBlind(events.NewReplayFailedEvent(conversationID, err))
		return nil, err
	}

	c.finish(OutcomeCompleted)
	c.publishBlind(events.NewReplayCompletedEvent(conversationID))
	return msg, nil
}

func (c *Controller) send(ctx context.Context, m conversation.Manager) (*conversation.Message, error) {
	path := m.Conversation()
	if len(path) == 0 {
		return nil, errors.New("cannot replay an empty conversation")
	}

	window, err := c.selector.Select(ctx, path, c.budget)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("path_len", len(path)).
		Int("window_len", len(window)).
		Int("budget", c.budget).
		Msg("replaying context window")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.engine.Complete(ctx, window)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// caller abort: discard the in-flight response silently
			return nil, errors.WithStack(ErrCancelled)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &engine.TransportError{Err: errors.Wrapf(err, "model call timed out after %s", c.timeout)}
		}
		return nil, err
	}

	// the only mutation, and only on success
	return m.Append(conversation.RoleAssistant, text)
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSending {
		return errors.WithStack(ErrReplayInFlight)
	}
	c.state = StateSending
	return nil
}

func (c *Controller) finish(outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
	c.outcome = outcome
}

func (c *Controller) publishBlind(e events.Event) {
	if c.publisher != nil {
		c.publisher.PublishBlind(e)
	}
}

package replay

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/storyteller/pkg/contextwindow"
	"github.com/go-go-golems/storyteller/pkg/conversation"
	"github.com/go-go-golems/storyteller/pkg/inference/engine"
)

// fakeEngine scripts the model collaborator: a fixed reply, a fixed error,
// or an artificial delay to trigger timeouts and cancellation.
type fakeEngine struct {
	reply string
	err   error
	delay time.Duration

	calls  int
	gotIDs []conversation.NodeID
}

func (e *fakeEngine) Complete(ctx context.Context, messages conversation.Conversation) (string, error) {
	e.calls++
	e.gotIDs = messages.IDs()

	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(e.delay):
		}
	}
	if e.err != nil {
		return "", e.err
	}
	return e.reply, nil
}

func newTestManager(t *testing.T) *conversation.ManagerImpl {
	t.Helper()
	m := conversation.NewManager(conversation.WithSystemPrompt("You are helpful."))
	_, err := m.Append(conversation.RoleUser, "Hi")
	require.NoError(t, err)
	return m
}

func newTestController(eng engine.Engine, options ...ControllerOption) *Controller {
	return NewController(eng, contextwindow.NewSelector(), append([]ControllerOption{
		WithBudget(10000),
	}, options...)...)
}

func TestReplayAppendsAssistantMessageOnSuccess(t *testing.T) {
	eng := &fakeEngine{reply: "Hello."}
	c := newTestController(eng)
	m := newTestManager(t)

	before := m.Conversation()

	msg, err := c.Replay(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, conversation.RoleAssistant, msg.Role)
	require.Equal(t, "Hello.", msg.Content)

	after := m.Conversation()
	require.Len(t, after, len(before)+1)
	require.Equal(t, msg.ID, m.ActiveLeafID())
	require.Equal(t, before.IDs(), after[:len(before)].IDs())

	require.Equal(t, StateIdle, c.State())
	require.Equal(t, OutcomeCompleted, c.LastOutcome())
}

func TestReplaySendsTheContextWindow(t *testing.T) {
	eng := &fakeEngine{reply: "ok"}
	c := newTestController(eng)
	m := newTestManager(t)

	_, err := c.Replay(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, 1, eng.calls)

	// the fake got the active path in root-first order
	path := m.Conversation()
	require.Equal(t, path[:len(path)-1].IDs(), eng.gotIDs)
}

func TestFailedReplayLeavesHistoryUntouched(t *testing.T) {
	eng := &fakeEngine{err: &engine.TransportError{Err: errors.New("connection refused")}}
	c := newTestController(eng)
	m := newTestManager(t)

	before := m.Conversation()
	leafBefore := m.ActiveLeafID()

	_, err := c.Replay(context.Background(), m)
	require.Error(t, err)

	var transportErr *engine.TransportError
	require.ErrorAs(t, err, &transportErr)

	require.Equal(t, before.IDs(), m.Conversation().IDs())
	require.Equal(t, leafBefore, m.ActiveLeafID())
	require.Equal(t, OutcomeFailed, c.LastOutcome())
	require.Equal(t, StateIdle, c.State())
}

func TestFailedReplayIsRetrySafe(t *testing.T) {
	eng := &fakeEngine{err: &engine.RateLimitError{Err: errors.New("quota")}}
	c := newTestController(eng)
	m := newTestManager(t)

	_, err := c.Replay(context.Background(), m)
	require.Error(t, err)

	// retry after clearing the failure: exactly one assistant message lands
	eng.err = nil
	eng.reply = "Hello."
	msg, err := c.Replay(context.Background(), m)
	require.NoError(t, err)

	path := m.Conversation()
	require.Equal(t, msg.ID, path[len(path)-1].ID)
	assistants := 0
	for _, pm := range path {
		if pm.Role == conversation.RoleAssistant {
			assistants++
		}
	}
	require.Equal(t, 1, assistants)
}

func TestCancelledReplayAppendsNothing(t *testing.T) {
	eng := &fakeEngine{reply: "too late", delay: time.Second}
	c := newTestController(eng)
	m := newTestManager(t)

	before := m.Conversation()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Replay(ctx, m)
	require.ErrorIs(t, err, ErrCancelled)

	require.Equal(t, before.IDs(), m.Conversation().IDs())
	require.Equal(t, OutcomeCancelled, c.LastOutcome())
	require.Equal(t, StateIdle, c.State())
}

func TestReplayTimesOutInsteadOfHanging(t *testing.T) {
	eng := &fakeEngine{reply: "too late", delay: time.Second}
	c := newTestController(eng, WithTimeout(20*time.Millisecond))
	m := newTestManager(t)

	start := time.Now()
	_, err := c.Replay(context.Background(), m)
	require.Error(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond)

	var transportErr *engine.TransportError
	require.ErrorAs(t, err, &transportErr)
	require.Equal(t, OutcomeFailed, c.LastOutcome())
}

func TestReplayRejectsEmptyConversation(t *testing.T) {
	eng := &fakeEngine{reply: "ok"}
	c := newTestController(eng)
	m := conversation.NewManager()

	_, err := c.Replay(context.Background(), m)
	require.Error(t, err)
	require.Equal(t, 0, eng.calls)
}

func TestReplayRejectsOverlappingCalls(t *testing.T) {
	eng := &fakeEngine{reply: "ok", delay: 100 * time.Millisecond}
	c := newTestController(eng)
	m := newTestManager(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Replay(context.Background(), m)
		require.NoError(t, err)
	}()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateSending, c.State())
	_, err := c.Replay(context.Background(), m)
	require.ErrorIs(t, err, ErrReplayInFlight)

	<-done
}

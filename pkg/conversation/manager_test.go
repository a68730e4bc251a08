package conversation

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/storyteller/pkg/events"
)

type capturingPublisher struct {
	mu       sync.Mutex
	messages []*message.Message
}

func (p *capturingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *capturingPublisher) Close() error { return nil }

func (p *capturingPublisher) captured() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message{}, p.messages...)
}

func TestManagerAppendAndEditMaintainActivePath(t *testing.T) {
	m := NewManager(WithSystemPrompt("You are helpful."))

	user, err := m.Append(RoleUser, "Hi")
	require.NoError(t, err)
	_, err = m.Append(RoleAssistant, "Hello.")
	require.NoError(t, err)

	edited, err := m.EditAt(user.ID, "Hi there")
	require.NoError(t, err)

	path := m.Conversation()
	require.Len(t, path, 2)
	require.Equal(t, "You are helpful.", path[0].Content)
	require.Equal(t, "Hi there", path[1].Content)
	require.Equal(t, edited.ID, m.ActiveLeafID())
}

func TestManagerPublishesChangeEvents(t *testing.T) {
	pub := &capturingPublisher{}
	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher(ChangeTopic, pub)

	m := NewManager(WithPublisher(publisher))

	user, err := m.Append(RoleUser, "Hi")
	require.NoError(t, err)
	_, err = m.EditAt(user.ID, "Hi there")
	require.NoError(t, err)
	require.NoError(t, m.SwitchBranch(user.ID))

	captured := pub.captured()
	require.Len(t, captured, 3)

	ops := make([]events.ChangeOp, 0, len(captured))
	for _, msg := range captured {
		var e events.EventConversationChanged
		require.NoError(t, json.Unmarshal(msg.Payload, &e))
		require.Equal(t, events.EventTypeConversationChanged, e.Type())
		require.Equal(t, m.ConversationID().String(), e.ConversationID)
		ops = append(ops, e.Op)
	}
	require.Equal(t, []events.ChangeOp{
		events.ChangeOpAppend,
		events.ChangeOpEdit,
		events.ChangeOpSwitch,
	}, ops)
}

func TestManagerAutosaveWritesDocument(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(WithAutosave(dir))

	_, err := m.Append(RoleUser, "Hi")
	require.NoError(t, err)

	path := filepath.Join(dir, m.ConversationID().String()+".json")
	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, m.ActiveLeafID(), loaded.ActiveLeafID())
}

func TestManagerSerializesConcurrentMutations(t *testing.T) {
	m := NewManager(WithSystemPrompt("root"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := m.Append(RoleUser, "turn")
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// 1 system + 200 appends, all on one chain
	path := m.Conversation()
	require.Len(t, path, 201)
	require.Equal(t, NullNode, path[0].ParentID)
	for i := 1; i < len(path); i++ {
		require.Equal(t, path[i-1].ID, path[i].ParentID)
	}
}

package conversation

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/storyteller/pkg/events"
)

// ChangeTopic is the topic conversation-changed events are published on.
const ChangeTopic = "conversation.changed"

// ManagerImpl owns one conversation: its timeline tree, the cursor, and
// conversation-level metadata. Every mutating operation is serialized behind
// a single mutex, which is the only concurrency guarantee the engine makes.
// There is exactly one logical writer per conversation; the lock just keeps
// multi-threaded hosts honest.
type ManagerImpl struct {
	mu sync.Mutex

	tree           *Tree
	conversationID uuid.UUID
	title          string
	modelProfile   string

	publisher *events.PublisherManager

	autosaveEnabled bool
	autosaveDir     string
}

var _ Manager = (*ManagerImpl)(nil)

type ManagerOption func(*ManagerImpl)

func WithConversationID(conversationID uuid.UUID) ManagerOption {
	return func(m *ManagerImpl) {
		m.conversationID = conversationID
	}
}

func WithTitle(title string) ManagerOption {
	return func(m *ManagerImpl) {
		m.title = title
	}
}

// WithModelProfile records which model configuration the conversation was
// created against. The engine only stores the reference; resolving it is the
// host's business.
func WithModelProfile(profile string) ManagerOption {
	return func(m *ManagerImpl) {
		m.modelProfile = profile
	}
}

// WithPublisher attaches a publisher manager; every successful mutation then
// emits an EventConversationChanged on ChangeTopic.
func WithPublisher(publisher *events.PublisherManager) ManagerOption {
	return func(m *ManagerImpl) {
		m.publisher = publisher
	}
}

// WithAutosave writes the serialized conversation into dir after every
// mutation. Autosave failures are logged and ignored, an edit must never
// fail because the disk is full.
func WithAutosave(dir string) ManagerOption {
	return func(m *ManagerImpl) {
		m.autosaveEnabled = true
		if dir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				homeDir = "."
			}
			dir = filepath.Join(homeDir, ".storyteller", "history")
		}
		m.autosaveDir = dir
	}
}

// WithSystemPrompt seeds a freshly created conversation with a root system
// message.
func WithSystemPrompt(prompt string) ManagerOption {
	return func(m *ManagerImpl) {
		if prompt == "" {
			return
		}
		if _, err := m.tree.AppendToActiveLeaf(RoleSystem, prompt); err != nil {
			log.Warn().Err(err).Msg("could not seed system prompt")
		}
	}
}

func NewManager(options ...ManagerOption) *ManagerImpl {
	ret := &ManagerImpl{
		tree:           NewTree(),
		conversationID: uuid.Nil,
	}
	for _, option := range options {
		option(ret)
	}

	if ret.conversationID == uuid.Nil {
		ret.conversationID = uuid.New()
	}

	return ret
}

func (m *ManagerImpl) ConversationID() uuid.UUID {
	return m.conversationID
}

func (m *ManagerImpl) Title() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.title
}

func (m *ManagerImpl) SetTitle(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.title = title
}

func (m *ManagerImpl) ModelProfile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelProfile
}

// Tree exposes the underlying timeline for the codec and for read-only
// inspection (branch listings). Mutation must go through the manager.
func (m *ManagerImpl) Tree() *Tree {
	return m.tree
}

func (m *ManagerImpl) Conversation() Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.ActivePath()
}

func (m *ManagerImpl) ActiveLeafID() NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.ActiveLeafID()
}

func (m *ManagerImpl) GetMessage(id NodeID) (*Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.GetMessage(id)
}

func (m *ManagerImpl) Append(role Role, content string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, err := m.tree.AppendToActiveLeaf(role, content)
	if err != nil {
		return nil, err
	}

	m.afterMutation(events.ChangeOpAppend, msg.ID)
	return msg, nil
}

func (m *ManagerImpl) EditAt(messageID NodeID, newContent string) (*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, err := m.tree.EditAt(messageID, newContent)
	if err != nil {
		return nil, err
	}

	m.afterMutation(events.ChangeOpEdit, msg.ID)
	return msg, nil
}

func (m *ManagerImpl) SwitchBranch(messageID NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.tree.SwitchBranch(messageID); err != nil {
		return err
	}

	m.afterMutation(events.ChangeOpSwitch, messageID)
	return nil
}

func (m *ManagerImpl) PruneBranch(messageID NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.tree.PruneBranch(messageID); err != nil {
		return err
	}

	m.afterMutation(events.ChangeOpPrune, messageID)
	return nil
}

// GC reclaims storage held by pruned branches.
func (m *ManagerImpl) GC() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.GC()
}

// afterMutation runs with the lock held.
func (m *ManagerImpl) afterMutation(op events.ChangeOp, messageID NodeID) {
	if m.publisher != nil {
		m.publisher.PublishBlind(events.NewConversationChangedEvent(
			m.conversationID.String(),
			m.tree.ActiveLeafID().String(),
			messageID.String(),
			op,
		))
	}

	if m.autosaveEnabled {
		if err := m.autosave(); err != nil {
			log.Warn().Err(err).Str("dir", m.autosaveDir).Msg("autosave failed")
		}
	}
}

func (m *ManagerImpl) autosave() error {
	if err := os.MkdirAll(m.autosaveDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(m.autosaveDir, m.conversationID.String()+".json")
	data, err := m.encodeLocked()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SaveToFile serializes the full conversation (all branches, pruned marks,
// cursor) to a JSON document at filename.
func (m *ManagerImpl) SaveToFile(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.encodeLocked()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

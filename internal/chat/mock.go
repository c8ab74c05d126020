package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pawlink/pawlink-chat/pkg/models"
)

// MockMessageAPI implements api.MessageAPI for testing
type MockMessageAPI struct {
	mu sync.Mutex

	// Simulated server-side message store, keyed by chat id
	store map[string][]models.Message

	// Control flags for testing error scenarios
	ShouldFailFetch  bool
	ShouldFailSend   bool
	ShouldFailRead   bool
	ShouldFailDelete bool

	// Call counters
	FetchCalls  int
	SendCalls   int
	ReadCalls   int
	DeleteCalls int

	nextID int
}

// NewMockMessageAPI creates a new mock with an empty store
func NewMockMessageAPI() *MockMessageAPI {
	return &MockMessageAPI{store: make(map[string][]models.Message)}
}

// Seed places pre-existing history into a conversation
func (m *MockMessageAPI) Seed(chatID string, msgs ...models.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[chatID] = append(m.store[chatID], msgs...)
}

// FetchMessages implements api.MessageAPI.FetchMessages for testing
func (m *MockMessageAPI) FetchMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++
	if m.ShouldFailFetch {
		return nil, fmt.Errorf("mock fetch error")
	}
	out := make([]models.Message, len(m.store[chatID]))
	copy(out, m.store[chatID])
	return out, nil
}

// SendMessage implements api.MessageAPI.SendMessage for testing
func (m *MockMessageAPI) SendMessage(ctx context.Context, chatID, text, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SendCalls++
	if m.ShouldFailSend {
		return fmt.Errorf("mock send error")
	}
	m.nextID++
	m.store[chatID] = append(m.store[chatID], models.Message{
		ID:        fmt.Sprintf("srv-%d", m.nextID),
		Sender:    models.SenderUser,
		SenderID:  userID,
		Text:      text,
		Timestamp: time.Now(),
		Status:    models.StatusSent,
	})
	return nil
}

// MarkRead implements api.MessageAPI.MarkRead for testing
func (m *MockMessageAPI) MarkRead(ctx context.Context, chatID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadCalls++
	if m.ShouldFailRead {
		return fmt.Errorf("mock read error")
	}
	return nil
}

// DeleteMessage implements api.MessageAPI.DeleteMessage for testing
func (m *MockMessageAPI) DeleteMessage(ctx context.Context, chatID, messageID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.ShouldFailDelete {
		return fmt.Errorf("mock delete error")
	}
	msgs := m.store[chatID]
	for i, msg := range msgs {
		if msg.ID == messageID {
			m.store[chatID] = append(msgs[:i], msgs[i+1:]...)
			break
		}
	}
	return nil
}

// FetchCount returns how many fetches were served
func (m *MockMessageAPI) FetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FetchCalls
}

// Messages returns a copy of the simulated store for a conversation
func (m *MockMessageAPI) Messages(chatID string) []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, len(m.store[chatID]))
	copy(out, m.store[chatID])
	return out
}

// MockRealtime implements Realtime for testing
type MockRealtime struct {
	mu sync.Mutex

	Joined   []string
	Left     []string
	Receipts []string
}

func NewMockRealtime() *MockRealtime {
	return &MockRealtime{}
}

func (m *MockRealtime) JoinChat(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Joined = append(m.Joined, chatID)
	return true
}

func (m *MockRealtime) LeaveChat(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Left = append(m.Left, chatID)
	return true
}

func (m *MockRealtime) SendReadReceipt(chatID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Receipts = append(m.Receipts, chatID)
	return true
}

// ReceiptCount returns how many read receipts were sent for a conversation
func (m *MockRealtime) ReceiptCount(chatID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.Receipts {
		if id == chatID {
			n++
		}
	}
	return n
}

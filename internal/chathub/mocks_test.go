package chathub_test

import (
	"campusfix/backend/internal/models"
	"sync"
	"sync/atomic"
)

// MockClient records what the hub does to it.
type MockClient struct {
	UserID      string
	ComplaintID string
	Send        chan models.MessageEvent

	runs      atomic.Int32
	closed    atomic.Bool
	closeOnce sync.Once
}

func newMockClient(userID, complaintID string, buffer int) *MockClient {
	return &MockClient{UserID: userID, ComplaintID: complaintID, Send: make(chan models.MessageEvent, buffer)}
}

func (m *MockClient) GetUserID() string                          { return m.UserID }
func (m *MockClient) GetComplaintID() string                     { return m.ComplaintID }
func (m *MockClient) GetSendChannel() chan<- models.MessageEvent { return m.Send }
func (m *MockClient) Run()                                       { m.runs.Add(1) }

func (m *MockClient) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.Send)
	})
}

func (m *MockClient) IsClosed() bool { return m.closed.Load() }

package chathub

import (
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/models"
	"context"
	"sync"

	"go.uber.org/zap"
)

const eventBuffer = 256

// Gate is asked before every delivery whether a client may still read the
// thread it watches.
type Gate interface {
	CanWatch(ctx context.Context, complaintID, userID string) error
}

// ManagerService fans message events out to the clients watching each
// complaint. With a Broker, events travel through it so that every server
// instance sees them; without one, delivery stays in process.
type ManagerService struct {
	mu      sync.RWMutex
	clients map[string]map[Client]struct{}

	RegisterCh   chan Client
	UnregisterCh chan Client

	localCh chan models.MessageEvent
	broker  Broker
	gate    Gate
	log     *zap.Logger

	ready chan struct{}
	done  chan struct{}
}

// NewManagerService builds a hub. broker may be nil. A nil gate delivers to
// every registered client.
func NewManagerService(broker Broker, gate Gate, log *zap.Logger) *ManagerService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ManagerService{
		clients:      make(map[string]map[Client]struct{}),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		localCh:      make(chan models.MessageEvent, eventBuffer),
		broker:       broker,
		gate:         gate,
		log:          log,
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Ready is closed once Run is subscribed and dispatching.
func (m *ManagerService) Ready() <-chan struct{} { return m.ready }

// Run subscribes to the broker and dispatches events until ctx is done.
// A failed subscription is returned before any dispatching starts.
func (m *ManagerService) Run(ctx context.Context) error {
	var remote <-chan models.MessageEvent
	if m.broker != nil {
		events, closeSub, err := m.broker.Subscribe(ctx)
		if err != nil {
			return err
		}
		defer closeSub()
		remote = events
	}

	defer close(m.done)
	defer m.closeAll()
	close(m.ready)
	m.log.Info("chat hub running", zap.Bool("broker", m.broker != nil))

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-m.RegisterCh:
			m.add(c)

		case c := <-m.UnregisterCh:
			m.remove(c)

		case ev := <-m.localCh:
			m.deliver(ctx, ev)

		case ev, ok := <-remote:
			if !ok {
				m.log.Warn("chat hub: broker subscription closed, live push stopped")
				remote = nil
				continue
			}
			m.deliver(ctx, ev)
		}
	}
}

// Register hands c to the hub. It is a no-op once the hub has stopped.
func (m *ManagerService) Register(c Client) {
	select {
	case m.RegisterCh <- c:
	case <-m.done:
	}
}

// Unregister removes c from the hub and closes it.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Publish announces a stored message. Delivery is best effort: a full
// local buffer drops the event and viewers catch up by polling.
func (m *ManagerService) Publish(ctx context.Context, ev models.MessageEvent) error {
	if m.broker != nil {
		return m.broker.Publish(ctx, ev)
	}
	select {
	case m.localCh <- ev:
	default:
		m.log.Warn("chat hub: local buffer full, event dropped", zap.String("complaint_id", ev.ComplaintID))
	}
	return nil
}

// ClientCount returns the number of clients watching complaintID.
func (m *ManagerService) ClientCount(complaintID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[complaintID])
}

func (m *ManagerService) add(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.clients[c.GetComplaintID()]
	if !ok {
		set = make(map[Client]struct{})
		m.clients[c.GetComplaintID()] = set
	}
	set[c] = struct{}{}
	c.Run()
}

func (m *ManagerService) remove(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.clients[c.GetComplaintID()]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m.clients, c.GetComplaintID())
	}
	c.Close()
}

// deliver runs on the Run goroutine, the only writer of the client set,
// so sending after the read lock is released is safe.
func (m *ManagerService) deliver(ctx context.Context, ev models.MessageEvent) {
	m.mu.RLock()
	watchers := make([]Client, 0, len(m.clients[ev.ComplaintID]))
	for c := range m.clients[ev.ComplaintID] {
		watchers = append(watchers, c)
	}
	m.mu.RUnlock()

	for _, c := range watchers {
		if !m.allowed(ctx, c) {
			continue
		}
		select {
		case c.GetSendChannel() <- ev:
		default:
			m.log.Warn("chat hub: dropping slow client", zap.String("user_id", c.GetUserID()), zap.String("complaint_id", ev.ComplaintID))
			m.remove(c)
		}
	}
}

// allowed re-checks c against the gate. A client that is no longer a party
// is disconnected; a failed lookup skips this event only.
func (m *ManagerService) allowed(ctx context.Context, c Client) bool {
	if m.gate == nil {
		return true
	}
	err := m.gate.CanWatch(ctx, c.GetComplaintID(), c.GetUserID())
	switch {
	case err == nil:
		return true
	case apperr.IsKind(err, apperr.KindUpstream), apperr.IsKind(err, apperr.KindUnknown):
		m.log.Warn("chat hub: access check failed, event withheld",
			zap.String("user_id", c.GetUserID()), zap.String("complaint_id", c.GetComplaintID()), zap.Error(err))
	default:
		m.log.Info("chat hub: client lost access, disconnecting",
			zap.String("user_id", c.GetUserID()), zap.String("complaint_id", c.GetComplaintID()))
		m.remove(c)
	}
	return false
}

func (m *ManagerService) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, set := range m.clients {
		for c := range set {
			c.Close()
		}
		delete(m.clients, id)
	}
}

package chathub

import (
	"campusfix/backend/internal/access"
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/models"
	"campusfix/backend/internal/storage"
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxBodyLength = 4000

// ActorResolver re-reads the profile behind an authenticated id.
type ActorResolver interface {
	Actor(ctx context.Context, id string) (models.Profile, error)
}

// Publisher pushes a stored message to live viewers.
type Publisher interface {
	Publish(ctx context.Context, ev models.MessageEvent) error
}

// Participants decides who belongs to a complaint's thread. It re-reads
// both the actor and the complaint on every call, so a reassignment takes
// effect at once.
type Participants struct {
	store  storage.Storage
	actors ActorResolver
}

func NewParticipants(store storage.Storage, actors ActorResolver) *Participants {
	return &Participants{store: store, actors: actors}
}

// Authorize returns the actor when it may perform op on the complaint's
// thread.
func (p *Participants) Authorize(ctx context.Context, complaintID, actorID string, op access.Operation) (models.Profile, error) {
	actor, err := p.actors.Actor(ctx, actorID)
	if err != nil {
		return models.Profile{}, err
	}
	c, err := p.store.GetComplaint(ctx, complaintID)
	if err != nil {
		return models.Profile{}, err
	}
	if !access.CanAct(actor, c, op) {
		return models.Profile{}, apperr.Forbidden("not a participant of this complaint")
	}
	return actor, nil
}

// CanWatch reports whether actorID may receive the thread's messages.
func (p *Participants) CanWatch(ctx context.Context, complaintID, actorID string) error {
	_, err := p.Authorize(ctx, complaintID, actorID, access.OpReadMessages)
	return err
}

// Service is the per-complaint message thread. The store is authoritative;
// live push is a best-effort extra on top of it.
type Service struct {
	store   storage.Storage
	parties *Participants
	hub     Publisher
	log     *zap.Logger
	now     func() time.Time
}

// NewService builds the messaging channel. hub may be nil.
func NewService(store storage.Storage, actors ActorResolver, hub Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		parties: NewParticipants(store, actors),
		hub:     hub,
		log:     log,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// PostMessage appends a message to the complaint's thread and announces it.
func (s *Service) PostMessage(ctx context.Context, complaintID, senderID, body string) (*models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("message body is required")
	}
	if len(body) > maxBodyLength {
		return nil, apperr.Validation("message body must be at most %d characters", maxBodyLength)
	}
	actor, err := s.parties.Authorize(ctx, complaintID, senderID, access.OpPostMessage)
	if err != nil {
		return nil, err
	}

	m := &models.Message{
		ComplaintID: complaintID,
		SenderID:    actor.ID,
		SenderRole:  actor.Role,
		SenderName:  actor.Name,
		Body:        body,
		CreatedAt:   s.now(),
	}
	if err := s.store.SaveMessage(ctx, m); err != nil {
		return nil, err
	}

	if s.hub != nil {
		ev := models.MessageEvent{Type: models.EventMessage, ComplaintID: complaintID, Message: m}
		if err := s.hub.Publish(ctx, ev); err != nil {
			s.log.Warn("live push failed", zap.String("complaint_id", complaintID), zap.Error(err))
		}
	}
	return m, nil
}

// ListMessages returns the thread in order. since, when set, keeps only
// messages created strictly after it.
func (s *Service) ListMessages(ctx context.Context, complaintID, actorID string, since *time.Time) ([]models.Message, error) {
	if _, err := s.parties.Authorize(ctx, complaintID, actorID, access.OpReadMessages); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, complaintID, since)
}

// CanWatch reports whether actorID may open a live connection on the thread.
func (s *Service) CanWatch(ctx context.Context, complaintID, actorID string) error {
	return s.parties.CanWatch(ctx, complaintID, actorID)
}

package notify

import (
	"campusfix/backend/internal/models"
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Directory resolves the people behind a complaint.
type Directory interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	ListProfiles(ctx context.Context, role models.Role) ([]models.Profile, error)
}

// Notifier turns committed lifecycle events into notifications. Every
// method returns immediately; delivery runs in the background and failures
// are logged, never returned.
type Notifier struct {
	dir    Directory
	direct Dispatcher
	ops    Dispatcher
	log    *zap.Logger
	wg     sync.WaitGroup
}

// NewNotifier builds a Notifier. direct reaches individual profiles; ops,
// when not nil, receives one copy of every event.
func NewNotifier(dir Directory, direct, ops Dispatcher, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{dir: dir, direct: direct, ops: ops, log: log}
}

// Wait blocks until every pending delivery has finished.
func (n *Notifier) Wait() { n.wg.Wait() }

// ComplaintSubmitted confirms to the student and alerts every admin.
func (n *Notifier) ComplaintSubmitted(c models.Complaint) {
	n.dispatch(func(ctx context.Context) {
		payload := complaintPayload(c)
		n.toProfile(ctx, c.StudentID, KindComplaintSubmitted, payload)

		admins, err := n.dir.ListProfiles(ctx, models.RoleAdmin)
		if err != nil {
			n.log.Error("notify: list admins", zap.String("complaint_id", c.ID), zap.Error(err))
		}
		for _, admin := range admins {
			n.send(ctx, RecipientOf(admin), KindAdminNewComplaint, payload)
		}
		n.toOps(ctx, KindAdminNewComplaint, payload)
	})
}

// StatusChanged tells the owning student about the new status.
func (n *Notifier) StatusChanged(c models.Complaint) {
	n.dispatch(func(ctx context.Context) {
		payload := complaintPayload(c)
		n.toProfile(ctx, c.StudentID, KindStatusUpdated, payload)
		n.toOps(ctx, KindStatusUpdated, payload)
	})
}

// Assigned tells the worker and the student about a new assignment.
func (n *Notifier) Assigned(c models.Complaint) {
	n.dispatch(func(ctx context.Context) {
		payload := complaintPayload(c)
		if c.AssignedTo != nil {
			n.toProfile(ctx, *c.AssignedTo, KindComplaintAssigned, payload)
		}
		n.toProfile(ctx, c.StudentID, KindComplaintAssigned, payload)
		n.toOps(ctx, KindComplaintAssigned, payload)
	})
}

func (n *Notifier) dispatch(fn func(ctx context.Context)) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.log.Error("notify: panic during delivery", zap.Any("panic", r))
			}
		}()
		fn(context.Background())
	}()
}

func (n *Notifier) toProfile(ctx context.Context, id string, kind Kind, payload map[string]string) {
	p, err := n.dir.GetProfile(ctx, id)
	if err != nil {
		n.log.Warn("notify: recipient lookup failed", zap.String("profile_id", id), zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	n.send(ctx, RecipientOf(*p), kind, payload)
}

func (n *Notifier) send(ctx context.Context, to Recipient, kind Kind, payload map[string]string) {
	if n.direct == nil {
		return
	}
	err := n.direct.Notify(ctx, to, kind, payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrNoAddress):
		n.log.Debug("notify: recipient has no address", zap.String("profile_id", to.ID), zap.String("kind", string(kind)))
	default:
		n.log.Error("notify: delivery failed", zap.String("profile_id", to.ID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (n *Notifier) toOps(ctx context.Context, kind Kind, payload map[string]string) {
	if n.ops == nil {
		return
	}
	if err := n.ops.Notify(ctx, Recipient{Name: "operations"}, kind, payload); err != nil {
		n.log.Error("notify: ops delivery failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func complaintPayload(c models.Complaint) map[string]string {
	p := map[string]string{
		"complaint_id":    c.ID,
		"complaint_title": c.Title,
		"category":        string(c.Category),
		"priority":        string(c.Priority),
		"status":          string(c.Status),
		"building":        c.Building,
		"room_number":     c.RoomNumber,
		"student_name":    c.StudentName,
	}
	if c.AssignedToName != nil {
		p["worker_name"] = *c.AssignedToName
	}
	return p
}

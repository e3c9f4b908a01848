// Package complaint owns the complaint lifecycle: filing, assignment, status
// transitions, work notes and scoped listing.
package complaint

import (
	"campusfix/backend/internal/access"
	"campusfix/backend/internal/analysis"
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/models"
	"campusfix/backend/internal/storage"
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Notifier is told about committed lifecycle changes. Implementations must
// not block and must not fail the caller.
type Notifier interface {
	ComplaintSubmitted(c models.Complaint)
	StatusChanged(c models.Complaint)
	Assigned(c models.Complaint)
}

// Service handles the business logic for complaints.
type Service struct {
	store    storage.Storage
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates a new complaint service.
func NewService(s storage.Storage, n Notifier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, notifier: n, log: log, now: Now}
}

// Now is the clock used for every stored timestamp. Postgres keeps
// microseconds, so values are truncated to match what a reload returns.
func Now() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// NewComplaint is the input of Create.
type NewComplaint struct {
	Title            string          `json:"title" validate:"required"`
	Description      string          `json:"description" validate:"required"`
	Category         models.Category `json:"category" validate:"required,oneof=plumbing electrical hvac structural cleaning other"`
	Priority         models.Priority `json:"priority" validate:"required,oneof=low medium high urgent"`
	Building         string          `json:"building" validate:"required"`
	RoomNumber       string          `json:"room_number" validate:"required"`
	SpecificLocation string          `json:"specific_location"`
	ImageURLs        []string        `json:"images"`
}

func (in *NewComplaint) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = models.Category(strings.ToLower(strings.TrimSpace(string(in.Category))))
	in.Priority = models.Priority(strings.ToLower(strings.TrimSpace(string(in.Priority))))
	in.Building = strings.TrimSpace(in.Building)
	in.RoomNumber = strings.TrimSpace(in.RoomNumber)
	in.SpecificLocation = strings.TrimSpace(in.SpecificLocation)
	in.ImageURLs = cleanURLs(in.ImageURLs)
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Actor loads the profile behind an authenticated id. A missing profile
// means the identity is no longer valid.
func (s *Service) Actor(ctx context.Context, id string) (models.Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return models.Profile{}, apperr.Unauthorized("unknown user")
	}
	if err != nil {
		return models.Profile{}, err
	}
	return *p, nil
}

func (s *Service) checkCreate(ctx context.Context, studentID string, in *NewComplaint) (models.Profile, error) {
	actor, err := s.Actor(ctx, studentID)
	if err != nil {
		return models.Profile{}, err
	}
	if !access.CanAct(actor, nil, access.OpCreate) {
		return models.Profile{}, apperr.Forbidden("only students can file complaints")
	}
	in.normalize()
	if err := validateStruct(in); err != nil {
		return models.Profile{}, err
	}
	return actor, nil
}

// CheckCreate runs every check Create would, without writing. Callers that
// upload images first use it so a rejected request stores nothing.
func (s *Service) CheckCreate(ctx context.Context, studentID string, in NewComplaint) error {
	_, err := s.checkCreate(ctx, studentID, &in)
	return err
}

// Create files a new complaint on behalf of the calling student.
func (s *Service) Create(ctx context.Context, studentID string, in NewComplaint) (*models.Complaint, error) {
	actor, err := s.checkCreate(ctx, studentID, &in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &models.Complaint{
		Title:            in.Title,
		Description:      in.Description,
		Category:         in.Category,
		Priority:         in.Priority,
		Status:           models.StatusSubmitted,
		Building:         in.Building,
		RoomNumber:       in.RoomNumber,
		SpecificLocation: in.SpecificLocation,
		Images:           in.ImageURLs,
		CompletionImages: []string{},
		StudentID:        actor.ID,
		StudentName:      actor.Name,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateComplaint(ctx, c); err != nil {
		return nil, err
	}

	s.log.Info("complaint submitted",
		zap.String("complaint_id", c.ID),
		zap.String("student_id", actor.ID),
		zap.String("category", string(c.Category)))
	s.notifier.ComplaintSubmitted(*c)
	return c, nil
}

// load fetches a complaint and checks op against it.
func (s *Service) load(ctx context.Context, complaintID string, actor models.Profile, op access.Operation) (*models.Complaint, error) {
	c, err := s.store.GetComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if !access.CanAct(actor, c, op) {
		return nil, apperr.Forbidden("not allowed to " + op.String() + " this complaint")
	}
	return c, nil
}

// Assign binds the complaint to a maintenance worker and forces it into the
// assigned state, replacing any earlier assignment.
func (s *Service) Assign(ctx context.Context, complaintID, maintenanceID, actorID string) (*models.Complaint, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, complaintID, actor, access.OpAssign); err != nil {
		return nil, err
	}

	worker, err := s.store.GetProfile(ctx, maintenanceID)
	if apperr.IsKind(err, apperr.KindNotFound) || (err == nil && worker.Role != models.RoleMaintenance) {
		return nil, apperr.NotFound("maintenance worker not found")
	}
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateComplaint(ctx, complaintID, func(c *models.Complaint) error {
		if c.Status.IsResolved() {
			return apperr.Validation("cannot assign a %s complaint", c.Status)
		}
		c.Status = models.StatusAssigned
		c.AssignedTo = &worker.ID
		c.AssignedToName = &worker.Name
		c.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("complaint assigned",
		zap.String("complaint_id", updated.ID),
		zap.String("worker_id", worker.ID),
		zap.String("admin_id", actor.ID))
	s.notifier.Assigned(*updated)
	return updated, nil
}

// UpdateStatus moves a complaint forward in its lifecycle. Only the admin or
// the assigned worker may do so. Completion images are accepted only when
// resolving.
func (s *Service) UpdateStatus(ctx context.Context, complaintID, actorID string, next models.Status, completionImages []string) (*models.Complaint, error) {
	completionImages = cleanURLs(completionImages)
	actor, next, _, err := s.checkStatus(ctx, complaintID, actorID, next, len(completionImages) > 0)
	if err != nil {
		return nil, err
	}

	var previous models.Status
	updated, err := s.store.UpdateComplaint(ctx, complaintID, func(c *models.Complaint) error {
		// The assignee may have changed since the check above.
		if !access.CanAct(actor, c, access.OpUpdateStatus) {
			return apperr.Forbidden("not allowed to update_status this complaint")
		}
		if err := checkTransition(c, next); err != nil {
			return err
		}
		now := s.now()
		previous = c.Status
		c.Status = next
		c.UpdatedAt = now
		if next.IsResolved() && c.ResolvedAt == nil {
			c.ResolvedAt = &now
		}
		if next == models.StatusResolved {
			c.CompletionImages = append(c.CompletionImages, completionImages...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("complaint status changed",
		zap.String("complaint_id", updated.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(updated.Status)),
		zap.String("actor_id", actor.ID))
	s.notifier.StatusChanged(*updated)
	return updated, nil
}

// checkStatus validates a status change against the complaint as it is now.
func (s *Service) checkStatus(ctx context.Context, complaintID, actorID string, next models.Status, withImages bool) (models.Profile, models.Status, *models.Complaint, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return models.Profile{}, "", nil, err
	}
	next = models.Status(strings.ToLower(strings.TrimSpace(string(next))))
	if !next.Valid() {
		return models.Profile{}, "", nil, apperr.Validation("unknown status %q", next)
	}
	if withImages && next != models.StatusResolved {
		return models.Profile{}, "", nil, apperr.Validation("completion images are only accepted when resolving")
	}
	c, err := s.load(ctx, complaintID, actor, access.OpUpdateStatus)
	if err != nil {
		return models.Profile{}, "", nil, err
	}
	return actor, next, c, nil
}

// CheckUpdateStatus runs the checks of UpdateStatus, including the
// transition rules, without writing. withImages reports whether completion
// images will accompany the change.
func (s *Service) CheckUpdateStatus(ctx context.Context, complaintID, actorID string, next models.Status, withImages bool) error {
	_, next, c, err := s.checkStatus(ctx, complaintID, actorID, next, withImages)
	if err != nil {
		return err
	}
	return checkTransition(c, next)
}

// checkTransition enforces forward-only movement and the assignee invariant.
func checkTransition(c *models.Complaint, next models.Status) error {
	switch {
	case next == c.Status:
		return apperr.Validation("complaint is already %s", next)
	case next.Rank() < c.Status.Rank():
		return apperr.Validation("cannot move a complaint from %s back to %s", c.Status, next)
	case next.RequiresAssignee() && c.AssignedTo == nil:
		return apperr.Validation("complaint must be assigned before it can be %s", next)
	}
	return nil
}

// Get returns one complaint. Complaints outside the actor's scope are
// reported as missing.
func (s *Service) Get(ctx context.Context, complaintID, actorID string) (*models.Complaint, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetComplaint(ctx, complaintID)
	if err != nil {
		return nil, err
	}
	if !access.CanAct(actor, c, access.OpView) {
		return nil, apperr.NotFound("complaint not found")
	}
	return c, nil
}

// List returns the complaints visible to the actor that match f, newest first.
// Scope fields of f are always replaced by the actor's own scope.
func (s *Service) List(ctx context.Context, actorID string, f models.ComplaintFilter) ([]models.Complaint, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", f.Status)
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, apperr.Validation("unknown category %q", f.Category)
	}
	scoped, ok := access.Scope(actor, f)
	if !ok {
		return nil, apperr.Forbidden("not allowed to list complaints")
	}
	return s.store.ListComplaints(ctx, scoped)
}

// AddNote appends a work note.
func (s *Service) AddNote(ctx context.Context, complaintID, actorID, body string) (*models.WorkNote, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperr.Validation("note text is required")
	}
	if _, err := s.load(ctx, complaintID, actor, access.OpAddNote); err != nil {
		return nil, err
	}

	n := &models.WorkNote{
		ComplaintID: complaintID,
		AuthorID:    actor.ID,
		AuthorRole:  actor.Role,
		AuthorName:  actor.Name,
		Body:        body,
		CreatedAt:   s.now(),
	}
	if err := s.store.SaveWorkNote(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes returns the work notes of a complaint in creation order.
func (s *Service) ListNotes(ctx context.Context, complaintID, actorID string) ([]models.WorkNote, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, complaintID, actor, access.OpViewNotes); err != nil {
		return nil, err
	}
	return s.store.ListWorkNotes(ctx, complaintID)
}

// Stats is the dashboard summary. Exactly one field is set, depending on
// the caller's role.
type Stats struct {
	System *analysis.SystemStats `json:"system,omitempty"`
	Worker *analysis.WorkerStats `json:"worker,omitempty"`
}

// Stats summarises every complaint for an admin, or the caller's own
// assignments for a maintenance worker.
func (s *Service) Stats(ctx context.Context, actorID string) (*Stats, error) {
	actor, err := s.Actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !access.CanAct(actor, nil, access.OpViewStats) {
		return nil, apperr.Forbidden("not allowed to view statistics")
	}
	scoped, _ := access.Scope(actor, models.ComplaintFilter{})
	cs, err := s.store.ListComplaints(ctx, scoped)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleMaintenance {
		ws := analysis.ComputeWorkerStats(cs)
		return &Stats{Worker: &ws}, nil
	}
	st := analysis.ComputeStats(cs)
	return &Stats{System: &st}, nil
}

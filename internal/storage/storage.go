// Package storage is the single authoritative store for profiles,
// complaints, chat messages and work notes.
package storage

import (
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/models"
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage is implemented by the gorm-backed Service and by Memory.
// Every error returned is an *apperr.Error: NotFound for missing rows,
// Validation for uniqueness conflicts and Upstream for anything else.
type Storage interface {
	SaveProfile(ctx context.Context, p *models.Profile) error
	UpdateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error)
	ListProfiles(ctx context.Context, role models.Role) ([]models.Profile, error)

	CreateComplaint(ctx context.Context, c *models.Complaint) error
	GetComplaint(ctx context.Context, id string) (*models.Complaint, error)
	// UpdateComplaint loads the complaint under a row lock, applies fn and
	// persists the result atomically. An error from fn aborts without writing.
	UpdateComplaint(ctx context.Context, id string, fn func(*models.Complaint) error) (*models.Complaint, error)
	ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error)

	SaveMessage(ctx context.Context, m *models.Message) error
	// ListMessages returns the thread in (created_at, seq) order. A non-nil
	// since keeps only messages created strictly after it.
	ListMessages(ctx context.Context, complaintID string, since *time.Time) ([]models.Message, error)

	SaveWorkNote(ctx context.Context, n *models.WorkNote) error
	ListWorkNotes(ctx context.Context, complaintID string) ([]models.WorkNote, error)
}

type Service struct {
	DB  *gorm.DB
	log *zap.Logger
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{DB: db, log: log}
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Profile{},
		&models.Complaint{},
		&models.Message{},
		&models.WorkNote{},
	)
}

// translate maps a gorm error onto the apperr taxonomy.
func (s *Service) translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what + " not found")
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Validation("%s already exists", what)
	}
	s.log.Error("storage failure", zap.String("entity", what), zap.Error(err))
	return apperr.Upstream("storage failure", err)
}

func (s *Service) SaveProfile(ctx context.Context, p *models.Profile) error {
	return s.translate(s.DB.WithContext(ctx).Create(p).Error, "profile")
}

func (s *Service) UpdateProfile(ctx context.Context, p *models.Profile) error {
	res := s.DB.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"name":          p.Name,
		"email":         p.Email,
		"phone":         p.Phone,
		"password_hash": p.PasswordHash,
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return s.translate(res.Error, "profile")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("profile not found")
	}
	return nil
}

func (s *Service) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, s.translate(err, "profile")
	}
	return &p, nil
}

func (s *Service) GetProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	var p models.Profile
	if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&p).Error; err != nil {
		return nil, s.translate(err, "profile")
	}
	return &p, nil
}

// ListProfiles returns profiles ordered by username. An empty role lists all.
func (s *Service) ListProfiles(ctx context.Context, role models.Role) ([]models.Profile, error) {
	var out []models.Profile
	q := s.DB.WithContext(ctx).Model(&models.Profile{})
	if role != "" {
		q = q.Where("role = ?", role)
	}
	if err := q.Order("username asc").Find(&out).Error; err != nil {
		return nil, s.translate(err, "profile")
	}
	return out, nil
}

func (s *Service) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	return s.translate(s.DB.WithContext(ctx).Create(c).Error, "complaint")
}

func (s *Service) GetComplaint(ctx context.Context, id string) (*models.Complaint, error) {
	var c models.Complaint
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, s.translate(err, "complaint")
	}
	return &c, nil
}

func (s *Service) UpdateComplaint(ctx context.Context, id string, fn func(*models.Complaint) error) (*models.Complaint, error) {
	var c models.Complaint
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		return tx.Save(&c).Error
	})
	if err != nil {
		return nil, s.translate(err, "complaint")
	}
	return &c, nil
}

func (s *Service) ListComplaints(ctx context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	var out []models.Complaint
	q := s.DB.WithContext(ctx).Model(&models.Complaint{})
	if f.StudentID != "" {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.AssignedTo != "" {
		q = q.Where("assigned_to = ?", f.AssignedTo)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		like := "%" + escapeLike(term) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(student_name) LIKE ?)", like, like, like)
	}
	if err := q.Order("created_at desc").Order("id desc").Find(&out).Error; err != nil {
		return nil, s.translate(err, "complaint")
	}
	return out, nil
}

func (s *Service) SaveMessage(ctx context.Context, m *models.Message) error {
	return s.translate(s.DB.WithContext(ctx).Create(m).Error, "message")
}

func (s *Service) ListMessages(ctx context.Context, complaintID string, since *time.Time) ([]models.Message, error) {
	var out []models.Message
	q := s.DB.WithContext(ctx).Where("complaint_id = ?", complaintID)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	if err := q.Order("created_at asc").Order("seq asc").Find(&out).Error; err != nil {
		return nil, s.translate(err, "message")
	}
	return out, nil
}

func (s *Service) SaveWorkNote(ctx context.Context, n *models.WorkNote) error {
	return s.translate(s.DB.WithContext(ctx).Create(n).Error, "work note")
}

func (s *Service) ListWorkNotes(ctx context.Context, complaintID string) ([]models.WorkNote, error) {
	var out []models.WorkNote
	err := s.DB.WithContext(ctx).
		Where("complaint_id = ?", complaintID).
		Order("created_at asc").Order("seq asc").
		Find(&out).Error
	if err != nil {
		return nil, s.translate(err, "work note")
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

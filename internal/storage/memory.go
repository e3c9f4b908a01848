package storage

import (
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/models"
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Storage used by tests and by STORAGE_DRIVER=memory.
// Values are copied on the way in and out so callers never share state with
// the store.
type Memory struct {
	mu         sync.RWMutex
	profiles   map[string]models.Profile
	complaints map[string]models.Complaint
	messages   map[string][]models.Message
	notes      map[string][]models.WorkNote
	seq        uint64
}

func NewMemory() *Memory {
	return &Memory{
		profiles:   make(map[string]models.Profile),
		complaints: make(map[string]models.Complaint),
		messages:   make(map[string][]models.Message),
		notes:      make(map[string][]models.WorkNote),
	}
}

func clonePhone(p models.Profile) models.Profile {
	if p.Phone != nil {
		v := *p.Phone
		p.Phone = &v
	}
	return p
}

func (m *Memory) SaveProfile(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = p.BeforeCreate(nil)
	if _, ok := m.profiles[p.ID]; ok {
		return apperr.Validation("profile already exists")
	}
	for _, existing := range m.profiles {
		if existing.Username == p.Username {
			return apperr.Validation("profile already exists")
		}
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.profiles[p.ID] = clonePhone(*p)
	return nil
}

func (m *Memory) UpdateProfile(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.profiles[p.ID]
	if !ok {
		return apperr.NotFound("profile not found")
	}
	existing.Name = p.Name
	existing.Email = p.Email
	existing.Phone = p.Phone
	existing.PasswordHash = p.PasswordHash
	existing.UpdatedAt = time.Now()
	m.profiles[p.ID] = clonePhone(existing)
	return nil
}

func (m *Memory) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	if !ok {
		return nil, apperr.NotFound("profile not found")
	}
	out := clonePhone(p)
	return &out, nil
}

func (m *Memory) GetProfileByUsername(_ context.Context, username string) (*models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.profiles {
		if p.Username == username {
			out := clonePhone(p)
			return &out, nil
		}
	}
	return nil, apperr.NotFound("profile not found")
}

func (m *Memory) ListProfiles(_ context.Context, role models.Role) ([]models.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		if role == "" || p.Role == role {
			out = append(out, clonePhone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *Memory) CreateComplaint(_ context.Context, c *models.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = c.BeforeCreate(nil)
	if _, ok := m.complaints[c.ID]; ok {
		return apperr.Validation("complaint already exists")
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	m.complaints[c.ID] = c.Clone()
	return nil
}

func (m *Memory) GetComplaint(_ context.Context, id string) (*models.Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.complaints[id]
	if !ok {
		return nil, apperr.NotFound("complaint not found")
	}
	out := c.Clone()
	return &out, nil
}

// UpdateComplaint holds the write lock for the whole read-modify-write, so
// concurrent updates of any complaint serialize.
func (m *Memory) UpdateComplaint(_ context.Context, id string, fn func(*models.Complaint) error) (*models.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.complaints[id]
	if !ok {
		return nil, apperr.NotFound("complaint not found")
	}
	working := stored.Clone()
	if err := fn(&working); err != nil {
		return nil, err
	}
	working.ID = id
	m.complaints[id] = working.Clone()
	return &working, nil
}

func (m *Memory) ListComplaints(_ context.Context, f models.ComplaintFilter) ([]models.Complaint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	term := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]models.Complaint, 0)
	for _, c := range m.complaints {
		if f.StudentID != "" && c.StudentID != f.StudentID {
			continue
		}
		if f.AssignedTo != "" && !c.IsAssignedTo(f.AssignedTo) {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(c.Title), term) &&
			!strings.Contains(strings.ToLower(c.Description), term) &&
			!strings.Contains(strings.ToLower(c.StudentName), term) {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) SaveMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = msg.BeforeCreate(nil)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	m.seq++
	msg.Seq = m.seq
	m.messages[msg.ComplaintID] = append(m.messages[msg.ComplaintID], *msg)
	return nil
}

func (m *Memory) ListMessages(_ context.Context, complaintID string, since *time.Time) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Message, 0, len(m.messages[complaintID]))
	for _, msg := range m.messages[complaintID] {
		if since != nil && !msg.CreatedAt.After(*since) {
			continue
		}
		out = append(out, msg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (m *Memory) SaveWorkNote(_ context.Context, n *models.WorkNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_ = n.BeforeCreate(nil)
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.seq++
	n.Seq = m.seq
	m.notes[n.ComplaintID] = append(m.notes[n.ComplaintID], *n)
	return nil
}

func (m *Memory) ListWorkNotes(_ context.Context, complaintID string) ([]models.WorkNote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]models.WorkNote(nil), m.notes[complaintID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	if out == nil {
		out = []models.WorkNote{}
	}
	return out, nil
}

var (
	_ Storage = (*Service)(nil)
	_ Storage = (*Memory)(nil)
)

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type Category string

const (
	CategoryPlumbing   Category = "plumbing"
	CategoryElectrical Category = "electrical"
	CategoryHVAC       Category = "hvac"
	CategoryStructural Category = "structural"
	CategoryCleaning   Category = "cleaning"
	CategoryOther      Category = "other"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryPlumbing, CategoryElectrical, CategoryHVAC,
	CategoryStructural, CategoryCleaning, CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool {
	for _, known := range Priorities {
		if p == known {
			return true
		}
	}
	return false
}

// Status is a lifecycle state. The declaration order of Statuses is the only
// permitted direction of travel.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

var Statuses = []Status{StatusSubmitted, StatusAssigned, StatusInProgress, StatusResolved, StatusClosed}

// Rank is the position of s in the lifecycle, or -1 for an unknown status.
func (s Status) Rank() int {
	for i, known := range Statuses {
		if s == known {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool { return s.Rank() >= 0 }

// RequiresAssignee reports whether a complaint in status s must have a worker.
func (s Status) RequiresAssignee() bool { return s.Rank() >= StatusAssigned.Rank() }

// IsResolved reports whether a complaint in status s carries a resolution time.
func (s Status) IsResolved() bool { return s == StatusResolved || s == StatusClosed }

// Complaint is a maintenance request filed by a student.
//
// StudentName and AssignedToName are snapshots taken at write time; renaming
// a profile later does not rewrite them.
type Complaint struct {
	ID               string         `gorm:"primaryKey;type:text" json:"id"`
	Title            string         `gorm:"not null" json:"title"`
	Description      string         `gorm:"type:text;not null" json:"description"`
	Category         Category       `gorm:"type:text;not null;index" json:"category"`
	Priority         Priority       `gorm:"type:text;not null" json:"priority"`
	Status           Status         `gorm:"type:text;not null;index" json:"status"`
	Building         string         `gorm:"not null" json:"building"`
	RoomNumber       string         `gorm:"not null" json:"room_number"`
	SpecificLocation string         `json:"specific_location,omitempty"`
	Images           pq.StringArray `gorm:"type:text[]" json:"images"`
	CompletionImages pq.StringArray `gorm:"type:text[]" json:"completion_images"`
	StudentID        string         `gorm:"type:text;not null;index" json:"student_id"`
	StudentName      string         `json:"student_name"`
	AssignedTo       *string        `gorm:"type:text;index" json:"assigned_to,omitempty"`
	AssignedToName   *string        `json:"assigned_to_name,omitempty"`
	CreatedAt        time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty"`
}

// BeforeCreate generates the complaint id when the caller did not supply one.
func (c *Complaint) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// IsAssignedTo reports whether workerID is the current assignee.
func (c *Complaint) IsAssignedTo(workerID string) bool {
	return c.AssignedTo != nil && *c.AssignedTo == workerID
}

// Clone returns a copy that shares no slices or pointers with c.
func (c Complaint) Clone() Complaint {
	out := c
	out.Images = append(pq.StringArray(nil), c.Images...)
	out.CompletionImages = append(pq.StringArray(nil), c.CompletionImages...)
	if c.AssignedTo != nil {
		v := *c.AssignedTo
		out.AssignedTo = &v
	}
	if c.AssignedToName != nil {
		v := *c.AssignedToName
		out.AssignedToName = &v
	}
	if c.ResolvedAt != nil {
		v := *c.ResolvedAt
		out.ResolvedAt = &v
	}
	return out
}

// ComplaintFilter selects complaints. Empty fields do not constrain.
// StudentID and AssignedTo carry the caller's scope; Search, Status and
// Category come from the caller's query.
type ComplaintFilter struct {
	Search     string
	Status     Status
	Category   Category
	StudentID  string
	AssignedTo string
}

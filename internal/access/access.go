// Package access holds the role rules of the portal. CanAct is the only
// place that decides who may do what to a complaint.
package access

import "campusfix/backend/internal/models"

type Operation int

const (
	OpView Operation = iota
	OpCreate
	OpAssign
	OpUpdateStatus
	OpAddNote
	OpViewNotes
	OpPostMessage
	OpReadMessages
	OpManageUsers
	OpViewStats
)

func (op Operation) String() string {
	switch op {
	case OpView:
		return "view"
	case OpCreate:
		return "create"
	case OpAssign:
		return "assign"
	case OpUpdateStatus:
		return "update_status"
	case OpAddNote:
		return "add_note"
	case OpViewNotes:
		return "view_notes"
	case OpPostMessage:
		return "post_message"
	case OpReadMessages:
		return "read_messages"
	case OpManageUsers:
		return "manage_users"
	case OpViewStats:
		return "view_stats"
	}
	return "unknown"
}

// CanAct reports whether actor may perform op. Complaint-bound operations
// need c; a nil complaint denies them. The actor must come from the profile
// store, never from request input.
func CanAct(actor models.Profile, c *models.Complaint, op Operation) bool {
	if actor.ID == "" || !actor.Role.Valid() {
		return false
	}

	switch op {
	case OpCreate:
		return actor.Role == models.RoleStudent
	case OpManageUsers:
		return actor.Role == models.RoleAdmin
	case OpViewStats:
		return actor.Role == models.RoleAdmin || actor.Role == models.RoleMaintenance
	}

	if c == nil {
		return false
	}

	switch op {
	case OpAssign:
		return actor.Role == models.RoleAdmin
	case OpUpdateStatus:
		return actor.Role == models.RoleAdmin || isAssignee(actor, c)
	case OpView, OpAddNote, OpViewNotes, OpPostMessage, OpReadMessages:
		return isParty(actor, c)
	}
	return false
}

// isParty is true for the admin, the owning student and the assigned worker.
func isParty(actor models.Profile, c *models.Complaint) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RoleStudent:
		return c.StudentID == actor.ID
	case models.RoleMaintenance:
		return c.IsAssignedTo(actor.ID)
	}
	return false
}

func isAssignee(actor models.Profile, c *models.Complaint) bool {
	return actor.Role == models.RoleMaintenance && c.IsAssignedTo(actor.ID)
}

// Scope narrows f to what actor is allowed to list, overriding any scope
// fields already set. ok is false when the actor can list nothing.
func Scope(actor models.Profile, f models.ComplaintFilter) (scoped models.ComplaintFilter, ok bool) {
	f.StudentID = ""
	f.AssignedTo = ""
	if actor.ID == "" {
		return f, false
	}
	switch actor.Role {
	case models.RoleAdmin:
		return f, true
	case models.RoleStudent:
		f.StudentID = actor.ID
		return f, true
	case models.RoleMaintenance:
		f.AssignedTo = actor.ID
		return f, true
	}
	return f, false
}

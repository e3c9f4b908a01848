package config

import "campusfix/backend/internal/models"

const (
	// Upload limits
	MaxImageBytes      = 5 << 20
	ImageContentPrefix = "image/"
	ImageObjectPrefix  = "complaint-images/"

	// Live push
	ComplaintChannelPrefix  = "complaint:"
	ComplaintChannelPattern = ComplaintChannelPrefix + "*"
)

// PriorityRank orders priorities for display; higher sorts first.
var PriorityRank = map[models.Priority]int{
	models.PriorityLow:    1,
	models.PriorityMedium: 2,
	models.PriorityHigh:   3,
	models.PriorityUrgent: 4,
}

// PendingStatuses are the states counted as open work on dashboards.
var PendingStatuses = []models.Status{
	models.StatusSubmitted,
	models.StatusAssigned,
	models.StatusInProgress,
}

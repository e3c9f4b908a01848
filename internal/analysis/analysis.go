// Package analysis ranks complaints for display and computes dashboard
// statistics.
package analysis

import (
	"campusfix/backend/internal/config"
	"campusfix/backend/internal/models"
	"sort"
)

// PriorityRank returns the display rank of p; higher is more pressing.
// It returns 0 if the priority is not recognized.
func PriorityRank(p models.Priority) int {
	return config.PriorityRank[p]
}

// SortByPriority orders complaints most pressing first, newest first within
// one priority. It sorts in place.
func SortByPriority(cs []models.Complaint) {
	sort.SliceStable(cs, func(i, j int) bool {
		ri, rj := PriorityRank(cs[i].Priority), PriorityRank(cs[j].Priority)
		if ri != rj {
			return ri > rj
		}
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})
}

// SystemStats is the administrator dashboard summary.
type SystemStats struct {
	Total      int                     `json:"total"`
	Resolved   int                     `json:"resolved"`
	Pending    int                     `json:"pending"`
	ByCategory map[models.Category]int `json:"by_category"`
	ByPriority map[models.Priority]int `json:"by_priority"`
	ByStatus   map[models.Status]int   `json:"by_status"`
	// AvgResolutionDays averages resolved_at - created_at over resolved
	// complaints; zero when none are resolved.
	AvgResolutionDays float64 `json:"avg_resolution_days"`
}

// WorkerStats is the maintenance dashboard summary for one worker.
type WorkerStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Urgent    int `json:"urgent"`
}

func isPending(s models.Status) bool {
	for _, p := range config.PendingStatuses {
		if s == p {
			return true
		}
	}
	return false
}

// ComputeStats summarises cs.
func ComputeStats(cs []models.Complaint) SystemStats {
	st := SystemStats{
		Total:      len(cs),
		ByCategory: make(map[models.Category]int),
		ByPriority: make(map[models.Priority]int),
		ByStatus:   make(map[models.Status]int),
	}
	var resolvedDays float64
	var resolvedCount int
	for _, c := range cs {
		st.ByCategory[c.Category]++
		st.ByPriority[c.Priority]++
		st.ByStatus[c.Status]++
		if c.Status == models.StatusResolved {
			st.Resolved++
		}
		if isPending(c.Status) {
			st.Pending++
		}
		if c.ResolvedAt != nil {
			resolvedDays += c.ResolvedAt.Sub(c.CreatedAt).Hours() / 24
			resolvedCount++
		}
	}
	if resolvedCount > 0 {
		st.AvgResolutionDays = resolvedDays / float64(resolvedCount)
	}
	return st
}

// ComputeWorkerStats summarises the complaints assigned to one worker.
// Completed counts resolved and closed; Urgent counts open urgent work.
func ComputeWorkerStats(cs []models.Complaint) WorkerStats {
	st := WorkerStats{Total: len(cs)}
	for _, c := range cs {
		switch {
		case c.Status.IsResolved():
			st.Completed++
		case isPending(c.Status):
			st.Pending++
			if c.Priority == models.PriorityUrgent {
				st.Urgent++
			}
		}
	}
	return st
}

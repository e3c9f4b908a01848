package storage_test

import (
	"campusfix/backend/internal/apperr"
	"campusfix/backend/internal/models"
	"campusfix/backend/internal/storage"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ProfileUsernameIsUnique(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()

	require.NoError(t, m.SaveProfile(ctx, &models.Profile{Username: "student1", Name: "John", Role: models.RoleStudent}))
	err := m.SaveProfile(ctx, &models.Profile{Username: "student1", Name: "Other", Role: models.RoleStudent})

	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestMemory_GetProfileByUsername(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	p := &models.Profile{Username: "admin1", Name: "Jane Admin", Role: models.RoleAdmin}
	require.NoError(t, m.SaveProfile(ctx, p))

	got, err := m.GetProfileByUsername(ctx, "admin1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = m.GetProfileByUsername(ctx, "nobody")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestMemory_ListProfilesByRole(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	require.NoError(t, m.SaveProfile(ctx, &models.Profile{Username: "m2", Role: models.RoleMaintenance}))
	require.NoError(t, m.SaveProfile(ctx, &models.Profile{Username: "m1", Role: models.RoleMaintenance}))
	require.NoError(t, m.SaveProfile(ctx, &models.Profile{Username: "s1", Role: models.RoleStudent}))

	workers, err := m.ListProfiles(ctx, models.RoleMaintenance)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, "m1", workers[0].Username)

	all, err := m.ListProfiles(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemory_ComplaintsAreCopied(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	c := &models.Complaint{Title: "Broken light", Images: []string{"a.png"}}
	require.NoError(t, m.CreateComplaint(ctx, c))

	c.Images[0] = "mutated.png"
	got, err := m.GetComplaint(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.png", got.Images[0])

	got.Title = "changed"
	again, _ := m.GetComplaint(ctx, c.ID)
	assert.Equal(t, "Broken light", again.Title)
}

func TestMemory_UpdateComplaint(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	c := &models.Complaint{Title: "Heater", Status: models.StatusSubmitted}
	require.NoError(t, m.CreateComplaint(ctx, c))

	_, err := m.UpdateComplaint(ctx, c.ID, func(c *models.Complaint) error {
		c.Status = models.StatusClosed
		return apperr.Validation("rejected")
	})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	unchanged, _ := m.GetComplaint(ctx, c.ID)
	assert.Equal(t, models.StatusSubmitted, unchanged.Status, "failed callback must not write")

	updated, err := m.UpdateComplaint(ctx, c.ID, func(c *models.Complaint) error {
		c.Status = models.StatusAssigned
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, updated.Status)

	_, err = m.UpdateComplaint(ctx, "missing", func(*models.Complaint) error { return nil })
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

// TestMemory_ListComplaintsFilterCombination covers category AND status AND ordering.
func TestMemory_ListComplaintsFilterCombination(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []models.Complaint{
		{ID: "c1", Title: "Leak", Category: models.CategoryPlumbing, Status: models.StatusSubmitted, StudentName: "John", CreatedAt: base},
		{ID: "c2", Title: "Cold", Category: models.CategoryHVAC, Status: models.StatusResolved, StudentName: "John", CreatedAt: base.Add(time.Hour)},
		{ID: "c3", Title: "Drain", Category: models.CategoryPlumbing, Status: models.StatusResolved, StudentName: "Sara", CreatedAt: base.Add(2 * time.Hour)},
	}
	for i := range seed {
		require.NoError(t, m.CreateComplaint(ctx, &seed[i]))
	}

	out, err := m.ListComplaints(ctx, models.ComplaintFilter{Category: models.CategoryPlumbing, Status: models.StatusResolved})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c3", out[0].ID)

	out, _ = m.ListComplaints(ctx, models.ComplaintFilter{Search: "sara"})
	require.Len(t, out, 1)
	assert.Equal(t, "c3", out[0].ID)

	out, _ = m.ListComplaints(ctx, models.ComplaintFilter{})
	require.Len(t, out, 3)
	assert.Equal(t, []string{"c3", "c2", "c1"}, []string{out[0].ID, out[1].ID, out[2].ID})
}

func TestMemory_MessagesOrderedAndSince(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.SaveMessage(ctx, &models.Message{ComplaintID: "c1", Body: "second", CreatedAt: at.Add(time.Second)}))
	require.NoError(t, m.SaveMessage(ctx, &models.Message{ComplaintID: "c1", Body: "first", CreatedAt: at}))
	require.NoError(t, m.SaveMessage(ctx, &models.Message{ComplaintID: "c1", Body: "tie", CreatedAt: at.Add(time.Second)}))
	require.NoError(t, m.SaveMessage(ctx, &models.Message{ComplaintID: "other", Body: "elsewhere"}))

	out, err := m.ListMessages(ctx, "c1", nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"first", "second", "tie"}, []string{out[0].Body, out[1].Body, out[2].Body})

	since, err := m.ListMessages(ctx, "c1", &at)
	require.NoError(t, err)
	assert.Len(t, since, 2, "since is exclusive")
}

func TestMemory_WorkNotesSeparateFromMessages(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	require.NoError(t, m.SaveWorkNote(ctx, &models.WorkNote{ComplaintID: "c1", Body: "parts ordered"}))

	notes, err := m.ListWorkNotes(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, notes, 1)

	msgs, err := m.ListMessages(ctx, "c1", nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	empty, err := m.ListWorkNotes(ctx, "none")
	require.NoError(t, err)
	assert.NotNil(t, empty)
}

func TestMemory_ConcurrentUpdatesSerialize(t *testing.T) {
	ctx := context.Background()
	m := storage.NewMemory()
	c := &models.Complaint{Title: "Counter"}
	require.NoError(t, m.CreateComplaint(ctx, c))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.UpdateComplaint(ctx, c.ID, func(c *models.Complaint) error {
				c.Images = append(c.Images, "x")
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := m.GetComplaint(ctx, c.ID)
	assert.Len(t, got.Images, 50)
}

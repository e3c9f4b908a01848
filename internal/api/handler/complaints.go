package handler

import (
	"campusfix/backend/internal/analysis"
	"campusfix/backend/internal/blob"
	"campusfix/backend/internal/complaint"
	"campusfix/backend/internal/config"
	"campusfix/backend/internal/models"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// readFiles loads the files of one multipart field. A file over the upload
// limit is passed through truncated so the blob store rejects it.
func readFiles(form *multipart.Form, field string) ([]blob.File, error) {
	headers := form.File[field]
	files := make([]blob.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, config.MaxImageBytes+1))
		f.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, blob.File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: data})
	}
	return files, nil
}

// CreateComplaint accepts JSON with image URLs, or a multipart form whose
// "images" files are uploaded once the request has passed every check.
// Failed uploads are skipped and reported next to the complaint.
func (h *Handler) CreateComplaint(c *gin.Context) {
	var (
		in     complaint.NewComplaint
		upload *blob.UploadResult
	)

	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			h.badRequest(c, "invalid multipart form")
			return
		}
		in = complaint.NewComplaint{
			Title:            c.PostForm("title"),
			Description:      c.PostForm("description"),
			Category:         models.Category(c.PostForm("category")),
			Priority:         models.Priority(c.PostForm("priority")),
			Building:         c.PostForm("building"),
			RoomNumber:       c.PostForm("room_number"),
			SpecificLocation: c.PostForm("specific_location"),
		}
		files, err := readFiles(form, "images")
		if err != nil {
			h.badRequest(c, "unreadable image file")
			return
		}
		if len(files) > 0 {
			if err := h.Complaints.CheckCreate(c.Request.Context(), currentUserID(c), in); err != nil {
				h.writeError(c, err)
				return
			}
			res := blob.UploadAll(c.Request.Context(), h.Blobs, files)
			upload = &res
			in.ImageURLs = res.URLs
		}
	} else if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	created, err := h.Complaints.Create(c.Request.Context(), currentUserID(c), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"complaint": created, "upload": upload})
}

// ListComplaints filters by ?search=, ?status= and ?category= within the
// caller's scope. ?sort=priority orders urgent first.
func (h *Handler) ListComplaints(c *gin.Context) {
	f := models.ComplaintFilter{
		Search:   c.Query("search"),
		Status:   models.Status(c.Query("status")),
		Category: models.Category(c.Query("category")),
	}
	list, err := h.Complaints.List(c.Request.Context(), currentUserID(c), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	switch c.Query("sort") {
	case "", "newest":
	case "priority":
		analysis.SortByPriority(list)
	default:
		h.badRequest(c, fmt.Sprintf("unknown sort %q", c.Query("sort")))
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) GetComplaint(c *gin.Context) {
	got, err := h.Complaints.Get(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

type assignRequest struct {
	MaintenanceID string `json:"maintenance_id" binding:"required"`
}

func (h *Handler) AssignComplaint(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "maintenance_id is required")
		return
	}
	updated, err := h.Complaints.Assign(c.Request.Context(), c.Param("id"), req.MaintenanceID, currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type statusRequest struct {
	Status           models.Status `json:"status" binding:"required"`
	CompletionImages []string      `json:"completion_images"`
}

// UpdateStatus moves a complaint forward. A multipart form may carry
// "completion_images" files, uploaded after the change is checked and
// before it is applied.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var (
		req    statusRequest
		upload *blob.UploadResult
	)

	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			h.badRequest(c, "invalid multipart form")
			return
		}
		req.Status = models.Status(c.PostForm("status"))
		files, err := readFiles(form, "completion_images")
		if err != nil {
			h.badRequest(c, "unreadable image file")
			return
		}
		if len(files) > 0 {
			err := h.Complaints.CheckUpdateStatus(c.Request.Context(), c.Param("id"), currentUserID(c), req.Status, true)
			if err != nil {
				h.writeError(c, err)
				return
			}
			res := blob.UploadAll(c.Request.Context(), h.Blobs, files)
			upload = &res
			req.CompletionImages = res.URLs
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "status is required")
		return
	}

	updated, err := h.Complaints.UpdateStatus(c.Request.Context(), c.Param("id"), currentUserID(c), req.Status, req.CompletionImages)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"complaint": updated, "upload": upload})
}

type textRequest struct {
	Body string `json:"body"`
}

func (h *Handler) AddNote(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	note, err := h.Complaints.AddNote(c.Request.Context(), c.Param("id"), currentUserID(c), req.Body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *Handler) ListNotes(c *gin.Context) {
	notes, err := h.Complaints.ListNotes(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

// Stats returns the dashboard summary for the caller's role.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Complaints.Stats(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

package handler_test

import (
	"bytes"
	"campusfix/backend/internal/api/handler"
	"campusfix/backend/internal/auth"
	"campusfix/backend/internal/chathub"
	"campusfix/backend/internal/complaint"
	"campusfix/backend/internal/models"
	"campusfix/backend/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type nopNotifier struct{}

func (nopNotifier) ComplaintSubmitted(models.Complaint) {}
func (nopNotifier) StatusChanged(models.Complaint)      {}
func (nopNotifier) Assigned(models.Complaint)           {}

// fakeBlobs fails every upload whose data starts with "bad".
type fakeBlobs struct{ calls, n int }

func (f *fakeBlobs) Upload(_ context.Context, data []byte, _ string) (string, error) {
	f.calls++
	if bytes.HasPrefix(data, []byte("bad")) {
		return "", errors.New("rejected")
	}
	f.n++
	return fmt.Sprintf("https://blobs.test/img-%d.png", f.n), nil
}

type apiFixture struct {
	t      *testing.T
	router *gin.Engine
	hub    *chathub.ManagerService
	blobs  *fakeBlobs
	ids    map[string]string
	tokens map[string]string
}

func newAPI(t *testing.T, withHub bool) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	store := storage.NewMemory()
	provider := auth.NewProvider(store, auth.NewTokenService("secret", "campusfix", time.Hour), zap.NewNop())
	complaints := complaint.NewService(store, nopNotifier{}, zap.NewNop())

	var hub *chathub.ManagerService
	var pub chathub.Publisher
	if withHub {
		hub = chathub.NewManagerService(nil, chathub.NewParticipants(store, complaints), zap.NewNop())
		runCtx, cancel := context.WithCancel(ctx)
		go hub.Run(runCtx)
		<-hub.Ready()
		t.Cleanup(cancel)
		pub = hub
	}
	chat := chathub.NewService(store, complaints, pub, zap.NewNop())

	f := &apiFixture{t: t, hub: hub, blobs: &fakeBlobs{}, ids: map[string]string{}, tokens: map[string]string{}}
	for _, u := range []auth.NewUser{
		{Username: "admin1", Name: "Jane Admin", Role: models.RoleAdmin},
		{Username: "student1", Name: "John Student", Role: models.RoleStudent},
		{Username: "student2", Name: "Sara Student", Role: models.RoleStudent},
		{Username: "maintenance1", Name: "Mike Maintenance", Role: models.RoleMaintenance},
		{Username: "maintenance2", Name: "Tom Maintenance", Role: models.RoleMaintenance},
	} {
		u.Password = "password123"
		p, err := provider.Register(ctx, auth.SystemActor, u)
		require.NoError(t, err)
		_, token, err := provider.SignIn(ctx, u.Username, u.Password)
		require.NoError(t, err)
		f.ids[u.Username] = p.ID
		f.tokens[u.Username] = token
	}

	f.router = handler.NewHandler(provider, complaints, chat, hub, f.blobs, zap.NewNop()).Router(nil)
	return f
}

func (f *apiFixture) do(method, path, user string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[user])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

type createResponse struct {
	Complaint models.Complaint `json:"complaint"`
	Upload    *struct {
		Attempted int      `json:"attempted"`
		Succeeded int      `json:"succeeded"`
		URLs      []string `json:"urls"`
	} `json:"upload"`
}

func leakyFaucet() map[string]any {
	return map[string]any{
		"title":       "Leaky Faucet",
		"description": "Dripping all night",
		"category":    "plumbing",
		"priority":    "medium",
		"building":    "Johnson Hall",
		"room_number": "204",
	}
}

func (f *apiFixture) file(user string) string {
	f.t.Helper()
	w := f.do(http.MethodPost, "/api/complaints", user, leakyFaucet())
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[createResponse](f.t, w).Complaint.ID
}

func TestSignIn(t *testing.T) {
	f := newAPI(t, false)

	ok := f.do(http.MethodPost, "/api/auth/sign-in", "", map[string]string{"username": "student1", "password": "password123"})
	bad := f.do(http.MethodPost, "/api/auth/sign-in", "", map[string]string{"username": "student1", "password": "wrong-password"})
	missing := f.do(http.MethodPost, "/api/auth/sign-in", "", map[string]string{"username": "student1"})

	require.Equal(t, http.StatusOK, ok.Code)
	assert.Equal(t, f.ids["student1"], decode[map[string]string](t, ok)["user_id"])
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestAuthMiddleware(t *testing.T) {
	f := newAPI(t, false)

	anonymous := f.do(http.MethodGet, "/api/auth/me", "", nil)
	me := f.do(http.MethodGet, "/api/auth/me", "maintenance1", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me?token="+f.tokens["admin1"], nil)
	viaQuery := httptest.NewRecorder()
	f.router.ServeHTTP(viaQuery, req)

	assert.Equal(t, http.StatusUnauthorized, anonymous.Code)
	require.Equal(t, http.StatusOK, me.Code)
	profile := decode[models.Profile](t, me)
	assert.Equal(t, models.RoleMaintenance, profile.Role)
	assert.NotContains(t, me.Body.String(), "password")
	assert.Equal(t, http.StatusOK, viaQuery.Code)
}

func TestComplaintLifecycleOverHTTP(t *testing.T) {
	// Arrange
	f := newAPI(t, false)
	id := f.file("student1")
	base := "/api/complaints/" + id

	// Act
	assign := f.do(http.MethodPost, base+"/assign", "admin1", map[string]string{"maintenance_id": f.ids["maintenance1"]})
	progress := f.do(http.MethodPatch, base+"/status", "maintenance1", map[string]string{"status": "in-progress"})
	resolve := f.do(http.MethodPatch, base+"/status", "maintenance1", map[string]any{
		"status": "resolved", "completion_images": []string{"https://blobs.test/done.png"},
	})
	back := f.do(http.MethodPatch, base+"/status", "admin1", map[string]string{"status": "assigned"})

	// Assert
	require.Equal(t, http.StatusOK, assign.Code, assign.Body.String())
	assert.Equal(t, models.StatusAssigned, decode[models.Complaint](t, assign).Status)
	require.Equal(t, http.StatusOK, progress.Code, progress.Body.String())
	require.Equal(t, http.StatusOK, resolve.Code, resolve.Body.String())
	resolved := decode[createResponse](t, resolve).Complaint
	assert.Equal(t, models.StatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, []string{"https://blobs.test/done.png"}, []string(resolved.CompletionImages))
	assert.Equal(t, http.StatusBadRequest, back.Code)
}

func TestErrorMapping(t *testing.T) {
	f := newAPI(t, false)
	id := f.file("student1")

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		status int
	}{
		{"validation", http.MethodPost, "/api/complaints", "student1", map[string]string{"title": "x"}, http.StatusBadRequest},
		{"admin cannot file", http.MethodPost, "/api/complaints", "admin1", leakyFaucet(), http.StatusForbidden},
		{"student cannot assign", http.MethodPost, "/api/complaints/" + id + "/assign", "student1", map[string]string{"maintenance_id": f.ids["maintenance1"]}, http.StatusForbidden},
		{"unassigned worker", http.MethodPatch, "/api/complaints/" + id + "/status", "maintenance1", map[string]string{"status": "in-progress"}, http.StatusForbidden},
		{"hidden from other student", http.MethodGet, "/api/complaints/" + id, "student2", nil, http.StatusNotFound},
		{"unknown complaint", http.MethodGet, "/api/complaints/nope", "admin1", nil, http.StatusNotFound},
		{"bad status filter", http.MethodGet, "/api/complaints?status=lost", "admin1", nil, http.StatusBadRequest},
		{"bad sort", http.MethodGet, "/api/complaints?sort=random", "admin1", nil, http.StatusBadRequest},
		{"student stats", http.MethodGet, "/api/stats", "student1", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, w)["error"])
		})
	}
}

func TestListComplaints_ScopeAndFilters(t *testing.T) {
	f := newAPI(t, false)
	mine := f.file("student1")
	f.file("student2")
	w := f.do(http.MethodPost, "/api/complaints", "student1", map[string]any{
		"title": "Broken light", "description": "Flickers", "category": "electrical",
		"priority": "urgent", "building": "Library", "room_number": "1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	own := decode[[]models.Complaint](t, f.do(http.MethodGet, "/api/complaints", "student1", nil))
	all := decode[[]models.Complaint](t, f.do(http.MethodGet, "/api/complaints", "admin1", nil))
	plumbing := decode[[]models.Complaint](t, f.do(http.MethodGet, "/api/complaints?category=plumbing&search=FAUCET", "student1", nil))
	byPriority := decode[[]models.Complaint](t, f.do(http.MethodGet, "/api/complaints?sort=priority", "admin1", nil))

	assert.Len(t, own, 2)
	assert.Len(t, all, 3)
	require.Len(t, plumbing, 1)
	assert.Equal(t, mine, plumbing[0].ID)
	assert.Equal(t, models.PriorityUrgent, byPriority[0].Priority)
}

func multipartBody(t *testing.T, fields map[string]string, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCreateComplaint_PartialUpload(t *testing.T) {
	// Arrange
	f := newAPI(t, false)
	fields := map[string]string{}
	for k, v := range leakyFaucet() {
		fields[k] = v.(string)
	}
	body, contentType := multipartBody(t, fields, "images", map[string][]byte{
		"a.png": pngHeader,
		"b.png": []byte("bad data"),
		"c.png": pngHeader,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/complaints", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+f.tokens["student1"])
	w := httptest.NewRecorder()

	// Act
	f.router.ServeHTTP(w, req)

	// Assert
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[createResponse](t, w)
	require.NotNil(t, res.Upload)
	assert.Equal(t, 3, res.Upload.Attempted)
	assert.Equal(t, 2, res.Upload.Succeeded)
	assert.Len(t, res.Complaint.Images, 2)
	assert.Equal(t, models.StatusSubmitted, res.Complaint.Status)
}

func TestNotesAndStats(t *testing.T) {
	f := newAPI(t, false)
	id := f.file("student1")
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/complaints/"+id+"/assign", "admin1", map[string]string{"maintenance_id": f.ids["maintenance1"]}).Code)

	added := f.do(http.MethodPost, "/api/complaints/"+id+"/notes", "maintenance1", map[string]string{"body": "needs a new washer"})
	blank := f.do(http.MethodPost, "/api/complaints/"+id+"/notes", "maintenance1", map[string]string{"body": " "})
	notes := decode[[]models.WorkNote](t, f.do(http.MethodGet, "/api/complaints/"+id+"/notes", "admin1", nil))
	admin := f.do(http.MethodGet, "/api/stats", "admin1", nil)
	worker := f.do(http.MethodGet, "/api/stats", "maintenance1", nil)

	assert.Equal(t, http.StatusCreated, added.Code)
	assert.Equal(t, http.StatusBadRequest, blank.Code)
	require.Len(t, notes, 1)
	assert.Equal(t, "Mike Maintenance", notes[0].AuthorName)
	require.Equal(t, http.StatusOK, admin.Code)
	assert.Contains(t, admin.Body.String(), `"system"`)
	require.Equal(t, http.StatusOK, worker.Code)
	assert.Contains(t, worker.Body.String(), `"worker"`)
}

func TestAdminUsers(t *testing.T) {
	f := newAPI(t, false)

	created := f.do(http.MethodPost, "/api/admin/users", "admin1", map[string]string{
		"username": "maintenance3", "password": "password123", "name": "Ray", "role": "maintenance",
	})
	forbidden := f.do(http.MethodPost, "/api/admin/users", "student1", map[string]string{
		"username": "x", "password": "password123", "name": "X", "role": "admin",
	})
	workers := decode[[]models.Profile](t, f.do(http.MethodGet, "/api/admin/users?role=maintenance", "admin1", nil))

	assert.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.Len(t, workers, 3)
}

func TestMessages_PollingWithSince(t *testing.T) {
	f := newAPI(t, false)
	id := f.file("student1")
	path := "/api/complaints/" + id + "/messages"

	first := f.do(http.MethodPost, path, "student1", map[string]string{"body": "hello?"})
	require.Equal(t, http.StatusCreated, first.Code)
	cursor := decode[models.Message](t, first).CreatedAt
	time.Sleep(2 * time.Millisecond)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, path, "admin1", map[string]string{"body": "on it"}).Code)

	all := decode[[]models.Message](t, f.do(http.MethodGet, path, "student1", nil))
	newer := decode[[]models.Message](t, f.do(http.MethodGet, path+"?since="+cursor.Format(time.RFC3339Nano), "student1", nil))
	outsider := f.do(http.MethodGet, path, "student2", nil)
	badSince := f.do(http.MethodGet, path+"?since=yesterday", "student1", nil)

	assert.Len(t, all, 2)
	require.Len(t, newer, 1)
	assert.Equal(t, "on it", newer[0].Body)
	assert.Equal(t, http.StatusForbidden, outsider.Code)
	assert.Equal(t, http.StatusBadRequest, badSince.Code)
}

func TestWebSocket_LivePush(t *testing.T) {
	// Arrange
	f := newAPI(t, true)
	id := f.file("student1")
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/complaints/" + id + "/ws?token=" + f.tokens["student1"]

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return f.hub.ClientCount(id) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Act
	posted := f.do(http.MethodPost, "/api/complaints/"+id+"/messages", "admin1", map[string]string{"body": "technician booked"})
	require.Equal(t, http.StatusCreated, posted.Code)

	// Assert
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.MessageEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventMessage, ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "technician booked", ev.Message.Body)

	// A blank frame comes back as an error event for this client only.
	require.NoError(t, conn.WriteJSON(map[string]string{"body": "  "}))
	var reply models.MessageEvent
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, models.EventError, reply.Type)
	assert.NotEmpty(t, reply.Error)
}

func TestWebSocket_OutsiderRejected(t *testing.T) {
	f := newAPI(t, true)
	id := f.file("student1")
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/complaints/" + id + "/ws?token=" + f.tokens["student2"]

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebSocket_ReassignedWorkerStopsReceiving(t *testing.T) {
	// Arrange
	f := newAPI(t, true)
	id := f.file("student1")
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/complaints/"+id+"/assign", "admin1", map[string]string{"maintenance_id": f.ids["maintenance1"]}).Code)
	srv := httptest.NewServer(f.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/complaints/" + id + "/ws?token=" + f.tokens["maintenance1"]

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return f.hub.ClientCount(id) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Act
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/api/complaints/"+id+"/assign", "admin1", map[string]string{"maintenance_id": f.ids["maintenance2"]}).Code)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/api/complaints/"+id+"/messages", "student1", map[string]string{"body": "private to new worker"}).Code)

	// Assert
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.MessageEvent
	err = conn.ReadJSON(&ev)
	require.Error(t, err, "former worker received %+v", ev)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived), "got %v", err)
	assert.Equal(t, 0, f.hub.ClientCount(id))
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/api/complaints/"+id+"/messages", "maintenance1", nil).Code)
}

func (f *apiFixture) doMultipart(method, path, user string, fields map[string]string, field string, files map[string][]byte) *httptest.ResponseRecorder {
	f.t.Helper()
	body, contentType := multipartBody(f.t, fields, field, files)
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+f.tokens[user])
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateComplaint_RejectedRequestUploadsNothing(t *testing.T) {
	f := newAPI(t, false)
	fields := map[string]string{}
	for k, v := range leakyFaucet() {
		fields[k] = v.(string)
	}
	images := map[string][]byte{"a.png": pngHeader, "b.png": pngHeader}

	worker := f.doMultipart(http.MethodPost, "/api/complaints", "maintenance1", fields, "images", images)
	delete(fields, "title")
	invalid := f.doMultipart(http.MethodPost, "/api/complaints", "student1", fields, "images", images)

	assert.Equal(t, http.StatusForbidden, worker.Code, worker.Body.String())
	assert.Equal(t, http.StatusBadRequest, invalid.Code, invalid.Body.String())
	assert.Zero(t, f.blobs.calls)
}

func TestUpdateStatus_CompletionImages(t *testing.T) {
	// Arrange
	f := newAPI(t, false)
	id := f.file("student1")
	base := "/api/complaints/" + id
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, base+"/assign", "admin1", map[string]string{"maintenance_id": f.ids["maintenance1"]}).Code)
	images := map[string][]byte{"done.png": pngHeader}

	// Act
	outsider := f.doMultipart(http.MethodPatch, base+"/status", "maintenance2", map[string]string{"status": "resolved"}, "completion_images", images)
	notResolving := f.doMultipart(http.MethodPatch, base+"/status", "maintenance1", map[string]string{"status": "in-progress"}, "completion_images", images)
	callsBefore := f.blobs.calls
	resolved := f.doMultipart(http.MethodPatch, base+"/status", "maintenance1", map[string]string{"status": "resolved"}, "completion_images", images)

	// Assert
	assert.Equal(t, http.StatusForbidden, outsider.Code, outsider.Body.String())
	assert.Equal(t, http.StatusBadRequest, notResolving.Code, notResolving.Body.String())
	assert.Zero(t, callsBefore)
	require.Equal(t, http.StatusOK, resolved.Code, resolved.Body.String())
	res := decode[createResponse](t, resolved)
	assert.Equal(t, models.StatusResolved, res.Complaint.Status)
	assert.Len(t, res.Complaint.CompletionImages, 1)
	assert.Equal(t, 1, f.blobs.calls)
}

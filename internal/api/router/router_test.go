package router

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/constituent-transfer/internal/api/dto"
	"github.com/cuongbtq/constituent-transfer/internal/api/handler"
	"github.com/cuongbtq/constituent-transfer/internal/domain"
	"github.com/cuongbtq/constituent-transfer/internal/transfer"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSession = "session-1"
	testOwner   = "owner-1"
	serverURL   = "http://api.test"
)

type fakeSessions map[string]string

func (f fakeSessions) UserIDForSession(_ context.Context, sessionID string) (string, error) {
	if id, ok := f[sessionID]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: unknown session", domain.ErrUnauthorized)
}

// sliceStore keeps records in insertion order
type sliceStore struct {
	mu      sync.Mutex
	records []domain.Constituent
}

func (s *sliceStore) owned(ownerID string) []domain.Constituent {
	var out []domain.Constituent
	for _, c := range s.records {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out
}

func (s *sliceStore) Count(_ context.Context, ownerID string, _ domain.PaginationSpec) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owned(ownerID)), nil
}

func (s *sliceStore) List(_ context.Context, ownerID string, spec domain.PaginationSpec) ([]domain.Constituent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.owned(ownerID)
	start := spec.Offset()
	if start >= len(all) {
		return nil, nil
	}
	end := min(start+spec.Limit, len(all))
	return all[start:end], nil
}

func (s *sliceStore) GetByEmails(_ context.Context, ownerID string, emails []string) ([]domain.Constituent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Constituent
	for _, c := range s.owned(ownerID) {
		for _, e := range emails {
			if c.Email == e {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (s *sliceStore) CreateMany(_ context.Context, constituents []domain.Constituent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, constituents...)
	return nil
}

func (s *sliceStore) UpdateMany(_ context.Context, constituents []domain.Constituent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range constituents {
		for i := range s.records {
			if s.records[i].ID == u.ID {
				s.records[i] = u
			}
		}
	}
	return nil
}

type testEnv struct {
	router  *gin.Engine
	manager *transfer.Manager
	store   *sliceStore
}

func newTestEnv(t *testing.T, seed int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := &sliceStore{}
	for i := 0; i < seed; i++ {
		store.records = append(store.records, domain.Constituent{
			ID:        fmt.Sprintf("c-%d", i),
			OwnerID:   testOwner,
			Email:     fmt.Sprintf("person%d@example.com", i),
			FirstName: "Ada",
			LastName:  "Lovelace",
			Address:   "12 Analytical Way",
			City:      "London",
			State:     "LDN",
			Zip:       "N1 7AA",
			Country:   "UK",
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	manager, err := transfer.NewManager(&transfer.Config{
		Logger:    logger,
		Store:     store,
		Tokens:    transfer.NewTokenIssuer("router-test-secret", nil),
		ExportDir: t.TempDir(),
		UploadDir: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	r := SetupRouter(&handler.Dependencies{
		Logger:    logger,
		Transfers: manager,
		Sessions:  fakeSessions{testSession: testOwner, "session-2": "owner-2"},
		ServerURL: serverURL,
		Service:   "constituent-api-service",
	})

	return &testEnv{router: r, manager: manager, store: store}
}

func (e *testEnv) do(method, target, session string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()

	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.True(t, resp.Success, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func (e *testEnv) createExport(t *testing.T) string {
	t.Helper()

	w := e.do(http.MethodPost, "/constituents/export", testSession, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var created dto.ExportCreatedResponse
	decodeData(t, w, &created)
	require.NotEmpty(t, created.ExportID)
	return created.ExportID
}

func (e *testEnv) waitCompleted(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := e.manager.GetExport(testOwner, id)
		return err == nil && job.Status == transfer.StatusCompleted
	}, 5*time.Second, 5*time.Millisecond)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var health dto.HealthResponse
	decodeData(t, w, &health)
	assert.Equal(t, "healthy", health.Status)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(http.MethodPost, "/constituents/export", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"unauthorized: missing session"}`, w.Body.String())

	w = env.do(http.MethodPost, "/constituents/upload", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/constituents/export/active?session_id="+testSession, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(http.MethodOptions, "/constituents/upload/abc", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), SessionHeader)
}

func TestExportDownloadFlow(t *testing.T) {
	env := newTestEnv(t, 3)
	id := env.createExport(t)
	env.waitCompleted(t, id)

	w := env.do(http.MethodGet, "/constituents/export/"+id, testSession, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var job dto.ExportJobDTO
	decodeData(t, w, &job)
	assert.Equal(t, transfer.StatusCompleted, job.Status)
	assert.Equal(t, transfer.ExportProgress{Total: 3, Processed: 3}, job.Progress)

	w = env.do(http.MethodGet, "/constituents/export/"+id, "session-2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/constituents/export/"+id+"/url", testSession, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var link dto.DownloadURLResponse
	decodeData(t, w, &link)
	require.True(t, strings.HasPrefix(link.URL, serverURL+"/constituents/download?token="))

	parsed, err := url.Parse(link.URL)
	require.NoError(t, err)

	w = env.do(http.MethodGet, parsed.RequestURI(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="`+job.ArtifactName+`"`, w.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(transfer.ExportHeader, ","), lines[0])
	assert.Equal(t, "c-0,person0@example.com,Ada,Lovelace,12 Analytical Way,,London,LDN,N1 7AA,UK,2024-01-01T00:00:00.000Z", lines[1])
}

func TestDownloadErrors(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(http.MethodGet, "/constituents/download", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/constituents/download?token=garbage", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"not found"}`, w.Body.String())

	expired, _, err := transfer.NewTokenIssuer("router-test-secret", func() time.Time {
		return time.Now().Add(-10 * time.Minute)
	}).Issue("whatever")
	require.NoError(t, err)

	w = env.do(http.MethodGet, "/constituents/download?token="+url.QueryEscape(expired), "", nil)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestDownloadURLUnknownExport(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(http.MethodGet, "/constituents/export/unknown/url", testSession, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelExport(t *testing.T) {
	env := newTestEnv(t, 2)
	id := env.createExport(t)

	w := env.do(http.MethodDelete, "/constituents/export/"+id, testSession, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(http.MethodDelete, "/constituents/export/"+id, testSession, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/constituents/export/active", testSession, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateExportRejectsBadQuery(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(http.MethodPost, "/constituents/export?limit=1000", testSession, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportProgressSSE(t *testing.T) {
	env := newTestEnv(t, 3)
	id := env.createExport(t)
	env.waitCompleted(t, id)

	w := env.do(http.MethodGet, "/constituents/export/"+id+"/progress", testSession, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.NotContains(t, body, "event:")
	assert.True(t, strings.HasPrefix(body, "data:"), body)
	assert.Contains(t, body, `"status":"COMPLETED"`)
	assert.Contains(t, body, `"processed":3`)
}

func TestExportProgressWebSocket(t *testing.T) {
	env := newTestEnv(t, 3)
	id := env.createExport(t)
	env.waitCompleted(t, id)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/constituents/export/" + id + "/progress/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{SessionHeader: []string{testSession}})
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var snap struct {
		Status   string                  `json:"status"`
		Progress transfer.ExportProgress `json:"progress"`
	}
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, transfer.StatusCompleted, snap.Status)
	assert.Equal(t, 3, snap.Progress.Processed)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestUploadFlow(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(http.MethodPost, "/constituents/upload", testSession, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var presigned dto.PresignUploadResponse
	decodeData(t, w, &presigned)
	assert.Equal(t, serverURL+"/constituents/upload/"+presigned.UploadID, presigned.URL)
	assert.Equal(t, http.MethodPut, presigned.Method)

	var csv strings.Builder
	csv.WriteString("email,first_name,last_name,address,address_2,city,state,zip,country\n")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&csv, "p%d@example.com,Ada,Lovelace,1 Way,,London,LDN,N1,UK\n", i)
	}
	csv.WriteString("nope,Ada,Lovelace,1 Way,,London,LDN,N1,UK\n")
	csv.WriteString("p9@example.com,,Lovelace,1 Way,,London,LDN,N1,UK\n")

	w = env.do(http.MethodPut, "/constituents/upload/"+presigned.UploadID, "", strings.NewReader(csv.String()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result transfer.UploadProgress
	decodeData(t, w, &result)
	assert.Equal(t, transfer.UploadProgress{Total: 10, Processed: 8, Failed: 2}, result)

	w = env.do(http.MethodPut, "/constituents/upload/"+presigned.UploadID, "", strings.NewReader(csv.String()))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/constituents/upload/"+presigned.UploadID, testSession, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var job dto.UploadJobDTO
	decodeData(t, w, &job)
	assert.Equal(t, transfer.StatusCompleted, job.Status)

	w = env.do(http.MethodGet, "/constituents/upload/"+presigned.UploadID+"/progress", testSession, nil)
	require.Equal(t, http.StatusOK, w.Code)

	scanner := bufio.NewScanner(strings.NewReader(w.Body.String()))
	var data []string
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, "data:") {
			data = append(data, strings.TrimPrefix(line, "data:"))
		}
	}
	require.Len(t, data, 1)
	assert.JSONEq(t, `{"status":"COMPLETED","progress":{"total":10,"processed":8,"failed":2}}`, data[0])
}

func TestUploadOutlivesServerReadTimeout(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(http.MethodPost, "/constituents/upload", testSession, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var presigned dto.PresignUploadResponse
	decodeData(t, w, &presigned)

	srv := httptest.NewUnstartedServer(env.router)
	srv.Config.ReadTimeout = 300 * time.Millisecond
	srv.Config.WriteTimeout = 300 * time.Millisecond
	srv.Start()
	defer srv.Close()

	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		if _, err := io.WriteString(pw, "email,first_name,last_name,address,address_2,city,state,zip,country\n"); err != nil {
			return
		}
		for i := 0; i < 10; i++ {
			time.Sleep(100 * time.Millisecond)
			if _, err := fmt.Fprintf(pw, "slow%d@example.com,Ada,Lovelace,1 Way,,London,LDN,N1,UK\n", i); err != nil {
				return
			}
		}
	}()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/constituents/upload/"+presigned.UploadID, pr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/csv")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	rec := httptest.NewRecorder()
	rec.Body.Write(body)
	var result transfer.UploadProgress
	decodeData(t, rec, &result)
	assert.Equal(t, transfer.UploadProgress{Total: 10, Processed: 10, Failed: 0}, result)
}

func TestUploadUnknownID(t *testing.T) {
	env := newTestEnv(t, 0)

	w := env.do(http.MethodPut, "/constituents/upload/unknown", "", strings.NewReader("email\n"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRedactQuery(t *testing.T) {
	values, err := url.ParseQuery("token=abc&session_id=s&limit=5")
	require.NoError(t, err)

	got := redactQuery(values)
	assert.NotContains(t, got, "abc")
	assert.Contains(t, got, "limit=5")
	assert.Contains(t, got, "token=REDACTED")
}

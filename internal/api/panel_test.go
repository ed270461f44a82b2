package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/debate-panel/internal/conversation"
	"github.com/ashureev/debate-panel/internal/domain"
	"github.com/ashureev/debate-panel/internal/gateway"
)

type stubGateway struct {
	mu         sync.Mutex
	businesses []domain.Business
	listCalls  int
	startErr   error
	healthErr  error
}

func (s *stubGateway) ListBusinesses(context.Context) ([]domain.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	return s.businesses, nil
}

func (s *stubGateway) StartConversation(context.Context, string) (string, error) {
	if s.startErr != nil {
		return "", s.startErr
	}
	return "c1", nil
}

func (s *stubGateway) PauseConversation(context.Context, string) error  { return nil }
func (s *stubGateway) ResumeConversation(context.Context, string) error { return nil }
func (s *stubGateway) StopConversation(context.Context, string) error   { return nil }

func (s *stubGateway) GetStatus(context.Context, string) (domain.Status, error) {
	return domain.Status{Phase: domain.PhaseRunning, Round: 1}, nil
}

func (s *stubGateway) GetMessages(context.Context, string) ([]domain.Message, error) {
	return []domain.Message{}, nil
}

func (s *stubGateway) Health(context.Context) error { return s.healthErr }

func newTestRouter(t *testing.T, gw *stubGateway) (http.Handler, *conversation.Controller) {
	t.Helper()
	ctrl := conversation.NewController(gw, conversation.Options{SyncInterval: time.Hour})
	t.Cleanup(ctrl.Close)

	r := chi.NewRouter()
	NewPanelHandler(NewHandler(ctrl, nil), nil).RegisterRoutes(r)
	NewHealthHandler(gw).RegisterHealth(r)
	return r, ctrl
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) PanelState {
	t.Helper()
	var st PanelState
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	return st
}

func TestGetStateEmpty(t *testing.T) {
	h, _ := newTestRouter(t, &stubGateway{})

	rec := do(t, h, http.MethodGet, "/api/panel/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	st := decodeState(t, rec)
	assert.Equal(t, domain.PhaseStopped, st.Session.Phase)
	assert.Empty(t, st.Session.ID)
	assert.NotNil(t, st.Session.Messages)
	assert.Nil(t, st.SelectedBusiness)
	assert.Len(t, st.Agents, len(domain.Roster))
}

func TestStartWithoutSelection(t *testing.T) {
	h, _ := newTestRouter(t, &stubGateway{})

	rec := do(t, h, http.MethodPost, "/api/panel/start", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please select a business first")
}

func TestBusinessesLoadOnceThenRefresh(t *testing.T) {
	gw := &stubGateway{businesses: []domain.Business{{ID: "7", Name: "Bakery"}}}
	h, _ := newTestRouter(t, gw)

	rec := do(t, h, http.MethodGet, "/api/panel/businesses", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Bakery"`)

	do(t, h, http.MethodGet, "/api/panel/businesses", "")
	assert.Equal(t, 1, gw.listCalls)

	do(t, h, http.MethodGet, "/api/panel/businesses?refresh=1", "")
	assert.Equal(t, 2, gw.listCalls)
}

func TestSelectAndLifecycle(t *testing.T) {
	gw := &stubGateway{businesses: []domain.Business{{ID: "7", Name: "Bakery"}}}
	h, _ := newTestRouter(t, gw)
	do(t, h, http.MethodGet, "/api/panel/businesses", "")

	rec := do(t, h, http.MethodPost, "/api/panel/select", `{"business_id": 7}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decodeState(t, rec)
	require.NotNil(t, st.SelectedBusiness)
	assert.Equal(t, "7", st.SelectedBusiness.ID)

	rec = do(t, h, http.MethodPost, "/api/panel/start", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st = decodeState(t, rec)
	assert.Equal(t, "c1", st.Session.ID)
	assert.Equal(t, domain.PhaseRunning, st.Session.Phase)
	for _, a := range st.Agents {
		assert.True(t, a.Active)
	}

	rec = do(t, h, http.MethodPost, "/api/panel/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PhasePaused, decodeState(t, rec).Session.Phase)

	rec = do(t, h, http.MethodPost, "/api/panel/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PhaseRunning, decodeState(t, rec).Session.Phase)

	rec = do(t, h, http.MethodPost, "/api/panel/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st = decodeState(t, rec)
	assert.Equal(t, domain.PhaseStopped, st.Session.Phase)
	assert.Equal(t, "c1", st.Session.ID)

	rec = do(t, h, http.MethodPost, "/api/panel/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st = decodeState(t, rec)
	assert.Empty(t, st.Session.ID)
	require.NotNil(t, st.SelectedBusiness, "reset keeps the selection")
}

func TestSelectRejectsBadInput(t *testing.T) {
	h, _ := newTestRouter(t, &stubGateway{})

	rec := do(t, h, http.MethodPost, "/api/panel/select", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/panel/select", `{"business_id": true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/panel/select", `{"business_id": "missing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unknown business")
}

func TestStartRemoteFailure(t *testing.T) {
	gw := &stubGateway{
		businesses: []domain.Business{{ID: "7"}},
		startErr:   &gateway.RemoteError{Op: gateway.OpStart, StatusCode: 404, Message: "business not found"},
	}
	h, ctrl := newTestRouter(t, gw)
	do(t, h, http.MethodGet, "/api/panel/businesses", "")
	do(t, h, http.MethodPost, "/api/panel/select", `{"business_id": "7"}`)

	rec := do(t, h, http.MethodPost, "/api/panel/start", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "business not found")
	assert.Equal(t, "business not found", ctrl.Snapshot().Error)
}

func TestHealth(t *testing.T) {
	gw := &stubGateway{}
	h, _ := newTestRouter(t, gw)

	rec := do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backend":"up"`)

	gw.healthErr = errors.New("connection refused")
	rec = do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"backend":"down"`)
}

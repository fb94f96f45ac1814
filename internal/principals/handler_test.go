package principals

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolroom-mes/toolroom/internal/history"
	"github.com/toolroom-mes/toolroom/internal/rbac"
	"github.com/toolroom-mes/toolroom/internal/shared"
)

// auditStore stands in for the history persistence layer. With err set,
// every append fails; otherwise appends are counted.
type auditStore struct {
	err     error
	appends int
}

func (s *auditStore) InsertTransition(_ context.Context, _ history.TransitionRequest) (history.Transition, error) {
	return history.Transition{}, s.err
}

func (s *auditStore) ListTransitions(_ context.Context, _ string, _ int64) ([]history.Transition, error) {
	return nil, nil
}

func (s *auditStore) InsertAudit(_ context.Context, _ history.AuditEntry, _, _ []byte) error {
	if s.err != nil {
		return s.err
	}
	s.appends++
	return nil
}

func (s *auditStore) TimelineWindow(_ context.Context, _ history.TimelineFilters, _, _ int) ([]history.TimelineRow, error) {
	return nil, nil
}

func (s *auditStore) TimelineAll(_ context.Context, _ history.TimelineFilters) ([]history.TimelineRow, error) {
	return nil, nil
}

func newTestHandler(t *testing.T, store *auditStore) (*Handler, *Service) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	auditor := history.NewService(store, history.NewStateRegistry(), logger)
	svc := NewService(newMockRepository())
	return NewHandler(logger, svc, nil, auditor, rbac.Middleware{}), svc
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func pathRequest(method, target, id string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("principalID", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = shared.ContextWithActor(ctx, shared.Actor{ID: 1, Handle: "admin"})
	return req.WithContext(ctx)
}

func TestDeactivateFailsWhenAuditAppendFails(t *testing.T) {
	store := &auditStore{err: errors.New("store unavailable")}
	handler, svc := newTestHandler(t, store)
	_, err := svc.Create(context.Background(), "operator", "Operator", "password1", SkillOperator)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.deactivate(rr, pathRequest(http.MethodPost, "/principals/1/deactivate", "1"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code,
		"a change whose audit entry did not persist must not report success")
}

func TestRemoveFailsWhenAuditAppendFails(t *testing.T) {
	store := &auditStore{err: errors.New("store unavailable")}
	handler, svc := newTestHandler(t, store)
	_, err := svc.Create(context.Background(), "temp", "Temp", "password1", SkillHelper)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.remove(rr, pathRequest(http.MethodDelete, "/principals/1", "1"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestCreateFailsWhenAuditAppendFails(t *testing.T) {
	store := &auditStore{err: errors.New("store unavailable")}
	handler, _ := newTestHandler(t, store)

	body := `{"handle":"machinist","name":"Machinist","password":"password1"}`
	req := httptest.NewRequest(http.MethodPost, "/principals", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.create(rr, req)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestDeactivateRecordsAuditEntry(t *testing.T) {
	store := &auditStore{}
	handler, svc := newTestHandler(t, store)
	p, err := svc.Create(context.Background(), "operator", "Operator", "password1", SkillOperator)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.deactivate(rr, pathRequest(http.MethodPost, "/principals/1/deactivate", "1"))
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, store.appends)

	active, err := svc.IsActive(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, active)
}

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolroom-mes/toolroom/internal/shared"
)

type auditRow struct {
	entry  AuditEntry
	before []byte
	after  []byte
}

type mockRepository struct {
	transitions   []Transition
	audits        []auditRow
	timeline      []TimelineRow
	nextID        int64
	transitionErr error
	auditErr      error
}

func newMockRepository() *mockRepository {
	return &mockRepository{}
}

func (m *mockRepository) InsertTransition(_ context.Context, req TransitionRequest) (Transition, error) {
	if m.transitionErr != nil {
		return Transition{}, m.transitionErr
	}
	m.nextID++
	t := Transition{
		ID:         m.nextID,
		EntityType: req.EntityType,
		EntityID:   req.EntityID,
		FromState:  req.FromState,
		ToState:    req.ToState,
		ActorID:    req.ActorID,
		Reason:     req.Reason,
		At:         time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(m.nextID) * time.Minute),
	}
	m.transitions = append(m.transitions, t)
	return t, nil
}

func (m *mockRepository) ListTransitions(_ context.Context, entityType string, entityID int64) ([]Transition, error) {
	var out []Transition
	for _, t := range m.transitions {
		if t.EntityType == entityType && t.EntityID == entityID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepository) InsertAudit(_ context.Context, entry AuditEntry, before, after []byte) error {
	if m.auditErr != nil {
		return m.auditErr
	}
	m.audits = append(m.audits, auditRow{entry: entry, before: before, after: after})
	return nil
}

func (m *mockRepository) TimelineWindow(_ context.Context, _ TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	if offset >= len(m.timeline) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.timeline) {
		end = len(m.timeline)
	}
	return m.timeline[offset:end], nil
}

func (m *mockRepository) TimelineAll(_ context.Context, _ TimelineFilters) ([]TimelineRow, error) {
	return m.timeline, nil
}

func newTestService(repo *mockRepository) (*Service, *StateRegistry) {
	registry := NewStateRegistry()
	registry.RegisterStates("program", "draft", "review", "released", "retired")
	registry.RegisterStates("tool", "available", "checked_out", "worn")
	logger := slog.New(slog.NewTextHandler(testWriter{}, nil))
	return NewService(repo, registry, logger), registry
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRecordTransitionRejectsUnknownTargetState(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)

	_, err := svc.RecordTransition(context.Background(), TransitionRequest{
		EntityType: "program",
		EntityID:   7,
		FromState:  "draft",
		ToState:    "archived",
		ActorID:    1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Empty(t, repo.transitions, "rejected transition must leave no record")
}

func TestRecordTransitionRejectsUnknownEntityType(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)

	_, err := svc.RecordTransition(context.Background(), TransitionRequest{
		EntityType: "invoice",
		EntityID:   7,
		ToState:    "draft",
		ActorID:    1,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Empty(t, repo.transitions)
}

func TestRecordTransitionAllowsCreationEntry(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)

	got, err := svc.RecordTransition(context.Background(), TransitionRequest{
		EntityType: "program",
		EntityID:   7,
		ToState:    "Draft",
		ActorID:    1,
	})
	require.NoError(t, err)
	assert.Empty(t, got.FromState)
	assert.Equal(t, "draft", got.ToState)
}

func TestRecordTransitionRejectsUnknownOriginState(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)

	_, err := svc.RecordTransition(context.Background(), TransitionRequest{
		EntityType: "program",
		EntityID:   7,
		FromState:  "limbo",
		ToState:    "review",
		ActorID:    1,
	})
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	assert.Empty(t, repo.transitions)
}

func TestHistoryReturnsFullTrailOldestFirst(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	steps := []struct{ from, to string }{
		{"", "draft"},
		{"draft", "review"},
		{"review", "released"},
	}
	for _, step := range steps {
		_, err := svc.RecordTransition(ctx, TransitionRequest{
			EntityType: "program", EntityID: 7,
			FromState: step.from, ToState: step.to, ActorID: 1,
		})
		require.NoError(t, err)
	}
	_, err := svc.RecordTransition(ctx, TransitionRequest{
		EntityType: "program", EntityID: 8, ToState: "draft", ActorID: 1,
	})
	require.NoError(t, err)

	trail, err := svc.History(ctx, "program", 7)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, "draft", trail[0].ToState)
	assert.Equal(t, "review", trail[1].ToState)
	assert.Equal(t, "released", trail[2].ToState)
	for i := 1; i < len(trail); i++ {
		assert.Equal(t, trail[i-1].ToState, trail[i].FromState)
		assert.False(t, trail[i].At.Before(trail[i-1].At))
	}
}

func TestCurrentStateFollowsNewestTransition(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	state, err := svc.CurrentState(ctx, "tool", 3)
	require.NoError(t, err)
	assert.Empty(t, state)

	for _, to := range []string{"available", "checked_out"} {
		_, err := svc.RecordTransition(ctx, TransitionRequest{
			EntityType: "tool", EntityID: 3, ToState: to, ActorID: 2,
		})
		require.NoError(t, err)
	}

	state, err = svc.CurrentState(ctx, "tool", 3)
	require.NoError(t, err)
	assert.Equal(t, "checked_out", state)
}

func TestRecordAuditMarshalsSnapshots(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)

	type snapshot struct {
		Name string `json:"name"`
	}
	err := svc.RecordAudit(context.Background(), AuditEntry{
		EntityType: "Role",
		EntityID:   4,
		Action:     "Update",
		Before:     snapshot{Name: "operator"},
		After:      snapshot{Name: "machinist"},
		ActorID:    1,
		ClientInfo: shared.ClientInfo{Address: "10.0.0.5"},
	})
	require.NoError(t, err)
	require.Len(t, repo.audits, 1)

	row := repo.audits[0]
	assert.Equal(t, "role", row.entry.EntityType)
	assert.Equal(t, "update", row.entry.Action)
	var before snapshot
	require.NoError(t, json.Unmarshal(row.before, &before))
	assert.Equal(t, "operator", before.Name)
}

func TestRecordAuditRequiresAction(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)

	err := svc.RecordAudit(context.Background(), AuditEntry{
		EntityType: "role", EntityID: 4, ActorID: 1,
	})
	require.Error(t, err)
	assert.Empty(t, repo.audits)
}

func TestRecordAuditAcceptsNilSnapshots(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)

	err := svc.RecordAudit(context.Background(), AuditEntry{
		EntityType: "principal", EntityID: 9, Action: "login", ActorID: 9,
	})
	require.NoError(t, err)
	require.Len(t, repo.audits, 1)
	assert.Nil(t, repo.audits[0].before)
	assert.Nil(t, repo.audits[0].after)
}

func TestRecordTransitionFailsWhenStoreAppendFails(t *testing.T) {
	repo := newMockRepository()
	repo.transitionErr = errors.New("store unavailable")
	svc, _ := newTestService(repo)

	_, err := svc.RecordTransition(context.Background(), TransitionRequest{
		EntityType: "program", EntityID: 7, ToState: "draft", ActorID: 1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.transitionErr,
		"a transition whose record did not persist must not report success")
}

func TestRecordAuditFailsWhenStoreAppendFails(t *testing.T) {
	repo := newMockRepository()
	repo.auditErr = errors.New("store unavailable")
	svc, _ := newTestService(repo)

	err := svc.RecordAudit(context.Background(), AuditEntry{
		EntityType: "principal", EntityID: 9, Action: "update", ActorID: 1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.auditErr)
	assert.Empty(t, repo.audits)
}

func TestTimelinePaging(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)
	for i := 0; i < 25; i++ {
		repo.timeline = append(repo.timeline, TimelineRow{
			ActorID: 1, Action: "update", EntityType: "program", EntityID: int64(25 - i),
		})
	}

	result, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 20)
	assert.Equal(t, 1, result.Paging.Page)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 5)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 1, result.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := newMockRepository()
	svc, _ := newTestService(repo)
	for i := 0; i < 120; i++ {
		repo.timeline = append(repo.timeline, TimelineRow{ActorID: 1, Action: "update"})
	}

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 50)
	assert.Equal(t, 50, result.Paging.PageSize)
}

func TestStateRegistryNormalizesNames(t *testing.T) {
	registry := NewStateRegistry()
	registry.RegisterStates(" Program ", "Draft", "review")
	registry.RegisterStates("program", "released")

	assert.True(t, registry.Known("program", "draft"))
	assert.True(t, registry.Known("PROGRAM", "Released"))
	assert.False(t, registry.Known("program", "retired"))
	assert.Equal(t, []string{"draft", "released", "review"}, registry.States("program"))
	assert.Equal(t, []string{"program"}, registry.EntityTypes())
}

func TestWriteTimelineCSV(t *testing.T) {
	rows := []TimelineRow{
		{
			At:         time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
			ActorID:    4,
			Action:     "release",
			EntityType: "program",
			EntityID:   12,
			Reason:     "first article passed",
		},
	}
	out, err := WriteTimelineCSV(rows)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "At,Actor ID,Action,Entity Type,Entity ID,Reason", lines[0])
	assert.Contains(t, lines[1], "2026-03-01T08:00:00Z")
	assert.Contains(t, lines[1], fmt.Sprintf("%d", 12))
	assert.Contains(t, lines[1], "first article passed")
}

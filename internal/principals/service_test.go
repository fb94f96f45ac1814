package principals

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/toolroom-mes/toolroom/internal/shared"
)

type mockRepository struct {
	byID     map[int64]Principal
	byHandle map[string]int64
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		byID:     make(map[int64]Principal),
		byHandle: make(map[string]int64),
	}
}

func (m *mockRepository) Create(_ context.Context, handle, name, credentialHash string, skill SkillLevel) (Principal, error) {
	if _, ok := m.byHandle[handle]; ok {
		return Principal{}, fmt.Errorf("principals: handle %q: %w", handle, shared.ErrDuplicateName)
	}
	m.nextID++
	p := Principal{
		ID:             m.nextID,
		Handle:         handle,
		Name:           name,
		CredentialHash: credentialHash,
		IsActive:       true,
		SkillLevel:     skill,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	m.byID[p.ID] = p
	m.byHandle[handle] = p.ID
	return p, nil
}

func (m *mockRepository) GetByID(_ context.Context, id int64) (Principal, error) {
	p, ok := m.byID[id]
	if !ok {
		return Principal{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) GetByHandle(_ context.Context, handle string) (Principal, error) {
	id, ok := m.byHandle[handle]
	if !ok {
		return Principal{}, shared.ErrNotFound
	}
	return m.byID[id], nil
}

func (m *mockRepository) List(_ context.Context) ([]Principal, error) {
	out := make([]Principal, 0, len(m.byID))
	for id := int64(1); id <= m.nextID; id++ {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepository) SetActive(_ context.Context, id int64, active bool) error {
	p, ok := m.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.IsActive = active
	m.byID[id] = p
	return nil
}

func (m *mockRepository) SetSkillLevel(_ context.Context, id int64, skill SkillLevel) error {
	p, ok := m.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.SkillLevel = skill
	m.byID[id] = p
	return nil
}

func (m *mockRepository) Delete(_ context.Context, id int64) error {
	p, ok := m.byID[id]
	if !ok {
		return shared.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byHandle, p.Handle)
	return nil
}

func TestCreateHashesPasswordAndLowersHandle(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)

	p, err := svc.Create(context.Background(), " Machinist ", "Senior Machinist", "torque-wrench", SkillTechnician)
	require.NoError(t, err)
	assert.Equal(t, "machinist", p.Handle)
	assert.NotEqual(t, "torque-wrench", p.CredentialHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(p.CredentialHash), []byte("torque-wrench")))
}

func TestCreateDuplicateHandle(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, "operator", "First", "pw-one", SkillOperator)
	require.NoError(t, err)
	_, err = svc.Create(ctx, "OPERATOR", "Second", "pw-two", SkillOperator)
	assert.ErrorIs(t, err, shared.ErrDuplicateName)
}

func TestAuthenticateScenarios(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	ctx := context.Background()

	created, err := svc.Create(ctx, "operator", "Operator", "correct-pw", SkillOperator)
	require.NoError(t, err)

	p, err := svc.Authenticate(ctx, "Operator", "correct-pw")
	require.NoError(t, err)
	assert.Equal(t, created.ID, p.ID)

	_, err = svc.Authenticate(ctx, "operator", "wrong-pw")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "correct-pw")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	require.NoError(t, svc.Deactivate(ctx, created.ID))
	_, err = svc.Authenticate(ctx, "operator", "correct-pw")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials,
		"inactive principal must fail the same way as a wrong password")
}

func TestIsActiveTracksFlag(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "helper", "Helper", "pw", SkillHelper)
	require.NoError(t, err)

	active, err := svc.IsActive(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, svc.Deactivate(ctx, p.ID))
	active, err = svc.IsActive(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, svc.Activate(ctx, p.ID))
	active, err = svc.IsActive(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, active)

	_, err = svc.IsActive(ctx, 999)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMeetsSkill(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "tech", "Technician", "pw", SkillTechnician)
	require.NoError(t, err)

	ok, err := svc.MeetsSkill(ctx, p.ID, SkillOperator)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.MeetsSkill(ctx, p.ID, SkillSpecialist)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.Deactivate(ctx, p.ID))
	ok, err = svc.MeetsSkill(ctx, p.ID, SkillHelper)
	require.NoError(t, err)
	assert.False(t, ok, "inactive principal never meets a skill requirement")

	ok, err = svc.MeetsSkill(ctx, 999, SkillHelper)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSkillLevelParsing(t *testing.T) {
	assert.Equal(t, SkillSpecialist, ParseSkillLevel("specialist"))
	assert.Equal(t, SkillHelper, ParseSkillLevel("unknown-label"))
	assert.Equal(t, "technician", SkillTechnician.String())
	assert.Equal(t, "helper", SkillLevel(42).String())
}

func TestDeleteRemovesPrincipal(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	ctx := context.Background()

	p, err := svc.Create(ctx, "temp", "Temp", "pw", SkillHelper)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, p.ID))

	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, p.ID), shared.ErrNotFound)
}

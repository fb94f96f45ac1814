package principals

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/toolroom-mes/toolroom/internal/shared"
)

// RepositoryPort defines data access methods for principals.
type RepositoryPort interface {
	Create(ctx context.Context, handle, name, credentialHash string, skill SkillLevel) (Principal, error)
	GetByID(ctx context.Context, id int64) (Principal, error)
	GetByHandle(ctx context.Context, handle string) (Principal, error)
	List(ctx context.Context) ([]Principal, error)
	SetActive(ctx context.Context, id int64, active bool) error
	SetSkillLevel(ctx context.Context, id int64, skill SkillLevel) error
	Delete(ctx context.Context, id int64) error
}

// Service handles principal lifecycle and authentication.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create registers a new principal with a bcrypt-hashed credential.
func (s *Service) Create(ctx context.Context, handle, name, password string, skill SkillLevel) (Principal, error) {
	handle = strings.TrimSpace(strings.ToLower(handle))
	if handle == "" {
		return Principal{}, errors.New("principals: handle required")
	}
	if password == "" {
		return Principal{}, errors.New("principals: password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Principal{}, err
	}
	return s.repo.Create(ctx, handle, strings.TrimSpace(name), string(hash), skill)
}

// Authenticate validates handle/password credentials. Inactive principals
// fail exactly like wrong passwords to avoid leaking account state.
func (s *Service) Authenticate(ctx context.Context, handle, password string) (Principal, error) {
	p, err := s.repo.GetByHandle(ctx, strings.TrimSpace(strings.ToLower(handle)))
	if err != nil {
		return Principal{}, shared.ErrInvalidCredentials
	}
	if !p.IsActive {
		return Principal{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.CredentialHash), []byte(password)); err != nil {
		return Principal{}, shared.ErrInvalidCredentials
	}
	return p, nil
}

// Get fetches a principal by ID.
func (s *Service) Get(ctx context.Context, id int64) (Principal, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all principals.
func (s *Service) List(ctx context.Context) ([]Principal, error) {
	return s.repo.List(ctx)
}

// Deactivate clears the active flag. An inactive principal is denied by the
// authorization evaluator regardless of its role grants.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, false)
}

// Activate sets the active flag.
func (s *Service) Activate(ctx context.Context, id int64) error {
	return s.repo.SetActive(ctx, id, true)
}

// SetSkillLevel updates the qualification ordinal.
func (s *Service) SetSkillLevel(ctx context.Context, id int64, skill SkillLevel) error {
	return s.repo.SetSkillLevel(ctx, id, skill)
}

// Delete removes the principal and its role bindings atomically.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// IsActive implements the directory contract consumed by the authorization
// evaluator.
func (s *Service) IsActive(ctx context.Context, id int64) (bool, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return p.IsActive, nil
}

// MeetsSkill reports whether the principal's level meets the required one.
// Inactive principals never meet any requirement.
func (s *Service) MeetsSkill(ctx context.Context, id int64, required SkillLevel) (bool, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !p.IsActive {
		return false, nil
	}
	return p.SkillLevel.AtLeast(required), nil
}

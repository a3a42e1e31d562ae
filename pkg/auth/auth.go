package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"echoclub/pkg/logger"
	"echoclub/pkg/models"
	"echoclub/pkg/store"
	"echoclub/pkg/utils"
	"echoclub/pkg/validation"
)

const hashVersionBcrypt = "bcrypt"

var (
	// ErrDuplicateIdentity is returned when registering a name that is
	// already taken. Surfaced to the user distinctly from other causes.
	ErrDuplicateIdentity = errors.New("name already in use")

	// ErrInvalidCredentials hides whether the name exists on failed
	// logins.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service is the authentication provider: it issues identities against
// credentials persisted in the store and tracks opaque session tokens in
// memory. Tokens are process-scoped; a restart signs everyone out.
type Service struct {
	mu     sync.Mutex
	tokens map[string]models.Identity

	limiters *limiterPool
}

func NewService(rps float64, burst int) *Service {
	return &Service{
		tokens:   make(map[string]models.Identity),
		limiters: &limiterPool{rps: rps, burst: burst},
	}
}

// Register creates a credential record. Name and password format are
// validated before any store traffic; a name collision is reported as
// ErrDuplicateIdentity.
func (s *Service) Register(name, password string) (models.Identity, error) {
	if err := validation.ValidateCredentials(name, password); err != nil {
		return models.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists, err := store.GetUser(name); err != nil {
		return models.Identity{}, err
	} else if exists {
		return models.Identity{}, ErrDuplicateIdentity
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Identity{}, err
	}
	u := models.User{
		ID:           uuid.NewString(),
		Name:         name,
		PasswordHash: string(hash),
		HashVersion:  hashVersionBcrypt,
		CreatedTS:    store.ServerTime(),
	}
	if err := store.SaveUser(u); err != nil {
		return models.Identity{}, err
	}
	logger.Info("user_registered", "name", name, "id", u.ID)
	return models.Identity{UserID: u.ID, DisplayName: u.Name}, nil
}

// Login verifies credentials and issues an opaque token for the identity.
func (s *Service) Login(name, password string) (models.Identity, string, error) {
	u, exists, err := store.GetUser(name)
	if err != nil {
		return models.Identity{}, "", err
	}
	if !exists {
		return models.Identity{}, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return models.Identity{}, "", ErrInvalidCredentials
	}

	token, err := utils.GenerateToken()
	if err != nil {
		return models.Identity{}, "", err
	}
	id := models.Identity{UserID: u.ID, DisplayName: u.Name}
	s.mu.Lock()
	s.tokens[token] = id
	s.mu.Unlock()
	logger.Info("user_logged_in", "name", u.Name, "id", u.ID)
	return id, token, nil
}

// Identify resolves a token to its identity.
func (s *Service) Identify(token string) (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	return id, ok
}

// Revoke invalidates a token (sign-out). Unknown tokens are ignored.
func (s *Service) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// AllowSend rate-limits message sends per identity.
func (s *Service) AllowSend(userID string) bool {
	return s.limiters.Allow(userID)
}

// Package identity provides user accounts and login sessions on top of the
// flat-file tables.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maruel/urlshort/internal/flatdb"
	"github.com/maruel/urlshort/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// UserService handles user management and authentication.
type UserService struct {
	table flatdb.Table[storage.User, int64]
	cost  int
}

// NewUserService creates a new user service. cost is the bcrypt cost; 0
// selects bcrypt.DefaultCost.
func NewUserService(table flatdb.Table[storage.User, int64], cost int) *UserService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserService{table: table, cost: cost}
}

// Create creates a new user. The email is normalized and the password is
// stored as a bcrypt hash.
func (s *UserService) Create(email, password string) (*storage.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, errEmailPwdRequired
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u, err := flatdb.Create(s.table, storage.User{Email: email, Password: string(hash)})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Get retrieves a user by ID.
func (s *UserService) Get(id int64) (*storage.User, error) {
	if id <= 0 {
		return nil, errUserIDEmpty
	}
	u, err := flatdb.Get(s.table, id)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail retrieves a user by email.
func (s *UserService) GetByEmail(email string) (*storage.User, error) {
	email = normalizeEmail(email)
	rows, err := flatdb.SearchFuncN(s.table, func(u storage.User) bool { return u.Email == email }, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &flatdb.NotFoundError{Table: s.table.Name(), PK: email}
	}
	return &rows[0], nil
}

// List returns every user in creation order.
func (s *UserService) List() ([]storage.User, error) {
	return flatdb.Search(s.table)
}

// Delete removes a user and returns it.
func (s *UserService) Delete(id int64) (*storage.User, error) {
	if id <= 0 {
		return nil, errUserIDEmpty
	}
	u, err := flatdb.Delete(s.table, id)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Authenticate verifies user credentials.
func (s *UserService) Authenticate(email, password string) (*storage.User, error) {
	u, err := s.GetByEmail(email)
	if errors.Is(err, flatdb.ErrNotFound) {
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

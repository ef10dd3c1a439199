package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/stock-ledger/internal/auth"
	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrValidation         = errors.New("validation error")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is an operator of the inventory.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Surname      string    `json:"surname" db:"surname"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Principal returns the request-scoped credential for u.
func (u User) Principal() auth.Principal {
	return auth.Principal{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// Store persists users. Create returns ErrEmailTaken for a duplicate email and
// GetByEmail returns ErrUserNotFound when no user matches.
type Store interface {
	Create(ctx context.Context, u User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Count(ctx context.Context) (int, error)
	// List returns every user ordered by registration time.
	List(ctx context.Context) ([]User, error)
}

// Service handles registration and login
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Register creates a user. The first registered user becomes an admin.
func (s *Service) Register(ctx context.Context, name, surname, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	surname = strings.TrimSpace(surname)
	email = normalizeEmail(email)

	switch {
	case name == "":
		return User{}, fmt.Errorf("%w: name is required", ErrValidation)
	case surname == "":
		return User{}, fmt.Errorf("%w: surname is required", ErrValidation)
	case email == "" || !strings.Contains(email, "@"):
		return User{}, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}

	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
		return User{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err != nil {
		return User{}, err
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return User{}, err
	}
	role := RoleStaff
	if count == 0 {
		role = RoleAdmin
	}

	u := User{
		ID:           uuid.New().String(),
		Name:         name,
		Surname:      surname,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Authenticate checks an email/password pair.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	u, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	if !auth.CheckPassword(password, u.PasswordHash) {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.store.GetByID(ctx, id)
}

// List returns all registered users, oldest first.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/perfume-decants/api/internal/domain"
	"github.com/perfume-decants/api/internal/repositories"
)

const (
	userIDPrefix      = "usr_"
	minPasswordLength = 6
)

var (
	// ErrUserInvalidInput signals the caller provided invalid account data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserEmailTaken indicates the email is already registered.
	ErrUserEmailTaken = errors.New("user: email already registered")
	// ErrUserNotFound indicates the account could not be located.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserInvalidCredentials indicates the email or password is wrong.
	// The two cases are never distinguished to callers.
	ErrUserInvalidCredentials = errors.New("user: invalid credentials")
)

// TokenIssuer mints access tokens for authenticated sessions.
type TokenIssuer interface {
	IssueToken(userID, email, role string) (string, error)
}

// RegisterCommand carries the input for creating an account.
type RegisterCommand struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Address  *domain.Address
}

// LoginCommand carries credentials for opening a session.
type LoginCommand struct {
	Email    string
	Password string
}

// Session bundles the authenticated user with their access token.
type Session struct {
	User  domain.User
	Token string
}

// ProfileUpdate carries the writable fields of a user profile. Nil fields
// are left untouched.
type ProfileUpdate struct {
	Name     *string
	Phone    *string
	Address  *domain.Address
	Password *string
}

// UserService exposes account registration, sessions, and profile management.
type UserService interface {
	Register(ctx context.Context, cmd RegisterCommand) (Session, error)
	Login(ctx context.Context, cmd LoginCommand) (Session, error)
	GetProfile(ctx context.Context, userID string) (domain.User, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (domain.User, error)
}

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Tokens      TokenIssuer
	BcryptCost  int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users      repositories.UserRepository
	tokens     TokenIssuer
	bcryptCost int
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("user service: token issuer is required")
	}

	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("user service: bcrypt cost %d out of range", cost)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &userService{
		users:      deps.Users,
		tokens:     deps.Tokens,
		bcryptCost: cost,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *userService) Register(ctx context.Context, cmd RegisterCommand) (Session, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Session{}, fmt.Errorf("%w: name is required", ErrUserInvalidInput)
	}
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return Session{}, err
	}
	if utf8.RuneCountInString(cmd.Password) < minPasswordLength {
		return Session{}, fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}
	if cmd.Address != nil && !cmd.Address.Complete() {
		return Session{}, fmt.Errorf("%w: address requires street, city, region, and postal code", ErrUserInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.bcryptCost)
	if err != nil {
		return Session{}, fmt.Errorf("user: hashing password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           userIDPrefix + s.newID(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.UserRoleCustomer,
		Phone:        strings.TrimSpace(cmd.Phone),
		Address:      cmd.Address,
		CreatedAt:    now,
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return Session{}, s.mapRepositoryError(err)
	}

	token, err := s.tokens.IssueToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return Session{}, fmt.Errorf("user: issuing token: %w", err)
	}
	return Session{User: user, Token: token}, nil
}

func (s *userService) Login(ctx context.Context, cmd LoginCommand) (Session, error) {
	email, err := normalizeEmail(cmd.Email)
	if err != nil {
		return Session{}, ErrUserInvalidCredentials
	}
	if cmd.Password == "" {
		return Session{}, ErrUserInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Session{}, ErrUserInvalidCredentials
		}
		return Session{}, s.mapRepositoryError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(cmd.Password)); err != nil {
		return Session{}, ErrUserInvalidCredentials
	}

	now := s.now()
	if err := s.users.TouchLastAccess(ctx, user.ID, now); err != nil {
		// A failed timestamp update never blocks the login.
		s.logger(ctx, "user.last_access.update.failed", map[string]any{
			"user":  user.ID,
			"error": err.Error(),
		})
	} else {
		user.LastAccessAt = &now
	}

	token, err := s.tokens.IssueToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		return Session{}, fmt.Errorf("user: issuing token: %w", err)
	}
	return Session{User: user, Token: token}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return domain.User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func (s *userService) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return domain.User{}, s.mapRepositoryError(err)
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return domain.User{}, fmt.Errorf("%w: name cannot be empty", ErrUserInvalidInput)
		}
		user.Name = name
	}
	if update.Phone != nil {
		user.Phone = strings.TrimSpace(*update.Phone)
	}
	if update.Address != nil {
		if !update.Address.Complete() {
			return domain.User{}, fmt.Errorf("%w: address requires street, city, region, and postal code", ErrUserInvalidInput)
		}
		user.Address = update.Address
	}
	if update.Password != nil {
		if utf8.RuneCountInString(*update.Password) < minPasswordLength {
			return domain.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*update.Password), s.bcryptCost)
		if err != nil {
			return domain.User{}, fmt.Errorf("user: hashing password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	if err := s.users.Update(ctx, user); err != nil {
		return domain.User{}, s.mapRepositoryError(err)
	}
	return user, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrUserInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: malformed email", ErrUserInvalidInput)
	}
	return email, nil
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrUserEmailTaken, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("user: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *userService) now() time.Time {
	return s.clock()
}

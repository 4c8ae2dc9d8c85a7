package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/perfume-decants/api/internal/domain"
	pfirestore "github.com/perfume-decants/api/internal/platform/firestore"
)

const (
	usersCollection      = "users"
	userEmailsCollection = "userEmails"
)

// userEmailDocument is the uniqueness index entry mapping an email to its account.
type userEmailDocument struct {
	UserID    string    `firestore:"userId"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// UserRepository implements repositories.UserRepository backed by Firestore.
// Email uniqueness is enforced through the userEmails index collection
// written in the same transaction as the account document.
type UserRepository struct {
	provider *pfirestore.Provider
	users    *pfirestore.BaseRepository[userDocument]
	emails   *pfirestore.BaseRepository[userEmailDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		users:    pfirestore.NewBaseRepository[userDocument](provider, usersCollection),
		emails:   pfirestore.NewBaseRepository[userEmailDocument](provider, userEmailsCollection),
	}, nil
}

// Insert creates the account and its email index entry atomically. A
// duplicate email surfaces as a conflict error.
func (r *UserRepository) Insert(ctx context.Context, user domain.User) error {
	if r == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	email := normaliseEmail(user.Email)
	if email == "" {
		return errors.New("users.insert: email is required")
	}
	user.Email = email

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		emailRef, err := r.emails.DocumentRef(ctx, emailDocID(email))
		if err != nil {
			return err
		}
		userRef, err := r.users.DocumentRef(ctx, user.ID)
		if err != nil {
			return err
		}
		if err := tx.Create(emailRef, userEmailDocument{UserID: user.ID, CreatedAt: user.CreatedAt.UTC()}); err != nil {
			return err
		}
		return tx.Create(userRef, newUserDocument(user))
	})
	return pfirestore.WrapError("users.insert", err)
}

// Update replaces the account document. The email is immutable.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	if r == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	user.Email = normaliseEmail(user.Email)
	return r.users.Set(ctx, user.ID, newUserDocument(user))
}

// FindByID fetches an account by its document id.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.provider == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	doc, err := r.users.Get(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByEmail resolves the account through the email index.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	if r == nil || r.provider == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	entry, err := r.emails.Get(ctx, emailDocID(normaliseEmail(email)))
	if err != nil {
		return domain.User{}, err
	}
	return r.FindByID(ctx, entry.Data.UserID)
}

// TouchLastAccess stamps the account's last successful login.
func (r *UserRepository) TouchLastAccess(ctx context.Context, userID string, at time.Time) error {
	if r == nil || r.provider == nil {
		return errors.New("user repository not initialised")
	}
	return r.users.Update(ctx, userID, []firestore.Update{
		{Path: "lastAccessAt", Value: at.UTC()},
	})
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// emailDocID makes the email safe to use as a Firestore document id.
func emailDocID(email string) string {
	return strings.ReplaceAll(email, "/", "_")
}

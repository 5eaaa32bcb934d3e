package services

import (
	"context"
	"time"

	"soul-card-backend/internal/models"
	"soul-card-backend/internal/repository"
)

// UserRepository is the user storage the services depend on
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

// ProfileRepository is the profile storage the services depend on
type ProfileRepository interface {
	Create(ctx context.Context, p *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	GetByShareCode(ctx context.Context, code string) (*models.Profile, error)
	ShareCodeExists(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, p *models.Profile) error
	UpdateAvatarKey(ctx context.Context, profileID, key string) error
	GetOwnerName(ctx context.Context, profileID string) (string, error)
}

// ApplicationRepository is the application storage the services depend on
type ApplicationRepository interface {
	Create(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	ExistsForIdentities(ctx context.Context, profileID string, ids []models.ApplicantIdentity) (bool, error)
	SaveTransition(ctx context.Context, app *models.Application, expected ...models.ApplicationStatus) error
	ListReceived(ctx context.Context, ownerID string) ([]*models.ApplicationEntry, error)
	ListSent(ctx context.Context, applicantID string) ([]*models.ApplicationEntry, error)
	CountReceivedByStatus(ctx context.Context, ownerID string) (map[models.ApplicationStatus]int, error)
	CountSent(ctx context.Context, applicantID string) (sent, needAnswer int, err error)
}

// Repos bundles the repositories over one database handle
type Repos struct {
	Users        UserRepository
	Profiles     ProfileRepository
	Applications ApplicationRepository
}

// TxFunc runs fn with repositories bound to a single transaction
type TxFunc func(ctx context.Context, fn func(r Repos) error) error

// NewRepos wraps a store
func NewRepos(store *repository.Store) Repos {
	return Repos{
		Users:        store.Users(),
		Profiles:     store.Profiles(),
		Applications: store.Applications(),
	}
}

// StoreTx returns a TxFunc backed by store transactions
func StoreTx(store *repository.Store) TxFunc {
	return func(ctx context.Context, fn func(r Repos) error) error {
		return store.InTx(ctx, func(tx *repository.Store) error {
			return fn(NewRepos(tx))
		})
	}
}

// Clock returns the current time. Tests replace it.
type Clock func() time.Time

func utcNow() time.Time {
	return time.Now().UTC()
}

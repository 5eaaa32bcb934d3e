package repository

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"
	"time"

	"soul-card-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func strPtr(s string) *string { return &s }

func TestUserRepository_Create(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Now()
	user := &models.User{ID: "u1", Email: "a@b.io", Name: "Ann", PasswordHash: "hash", CreatedAt: now}

	mock.ExpectExec("INSERT INTO users").
		WithArgs("u1", "a@b.io", "Ann", "hash", (*string)(nil), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), user))
}

func TestUserRepository_CreateDuplicateEmail(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := repo.Create(context.Background(), &models.User{ID: "u1"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Now()

	mock.ExpectQuery("FROM users").
		WithArgs("a@b.io").
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "name", "password_hash", "push_token", "created_at"}).
			AddRow("u1", "a@b.io", "Ann", "hash", strPtr("tok"), now))

	user, err := repo.GetByEmail(context.Background(), "a@b.io")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "tok", *user.PushToken)
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("FROM users").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_GetByIDFailure(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("FROM users").WithArgs("u1").WillReturnError(errors.New("conn reset"))

	_, err := repo.GetByID(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "conn reset")
}

func TestUserRepository_UpdatePushToken(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectExec("UPDATE users SET push_token").
		WithArgs(strPtr("tok"), "u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE users SET push_token").
		WithArgs(strPtr("tok"), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.UpdatePushToken(context.Background(), "u1", strPtr("tok")))
	assert.ErrorIs(t, repo.UpdatePushToken(context.Background(), "ghost", strPtr("tok")), ErrNotFound)
}

func TestProfileRepository_ShareCodeExists(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("ABCD1234").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ShareCodeExists(context.Background(), "ABCD1234")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestProfileRepository_UpdateNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewProfileRepository(mock)
	p := models.NewDefaultProfile("p1", "u1", "Ann", "ABCD1234", time.Now())

	mock.ExpectExec("UPDATE profiles SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.Update(context.Background(), p), ErrNotFound)
}

func TestApplicationRepository_CreateDuplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)

	args := make([]any, 16)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO applications").
		WithArgs(args...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "applications_profile_wechat_key"})

	err := repo.Create(context.Background(), &models.Application{ID: "a1", Status: models.StatusPending})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestApplicationRepository_ExistsForIdentities(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("p1", (*string)(nil), strPtr("w1"), (*string)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsForIdentities(context.Background(), "p1", []models.ApplicantIdentity{models.ByWechat("W1")})
	require.NoError(t, err)
	assert.True(t, exists)

	// no identity means nothing to compare; no query is issued
	exists, err = repo.ExistsForIdentities(context.Background(), "p1", nil)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestApplicationRepository_SaveTransition(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)
	app := &models.Application{ID: "a1", Status: models.StatusApproved, UpdatedAt: time.Now()}

	mock.ExpectExec("UPDATE applications").
		WithArgs("a1", "approved", []byte("[]"), (*string)(nil), app.UpdatedAt, []string{"pending", "answered"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE applications").
		WithArgs("a1", "approved", []byte("[]"), (*string)(nil), app.UpdatedAt, []string{"pending", "answered"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.SaveTransition(context.Background(), app, models.StatusPending, models.StatusAnswered))
	assert.ErrorIs(t, repo.SaveTransition(context.Background(), app, models.StatusPending, models.StatusAnswered), ErrStaleState)
}

func TestApplicationRepository_CountReceivedByStatus(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)

	mock.ExpectQuery("GROUP BY status").
		WithArgs("owner").
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 2).
			AddRow("answered", 1).
			AddRow("approved", 4))

	counts, err := repo.CountReceivedByStatus(context.Background(), "owner")
	require.NoError(t, err)
	assert.Equal(t, map[models.ApplicationStatus]int{
		models.StatusPending:  2,
		models.StatusAnswered: 1,
		models.StatusApproved: 4,
	}, counts)
}

func TestApplicationRepository_CountSent(t *testing.T) {
	mock := newMock(t)
	repo := NewApplicationRepository(mock)

	mock.ExpectQuery("FILTER").
		WithArgs("u2").
		WillReturnRows(pgxmock.NewRows([]string{"count", "count"}).AddRow(3, 1))

	sent, needAnswer, err := repo.CountSent(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, 1, needAnswer)
}

func TestStore_InTx(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET push_token").
		WithArgs(pgxmock.AnyArg(), "u1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx *Store) error {
		return tx.Users().UpdatePushToken(context.Background(), "u1", nil)
	})
	require.NoError(t, err)
}

func TestStore_InTxRollsBack(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx *Store) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.Contains(t, files, "migrations/00001_init.sql")

	body, err := fs.ReadFile(migrations, "migrations/00001_init.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "applications_profile_user_key")
	assert.Contains(t, string(body), "applications_profile_wechat_key")
	assert.Contains(t, string(body), "applications_profile_email_key")
}

func TestMigrate_UsesEmbeddedDir(t *testing.T) {
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, migrate(context.Background(), nil))
	assert.Equal(t, "migrations", gotDir)

	gooseUp = func(context.Context, *sql.DB, string) error { return errors.New("locked") }
	err := migrate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migrations")
}

package sqlrepo_test

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/internal/utils"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/jrsteele09/go-session-auth/users/sqlrepo"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) *sqlrepo.UserRepo {
	t.Helper()

	ctx := context.Background()
	db, err := sqlrepo.Open(ctx, sqlrepo.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := sqlrepo.New(db)
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo
}

func newUser(email, username string) *users.User {
	return &users.User{
		Email:        email,
		Username:     username,
		Name:         "Test User",
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$a2V5",
		Roles:        users.Roles{users.RoleUser},
		IsActive:     true,
	}
}

func TestUserRepo_CreateAndGet(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	u := newUser("a@x.com", "alice")
	require.NoError(t, repo.Create(ctx, u))
	require.NotEmpty(t, u.ID)

	t.Run("by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "a@x.com", got.Email)
		require.Equal(t, users.Roles{users.RoleUser}, got.Roles)
		require.True(t, got.IsActive)
		require.False(t, got.TwoFactorEnabled)
		require.Nil(t, got.TwoFactorSecret)
	})

	t.Run("by email is case insensitive", func(t *testing.T) {
		got, err := repo.GetByEmail(ctx, "A@X.com")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("by email or username", func(t *testing.T) {
		got, err := repo.GetByEmailOrUsername(ctx, "other@x.com", "alice")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := repo.GetByID(ctx, "nope")
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestUserRepo_CreateDuplicate(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("a@x.com", "alice")))
	require.ErrorIs(t, repo.Create(ctx, newUser("a@x.com", "bob")), apperrors.ErrDuplicate)
	require.ErrorIs(t, repo.Create(ctx, newUser("b@x.com", "alice")), apperrors.ErrDuplicate)
	require.ErrorIs(t, repo.Create(ctx, newUser("A@X.COM", "carol")), apperrors.ErrDuplicate)
}

func TestUserRepo_Update(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	u := newUser("a@x.com", "alice")
	require.NoError(t, repo.Create(ctx, u))

	loginAt := time.Now().UTC().Truncate(time.Second)
	err := repo.Update(ctx, u.ID, users.Update{
		TwoFactorSecret:      utils.Ptr("JBSWY3DPEHPK3PXP"),
		TwoFactorEnabled:     utils.Ptr(true),
		TwoFactorBackupCodes: utils.Ptr(users.EncodeBackupCodes([]string{"AAAA", "BBBB"})),
		TwoFactorNextSecret:  utils.Ptr("KRSXG5CTMVRXEZLU"),
		LastLoginAt:          &loginAt,
		Roles:                &users.Roles{users.RoleAdmin, users.RoleUser, users.RoleAdmin},
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.TwoFactorEnabled)
	require.Equal(t, "JBSWY3DPEHPK3PXP", utils.Value(got.TwoFactorSecret))
	require.Equal(t, "KRSXG5CTMVRXEZLU", utils.Value(got.TwoFactorNextSecret))
	require.Equal(t, users.Roles{users.RoleAdmin, users.RoleUser}, got.Roles)
	require.NotNil(t, got.LastLoginAt)
	require.True(t, loginAt.Equal(got.LastLoginAt.UTC()))

	codes, err := got.BackupCodes()
	require.NoError(t, err)
	require.Equal(t, []string{"AAAA", "BBBB"}, codes)

	require.ErrorIs(t, repo.Update(ctx, "nope", users.Update{IsActive: utils.Ptr(false)}), apperrors.ErrNotFound)
}

func TestUserRepo_List(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newUser("a@x.com", "alice")))
	require.NoError(t, repo.Create(ctx, newUser("b@x.com", "bob")))
	require.NoError(t, repo.Create(ctx, newUser("c@x.com", "carol")))

	all, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)

	page, err := repo.List(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
}

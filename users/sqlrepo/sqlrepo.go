package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

const userColumns = `id, email, username, name, password_hash, roles, is_active, is_verified,
	two_factor_enabled, two_factor_secret, two_factor_backup_codes, two_factor_next_secret, last_login_at, created_at, updated_at`

var _ users.UserRepo = (*UserRepo)(nil)

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Open connects to the database and verifies connectivity with a ping.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, apperrors.Wrapf(err, "open db")
	}
	if driver == DriverSQLite {
		// an in-memory database exists per connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.Wrapf(err, "ping db")
	}
	return db, nil
}

// EnsureSchema creates the users table if it does not exist.
// This is a convenience for development; prefer migrations in production.
func (r *UserRepo) EnsureSchema(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if r.db.DriverName() == DriverSQLite {
		ts = "TIMESTAMP"
	}
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  username TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  roles TEXT NOT NULL DEFAULT 'USER',
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  is_verified BOOLEAN NOT NULL DEFAULT FALSE,
  two_factor_enabled BOOLEAN NOT NULL DEFAULT FALSE,
  two_factor_secret TEXT,
  two_factor_backup_codes TEXT,
  two_factor_next_secret TEXT,
  last_login_at %[1]s,
  created_at %[1]s NOT NULL,
  updated_at %[1]s NOT NULL
)`, ts)
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return apperrors.Wrapf(err, "ensure users table")
	}
	// emails are unique regardless of case, matching the lookups
	if _, err := r.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email))`); err != nil {
		return apperrors.Wrapf(err, "ensure users email index")
	}
	return nil
}

func (r *UserRepo) Create(ctx context.Context, u *users.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Roles == nil {
		u.Roles = users.Roles{}
	}

	q := `INSERT INTO users (` + userColumns + `) VALUES (:id, :email, :username, :name, :password_hash, :roles, :is_active,
		:is_verified, :two_factor_enabled, :two_factor_secret, :two_factor_backup_codes, :two_factor_next_secret, :last_login_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, u); err != nil {
		if isUniqueViolation(err) {
			return apperrors.ErrDuplicate
		}
		return apperrors.Wrapf(err, "insert user")
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*users.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER(CAST(? AS TEXT))`, email)
}

func (r *UserRepo) GetByEmailOrUsername(ctx context.Context, email, username string) (*users.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER(CAST(? AS TEXT)) OR username = ? LIMIT 1`, email, username)
}

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*users.User, error) {
	var u users.User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(q), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Wrapf(err, "select user")
	}
	return &u, nil
}

// Update writes only the fields set on the update.
func (r *UserRepo) Update(ctx context.Context, id string, update users.Update) error {
	if update.Empty() {
		return nil
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if update.TwoFactorSecret != nil {
		add("two_factor_secret", *update.TwoFactorSecret)
	}
	if update.TwoFactorEnabled != nil {
		add("two_factor_enabled", *update.TwoFactorEnabled)
	}
	if update.TwoFactorBackupCodes != nil {
		add("two_factor_backup_codes", *update.TwoFactorBackupCodes)
	}
	if update.TwoFactorNextSecret != nil {
		add("two_factor_next_secret", *update.TwoFactorNextSecret)
	}
	if update.LastLoginAt != nil {
		add("last_login_at", update.LastLoginAt.UTC())
	}
	if update.IsActive != nil {
		add("is_active", *update.IsActive)
	}
	if update.Roles != nil {
		add("roles", update.Roles.Normalize())
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	q := r.db.Rebind(`UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return apperrors.Wrapf(err, "update user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]*users.User, error) {
	if limit <= 0 {
		limit = 100
	}
	list := []*users.User{}
	q := r.db.Rebind(`SELECT ` + userColumns + ` FROM users ORDER BY created_at, id LIMIT ? OFFSET ?`)
	if err := r.db.SelectContext(ctx, &list, q, limit, offset); err != nil {
		return nil, apperrors.Wrapf(err, "list users")
	}
	return list, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

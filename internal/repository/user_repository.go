package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/shop-backend/internal/apperr"
	"github.com/iliyamo/shop-backend/internal/model"
)

const userColumns = "id, username, email, phone, password_hash, role, is_active, is_verified, avatar, last_login, created_at, updated_at"

// UserRepo is the credential store.  Uniqueness of username, email and
// phone is enforced only by the table's UNIQUE keys.
type UserRepo struct {
	users table[model.User]
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{users: table[model.User]{
		db:      db,
		name:    "users",
		columns: userColumns,
		scan:    scanUser,
	}}
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u         model.User
		phone     sql.NullString
		avatar    sql.NullString
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &phone, &u.PasswordHash, &u.Role,
		&u.IsActive, &u.IsVerified, &avatar, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if phone.Valid {
		u.Phone = &phone.String
	}
	if avatar.Valid {
		u.Avatar = &avatar.String
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

// NormalizeEmail lower-cases and trims an address the same way on write and
// on lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts u, filling ID and timestamps.  A duplicate username, email
// or phone yields apperr.ErrUserExists.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	now := time.Now().UTC().Truncate(time.Second)
	u.CreatedAt, u.UpdatedAt = now, now

	const q = `INSERT INTO users (id, username, email, phone, password_hash, role, is_active, is_verified, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.users.exec(ctx, q, u.ID, u.Username, u.Email, u.Phone, u.PasswordHash,
		u.Role, u.IsActive, u.IsVerified, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return apperr.ErrUserExists
		}
		return fmt.Errorf("users: insert: %w", err)
	}
	return nil
}

// FindByIdentifier resolves a login identifier.  A username match wins over
// an email match, which wins over a phone match.
func (r *UserRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	ident := strings.TrimSpace(identifier)
	email := NormalizeEmail(identifier)
	return r.users.one(ctx,
		`WHERE username = ? OR email = ? OR phone = ?
ORDER BY CASE WHEN username = ? THEN 0 WHEN email = ? THEN 1 ELSE 2 END
LIMIT 1`,
		ident, email, ident, ident, email)
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.users.one(ctx, "WHERE id = ? LIMIT 1", id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.users.one(ctx, "WHERE email = ? LIMIT 1", NormalizeEmail(email))
}

// Update writes the non-nil fields of upd.  It returns ErrNotFound when no
// row has the given id and apperr.ErrUserExists when a new username, email
// or phone is already taken.
func (r *UserRepo) Update(ctx context.Context, id string, upd model.UserUpdate) error {
	if upd.Empty() {
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
	if upd.Username != nil {
		add("username", strings.TrimSpace(*upd.Username))
	}
	if upd.Email != nil {
		add("email", NormalizeEmail(*upd.Email))
	}
	if upd.Phone != nil {
		if phone := strings.TrimSpace(*upd.Phone); phone != "" {
			add("phone", phone)
		} else {
			add("phone", nil)
		}
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.Role != nil {
		add("role", *upd.Role)
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if upd.IsVerified != nil {
		add("is_verified", *upd.IsVerified)
	}
	if upd.Avatar != nil {
		add("avatar", *upd.Avatar)
	}
	if upd.LastLogin != nil {
		add("last_login", upd.LastLogin.UTC())
	}
	add("updated_at", time.Now().UTC().Truncate(time.Second))
	args = append(args, id)

	q := "UPDATE users SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	n, err := r.users.exec(ctx, q, args...)
	if err != nil {
		if isDuplicate(err) {
			return apperr.ErrUserExists
		}
		return fmt.Errorf("users: update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of users ordered by creation time, plus the number
// of users matching the filter across all pages.
func (r *UserRepo) List(ctx context.Context, f model.UserFilter) ([]model.User, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Role != "" {
		conds = append(conds, "role = ?")
		args = append(args, f.Role)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(s) + "%"
		conds = append(conds, "(username LIKE ? OR email LIKE ?)")
		args = append(args, like, like)
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	total, err := r.users.count(ctx, where, args...)
	if err != nil {
		return nil, 0, err
	}
	users, err := r.users.many(ctx, where+" ORDER BY created_at, id LIMIT ? OFFSET ?",
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

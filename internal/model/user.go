package model

import "time"

// Role is the access level stored in users.role.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// User represents an account record as stored in the `users` table.  The
// json tags are omitted because handlers render their own response types;
// PasswordHash must never leave the process.
//
// Fields:
//
//	ID           – UUID primary key (CHAR(36)).
//	Username     – unique login name.
//	Email        – unique, lower-cased email address.
//	Phone        – unique phone number, nil when not provided.
//	PasswordHash – bcrypt hash.
//	Role         – admin, moderator or user.
//	IsActive     – deactivated accounts can never authenticate.
//	IsVerified   – flips to true once, on email verification.
//	Avatar       – public URL of the uploaded avatar, nil when unset.
//	LastLogin    – time of the last successful login, nil before the first.
type User struct {
	ID           string
	Username     string
	Email        string
	Phone        *string
	PasswordHash string
	Role         Role
	IsActive     bool
	IsVerified   bool
	Avatar       *string
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserUpdate lists the columns that may change after registration.  Nil
// fields are left untouched; a Phone pointing at "" clears the column.
type UserUpdate struct {
	Username     *string
	Email        *string
	Phone        *string
	PasswordHash *string
	Role         *Role
	IsActive     *bool
	IsVerified   *bool
	Avatar       *string
	LastLogin    *time.Time
}

// Empty reports whether the update would not touch any column.
func (u UserUpdate) Empty() bool {
	return u.Username == nil && u.Email == nil && u.Phone == nil &&
		u.PasswordHash == nil && u.Role == nil && u.IsActive == nil &&
		u.IsVerified == nil && u.Avatar == nil && u.LastLogin == nil
}

// UserFilter selects one page of the user list.  An empty Role matches every
// role; Search matches a substring of username or email.
type UserFilter struct {
	Role   Role
	Search string
	Offset int
	Limit  int
}

// Package storage defines the shortener's records and the flat-file tables
// that persist them.
//
// The tables live in one root directory, one file per table:
//   - users: id|email|password
//   - aliases: alias|url|userId|usages
//   - usersessions: token|userId
//   - useraliases: alias|userId
package storage

import (
	"github.com/maruel/urlshort/internal/flatdb"
)

// User is a registered account.
type User struct {
	ID       int64  `json:"id" jsonschema:"description=Primary key assigned on creation (max existing id + 1)"`
	Email    string `json:"email" jsonschema:"description=Unique email address"`
	Password string `json:"password" jsonschema:"description=Password hash computed by the caller"`
}

// UserTable stores users. The ID is assigned on creation and the email is
// unique.
type UserTable struct {
	*flatdb.File
}

// NewUserTable returns the users table under root.
func NewUserTable(root string) *UserTable {
	return &UserTable{File: flatdb.NewFile(root, "users")}
}

// Serialize encodes u as id|email|password.
func (t *UserTable) Serialize(u User) string {
	return flatdb.JoinFields(flatdb.FormatInt(u.ID), u.Email, u.Password)
}

// Deserialize decodes a line written by Serialize.
func (t *UserTable) Deserialize(line string) (User, error) {
	f, err := flatdb.SplitFields(line, 3)
	if err != nil {
		return User{}, err
	}
	id, err := flatdb.ParseInt("id", f[0])
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Email: f[1], Password: f[2]}, nil
}

// FormatKey formats a user ID.
func (t *UserTable) FormatKey(id int64) string {
	return flatdb.FormatInt(id)
}

// PrepareForCreation rejects a duplicate email and assigns the next ID.
func (t *UserTable) PrepareForCreation(u User) (User, error) {
	var maxID int64
	for row, err := range flatdb.Rows[User, int64](t) {
		if err != nil {
			return User{}, err
		}
		if row.Email == u.Email {
			return User{}, &flatdb.UniqueViolationError{Table: t.Name(), Field: "email"}
		}
		maxID = max(maxID, row.ID)
	}
	u.ID = maxID + 1
	return u, nil
}

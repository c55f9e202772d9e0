package storage

import (
	"github.com/maruel/urlshort/internal/flatdb"
)

// UserSession binds an access token to a user.
type UserSession struct {
	UserID int64  `json:"user_id" jsonschema:"description=Session owner"`
	Token  string `json:"token" jsonschema:"description=Opaque access token; primary key"`
}

// UserSessionTable stores sessions keyed by token.
//
// The token is written first so the primary key leads the line. Only the
// token is unique here; one session per user is the session service's job.
type UserSessionTable struct {
	*flatdb.File
}

// NewUserSessionTable returns the usersessions table under root.
func NewUserSessionTable(root string) *UserSessionTable {
	return &UserSessionTable{File: flatdb.NewFile(root, "usersessions")}
}

// Serialize encodes s as token|userId.
func (t *UserSessionTable) Serialize(s UserSession) string {
	return flatdb.JoinFields(s.Token, flatdb.FormatInt(s.UserID))
}

// Deserialize decodes a line written by Serialize.
func (t *UserSessionTable) Deserialize(line string) (UserSession, error) {
	f, err := flatdb.SplitFields(line, 2)
	if err != nil {
		return UserSession{}, err
	}
	userID, err := flatdb.ParseInt("userId", f[1])
	if err != nil {
		return UserSession{}, err
	}
	return UserSession{UserID: userID, Token: f[0]}, nil
}

// FormatKey returns the token unchanged.
func (t *UserSessionTable) FormatKey(token string) string {
	return token
}

// PrepareForCreation rejects a token that already exists.
func (t *UserSessionTable) PrepareForCreation(s UserSession) (UserSession, error) {
	err := flatdb.EnsureNewKey[UserSession, string](t, "token", s.Token)
	return s, err
}

package storage

import (
	"github.com/maruel/urlshort/internal/flatdb"
)

// UserAlias links an alias to the user who created it.
type UserAlias struct {
	UserID int64  `json:"user_id" jsonschema:"description=Owner"`
	Alias  string `json:"alias" jsonschema:"description=Linked alias; primary key"`
}

// UserAliasTable stores user-alias links keyed by alias.
type UserAliasTable struct {
	*flatdb.File
}

// NewUserAliasTable returns the useraliases table under root.
func NewUserAliasTable(root string) *UserAliasTable {
	return &UserAliasTable{File: flatdb.NewFile(root, "useraliases")}
}

// Serialize encodes l as alias|userId.
func (t *UserAliasTable) Serialize(l UserAlias) string {
	return flatdb.JoinFields(l.Alias, flatdb.FormatInt(l.UserID))
}

// Deserialize decodes a line written by Serialize.
func (t *UserAliasTable) Deserialize(line string) (UserAlias, error) {
	f, err := flatdb.SplitFields(line, 2)
	if err != nil {
		return UserAlias{}, err
	}
	userID, err := flatdb.ParseInt("userId", f[1])
	if err != nil {
		return UserAlias{}, err
	}
	return UserAlias{UserID: userID, Alias: f[0]}, nil
}

// FormatKey returns the alias unchanged.
func (t *UserAliasTable) FormatKey(alias string) string {
	return alias
}

// PrepareForCreation rejects an alias that is already linked.
func (t *UserAliasTable) PrepareForCreation(l UserAlias) (UserAlias, error) {
	err := flatdb.EnsureNewKey[UserAlias, string](t, "alias", l.Alias)
	return l, err
}

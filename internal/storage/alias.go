package storage

import (
	"strconv"

	"github.com/maruel/urlshort/internal/flatdb"
)

// DefaultAliasLength is the length of generated aliases.
const DefaultAliasLength = 5

// Alias maps a short name to a target URL.
type Alias struct {
	Alias  string `json:"alias" jsonschema:"description=Short name; primary key"`
	URL    string `json:"url" jsonschema:"description=Redirect target"`
	UserID int64  `json:"user_id" jsonschema:"description=Owner"`
	Usages int    `json:"usages" jsonschema:"description=Redirect counter"`
}

// AliasTable stores aliases keyed by the alias itself.
type AliasTable struct {
	*flatdb.File
}

// NewAliasTable returns the aliases table under root.
func NewAliasTable(root string) *AliasTable {
	return &AliasTable{File: flatdb.NewFile(root, "aliases")}
}

// Serialize encodes a as alias|url|userId|usages.
func (t *AliasTable) Serialize(a Alias) string {
	return flatdb.JoinFields(a.Alias, a.URL, flatdb.FormatInt(a.UserID), strconv.Itoa(a.Usages))
}

// Deserialize decodes a line written by Serialize.
func (t *AliasTable) Deserialize(line string) (Alias, error) {
	f, err := flatdb.SplitFields(line, 4)
	if err != nil {
		return Alias{}, err
	}
	userID, err := flatdb.ParseInt("userId", f[2])
	if err != nil {
		return Alias{}, err
	}
	usages, err := flatdb.ParseInt("usages", f[3])
	if err != nil {
		return Alias{}, err
	}
	return Alias{Alias: f[0], URL: f[1], UserID: userID, Usages: int(usages)}, nil
}

// FormatKey returns the alias unchanged.
func (t *AliasTable) FormatKey(alias string) string {
	return alias
}

// PrepareForCreation rejects an alias that already exists, ignoring case.
func (t *AliasTable) PrepareForCreation(a Alias) (Alias, error) {
	err := flatdb.EnsureNewKey[Alias, string](t, "alias", a.Alias)
	return a, err
}

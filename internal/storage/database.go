package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/maruel/urlshort/internal/flatdb"
)

// DefaultRoot is the default root directory of the tables.
const DefaultRoot = "data"

// Database groups the shortener's tables under one root directory.
//
// The tables are passed to the flatdb functions, e.g.
// flatdb.Get(db.Users, id). Open a given root from one process only.
type Database struct {
	root string

	Users       flatdb.Table[User, int64]
	Aliases     flatdb.Table[Alias, string]
	UserAliases flatdb.Table[UserAlias, string]
	Sessions    flatdb.Table[UserSession, string]
}

// New returns the tables under root without touching the filesystem.
func New(root string) *Database {
	return &Database{
		root:        root,
		Users:       NewUserTable(root),
		Aliases:     NewAliasTable(root),
		UserAliases: NewUserAliasTable(root),
		Sessions:    NewUserSessionTable(root),
	}
}

// Open returns the tables under root, creating the directory and any missing
// table file.
func Open(root string) (*Database, error) {
	db := New(root)
	if err := db.Init(); err != nil {
		return nil, err
	}
	return db, nil
}

// Root returns the root directory.
func (db *Database) Root() string {
	return db.root
}

// Init ensures the root directory and every table file exist. Existing
// content is untouched.
func (db *Database) Init() error {
	if err := flatdb.Bootstrap(db.root, db.Users, db.Aliases, db.UserAliases, db.Sessions); err != nil {
		return fmt.Errorf("failed to initialize database in %s: %w", db.root, err)
	}
	return nil
}

// TableNames returns the table names in bootstrap order.
func (db *Database) TableNames() []string {
	return []string{db.Users.Name(), db.Aliases.Name(), db.UserAliases.Name(), db.Sessions.Name()}
}

// Watch calls fn with the table name whenever a table file is written,
// created, removed or renamed, until ctx is done.
//
// Changes made by other processes are reported too.
func (db *Database) Watch(ctx context.Context, fn func(table string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(db.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", db.root, err)
	}

	known := make(map[string]bool)
	for _, name := range db.TableNames() {
		known[name] = true
	}
	const ops = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if name := filepath.Base(event.Name); known[name] && event.Op&ops != 0 {
				fn(name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "Error watching tables", "root", db.root, "err", err)
		}
	}
}

// Implements the subcommands.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/maruel/urlshort/internal/config"
	"github.com/maruel/urlshort/internal/flatdb"
	"github.com/maruel/urlshort/internal/storage"
	"github.com/maruel/urlshort/internal/storage/identity"
	"github.com/maruel/urlshort/internal/storage/shortlink"
	"golang.org/x/time/rate"
)

var (
	errInvalidToken = errors.New("invalid or expired token")
	errUsage        = errors.New("wrong arguments")
)

type command struct {
	name string
	args string
	help string
	run  func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"init", "", "create the data directory, the tables and config.yaml", (*app).cmdInit},
	{"useradd", "<email> <password>", "create a user", (*app).cmdUserAdd},
	{"users", "", "list users", (*app).cmdUsers},
	{"login", "<email> <password>", "start a session and print its token", (*app).cmdLogin},
	{"logout", "<token>", "end a session", (*app).cmdLogout},
	{"shorten", "[-alias a] -token t <url>", "create a short link", (*app).cmdShorten},
	{"resolve", "<alias>", "print the target of an alias", (*app).cmdResolve},
	{"links", "-token t", "list the caller's aliases", (*app).cmdLinks},
	{"unlink", "-token t <alias>", "delete one of the caller's aliases", (*app).cmdUnlink},
	{"dump", "<table>", "print a table as JSON lines", (*app).cmdDump},
	{"schema", "", "print the JSON schema of every table", (*app).cmdSchema},
	{"watch", "", "log table changes until interrupted", (*app).cmdWatch},
}

func commandHelp() string {
	var b strings.Builder
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-10s %-26s %s\n", c.name, c.args, c.help)
	}
	return b.String()
}

// tableOps exposes one table to the generic admin commands.
type tableOps struct {
	record any
	count  func() (int, error)
	dump   func(w io.Writer) error
}

func newTableOps[T any, K comparable](t flatdb.Table[T, K]) tableOps {
	return tableOps{
		record: new(T),
		count:  func() (int, error) { return flatdb.Count(t) },
		dump: func(w io.Writer) error {
			rows, err := flatdb.Search(t)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(w)
			for i := range rows {
				if err := enc.Encode(&rows[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type app struct {
	db       *storage.Database
	cfg      *config.Config
	users    *identity.UserService
	sessions *identity.SessionService
	links    *shortlink.Service
	tables   map[string]tableOps
	out      io.Writer
}

func newApp(db *storage.Database, cfg *config.Config, out io.Writer) *app {
	return &app{
		db:       db,
		cfg:      cfg,
		users:    identity.NewUserService(db.Users, cfg.BcryptCost),
		sessions: identity.NewSessionService(db.Sessions),
		links: shortlink.New(db.Aliases, db.UserAliases, shortlink.Options{
			AliasLength: cfg.AliasLength,
			MaxRetries:  cfg.AliasRetries,
			BaseURL:     cfg.BaseURL,
		}),
		tables: map[string]tableOps{
			db.Users.Name():       newTableOps(db.Users),
			db.Aliases.Name():     newTableOps(db.Aliases),
			db.UserAliases.Name(): newTableOps(db.UserAliases),
			db.Sessions.Name():    newTableOps(db.Sessions),
		},
		out: out,
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	i := slices.IndexFunc(commands, func(c command) bool { return c.name == args[0] })
	if i < 0 {
		return fmt.Errorf("unknown command %q", args[0])
	}
	c := commands[i]
	if err := c.run(a, ctx, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return fmt.Errorf("usage: urlshort %s %s", c.name, c.args)
		}
		return err
	}
	return nil
}

func (a *app) cmdInit(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	// The database and config.yaml were created on startup.
	for _, name := range a.db.TableNames() {
		fmt.Fprintln(a.out, filepath.Join(a.db.Root(), name))
	}
	slog.InfoContext(ctx, "Initialized", "root", a.db.Root())
	return nil
}

func (a *app) cmdUserAdd(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	u, err := a.users.Create(args[0], args[1])
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Created user", "id", u.ID, "email", u.Email)
	fmt.Fprintln(a.out, u.ID)
	return nil
}

func (a *app) cmdUsers(_ context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	users, err := a.users.List()
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Fprintf(a.out, "%d\t%s\n", u.ID, u.Email)
	}
	return nil
}

func (a *app) cmdLogin(_ context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	u, err := a.users.Authenticate(args[0], args[1])
	if err != nil {
		return err
	}
	sess, err := a.sessions.Start(u.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, sess.Token)
	return nil
}

func (a *app) cmdLogout(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if _, err := a.sessions.End(args[0]); err != nil {
		if errors.Is(err, flatdb.ErrNotFound) {
			return errInvalidToken
		}
		return err
	}
	return nil
}

func (a *app) cmdShorten(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("shorten", flag.ContinueOnError)
	alias := fs.String("alias", "", "Alias to use; random when empty")
	token := fs.String("token", "", "Session token from login")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	u, err := a.caller(*token)
	if err != nil {
		return err
	}
	created, err := a.links.Shorten(fs.Arg(0), *alias, u.ID)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Created alias", "alias", created.Alias, "user", u.ID)
	fmt.Fprintln(a.out, shortlink.Link(a.cfg.BaseURL, created.Alias))
	return nil
}

func (a *app) cmdResolve(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	target, err := a.links.Resolve(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, target.URL)
	return nil
}

func (a *app) cmdLinks(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("links", flag.ContinueOnError)
	token := fs.String("token", "", "Session token from login")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return errUsage
	}
	u, err := a.caller(*token)
	if err != nil {
		return err
	}
	aliases, err := a.links.ListByUser(u.ID)
	if err != nil {
		return err
	}
	for _, al := range aliases {
		fmt.Fprintf(a.out, "%s\t%s\n", al.Alias, al.URL)
	}
	return nil
}

func (a *app) cmdUnlink(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("unlink", flag.ContinueOnError)
	token := fs.String("token", "", "Session token from login")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}
	u, err := a.caller(*token)
	if err != nil {
		return err
	}
	deleted, err := a.links.Delete(fs.Arg(0), u.ID)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Deleted alias", "alias", deleted.Alias, "user", u.ID)
	return nil
}

func (a *app) cmdDump(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	t, ok := a.tables[args[0]]
	if !ok {
		return fmt.Errorf("unknown table %q; one of %s", args[0], strings.Join(a.db.TableNames(), ", "))
	}
	return t.dump(a.out)
}

func (a *app) cmdSchema(_ context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	// Generate JSON Schema from type with inline properties (no $ref).
	r := jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	schemas := make(map[string]*jsonschema.Schema, len(a.tables))
	for name, t := range a.tables {
		schemas[name] = r.Reflect(t.record)
	}
	data, err := json.MarshalIndent(schemas, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out, "%s\n", data)
	return err
}

func (a *app) cmdWatch(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	limiters := make(map[string]*rate.Limiter)
	skipped := make(map[string]int)
	slog.InfoContext(ctx, "Watching tables", "root", a.db.Root())
	return a.db.Watch(ctx, func(table string) {
		l := limiters[table]
		if l == nil {
			l = rate.NewLimiter(rate.Every(time.Second), 1)
			limiters[table] = l
		}
		if !l.Allow() {
			skipped[table]++
			return
		}
		n, err := a.tables[table].count()
		slog.InfoContext(ctx, "Table changed", "table", table, "rows", n, "skipped", skipped[table], "err", err)
		skipped[table] = 0
	})
}

// caller returns the user owning the session token.
func (a *app) caller(token string) (*storage.User, error) {
	if token == "" {
		return nil, errors.New("-token is required")
	}
	sess, err := a.sessions.Get(token)
	if errors.Is(err, flatdb.ErrNotFound) {
		return nil, errInvalidToken
	} else if err != nil {
		return nil, err
	}
	u, err := a.users.Get(sess.UserID)
	if errors.Is(err, flatdb.ErrNotFound) {
		return nil, errInvalidToken
	}
	return u, err
}

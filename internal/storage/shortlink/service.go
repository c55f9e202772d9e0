// Package shortlink creates, resolves and deletes short aliases owned by
// users.
package shortlink

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/maruel/urlshort/internal/flatdb"
	"github.com/maruel/urlshort/internal/storage"
)

var (
	// ErrInvalidURL is returned for a target that is not an absolute http or
	// https URL.
	ErrInvalidURL = errors.New("url must be an absolute http or https url")
	// ErrLocalURL is returned for a target pointing back at the shortener.
	ErrLocalURL = errors.New("local urls are not allowed")
	// ErrAliasSpace is returned when no free random alias was found.
	ErrAliasSpace = errors.New("failed to generate a random alias")

	errUserIDEmpty = errors.New("user id cannot be empty")
	errAliasEmpty  = errors.New("alias is required")
)

const aliasAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Options configures a Service.
type Options struct {
	// AliasLength is the length of generated aliases. Defaults to
	// storage.DefaultAliasLength.
	AliasLength int
	// MaxRetries bounds how many taken random aliases are skipped. Defaults to
	// 100.
	MaxRetries int
	// BaseURL is the shortener's public URL. Targets on the same host are
	// rejected when set.
	BaseURL string
}

// Service manages aliases and the links to their owners.
type Service struct {
	aliases     flatdb.Table[storage.Alias, string]
	userAliases flatdb.Table[storage.UserAlias, string]
	opts        Options
	localHost   string
}

// New returns a Service over the two tables.
func New(aliases flatdb.Table[storage.Alias, string], userAliases flatdb.Table[storage.UserAlias, string], opts Options) *Service {
	if opts.AliasLength <= 0 {
		opts.AliasLength = storage.DefaultAliasLength
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 100
	}
	s := &Service{aliases: aliases, userAliases: userAliases, opts: opts}
	if u, err := url.Parse(opts.BaseURL); err == nil {
		s.localHost = strings.ToLower(u.Host)
	}
	return s
}

// Shorten creates an alias for rawURL owned by userID. An empty alias selects
// a random one.
func (s *Service) Shorten(rawURL, alias string, userID int64) (*storage.Alias, error) {
	if userID <= 0 {
		return nil, errUserIDEmpty
	}
	if err := s.validateURL(rawURL); err != nil {
		return nil, err
	}
	alias = strings.TrimSpace(alias)
	if alias == "" {
		var err error
		if alias, err = s.freeAlias(); err != nil {
			return nil, err
		}
	}
	a, err := flatdb.Create(s.aliases, storage.Alias{Alias: alias, URL: rawURL, UserID: userID})
	if err != nil {
		return nil, err
	}
	if _, err := flatdb.Create(s.userAliases, storage.UserAlias{UserID: userID, Alias: alias}); err != nil {
		if _, err2 := flatdb.Delete(s.aliases, alias); err2 != nil {
			slog.Warn("shortlink: failed to roll back alias", "alias", alias, "err", err2)
		}
		return nil, err
	}
	return &a, nil
}

// Resolve returns the alias record for alias.
func (s *Service) Resolve(alias string) (*storage.Alias, error) {
	if alias == "" {
		return nil, errAliasEmpty
	}
	a, err := flatdb.Get(s.aliases, alias)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListByUser returns the aliases owned by userID in creation order.
func (s *Service) ListByUser(userID int64) ([]storage.Alias, error) {
	return flatdb.SearchFunc(s.aliases, func(a storage.Alias) bool { return a.UserID == userID })
}

// Delete removes alias and its owner link. An alias owned by another user is
// reported as not found.
func (s *Service) Delete(alias string, userID int64) (*storage.Alias, error) {
	a, err := s.Resolve(alias)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, &flatdb.NotFoundError{Table: s.aliases.Name(), PK: alias}
	}
	// The link goes first so a failure never leaves a link without its alias.
	// A missing link is ignored so an interrupted delete can be retried.
	if _, err := flatdb.Delete(s.userAliases, alias); err != nil && !errors.Is(err, flatdb.ErrNotFound) {
		return nil, err
	}
	deleted, err := flatdb.Delete(s.aliases, alias)
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

// Link returns the public short URL of alias under base.
func Link(base, alias string) string {
	return strings.TrimRight(base, "/") + "/r/" + url.PathEscape(alias)
}

func (s *Service) validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	if s.localHost != "" && strings.ToLower(u.Host) == s.localHost {
		return ErrLocalURL
	}
	return nil
}

// freeAlias draws random aliases until one is not taken. A concurrent
// Shorten may still take it first, which Create then reports as a unique
// violation.
func (s *Service) freeAlias() (string, error) {
	for range s.opts.MaxRetries + 1 {
		alias := randomAlias(s.opts.AliasLength)
		_, err := flatdb.Get(s.aliases, alias)
		if errors.Is(err, flatdb.ErrNotFound) {
			return alias, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", ErrAliasSpace
}

func randomAlias(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = aliasAlphabet[rand.IntN(len(aliasAlphabet))]
	}
	return string(b)
}

package shortlink

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/maruel/urlshort/internal/flatdb"
	"github.com/maruel/urlshort/internal/storage"
)

func setupService(t *testing.T, opts Options) (*Service, *storage.Database) {
	t.Helper()
	db, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(db.Aliases, db.UserAliases, opts), db
}

func TestService(t *testing.T) {
	t.Run("Shorten", func(t *testing.T) {
		t.Run("valid", func(t *testing.T) {
			s, db := setupService(t, Options{})
			a, err := s.Shorten("https://example.com/a?b=c", "mine", 1)
			if err != nil {
				t.Fatal(err)
			}
			want := storage.Alias{Alias: "mine", URL: "https://example.com/a?b=c", UserID: 1}
			if *a != want {
				t.Errorf("Shorten() = %+v, want %+v", a, want)
			}
			link, err := flatdb.Get(db.UserAliases, "mine")
			if err != nil {
				t.Fatal(err)
			}
			if link.UserID != 1 {
				t.Errorf("link owner = %d, want 1", link.UserID)
			}
		})

		t.Run("random alias", func(t *testing.T) {
			s, _ := setupService(t, Options{AliasLength: 8})
			a, err := s.Shorten("http://example.com", "", 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(a.Alias) != 8 {
				t.Errorf("alias %q length = %d, want 8", a.Alias, len(a.Alias))
			}
			for _, c := range a.Alias {
				if !strings.ContainsRune(aliasAlphabet, c) {
					t.Errorf("alias %q contains %q", a.Alias, c)
				}
			}
		})

		t.Run("alias space exhausted", func(t *testing.T) {
			s, db := setupService(t, Options{AliasLength: 1, MaxRetries: 10})
			var b strings.Builder
			for _, c := range aliasAlphabet {
				b.WriteString(string(c) + "|http://x.y|1|0\n")
			}
			if err := os.WriteFile(db.Aliases.Path(), []byte(b.String()), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Shorten("http://example.com", "", 1); !errors.Is(err, ErrAliasSpace) {
				t.Errorf("Shorten() error = %v, want ErrAliasSpace", err)
			}
		})

		t.Run("link insert failure rolls back the alias", func(t *testing.T) {
			s, db := setupService(t, Options{})
			if _, err := flatdb.Create(db.UserAliases, storage.UserAlias{UserID: 9, Alias: "stale"}); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Shorten("http://example.com", "stale", 1); !errors.Is(err, flatdb.ErrUniqueViolation) {
				t.Fatalf("Shorten() error = %v, want ErrUniqueViolation", err)
			}
			if _, err := flatdb.Get(db.Aliases, "stale"); !errors.Is(err, flatdb.ErrNotFound) {
				t.Errorf("alias left behind: %v", err)
			}
		})

		t.Run("errors", func(t *testing.T) {
			s, _ := setupService(t, Options{BaseURL: "http://sho.rt:8080"})
			if _, err := s.Shorten("http://example.com", "taken", 1); err != nil {
				t.Fatal(err)
			}
			tests := []struct {
				name   string
				url    string
				alias  string
				userID int64
				want   error
			}{
				{"no user", "http://example.com", "", 0, errUserIDEmpty},
				{"empty url", "", "", 1, ErrInvalidURL},
				{"relative url", "/path", "", 1, ErrInvalidURL},
				{"ftp url", "ftp://example.com", "", 1, ErrInvalidURL},
				{"no host", "http://", "", 1, ErrInvalidURL},
				{"malformed", "http://[::1", "", 1, ErrInvalidURL},
				{"local", "http://SHO.RT:8080/r/x", "", 1, ErrLocalURL},
				{"taken", "http://example.org", "taken", 2, flatdb.ErrUniqueViolation},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					if _, err := s.Shorten(tt.url, tt.alias, tt.userID); !errors.Is(err, tt.want) {
						t.Errorf("Shorten() error = %v, want %v", err, tt.want)
					}
				})
			}
		})
	})

	t.Run("Resolve", func(t *testing.T) {
		s, _ := setupService(t, Options{})
		if _, err := s.Shorten("https://example.com", "Go", 1); err != nil {
			t.Fatal(err)
		}
		a, err := s.Resolve("go")
		if err != nil {
			t.Fatal(err)
		}
		if a.URL != "https://example.com" {
			t.Errorf("Resolve() URL = %q", a.URL)
		}
		if _, err := s.Resolve("nope"); !errors.Is(err, flatdb.ErrNotFound) {
			t.Errorf("Resolve() error = %v, want ErrNotFound", err)
		}
		if _, err := s.Resolve(""); !errors.Is(err, errAliasEmpty) {
			t.Errorf("Resolve(\"\") error = %v, want %v", err, errAliasEmpty)
		}
	})

	t.Run("ListByUser", func(t *testing.T) {
		s, _ := setupService(t, Options{})
		for _, in := range []struct {
			alias string
			user  int64
		}{{"a1", 1}, {"b2", 2}, {"a3", 1}} {
			if _, err := s.Shorten("https://example.com/"+in.alias, in.alias, in.user); err != nil {
				t.Fatal(err)
			}
		}
		got, err := s.ListByUser(1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 2 || got[0].Alias != "a1" || got[1].Alias != "a3" {
			t.Errorf("ListByUser(1) = %+v", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s, db := setupService(t, Options{})
		if _, err := s.Shorten("https://example.com", "mine", 1); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Delete("mine", 2); !errors.Is(err, flatdb.ErrNotFound) {
			t.Errorf("Delete() by another user error = %v, want ErrNotFound", err)
		}
		a, err := s.Delete("mine", 1)
		if err != nil {
			t.Fatal(err)
		}
		if a.Alias != "mine" {
			t.Errorf("Delete() = %+v", a)
		}
		for _, n := range []func() (int, error){
			func() (int, error) { return flatdb.Count(db.Aliases) },
			func() (int, error) { return flatdb.Count(db.UserAliases) },
		} {
			if c, err := n(); err != nil || c != 0 {
				t.Errorf("Count() = %d, %v; want 0", c, err)
			}
		}

		// A missing owner link does not block the delete.
		if _, err := flatdb.Create(db.Aliases, storage.Alias{Alias: "orphan", URL: "http://x.y", UserID: 1}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Delete("orphan", 1); err != nil {
			t.Errorf("Delete(orphan) error = %v", err)
		}
	})

	t.Run("aliases differing by case", func(t *testing.T) {
		s, db := setupService(t, Options{})
		if _, err := s.Shorten("https://one.example/", "abc", 1); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Shorten("https://two.example/", "ABC", 2); !errors.Is(err, flatdb.ErrUniqueViolation) {
			t.Fatalf("Shorten(ABC) error = %v, want ErrUniqueViolation", err)
		}
		if got, err := s.ListByUser(2); err != nil || len(got) != 0 {
			t.Errorf("ListByUser(2) = %+v, %v; want none", got, err)
		}
		if _, err := s.Delete("ABC", 2); !errors.Is(err, flatdb.ErrNotFound) {
			t.Errorf("Delete(ABC, 2) error = %v, want ErrNotFound", err)
		}
		a, err := s.Resolve("ABC")
		if err != nil {
			t.Fatal(err)
		}
		if a.UserID != 1 || a.URL != "https://one.example/" {
			t.Errorf("Resolve(ABC) = %+v, want user 1's alias", a)
		}
		if _, err := s.Delete("ABC", 1); err != nil {
			t.Fatal(err)
		}
		for _, n := range []func() (int, error){
			func() (int, error) { return flatdb.Count(db.Aliases) },
			func() (int, error) { return flatdb.Count(db.UserAliases) },
		} {
			if c, err := n(); err != nil || c != 0 {
				t.Errorf("Count() = %d, %v; want 0", c, err)
			}
		}
	})

	t.Run("Delete keeps the alias when the link cannot be removed", func(t *testing.T) {
		s, db := setupService(t, Options{})
		if _, err := s.Shorten("https://example.com", "mine", 1); err != nil {
			t.Fatal(err)
		}
		// A directory in place of the table file makes every read fail.
		if err := os.Remove(db.UserAliases.Path()); err != nil {
			t.Fatal(err)
		}
		if err := os.Mkdir(db.UserAliases.Path(), 0o755); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Delete("mine", 1); err == nil || errors.Is(err, flatdb.ErrNotFound) {
			t.Fatalf("Delete() error = %v, want an I/O error", err)
		}
		if _, err := s.Resolve("mine"); err != nil {
			t.Errorf("alias removed despite the failure: %v", err)
		}
	})

	t.Run("Link", func(t *testing.T) {
		if got := Link("http://localhost:8080/", "a b"); got != "http://localhost:8080/r/a%20b" {
			t.Errorf("Link() = %q", got)
		}
	})
}

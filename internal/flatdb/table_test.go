package flatdb

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// testRow is a record with an assigned integer key and a unique name.
type testRow struct {
	ID   int64
	Name string
}

type testTable struct {
	*File
}

func (tt *testTable) Serialize(r testRow) string {
	return JoinFields(FormatInt(r.ID), r.Name)
}

func (tt *testTable) Deserialize(line string) (testRow, error) {
	f, err := SplitFields(line, 2)
	if err != nil {
		return testRow{}, err
	}
	id, err := ParseInt("id", f[0])
	if err != nil {
		return testRow{}, err
	}
	return testRow{ID: id, Name: f[1]}, nil
}

func (tt *testTable) FormatKey(pk int64) string {
	return FormatInt(pk)
}

func (tt *testTable) PrepareForCreation(r testRow) (testRow, error) {
	var maxID int64
	for row, err := range Rows[testRow, int64](tt) {
		if err != nil {
			return testRow{}, err
		}
		if row.Name == r.Name {
			return testRow{}, &UniqueViolationError{Table: tt.Name(), Field: "name"}
		}
		maxID = max(maxID, row.ID)
	}
	r.ID = maxID + 1
	return r, nil
}

// noteRow is a record keyed by a caller-chosen string.
type noteRow struct {
	Key  string
	Text string
}

type noteTable struct {
	*File
}

func (nt *noteTable) Serialize(r noteRow) string {
	return JoinFields(r.Key, r.Text)
}

func (nt *noteTable) Deserialize(line string) (noteRow, error) {
	f, err := SplitFields(line, 2)
	if err != nil {
		return noteRow{}, err
	}
	return noteRow{Key: f[0], Text: f[1]}, nil
}

func (nt *noteTable) FormatKey(pk string) string {
	return pk
}

func (nt *noteTable) PrepareForCreation(r noteRow) (noteRow, error) {
	err := EnsureNewKey(Table[noteRow, string](nt), "key", r.Key)
	return r, err
}

// setupTable creates an initialized table in the test's temp directory.
func setupTable(t *testing.T) (Table[testRow, int64], string) {
	tbl := &testTable{File: NewFile(t.TempDir(), "test")}
	if err := tbl.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return tbl, tbl.Path()
}

func setupNotes(t *testing.T) (Table[noteRow, string], string) {
	tbl := &noteTable{File: NewFile(t.TempDir(), "notes")}
	if err := tbl.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return tbl, tbl.Path()
}

func TestFile(t *testing.T) {
	t.Run("Init", func(t *testing.T) {
		t.Run("creates file", func(t *testing.T) {
			f := NewFile(t.TempDir(), "users")
			if err := f.Init(); err != nil {
				t.Fatalf("Init error: %v", err)
			}
			if _, err := os.Stat(f.Path()); err != nil {
				t.Errorf("backing file missing: %v", err)
			}
			if f.Name() != "users" || filepath.Base(f.Path()) != "users" {
				t.Errorf("Name() = %q, Path() = %q", f.Name(), f.Path())
			}
		})

		t.Run("idempotent", func(t *testing.T) {
			f := NewFile(t.TempDir(), "users")
			if err := f.Init(); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(f.Path(), []byte("1|a|b\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			if err := f.Init(); err != nil {
				t.Fatalf("second Init error: %v", err)
			}
			data, err := os.ReadFile(f.Path())
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != "1|a|b\n" {
				t.Errorf("content after Init = %q, want untouched", data)
			}
		})

		t.Run("errors", func(t *testing.T) {
			root := t.TempDir()
			if err := os.Mkdir(filepath.Join(root, "users"), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := NewFile(root, "users").Init(); err == nil {
				t.Error("Init() expected error when path is a directory, got nil")
			}
		})
	})

	t.Run("ReadTable", func(t *testing.T) {
		t.Run("skips blank lines", func(t *testing.T) {
			f := NewFile(t.TempDir(), "t")
			content := "\n1|a\n\n   \n2|b\r\n3|c"
			if err := os.WriteFile(f.Path(), []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			var got []string
			for line, err := range f.ReadTable() {
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, line)
			}
			want := []string{"1|a", "2|b", "3|c"}
			if !slices.Equal(got, want) {
				t.Errorf("ReadTable() = %q, want %q", got, want)
			}
		})

		t.Run("restartable", func(t *testing.T) {
			f := NewFile(t.TempDir(), "t")
			if err := os.WriteFile(f.Path(), []byte("1|a\n2|b\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			for range f.ReadTable() {
				break
			}
			if err := os.WriteFile(f.Path(), []byte("1|a\n2|b\n3|c\n"), 0o644); err != nil {
				t.Fatal(err)
			}
			n := 0
			for _, err := range f.ReadTable() {
				if err != nil {
					t.Fatal(err)
				}
				n++
			}
			if n != 3 {
				t.Errorf("second ReadTable yielded %d lines, want 3", n)
			}
		})

		t.Run("missing file", func(t *testing.T) {
			f := NewFile(t.TempDir(), "absent")
			for _, err := range f.ReadTable() {
				if !errors.Is(err, os.ErrNotExist) {
					t.Errorf("ReadTable error = %v, want ErrNotExist", err)
				}
				return
			}
			t.Error("ReadTable yielded nothing for a missing file")
		})
	})
}

func TestRoot(t *testing.T) {
	t.Run("EnsureRoot", func(t *testing.T) {
		t.Run("creates nested directory", func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "a", "data")
			if err := EnsureRoot(root); err != nil {
				t.Fatalf("EnsureRoot error: %v", err)
			}
			st, err := os.Stat(root)
			if err != nil || !st.IsDir() {
				t.Fatalf("root not a directory: %v", err)
			}
			if err := EnsureRoot(root); err != nil {
				t.Errorf("second EnsureRoot error: %v", err)
			}
		})

		t.Run("root is a file", func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "data")
			if err := os.WriteFile(root, nil, 0o644); err != nil {
				t.Fatal(err)
			}
			if err := EnsureRoot(root); !errors.Is(err, ErrNotDirectory) {
				t.Errorf("EnsureRoot error = %v, want ErrNotDirectory", err)
			}
		})
	})

	t.Run("Bootstrap", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "data")
		a := NewFile(root, "a")
		b := NewFile(root, "b")
		if err := Bootstrap(root, a, b); err != nil {
			t.Fatalf("Bootstrap error: %v", err)
		}
		if err := os.WriteFile(a.Path(), []byte("keep\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := Bootstrap(root, a, b); err != nil {
			t.Fatalf("second Bootstrap error: %v", err)
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 2 {
			t.Errorf("root has %d entries, want 2", len(entries))
		}
		if data, _ := os.ReadFile(a.Path()); string(data) != "keep\n" {
			t.Errorf("content = %q, want untouched", data)
		}
	})
}

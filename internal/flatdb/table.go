package flatdb

import (
	"bufio"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// maxLineSize bounds a single record line.
const maxLineSize = 1 << 20

// Table is implemented by every concrete table. T is the record type and K
// the primary key type.
//
// Concrete tables embed *File, which provides Name, Path, Init and ReadTable,
// and implement the codec, FormatKey and PrepareForCreation.
type Table[T any, K comparable] interface {
	// Name is the stable table identifier, also used as the file name.
	Name() string
	// Path is the single file all writes and rewrites target.
	Path() string
	// Init creates the backing file if absent. It is safe to call repeatedly.
	Init() error
	// ReadTable reopens the backing file and yields its non-blank lines.
	ReadTable() iter.Seq2[string, error]

	// Serialize encodes a record as one line.
	Serialize(row T) string
	// Deserialize decodes a line produced by Serialize.
	Deserialize(line string) (T, error)
	// FormatKey returns the first field of the line holding pk.
	FormatKey(pk K) string
	// PrepareForCreation runs the admission check before an insert and
	// returns the record to persist, possibly with an assigned primary key.
	// It runs with the table's write lock held and must not call the
	// locking package functions; use Rows or EnsureNewKey instead.
	PrepareForCreation(row T) (T, error)

	file() *File
}

// File is the backing file of one table.
type File struct {
	name string
	path string
	mu   sync.RWMutex
}

// NewFile returns the file for table name under root.
func NewFile(root, name string) *File {
	return &File{name: name, path: filepath.Join(root, name)}
}

// Name returns the table name.
func (f *File) Name() string {
	return f.name
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Init creates the backing file if it does not exist. Existing content is
// left untouched.
func (f *File) Init() error {
	fh, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create table file %s: %w", f.path, err)
	}
	return fh.Close()
}

// ReadTable returns an iterator over the non-blank lines of the backing file.
//
// The file is opened on every call and closed when iteration stops, so the
// sequence can be restarted and always reflects the latest writes.
func (f *File) ReadTable() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		fh, err := os.Open(f.path)
		if err != nil {
			yield("", fmt.Errorf("failed to open table file %s: %w", f.path, err))
			return
		}
		defer func() {
			_ = fh.Close()
		}()

		scanner := bufio.NewScanner(fh)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("failed to read table file %s: %w", f.path, err))
		}
	}
}

func (f *File) file() *File {
	return f
}

// Rows decodes the table lazily, in file order.
//
// Rows does not take the table lock. It is meant for PrepareForCreation
// implementations, which already run under the write lock.
func Rows[T any, K comparable](t Table[T, K]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for line, err := range t.ReadTable() {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			row, err := decode(t, line)
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// EnsureNewKey returns a *UniqueViolationError naming field if a line
// already holds pk.
//
// Keys are compared the way Get and Delete compare them, so a key that only
// differs by case is a duplicate. Like Rows, it does not take the table lock.
func EnsureNewKey[T any, K comparable](t Table[T, K], field string, pk K) error {
	key := t.FormatKey(pk)
	for line, err := range t.ReadTable() {
		if err != nil {
			return err
		}
		if matchesKey(line, key) {
			return &UniqueViolationError{Table: t.Name(), Field: field}
		}
	}
	return nil
}

func decode[T any, K comparable](t Table[T, K], line string) (T, error) {
	row, err := t.Deserialize(line)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s: line %q: %w", t.Name(), line, err)
	}
	return row, nil
}

// Generic search, lookup, insert and delete over any Table.

package flatdb

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// decodeChunk is the number of lines decoded per goroutine by the search
// functions.
const decodeChunk = 256

// Search returns every record of the table in file order.
func Search[T any, K comparable](t Table[T, K]) ([]T, error) {
	return SearchFuncN(t, nil, -1)
}

// SearchFunc returns the records satisfying pred, in file order.
func SearchFunc[T any, K comparable](t Table[T, K], pred func(T) bool) ([]T, error) {
	return SearchFuncN(t, pred, -1)
}

// SearchFuncN returns at most limit records satisfying pred, in file order.
//
// A nil pred matches every record. A negative limit means no limit.
func SearchFuncN[T any, K comparable](t Table[T, K], pred func(T) bool, limit int) ([]T, error) {
	mu := &t.file().mu
	mu.RLock()
	lines, err := readLines(t)
	mu.RUnlock()
	if err != nil {
		return nil, err
	}

	rows, err := decodeAll(t, lines)
	if err != nil {
		return nil, err
	}
	if pred == nil && (limit < 0 || limit >= len(rows)) {
		return rows, nil
	}
	// Filter in place; the write index never passes the read index.
	out := rows[:0]
	for _, row := range rows {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if pred == nil || pred(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Get returns the first record whose primary key equals pk.
//
// Keys are compared case-insensitively against the first field of each line.
// It returns a *NotFoundError when no line matches.
func Get[T any, K comparable](t Table[T, K], pk K) (T, error) {
	mu := &t.file().mu
	mu.RLock()
	defer mu.RUnlock()
	return get(t, pk)
}

// Create runs the table's admission check on row and appends the record it
// returns. The persisted record is returned.
func Create[T any, K comparable](t Table[T, K], row T) (T, error) {
	mu := &t.file().mu
	mu.Lock()
	defer mu.Unlock()

	prepared, err := t.PrepareForCreation(row)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := appendLine(t.Path(), t.Serialize(prepared)); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to append to %s: %w", t.Name(), err)
	}
	slog.Debug("flatdb: created", "table", t.Name())
	return prepared, nil
}

// Delete removes every line whose primary key equals pk and returns the
// record Get would have returned.
//
// The whole file is rewritten. It returns a *NotFoundError when no line
// matches, in which case the file is not touched.
func Delete[T any, K comparable](t Table[T, K], pk K) (T, error) {
	mu := &t.file().mu
	mu.Lock()
	defer mu.Unlock()

	row, err := get(t, pk)
	if err != nil {
		var zero T
		return zero, err
	}
	key := t.FormatKey(pk)
	var kept []string
	for line, err := range t.ReadTable() {
		if err != nil {
			var zero T
			return zero, err
		}
		if !matchesKey(line, key) {
			kept = append(kept, line)
		}
	}
	if err := rewrite(t.Path(), kept); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to rewrite %s: %w", t.Name(), err)
	}
	slog.Debug("flatdb: deleted", "table", t.Name(), "pk", key)
	return row, nil
}

// Count returns the number of records in the table.
func Count[T any, K comparable](t Table[T, K]) (int, error) {
	mu := &t.file().mu
	mu.RLock()
	defer mu.RUnlock()
	n := 0
	for _, err := range t.ReadTable() {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func get[T any, K comparable](t Table[T, K], pk K) (T, error) {
	key := t.FormatKey(pk)
	for line, err := range t.ReadTable() {
		if err != nil {
			var zero T
			return zero, err
		}
		if matchesKey(line, key) {
			return decode(t, line)
		}
	}
	var zero T
	return zero, &NotFoundError{Table: t.Name(), PK: key}
}

func matchesKey(line, key string) bool {
	return strings.EqualFold(leadingField(line), key)
}

func readLines[T any, K comparable](t Table[T, K]) ([]string, error) {
	var lines []string
	for line, err := range t.ReadTable() {
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// decodeAll decodes lines concurrently, keeping file order.
func decodeAll[T any, K comparable](t Table[T, K], lines []string) ([]T, error) {
	rows := make([]T, len(lines))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for start := 0; start < len(lines); start += decodeChunk {
		end := min(start+decodeChunk, len(lines))
		g.Go(func() error {
			for i := start; i < end; i++ {
				row, err := decode(t, lines[i])
				if err != nil {
					return err
				}
				rows[i] = row
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

// appendLine appends line in a single write. A file whose last line lacks a
// trailing newline gets one first.
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(line)+2)
	if size := st.Size(); size > 0 {
		var last [1]byte
		if _, err := f.ReadAt(last[:], size-1); err != nil {
			return err
		}
		if last[0] != '\n' {
			data = append(data, '\n')
		}
	}
	data = append(data, line...)
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

// rewrite truncates the file at path and writes lines to it.
func rewrite(path string, lines []string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(line); err != nil {
			_ = f.Close()
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

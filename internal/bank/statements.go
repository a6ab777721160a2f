// Package bank holds the user's reference data: known statements, essay
// materials and style examples.
package bank

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/vietddude/verdict/internal/infra/storage/file"
)

// Filter selects statements by truth value.
type Filter string

const (
	FilterAll   Filter = "all"
	FilterTrue  Filter = "true"
	FilterFalse Filter = "false"
)

// Statement is one known statement and its truth value.
type Statement struct {
	ID     int    `json:"id"`
	Text   string `json:"statement"`
	IsTrue bool   `json:"is_true"`
}

// StatementBank is a CSV-backed list of known statements.
type StatementBank struct {
	mu     sync.RWMutex
	path   string
	items  []Statement
	nextID int
}

// LoadStatements reads the bank at path. A missing file yields an empty bank.
// Rows that do not parse are skipped.
func LoadStatements(path string) (*StatementBank, error) {
	b := &StatementBank{path: path, nextID: 1}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open statement bank: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return b, nil
		}
		return nil, fmt.Errorf("read statement bank header: %w", err)
	}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read statement bank: %w", err)
		}
		if len(row) < 3 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			continue
		}
		b.items = append(b.items, Statement{ID: id, Text: row[1], IsTrue: strings.EqualFold(strings.TrimSpace(row[2]), "true")})
		if id >= b.nextID {
			b.nextID = id + 1
		}
	}
	return b, nil
}

// Path returns the backing file.
func (b *StatementBank) Path() string { return b.path }

// Add appends a statement unless one with the same text (ignoring case and
// surrounding space) exists. It reports whether the statement was added.
func (b *StatementBank) Add(text string, isTrue bool) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	added := b.addLocked(text, isTrue)
	if !added {
		return false, nil
	}
	return true, b.saveLocked()
}

func (b *StatementBank) addLocked(text string, isTrue bool) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if _, ok := b.lookupLocked(text); ok {
		return false
	}
	b.items = append(b.items, Statement{ID: b.nextID, Text: text, IsTrue: isTrue})
	b.nextID++
	return true
}

// Remove deletes the statement with id.
func (b *StatementBank) Remove(id int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.items {
		if s.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true, b.saveLocked()
		}
	}
	return false, nil
}

// List returns statements matching filter whose text contains query
// (case-insensitive). An empty query matches everything.
func (b *StatementBank) List(filter Filter, query string) []Statement {
	b.mu.RLock()
	defer b.mu.RUnlock()

	query = strings.ToLower(query)
	var out []Statement
	for _, s := range b.items {
		if filter == FilterTrue && !s.IsTrue || filter == FilterFalse && s.IsTrue {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(s.Text), query) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Lookup finds a statement by exact text, ignoring case and surrounding space.
func (b *StatementBank) Lookup(text string) (Statement, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lookupLocked(text)
}

func (b *StatementBank) lookupLocked(text string) (Statement, bool) {
	norm := strings.ToLower(strings.TrimSpace(text))
	for _, s := range b.items {
		if strings.ToLower(strings.TrimSpace(s.Text)) == norm {
			return s, true
		}
	}
	return Statement{}, false
}

// KnownTrue returns the texts of all true statements.
func (b *StatementBank) KnownTrue() []string {
	return texts(b.List(FilterTrue, ""))
}

// KnownFalse returns the texts of all false statements.
func (b *StatementBank) KnownFalse() []string {
	return texts(b.List(FilterFalse, ""))
}

// Import adds statements from a CSV (statement[,truth]) or plain text file
// (one statement per line). defaultTruth, when set, overrides the file's
// truth column.
func (b *StatementBank) Import(path string, defaultTruth *bool) (added, duplicates int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read import file: %w", err)
	}

	type row struct {
		text   string
		isTrue bool
	}
	var rows []row
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		records, err := r.ReadAll()
		if err != nil {
			return 0, 0, fmt.Errorf("parse import file: %w", err)
		}
		for _, rec := range records {
			if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
				continue
			}
			isTrue := false
			if len(rec) > 1 {
				isTrue = parseTruth(rec[1])
			}
			rows = append(rows, row{text: rec[0], isTrue: isTrue})
		}
	} else {
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				rows = append(rows, row{text: line})
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range rows {
		isTrue := r.isTrue
		if defaultTruth != nil {
			isTrue = *defaultTruth
		}
		if b.addLocked(r.text, isTrue) {
			added++
		} else {
			duplicates++
		}
	}
	return added, duplicates, b.saveLocked()
}

// Export writes the statements matching filter to path as CSV
// (statement,is_true) and returns how many were written.
func (b *StatementBank) Export(path string, filter Filter) (int, error) {
	items := b.List(filter, "")
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"statement", "is_true"})
	for _, s := range items {
		_ = w.Write([]string{s.Text, formatTruth(s.IsTrue)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, err
	}
	return len(items), file.WriteBytes(path, buf.Bytes())
}

func (b *StatementBank) saveLocked() error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "statement", "is_true"})
	for _, s := range b.items {
		_ = w.Write([]string{strconv.Itoa(s.ID), s.Text, formatTruth(s.IsTrue)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode statement bank: %w", err)
	}
	if err := file.WriteBytes(b.path, buf.Bytes()); err != nil {
		return fmt.Errorf("save statement bank: %w", err)
	}
	return nil
}

func parseTruth(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "t":
		return true
	}
	return false
}

func formatTruth(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

func texts(items []Statement) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.Text
	}
	return out
}

package bank

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/vietddude/verdict/internal/infra/storage/file"
)

// Example is a previous question and answer used as a style reference.
type Example struct {
	ID       int    `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ExampleBank is a semicolon-separated CSV of style examples.
type ExampleBank struct {
	mu    sync.RWMutex
	path  string
	items []Example
}

// LoadExamples reads the bank at path. A missing file yields an empty bank.
func LoadExamples(path string) (*ExampleBank, error) {
	b := &ExampleBank{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	rows, err := readRows(data, ';')
	if err != nil {
		return nil, fmt.Errorf("parse examples: %w", err)
	}
	for _, row := range rows {
		b.addLocked(row[0], row[1])
	}
	return b, nil
}

// Add appends an example unless an identical one (ignoring case) exists.
func (b *ExampleBank) Add(question, answer string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.addLocked(question, answer) {
		return false, nil
	}
	return true, b.saveLocked()
}

// Import appends examples from a CSV file. Both ';' and ',' separated files
// are accepted; a leading "question,answer" header is skipped.
func (b *ExampleBank) Import(path string) (added, duplicates int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read import file: %w", err)
	}
	rows, err := readRows(data, sniffDelimiter(data))
	if err != nil {
		return 0, 0, fmt.Errorf("parse import file: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, row := range rows {
		if b.addLocked(row[0], row[1]) {
			added++
		} else {
			duplicates++
		}
	}
	return added, duplicates, b.saveLocked()
}

// Remove deletes the example with id.
func (b *ExampleBank) Remove(id int) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ex := range b.items {
		if ex.ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true, b.saveLocked()
		}
	}
	return false, nil
}

// List returns all examples.
func (b *ExampleBank) List() []Example {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Example(nil), b.items...)
}

func (b *ExampleBank) addLocked(question, answer string) bool {
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return false
	}
	for _, ex := range b.items {
		if strings.EqualFold(ex.Question, question) && strings.EqualFold(ex.Answer, answer) {
			return false
		}
	}
	next := 1
	for _, ex := range b.items {
		if ex.ID >= next {
			next = ex.ID + 1
		}
	}
	b.items = append(b.items, Example{ID: next, Question: question, Answer: answer})
	return true
}

func (b *ExampleBank) saveLocked() error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = ';'
	for _, ex := range b.items {
		_ = w.Write([]string{ex.Question, ex.Answer})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode examples: %w", err)
	}
	return file.WriteBytes(b.path, buf.Bytes())
}

// readRows returns the two-column rows of data, skipping short rows and a
// question/answer header.
func readRows(data []byte, comma rune) ([][2]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var out [][2]string
	for i, rec := range records {
		if len(rec) < 2 {
			continue
		}
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "question") &&
			strings.EqualFold(strings.TrimSpace(rec[1]), "answer") {
			continue
		}
		out = append(out, [2]string{rec[0], rec[1]})
	}
	return out, nil
}

func sniffDelimiter(data []byte) rune {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

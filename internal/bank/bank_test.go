package bank

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatementBank_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statements.csv")

	b, err := LoadStatements(path)
	require.NoError(t, err)
	assert.Empty(t, b.List(FilterAll, ""))

	added, err := b.Add("The sky is blue", true)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = b.Add("  the SKY is blue ", false)
	require.NoError(t, err)
	assert.False(t, added)
	_, err = b.Add("Fish can fly, mostly", false)
	require.NoError(t, err)

	reloaded, err := LoadStatements(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"The sky is blue"}, reloaded.KnownTrue())
	assert.Equal(t, []string{"Fish can fly, mostly"}, reloaded.KnownFalse())

	s, ok := reloaded.Lookup("THE SKY IS BLUE")
	require.True(t, ok)
	assert.True(t, s.IsTrue)
	assert.Equal(t, 1, s.ID)

	next, err := reloaded.Add("Water is wet", true)
	require.NoError(t, err)
	assert.True(t, next)
	assert.Equal(t, 3, reloaded.List(FilterAll, "water")[0].ID)
}

func TestStatementBank_SkipsBadRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statements.csv")
	content := "id,statement,is_true\n1,Good row,True\nabc,Bad id,True\n2,short\n5,Another,false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	b, err := LoadStatements(path)
	require.NoError(t, err)
	list := b.List(FilterAll, "")
	require.Len(t, list, 2)
	assert.Equal(t, 5, list[1].ID)
	assert.False(t, list[1].IsTrue)

	_, err = b.Add("New", true)
	require.NoError(t, err)
	assert.Equal(t, 6, b.List(FilterAll, "new")[0].ID)
}

func TestStatementBank_RemoveAndFilter(t *testing.T) {
	b, err := LoadStatements(filepath.Join(t.TempDir(), "s.csv"))
	require.NoError(t, err)
	_, _ = b.Add("a true thing", true)
	_, _ = b.Add("a false thing", false)

	assert.Len(t, b.List(FilterTrue, ""), 1)
	assert.Len(t, b.List(FilterFalse, "FALSE"), 1)
	assert.Empty(t, b.List(FilterTrue, "false"))

	removed, err := b.Remove(1)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = b.Remove(1)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStatementBank_Import(t *testing.T) {
	dir := t.TempDir()
	b, err := LoadStatements(filepath.Join(dir, "bank.csv"))
	require.NoError(t, err)

	csvPath := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("Cats purr,yes\nDogs meow,no\nCats purr,yes\n"), 0o644))
	added, dups, err := b.Import(csvPath, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, dups)
	assert.Equal(t, []string{"Cats purr"}, b.KnownTrue())

	txtPath := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("Snow is white\n\nFire is cold\n"), 0o644))
	truth := true
	added, _, err = b.Import(txtPath, &truth)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Len(t, b.KnownTrue(), 3)

	out := filepath.Join(dir, "out.csv")
	n, err := b.Export(out, FilterFalse)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "statement,is_true\nDogs meow,False\n", string(data))
}

func TestMaterialBank(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "notes.pdf")
	require.NoError(t, os.WriteFile(doc, []byte("%PDF"), 0o644))
	path := filepath.Join(dir, "materials.json")

	b, err := LoadMaterials(path)
	require.NoError(t, err)
	m, err := b.Add(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, m.ID)
	again, err := b.Add(doc)
	require.NoError(t, err)
	assert.Equal(t, m, again)

	_, err = b.Add(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)

	reloaded, err := LoadMaterials(path)
	require.NoError(t, err)
	assert.Equal(t, []Material{{ID: 1, Path: doc}}, reloaded.List())

	removed, err := reloaded.Remove(1)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, reloaded.List())
}

func TestMaterialBank_CorruptIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "materials.json")
	require.NoError(t, os.WriteFile(path, []byte("[{"), 0o644))
	b, err := LoadMaterials(path)
	require.NoError(t, err)
	assert.Empty(t, b.List())
}

func TestExampleBank(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "essays.csv")
	require.NoError(t, os.WriteFile(path, []byte("question;answer\nWhy sleep?;Rest matters.\nshort\n"), 0o644))

	b, err := LoadExamples(path)
	require.NoError(t, err)
	require.Equal(t, []Example{{ID: 1, Question: "Why sleep?", Answer: "Rest matters."}}, b.List())

	importPath := filepath.Join(dir, "more.csv")
	require.NoError(t, os.WriteFile(importPath, []byte("question,answer\nWhy eat?,Energy.\nwhy sleep?,rest matters.\n"), 0o644))
	added, dups, err := b.Import(importPath)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, dups)

	reloaded, err := LoadExamples(path)
	require.NoError(t, err)
	require.Len(t, reloaded.List(), 2)
	assert.Equal(t, "Energy.", reloaded.List()[1].Answer)

	removed, err := reloaded.Remove(2)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Len(t, reloaded.List(), 1)
}

package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []index.TermEntry {
	ix := index.NewInvertedIndex()
	ix.Merge("D1", index.ForwardIndex{"the": 1, "cat": 1, "sat": 1})
	ix.Merge("D2", index.ForwardIndex{"the": 1, "cat": 2, "ran": 1})
	return ix.Snapshot()
}

func TestWriteAndReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	entries := sampleEntries()
	name, err := NewWriter(dir).Write(entries, 42)
	require.NoError(t, err)

	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, len(entries), r.Terms())
	assert.EqualValues(t, 2, r.DocCount())
	assert.EqualValues(t, 42, r.Generation())

	postings, err := r.Search("cat")
	require.NoError(t, err)
	assert.Equal(t, index.PostingList{{DocID: "D1", Count: 1}, {DocID: "D2", Count: 2}}, postings)

	missing, err := r.Search("dog")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := r.Entries()
	require.NoError(t, err)
	assert.Equal(t, entries, all)
}

func TestWriteEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(nil, 0)
	require.NoError(t, err)
	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	defer r.Close()
	all, err := r.Entries()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOpenReaderRejectsCorruption(t *testing.T) {
	dir := t.TempDir()
	name, err := NewWriter(dir).Write(sampleEntries(), 1)
	require.NoError(t, err)
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	r, err := OpenReader(path)
	require.NoError(t, err)
	dictOffset := r.header.DictOffset
	r.Close()

	data[dictOffset+2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, err = OpenReader(path)
	assert.ErrorContains(t, err, "checksum")

	data[0] = 0
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, err = OpenReader(path)
	assert.ErrorContains(t, err, "magic")
}

func TestListAndPrune(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	for i := 0; i < 3; i++ {
		_, err := w.Write(sampleEntries(), uint64(i))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	paths, err := List(dir)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	require.NoError(t, Prune(dir, 1))
	left, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, paths[2:], left)

	none, err := List(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
)

type Reader struct {
	file   *os.File
	header Header
	dict   []DictEntry
}

// OpenReader validates the header and dictionary checksum of a snapshot.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot file: %w", err)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		f.Close()
		return nil, fmt.Errorf("invalid snapshot file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		f.Close()
		return nil, fmt.Errorf("unsupported snapshot version %d", header.Version)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.DictOffset+header.DictSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if want, got := binary.LittleEndian.Uint32(footer[0:4]), crc32.ChecksumIEEE(dictBytes); want != got {
		f.Close()
		return nil, fmt.Errorf("dictionary checksum mismatch: want %08x, got %08x", want, got)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		f.Close()
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	return &Reader{
		file:   f,
		header: header,
		dict:   dict,
	}, nil
}

func (r *Reader) Search(term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	return r.read(r.dict[idx])
}

// Entries loads every term of the snapshot in dictionary order.
func (r *Reader) Entries() ([]index.TermEntry, error) {
	entries := make([]index.TermEntry, 0, len(r.dict))
	for _, d := range r.dict {
		postings, err := r.read(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, index.TermEntry{Term: d.Term, Postings: postings})
	}
	return entries, nil
}

func (r *Reader) read(entry DictEntry) (index.PostingList, error) {
	buf := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(buf, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", entry.Term, err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(buf, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings for %q: %w", entry.Term, err)
	}
	return postings, nil
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Generation() uint64 {
	return r.header.Generation
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// List returns the snapshot files in dir, oldest first.
func List(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshot directory: %w", err)
	}
	var paths []string
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Prune deletes all but the newest keep snapshots in dir.
func Prune(dir string, keep int) error {
	paths, err := List(dir)
	if err != nil {
		return err
	}
	for len(paths) > keep {
		if err := os.Remove(paths[0]); err != nil {
			return fmt.Errorf("removing snapshot %s: %w", paths[0], err)
		}
		paths = paths[1:]
	}
	return nil
}

// Package segment persists inverted-index snapshots as single binary files:
// a fixed header, JSON-encoded posting lists, a JSON term dictionary and a
// checksummed footer. Files are written to a temporary name and renamed into
// place, so a reader only ever sees complete snapshots.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-search-engine/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x42534958 // "BSIX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".bsx"
)

// Header is the 64-byte header written at the start of every snapshot.
type Header struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	CreatedAt  int64
	Generation uint64
}

// DictEntry locates the postings of one term inside the file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

type Writer struct {
	dataDir string
}

func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write stores entries as a new snapshot tagged with the index generation
// and returns its file name. Entries must be sorted by term.
func (w *Writer) Write(entries []index.TermEntry, generation uint64) (string, error) {
	name := fmt.Sprintf("snap_%d_%d%s", time.Now().UnixNano(), generation, Extension)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := int64(0)
	dict := make([]DictEntry, 0, len(entries))
	docIDs := make(map[string]struct{})
	for _, entry := range entries {
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(data); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset,
			PostLen:    len(data),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(data))
		for _, p := range entry.Postings {
			docIDs[p.DocID] = struct{}{}
		}
	}

	dictStart := postingsStart + offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(docIDs)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(offset))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	encodeHeader(headerBytes, Header{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(entries)),
		DocCount:   uint32(len(docIDs)),
		DictOffset: dictStart,
		DictSize:   int64(len(dictData)),
		PostOffset: postingsStart,
		PostSize:   offset,
		CreatedAt:  time.Now().Unix(),
		Generation: generation,
	})
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return name, nil
}

func encodeHeader(b []byte, h Header) {
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[56:64], h.Generation)
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:      binary.LittleEndian.Uint32(b[0:4]),
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		TermCount:  binary.LittleEndian.Uint32(b[8:12]),
		DocCount:   binary.LittleEndian.Uint32(b[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(b[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(b[40:48])),
		CreatedAt:  int64(binary.LittleEndian.Uint64(b[48:56])),
		Generation: binary.LittleEndian.Uint64(b[56:64]),
	}
}

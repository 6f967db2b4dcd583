// Package snapshot exports a registry's dictionaries and corpora as a
// zstd-compressed JSON-lines archive and stores archives in a local
// directory or an S3-compatible bucket.
package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// FormatVersion is written in every archive header.
const FormatVersion = 1

// Record kinds.
const (
	KindHeader     = "header"
	KindDictionary = "dictionary"
	KindCorpus     = "corpus"
)

// ErrBadArchive reports an archive Read cannot decode.
var ErrBadArchive = errors.New("bad snapshot archive")

// Source is the part of a registry an export reads.
type Source interface {
	ListDictionaries(ctx context.Context) ([]types.Dictionary, error)
	ListCorpora(ctx context.Context, dictionaryID string) ([]types.Corpus, error)
}

// record is one line of an archive.
type record struct {
	Kind       string            `json:"kind"`
	Version    int               `json:"version,omitempty"`
	CreatedAt  *time.Time        `json:"created_at,omitempty"`
	Dictionary *types.Dictionary `json:"dictionary,omitempty"`
	Corpus     *types.Corpus     `json:"corpus,omitempty"`
}

// Snapshot is a decoded archive.
type Snapshot struct {
	Version      int
	CreatedAt    time.Time
	Dictionaries []types.Dictionary
	Corpora      []types.Corpus
}

// Stats counts what an export wrote.
type Stats struct {
	Dictionaries int
	Corpora      int
}

// Export writes every dictionary and its corpora from src to w.
func Export(ctx context.Context, src Source, w io.Writer, now time.Time) (Stats, error) {
	var stats Stats

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return stats, fmt.Errorf("creating zstd writer: %w", err)
	}
	lines := json.NewEncoder(enc)

	created := now.UTC()
	if err := lines.Encode(record{Kind: KindHeader, Version: FormatVersion, CreatedAt: &created}); err != nil {
		enc.Close()
		return stats, fmt.Errorf("writing header: %w", err)
	}

	dicts, err := src.ListDictionaries(ctx)
	if err != nil {
		enc.Close()
		return stats, fmt.Errorf("listing dictionaries: %w", err)
	}
	for i := range dicts {
		if err := lines.Encode(record{Kind: KindDictionary, Dictionary: &dicts[i]}); err != nil {
			enc.Close()
			return stats, fmt.Errorf("writing dictionary %s: %w", dicts[i].DictionaryID, err)
		}
		stats.Dictionaries++

		corpora, err := src.ListCorpora(ctx, dicts[i].DictionaryID)
		if err != nil {
			enc.Close()
			return stats, fmt.Errorf("listing corpora of %s: %w", dicts[i].DictionaryID, err)
		}
		for j := range corpora {
			if err := lines.Encode(record{Kind: KindCorpus, Corpus: &corpora[j]}); err != nil {
				enc.Close()
				return stats, fmt.Errorf("writing corpus %s: %w", corpora[j].CorpusID, err)
			}
			stats.Corpora++
		}
	}

	if err := enc.Close(); err != nil {
		return stats, fmt.Errorf("closing zstd writer: %w", err)
	}
	return stats, nil
}

// Read decodes an archive written by Export.
func Read(r io.Reader) (*Snapshot, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	defer dec.Close()

	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	snap := &Snapshot{}
	line := 0
	for scanner.Scan() {
		line++
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadArchive, line, err)
		}
		if line == 1 && rec.Kind != KindHeader {
			return nil, fmt.Errorf("%w: missing header", ErrBadArchive)
		}
		switch rec.Kind {
		case KindHeader:
			if line != 1 {
				return nil, fmt.Errorf("%w: line %d: repeated header", ErrBadArchive, line)
			}
			if rec.Version > FormatVersion {
				return nil, fmt.Errorf("%w: version %d is newer than %d", ErrBadArchive, rec.Version, FormatVersion)
			}
			snap.Version = rec.Version
			if rec.CreatedAt != nil {
				snap.CreatedAt = *rec.CreatedAt
			}
		case KindDictionary:
			if rec.Dictionary == nil {
				return nil, fmt.Errorf("%w: line %d: empty dictionary record", ErrBadArchive, line)
			}
			snap.Dictionaries = append(snap.Dictionaries, *rec.Dictionary)
		case KindCorpus:
			if rec.Corpus == nil {
				return nil, fmt.Errorf("%w: line %d: empty corpus record", ErrBadArchive, line)
			}
			snap.Corpora = append(snap.Corpora, *rec.Corpus)
		default:
			return nil, fmt.Errorf("%w: line %d: unknown kind %q", ErrBadArchive, line, rec.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArchive, err)
	}
	if line == 0 {
		return nil, fmt.Errorf("%w: empty archive", ErrBadArchive)
	}
	return snap, nil
}

// Name returns the archive name for a snapshot taken at t.
func Name(t time.Time) string {
	return "riddler-" + t.UTC().Format("20060102T150405Z") + ".jsonl.zst"
}

// Take exports src and stores the archive in sink under Name(now).
func Take(ctx context.Context, src Source, sink Sink, now time.Time) (string, Stats, error) {
	var buf bytes.Buffer
	stats, err := Export(ctx, src, &buf, now)
	if err != nil {
		return "", stats, err
	}
	name := Name(now)
	if err := sink.Put(ctx, name, &buf); err != nil {
		return "", stats, fmt.Errorf("storing %s: %w", name, err)
	}
	return name, stats, nil
}

// Load reads the named archive from sink.
func Load(ctx context.Context, sink Sink, name string) (*Snapshot, error) {
	rc, err := sink.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return Read(rc)
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// CreateCorpus stores a corpus under an existing dictionary. Corpora are not
// identified by content; identical descriptors create distinct corpora.
func (s *Store) CreateCorpus(ctx context.Context, dictionaryID string, desc types.CorpusDescriptor) (string, error) {
	if err := requireID("dictionary", dictionaryID); err != nil {
		return "", err
	}
	if err := desc.Validate(); err != nil {
		return "", err
	}
	id := s.newID()

	err := s.write(ctx, func(q querier) ([]string, error) {
		if err := requireDictionary(ctx, q, dictionaryID); err != nil {
			return nil, err
		}
		_, err := q.exec(ctx,
			"INSERT INTO corpora (corpus_id, dictionary_id, collect_date, created_at) VALUES (?, ?, ?, ?)",
			id, dictionaryID, formatTime(desc.CollectDate), formatTime(s.now()))
		if err != nil {
			return nil, fmt.Errorf("inserting corpus: %w", err)
		}
		if err := insertMetadata(ctx, q, CorpusMetadataTable, "corpus_id", id, desc.Metadata); err != nil {
			return nil, err
		}
		return []string{CorporaTable, CorpusMetadataTable}, nil
	})
	if !committed(err) {
		return "", err
	}
	return id, err
}

// GetCorpusDescriptor returns the descriptor stored for id.
func (s *Store) GetCorpusDescriptor(ctx context.Context, id string) (types.CorpusDescriptor, error) {
	if err := requireID("corpus", id); err != nil {
		return types.CorpusDescriptor{}, err
	}

	var desc types.CorpusDescriptor
	err := s.read(ctx, func(q querier) error {
		var collected string
		err := q.queryRow(ctx, "SELECT collect_date FROM corpora WHERE corpus_id = ?", id).Scan(&collected)
		if errors.Is(err, sql.ErrNoRows) {
			return corpusNotFound(id)
		}
		if err != nil {
			return fmt.Errorf("getting corpus %s: %w", id, err)
		}
		if desc.CollectDate, err = parseTime(collected); err != nil {
			return err
		}
		desc.Metadata, err = loadMetadata(ctx, q, CorpusMetadataTable, "corpus_id", id)
		return err
	})
	return desc, err
}

// ListCorpora returns the corpora of a dictionary ordered by creation.
func (s *Store) ListCorpora(ctx context.Context, dictionaryID string) ([]types.Corpus, error) {
	if err := requireID("dictionary", dictionaryID); err != nil {
		return nil, err
	}

	corpora := []types.Corpus{}
	err := s.read(ctx, func(q querier) error {
		if err := requireDictionary(ctx, q, dictionaryID); err != nil {
			return err
		}
		rows, err := q.query(ctx,
			"SELECT corpus_id, collect_date, created_at FROM corpora WHERE dictionary_id = ? ORDER BY created_at, corpus_id",
			dictionaryID)
		if err != nil {
			return fmt.Errorf("listing corpora: %w", err)
		}
		for rows.Next() {
			c := types.Corpus{DictionaryID: dictionaryID}
			var collected, created string
			if err := rows.Scan(&c.CorpusID, &collected, &created); err != nil {
				rows.Close()
				return fmt.Errorf("scanning corpus: %w", err)
			}
			if c.CollectDate, err = parseTime(collected); err != nil {
				rows.Close()
				return err
			}
			if c.CreatedAt, err = parseTime(created); err != nil {
				rows.Close()
				return err
			}
			corpora = append(corpora, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for i := range corpora {
			md, err := loadMetadata(ctx, q, CorpusMetadataTable, "corpus_id", corpora[i].CorpusID)
			if err != nil {
				return err
			}
			corpora[i].Metadata = md
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return corpora, nil
}

// corpusDictionary returns the dictionary a corpus belongs to.
func corpusDictionary(ctx context.Context, q querier, corpusID string) (string, error) {
	var dictionaryID string
	err := q.queryRow(ctx, "SELECT dictionary_id FROM corpora WHERE corpus_id = ?", corpusID).Scan(&dictionaryID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", corpusNotFound(corpusID)
	}
	if err != nil {
		return "", fmt.Errorf("getting corpus %s: %w", corpusID, err)
	}
	return dictionaryID, nil
}

func corpusNotFound(id string) error {
	return fmt.Errorf("no corpus with id %s exists: %w", id, types.ErrNotFound)
}

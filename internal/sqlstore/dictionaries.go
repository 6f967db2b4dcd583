package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// CreateDictionary stores a dictionary unless an existing dictionary already
// contains every pair of desc's metadata.
func (s *Store) CreateDictionary(ctx context.Context, desc types.DictionaryDescriptor) (string, error) {
	if err := desc.Validate(); err != nil {
		return "", err
	}
	fingerprint := desc.Metadata.Fingerprint()
	id := s.newID()

	err := s.write(ctx, func(q querier) ([]string, error) {
		existing, err := dictionaryByFingerprint(ctx, q, fingerprint)
		if err != nil {
			return nil, err
		}
		if existing != "" {
			return nil, fmt.Errorf("%w: dictionary %s has the same metadata", types.ErrAlreadyExists, existing)
		}
		existing, err = dictionaryContaining(ctx, q, desc.Metadata)
		if err != nil {
			return nil, err
		}
		if existing != "" {
			return nil, fmt.Errorf("%w: dictionary %s contains metadata %s", types.ErrAlreadyExists, existing, describe(desc.Metadata))
		}

		_, err = q.exec(ctx,
			"INSERT INTO dictionaries (dictionary_id, fingerprint, created_at) VALUES (?, ?, ?)",
			id, fingerprint, formatTime(s.now()))
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: dictionary with the same metadata", types.ErrAlreadyExists)
		}
		if err != nil {
			return nil, fmt.Errorf("inserting dictionary: %w", err)
		}
		if err := insertMetadata(ctx, q, DictionaryMetadataTable, "dictionary_id", id, desc.Metadata); err != nil {
			return nil, err
		}
		return []string{DictionariesTable, DictionaryMetadataTable}, nil
	})
	if !committed(err) {
		return "", err
	}
	return id, err
}

// GetDictionary returns the id of the dictionary with exactly desc's
// metadata set or, failing that, the oldest dictionary whose metadata
// contains every pair of desc.
func (s *Store) GetDictionary(ctx context.Context, desc types.DictionaryDescriptor) (string, error) {
	if err := desc.Validate(); err != nil {
		return "", err
	}
	fingerprint := desc.Metadata.Fingerprint()

	var id string
	err := s.read(ctx, func(q querier) error {
		var err error
		id, err = dictionaryByFingerprint(ctx, q, fingerprint)
		if err != nil || id != "" {
			return err
		}
		id, err = dictionaryContaining(ctx, q, desc.Metadata)
		return err
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("no dictionary with metadata %s exists: %w", describe(desc.Metadata), types.ErrNotFound)
	}
	return id, nil
}

// GetDictionaryMetadata returns the metadata stored for id.
func (s *Store) GetDictionaryMetadata(ctx context.Context, id string) (types.DictionaryDescriptor, error) {
	if err := requireID("dictionary", id); err != nil {
		return types.DictionaryDescriptor{}, err
	}

	var desc types.DictionaryDescriptor
	err := s.read(ctx, func(q querier) error {
		ok, err := exists(ctx, q, DictionariesTable, "dictionary_id", id)
		if err != nil {
			return err
		}
		if !ok {
			return dictionaryNotFound(id)
		}
		desc.Metadata, err = loadMetadata(ctx, q, DictionaryMetadataTable, "dictionary_id", id)
		return err
	})
	return desc, err
}

// FindDictionaries returns the ids of dictionaries whose metadata contains
// every pair of query. An empty query matches every dictionary.
func (s *Store) FindDictionaries(ctx context.Context, query types.Metadata) ([]string, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	stmt := "SELECT dictionary_id FROM dictionaries ORDER BY dictionary_id"
	var args []any
	if len(query) > 0 {
		stmt, args = containingQuery(query)
	}

	ids := []string{}
	err := s.read(ctx, func(q querier) error {
		rows, err := q.query(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("searching dictionaries: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("scanning dictionary id: %w", err)
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ListDictionaries returns every dictionary ordered by creation.
func (s *Store) ListDictionaries(ctx context.Context) ([]types.Dictionary, error) {
	dicts := []types.Dictionary{}
	err := s.read(ctx, func(q querier) error {
		rows, err := q.query(ctx,
			"SELECT dictionary_id, fingerprint, created_at FROM dictionaries ORDER BY created_at, dictionary_id")
		if err != nil {
			return fmt.Errorf("listing dictionaries: %w", err)
		}
		for rows.Next() {
			var d types.Dictionary
			var created string
			if err := rows.Scan(&d.DictionaryID, &d.Fingerprint, &created); err != nil {
				rows.Close()
				return fmt.Errorf("scanning dictionary: %w", err)
			}
			if d.CreatedAt, err = parseTime(created); err != nil {
				rows.Close()
				return err
			}
			dicts = append(dicts, d)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		all, err := loadAllMetadata(ctx, q, DictionaryMetadataTable, "dictionary_id")
		if err != nil {
			return err
		}
		for i := range dicts {
			dicts[i].Metadata = all[dicts[i].DictionaryID]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dicts, nil
}

// dictionaryByFingerprint returns the matching id, or "" if none exists.
func dictionaryByFingerprint(ctx context.Context, q querier, fingerprint string) (string, error) {
	var id string
	err := q.queryRow(ctx, "SELECT dictionary_id FROM dictionaries WHERE fingerprint = ?", fingerprint).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up dictionary: %w", err)
	}
	return id, nil
}

// containingQuery selects the ids of dictionaries whose metadata contains
// every pair of md, oldest first. md must be non-empty.
func containingQuery(md types.Metadata) (string, []any) {
	// Keys are unique per dictionary, so a dictionary matching every pair
	// matches exactly len(md) rows.
	conds := make([]string, len(md))
	args := make([]any, 0, 2*len(md)+1)
	for i, e := range md {
		conds[i] = "(entry_key = ? AND entry_value = ?)"
		args = append(args, e.Key, e.Value)
	}
	args = append(args, len(md))
	return "SELECT dictionary_id FROM dictionary_metadata WHERE " + strings.Join(conds, " OR ") +
		" GROUP BY dictionary_id HAVING COUNT(*) = ? ORDER BY dictionary_id", args
}

// dictionaryContaining returns the oldest dictionary whose metadata contains
// every pair of md, or "" if none does.
func dictionaryContaining(ctx context.Context, q querier, md types.Metadata) (string, error) {
	stmt, args := containingQuery(md)
	var id string
	err := q.queryRow(ctx, stmt+" LIMIT 1", args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("searching dictionaries: %w", err)
	}
	return id, nil
}

// requireDictionary fails with ErrNotFound if id is unknown.
func requireDictionary(ctx context.Context, q querier, id string) error {
	ok, err := exists(ctx, q, DictionariesTable, "dictionary_id", id)
	if err != nil {
		return err
	}
	if !ok {
		return dictionaryNotFound(id)
	}
	return nil
}

func dictionaryNotFound(id string) error {
	return fmt.Errorf("no dictionary with id %s exists: %w", id, types.ErrNotFound)
}

// describe renders metadata for error messages.
func describe(md types.Metadata) string {
	parts := make([]string, len(md))
	for i, e := range md.Sorted() {
		parts[i] = e.Key + "=" + e.Value
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

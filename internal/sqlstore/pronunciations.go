package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// AddPronunciations merges variants into a word's record, creating the
// record on first use.
func (s *Store) AddPronunciations(ctx context.Context, dictionaryID, word string, variants []string) (string, error) {
	if err := requireID("dictionary", dictionaryID); err != nil {
		return "", err
	}
	word = types.NormalizeWord(word)
	if word == "" {
		return "", fmt.Errorf("%w: word must not be empty", types.ErrInvalidArgument)
	}
	variants = types.MergeVariants(nil, variants)

	var id string
	err := s.write(ctx, func(q querier) ([]string, error) {
		if err := requireDictionary(ctx, q, dictionaryID); err != nil {
			return nil, err
		}
		changed := []string{PronunciationVariantsTable}

		err := q.queryRow(ctx,
			"SELECT pronunciation_id FROM pronunciations WHERE dictionary_id = ? AND word = ?",
			dictionaryID, word).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id = s.newID()
			if _, err := q.exec(ctx,
				"INSERT INTO pronunciations (pronunciation_id, dictionary_id, word) VALUES (?, ?, ?)",
				id, dictionaryID, word); err != nil {
				return nil, fmt.Errorf("inserting pronunciation for %q: %w", word, err)
			}
			changed = append(changed, PronunciationsTable)
		case err != nil:
			return nil, fmt.Errorf("looking up pronunciation for %q: %w", word, err)
		}

		for _, v := range variants {
			if _, err := q.exec(ctx,
				"INSERT INTO pronunciation_variants (pronunciation_id, variant) VALUES (?, ?) ON CONFLICT DO NOTHING",
				id, v); err != nil {
				return nil, fmt.Errorf("inserting variant %q: %w", v, err)
			}
		}
		return changed, nil
	})
	if !committed(err) {
		return "", err
	}
	return id, err
}

// HasPronunciation reports whether the dictionary has a record for word.
func (s *Store) HasPronunciation(ctx context.Context, dictionaryID, word string) (bool, error) {
	if err := requireID("dictionary", dictionaryID); err != nil {
		return false, err
	}
	word = types.NormalizeWord(word)

	var found bool
	err := s.read(ctx, func(q querier) error {
		if err := requireDictionary(ctx, q, dictionaryID); err != nil {
			return err
		}
		missing, err := unknownWords(ctx, q, dictionaryID, []string{word})
		found = len(missing) == 0
		return err
	})
	return found, err
}

// Pronunciation returns the record for word with its variants.
func (s *Store) Pronunciation(ctx context.Context, dictionaryID, word string) (types.Pronunciation, error) {
	p := types.Pronunciation{DictionaryID: dictionaryID, Word: types.NormalizeWord(word)}
	err := s.read(ctx, func(q querier) error {
		err := q.queryRow(ctx,
			"SELECT pronunciation_id FROM pronunciations WHERE dictionary_id = ? AND word = ?",
			dictionaryID, p.Word).Scan(&p.PronunciationID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("no pronunciation of %q in dictionary %s: %w", p.Word, dictionaryID, types.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("looking up pronunciation: %w", err)
		}

		rows, err := q.query(ctx,
			"SELECT variant FROM pronunciation_variants WHERE pronunciation_id = ? ORDER BY variant", p.PronunciationID)
		if err != nil {
			return fmt.Errorf("querying variants: %w", err)
		}
		defer rows.Close()
		p.Variants = []string{}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("scanning variant: %w", err)
			}
			p.Variants = append(p.Variants, v)
		}
		return rows.Err()
	})
	return p, err
}

// unknownWords returns the words of a text that have no pronunciation in
// the dictionary, in first-seen order.
func unknownWords(ctx context.Context, q querier, dictionaryID string, words []string) ([]string, error) {
	var missing []string
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = types.NormalizeWord(w)
		if seen[w] {
			continue
		}
		seen[w] = true

		var one int
		err := q.queryRow(ctx,
			"SELECT 1 FROM pronunciations WHERE dictionary_id = ? AND word = ?", dictionaryID, w).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			missing = append(missing, w)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("checking pronunciation of %q: %w", w, err)
		}
	}
	return missing, nil
}

func unknownWordError(missing []string) error {
	return fmt.Errorf("%w: %s", types.ErrUnknownWord, strings.Join(missing, ", "))
}

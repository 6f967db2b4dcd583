package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// itemTables are the tables an item write can touch.
var itemTables = []string{ItemsTable, AudioTable, TextsTable, TextRegionsTable, AudioRegionsTable}

// itemBuilder accumulates the records of a new item inside one transaction.
type itemBuilder struct {
	s      *Store
	q      querier
	detail types.ItemDetail
}

func (s *Store) newItem(ctx context.Context, q querier, corpusID string) (*itemBuilder, error) {
	b := &itemBuilder{s: s, q: q}
	b.detail.Item = types.Item{ItemID: s.newID(), CorpusID: corpusID, CreatedAt: s.now().UTC()}
	b.detail.Audio = []types.Audio{}
	b.detail.Text = []types.Text{}
	b.detail.TextRegions = []types.TextRegion{}
	b.detail.AudioRegions = []types.AudioRegion{}

	_, err := q.exec(ctx, "INSERT INTO items (item_id, corpus_id, created_at) VALUES (?, ?, ?)",
		b.detail.ItemID, corpusID, formatTime(b.detail.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("inserting item: %w", err)
	}
	return b, nil
}

func (b *itemBuilder) addAudio(ctx context.Context, desc types.AudioDescriptor) (types.Audio, error) {
	a := types.Audio{AudioID: b.s.newID(), ItemID: b.detail.ItemID, AudioDescriptor: desc}
	if a.Data == nil {
		a.Data = []byte{}
	}
	_, err := b.q.exec(ctx,
		"INSERT INTO audio (audio_id, item_id, samples_per_second, channel_count, encoding, data) VALUES (?, ?, ?, ?, ?, ?)",
		a.AudioID, a.ItemID, a.SamplesPerSecond, a.ChannelCount, a.Encoding, a.Data)
	if err != nil {
		return types.Audio{}, fmt.Errorf("inserting audio: %w", err)
	}
	b.detail.Audio = append(b.detail.Audio, a)
	return a, nil
}

func (b *itemBuilder) addText(ctx context.Context, desc types.TextDescriptor) (types.Text, error) {
	t := types.Text{TextID: b.s.newID(), ItemID: b.detail.ItemID, Words: desc.Words}
	if t.Words == nil {
		t.Words = []string{}
	}
	if err := insertText(ctx, b.q, t); err != nil {
		return types.Text{}, err
	}
	b.detail.Text = append(b.detail.Text, t)
	return t, nil
}

func (b *itemBuilder) addTextRegion(ctx context.Context, textID string, span types.TextSpan) (types.TextRegion, error) {
	r := types.TextRegion{RegionID: b.s.newID(), ItemID: b.detail.ItemID, TextID: textID, TextSpan: span}
	if err := insertTextRegion(ctx, b.q, r); err != nil {
		return types.TextRegion{}, err
	}
	b.detail.TextRegions = append(b.detail.TextRegions, r)
	return r, nil
}

func (b *itemBuilder) addAudioRegion(ctx context.Context, audioID string, textRegionID *string, span types.AudioSpan) error {
	r := types.AudioRegion{
		RegionID:     b.s.newID(),
		ItemID:       b.detail.ItemID,
		AudioID:      audioID,
		TextRegionID: textRegionID,
		AudioSpan:    span,
	}
	if err := insertAudioRegion(ctx, b.q, r); err != nil {
		return err
	}
	b.detail.AudioRegions = append(b.detail.AudioRegions, r)
	return nil
}

// createItem runs build against a fresh item of corpusID.
func (s *Store) createItem(ctx context.Context, corpusID string, build func(q querier, dictionaryID string, b *itemBuilder) error) (types.ItemDetail, error) {
	if err := requireID("corpus", corpusID); err != nil {
		return types.ItemDetail{}, err
	}

	var detail types.ItemDetail
	err := s.write(ctx, func(q querier) ([]string, error) {
		dictionaryID, err := corpusDictionary(ctx, q, corpusID)
		if err != nil {
			return nil, err
		}
		b, err := s.newItem(ctx, q, corpusID)
		if err != nil {
			return nil, err
		}
		if err := build(q, dictionaryID, b); err != nil {
			return nil, err
		}
		detail = b.detail
		return itemTables, nil
	})
	return detail, err
}

// CreateItem creates an item with an empty audio record and an empty text
// record, each covered by one empty region.
func (s *Store) CreateItem(ctx context.Context, corpusID string) (types.ItemDetail, error) {
	return s.createItem(ctx, corpusID, func(q querier, _ string, b *itemBuilder) error {
		a, err := b.addAudio(ctx, types.AudioDescriptor{})
		if err != nil {
			return err
		}
		t, err := b.addText(ctx, types.TextDescriptor{})
		if err != nil {
			return err
		}
		if _, err := b.addTextRegion(ctx, t.TextID, types.TextSpan{}); err != nil {
			return err
		}
		return b.addAudioRegion(ctx, a.AudioID, nil, types.AudioSpan{})
	})
}

// CreateItemWithAudio creates an item holding audio, covered by one region.
func (s *Store) CreateItemWithAudio(ctx context.Context, corpusID string, audio types.AudioDescriptor) (types.ItemDetail, error) {
	if err := audio.Validate(); err != nil {
		return types.ItemDetail{}, err
	}
	return s.createItem(ctx, corpusID, func(q querier, _ string, b *itemBuilder) error {
		a, err := b.addAudio(ctx, audio)
		if err != nil {
			return err
		}
		return b.addAudioRegion(ctx, a.AudioID, nil, types.AudioSpan{EndTime: audio.DurationMillis()})
	})
}

// CreateItemWithText creates an item holding text, covered by one region.
// Every word must have a pronunciation in the corpus's dictionary.
func (s *Store) CreateItemWithText(ctx context.Context, corpusID string, text types.TextDescriptor) (types.ItemDetail, error) {
	return s.createItem(ctx, corpusID, func(q querier, dictionaryID string, b *itemBuilder) error {
		_, err := addCheckedText(ctx, q, dictionaryID, b, text)
		return err
	})
}

// CreateItemWithAudioAndText creates an item holding both records. The
// audio region is linked to the text region that transcribes it.
func (s *Store) CreateItemWithAudioAndText(ctx context.Context, corpusID string, audio types.AudioDescriptor, text types.TextDescriptor) (types.ItemDetail, error) {
	if err := audio.Validate(); err != nil {
		return types.ItemDetail{}, err
	}
	return s.createItem(ctx, corpusID, func(q querier, dictionaryID string, b *itemBuilder) error {
		tr, err := addCheckedText(ctx, q, dictionaryID, b, text)
		if err != nil {
			return err
		}
		a, err := b.addAudio(ctx, audio)
		if err != nil {
			return err
		}
		return b.addAudioRegion(ctx, a.AudioID, &tr.RegionID, types.AudioSpan{EndTime: audio.DurationMillis()})
	})
}

// addCheckedText verifies the words against the dictionary, then adds the
// text record and a region spanning it.
func addCheckedText(ctx context.Context, q querier, dictionaryID string, b *itemBuilder, text types.TextDescriptor) (types.TextRegion, error) {
	missing, err := unknownWords(ctx, q, dictionaryID, text.Words)
	if err != nil {
		return types.TextRegion{}, err
	}
	if len(missing) > 0 {
		return types.TextRegion{}, unknownWordError(missing)
	}
	t, err := b.addText(ctx, text)
	if err != nil {
		return types.TextRegion{}, err
	}
	return b.addTextRegion(ctx, t.TextID, types.TextSpan{EndIndex: len(t.Words)})
}

// GetItem returns an item with its records and regions.
func (s *Store) GetItem(ctx context.Context, itemID string) (types.ItemDetail, error) {
	if err := requireID("item", itemID); err != nil {
		return types.ItemDetail{}, err
	}

	var d types.ItemDetail
	err := s.read(ctx, func(q querier) error {
		var created string
		err := q.queryRow(ctx, "SELECT corpus_id, created_at FROM items WHERE item_id = ?", itemID).
			Scan(&d.CorpusID, &created)
		if errors.Is(err, sql.ErrNoRows) {
			return itemNotFound(itemID)
		}
		if err != nil {
			return fmt.Errorf("getting item %s: %w", itemID, err)
		}
		d.ItemID = itemID
		if d.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		if d.Audio, err = loadAudio(ctx, q, itemID); err != nil {
			return err
		}
		if d.Text, err = loadTexts(ctx, q, itemID); err != nil {
			return err
		}
		if d.TextRegions, err = loadTextRegions(ctx, q, "item_id", itemID); err != nil {
			return err
		}
		d.AudioRegions, err = loadAudioRegions(ctx, q, "item_id", itemID)
		return err
	})
	return d, err
}

// CreateTextRegion adds a region over the item's text record.
func (s *Store) CreateTextRegion(ctx context.Context, itemID string, span types.TextSpan) (types.TextRegion, error) {
	if err := requireID("item", itemID); err != nil {
		return types.TextRegion{}, err
	}

	var region types.TextRegion
	err := s.write(ctx, func(q querier) ([]string, error) {
		texts, err := itemTexts(ctx, q, itemID)
		if err != nil {
			return nil, err
		}
		if len(texts) == 0 {
			return nil, fmt.Errorf("%w: item %s has no text", types.ErrInvalidRegion, itemID)
		}
		t := texts[0]
		if !span.Within(len(t.Words)) {
			return nil, fmt.Errorf("%w: words [%d, %d) outside text of %d words",
				types.ErrInvalidRegion, span.StartIndex, span.EndIndex, len(t.Words))
		}
		region = types.TextRegion{RegionID: s.newID(), ItemID: itemID, TextID: t.TextID, TextSpan: span}
		if err := insertTextRegion(ctx, q, region); err != nil {
			return nil, err
		}
		return []string{TextRegionsTable}, nil
	})
	return region, err
}

// CreateAudioRegion adds a region over the item's audio record.
func (s *Store) CreateAudioRegion(ctx context.Context, itemID string, span types.AudioSpan) (types.AudioRegion, error) {
	return s.createAudioRegion(ctx, itemID, "", span)
}

// CreateAudioRegionWithText adds a region over the item's audio record,
// linked to one of the item's text regions.
func (s *Store) CreateAudioRegionWithText(ctx context.Context, itemID, textRegionID string, span types.AudioSpan) (types.AudioRegion, error) {
	if err := requireID("text region", textRegionID); err != nil {
		return types.AudioRegion{}, err
	}
	return s.createAudioRegion(ctx, itemID, textRegionID, span)
}

func (s *Store) createAudioRegion(ctx context.Context, itemID, textRegionID string, span types.AudioSpan) (types.AudioRegion, error) {
	if err := requireID("item", itemID); err != nil {
		return types.AudioRegion{}, err
	}

	var region types.AudioRegion
	err := s.write(ctx, func(q querier) ([]string, error) {
		audio, err := itemAudioFormats(ctx, q, itemID)
		if err != nil {
			return nil, err
		}
		if len(audio) == 0 {
			return nil, fmt.Errorf("%w: item %s has no audio", types.ErrInvalidRegion, itemID)
		}
		a := audio[0]
		if d := a.DurationMillis(); !span.Within(d) {
			return nil, fmt.Errorf("%w: [%d, %d) ms outside audio of %d ms",
				types.ErrInvalidRegion, span.BeginTime, span.EndTime, d)
		}

		region = types.AudioRegion{RegionID: s.newID(), ItemID: itemID, AudioID: a.AudioID, AudioSpan: span}
		if textRegionID != "" {
			if err := requireTextRegionOf(ctx, q, textRegionID, itemID); err != nil {
				return nil, err
			}
			region.TextRegionID = &textRegionID
		}
		if err := insertAudioRegion(ctx, q, region); err != nil {
			return nil, err
		}
		return []string{AudioRegionsTable}, nil
	})
	return region, err
}

// AssociateAudioRegionWithText links an audio region to a text region of
// the same item.
func (s *Store) AssociateAudioRegionWithText(ctx context.Context, audioRegionID, textRegionID string) error {
	if err := requireID("audio region", audioRegionID); err != nil {
		return err
	}
	if err := requireID("text region", textRegionID); err != nil {
		return err
	}

	return s.write(ctx, func(q querier) ([]string, error) {
		var itemID string
		err := q.queryRow(ctx, "SELECT item_id FROM audio_regions WHERE region_id = ?", audioRegionID).Scan(&itemID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no audio region with id %s exists: %w", audioRegionID, types.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("getting audio region %s: %w", audioRegionID, err)
		}
		if err := requireTextRegionOf(ctx, q, textRegionID, itemID); err != nil {
			return nil, err
		}
		if _, err := q.exec(ctx, "UPDATE audio_regions SET text_region_id = ? WHERE region_id = ?",
			textRegionID, audioRegionID); err != nil {
			return nil, fmt.Errorf("linking audio region %s: %w", audioRegionID, err)
		}
		return []string{AudioRegionsTable}, nil
	})
}

// requireTextRegionOf checks that the text region exists and belongs to
// itemID.
func requireTextRegionOf(ctx context.Context, q querier, textRegionID, itemID string) error {
	var owner string
	err := q.queryRow(ctx, "SELECT item_id FROM text_regions WHERE region_id = ?", textRegionID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("no text region with id %s exists: %w", textRegionID, types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("getting text region %s: %w", textRegionID, err)
	}
	if owner != itemID {
		return fmt.Errorf("%w: text region %s belongs to another item", types.ErrInvalidRegion, textRegionID)
	}
	return nil
}

func itemNotFound(id string) error {
	return fmt.Errorf("no item with id %s exists: %w", id, types.ErrNotFound)
}

// requireItem fails with ErrNotFound if the item is unknown.
func requireItem(ctx context.Context, q querier, itemID string) error {
	ok, err := exists(ctx, q, ItemsTable, "item_id", itemID)
	if err != nil {
		return err
	}
	if !ok {
		return itemNotFound(itemID)
	}
	return nil
}

// itemTexts returns the text records of an existing item.
func itemTexts(ctx context.Context, q querier, itemID string) ([]types.Text, error) {
	if err := requireItem(ctx, q, itemID); err != nil {
		return nil, err
	}
	return loadTexts(ctx, q, itemID)
}

// itemAudioFormats returns the audio records of an existing item without
// sample data, with Data sized so durations still compute.
func itemAudioFormats(ctx context.Context, q querier, itemID string) ([]types.Audio, error) {
	if err := requireItem(ctx, q, itemID); err != nil {
		return nil, err
	}
	rows, err := q.query(ctx,
		"SELECT audio_id, samples_per_second, channel_count, encoding, COALESCE(length(data), 0) FROM audio WHERE item_id = ? ORDER BY audio_id",
		itemID)
	if err != nil {
		return nil, fmt.Errorf("querying audio: %w", err)
	}
	defer rows.Close()

	var out []types.Audio
	for rows.Next() {
		a := types.Audio{ItemID: itemID}
		var size int
		if err := rows.Scan(&a.AudioID, &a.SamplesPerSecond, &a.ChannelCount, &a.Encoding, &size); err != nil {
			return nil, fmt.Errorf("scanning audio: %w", err)
		}
		a.Data = make([]byte, size)
		out = append(out, a)
	}
	return out, rows.Err()
}

func loadAudio(ctx context.Context, q querier, itemID string) ([]types.Audio, error) {
	rows, err := q.query(ctx,
		"SELECT audio_id, samples_per_second, channel_count, encoding, data FROM audio WHERE item_id = ? ORDER BY audio_id",
		itemID)
	if err != nil {
		return nil, fmt.Errorf("querying audio: %w", err)
	}
	defer rows.Close()

	out := []types.Audio{}
	for rows.Next() {
		a := types.Audio{ItemID: itemID}
		if err := rows.Scan(&a.AudioID, &a.SamplesPerSecond, &a.ChannelCount, &a.Encoding, &a.Data); err != nil {
			return nil, fmt.Errorf("scanning audio: %w", err)
		}
		if a.Data == nil {
			a.Data = []byte{}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertText(ctx context.Context, q querier, t types.Text) error {
	words, err := json.Marshal(t.Words)
	if err != nil {
		return fmt.Errorf("encoding words: %w", err)
	}
	if _, err := q.exec(ctx, "INSERT INTO texts (text_id, item_id, words) VALUES (?, ?, ?)",
		t.TextID, t.ItemID, string(words)); err != nil {
		return fmt.Errorf("inserting text: %w", err)
	}
	return nil
}

func loadTexts(ctx context.Context, q querier, itemID string) ([]types.Text, error) {
	rows, err := q.query(ctx, "SELECT text_id, words FROM texts WHERE item_id = ? ORDER BY text_id", itemID)
	if err != nil {
		return nil, fmt.Errorf("querying texts: %w", err)
	}
	defer rows.Close()

	out := []types.Text{}
	for rows.Next() {
		t := types.Text{ItemID: itemID}
		var words string
		if err := rows.Scan(&t.TextID, &words); err != nil {
			return nil, fmt.Errorf("scanning text: %w", err)
		}
		if err := json.Unmarshal([]byte(words), &t.Words); err != nil {
			return nil, fmt.Errorf("decoding words of text %s: %w", t.TextID, err)
		}
		if t.Words == nil {
			t.Words = []string{}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func insertTextRegion(ctx context.Context, q querier, r types.TextRegion) error {
	if _, err := q.exec(ctx,
		"INSERT INTO text_regions (region_id, item_id, text_id, start_index, end_index) VALUES (?, ?, ?, ?, ?)",
		r.RegionID, r.ItemID, r.TextID, r.StartIndex, r.EndIndex); err != nil {
		return fmt.Errorf("inserting text region: %w", err)
	}
	return nil
}

func loadTextRegions(ctx context.Context, q querier, column, id string) ([]types.TextRegion, error) {
	rows, err := q.query(ctx,
		"SELECT region_id, item_id, text_id, start_index, end_index FROM text_regions WHERE "+column+" = ? ORDER BY region_id",
		id)
	if err != nil {
		return nil, fmt.Errorf("querying text regions: %w", err)
	}
	defer rows.Close()

	out := []types.TextRegion{}
	for rows.Next() {
		var r types.TextRegion
		if err := rows.Scan(&r.RegionID, &r.ItemID, &r.TextID, &r.StartIndex, &r.EndIndex); err != nil {
			return nil, fmt.Errorf("scanning text region: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func insertAudioRegion(ctx context.Context, q querier, r types.AudioRegion) error {
	var textRegion any
	if r.TextRegionID != nil {
		textRegion = *r.TextRegionID
	}
	if _, err := q.exec(ctx,
		"INSERT INTO audio_regions (region_id, item_id, audio_id, text_region_id, begin_time, end_time) VALUES (?, ?, ?, ?, ?, ?)",
		r.RegionID, r.ItemID, r.AudioID, textRegion, r.BeginTime, r.EndTime); err != nil {
		return fmt.Errorf("inserting audio region: %w", err)
	}
	return nil
}

func loadAudioRegions(ctx context.Context, q querier, column, id string) ([]types.AudioRegion, error) {
	rows, err := q.query(ctx,
		"SELECT region_id, item_id, audio_id, text_region_id, begin_time, end_time FROM audio_regions WHERE "+column+" = ? ORDER BY region_id",
		id)
	if err != nil {
		return nil, fmt.Errorf("querying audio regions: %w", err)
	}
	defer rows.Close()

	out := []types.AudioRegion{}
	for rows.Next() {
		var r types.AudioRegion
		var textRegion sql.NullString
		if err := rows.Scan(&r.RegionID, &r.ItemID, &r.AudioID, &textRegion, &r.BeginTime, &r.EndTime); err != nil {
			return nil, fmt.Errorf("scanning audio region: %w", err)
		}
		if textRegion.Valid {
			r.TextRegionID = &textRegion.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

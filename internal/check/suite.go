package check

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// Options configures a suite run.
type Options struct {
	Filter Filter
	Logger Logger

	// RunID makes the run's metadata values unique, so the suite can run
	// repeatedly against a persistent registry. Generated when empty.
	RunID string
}

// Run executes every check against reg and returns the results.
func Run(ctx context.Context, reg types.Registry, opts Options) Results {
	if opts.Logger == nil {
		opts.Logger = nullLogger{}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	env := &environment{ctx: ctx, logger: opts.Logger}
	root := &T{env: env}
	s := &suite{reg: reg, runID: opts.RunID}

	for _, c := range s.checks() {
		if opts.Filter != nil && !opts.Filter(c.id) {
			env.results.add(TestResult{TestID: c.id, Skipped: true})
			env.logger.CheckSkipped(c.id, "excluded by filter")
			continue
		}
		root.runChild(c.id, c.fn)
	}
	return env.results
}

// IDs lists every check in run order.
func IDs() []TestID {
	s := &suite{}
	var ids []TestID
	for _, c := range s.checks() {
		ids = append(ids, c.id)
	}
	return ids
}

type namedCheck struct {
	id TestID
	fn func(*T)
}

// checks flattens the groups into one ordered list.
func (s *suite) checks() []namedCheck {
	groups := []struct {
		name   string
		checks func() []namedCheck
	}{
		{"echo", s.echo},
		{"dictionary", s.dictionary},
		{"corpus", s.corpus},
		{"pronunciation", s.pronunciation},
		{"item", s.item},
	}
	var all []namedCheck
	for _, g := range groups {
		for _, c := range g.checks() {
			c.id = TestID{Path: append([]string{g.name}, c.id.Path...)}
			all = append(all, c)
		}
	}
	return all
}

func named(name string, fn func(*T)) namedCheck {
	return namedCheck{id: TestID{Path: []string{name}}, fn: fn}
}

type suite struct {
	reg   types.Registry
	runID string
	seq   int
}

// metadata returns entries unique to this run and call.
func (s *suite) metadata(pairs ...string) types.Metadata {
	s.seq++
	md := types.Metadata{{Key: "check-run", Value: fmt.Sprintf("%s-%d", s.runID, s.seq)}}
	for i := 0; i+1 < len(pairs); i += 2 {
		md = append(md, types.Entry{Key: pairs[i], Value: pairs[i+1]})
	}
	return md
}

func (s *suite) newDictionary(t *T) string {
	id, err := s.reg.CreateDictionary(t.Context(), types.DictionaryDescriptor{
		Metadata: s.metadata("language", "en", "dialect", "us"),
	})
	require.NoError(t, err)
	return id
}

func (s *suite) newCorpus(t *T, dictionaryID string) string {
	id, err := s.reg.CreateCorpus(t.Context(), dictionaryID, types.CorpusDescriptor{
		Metadata:    s.metadata("name", "check corpus"),
		CollectDate: time.Now().UTC().Truncate(time.Second),
	})
	require.NoError(t, err)
	return id
}

// requireFault checks err is a fault with the given code.
func requireFault(t *T, err error, code string) {
	require.Error(t, err, "expected a %s fault", code)
	assert.Equal(t, code, types.CodeOf(err), "fault code for %v", err)
}

func (s *suite) echo() []namedCheck {
	return []namedCheck{
		named("returns message unchanged", func(t *T) {
			for _, msg := range []string{"", "hello", s.runID, "tab\tand\nnewline", "ünïcödé ✓"} {
				got, err := s.reg.Echo(t.Context(), msg)
				require.NoError(t, err)
				assert.Equal(t, msg, got)
			}
		}),
	}
}

func (s *suite) dictionary() []namedCheck {
	return []namedCheck{
		named("create then get", func(t *T) {
			desc := types.DictionaryDescriptor{Metadata: s.metadata("language", "fr")}
			id, err := s.reg.CreateDictionary(t.Context(), desc)
			require.NoError(t, err)
			got, err := s.reg.GetDictionary(t.Context(), desc)
			require.NoError(t, err)
			assert.Equal(t, id, got)
		}),

		named("get ignores entry order", func(t *T) {
			md := s.metadata("language", "de", "dialect", "at", "source", "check")
			id, err := s.reg.CreateDictionary(t.Context(), types.DictionaryDescriptor{Metadata: md})
			require.NoError(t, err)

			reversed := make(types.Metadata, len(md))
			for i, e := range md {
				reversed[len(md)-1-i] = e
			}
			got, err := s.reg.GetDictionary(t.Context(), types.DictionaryDescriptor{Metadata: reversed})
			require.NoError(t, err)
			assert.Equal(t, id, got)
		}),

		named("metadata matches created entries", func(t *T) {
			md := s.metadata("language", "es", "region", "mx")
			id, err := s.reg.CreateDictionary(t.Context(), types.DictionaryDescriptor{Metadata: md})
			require.NoError(t, err)
			desc, err := s.reg.GetDictionaryMetadata(t.Context(), id)
			require.NoError(t, err)
			assert.ElementsMatch(t, md, desc.Metadata)
		}),

		named("duplicate create is rejected", func(t *T) {
			desc := types.DictionaryDescriptor{Metadata: s.metadata("language", "it")}
			_, err := s.reg.CreateDictionary(t.Context(), desc)
			require.NoError(t, err)
			_, err = s.reg.CreateDictionary(t.Context(), desc)
			requireFault(t, err, types.CodeAlreadyExists)
		}),

		named("get unknown metadata is a fault", func(t *T) {
			_, err := s.reg.GetDictionary(t.Context(), types.DictionaryDescriptor{Metadata: s.metadata("never", "created")})
			requireFault(t, err, types.CodeNotFound)
		}),

		named("metadata of unknown id is a fault", func(t *T) {
			_, err := s.reg.GetDictionaryMetadata(t.Context(), uuid.NewString())
			requireFault(t, err, types.CodeNotFound)
		}),

		named("empty metadata is rejected", func(t *T) {
			_, err := s.reg.CreateDictionary(t.Context(), types.DictionaryDescriptor{})
			requireFault(t, err, types.CodeInvalidArgument)
		}),

		named("find by subset", func(t *T) {
			md := s.metadata("language", "pt", "region", "br")
			id, err := s.reg.CreateDictionary(t.Context(), types.DictionaryDescriptor{Metadata: md})
			require.NoError(t, err)
			ids, err := s.reg.FindDictionaries(t.Context(), md[:1])
			require.NoError(t, err)
			assert.Equal(t, []string{id}, ids)
		}),

		named("get by subset", func(t *T) {
			md := s.metadata("language", "nl", "region", "be")
			id, err := s.reg.CreateDictionary(t.Context(), types.DictionaryDescriptor{Metadata: md})
			require.NoError(t, err)
			got, err := s.reg.GetDictionary(t.Context(), types.DictionaryDescriptor{Metadata: md[:2]})
			require.NoError(t, err)
			assert.Equal(t, id, got)
		}),

		named("subset create is rejected", func(t *T) {
			md := s.metadata("language", "sv", "region", "fi")
			_, err := s.reg.CreateDictionary(t.Context(), types.DictionaryDescriptor{Metadata: md})
			require.NoError(t, err)
			_, err = s.reg.CreateDictionary(t.Context(), types.DictionaryDescriptor{Metadata: md[:2]})
			requireFault(t, err, types.CodeAlreadyExists)
		}),
	}
}

func (s *suite) corpus() []namedCheck {
	return []namedCheck{
		named("create then get descriptor", func(t *T) {
			dictID := s.newDictionary(t)
			desc := types.CorpusDescriptor{
				Metadata:    s.metadata("speaker", "check", "style", "read"),
				CollectDate: time.Date(2021, 6, 15, 8, 45, 30, 0, time.UTC),
			}
			id, err := s.reg.CreateCorpus(t.Context(), dictID, desc)
			require.NoError(t, err)

			got, err := s.reg.GetCorpusDescriptor(t.Context(), id)
			require.NoError(t, err)
			assert.ElementsMatch(t, desc.Metadata, got.Metadata)
			assert.True(t, desc.CollectDate.Equal(got.CollectDate), "collect date %v != %v", got.CollectDate, desc.CollectDate)
		}),

		named("unknown dictionary is a fault", func(t *T) {
			_, err := s.reg.CreateCorpus(t.Context(), uuid.NewString(), types.CorpusDescriptor{})
			requireFault(t, err, types.CodeNotFound)
		}),

		named("descriptor of unknown id is a fault", func(t *T) {
			_, err := s.reg.GetCorpusDescriptor(t.Context(), uuid.NewString())
			requireFault(t, err, types.CodeNotFound)
		}),

		named("listed under dictionary", func(t *T) {
			dictID := s.newDictionary(t)
			id := s.newCorpus(t, dictID)
			corpora, err := s.reg.ListCorpora(t.Context(), dictID)
			require.NoError(t, err)
			require.Len(t, corpora, 1)
			assert.Equal(t, id, corpora[0].CorpusID)
		}),
	}
}

func (s *suite) pronunciation() []namedCheck {
	return []namedCheck{
		named("lookup is case-insensitive", func(t *T) {
			dictID := s.newDictionary(t)
			_, err := s.reg.AddPronunciations(t.Context(), dictID, "Riddle", []string{"r ih d ah l"})
			require.NoError(t, err)
			for _, w := range []string{"riddle", "RIDDLE", " Riddle "} {
				found, err := s.reg.HasPronunciation(t.Context(), dictID, w)
				require.NoError(t, err)
				assert.True(t, found, "word %q", w)
			}
		}),

		named("unknown word is false", func(t *T) {
			dictID := s.newDictionary(t)
			found, err := s.reg.HasPronunciation(t.Context(), dictID, "enigma")
			require.NoError(t, err)
			assert.False(t, found)
		}),

		named("repeat add keeps one record", func(t *T) {
			dictID := s.newDictionary(t)
			first, err := s.reg.AddPronunciations(t.Context(), dictID, "route", []string{"r uw t"})
			require.NoError(t, err)
			second, err := s.reg.AddPronunciations(t.Context(), dictID, "route", []string{"r aw t"})
			require.NoError(t, err)
			assert.Equal(t, first, second)
		}),
	}
}

func (s *suite) item() []namedCheck {
	audio := types.AudioDescriptor{
		SamplesPerSecond: 8000,
		ChannelCount:     1,
		Encoding:         types.EncodingPCMS16LE,
		Data:             make([]byte, 8000),
	}

	setup := func(t *T, words ...string) string {
		dictID := s.newDictionary(t)
		for _, w := range words {
			_, err := s.reg.AddPronunciations(t.Context(), dictID, w, []string{w})
			require.NoError(t, err)
		}
		return s.newCorpus(t, dictID)
	}

	return []namedCheck{
		named("empty item has empty records", func(t *T) {
			corpusID := setup(t)
			item, err := s.reg.CreateItem(t.Context(), corpusID)
			require.NoError(t, err)
			assert.Len(t, item.Audio, 1)
			assert.Len(t, item.Text, 1)
			assert.Len(t, item.TextRegions, 1)
			assert.Len(t, item.AudioRegions, 1)
		}),

		named("unknown words are rejected", func(t *T) {
			corpusID := setup(t, "open")
			_, err := s.reg.CreateItemWithText(t.Context(), corpusID, types.TextDescriptor{Words: []string{"open", "sesame"}})
			requireFault(t, err, types.CodeUnknownWord)
		}),

		named("audio and text are linked", func(t *T) {
			corpusID := setup(t, "open", "sesame")
			item, err := s.reg.CreateItemWithAudioAndText(t.Context(), corpusID, audio, types.TextDescriptor{Words: []string{"open", "sesame"}})
			require.NoError(t, err)
			require.Len(t, item.AudioRegions, 1)
			require.Len(t, item.TextRegions, 1)
			require.NotNil(t, item.AudioRegions[0].TextRegionID)
			assert.Equal(t, item.TextRegions[0].RegionID, *item.AudioRegions[0].TextRegionID)

			got, err := s.reg.GetItem(t.Context(), item.ItemID)
			require.NoError(t, err)
			assert.Equal(t, item.ItemID, got.ItemID)
		}),

		named("regions out of bounds are rejected", func(t *T) {
			corpusID := setup(t, "open")
			item, err := s.reg.CreateItemWithAudioAndText(t.Context(), corpusID, audio, types.TextDescriptor{Words: []string{"open"}})
			require.NoError(t, err)

			_, err = s.reg.CreateTextRegion(t.Context(), item.ItemID, types.TextSpan{StartIndex: 0, EndIndex: 2})
			requireFault(t, err, types.CodeInvalidRegion)
			_, err = s.reg.CreateAudioRegion(t.Context(), item.ItemID, types.AudioSpan{BeginTime: 0, EndTime: 501})
			requireFault(t, err, types.CodeInvalidRegion)
		}),

		named("item of unknown id is a fault", func(t *T) {
			_, err := s.reg.GetItem(t.Context(), uuid.NewString())
			requireFault(t, err, types.CodeNotFound)
		}),
	}
}

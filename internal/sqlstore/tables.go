package sqlstore

// Table names.
const (
	DictionariesTable          = "dictionaries"
	DictionaryMetadataTable    = "dictionary_metadata"
	CorporaTable               = "corpora"
	CorpusMetadataTable        = "corpus_metadata"
	PronunciationsTable        = "pronunciations"
	PronunciationVariantsTable = "pronunciation_variants"
	ItemsTable                 = "items"
	AudioTable                 = "audio"
	TextsTable                 = "texts"
	TextRegionsTable           = "text_regions"
	AudioRegionsTable          = "audio_regions"
)

// TableSpec describes a table's columns for bulk export and import.
type TableSpec struct {
	Name    string
	Columns []string

	// OrderBy is a stable ordering for exports.
	OrderBy string

	// Blob lists columns holding binary data.
	Blob []string
}

// Tables lists every table in foreign-key order: a table only references
// tables before it.
var Tables = []TableSpec{
	{Name: DictionariesTable, Columns: []string{"dictionary_id", "fingerprint", "created_at"}, OrderBy: "dictionary_id"},
	{Name: DictionaryMetadataTable, Columns: []string{"dictionary_id", "ordinal", "entry_key", "entry_value"}, OrderBy: "dictionary_id, ordinal"},
	{Name: CorporaTable, Columns: []string{"corpus_id", "dictionary_id", "collect_date", "created_at"}, OrderBy: "corpus_id"},
	{Name: CorpusMetadataTable, Columns: []string{"corpus_id", "ordinal", "entry_key", "entry_value"}, OrderBy: "corpus_id, ordinal"},
	{Name: PronunciationsTable, Columns: []string{"pronunciation_id", "dictionary_id", "word"}, OrderBy: "pronunciation_id"},
	{Name: PronunciationVariantsTable, Columns: []string{"pronunciation_id", "variant"}, OrderBy: "pronunciation_id, variant"},
	{Name: ItemsTable, Columns: []string{"item_id", "corpus_id", "created_at"}, OrderBy: "item_id"},
	{Name: AudioTable, Columns: []string{"audio_id", "item_id", "samples_per_second", "channel_count", "encoding", "data"}, OrderBy: "audio_id", Blob: []string{"data"}},
	{Name: TextsTable, Columns: []string{"text_id", "item_id", "words"}, OrderBy: "text_id"},
	{Name: TextRegionsTable, Columns: []string{"region_id", "item_id", "text_id", "start_index", "end_index"}, OrderBy: "region_id"},
	{Name: AudioRegionsTable, Columns: []string{"region_id", "item_id", "audio_id", "text_region_id", "begin_time", "end_time"}, OrderBy: "region_id"},
}

// IsBlob reports whether column holds binary data.
func (t TableSpec) IsBlob(column string) bool {
	for _, c := range t.Blob {
		if c == column {
			return true
		}
	}
	return false
}

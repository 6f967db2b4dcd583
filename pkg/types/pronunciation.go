package types

import (
	"sort"
	"strings"
)

// Pronunciation lists the phonetic variants of one word in a dictionary.
type Pronunciation struct {
	PronunciationID string   `json:"pronunciation_id"`
	DictionaryID    string   `json:"dictionary_id"`
	Word            string   `json:"word"`
	Variants        []string `json:"variants"`
}

// NormalizeWord returns the form under which a word is stored and matched.
// Words are case-insensitive.
func NormalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// MergeVariants returns the sorted union of existing and added, skipping
// blank variants.
func MergeVariants(existing, added []string) []string {
	set := make(map[string]bool, len(existing)+len(added))
	for _, v := range existing {
		set[v] = true
	}
	for _, v := range added {
		v = strings.TrimSpace(v)
		if v != "" {
			set[v] = true
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

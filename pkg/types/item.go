package types

import (
	"fmt"
	"time"
)

// Audio sample encodings.
const (
	EncodingPCMS8    = "pcm_s8"
	EncodingPCMS16LE = "pcm_s16le"
	EncodingPCMS32LE = "pcm_s32le"
	EncodingPCMS64LE = "pcm_s64le"
	EncodingPCMF32LE = "pcm_f32le"
)

// bytesPerSample maps each encoding to its sample width.
var bytesPerSample = map[string]int{
	EncodingPCMS8:    1,
	EncodingPCMS16LE: 2,
	EncodingPCMS32LE: 4,
	EncodingPCMS64LE: 8,
	EncodingPCMF32LE: 4,
}

// Item is one utterance of a corpus. Its audio and text live in component
// records, and regions select spans of those records.
type Item struct {
	ItemID    string    `json:"item_id"`
	CorpusID  string    `json:"corpus_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AudioDescriptor is raw interleaved PCM audio.
type AudioDescriptor struct {
	SamplesPerSecond int    `json:"samples_per_second"`
	ChannelCount     int    `json:"channel_count"`
	Encoding         string `json:"encoding"`
	Data             []byte `json:"data"`
}

// MaxChannelCount bounds AudioDescriptor.ChannelCount.
const MaxChannelCount = 1 << 16

// Validate checks the format fields and that Data holds whole frames.
func (a AudioDescriptor) Validate() error {
	if a.SamplesPerSecond <= 0 {
		return fmt.Errorf("%w: samples per second must be positive", ErrInvalidAudio)
	}
	if a.ChannelCount <= 0 || a.ChannelCount > MaxChannelCount {
		return fmt.Errorf("%w: channel count must be in [1, %d]", ErrInvalidAudio, MaxChannelCount)
	}
	width, ok := bytesPerSample[a.Encoding]
	if !ok {
		return fmt.Errorf("%w: unknown encoding %q", ErrInvalidAudio, a.Encoding)
	}
	if len(a.Data)%(width*a.ChannelCount) != 0 {
		return fmt.Errorf("%w: data is not a whole number of frames", ErrInvalidAudio)
	}
	return nil
}

// Frames returns the number of sample frames in Data.
func (a AudioDescriptor) Frames() int {
	width := bytesPerSample[a.Encoding]
	if width == 0 || a.ChannelCount <= 0 || a.ChannelCount > MaxChannelCount {
		return 0
	}
	return len(a.Data) / (width * a.ChannelCount)
}

// DurationMillis returns the audio length in milliseconds.
func (a AudioDescriptor) DurationMillis() int64 {
	if a.SamplesPerSecond <= 0 {
		return 0
	}
	return int64(a.Frames()) * 1000 / int64(a.SamplesPerSecond)
}

// Audio is the stored audio record of an item.
type Audio struct {
	AudioID string `json:"audio_id"`
	ItemID  string `json:"item_id"`
	AudioDescriptor
}

// TextDescriptor is a transcript as a list of words.
type TextDescriptor struct {
	Words []string `json:"words"`
}

// Text is the stored text record of an item.
type Text struct {
	TextID string   `json:"text_id"`
	ItemID string   `json:"item_id"`
	Words  []string `json:"words"`
}

// TextSpan selects words [StartIndex, EndIndex) of a text record.
type TextSpan struct {
	StartIndex int `json:"start_index"`
	EndIndex   int `json:"end_index"`
}

// Within reports whether the span fits a text of n words.
func (s TextSpan) Within(n int) bool {
	return s.StartIndex >= 0 && s.StartIndex <= s.EndIndex && s.EndIndex <= n
}

// AudioSpan selects milliseconds [BeginTime, EndTime) of an audio record.
type AudioSpan struct {
	BeginTime int64 `json:"begin_time"`
	EndTime   int64 `json:"end_time"`
}

// Within reports whether the span fits audio of the given duration.
func (s AudioSpan) Within(durationMillis int64) bool {
	return s.BeginTime >= 0 && s.BeginTime <= s.EndTime && s.EndTime <= durationMillis
}

// TextRegion is a stored span of a text record.
type TextRegion struct {
	RegionID string `json:"region_id"`
	ItemID   string `json:"item_id"`
	TextID   string `json:"text_id"`
	TextSpan
}

// AudioRegion is a stored span of an audio record, optionally linked to the
// text region that transcribes it.
type AudioRegion struct {
	RegionID     string  `json:"region_id"`
	ItemID       string  `json:"item_id"`
	AudioID      string  `json:"audio_id"`
	TextRegionID *string `json:"text_region_id,omitempty"`
	AudioSpan
}

// ItemDetail is an item with all of its component records and regions.
type ItemDetail struct {
	Item
	Audio        []Audio       `json:"audio"`
	Text         []Text        `json:"text"`
	TextRegions  []TextRegion  `json:"text_regions"`
	AudioRegions []AudioRegion `json:"audio_regions"`
}

package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/riddler/pkg/types"
)

// itemInput collects the flags of "item create".
type itemInput struct {
	words     string
	audioFile string
	rate      int
	channels  int
	encoding  string
}

func (in itemInput) audio() (*types.AudioDescriptor, error) {
	if in.audioFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(in.audioFile)
	if err != nil {
		return nil, userError(fmt.Errorf("read audio: %w", err))
	}
	return &types.AudioDescriptor{
		SamplesPerSecond: in.rate,
		ChannelCount:     in.channels,
		Encoding:         in.encoding,
		Data:             data,
	}, nil
}

func (in itemInput) text() *types.TextDescriptor {
	if in.words == "" {
		return nil
	}
	return &types.TextDescriptor{Words: strings.Fields(in.words)}
}

func newItemCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "item",
		Short: "Create items and their regions",
	}

	var in itemInput
	create := &cobra.Command{
		Use:   "create <corpus-id>",
		Short: "Create an item with optional audio and text",
		Long: `Create adds an item to a corpus. --words gives the transcript; every
word must have a pronunciation in the corpus's dictionary. --audio-file
gives raw interleaved PCM described by --rate, --channels and --encoding.

Example:
  riddler item create 0190f3c4-... --words "hello world" \
    --audio-file hello.raw --rate 16000 --encoding pcm_s16le`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := in.audio()
			if err != nil {
				return err
			}
			text := in.text()
			return a.withRegistry(func(reg types.Registry) error {
				var (
					detail types.ItemDetail
					err    error
				)
				ctx := cmd.Context()
				switch {
				case audio != nil && text != nil:
					detail, err = reg.CreateItemWithAudioAndText(ctx, args[0], *audio, *text)
				case audio != nil:
					detail, err = reg.CreateItemWithAudio(ctx, args[0], *audio)
				case text != nil:
					detail, err = reg.CreateItemWithText(ctx, args[0], *text)
				default:
					detail, err = reg.CreateItem(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return a.printItem(cmd, detail)
			})
		},
	}
	f := create.Flags()
	f.StringVar(&in.words, "words", "", "space-separated transcript")
	f.StringVar(&in.audioFile, "audio-file", "", "raw PCM audio file")
	f.IntVar(&in.rate, "rate", 16000, "audio samples per second")
	f.IntVar(&in.channels, "channels", 1, "audio channel count")
	f.StringVar(&in.encoding, "encoding", types.EncodingPCMS16LE, "audio sample encoding")

	var textRegion string
	audioRegion := &cobra.Command{
		Use:   "audio-region <item-id> <begin-ms> <end-ms>",
		Short: "Create an audio region, optionally linked to a text region",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			begin, end, err := parseSpan(args[1], args[2])
			if err != nil {
				return err
			}
			span := types.AudioSpan{BeginTime: begin, EndTime: end}
			return a.withRegistry(func(reg types.Registry) error {
				var region types.AudioRegion
				if textRegion != "" {
					region, err = reg.CreateAudioRegionWithText(cmd.Context(), args[0], textRegion, span)
				} else {
					region, err = reg.CreateAudioRegion(cmd.Context(), args[0], span)
				}
				if err != nil {
					return err
				}
				return a.printID(cmd, region.RegionID)
			})
		},
	}
	audioRegion.Flags().StringVar(&textRegion, "text-region", "", "text region to link")

	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "get <id>",
			Short: "Print an item with its records and regions",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRegistry(func(reg types.Registry) error {
					detail, err := reg.GetItem(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return a.printItem(cmd, detail)
				})
			},
		},
		&cobra.Command{
			Use:   "text-region <item-id> <start> <end>",
			Short: "Create a text region over words [start, end)",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				start, end, err := parseSpan(args[1], args[2])
				if err != nil {
					return err
				}
				span := types.TextSpan{StartIndex: int(start), EndIndex: int(end)}
				return a.withRegistry(func(reg types.Registry) error {
					region, err := reg.CreateTextRegion(cmd.Context(), args[0], span)
					if err != nil {
						return err
					}
					return a.printID(cmd, region.RegionID)
				})
			},
		},
		audioRegion,
		&cobra.Command{
			Use:   "associate <audio-region-id> <text-region-id>",
			Short: "Link an audio region to a text region",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withRegistry(func(reg types.Registry) error {
					return reg.AssociateAudioRegionWithText(cmd.Context(), args[0], args[1])
				})
			},
		},
	)
	return cmd
}

func parseSpan(from, to string) (int64, int64, error) {
	begin, err := strconv.ParseInt(from, 10, 64)
	if err != nil {
		return 0, 0, userError(fmt.Errorf("invalid span start %q", from))
	}
	end, err := strconv.ParseInt(to, 10, 64)
	if err != nil {
		return 0, 0, userError(fmt.Errorf("invalid span end %q", to))
	}
	return begin, end, nil
}

// printItem prints the item and one row per record or region.
func (a *app) printItem(cmd *cobra.Command, d types.ItemDetail) error {
	return a.output(cmd.OutOrStdout(), d, func() {
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "item: %s\ncorpus: %s\ncreated: %s\n",
			d.ItemID, d.CorpusID, d.CreatedAt.Format(time.RFC3339))
		var rows []table.Row
		for _, au := range d.Audio {
			rows = append(rows, table.Row{"audio", au.AudioID,
				fmt.Sprintf("%d Hz, %d ch, %s, %d ms", au.SamplesPerSecond, au.ChannelCount, au.Encoding, au.DurationMillis())})
		}
		for _, tx := range d.Text {
			rows = append(rows, table.Row{"text", tx.TextID, strings.Join(tx.Words, " ")})
		}
		for _, r := range d.TextRegions {
			rows = append(rows, table.Row{"text region", r.RegionID, fmt.Sprintf("words [%d, %d)", r.StartIndex, r.EndIndex)})
		}
		for _, r := range d.AudioRegions {
			detail := fmt.Sprintf("ms [%d, %d)", r.BeginTime, r.EndTime)
			if r.TextRegionID != nil {
				detail += " -> " + *r.TextRegionID
			}
			rows = append(rows, table.Row{"audio region", r.RegionID, detail})
		}
		printTable(w, table.Row{"Kind", "ID", "Detail"}, rows)
	})
}

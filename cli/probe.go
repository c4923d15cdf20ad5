package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/njyeung/avsync/config"
	"github.com/njyeung/avsync/player"
)

func newProbeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "List the tracks of a file and which ones would play",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return probe(cmd.OutOrStdout(), openerFor(cfg.Demuxer), args[0])
		},
	}
}

// probe prints one line per track, marking the selected ones
func probe(out io.Writer, open player.OpenFunc, path string) error {
	d, err := open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer d.Close()

	tracks := d.Tracks()
	video, audio, selErr := player.SelectTracks(tracks)

	selected := color.New(color.FgGreen, color.Bold)
	skipped := color.New(color.Faint)

	fmt.Fprintf(out, "%s: %d tracks\n", path, len(tracks))
	for _, t := range tracks {
		line := fmt.Sprintf("  #%d %-5s %-7s %s", t.Index, t.Kind, t.Codec, describe(t))
		switch {
		case video != nil && t.Index == video.Index, audio != nil && t.Index == audio.Index:
			fmt.Fprintln(out, selected.Sprint(line+"  [play]"))
		default:
			fmt.Fprintln(out, skipped.Sprint(line))
		}
	}

	if selErr != nil {
		fmt.Fprintln(out, color.RedString("no playable track"))
		return selErr
	}
	primary := player.ChoosePrimary(video != nil, audio != nil)
	fmt.Fprintf(out, "sync clock: %s\n", color.CyanString(primary.String()))
	return nil
}

func describe(t player.TrackDescriptor) string {
	if t.Kind == player.Video {
		return fmt.Sprintf("%dx%d", t.Width, t.Height)
	}
	return fmt.Sprintf("%dHz %dch", t.SampleRate, t.Channels)
}

package main

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/njyeung/avsync/ffmpeg"
	"github.com/njyeung/avsync/player"
)

func main() {
	var (
		rounds int
		minRun time.Duration
		maxRun time.Duration
		debug  bool
	)

	cmd := &cobra.Command{
		Use:   "soak [dir]",
		Short: "Start and stop looping playback repeatedly without sinks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			videoPath, err := firstMP4(dir)
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			log.Info("soaking", "path", videoPath, "rounds", rounds)

			p := player.New(player.Options{
				Open:       ffmpeg.Open,
				NewDecoder: ffmpeg.NewDecoderFactory(ffmpeg.Options{}),
				Logger:     log,
			})
			return soak(p, videoPath, rounds, minRun, maxRun, log)
		},
	}
	cmd.Flags().IntVarP(&rounds, "rounds", "n", 100, "start/stop cycles")
	cmd.Flags().DurationVar(&minRun, "min", 10*time.Millisecond, "shortest run per cycle")
	cmd.Flags().DurationVar(&maxRun, "max", 500*time.Millisecond, "longest run per cycle")
	cmd.Flags().BoolVar(&debug, "debug", false, "log per-packet traces")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func soak(p *player.Player, path string, rounds int, minRun, maxRun time.Duration, log *slog.Logger) error {
	if maxRun < minRun {
		maxRun = minRun
	}
	var slowest time.Duration
	for i := 1; i <= rounds; i++ {
		if err := p.Start(path, true); err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}

		run := minRun
		if span := maxRun - minRun; span > 0 {
			run += rand.N(span)
		}
		time.Sleep(run)

		begin := time.Now()
		p.Stop()
		took := time.Since(begin)
		if took > slowest {
			slowest = took
		}

		if !p.IsStopped() {
			return fmt.Errorf("round %d: player still running after stop", i)
		}
		if err := p.Err(); err != nil {
			return fmt.Errorf("round %d: %w", i, err)
		}
		log.Debug("round done", "round", i, "ran", run, "stop", took)
	}
	log.Info("soak finished", "rounds", rounds, "slowest_stop", slowest)
	return nil
}

// firstMP4 returns the first .mp4 file in dir
func firstMP4(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".mp4" {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no .mp4 files in %s", dir)
}

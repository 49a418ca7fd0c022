package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_vidqa/internal/engine"
	"github.com/anatolykoptev/go_vidqa/internal/pipeline"
	"github.com/anatolykoptev/go_vidqa/internal/progress"
	"github.com/anatolykoptev/go_vidqa/internal/qa"
	"github.com/anatolykoptev/go_vidqa/internal/videoid"
)

func newRootCmd(open openFunc) *cobra.Command {
	var (
		offline bool
		backend string
	)
	root := &cobra.Command{
		Use:          "vidqa",
		Short:        "Fetch video transcripts and ask questions about them",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&offline, "offline", false, "Serve from the transcript cache only (overrides OFFLINE)")
	root.PersistentFlags().StringVar(&backend, "cache-backend", "", "Transcript store: file, sqlite, postgres, s3, dynamodb (overrides CACHE_BACKEND)")

	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
		c := engine.LoadConfig()
		if cmd.Flags().Changed("offline") {
			c.Offline = offline
		}
		if backend != "" {
			c.CacheBackend = strings.ToLower(backend)
		}
		a, err := open(cmd.Context(), c)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}

	root.AddCommand(newTranscribeCmd(withApp), newAskCmd(withApp), newResetCmd(withApp))
	return root
}

type appRunner func(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error

func newTranscribeCmd(withApp appRunner) *cobra.Command {
	var (
		output string
		quiet  bool
	)
	cmd := &cobra.Command{
		Use:   "transcribe [URL]",
		Short: "Print the transcript of a video (cached or downloaded and transcribed)",
		Example: `  vidqa transcribe "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
  vidqa transcribe https://youtu.be/dQw4w9WgXcQ -o transcript.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var observe func(progress.Event)
				if !quiet {
					observe = progressPrinter(cmd.ErrOrStderr())
				}
				done, err := pipeline.Collect(a.runner.Run(ctx, args[0]), observe)
				if err != nil {
					return err
				}
				if output != "" {
					return os.WriteFile(output, []byte(done.Transcript), 0o644)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), done.Transcript)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path (default: stdout)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

func newAskCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [URL] [QUESTION...]",
		Short: "Answer a question from a video's transcript, transcribing it first if needed",
		Example: `  vidqa ask https://youtu.be/dQw4w9WgXcQ "What is the song about?"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.asker == nil {
					return qa.ErrNotConfigured
				}
				done, err := pipeline.Collect(a.runner.Run(ctx, args[0]), progressPrinter(cmd.ErrOrStderr()))
				if err != nil {
					return err
				}
				answer, err := a.asker.Ask(ctx, done.Transcript, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), answer)
				return err
			})
		},
	}
}

func newResetCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [URL]",
		Short: "Remove a cached transcript so the next run transcribes again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := videoid.Extract(videoid.Normalize(strings.TrimSpace(args[0])))
			if !ok {
				return pipeline.ErrInvalidIdentifier
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.store.Delete(ctx, id); err != nil {
					return fmt.Errorf("reset %s: %w", id, err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
				return err
			})
		},
	}
}

// progressPrinter writes one line per progress change. Failures are left
// to cobra's error output.
func progressPrinter(w io.Writer) func(progress.Event) {
	return func(ev progress.Event) {
		switch ev := ev.(type) {
		case progress.DownloadProgress:
			fmt.Fprintf(w, "download %3d%%\n", ev.Percent)
		case progress.TranscriptionProgress:
			fmt.Fprintf(w, "transcribe %3d%%\n", ev.Percent)
		case progress.Done:
			if ev.Cached {
				fmt.Fprintf(w, "served %s from cache\n", ev.VideoID)
			}
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"songgrab/internal/app"
	"songgrab/internal/assets"
	"songgrab/internal/core"
	"songgrab/internal/flood"
	httpserver "songgrab/internal/http"
	"songgrab/internal/search"
	"songgrab/internal/store"
)

const statsInterval = time.Minute

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newService(ctx context.Context, opts ...app.Option) (*app.Service, error) {
	if viper.GetBool("reveal") {
		opts = append(opts, app.WithRevealer(assets.ShellRevealer{}))
	}
	svc, err := app.New(ctx, config, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return svc, nil
}

func closeService(svc *app.Service) {
	if err := svc.Close(); err != nil {
		logger.Debug("Failed to close service", zap.Error(err))
	}
}

// userError logs err and returns its localized description.
func userError(svc *app.Service, err error) error {
	logger.Debug("Command failed", zap.Error(err))
	return errors.New(svc.Describe(err))
}

func parsePlatformFlag(value string) (core.Platform, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	return core.ParsePlatform(value)
}

func newParseCmd() *cobra.Command {
	var (
		platform string
		quality  string
		download bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "parse <link or ids>...",
		Short: "Resolve a song link or a comma separated list of song ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parsePlatformFlag(platform)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			svc, err := newService(ctx)
			if err != nil {
				return err
			}
			defer closeService(svc)

			res, err := svc.Parse(ctx, strings.Join(args, " "), selected, quality)
			if err != nil {
				return userError(svc, err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s (%s)\n", res.Platform, res.IDs, res.Quality)
			for _, song := range res.Songs {
				printSong(out, song)
				if !download || !song.Success {
					continue
				}
				rec, err := svc.Assets(song)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "    %s\n", rec.EnsureAll(ctx).Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", "", "Platform of bare ids (netease, qq, kuwo); links select their own")
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "Override the configured quality")
	cmd.Flags().BoolVarP(&download, "download", "d", false, "Download every missing asset of the resolved songs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		platform string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "search <keyword>...",
		Short: "Search a platform catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected, err := parsePlatformFlag(platform)
			if err != nil {
				return err
			}
			if selected == "" {
				selected = core.PlatformNetease
			}

			ctx, cancel := signalContext()
			defer cancel()

			svc, err := newService(ctx)
			if err != nil {
				return err
			}
			defer closeService(svc)

			outcome, err := svc.Search(ctx, selected, strings.Join(args, " "))
			if err != nil {
				return userError(svc, err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), outcome)
			}
			printOutcome(cmd.OutOrStdout(), svc, outcome)
			return nil
		},
	}
	cmd.Flags().StringVarP(&platform, "platform", "p", string(core.PlatformNetease), "Platform to search (netease, qq, kuwo)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newAssetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Inspect, download or remove the local files of a song from the history",
	}

	status := &cobra.Command{
		Use:   "status <platform:id>",
		Short: "Show which assets of a song are on disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(args[0], func(_ context.Context, rec *assets.Reconciler) error {
				printStatus(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}

	var kind string
	ensure := &cobra.Command{
		Use:   "ensure <platform:id>",
		Short: "Download a missing asset, or all of them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				single core.AssetKind
				all    = kind == "" || kind == "all"
			)
			if !all {
				k, err := core.ParseAssetKind(kind)
				if err != nil {
					return err
				}
				single = k
			}
			return withReconciler(args[0], func(ctx context.Context, rec *assets.Reconciler) error {
				var result assets.Result
				if all {
					result = rec.EnsureAll(ctx)
				} else {
					result = rec.Ensure(ctx, single)
				}
				return report(cmd.OutOrStdout(), result)
			})
		},
	}
	ensure.Flags().StringVarP(&kind, "kind", "k", "all", "Asset to download (music, lyrics, cover, all)")

	remove := &cobra.Command{
		Use:   "delete <platform:id>",
		Short: "Remove every downloaded asset of a song",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReconciler(args[0], func(ctx context.Context, rec *assets.Reconciler) error {
				return report(cmd.OutOrStdout(), rec.DeleteAll(ctx))
			})
		},
	}

	cmd.AddCommand(status, ensure, remove)
	return cmd
}

func withReconciler(key string, fn func(context.Context, *assets.Reconciler) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	svc, err := newService(ctx)
	if err != nil {
		return err
	}
	defer closeService(svc)

	song, ok := svc.Song(strings.TrimSpace(key))
	if !ok {
		return fmt.Errorf("song %q is not in the history, resolve it with parse first", key)
	}
	rec, err := svc.Assets(song)
	if err != nil {
		return err
	}
	return fn(ctx, rec)
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or clear the resolved songs",
	}

	var (
		asJSON bool
		filter string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List the history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := newService(ctx)
			if err != nil {
				return err
			}
			defer closeService(svc)

			entries := svc.History()
			if filter != "" {
				entries = svc.FindHistory(filter)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			printHistory(cmd.OutOrStdout(), svc, entries)
			return nil
		},
	}
	list.Flags().BoolVar(&asJSON, "json", false, "Print the history as JSON")
	list.Flags().StringVarP(&filter, "filter", "f", "", "Only list songs whose name or artist match")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget every resolved song",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			svc, err := newService(ctx)
			if err != nil {
				return err
			}
			defer closeService(svc)

			if err := svc.ClearHistory(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), svc.Localizer().T("history.cleared"))
			return nil
		},
	}

	cmd.AddCommand(list, clearCmd)
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API with health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	logger.Info("Starting songgrab",
		zap.String("base_url", config.TuneHub.BaseURL),
		zap.String("download_dir", config.Download.Dir),
		zap.String("language", config.App.Language),
		zap.Bool("api_key_set", config.TuneHub.APIKey != ""),
		zap.Int("flood_limit_per_minute", config.App.FloodLimitPerMinute))

	if err := config.ValidateSearch(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := httpserver.NewMetrics(registry)

	svc, err := newService(ctx, app.WithRecorder(metrics))
	if err != nil {
		return err
	}
	defer closeService(svc)

	gate := flood.New(config.App.FloodLimitPerMinute)
	defer gate.Stop()

	server := httpserver.NewServer(&config.Server, httpserver.Deps{
		Backend:   svc,
		Floodgate: gate,
		Registry:  registry,
		Metrics:   metrics,
	}, logger.Named("http"))

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gCtx)
	})
	g.Go(func() error {
		reportStats(gCtx, svc, gate)
		return nil
	})

	logger.Info("songgrab started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("songgrab stopped with error", zap.Error(err))
		return err
	}
	logger.Info("songgrab stopped gracefully")
	return nil
}

func reportStats(ctx context.Context, svc *app.Service, gate *flood.Floodgate) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := gate.GetStats()
			logger.Debug("Service stats",
				zap.Int("history_entries", len(svc.History())),
				zap.Int("active_clients", stats.ActiveClients))
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printSong(w io.Writer, song core.Song) {
	if !song.Success {
		fmt.Fprintf(w, "✗ %s  %s\n", song.Key(), song.FailureMessage)
		return
	}
	quality := song.ActualQuality
	if song.WasDowngraded {
		quality += ", downgraded"
	}
	fmt.Fprintf(w, "✓ %s  %s  [%s, %s]\n", song.Key(), song.Display(), quality, humanSize(song.FileSizeBytes))
}

func printOutcome(w io.Writer, svc *app.Service, outcome *search.Outcome) {
	if outcome.NoResults() {
		fmt.Fprintln(w, svc.Localizer().T("search.no_results"))
		return
	}
	for i, item := range outcome.Items {
		line := fmt.Sprintf("%2d. %s:%s  %s - %s", i+1, outcome.Platform, item.ID, item.Artist, item.Name)
		if item.Album != "" {
			line += "  (" + item.Album + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func printStatus(w io.Writer, rec *assets.Reconciler) {
	paths := rec.Paths()
	status := rec.Status()
	fmt.Fprintln(w, rec.Song().Display())
	for _, kind := range core.AssetKinds() {
		path, ok := paths[kind]
		if !ok {
			continue
		}
		mark := "✗"
		if status[kind] {
			mark = "✓"
		}
		fmt.Fprintf(w, "  %s %-6s %s\n", mark, kind, path)
	}
}

func printHistory(w io.Writer, svc *app.Service, entries []store.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, svc.Localizer().T("history.empty"))
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %-20s %s - %s  [%s]\n",
			e.Time.Local().Format("2006-01-02 15:04"), e.Key, e.Artist, e.Name, e.Quality)
	}
}

// report prints the message of a successful result; a failed one becomes the command error.
func report(w io.Writer, result assets.Result) error {
	if result.Err != nil {
		logger.Debug("Asset operation failed", zap.Error(result.Err))
		return errors.New(result.Message)
	}
	fmt.Fprintln(w, result.Message)
	return nil
}

func humanSize(n int64) string {
	const unit = 1024
	if n <= 0 {
		return "?"
	}
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

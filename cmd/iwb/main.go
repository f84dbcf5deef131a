package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/config"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/dataset"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/detect"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/favicon"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/fetcher"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/profile"
)

var (
	cfgFile      string
	verbose      bool
	repoPath     string
	lookbackDays int
	runTimeout   time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "iwb",
		Short: "Maintainer tools for the indie wiki redirect dataset",
		Long: `iwb maintains the language-partitioned redirect dataset of the indie
wiki browser extension: it profiles wikis of unknown software, builds
redirect entries, keeps the sites files consistent, and fetches favicons.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "r", "", "path to the extension repository checkout")
	rootCmd.PersistentFlags().IntVar(&lookbackDays, "lookback", 0, "activity lookback window in days (0 = config default)")
	rootCmd.PersistentFlags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "overall deadline per profiled wiki")

	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(refreshCmd())
	rootCmd.AddCommand(compareCmd())
	rootCmd.AddCommand(languageCmd())
	rootCmd.AddCommand(shellCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired-up components every command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *fetcher.Client
	profiler *profile.Profiler
	store    *dataset.Store
	icons    *favicon.Fetcher
}

func newApp() (*app, error) {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := fetcher.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		profiler: profile.New(client, detect.New(logger), cfg, logger),
		store:    dataset.New(cfg, logger),
		icons:    favicon.NewFetcher(client, cfg, logger),
	}, nil
}

func (a *app) Close() {
	a.client.Close()
}

// wikiContext scopes one profiled wiki: the continuation loops inside the
// profilers have no bound of their own, the deadline is it.
func (a *app) wikiContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), runTimeout)
}

// setupLogger creates the root logger. These are terminal tools, so the
// handler is tint's human-oriented colored output.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
	return slog.New(handler)
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if repoPath != "" {
		cfg.Dataset.RepoPath = repoPath
	}
	if lookbackDays > 0 {
		cfg.Activity.LookbackDays = lookbackDays
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
}

// languageCmd creates the "language" subcommand.
func languageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "language <code>",
		Short: "Bootstrap a new language in the dataset",
		Long:  "Create an empty sites file and favicon folder for a new language code.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			lang := strings.ToLower(args[0])
			if err := a.store.AddLanguage(lang); err != nil {
				return err
			}
			fmt.Printf("Created %s and %s.\n", a.store.SitesFilePath(lang), a.store.FaviconDirPath(lang))
			return nil
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			applyCLIOverrides(cfg)
			printConfig(cfg)
			return nil
		},
	}
}

func printConfig(cfg *config.Config) {
	fmt.Printf("HTTP:\n")
	fmt.Printf("  User Agent:       %s\n", cfg.HTTP.UserAgent)
	fmt.Printf("  Request Timeout:  %s\n", cfg.HTTP.RequestTimeout)
	fmt.Printf("  Max Body Size:    %d bytes\n", cfg.HTTP.MaxBodySize)
	fmt.Printf("  Max Redirects:    %d\n", cfg.HTTP.MaxRedirects)
	fmt.Printf("  Rate Limit Wait:  %s\n", cfg.HTTP.RateLimitWait)
	fmt.Printf("\nActivity:\n")
	fmt.Printf("  Lookback Days:    %d\n", cfg.Activity.LookbackDays)
	fmt.Printf("\nDataset:\n")
	fmt.Printf("  Repo Path:        %s\n", cfg.Dataset.RepoPath)
	fmt.Printf("  Data Dir:         %s\n", cfg.Dataset.DataDir)
	fmt.Printf("  Favicon Dir:      %s\n", cfg.Dataset.FaviconDir)
	fmt.Printf("  Icon Size:        %dpx\n", cfg.Dataset.IconSize)
	fmt.Printf("\nLogging:\n")
	fmt.Printf("  Level:            %s\n", cfg.Logging.Level)
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("iwb %s\n", config.Version)
		},
	}
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

var basicProfile bool

// profileCmd creates the "profile" subcommand.
func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <url>",
		Short: "Profile a wiki and print its standardized metadata",
		Long: `Fetch a wiki page, detect which software runs it, and print the
standardized metadata record as JSON. The full profile includes page counts
and edit-activity metrics; --basic skips those.`,
		Args: cobra.ExactArgs(1),
		RunE: runProfile,
	}
	cmd.Flags().BoolVarP(&basicProfile, "basic", "b", false, "skip page counts and activity metrics")
	return cmd
}

func runProfile(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := a.wikiContext()
	defer cancel()

	meta, err := a.profiler.ProfileWiki(ctx, args[0], !basicProfile)
	if errors.Is(err, types.ErrUnknownPlatform) {
		fmt.Fprintln(os.Stderr, "Wiki software not recognized; enter the metadata manually.")
		return err
	}
	if err != nil {
		return err
	}
	return printMetadata(meta)
}

func printMetadata(meta *types.WikiMetadata) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(meta)
}

// compareCmd creates the "compare" subcommand.
func compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <url>...",
		Short: "Profile several wikis and print a comparison table",
		Long:  "Run a full profile on each wiki and print the metrics side by side as a Markdown table.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return compareWikis(a, args)
		},
	}
}

func compareWikis(a *app, urls []string) error {
	var metas []*types.WikiMetadata
	for _, rawURL := range urls {
		ctx, cancel := a.wikiContext()
		meta, err := a.profiler.ProfileWiki(ctx, rawURL, true)
		cancel()
		if err != nil {
			a.logger.Warn("profiling failed, wiki left out of the comparison", "url", rawURL, "error", err)
			continue
		}
		metas = append(metas, meta)
	}
	if len(metas) == 0 {
		return fmt.Errorf("no wiki could be profiled")
	}
	fmt.Print(compareTable(metas))
	return nil
}

// compareTable renders the profiled wikis as a Markdown metric table, one
// column per wiki.
func compareTable(metas []*types.WikiMetadata) string {
	var b strings.Builder

	row := func(label string, value func(m *types.WikiMetadata) string) {
		b.WriteString("| " + label + " |")
		for _, m := range metas {
			b.WriteString(" " + value(m) + " |")
		}
		b.WriteString("\n")
	}

	row("Metric", func(m *types.WikiMetadata) string { return m.Name })
	b.WriteString("|---|")
	for range metas {
		b.WriteString("---|")
	}
	b.WriteString("\n")

	row("Base URL", func(m *types.WikiMetadata) string { return m.BaseURL })
	row("Platform", func(m *types.WikiMetadata) string { return string(m.Platform) })
	row("Language", func(m *types.WikiMetadata) string { return m.FullLanguage })
	row("Wikifarm", func(m *types.WikiMetadata) string { return fmtOptional(m.Wikifarm) })
	row("Content pages", func(m *types.WikiMetadata) string {
		if m.Activity == nil {
			return "n/a"
		}
		return fmtCount(m.ContentPages)
	})
	row("Active users", func(m *types.WikiMetadata) string {
		if m.Activity == nil {
			return "n/a"
		}
		return fmtCount(m.ActiveUsers)
	})
	row("Recent edits", func(m *types.WikiMetadata) string {
		if m.Activity == nil {
			return "n/a"
		}
		return fmtCount(m.RecentEditCount)
	})
	row("Latest edit", func(m *types.WikiMetadata) string {
		if m.Activity == nil || m.LatestEditTimestamp == nil {
			return "n/a"
		}
		return m.LatestEditTimestamp.Format(time.DateOnly)
	})

	return b.String()
}

func fmtCount(v *int) string {
	if v == nil {
		return "n/a"
	}
	return strconv.Itoa(*v)
}

func fmtOptional(v *string) string {
	if v == nil {
		return "n/a"
	}
	return *v
}

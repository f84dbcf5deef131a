package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/dataset"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/redirect"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

var (
	refreshNames bool
	refreshIcons bool
)

// refreshCmd creates the "refresh" subcommand.
func refreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh [language...]",
		Short: "Re-profile dataset destinations and update their entries",
		Long: `Re-profile every destination wiki in the given languages (all languages
when none are given) and rewrite each entry's destination fields. Entry IDs,
origins and icon filenames are preserved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			langs := args
			if len(langs) == 0 {
				if langs, err = a.store.Languages(); err != nil {
					return err
				}
			}
			if len(langs) == 0 {
				return fmt.Errorf("no sites files found under %s", a.cfg.Dataset.RepoPath)
			}
			opts := redirect.RefreshOptions{UpdateNames: refreshNames}
			for _, lang := range langs {
				if err := refreshLanguage(a, lang, opts); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refreshNames, "names", false, "also update display names")
	cmd.Flags().BoolVar(&refreshIcons, "icons", false, "also re-download favicons")
	return cmd
}

func refreshLanguage(a *app, lang string, opts redirect.RefreshOptions) error {
	entries, err := a.store.Load(lang)
	if err != nil {
		return err
	}
	refreshed := 0
	for i := range entries {
		if refreshEntry(a, lang, &entries[i], opts) {
			refreshed++
		}
	}
	if err := dataset.Validate(entries); err != nil {
		a.logger.Warn("dataset invariants violated after refresh", "language", lang, "error", err)
	}
	if err := a.store.Save(lang, entries); err != nil {
		return err
	}
	fmt.Printf("Refreshed %d/%d entries in %s.\n", refreshed, len(entries), a.store.SitesFilePath(lang))
	return nil
}

// refreshEntry re-profiles one destination. A failure leaves the entry as
// it was; a stale entry beats a gutted one.
func refreshEntry(a *app, lang string, entry *types.RedirectEntry, opts redirect.RefreshOptions) bool {
	ctx, cancel := a.wikiContext()
	defer cancel()

	meta, err := a.profiler.ProfileWiki(ctx, redirect.RefreshURL(entry), false)
	if err != nil {
		a.logger.Warn("refresh failed, entry left unchanged", "entry", entry.ID, "error", err)
		return false
	}
	redirect.ApplyRefresh(entry, meta, opts)

	if refreshIcons && entry.DestinationIcon != nil && meta.IconPath != nil {
		// The filename is the entry's identity in the favicon folder; only
		// the image content is replaced.
		if _, err := a.icons.Fetch(ctx, *meta.IconPath, *entry.DestinationIcon, lang); err != nil {
			a.logger.Warn("icon refresh failed", "entry", entry.ID, "error", err)
		}
	}
	return true
}

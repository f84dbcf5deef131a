package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/dataset"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/prompt"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/redirect"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

var (
	addOriginURL string
	addDestURL   string
	addEntryID   string
)

// addCmd creates the "add" subcommand.
func addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a redirect entry to the dataset",
		Long: `Profile an origin wiki and its independent destination, build a redirect
entry, merge it into the language's sites file and download the
destination's favicon. Inputs not given as flags are asked interactively.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			p := prompt.New(os.Stdin, os.Stdout)
			return addRedirect(a, p, addDestURL, addOriginURL, addEntryID)
		},
	}
	cmd.Flags().StringVar(&addDestURL, "destination", "", "URL of the destination wiki")
	cmd.Flags().StringVar(&addOriginURL, "origin", "", "URL of the origin wiki")
	cmd.Flags().StringVar(&addEntryID, "id", "", "entry ID (default derived from language and origin host)")
	return cmd
}

// addRedirect runs the whole add flow: profile both wikis, build the entry,
// merge it into the dataset and fetch the icon for a new destination.
func addRedirect(a *app, p *prompt.Prompter, destURL, originURL, entryID string) error {
	var err error
	if destURL == "" {
		if destURL, err = p.Input("URL of the destination wiki"); err != nil {
			return err
		}
	}

	ctx, cancel := a.wikiContext()
	defer cancel()

	destMeta, err := a.profiler.ProfileWiki(ctx, destURL, false)
	if err != nil {
		return fmt.Errorf("profile destination: %w", err)
	}
	fmt.Printf("Destination: %s (%s, %s)\n", destMeta.Name, destMeta.BaseURL, destMeta.Platform)

	if originURL == "" {
		topic := redirect.ExtractTopicFromURL(destMeta.BaseURL)
		if originURL, err = p.InputDefault("URL of the origin wiki", topic+".fandom.com"); err != nil {
			return err
		}
	}
	originMeta, err := a.profiler.ProfileWiki(ctx, originURL, false)
	if err != nil {
		return fmt.Errorf("profile origin: %w", err)
	}
	fmt.Printf("Origin:      %s (%s, %s)\n", originMeta.Name, originMeta.BaseURL, originMeta.Platform)

	if err := redirect.ValidateLanguages(originMeta, destMeta, a.logger); err != nil {
		return err
	}

	if entryID == "" {
		defaultID := redirect.EntryID(destMeta.Language, originMeta.BaseURL)
		if entryID, err = p.InputDefault("Entry ID", defaultID); err != nil {
			return err
		}
	}
	entry := redirect.BuildEntry(originMeta, destMeta, entryID)

	lang := destMeta.Language
	entries, err := a.store.Load(lang)
	if err != nil {
		return err
	}
	updated, res, err := dataset.Insert(entries, entry)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case dataset.RejectedAlreadyRedirected:
		fmt.Printf("Origin %s is already redirected to %s (entry %s); nothing to do.\n",
			originMeta.BaseURL, res.Entry.DestinationBaseURL, res.Entry.ID)
		return nil
	case dataset.MergedOrigin:
		fmt.Printf("Destination %s already has entry %s; appended the new origin.\n",
			destMeta.BaseURL, res.Entry.ID)
	case dataset.Inserted:
		a.downloadIcon(ctx, res.Entry, destMeta)
		fmt.Printf("Added entry %s.\n", res.Entry.ID)
	}

	if err := dataset.Validate(updated); err != nil {
		return fmt.Errorf("dataset invariants violated: %w", err)
	}
	if err := a.store.Save(lang, updated); err != nil {
		return err
	}
	fmt.Printf("Saved %s.\n", a.store.SitesFilePath(lang))
	return nil
}

// downloadIcon fetches the destination's favicon for a freshly inserted
// entry. Icon failures are warnings; the entry just keeps a null icon.
func (a *app) downloadIcon(ctx context.Context, entry *types.RedirectEntry, meta *types.WikiMetadata) {
	if meta.IconPath == nil {
		a.logger.Warn("destination exposes no favicon", "wiki", meta.Name)
		return
	}
	filename, err := redirect.IconFilename(meta.Name)
	if err != nil {
		a.logger.Warn("no usable icon filename", "wiki", meta.Name, "error", err)
		return
	}
	saved, err := a.icons.Fetch(ctx, *meta.IconPath, filename, meta.Language)
	if err != nil {
		a.logger.Warn("icon download failed", "wiki", meta.Name, "url", *meta.IconPath, "error", err)
		return
	}
	entry.DestinationIcon = &saved
}

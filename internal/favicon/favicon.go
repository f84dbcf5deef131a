// Package favicon downloads wiki icons and converts them to the 16x16 PNG
// files the dataset ships.
package favicon

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/PuerkitoBio/goquery"
	"github.com/mat/besticon/v3/ico"
	xdraw "golang.org/x/image/draw"

	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/config"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/fetcher"
	"github.com/SnorlaxMonster/indie-wiki-buddy-scripts/internal/types"
)

// DiscoverIconURL finds the icon URL declared in a page's head. A
// rel="shortcut icon" link wins over rel="icon", matching what most wikis
// actually serve as their favicon. The returned URL is absolute.
func DiscoverIconURL(doc *goquery.Document, pageURL string) (string, bool) {
	sel := doc.Find(`link[rel="shortcut icon"]`).First()
	if sel.Length() == 0 {
		sel = doc.Find(`link[rel="icon"]`).First()
	}
	href, ok := sel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	return fetcher.EnsureAbsoluteURL(strings.TrimSpace(href), pageURL), true
}

// Fetcher downloads icon files and writes the converted PNGs into the
// dataset's favicon tree.
type Fetcher struct {
	client *fetcher.Client
	cfg    *config.Config
	logger *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(client *fetcher.Client, cfg *config.Config, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "favicon"),
	}
}

// Fetch downloads the icon at iconURL, converts it to a square PNG at the
// configured icon size and saves it as favicons/{lang}/{filename} under the
// dataset repository. It returns the saved filename.
func (f *Fetcher) Fetch(ctx context.Context, iconURL, filename, lang string) (string, error) {
	stem := strings.TrimSuffix(filename, ".png")
	if strings.TrimSpace(stem) == "" {
		return "", types.ErrEmptyIconStem
	}

	resp, err := f.client.Get(ctx, iconURL)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", &types.FetchError{URL: iconURL, StatusCode: resp.StatusCode}
	}

	img, err := decodeImage(resp.Body)
	if err != nil {
		return "", fmt.Errorf("decode icon %s: %w", iconURL, err)
	}

	size := f.cfg.Dataset.IconSize
	scaled := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	dir := filepath.Join(f.cfg.Dataset.RepoPath, f.cfg.Dataset.FaviconDir, lang)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create favicon directory: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", fmt.Errorf("encode icon png: %w", err)
	}
	outPath := filepath.Join(dir, stem+".png")
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write icon file: %w", err)
	}

	f.logger.Info("saved icon", "url", iconURL, "path", outPath)
	return stem + ".png", nil
}

// decodeImage decodes PNG, GIF and JPEG through the standard registry and
// falls back to an ICO decoder, since many wikis still serve favicon.ico.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, nil
	}
	icoImg, icoErr := ico.Decode(bytes.NewReader(data))
	if icoErr == nil {
		return icoImg, nil
	}
	return nil, err
}

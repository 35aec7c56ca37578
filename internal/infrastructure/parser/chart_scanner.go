package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TrackPublisher/internal/catalog"
	"TrackPublisher/internal/domain"
)

// videoIDPattern is the shape of a catalog id. Anything else is dropped at extraction, since ids
// end up in workspace paths and downloader URLs.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Enricher fills in durations and view counts for scraped ids.
type Enricher interface {
	Lookup(ctx context.Context, ids []string) ([]domain.CatalogItem, error)
}

// ChartScanner scrapes a public HTML chart page for video links. It only supports ranked
// listings; search goes to the API source.
type ChartScanner struct {
	client   *http.Client
	enricher Enricher
	logger   *slog.Logger
}

var _ catalog.Source = (*ChartScanner)(nil)

// NewChartScanner wires an HTTP client and an optional enricher.
func NewChartScanner(client *http.Client, enricher Enricher, logger *slog.Logger) *ChartScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChartScanner{client: client, enricher: enricher, logger: logger}
}

// Name identifies the strategy inside the registry.
func (c *ChartScanner) Name() string {
	return "chart"
}

// Ranked returns chart entries in page order, hydrated through the enricher when present.
func (c *ChartScanner) Ranked(ctx context.Context, q catalog.Query) ([]domain.CatalogItem, error) {
	if q.ChartURL == "" {
		return nil, fmt.Errorf("chart url not configured")
	}

	doc, err := c.fetchDocument(ctx, q.ChartURL)
	if err != nil {
		return nil, err
	}

	entries := extractEntries(doc)
	if q.Limit > 0 && len(entries) > q.Limit {
		entries = entries[:q.Limit]
	}
	c.logger.Debug("chart scraped", "url", q.ChartURL, "entries", len(entries))

	if c.enricher == nil || len(entries) == 0 {
		return entries, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	hydrated, err := c.enricher.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate chart entries: %w", err)
	}
	return hydrated, nil
}

// Search is not offered by chart pages.
func (c *ChartScanner) Search(ctx context.Context, q catalog.Query) ([]domain.CatalogItem, error) {
	return nil, catalog.ErrUnsupported
}

func (c *ChartScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "TrackPublisher/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chart returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractEntries(doc *goquery.Document) []domain.CatalogItem {
	var (
		entries []domain.CatalogItem
		seen    = map[string]bool{}
	)

	doc.Find(`a[href*="watch?v="], a[href*="youtu.be/"], [data-video-id]`).Each(func(i int, s *goquery.Selection) {
		id := videoID(s)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true

		row := s.Closest("li, tr, article")
		if row.Length() == 0 {
			row = s.Parent()
		}

		title := strings.TrimSpace(row.Find(".title").First().Text())
		if title == "" {
			title, _ = s.Attr("title")
		}
		if title == "" {
			title = strings.TrimSpace(s.Text())
		}
		author := strings.TrimSpace(row.Find(".artist, .channel").First().Text())

		entries = append(entries, domain.CatalogItem{ID: id, Title: title, Author: author})
	})

	return entries
}

func videoID(s *goquery.Selection) string {
	id := rawVideoID(s)
	if !videoIDPattern.MatchString(id) {
		return ""
	}
	return id
}

func rawVideoID(s *goquery.Selection) string {
	if id, ok := s.Attr("data-video-id"); ok {
		return strings.TrimSpace(id)
	}
	href, ok := s.Attr("href")
	if !ok {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if v := parsed.Query().Get("v"); v != "" {
		return v
	}
	if strings.HasSuffix(parsed.Host, "youtu.be") {
		return strings.Trim(parsed.Path, "/")
	}
	return ""
}

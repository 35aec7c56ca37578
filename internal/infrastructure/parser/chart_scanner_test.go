package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"TrackPublisher/internal/catalog"
	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/logging"
)

const chartPage = `
<ol>
  <li><span class="title">First Song</span><span class="artist">Alpha</span>
      <a href="https://www.youtube.com/watch?v=aaaaaa11111">watch</a></li>
  <li><span class="title">Second Song</span><span class="artist">Beta</span>
      <a href="https://youtu.be/bbbbbb22222">watch</a>
      <a href="https://www.youtube.com/watch?v=bbbbbb22222&t=10">again</a></li>
  <li><div data-video-id="cccccc33333" title="Third Song"></div></li>
  <li><a href="https://example.com/not-a-video">nope</a></li>
  <li><a href="https://www.youtube.com/watch?v=../../etc">bad id</a></li>
  <li><div data-video-id="short" title="Too short"></div></li>
</ol>`

type fakeEnricher struct {
	ids []string
}

func (f *fakeEnricher) Lookup(ctx context.Context, ids []string) ([]domain.CatalogItem, error) {
	f.ids = ids
	out := make([]domain.CatalogItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.CatalogItem{ID: id, Duration: 3 * time.Minute})
	}
	return out, nil
}

func TestExtractEntries(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(chartPage))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	entries := extractEntries(doc)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].ID != "aaaaaa11111" || entries[0].Title != "First Song" || entries[0].Author != "Alpha" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].ID != "bbbbbb22222" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if entries[2].ID != "cccccc33333" || entries[2].Title != "Third Song" {
		t.Fatalf("unexpected third entry: %+v", entries[2])
	}
}

func TestChartScannerRankedHydrates(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(chartPage))
	}))
	defer server.Close()

	enricher := &fakeEnricher{}
	sc := NewChartScanner(server.Client(), enricher, logging.Discard())

	items, err := sc.Ranked(context.Background(), catalog.Query{ChartURL: server.URL + "/chart", Limit: 2})
	if err != nil {
		t.Fatalf("Ranked error: %v", err)
	}
	if strings.Join(enricher.ids, ",") != "aaaaaa11111,bbbbbb22222" {
		t.Fatalf("expected limit applied before hydration, got %v", enricher.ids)
	}
	if len(items) != 2 || items[0].Duration != 3*time.Minute {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestChartScannerErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sc := NewChartScanner(server.Client(), nil, logging.Discard())
	if _, err := sc.Ranked(context.Background(), catalog.Query{ChartURL: server.URL}); err == nil {
		t.Fatal("expected error for 502")
	}
	if _, err := sc.Ranked(context.Background(), catalog.Query{}); err == nil {
		t.Fatal("expected error without chart url")
	}
	if _, err := sc.Search(context.Background(), catalog.Query{Keywords: "x"}); !errors.Is(err, catalog.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestExtractEntriesRejectsMalformedIDs(t *testing.T) {
	t.Parallel()

	page := `<ul>
  <li><a href="https://www.youtube.com/watch?v=../../../tmp/x">a</a></li>
  <li><a href="https://youtu.be/abc%2F..%2Fdefgh">b</a></li>
  <li><div data-video-id="abcdefghijkl"></div></li>
  <li><div data-video-id="good_id-123"></div></li>
</ul>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	entries := extractEntries(doc)
	if len(entries) != 1 || entries[0].ID != "good_id-123" {
		t.Fatalf("expected only the well-formed id, got %+v", entries)
	}
}

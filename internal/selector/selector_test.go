package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	"TrackPublisher/internal/catalog"
	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/logging"
)

type fakeState struct {
	cursors  domain.Cursors
	consumed map[string]bool
	err      error
}

func (f *fakeState) Advance(ctx context.Context) (domain.Cursors, error) {
	if f.err != nil {
		return domain.Cursors{}, f.err
	}
	cur := f.cursors
	f.cursors.Bucket++
	f.cursors.UploadType++
	return cur, nil
}

func (f *fakeState) Consumed(ctx context.Context) (map[string]bool, error) {
	return f.consumed, f.err
}

func (f *fakeState) Commit(ctx context.Context, record domain.PublishRecord) error { return nil }

func (f *fakeState) History(ctx context.Context, limit int) ([]domain.PublishRecord, error) {
	return nil, nil
}

type fakeSource struct {
	name      string
	ranked    []domain.CatalogItem
	rankedErr error
	search    []domain.CatalogItem
	searchErr error
	queries   []catalog.Query
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Ranked(ctx context.Context, q catalog.Query) ([]domain.CatalogItem, error) {
	f.queries = append(f.queries, q)
	return f.ranked, f.rankedErr
}

func (f *fakeSource) Search(ctx context.Context, q catalog.Query) ([]domain.CatalogItem, error) {
	f.queries = append(f.queries, q)
	return f.search, f.searchErr
}

func item(id string, secs int) domain.CatalogItem {
	return domain.CatalogItem{ID: id, Title: id + " (Official Video)", Author: id + "VEVO", Duration: time.Duration(secs) * time.Second}
}

func newSelector(t *testing.T, src *fakeSource, st *fakeState, mutate func(*Config)) *Selector {
	t.Helper()
	reg := catalog.NewRegistry()
	reg.Register(src)
	cfg := Config{
		Buckets: []domain.Bucket{
			{Name: "english", Region: "US", Category: "10", Source: "youtube", Queries: []string{"q1"}},
			{Name: "hindi", Region: "IN", Category: "10", Source: "youtube", Queries: []string{"q2"}},
			{Name: "spanish", Region: "ES", Category: "10", Source: "youtube", Queries: []string{"q3"}},
		},
		UploadTypes:   []domain.UploadType{domain.UploadSingle, domain.UploadMashup},
		MaxCandidates: 5,
		MinDuration:   60 * time.Second,
		MaxDuration:   480 * time.Second,
		RankedLimit:   25,
		SearchLimit:   15,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sel, err := New(reg, st, cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	sel.pick = func(int) int { return 0 }
	return sel
}

func TestSelectFiltersAndKeepsRankOrder(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		name: "youtube",
		ranked: []domain.CatalogItem{
			item("dup", 200),
			item("short", 30),
			item("good1", 200),
			item("blocked", 200),
			item("long", 900),
			item("good2", 61),
		},
	}
	st := &fakeState{consumed: map[string]bool{"dup": true}}
	sel := newSelector(t, src, st, func(c *Config) { c.Blocklist = []string{"blocked"} })

	got, err := sel.Select(context.Background(), sel.cfg.Buckets[0], 2)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if len(got) != 2 || got[0].ID() != "good1" || got[1].ID() != "good2" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if got[0].CleanTitle != "good1" || got[0].CleanAuthor != "good1" {
		t.Fatalf("expected cleaned fields, got %q / %q", got[0].CleanTitle, got[0].CleanAuthor)
	}
	if got[0].Provenance != domain.ProvenanceRanked || got[0].Bucket != "english" {
		t.Fatalf("unexpected provenance: %+v", got[0])
	}
	if len(src.queries) != 1 {
		t.Fatalf("search should not run once maxCount is reached, queries=%d", len(src.queries))
	}
}

func TestSelectMergesSearchWithoutDuplicates(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		name:   "youtube",
		ranked: []domain.CatalogItem{item("a", 120)},
		search: []domain.CatalogItem{item("a", 120), item("b", 120), item("c", 120)},
	}
	sel := newSelector(t, src, &fakeState{}, nil)

	got, err := sel.Select(context.Background(), sel.cfg.Buckets[1], 5)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if len(got) != 3 || got[0].ID() != "a" || got[1].ID() != "b" || got[2].ID() != "c" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if got[1].Provenance != domain.ProvenanceSearch {
		t.Fatalf("expected search provenance, got %s", got[1].Provenance)
	}
	last := src.queries[len(src.queries)-1]
	if last.Keywords != "q2" || last.Region != "IN" || last.Limit != 15 {
		t.Fatalf("unexpected search query: %+v", last)
	}
}

func TestSelectFallsBackWhenRankedFails(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		name:      "youtube",
		rankedErr: errors.New("chart unavailable"),
		search:    []domain.CatalogItem{item("s1", 200)},
	}
	sel := newSelector(t, src, &fakeState{}, nil)

	got, err := sel.Select(context.Background(), sel.cfg.Buckets[0], 5)
	if err != nil {
		t.Fatalf("Select error: %v", err)
	}
	if len(got) != 1 || got[0].ID() != "s1" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestSelectBothFailuresYieldEmptyList(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		name:      "youtube",
		rankedErr: errors.New("down"),
		searchErr: errors.New("also down"),
	}
	sel := newSelector(t, src, &fakeState{}, nil)

	got, err := sel.Select(context.Background(), sel.cfg.Buckets[0], 5)
	if err != nil {
		t.Fatalf("catalog failures must not surface as errors: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %+v", got)
	}
}

func TestSelectSurfacesStateErrors(t *testing.T) {
	t.Parallel()

	sel := newSelector(t, &fakeSource{name: "youtube"}, &fakeState{err: errors.New("disk gone")}, nil)
	if _, err := sel.Select(context.Background(), sel.cfg.Buckets[0], 5); err == nil {
		t.Fatalf("expected dedup read error")
	}
}

func TestRotateVisitsBucketsRoundRobin(t *testing.T) {
	t.Parallel()

	sel := newSelector(t, &fakeSource{name: "youtube"}, &fakeState{}, nil)
	counts := map[string]int{}
	types := map[domain.UploadType]int{}
	const cycles = 10
	for i := 0; i < cycles; i++ {
		rot, err := sel.Rotate(context.Background())
		if err != nil {
			t.Fatalf("Rotate error: %v", err)
		}
		counts[rot.Bucket.Name]++
		types[rot.UploadType]++
	}

	for name, n := range counts {
		if n < cycles/3 || n > cycles/3+1 {
			t.Fatalf("bucket %s visited %d times", name, n)
		}
	}
	// the type steps once per pass over the three buckets: single, mashup, single, then one mashup cycle
	if types[domain.UploadSingle] != 6 || types[domain.UploadMashup] != 4 {
		t.Fatalf("unexpected upload types: %v", types)
	}
}

func TestRotatePairsEveryBucketWithEveryUploadType(t *testing.T) {
	t.Parallel()

	sel := newSelector(t, &fakeSource{name: "youtube"}, &fakeState{}, func(c *Config) {
		c.Buckets = c.Buckets[:2]
	})
	pairs := map[string]int{}
	for i := 0; i < 8; i++ {
		rot, err := sel.Rotate(context.Background())
		if err != nil {
			t.Fatalf("Rotate error: %v", err)
		}
		pairs[rot.Bucket.Name+"/"+string(rot.UploadType)]++
	}

	for _, key := range []string{"english/single", "english/mashup", "hindi/single", "hindi/mashup"} {
		if pairs[key] != 2 {
			t.Fatalf("expected %s twice over 8 cycles, got %v", key, pairs)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Song Name (Official Music Video)": "Song Name",
		"Song - Artist ft. Someone":        "Song - Artist",
		"Track [Official Lyric] (HD)":      "Track",
		"| Plain |":                        "Plain",
	}
	for in, want := range cases {
		if got := CleanTitle(in); got != want {
			t.Fatalf("CleanTitle(%q) = %q, want %q", in, got, want)
		}
	}
	if got := CleanAuthor("ArtistVEVO"); got != "Artist" {
		t.Fatalf("CleanAuthor = %q", got)
	}
}

package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"TrackPublisher/internal/catalog"
	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

// Config holds the selection rules.
type Config struct {
	Buckets       []domain.Bucket
	UploadTypes   []domain.UploadType
	MaxCandidates int
	MinDuration   time.Duration
	MaxDuration   time.Duration
	Blocklist     []string
	RankedLimit   int
	SearchLimit   int
	SearchSource  string
}

// Selector rotates buckets and turns catalog listings into ordered candidates.
type Selector struct {
	registry  *catalog.Registry
	state     ports.StateStore
	cfg       Config
	blocklist map[string]bool
	pick      func(n int) int
	logger    *slog.Logger
}

// New wires a selector. Buckets and upload types must be non-empty.
func New(reg *catalog.Registry, state ports.StateStore, cfg Config, logger *slog.Logger) (*Selector, error) {
	if len(cfg.Buckets) == 0 {
		return nil, errors.New("selector: no buckets configured")
	}
	if len(cfg.UploadTypes) == 0 {
		cfg.UploadTypes = []domain.UploadType{domain.UploadSingle}
	}
	if cfg.SearchSource == "" {
		cfg.SearchSource = "youtube"
	}
	if logger == nil {
		logger = slog.Default()
	}

	blocked := make(map[string]bool, len(cfg.Blocklist))
	for _, id := range cfg.Blocklist {
		blocked[id] = true
	}

	return &Selector{
		registry:  reg,
		state:     state,
		cfg:       cfg,
		blocklist: blocked,
		pick:      rand.Intn,
		logger:    logger,
	}, nil
}

// Rotate advances the persisted cursors by one step and resolves the bucket and upload type in effect.
// It runs once per cycle, before any candidate is evaluated, whatever the cycle's outcome later is.
// The upload type moves once per full pass over the buckets, so every bucket meets every upload
// type even when the two list lengths share a factor.
func (s *Selector) Rotate(ctx context.Context) (domain.Rotation, error) {
	cursors, err := s.state.Advance(ctx)
	if err != nil {
		return domain.Rotation{}, fmt.Errorf("advance rotation: %w", err)
	}
	buckets := len(s.cfg.Buckets)
	return domain.Rotation{
		Bucket:     s.cfg.Buckets[cursors.Bucket%buckets],
		UploadType: s.cfg.UploadTypes[(cursors.UploadType/buckets)%len(s.cfg.UploadTypes)],
	}, nil
}

// Select returns up to maxCount candidates in catalog rank order. Catalog failures are absorbed:
// an unavailable ranked listing falls through to search, and two failures yield an empty list.
// Only a failure to read the dedup set is returned as an error.
func (s *Selector) Select(ctx context.Context, bucket domain.Bucket, maxCount int) ([]domain.Candidate, error) {
	if maxCount <= 0 {
		maxCount = s.cfg.MaxCandidates
	}

	consumed, err := s.state.Consumed(ctx)
	if err != nil {
		return nil, fmt.Errorf("load dedup set: %w", err)
	}

	logger := s.logger.With("bucket", bucket.Name)
	candidates := make([]domain.Candidate, 0, maxCount)
	seen := map[string]bool{}

	collect := func(items []domain.CatalogItem, prov domain.Provenance) {
		for _, item := range items {
			if len(candidates) >= maxCount {
				return
			}
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			if reason := s.excluded(item, consumed); reason != "" {
				logger.Debug("candidate excluded", "item_id", item.ID, "reason", reason)
				continue
			}
			candidates = append(candidates, domain.Candidate{
				Item:        item,
				CleanTitle:  CleanTitle(item.Title),
				CleanAuthor: CleanAuthor(item.Author),
				Bucket:      bucket.Name,
				Provenance:  prov,
			})
		}
	}

	ranked, err := s.ranked(ctx, bucket)
	if err != nil {
		logger.Warn("ranked listing failed, falling back to search", "error", err)
	} else {
		collect(ranked, domain.ProvenanceRanked)
	}

	if len(candidates) < maxCount {
		found, err := s.search(ctx, bucket)
		if err != nil {
			logger.Warn("search listing failed", "error", err)
		} else {
			collect(found, domain.ProvenanceSearch)
		}
	}

	logger.Info("candidates selected", "count", len(candidates))
	return candidates, nil
}

func (s *Selector) excluded(item domain.CatalogItem, consumed map[string]bool) string {
	switch {
	case item.ID == "":
		return "missing id"
	case consumed[item.ID]:
		return "already published"
	case s.blocklist[item.ID]:
		return "blocklisted"
	case s.cfg.MinDuration > 0 && item.Duration < s.cfg.MinDuration:
		return "too short"
	case s.cfg.MaxDuration > 0 && item.Duration > s.cfg.MaxDuration:
		return "too long"
	}
	return ""
}

func (s *Selector) ranked(ctx context.Context, bucket domain.Bucket) ([]domain.CatalogItem, error) {
	source, err := s.registry.Resolve(bucket.Source)
	if err != nil {
		return nil, err
	}
	return source.Ranked(ctx, catalog.Query{
		Region:   bucket.Region,
		Category: bucket.Category,
		ChartURL: bucket.ChartURL,
		Limit:    s.cfg.RankedLimit,
	})
}

func (s *Selector) search(ctx context.Context, bucket domain.Bucket) ([]domain.CatalogItem, error) {
	if len(bucket.Queries) == 0 {
		return nil, fmt.Errorf("bucket %s has no search queries", bucket.Name)
	}
	source, err := s.registry.Resolve(s.cfg.SearchSource)
	if err != nil {
		return nil, err
	}
	keywords := bucket.Queries[s.pick(len(bucket.Queries))]
	s.logger.Debug("searching catalog", "bucket", bucket.Name, "query", keywords)
	return source.Search(ctx, catalog.Query{
		Region:   bucket.Region,
		Category: bucket.Category,
		Keywords: keywords,
		Limit:    s.cfg.SearchLimit,
	})
}

package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"TrackPublisher/internal/catalog"
	"TrackPublisher/internal/domain"
)

// CatalogClient lists music videos through the Data API with an API key.
type CatalogClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

var _ catalog.Source = (*CatalogClient)(nil)

// NewCatalogClient builds a client; baseURL defaults to the public Data API.
func NewCatalogClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *CatalogClient {
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/youtube/v3"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Name identifies the strategy inside the registry.
func (c *CatalogClient) Name() string {
	return "youtube"
}

type videoList struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type searchList struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

// Ranked returns the most-popular chart for the query's region and category.
func (c *CatalogClient) Ranked(ctx context.Context, q catalog.Query) ([]domain.CatalogItem, error) {
	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	params.Set("chart", "mostPopular")
	setIfNotEmpty(params, "videoCategoryId", q.Category)
	setIfNotEmpty(params, "regionCode", q.Region)
	params.Set("maxResults", strconv.Itoa(limitOr(q.Limit, 25)))

	var list videoList
	if err := c.get(ctx, "/videos", params, &list); err != nil {
		return nil, fmt.Errorf("chart listing: %w", err)
	}
	return toItems(list, c.logger), nil
}

// Search runs a keyword search ordered by views and hydrates the hits with durations.
func (c *CatalogClient) Search(ctx context.Context, q catalog.Query) ([]domain.CatalogItem, error) {
	if q.Keywords == "" {
		return nil, fmt.Errorf("search without keywords")
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", q.Keywords)
	params.Set("type", "video")
	params.Set("order", "viewCount")
	params.Set("videoDuration", "medium")
	setIfNotEmpty(params, "videoCategoryId", q.Category)
	setIfNotEmpty(params, "regionCode", q.Region)
	params.Set("maxResults", strconv.Itoa(limitOr(q.Limit, 15)))

	var found searchList
	if err := c.get(ctx, "/search", params, &found); err != nil {
		return nil, fmt.Errorf("search %q: %w", q.Keywords, err)
	}

	ids := make([]string, 0, len(found.Items))
	for _, it := range found.Items {
		if it.ID.VideoID != "" {
			ids = append(ids, it.ID.VideoID)
		}
	}
	return c.Lookup(ctx, ids)
}

// Lookup fetches full details for ids, preserving their order. Unknown ids are dropped.
func (c *CatalogClient) Lookup(ctx context.Context, ids []string) ([]domain.CatalogItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("part", "snippet,contentDetails,statistics")
	params.Set("id", strings.Join(ids, ","))
	params.Set("maxResults", strconv.Itoa(len(ids)))

	var list videoList
	if err := c.get(ctx, "/videos", params, &list); err != nil {
		return nil, fmt.Errorf("video lookup: %w", err)
	}

	byID := make(map[string]domain.CatalogItem, len(list.Items))
	for _, item := range toItems(list, c.logger) {
		byID[item.ID] = item
	}
	ordered := make([]domain.CatalogItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			ordered = append(ordered, item)
		}
	}
	return ordered, nil
}

func (c *CatalogClient) get(ctx context.Context, path string, params url.Values, into any) error {
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return decodeJSON(resp, into)
}

func toItems(list videoList, logger *slog.Logger) []domain.CatalogItem {
	items := make([]domain.CatalogItem, 0, len(list.Items))
	for _, it := range list.Items {
		length, err := parseDuration(it.ContentDetails.Duration)
		if err != nil {
			logger.Debug("unparseable duration", "item_id", it.ID, "duration", it.ContentDetails.Duration)
		}
		views, _ := strconv.ParseInt(it.Statistics.ViewCount, 10, 64)
		items = append(items, domain.CatalogItem{
			ID:        it.ID,
			Title:     it.Snippet.Title,
			Author:    it.Snippet.ChannelTitle,
			Duration:  length,
			ViewCount: views,
		})
	}
	return items
}

// parseDuration converts ISO-8601 durations such as PT4M13S.
func parseDuration(iso string) (time.Duration, error) {
	if iso == "" {
		return 0, fmt.Errorf("empty duration")
	}
	d, err := duration.Parse(iso)
	if err != nil {
		return 0, err
	}
	return d.ToTimeDuration(), nil
}

func setIfNotEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func limitOr(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

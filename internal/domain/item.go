package domain

import "time"

// CatalogItem is a track as reported by the external catalog. Never mutated by the core.
type CatalogItem struct {
	ID        string
	Title     string
	Author    string
	Duration  time.Duration
	ViewCount int64
}

// Provenance tells which listing a candidate was drawn from.
type Provenance string

const (
	ProvenanceRanked Provenance = "ranked"
	ProvenanceSearch Provenance = "search"
)

// Candidate is a catalog item considered for the current cycle.
type Candidate struct {
	Item        CatalogItem
	CleanTitle  string
	CleanAuthor string
	Bucket      string
	Provenance  Provenance
}

// ID is a shortcut for the catalog identifier.
func (c Candidate) ID() string {
	return c.Item.ID
}

// SourceURL is the public watch URL of the original item.
func (c Candidate) SourceURL() string {
	return "https://www.youtube.com/watch?v=" + c.Item.ID
}

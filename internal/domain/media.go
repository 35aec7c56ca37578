package domain

// DownloadVariant is one access strategy hint for the downloader.
type DownloadVariant struct {
	Client string
	Format string
}

// Label renders the variant for logs.
func (v DownloadVariant) Label() string {
	format := v.Format
	if format == "" {
		format = "auto"
	}
	return "client=" + v.Client + " fmt=" + format
}

// EffectParams configures the slowed + reverb chain.
type EffectParams struct {
	SlowFactor     float64
	ReverbRoom     float64
	ReverbWet      float64
	TargetLoudness float64
	FadeInSec      float64
	FadeOutSec     float64
}

// Track is a downloaded and processed audio file for one candidate.
type Track struct {
	Candidate Candidate
	RawPath   string
	AudioPath string
}

// Metadata describes the published item on the host platform.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
	Language    string
}

// Artifact is everything the publish driver needs for one upload.
type Artifact struct {
	Tracks        []Track
	VideoPath     string
	ThumbnailPath string
	Metadata      Metadata
}

// ItemIDs lists the catalog identifiers packed into the artifact.
func (a Artifact) ItemIDs() []string {
	ids := make([]string, 0, len(a.Tracks))
	for _, t := range a.Tracks {
		ids = append(ids, t.Candidate.ID())
	}
	return ids
}

// PolicyStatus is the Policy Verifier's classification.
type PolicyStatus struct {
	Blocked    bool
	Restricted bool
	Status     string
}

package domain

import "time"

// UploadType is the cycle shape drawn from the upload-type cursor.
type UploadType string

const (
	UploadSingle UploadType = "single"
	UploadMashup UploadType = "mashup"
)

// ItemsRequired reports how many tracks one publish of this type consumes.
func (t UploadType) ItemsRequired() int {
	if t == UploadMashup {
		return 2
	}
	return 1
}

// Bucket is a rotation-selected query scope.
type Bucket struct {
	Name       string
	Region     string
	Category   string
	Source     string
	ChartURL   string
	Queries    []string
	PlaylistID string
}

// Rotation is the cursor pair resolved for one cycle.
type Rotation struct {
	Bucket     Bucket
	UploadType UploadType
}

// PublishRecord is one append-only history entry.
type PublishRecord struct {
	ID          string     `json:"id"`
	PublishedAt time.Time  `json:"published_at"`
	Bucket      string     `json:"bucket"`
	UploadType  UploadType `json:"upload_type"`
	ItemIDs     []string   `json:"item_ids"`
	Titles      []string   `json:"titles"`
	Authors     []string   `json:"authors"`
	ExternalID  string     `json:"external_id"`
	URL         string     `json:"url"`
	Restricted  bool       `json:"restricted,omitempty"`
	Status      string     `json:"status,omitempty"`
}

// AttemptOutcome classifies a single candidate attempt.
type AttemptOutcome string

const (
	OutcomeTransformFailed AttemptOutcome = "transform_failed"
	OutcomePublishFailed   AttemptOutcome = "publish_failed"
	OutcomeQuotaExceeded   AttemptOutcome = "quota_exceeded"
	OutcomePolicyBlocked   AttemptOutcome = "policy_blocked"
	OutcomeSucceeded       AttemptOutcome = "succeeded"
)

// CycleStatus is the terminal state of one cycle.
type CycleStatus string

const (
	CycleSuccess      CycleStatus = "success"
	CycleNoCandidates CycleStatus = "no_candidates"
	CycleExhausted    CycleStatus = "exhausted"
	CycleQuotaStop    CycleStatus = "quota_stop"
	CycleFatal        CycleStatus = "fatal"
)

// ExitCode maps a status onto the process exit code schedulers see.
// Quota stops and empty cycles are expected and must not page anyone.
func (s CycleStatus) ExitCode() int {
	if s == CycleFatal {
		return 1
	}
	return 0
}

// Attempt is the in-memory trace of one candidate (or candidate group) attempt.
type Attempt struct {
	ItemIDs []string
	Outcome AttemptOutcome
	Err     error
}

// CycleResult is what a cycle reports to its caller.
type CycleResult struct {
	CycleID    string
	Status     CycleStatus
	Rotation   Rotation
	Record     *PublishRecord
	Attempts   []Attempt
	Reason     string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// PublishedURL returns the URL of the committed publish, if any.
func (r CycleResult) PublishedURL() string {
	if r.Record == nil {
		return ""
	}
	return r.Record.URL
}

// Cursors are the persisted rotation counters. Each counts cycles started.
type Cursors struct {
	Bucket     int `json:"bucket"`
	UploadType int `json:"upload_type"`
}

// PlatformStatus is the raw moderation/availability view of a published item.
type PlatformStatus struct {
	Found           bool
	UploadStatus    string
	RejectionReason string
	FailureReason   string
	PrivacyStatus   string
	BlockedRegions  []string
	AllowedRegions  []string
}

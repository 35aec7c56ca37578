package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
	"TrackPublisher/internal/publish"
	"TrackPublisher/internal/transform"
)

// CandidateSelector rotates buckets and lists candidates.
type CandidateSelector interface {
	Rotate(ctx context.Context) (domain.Rotation, error)
	Select(ctx context.Context, bucket domain.Bucket, maxCount int) ([]domain.Candidate, error)
}

// Transformer turns candidates into a publishable artifact.
type Transformer interface {
	Prepare(ctx context.Context, c domain.Candidate, workspace string) (domain.Track, error)
	Assemble(ctx context.Context, tracks []domain.Track, caption ports.Caption, workspace string) (domain.Artifact, error)
}

// Publisher uploads an artifact.
type Publisher interface {
	Publish(ctx context.Context, artifact domain.Artifact, bucket domain.Bucket) (publish.Result, error)
}

// PolicyChecker classifies a published item, withdrawing it when blocked.
type PolicyChecker interface {
	Verify(ctx context.Context, externalID string) (domain.PolicyStatus, error)
}

// MetadataBuilder produces the platform metadata for a publish.
type MetadataBuilder interface {
	Build(ctx context.Context, candidates []domain.Candidate) (domain.Metadata, error)
}

// Locker guards the state against a second concurrent writer.
type Locker interface {
	Lock() error
	Unlock() error
}

// PipelineDeps wires all driven adapters into the cycle pipeline. Sinks, Events, Metrics and
// Notifier are optional.
type PipelineDeps struct {
	State     ports.StateStore
	Lock      Locker
	Selector  CandidateSelector
	Transform Transformer
	Publisher Publisher
	Verifier  PolicyChecker
	Metadata  MetadataBuilder
	Sinks     []ports.HistorySink
	Events    ports.EventPublisher
	Metrics   ports.CycleMetrics
	Notifier  ports.Notifier
	Logger    *slog.Logger
}

// PipelineConfig holds per-cycle knobs.
type PipelineConfig struct {
	MaxCandidates int
	WorkspaceDir  string
	Channel       string
}

// Pipeline implements the publish cycle: rotate, select, transform, publish, verify, commit.
type Pipeline struct {
	state     ports.StateStore
	lock      Locker
	selector  CandidateSelector
	transform Transformer
	publisher Publisher
	verifier  PolicyChecker
	metadata  MetadataBuilder
	sinks     []ports.HistorySink
	events    ports.EventPublisher
	metrics   ports.CycleMetrics
	notifier  ports.Notifier
	cfg       PipelineConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 10
	}
	return &Pipeline{
		state:     deps.State,
		lock:      deps.Lock,
		selector:  deps.Selector,
		transform: deps.Transform,
		publisher: deps.Publisher,
		verifier:  deps.Verifier,
		metadata:  deps.Metadata,
		sinks:     deps.Sinks,
		events:    deps.Events,
		metrics:   deps.Metrics,
		notifier:  deps.Notifier,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// RunCycle runs one cycle to a terminal status. The returned result always carries the status;
// Err is set only for fatal cycles.
func (p *Pipeline) RunCycle(ctx context.Context) domain.CycleResult {
	result := domain.CycleResult{CycleID: uuid.NewString(), StartedAt: p.now().UTC()}
	logger := p.logger.With("cycle_id", result.CycleID)

	p.run(ctx, &result, logger)

	result.FinishedAt = p.now().UTC()
	logger.Info("cycle finished",
		"status", result.Status,
		"reason", result.Reason,
		"attempts", len(result.Attempts),
		"url", result.PublishedURL(),
		"duration", result.FinishedAt.Sub(result.StartedAt))
	p.report(ctx, result, logger)
	return result
}

func (p *Pipeline) run(ctx context.Context, result *domain.CycleResult, logger *slog.Logger) {
	if p.lock != nil {
		if err := p.lock.Lock(); err != nil {
			p.fatal(result, "acquire state lock", err)
			return
		}
		defer func() {
			if err := p.lock.Unlock(); err != nil {
				logger.Warn("release state lock", "error", err)
			}
		}()
	}

	rotation, err := p.selector.Rotate(ctx)
	if err != nil {
		p.fatal(result, "rotate", err)
		return
	}
	result.Rotation = rotation
	logger = logger.With("bucket", rotation.Bucket.Name, "upload_type", rotation.UploadType)
	logger.Info("cycle started")

	need := rotation.UploadType.ItemsRequired()
	maxCount := p.cfg.MaxCandidates
	if maxCount < need {
		maxCount = need
	}
	candidates, err := p.selector.Select(ctx, rotation.Bucket, maxCount)
	if err != nil {
		p.fatal(result, "select candidates", err)
		return
	}
	if len(candidates) < need {
		result.Status = domain.CycleNoCandidates
		result.Reason = fmt.Sprintf("%d candidates, %d required", len(candidates), need)
		return
	}

	if err := os.MkdirAll(p.cfg.WorkspaceDir, 0o755); err != nil {
		p.fatal(result, "create workspace", err)
		return
	}
	workspace, err := os.MkdirTemp(p.cfg.WorkspaceDir, "cycle-*")
	if err != nil {
		p.fatal(result, "create workspace", err)
		return
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			logger.Warn("purge workspace", "dir", workspace, "error", err)
		}
	}()

	p.walk(ctx, result, candidates, need, workspace, logger)
}

// walk tries candidates in order, grouping them into publishes of need tracks each, until one
// publish commits, the quota runs out, or the list ends.
func (p *Pipeline) walk(ctx context.Context, result *domain.CycleResult, candidates []domain.Candidate, need int, workspace string, logger *slog.Logger) {
	var group []domain.Track
	for idx, c := range candidates {
		if len(group)+len(candidates)-idx < need {
			break
		}

		track, err := p.transform.Prepare(ctx, c, workspace)
		if err != nil {
			var terr *transform.Error
			if !errors.As(err, &terr) {
				p.fatal(result, "transform "+c.ID(), err)
				return
			}
			if terr.Fatal {
				logger.Error("candidate transform crashed", "item_id", c.ID(), "stage", terr.Stage, "error", err)
			} else {
				logger.Warn("candidate unavailable", "item_id", c.ID(), "error", err)
			}
			p.attempt(result, []string{c.ID()}, domain.OutcomeTransformFailed, err)
			continue
		}

		group = append(group, track)
		if len(group) < need {
			continue
		}

		done := p.attemptGroup(ctx, result, group, workspace, logger)
		group = nil
		if done {
			return
		}
	}

	result.Status = domain.CycleExhausted
	result.Reason = fmt.Sprintf("no publish cleared after %d attempts", len(result.Attempts))
}

// attemptGroup assembles, publishes and verifies one group. It reports true once the cycle has
// reached a terminal status.
func (p *Pipeline) attemptGroup(ctx context.Context, result *domain.CycleResult, tracks []domain.Track, workspace string, logger *slog.Logger) bool {
	group := make([]domain.Candidate, 0, len(tracks))
	for _, t := range tracks {
		group = append(group, t.Candidate)
	}
	ids := candidateIDs(group)
	logger = logger.With("item_id", strings.Join(ids, ","))

	artifact, err := p.transform.Assemble(ctx, tracks, p.caption(group), workspace)
	if err != nil {
		var terr *transform.Error
		if !errors.As(err, &terr) {
			p.fatal(result, "assemble", err)
			return true
		}
		logger.Error("artifact assembly crashed", "stage", terr.Stage, "error", err)
		p.attempt(result, ids, domain.OutcomeTransformFailed, err)
		return false
	}

	meta, err := p.metadata.Build(ctx, group)
	if err != nil {
		p.fatal(result, "build metadata", err)
		return true
	}
	artifact.Metadata = meta

	published, err := p.publisher.Publish(ctx, artifact, result.Rotation.Bucket)
	if err != nil {
		var perr *publish.Error
		switch {
		case errors.As(err, &perr) && perr.QuotaExceeded:
			logger.Warn("quota exhausted, stopping cycle", "error", err)
			p.attempt(result, ids, domain.OutcomeQuotaExceeded, err)
			result.Status = domain.CycleQuotaStop
			result.Reason = "host quota exhausted"
			return true
		case errors.As(err, &perr):
			logger.Warn("publish failed", "error", err)
			p.attempt(result, ids, domain.OutcomePublishFailed, err)
			return false
		default:
			p.fatal(result, "publish", err)
			return true
		}
	}
	logger = logger.With("external_id", published.ExternalID)

	status, err := p.verifier.Verify(ctx, published.ExternalID)
	if status.Blocked {
		if err != nil {
			logger.Error("withdrawal failed, item left live and uncommitted", "error", err)
			p.notify(ctx, logger, fmt.Sprintf("Withdrawal failed for blocked upload %s (%s); delete it manually.\n%s\n%v",
				published.ExternalID, status.Status, published.URL, err))
		}
		p.attempt(result, ids, domain.OutcomePolicyBlocked, fmt.Errorf("policy: %s", status.Status))
		return false
	}

	record := domain.PublishRecord{
		ID:          uuid.NewString(),
		PublishedAt: p.now().UTC(),
		Bucket:      result.Rotation.Bucket.Name,
		UploadType:  result.Rotation.UploadType,
		ItemIDs:     ids,
		Titles:      titles(group),
		Authors:     authors(group),
		ExternalID:  published.ExternalID,
		URL:         published.URL,
		Restricted:  status.Restricted,
		Status:      status.Status,
	}
	if err := p.state.Commit(ctx, record); err != nil {
		logger.Error("commit failed after publish, item is live but not recorded", "url", published.URL, "error", err)
		p.fatal(result, "commit", err)
		return true
	}

	p.attempt(result, ids, domain.OutcomeSucceeded, nil)
	result.Status = domain.CycleSuccess
	result.Record = &record
	result.Reason = "published " + published.URL
	return true
}

func (p *Pipeline) caption(group []domain.Candidate) ports.Caption {
	label := "Slowed + Reverb"
	if len(group) > 1 {
		label = "Slowed + Reverb Mashup"
	}
	return ports.Caption{
		Title:   strings.Join(titles(group), " x "),
		Author:  strings.Join(authors(group), ", "),
		Channel: p.cfg.Channel,
		Label:   label,
	}
}

func (p *Pipeline) attempt(result *domain.CycleResult, ids []string, outcome domain.AttemptOutcome, err error) {
	result.Attempts = append(result.Attempts, domain.Attempt{ItemIDs: ids, Outcome: outcome, Err: err})
	if p.metrics != nil {
		p.metrics.ObserveAttempt(outcome)
	}
}

func (p *Pipeline) fatal(result *domain.CycleResult, step string, err error) {
	result.Status = domain.CycleFatal
	result.Reason = step
	result.Err = fmt.Errorf("%s: %w", step, err)
}

// report fans the terminal result out to the optional sinks. Nothing here changes the result.
func (p *Pipeline) report(ctx context.Context, result domain.CycleResult, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	if result.Record != nil {
		for _, sink := range p.sinks {
			if err := sink.Record(ctx, *result.Record); err != nil {
				logger.Warn("history sink failed", "sink", fmt.Sprintf("%T", sink), "error", err)
			}
		}
	}

	if p.events != nil {
		if err := p.events.PublishCycle(ctx, result); err != nil {
			logger.Warn("publish cycle event", "error", err)
		}
	}

	if p.metrics != nil {
		p.metrics.ObserveCycle(result)
	}

	p.notify(ctx, logger, buildNotice(result))
}

// notify sends an operator message when a notifier is configured. Empty messages are dropped.
func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, message string) {
	if p.notifier == nil || message == "" {
		return
	}
	if err := p.notifier.Notify(context.WithoutCancel(ctx), message); err != nil {
		logger.Warn("notify", "error", err)
	}
}

func buildNotice(result domain.CycleResult) string {
	switch result.Status {
	case domain.CycleSuccess:
		rec := result.Record
		msg := fmt.Sprintf("Published %s (%s)\n%s\n%s",
			strings.Join(rec.Titles, " x "), rec.UploadType, strings.Join(rec.Authors, ", "), rec.URL)
		if rec.Restricted {
			msg += "\nRestricted: " + rec.Status
		}
		return msg
	case domain.CycleQuotaStop:
		return fmt.Sprintf("Upload quota exhausted on bucket %s; next cycle resumes rotation.", result.Rotation.Bucket.Name)
	case domain.CycleFatal:
		return fmt.Sprintf("Cycle %s failed: %v", result.CycleID, result.Err)
	}
	return ""
}

func candidateIDs(group []domain.Candidate) []string {
	ids := make([]string, 0, len(group))
	for _, c := range group {
		ids = append(ids, c.ID())
	}
	return ids
}

func titles(group []domain.Candidate) []string {
	out := make([]string, 0, len(group))
	for _, c := range group {
		out = append(out, c.CleanTitle)
	}
	return out
}

func authors(group []domain.Candidate) []string {
	out := make([]string, 0, len(group))
	for _, c := range group {
		out = append(out, c.CleanAuthor)
	}
	return out
}

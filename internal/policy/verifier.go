package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

// Upload states the host reports for items that will never become watchable.
var blockingUploadStates = map[string]bool{
	"rejected": true,
	"failed":   true,
	"deleted":  true,
}

// Verifier classifies a freshly published item and withdraws it when it is unusable.
type Verifier struct {
	host           ports.HostPlatform
	blockThreshold int
	logger         *slog.Logger
}

// NewVerifier builds a verifier. blockThreshold is the number of blocked regions at which
// an item counts as blocked rather than restricted; zero disables that rule.
func NewVerifier(host ports.HostPlatform, blockThreshold int, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{host: host, blockThreshold: blockThreshold, logger: logger}
}

// Verify reads the item's moderation status. A blocked item is deleted before returning.
// A failed status read leaves the item live and unverified; the returned error reports a
// failed withdrawal only.
func (v *Verifier) Verify(ctx context.Context, externalID string) (domain.PolicyStatus, error) {
	logger := v.logger.With("external_id", externalID)

	raw, err := v.host.Status(ctx, externalID)
	if err != nil {
		logger.Warn("status read failed, keeping item unverified", "error", err)
		return domain.PolicyStatus{Status: "unverified"}, nil
	}

	status := Classify(raw, v.blockThreshold)
	if !status.Blocked {
		if status.Restricted {
			logger.Warn("item restricted", "status", status.Status)
		}
		return status, nil
	}

	logger.Warn("item blocked, withdrawing", "status", status.Status)
	if err := v.host.Delete(ctx, externalID); err != nil {
		return status, fmt.Errorf("withdraw %s: %w", externalID, err)
	}
	logger.Info("item withdrawn")
	return status, nil
}

// Classify maps the host's raw status onto keep / restrict / block.
func Classify(raw domain.PlatformStatus, blockThreshold int) domain.PolicyStatus {
	if !raw.Found {
		return domain.PolicyStatus{Blocked: true, Status: "not_found"}
	}

	upload := strings.ToLower(raw.UploadStatus)
	if blockingUploadStates[upload] {
		reason := raw.RejectionReason
		if reason == "" {
			reason = raw.FailureReason
		}
		if reason == "" {
			return domain.PolicyStatus{Blocked: true, Status: upload}
		}
		return domain.PolicyStatus{Blocked: true, Status: upload + ":" + reason}
	}

	blocked := len(raw.BlockedRegions)
	if blockThreshold > 0 && blocked >= blockThreshold {
		return domain.PolicyStatus{Blocked: true, Status: fmt.Sprintf("blocked in %d regions", blocked)}
	}
	if blocked > 0 {
		return domain.PolicyStatus{Restricted: true, Status: "blocked in " + strings.Join(raw.BlockedRegions, ",")}
	}
	if len(raw.AllowedRegions) > 0 {
		return domain.PolicyStatus{Restricted: true, Status: "allowed only in " + strings.Join(raw.AllowedRegions, ",")}
	}
	return domain.PolicyStatus{Status: "clear"}
}

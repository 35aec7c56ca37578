package policy

import (
	"context"
	"errors"
	"testing"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/logging"
	"TrackPublisher/internal/ports"
)

type statusHost struct {
	ports.HostPlatform
	status    domain.PlatformStatus
	statusErr error
	deleteErr error
	deleted   []string
}

func (s *statusHost) Status(ctx context.Context, externalID string) (domain.PlatformStatus, error) {
	return s.status, s.statusErr
}

func (s *statusHost) Delete(ctx context.Context, externalID string) error {
	s.deleted = append(s.deleted, externalID)
	return s.deleteErr
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		raw        domain.PlatformStatus
		blocked    bool
		restricted bool
	}{
		{name: "clear", raw: domain.PlatformStatus{Found: true, UploadStatus: "processed"}},
		{name: "missing", raw: domain.PlatformStatus{}, blocked: true},
		{name: "rejected", raw: domain.PlatformStatus{Found: true, UploadStatus: "rejected", RejectionReason: "copyright"}, blocked: true},
		{name: "failed", raw: domain.PlatformStatus{Found: true, UploadStatus: "Failed"}, blocked: true},
		{name: "some regions", raw: domain.PlatformStatus{Found: true, UploadStatus: "uploaded", BlockedRegions: []string{"DE"}}, restricted: true},
		{name: "allow list", raw: domain.PlatformStatus{Found: true, AllowedRegions: []string{"US"}}, restricted: true},
		{name: "over threshold", raw: domain.PlatformStatus{Found: true, BlockedRegions: []string{"DE", "FR", "US"}}, blocked: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.raw, 3)
			if got.Blocked != tc.blocked || got.Restricted != tc.restricted {
				t.Fatalf("Classify(%+v) = %+v", tc.raw, got)
			}
			if got.Status == "" {
				t.Fatal("status must always be set")
			}
		})
	}
}

func TestVerifyWithdrawsBlockedItem(t *testing.T) {
	t.Parallel()

	host := &statusHost{status: domain.PlatformStatus{Found: true, UploadStatus: "rejected", RejectionReason: "claim"}}
	status, err := NewVerifier(host, 0, logging.Discard()).Verify(context.Background(), "vid1")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !status.Blocked || status.Status != "rejected:claim" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(host.deleted) != 1 || host.deleted[0] != "vid1" {
		t.Fatalf("expected withdrawal of vid1, got %v", host.deleted)
	}
}

func TestVerifyKeepsRestrictedItem(t *testing.T) {
	t.Parallel()

	host := &statusHost{status: domain.PlatformStatus{Found: true, UploadStatus: "processed", BlockedRegions: []string{"DE"}}}
	status, err := NewVerifier(host, 5, logging.Discard()).Verify(context.Background(), "vid1")
	if err != nil || !status.Restricted || status.Blocked {
		t.Fatalf("expected restricted keep, got %+v, %v", status, err)
	}
	if len(host.deleted) != 0 {
		t.Fatal("restricted item must not be deleted")
	}
}

func TestVerifyStatusReadFailureIsUnverified(t *testing.T) {
	t.Parallel()

	host := &statusHost{statusErr: errors.New("timeout")}
	status, err := NewVerifier(host, 0, logging.Discard()).Verify(context.Background(), "vid1")
	if err != nil || status.Blocked || status.Status != "unverified" {
		t.Fatalf("expected unverified keep, got %+v, %v", status, err)
	}
}

func TestVerifyReportsFailedWithdrawal(t *testing.T) {
	t.Parallel()

	host := &statusHost{deleteErr: errors.New("forbidden")}
	status, err := NewVerifier(host, 0, logging.Discard()).Verify(context.Background(), "vid1")
	if err == nil || !status.Blocked {
		t.Fatalf("expected blocked with withdrawal error, got %+v, %v", status, err)
	}
}

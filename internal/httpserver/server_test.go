package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/state"
)

type fakeState struct {
	doc state.Document
	err error
}

func (f *fakeState) Load(ctx context.Context) (state.Document, error) { return f.doc, f.err }

func (f *fakeState) History(ctx context.Context, limit int) ([]domain.PublishRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	records := f.doc.History
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func sampleDoc() state.Document {
	return state.Document{
		SchemaVersion: 1,
		ConsumedIDs:   []string{"a", "b", "c"},
		Cursors:       domain.Cursors{Bucket: 4, UploadType: 4},
		History: []domain.PublishRecord{
			{ID: "r1", ItemIDs: []string{"a"}},
			{ID: "r2", ItemIDs: []string{"b", "c"}},
		},
	}
}

func TestHealthReportsUnreadableState(t *testing.T) {
	t.Parallel()

	ok := New(&fakeState{doc: sampleDoc()}, nil).Router()
	if rec, _ := get(t, ok, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}

	broken := New(&fakeState{err: errors.New("decode failed")}, nil).Router()
	rec, body := get(t, broken, "/healthz")
	if rec.Code != http.StatusServiceUnavailable || body["ok"] != false {
		t.Fatalf("expected 503, got %d %v", rec.Code, body)
	}
}

func TestStateSummary(t *testing.T) {
	t.Parallel()

	rec, body := get(t, New(&fakeState{doc: sampleDoc()}, nil).Router(), "/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("state = %d", rec.Code)
	}
	if body["consumed"].(float64) != 3 || body["published"].(float64) != 2 {
		t.Fatalf("unexpected summary %v", body)
	}
	last := body["last_record"].(map[string]interface{})
	if last["id"] != "r2" {
		t.Fatalf("unexpected last record %v", last)
	}
}

func TestHistoryLimit(t *testing.T) {
	t.Parallel()

	h := New(&fakeState{doc: sampleDoc()}, nil).Router()
	rec, body := get(t, h, "/history?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d", rec.Code)
	}
	records := body["records"].([]interface{})
	if len(records) != 1 || records[0].(map[string]interface{})["id"] != "r2" {
		t.Fatalf("unexpected records %v", records)
	}

	if rec, _ := get(t, h, "/history?limit=x"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestLastCycle(t *testing.T) {
	t.Parallel()

	srv := New(&fakeState{doc: sampleDoc()}, nil)
	h := srv.Router()
	if rec, _ := get(t, h, "/cycles/last"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any cycle, got %d", rec.Code)
	}

	srv.Observe(domain.CycleResult{
		CycleID:    "c1",
		Status:     domain.CycleQuotaStop,
		Rotation:   domain.Rotation{Bucket: domain.Bucket{Name: "hindi"}, UploadType: domain.UploadSingle},
		Attempts:   []domain.Attempt{{ItemIDs: []string{"a"}, Outcome: domain.OutcomeQuotaExceeded}},
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
	})
	rec, body := get(t, h, "/cycles/last")
	if rec.Code != http.StatusOK || body["status"] != "quota_stop" || body["bucket"] != "hindi" {
		t.Fatalf("unexpected last cycle %d %v", rec.Code, body)
	}
}

func TestMetricsMountedWhenProvided(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("up 1\n"))
	})
	rec := httptest.NewRecorder()
	New(&fakeState{}, metrics).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Body.String() != "up 1\n" {
		t.Fatalf("metrics handler not mounted: %q", rec.Body.String())
	}
}

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"TrackPublisher/internal/domain"
	"TrackPublisher/internal/ports"
)

// SchemaVersion is the layout version written into state.json.
const SchemaVersion = 1

const (
	stateFileName   = "state.json"
	lockFileName    = "state.lock"
	historyFileName = "upload_history.txt"
	legacyFileName  = "uploaded.json"
)

var (
	// ErrLocked is returned when another process holds the state lock.
	ErrLocked = errors.New("state: locked by another process")
	// ErrUnsupportedSchema is returned for documents written by a newer release.
	ErrUnsupportedSchema = errors.New("state: unsupported schema version")
)

// Document is the whole persisted state. It is always replaced as a unit.
type Document struct {
	SchemaVersion int                    `json:"schema_version"`
	ConsumedIDs   []string               `json:"consumed_ids"`
	Cursors       domain.Cursors         `json:"cursors"`
	History       []domain.PublishRecord `json:"history"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// FileStore keeps the state document in a directory, one writer at a time.
type FileStore struct {
	dir    string
	lock   *flock.Flock
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

var _ ports.StateStore = (*FileStore)(nil)

// NewFileStore ensures dir exists and returns a store rooted there.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: ensure dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, lockFileName)),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Path returns the location of the state document.
func (f *FileStore) Path() string {
	return filepath.Join(f.dir, stateFileName)
}

// Lock takes the single-writer lock without blocking.
func (f *FileStore) Lock() error {
	ok, err := f.lock.TryLock()
	if err != nil {
		return fmt.Errorf("state: lock: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Unlock releases the single-writer lock.
func (f *FileStore) Unlock() error {
	return f.lock.Unlock()
}

// Load reads the document. A missing file yields a fresh document; a corrupt one is an error,
// never a silent reset of the dedup set.
func (f *FileStore) Load(ctx context.Context) (Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

// Advance persists the successor cursors and returns the ones this cycle uses.
func (f *FileStore) Advance(ctx context.Context) (domain.Cursors, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return domain.Cursors{}, err
	}

	current := doc.Cursors
	doc.Cursors.Bucket++
	doc.Cursors.UploadType++
	if err := f.save(doc); err != nil {
		return domain.Cursors{}, err
	}
	return current, nil
}

// Consumed returns the dedup set.
func (f *FileStore) Consumed(ctx context.Context) (map[string]bool, error) {
	doc, err := f.Load(ctx)
	if err != nil {
		return nil, err
	}
	consumed := make(map[string]bool, len(doc.ConsumedIDs))
	for _, id := range doc.ConsumedIDs {
		consumed[id] = true
	}
	return consumed, nil
}

// Commit adds the record's item IDs to the dedup set and appends the record in one atomic replace.
func (f *FileStore) Commit(ctx context.Context, record domain.PublishRecord) error {
	if len(record.ItemIDs) == 0 {
		return fmt.Errorf("state: commit without item ids")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(doc.ConsumedIDs))
	for _, id := range doc.ConsumedIDs {
		seen[id] = true
	}
	for _, id := range record.ItemIDs {
		if !seen[id] {
			doc.ConsumedIDs = append(doc.ConsumedIDs, id)
			seen[id] = true
		}
	}
	doc.History = append(doc.History, record)

	if err := f.save(doc); err != nil {
		return err
	}

	// The text log is derived from the document, so losing it never loses state.
	if err := renameio.WriteFile(filepath.Join(f.dir, historyFileName), []byte(RenderHistory(doc.History)), 0o644); err != nil {
		f.logger.Warn("write history text", "error", err)
	}
	return nil
}

// History returns up to limit most recent records in publish order. limit <= 0 means all.
func (f *FileStore) History(ctx context.Context, limit int) ([]domain.PublishRecord, error) {
	doc, err := f.Load(ctx)
	if err != nil {
		return nil, err
	}
	records := doc.History
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return append([]domain.PublishRecord(nil), records...), nil
}

func (f *FileStore) load() (Document, error) {
	raw, err := os.ReadFile(f.Path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.fresh()
		}
		return Document{}, fmt.Errorf("state: read: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("state: decode %s: %w", f.Path(), err)
	}
	if doc.SchemaVersion > SchemaVersion {
		return Document{}, fmt.Errorf("%w: %d", ErrUnsupportedSchema, doc.SchemaVersion)
	}
	doc.SchemaVersion = SchemaVersion
	return doc, nil
}

// fresh builds the initial document, importing a legacy flat id list when one exists.
func (f *FileStore) fresh() (Document, error) {
	doc := Document{SchemaVersion: SchemaVersion}

	raw, err := os.ReadFile(filepath.Join(f.dir, legacyFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}
		return Document{}, fmt.Errorf("state: read legacy ids: %w", err)
	}
	if err := json.Unmarshal(raw, &doc.ConsumedIDs); err != nil {
		return Document{}, fmt.Errorf("state: decode legacy ids: %w", err)
	}
	f.logger.Info("imported legacy dedup list", "count", len(doc.ConsumedIDs))
	return doc, nil
}

func (f *FileStore) save(doc Document) error {
	doc.SchemaVersion = SchemaVersion
	doc.UpdatedAt = f.now().UTC()
	if doc.ConsumedIDs == nil {
		doc.ConsumedIDs = []string{}
	}
	if doc.History == nil {
		doc.History = []domain.PublishRecord{}
	}

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	if err := renameio.WriteFile(f.Path(), append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("state: write: %w", err)
	}
	return nil
}

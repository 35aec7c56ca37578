package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrackPublisher/internal/domain"
)

func sampleRecord() domain.PublishRecord {
	return domain.PublishRecord{
		ID:          "rec-1",
		PublishedAt: time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC),
		Bucket:      "english",
		UploadType:  domain.UploadMashup,
		ItemIDs:     []string{"a", "b"},
		Titles:      []string{"A", "B"},
		Authors:     []string{"X", "Y"},
		ExternalID:  "vid1",
		URL:         "https://youtu.be/vid1",
	}
}

func TestRecordInsertsWithConflictGuard(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := sampleRecord()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO publish_history")+".*"+regexp.QuoteMeta("ON CONFLICT (record_id) DO NOTHING")).
		WithArgs(rec.ID, rec.PublishedAt, "english", "mashup",
			pq.StringArray{"a", "b"}, pq.StringArray{"A", "B"}, pq.StringArray{"X", "Y"},
			"vid1", "https://youtu.be/vid1", false, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewPostgresRepository(db).Record(context.Background(), rec)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWrapsDriverErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO publish_history").WillReturnError(errors.New("connection reset"))

	err = NewPostgresRepository(db).Record(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert publish record")
}

func TestAlreadyPublishedFiltersToRequestedIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"unnest"}).AddRow("a").AddRow("z")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT unnest(item_ids) FROM publish_history WHERE item_ids && $1")).
		WithArgs(pq.StringArray{"a", "c"}).
		WillReturnRows(rows)

	got, err := NewPostgresRepository(db).AlreadyPublished(context.Background(), []string{"a", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateCreatesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS publish_history").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewPostgresRepository(db).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilDatabaseIsNoop(t *testing.T) {
	repo := NewPostgresRepository(nil)
	assert.NoError(t, repo.Record(context.Background(), sampleRecord()))
	got, err := repo.AlreadyPublished(context.Background(), []string{"a"})
	assert.NoError(t, err)
	assert.Empty(t, got)
}

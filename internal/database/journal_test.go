package database

import (
	"path/filepath"
	"testing"

	"go-asset-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestJournalRoundTrip(t *testing.T) {
	j := NewJournal(openTestDB(t))

	rec := models.DownloadRecord{
		AssetID:   101,
		AssetName: "RustyMetal001",
		Size:      "4K",
		FileCount: 6,
		Timestamp: 1700000000,
		Status:    models.StatusPending,
	}
	require.NoError(t, j.PutRecord(rec))

	got, err := j.GetRecord(101)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// Rewriting replaces the record.
	rec.Status = models.StatusDownloaded
	rec.DurationMs = 5400
	require.NoError(t, j.PutRecord(rec))

	got, err = j.GetRecord(101)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloaded, got.Status)
}

func TestJournalGetMissing(t *testing.T) {
	j := NewJournal(openTestDB(t))

	_, err := j.GetRecord(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJournalDelete(t *testing.T) {
	j := NewJournal(openTestDB(t))

	require.NoError(t, j.PutRecord(models.DownloadRecord{AssetID: 7, Status: models.StatusError}))
	require.NoError(t, j.DeleteRecord(7))
	_, err := j.GetRecord(7)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing record is fine.
	require.NoError(t, j.DeleteRecord(7))
}

func TestJournalAllRecords(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db)

	require.NoError(t, j.PutRecord(models.DownloadRecord{AssetID: 1, Timestamp: 100, Status: models.StatusDownloaded}))
	require.NoError(t, j.PutRecord(models.DownloadRecord{AssetID: 2, Timestamp: 300, Status: models.StatusError}))
	require.NoError(t, j.PutRecord(models.DownloadRecord{AssetID: 3, Timestamp: 200, Status: models.StatusPending}))

	// Unrelated keys are ignored by the listing.
	require.NoError(t, db.SetPageState("somequery", 4))

	records, err := j.AllRecords()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, 2, records[0].AssetID)
	assert.Equal(t, 3, records[1].AssetID)
	assert.Equal(t, 1, records[2].AssetID)
}

func TestPageState(t *testing.T) {
	db := openTestDB(t)

	// Unknown query defaults to page 1.
	page, err := db.GetPageState("q1")
	require.NoError(t, err)
	assert.Equal(t, 1, page)

	require.NoError(t, db.SetPageState("q1", 5))
	page, err = db.GetPageState("q1")
	require.NoError(t, err)
	assert.Equal(t, 5, page)

	require.NoError(t, db.DeletePageState("q1"))
	page, err = db.GetPageState("q1")
	require.NoError(t, err)
	assert.Equal(t, 1, page)
}

package database

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"go-asset-sync/internal/models"
)

// Journal records the outcome of asset downloads in the database. The
// orchestrator writes a Pending record on enqueue and rewrites it on
// completion, failure or cancellation; the status command reads them
// back.
type Journal struct {
	db *DB
}

func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

func recordKey(assetID int) []byte {
	return []byte("download_" + strconv.Itoa(assetID))
}

// PutRecord stores or replaces the download record of an asset.
func (j *Journal) PutRecord(rec models.DownloadRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("error marshalling download record for asset %d: %w", rec.AssetID, err)
	}
	return j.db.Put(recordKey(rec.AssetID), data)
}

// GetRecord retrieves the download record of an asset. Returns
// ErrNotFound when the asset was never journaled.
func (j *Journal) GetRecord(assetID int) (models.DownloadRecord, error) {
	var rec models.DownloadRecord
	data, err := j.db.Get(recordKey(assetID))
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("error unmarshalling download record for asset %d: %w", assetID, err)
	}
	return rec, nil
}

// DeleteRecord removes the download record of an asset. Deleting a
// record that does not exist is not an error.
func (j *Journal) DeleteRecord(assetID int) error {
	err := j.db.Delete(recordKey(assetID))
	if err != nil && err != ErrNotFound {
		return err
	}
	return nil
}

// AllRecords returns every download record, newest first.
func (j *Journal) AllRecords() ([]models.DownloadRecord, error) {
	var records []models.DownloadRecord
	err := j.db.Fold(func(key []byte, value []byte) error {
		if len(key) < len("download_") || string(key[:len("download_")]) != "download_" {
			return nil
		}
		var rec models.DownloadRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			// Skip undecodable records instead of failing the listing.
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, k int) bool {
		return records[i].Timestamp > records[k].Timestamp
	})
	return records, nil
}

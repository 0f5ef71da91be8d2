package database

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

var gzipMagicBytes = []byte{0x1f, 0x8b}

// DB wraps a bitcask store. Values are gzip-compressed on write and
// transparently decompressed on read.
type DB struct {
	db *bitcask.Bitcask
	sync.RWMutex
}

// Open initializes and returns a DB instance, creating the parent
// directory if needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dbInstance, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Debugf("Database opened at %s", path)
	return &DB{db: dbInstance}, nil
}

// Close safely closes the database.
func (d *DB) Close() error {
	d.Lock()
	defer d.Unlock()
	return d.db.Close()
}

// Has checks if a key exists.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	return d.db.Has(key)
}

// Get retrieves the value for a key, decompressing it if necessary.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	value, err := d.db.Get(key)
	d.RUnlock()

	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}

	return decompressIfGzipped(value)
}

// Put compresses and stores a key-value pair.
func (d *DB) Put(key []byte, value []byte) error {
	compressed, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}

	d.Lock()
	err = d.db.Put(key, compressed)
	d.Unlock()
	if err != nil {
		return fmt.Errorf("error putting key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	err := d.db.Delete(key)
	d.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold iterates over all key-value pairs with decompressed values.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	defer d.RUnlock()

	return d.db.Fold(func(key []byte) error {
		rawValue, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: error getting value for key %s", string(key))
			return nil
		}
		value, err := decompressIfGzipped(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Fold: error decompressing value for key %s", string(key))
			return nil
		}
		return fn(key, value)
	})
}

func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagicBytes) {
		return value, nil
	}

	gReader, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		log.WithError(err).Warn("Error creating gzip reader for value, returning raw data")
		return value, nil
	}
	defer gReader.Close()

	decompressed, err := io.ReadAll(gReader)
	if err != nil {
		log.WithError(err).Warn("Error decompressing value, returning raw data")
		return value, nil
	}
	return decompressed, nil
}

func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err = gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data: %w", err)
	}
	// Close must be called to flush buffers.
	if err = gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// GetPageState retrieves the last fetched catalog page for a query hash,
// defaulting to page 1.
func (d *DB) GetPageState(queryHash string) (int, error) {
	key := []byte("current_page_" + queryHash)
	pageBytes, err := d.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 1, nil
		}
		return 0, fmt.Errorf("error reading page state for %s: %w", queryHash, err)
	}

	page, err := strconv.Atoi(string(pageBytes))
	if err != nil {
		return 0, fmt.Errorf("error parsing saved page number '%s': %w", string(pageBytes), err)
	}
	return page, nil
}

// SetPageState saves the next catalog page to fetch for a query hash.
func (d *DB) SetPageState(queryHash string, nextPage int) error {
	key := []byte("current_page_" + queryHash)
	return d.Put(key, []byte(strconv.Itoa(nextPage)))
}

// DeletePageState removes the saved page for a query hash.
func (d *DB) DeletePageState(queryHash string) error {
	err := d.Delete([]byte("current_page_" + queryHash))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("error deleting page state for %s: %w", queryHash, err)
	}
	return nil
}

package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"go-asset-sync/internal/helpers"
	"go-asset-sync/internal/models"

	log "github.com/sirupsen/logrus"
)

// TempSuffix is appended to a file's name while its content is being
// streamed. The orchestrator strips it in a final rename pass once every
// file of the asset finished.
const TempSuffix = "dl"

// downloadChunkSize is how much is read from the stream between
// cancellation checks.
const downloadChunkSize = 1024 * 1024

// DownloadStatus is the lifecycle state of one file download.
type DownloadStatus string

const (
	StatusInitialized DownloadStatus = "initialized"
	StatusWaiting     DownloadStatus = "waiting"
	StatusOngoing     DownloadStatus = "ongoing"
	StatusDone        DownloadStatus = "done"
	StatusError       DownloadStatus = "error"
	StatusCancelled   DownloadStatus = "cancelled"
)

// FileDownload tracks a single file of an asset download. Status moves
// initialized -> waiting -> ongoing -> done/error/cancelled; done and
// error are terminal. Byte progress is updated atomically so progress
// reporting never contends with the stream loop.
type FileDownload struct {
	AssetID   int
	URL       string
	Filename  string
	Directory string
	// SizeExpected is the size advertised by the manifest, used for
	// smallest-first scheduling. The Content-Length of the response is
	// authoritative for verification.
	SizeExpected int64
	Checksum     string

	sizeDownloaded atomic.Int64

	mu     sync.Mutex
	status DownloadStatus
}

func NewFileDownload(assetID int, file models.ManifestFile, directory string) *FileDownload {
	return &FileDownload{
		AssetID:      assetID,
		URL:          file.URL,
		Filename:     file.Name,
		Directory:    directory,
		SizeExpected: file.SizeBytes,
		Checksum:     file.Checksum,
		status:       StatusInitialized,
	}
}

// Path returns the file's location on disk, with the temp suffix while
// temp is true.
func (d *FileDownload) Path(temp bool) string {
	name := d.Filename
	if temp {
		name += TempSuffix
	}
	return filepath.Join(d.Directory, name)
}

func (d *FileDownload) Status() DownloadStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *FileDownload) isTerminal() bool {
	return d.status == StatusDone || d.status == StatusError
}

// SetStatusWaiting marks the download as queued. Returns false when the
// download already left the initialized state.
func (d *FileDownload) SetStatusWaiting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != StatusInitialized {
		return false
	}
	d.status = StatusWaiting
	return true
}

// SetStatusOngoing marks the download as streaming. Returns false when
// the download was cancelled or already finished, in which case the
// caller must not start the transfer.
func (d *FileDownload) SetStatusOngoing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusCancelled || d.isTerminal() {
		return false
	}
	d.status = StatusOngoing
	return true
}

// SetStatusCancelled requests cancellation. Downloads that already
// reached a terminal state keep it.
func (d *FileDownload) SetStatusCancelled() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isTerminal() {
		return
	}
	d.status = StatusCancelled
}

func (d *FileDownload) SetStatusDone() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status == StatusCancelled {
		return
	}
	d.status = StatusDone
}

func (d *FileDownload) SetStatusError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = StatusError
}

func (d *FileDownload) Cancelled() bool {
	return d.Status() == StatusCancelled
}

// BytesDownloaded returns the number of bytes streamed so far.
func (d *FileDownload) BytesDownloaded() int64 {
	return d.sizeDownloaded.Load()
}

// GetDownloadList requests the download manifest for an asset. Modern
// manifests carry direct URLs; legacy ones list files by download ID and
// each URL is resolved in a second step.
func (c *Client) GetDownloadList(entry models.DownloadAssetEntry) ([]models.ManifestFile, Response) {
	resp := c.post("assets/download", models.DownloadAssetRequest{
		Assets: []models.DownloadAssetEntry{entry},
	}, true)
	if !resp.OK {
		return nil, resp
	}

	var manifest models.DownloadManifest
	if err := resp.Decode(&manifest); err != nil {
		log.WithError(err).Errorf("Failed to decode download manifest for asset %d", entry.ID)
		return nil, errResponse(ErrDecode)
	}
	if len(manifest.Files) == 0 {
		return nil, errResponse(ErrMissingURLs)
	}

	files := make([]models.ManifestFile, 0, len(manifest.Files))
	for _, file := range manifest.Files {
		if file.URL == "" && file.DownloadID != "" {
			urlResp := c.get("downloads/"+file.DownloadID, true)
			if !urlResp.OK {
				return nil, urlResp
			}
			var resolved models.ResolvedURLResponse
			if err := urlResp.Decode(&resolved); err != nil {
				log.WithError(err).Errorf("Failed to decode download URL for %s", file.Name)
				return nil, errResponse(ErrDecode)
			}
			file.URL = resolved.Payload.URL
		}
		if file.URL == "" {
			return nil, errResponse(ErrMissingURLs)
		}
		files = append(files, file)
	}
	return files, okResponse(resp.Body)
}

// classifyWriteError maps a filesystem error onto the error taxonomy.
func classifyWriteError(err error) string {
	switch {
	case errors.Is(err, syscall.ENOSPC):
		return ErrOSNoSpace
	case errors.Is(err, os.ErrPermission):
		return ErrOSNoPermission
	}
	return ErrOSWrite
}

// DownloadFile streams one file to its temp path. It is idempotent: a
// final or temp file already present with the expected size
// short-circuits to success. The stream is checked against the
// download's cancellation state between chunks, and the written byte
// count must match the response's Content-Length. The temp file is
// never renamed here.
func (c *Client) DownloadFile(dl *FileDownload) Response {
	finalPath := dl.Path(false)
	if info, err := os.Stat(finalPath); err == nil && !info.IsDir() {
		if dl.SizeExpected == 0 || info.Size() == dl.SizeExpected {
			log.Debugf("File already present, skipping download: %s", finalPath)
			dl.sizeDownloaded.Store(info.Size())
			dl.SetStatusDone()
			return Response{OK: true}
		}
	}

	// A fully streamed temp file from an earlier round is kept as-is; the
	// final rename happens once the whole asset finished. A temp file of
	// any other size is a partial and gets re-downloaded.
	tempPath := dl.Path(true)
	if info, err := os.Stat(tempPath); err == nil && !info.IsDir() {
		if dl.SizeExpected > 0 && info.Size() == dl.SizeExpected {
			log.Debugf("Temp file already complete, skipping download: %s", tempPath)
			dl.sizeDownloaded.Store(info.Size())
			dl.SetStatusDone()
			return Response{OK: true}
		}
	}

	if !dl.SetStatusOngoing() {
		return errResponse(ErrUserCancel)
	}

	req, err := http.NewRequest(http.MethodGet, dl.URL, nil)
	if err != nil {
		log.WithError(err).Errorf("Error creating download request for %s", dl.Filename)
		dl.SetStatusError()
		return errResponse(ErrInternal)
	}

	// Download URLs are pre-signed, no auth header.
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		dl.SetStatusError()
		return errResponse(classifyTransportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("Download of %s failed with status %d", dl.Filename, resp.StatusCode)
		dl.SetStatusError()
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return errResponse(ErrNotAuthorized)
		}
		return errResponse(ErrServer)
	}
	if resp.ContentLength == 0 {
		log.Errorf("Download of %s returned an empty body", dl.Filename)
		dl.SetStatusError()
		return errResponse(ErrMissingStream)
	}
	if resp.ContentLength < 0 {
		dl.SetStatusError()
		return errResponse(ErrMissingSize)
	}

	if !helpers.CheckAndMakeDir(dl.Directory) {
		dl.SetStatusError()
		return errResponse(ErrOSWrite)
	}

	tempFile, err := os.Create(tempPath)
	if err != nil {
		log.WithError(err).Errorf("Error creating temp file %s", tempPath)
		dl.SetStatusError()
		return errResponse(classifyWriteError(err))
	}
	shouldCleanupTemp := true
	defer func() {
		tempFile.Close()
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempPath); removeErr != nil {
				log.WithError(removeErr).Warnf("Failed to remove temp file %s", tempPath)
			}
		}
	}()

	buf := make([]byte, downloadChunkSize)
	var written int64
	for {
		if dl.Cancelled() {
			log.Debugf("Download of %s cancelled mid-stream", dl.Filename)
			return errResponse(ErrUserCancel)
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := tempFile.Write(buf[:n]); writeErr != nil {
				log.WithError(writeErr).Errorf("Error writing temp file %s", tempPath)
				dl.SetStatusError()
				return errResponse(classifyWriteError(writeErr))
			}
			written += int64(n)
			dl.sizeDownloaded.Add(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			dl.SetStatusError()
			return errResponse(classifyTransportError(readErr))
		}
	}

	if err := tempFile.Close(); err != nil {
		dl.SetStatusError()
		return errResponse(classifyWriteError(err))
	}

	if written != resp.ContentLength {
		log.Errorf("Size mismatch for %s: wrote %d, expected %d", dl.Filename, written, resp.ContentLength)
		dl.SetStatusError()
		return errResponse(ErrWrongSize)
	}

	if dl.Checksum != "" {
		ok, err := helpers.VerifyChecksum(tempPath, dl.Checksum)
		if err != nil {
			log.WithError(err).Errorf("Error verifying checksum for %s", tempPath)
			dl.SetStatusError()
			return errResponse(ErrChecksum)
		}
		if !ok {
			log.Errorf("Checksum mismatch for %s", tempPath)
			dl.SetStatusError()
			return errResponse(ErrChecksum)
		}
	}

	if dl.Cancelled() {
		return errResponse(ErrUserCancel)
	}

	shouldCleanupTemp = false
	dl.SetStatusDone()
	return Response{OK: true}
}

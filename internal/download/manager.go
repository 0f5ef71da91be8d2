package download

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go-asset-sync/internal/api"
	"go-asset-sync/internal/assetindex"
	"go-asset-sync/internal/assets"
	"go-asset-sync/internal/database"
	"go-asset-sync/internal/models"
	"go-asset-sync/internal/pool"

	log "github.com/sirupsen/logrus"
)

const (
	// PollInterval is how often asset progress is sampled while files
	// are in flight.
	PollInterval = 250 * time.Millisecond
	// MaxDownloadRetries bounds how often the manifest is re-fetched
	// after failed files before the asset download gives up.
	MaxDownloadRetries = 10
	// DefaultParallelAssets is how many assets download at once.
	DefaultParallelAssets = 2
	// DefaultParallelFilesPerAsset is how many files of one asset
	// stream at once.
	DefaultParallelFilesPerAsset = 8
	// CancelWaitTimeout bounds how long a cancel waits for in-flight
	// files to notice.
	CancelWaitTimeout = 60 * time.Second

	assetPoolKey pool.Key = "asset-dl"
	purchasePool pool.Key = "purchase"
)

// ApiClient is the slice of the API surface the manager needs.
type ApiClient interface {
	GetDownloadList(entry models.DownloadAssetEntry) ([]models.ManifestFile, api.Response)
	DownloadFile(dl *api.FileDownload) api.Response
	PurchaseAsset(assetID int) api.Response
}

// ProgressFunc is called on every poll tick with the bytes downloaded so
// far and the total expected. Returning false cancels the asset
// download; this callback is the only cancellation signal the poll loop
// consults besides CancelDownload.
type ProgressFunc func(assetID int, downloaded, total int64) bool

// Result is the outcome of one asset download.
type Result struct {
	AssetID         int
	OK              bool
	Error           string
	Size            string
	FilesDownloaded int
	Duration        time.Duration
}

// Manager orchestrates asset downloads: it resolves manifests, fans file
// downloads out over a per-asset worker pool, retries failures, and
// journals outcomes. All dependencies are injected.
type Manager struct {
	client  ApiClient
	index   *assetindex.AssetIndex
	pools   *pool.Manager
	journal *database.Journal
	cfg     models.Config

	mu               sync.Mutex
	queue            map[int][]*api.FileDownload
	cancelled        map[int]bool
	pendingPurchases map[int]bool
}

func NewManager(client ApiClient, index *assetindex.AssetIndex, pools *pool.Manager, journal *database.Journal, cfg models.Config) *Manager {
	return &Manager{
		client:           client,
		index:            index,
		pools:            pools,
		journal:          journal,
		cfg:              cfg,
		queue:            map[int][]*api.FileDownload{},
		cancelled:        map[int]bool{},
		pendingPurchases: map[int]bool{},
	}
}

func (m *Manager) parallelAssets() int {
	if m.cfg.MaxParallelAssetDownloads > 0 {
		return m.cfg.MaxParallelAssetDownloads
	}
	return DefaultParallelAssets
}

func (m *Manager) parallelFiles() int {
	if m.cfg.MaxParallelDownloadsPerAsset > 0 {
		return m.cfg.MaxParallelDownloadsPerAsset
	}
	return DefaultParallelFilesPerAsset
}

// IsDownloadQueued reports whether the asset has a pending or running
// download.
func (m *Manager) IsDownloadQueued(assetID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.queue[assetID]
	return ok
}

// QueueDownload schedules an asset download on the shared asset pool.
// An asset already queued is not queued twice; the second call returns
// an error. The handle resolves to a Result.
func (m *Manager) QueueDownload(assetID int, size string, progress ProgressFunc) (*pool.Handle, error) {
	m.mu.Lock()
	if _, ok := m.queue[assetID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("asset %d is already queued for download", assetID)
	}
	m.queue[assetID] = nil
	delete(m.cancelled, assetID)
	m.mu.Unlock()

	handle := m.pools.Schedule(assetPoolKey, m.parallelAssets(), false, func() (interface{}, error) {
		return m.DownloadAsset(assetID, size, progress), nil
	})
	return handle, nil
}

// CancelDownload requests cancellation of a queued or running asset
// download. In-flight files are flipped to cancelled; the running
// DownloadAsset notices on its next poll tick.
func (m *Manager) CancelDownload(assetID int) {
	m.mu.Lock()
	downloads, queued := m.queue[assetID]
	if queued {
		m.cancelled[assetID] = true
	}
	m.mu.Unlock()
	if !queued {
		return
	}
	for _, dl := range downloads {
		dl.SetStatusCancelled()
	}
	log.Debugf("Cancellation requested for asset %d", assetID)
}

func (m *Manager) isCancelled(assetID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled[assetID]
}

func (m *Manager) removeFromQueue(assetID int) {
	m.mu.Lock()
	delete(m.queue, assetID)
	delete(m.cancelled, assetID)
	m.mu.Unlock()
}

// destinationDir resolves where an asset's files land: the library that
// already holds files of the asset, so downloads never split an asset
// across libraries. The primary library wins when it holds files too,
// and is the default for an asset with no local files at all.
func (m *Manager) destinationDir(asset *assets.AssetData) (string, error) {
	if len(m.cfg.LibraryPaths) == 0 {
		return "", fmt.Errorf("no library path configured")
	}
	files := asset.Files()
	if len(files) > 0 {
		for _, lib := range m.cfg.LibraryPaths {
			dir := filepath.Join(lib, asset.AssetName)
			prefix := dir + string(filepath.Separator)
			for path := range files {
				if strings.HasPrefix(path, prefix) {
					return dir, nil
				}
			}
		}
	}
	return filepath.Join(m.cfg.LibraryPaths[0], asset.AssetName), nil
}

// buildDownloadRequest assembles the per-type manifest request.
func buildDownloadRequest(asset *assets.AssetData, size string) (models.DownloadAssetEntry, error) {
	entry := models.DownloadAssetEntry{ID: asset.AssetID, Sizes: []string{size}}

	switch asset.AssetType {
	case assets.TypeTexture, assets.TypeHDRI:
		workflows := asset.WorkflowList()
		entry.Workflows = workflows
		seen := map[string]bool{}
		for _, workflow := range workflows {
			codes, err := asset.MapTypeCodeList(workflow)
			if err != nil {
				continue
			}
			for _, code := range codes {
				if !seen[code] {
					seen[code] = true
					entry.TypeCodes = append(entry.TypeCodes, code)
				}
			}
		}
		if len(entry.TypeCodes) == 0 {
			return entry, fmt.Errorf("asset %d has no map type codes", asset.AssetID)
		}
	case assets.TypeModel:
		if asset.Model != nil {
			entry.Lods = asset.Model.LODs
		}
		entry.Softwares = []string{"FBX", "BLEND"}
	case assets.TypeBrush:
		// Size is all a brush needs.
	default:
		return entry, fmt.Errorf("asset %d has unsupported type %s", asset.AssetID, asset.AssetType)
	}
	return entry, nil
}

func (m *Manager) journalRecord(asset *assets.AssetData, size, status, errDetails string, fileCount int, duration time.Duration) {
	if m.journal == nil {
		return
	}
	rec := models.DownloadRecord{
		AssetID:      asset.AssetID,
		AssetName:    asset.AssetName,
		Size:         size,
		FileCount:    fileCount,
		Timestamp:    time.Now().UTC().Unix(),
		DurationMs:   duration.Milliseconds(),
		Status:       status,
		ErrorDetails: errDetails,
	}
	if err := m.journal.PutRecord(rec); err != nil {
		log.WithError(err).Warnf("Failed to journal download of asset %d", asset.AssetID)
	}
}

// DownloadAsset downloads every file of an asset at the requested size.
// It retries failed files up to MaxDownloadRetries times, re-fetching
// the manifest each round; files that already finished are not
// downloaded again. On full success the temp files are renamed and the
// asset directory re-scanned into the index.
func (m *Manager) DownloadAsset(assetID int, size string, progress ProgressFunc) Result {
	result := Result{AssetID: assetID}
	started := time.Now()
	defer func() { m.removeFromQueue(assetID) }()

	asset, err := m.index.LoadAsset(assetID)
	if err != nil {
		log.WithError(err).Errorf("Cannot download unknown asset %d", assetID)
		result.Error = api.ErrInternal
		return result
	}

	sizeResolved, err := asset.Size(size)
	if err != nil {
		log.WithError(err).Errorf("No usable size for asset %d", assetID)
		result.Error = api.ErrInternal
		return result
	}
	result.Size = sizeResolved

	destDir, err := m.destinationDir(asset)
	if err != nil {
		log.WithError(err).Error("Cannot resolve download destination")
		result.Error = api.ErrOSWrite
		return result
	}

	entry, err := buildDownloadRequest(asset, sizeResolved)
	if err != nil {
		log.WithError(err).Errorf("Cannot build download request for asset %d", assetID)
		result.Error = api.ErrInternal
		return result
	}

	m.journalRecord(asset, sizeResolved, models.StatusPending, "", 0, 0)
	log.Debugf("Downloading asset %d (%s) at size %s", assetID, asset.AssetName, sizeResolved)

	poolKey := pool.Key(fmt.Sprintf("asset-dl-%d", assetID))
	defer m.pools.Shutdown(poolKey, true)

	done := map[string]bool{}
	var completed []*api.FileDownload
	var lastError string

	for attempt := 0; attempt < MaxDownloadRetries; attempt++ {
		if m.isCancelled(assetID) {
			m.journalRecord(asset, sizeResolved, models.StatusCancelled, "", len(done), time.Since(started))
			result.Error = api.ErrUserCancel
			return result
		}

		files, resp := m.client.GetDownloadList(entry)
		if !resp.OK {
			lastError = resp.Error
			if resp.Error == api.ErrNotAuthorized || resp.Error == api.ErrNoToken {
				break
			}
			log.Warnf("Manifest fetch for asset %d failed (%s), attempt %d/%d", assetID, resp.Error, attempt+1, MaxDownloadRetries)
			time.Sleep(PollInterval)
			continue
		}

		downloads := make([]*api.FileDownload, 0, len(files))
		for _, file := range files {
			if done[file.Name] {
				continue
			}
			if !m.cfg.VerifyChecksums {
				file.Checksum = ""
			}
			downloads = append(downloads, api.NewFileDownload(assetID, file, destDir))
		}
		if len(downloads) == 0 {
			break // everything already finished
		}

		m.mu.Lock()
		m.queue[assetID] = downloads
		m.mu.Unlock()

		handles := m.scheduleDownloads(poolKey, downloads)
		switch m.pollDownloads(assetID, downloads, progress) {
		case pollCancelled:
			m.cancelDownloads(downloads, handles)
			m.journalRecord(asset, sizeResolved, models.StatusCancelled, "", len(done), time.Since(started))
			result.Error = api.ErrUserCancel
			return result
		case pollFileError:
			// One file failed; stop the siblings instead of letting them
			// stream on, then retry the round.
			m.cancelDownloads(downloads, handles)
		}

		failed := 0
		for _, dl := range downloads {
			switch dl.Status() {
			case api.StatusDone:
				if !done[dl.Filename] {
					done[dl.Filename] = true
					completed = append(completed, dl)
				}
			default:
				failed++
			}
		}
		if failed == 0 {
			if err := m.renameDownloads(completed); err != nil {
				log.WithError(err).Errorf("Failed to finalize files of asset %d", assetID)
				lastError = api.ErrOSWrite
				continue
			}
			result.OK = true
			result.FilesDownloaded = len(done)
			result.Duration = time.Since(started)
			m.journalRecord(asset, sizeResolved, models.StatusDownloaded, "", len(done), result.Duration)
			m.finishAsset(assetID, destDir)
			log.Debugf("Asset %d complete: %d files in %s", assetID, len(done), result.Duration)
			return result
		}
		lastError = api.ErrConnection
		log.Warnf("%d file(s) of asset %d failed, attempt %d/%d", failed, assetID, attempt+1, MaxDownloadRetries)
	}

	if lastError == "" {
		lastError = api.ErrConnection
	}
	detail := fmt.Sprintf("retries exhausted after %d attempts", MaxDownloadRetries)
	if lastError == api.ErrNotAuthorized || lastError == api.ErrNoToken {
		detail = ""
	}
	m.journalRecord(asset, sizeResolved, models.StatusError, firstNonEmpty(detail, lastError), len(done), time.Since(started))
	result.Error = lastError
	result.Duration = time.Since(started)
	return result
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// scheduleDownloads queues the files smallest first, so quick wins free
// workers for the large maps.
func (m *Manager) scheduleDownloads(key pool.Key, downloads []*api.FileDownload) []*pool.Handle {
	sorted := append([]*api.FileDownload(nil), downloads...)
	sort.SliceStable(sorted, func(i, k int) bool {
		return sorted[i].SizeExpected < sorted[k].SizeExpected
	})
	handles := make([]*pool.Handle, 0, len(sorted))
	for _, dl := range sorted {
		dl.SetStatusWaiting()
		dl := dl
		handles = append(handles, m.pools.Schedule(key, m.parallelFiles(), false, func() (interface{}, error) {
			resp := m.client.DownloadFile(dl)
			if !resp.OK {
				return nil, fmt.Errorf("download of %s failed: %s", dl.Filename, resp.Error)
			}
			return nil, nil
		}))
	}
	return handles
}

// pollResult says why pollDownloads returned.
type pollResult int

const (
	pollSettled pollResult = iota
	pollCancelled
	pollFileError
)

// pollDownloads samples the files each tick, reporting progress. It
// returns pollCancelled when the download was cancelled through
// CancelDownload or the progress callback returning false, and
// pollFileError as soon as any file finished with an error, without
// waiting for in-flight siblings.
func (m *Manager) pollDownloads(assetID int, downloads []*api.FileDownload, progress ProgressFunc) pollResult {
	var total int64
	for _, dl := range downloads {
		total += dl.SizeExpected
	}

	for {
		if m.isCancelled(assetID) {
			return pollCancelled
		}

		var downloaded int64
		settled := true
		failed := false
		for _, dl := range downloads {
			downloaded += dl.BytesDownloaded()
			switch dl.Status() {
			case api.StatusError:
				failed = true
			case api.StatusDone, api.StatusCancelled:
			default:
				settled = false
			}
		}

		if progress != nil && !progress(assetID, downloaded, total) {
			m.CancelDownload(assetID)
			return pollCancelled
		}
		if failed {
			return pollFileError
		}
		if settled {
			return pollSettled
		}
		time.Sleep(PollInterval)
	}
}

// cancelDownloads flips every file to cancelled and waits, bounded by
// CancelWaitTimeout, for in-flight streams to notice. Partial temp files
// are removed.
func (m *Manager) cancelDownloads(downloads []*api.FileDownload, handles []*pool.Handle) {
	for _, dl := range downloads {
		dl.SetStatusCancelled()
	}

	deadline := time.Now().Add(CancelWaitTimeout)
	for _, handle := range handles {
		handle.Cancel()
		remaining := time.Until(deadline)
		if remaining <= 0 || !handle.Wait(remaining) {
			log.Warn("Timed out waiting for in-flight downloads to stop")
			break
		}
	}

	for _, dl := range downloads {
		if dl.Status() == api.StatusDone {
			continue
		}
		tempPath := dl.Path(true)
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warnf("Failed to remove partial file %s", tempPath)
		}
	}
}

// renameDownloads moves every finished temp file to its final name. The
// pass is idempotent: a missing temp file whose final file exists counts
// as already renamed.
func (m *Manager) renameDownloads(downloads []*api.FileDownload) error {
	for _, dl := range downloads {
		tempPath := dl.Path(true)
		finalPath := dl.Path(false)

		if _, err := os.Stat(tempPath); os.IsNotExist(err) {
			if _, err := os.Stat(finalPath); err == nil {
				continue
			}
			return fmt.Errorf("neither temp nor final file exists for %s", dl.Filename)
		}
		if err := os.Rename(tempPath, finalPath); err != nil {
			return fmt.Errorf("renaming %s: %w", tempPath, err)
		}
	}
	return nil
}

// finishAsset folds a completed download back into the index.
func (m *Manager) finishAsset(assetID int, destDir string) {
	if _, err := m.index.UpdateFromDirectory(assetID, destDir); err != nil {
		log.WithError(err).Warnf("Post-download rescan of asset %d failed", assetID)
	}
	if err := m.index.MarkDownloaded(assetID); err != nil {
		log.WithError(err).Warnf("Failed to mark asset %d downloaded", assetID)
	}
}

// QueuePurchase schedules a purchase. At most one purchase per asset is
// pending at a time; the handle resolves to the api.Response of the
// purchase call.
func (m *Manager) QueuePurchase(assetID int) (*pool.Handle, error) {
	m.mu.Lock()
	if m.pendingPurchases[assetID] {
		m.mu.Unlock()
		return nil, fmt.Errorf("purchase of asset %d is already pending", assetID)
	}
	m.pendingPurchases[assetID] = true
	m.mu.Unlock()

	handle := m.pools.Schedule(purchasePool, m.parallelAssets(), false, func() (interface{}, error) {
		defer func() {
			m.mu.Lock()
			delete(m.pendingPurchases, assetID)
			m.mu.Unlock()
		}()
		resp := m.client.PurchaseAsset(assetID)
		if resp.OK {
			if err := m.index.MarkPurchased(assetID); err != nil {
				log.WithError(err).Warnf("Purchased asset %d missing from index", assetID)
			}
		}
		return resp, nil
	})
	return handle, nil
}

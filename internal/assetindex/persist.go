package assetindex

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go-asset-sync/internal/assets"

	log "github.com/sirupsen/logrus"
)

// cacheSnapshot is the on-disk shape of the index, stored as gzipped
// JSON. The query cache is deliberately not persisted; queries are cheap
// to re-fetch and go stale quickly.
type cacheSnapshot struct {
	Version int                 `json:"version"`
	SavedAt int64               `json:"saved_at"`
	Assets  []*assets.AssetData `json:"assets"`
}

const cacheVersion = 1

// SaveCache writes the full index to path as gzipped JSON. The file is
// written to a temp name first and renamed into place.
func (idx *AssetIndex) SaveCache(path string) error {
	idx.mu.RLock()
	snapshot := cacheSnapshot{
		Version: cacheVersion,
		SavedAt: time.Now().UTC().Unix(),
		Assets:  make([]*assets.AssetData, 0, len(idx.allAssets)),
	}
	for _, asset := range idx.allAssets {
		snapshot.Assets = append(snapshot.Assets, asset)
	}
	idx.mu.RUnlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}

	gWriter := gzip.NewWriter(file)
	encoder := json.NewEncoder(gWriter)
	if err := encoder.Encode(snapshot); err != nil {
		gWriter.Close()
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("encoding cache: %w", err)
	}
	if err := gWriter.Close(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("closing gzip writer: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("replacing cache file: %w", err)
	}

	log.Debugf("Saved asset index with %d assets to %s", len(snapshot.Assets), path)
	return nil
}

// LoadCache reads a previously saved index from path, replacing the
// current contents. File references that no longer exist on disk are
// dropped and each asset's locality is recomputed.
func (idx *AssetIndex) LoadCache(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer file.Close()

	gReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("reading cache header: %w", err)
	}
	defer gReader.Close()

	var snapshot cacheSnapshot
	if err := json.NewDecoder(gReader).Decode(&snapshot); err != nil {
		return fmt.Errorf("decoding cache: %w", err)
	}

	loaded := map[int]*assets.AssetData{}
	for _, asset := range snapshot.Assets {
		if asset == nil || asset.AssetID == 0 {
			continue
		}
		verifyAsset(asset)
		loaded[asset.AssetID] = asset
	}

	idx.mu.Lock()
	idx.allAssets = loaded
	idx.cachedQueries = map[QueryKey][]int{}
	idx.mu.Unlock()

	log.Debugf("Loaded asset index with %d assets from %s", len(loaded), path)
	return nil
}

// verifyAsset drops references to files that vanished since the cache
// was saved and recomputes IsLocal from what remains.
func verifyAsset(asset *assets.AssetData) {
	remaining := 0
	switch asset.AssetType {
	case assets.TypeTexture:
		remaining = verifyTexture(asset.Texture)
	case assets.TypeModel:
		if asset.Model != nil {
			kept := asset.Model.Meshes[:0]
			for _, mesh := range asset.Model.Meshes {
				if fileExists(mesh.Path()) {
					kept = append(kept, mesh)
				}
			}
			asset.Model.Meshes = kept
			remaining = len(kept) + verifyTexture(asset.Model.Texture)
		}
	case assets.TypeHDRI:
		if asset.Hdri != nil {
			remaining = verifyTexture(asset.Hdri.Bg) + verifyTexture(asset.Hdri.Light)
		}
	case assets.TypeBrush:
		if asset.Brush != nil {
			remaining = verifyTexture(asset.Brush.Alpha)
		}
	}

	if asset.IsLocal != nil {
		asset.IsLocal = assets.Bool(remaining > 0)
	} else if remaining > 0 {
		asset.IsLocal = assets.Bool(true)
	}
}

func verifyTexture(tex *assets.Texture) int {
	if tex == nil {
		return 0
	}
	remaining := 0
	for workflow, maps := range tex.Maps {
		kept := maps[:0]
		for _, m := range maps {
			if fileExists(m.Path()) {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(tex.Maps, workflow)
		} else {
			tex.Maps[workflow] = kept
		}
		remaining += len(kept)
	}
	return remaining
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

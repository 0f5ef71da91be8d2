package assetindex

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-asset-sync/internal/assets"

	log "github.com/sirupsen/logrus"
)

// meshExtensions maps mesh file extensions to model types.
var meshExtensions = map[string]assets.ModelType{
	".fbx":   assets.ModelFBX,
	".blend": assets.ModelBlend,
	".max":   assets.ModelMax,
	".c4d":   assets.ModelC4D,
}

// imageExtensions are the file types registered as texture maps.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true,
	".tiff": true, ".psd": true, ".exr": true, ".hdr": true,
}

// classified is the result of matching one filename against the token
// vocabularies.
type classified struct {
	Map      *assets.TextureMap
	Workflow string
	Mesh     *assets.ModelMesh
}

func tokenIn(vocab []string, token string) bool {
	for _, v := range vocab {
		if v == token {
			return true
		}
	}
	return false
}

// classifyFile decides what a file is from its name alone. Filenames
// carry underscore-separated tokens, e.g. RustyMetal001_METALNESS_COL_4K.png
// or Chair042_LOD1.fbx. Previews and unrecognized files yield false.
func classifyFile(dir, name string) (classified, bool) {
	if assets.IsPreviewName(name) {
		return classified{}, false
	}

	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	tokens := strings.Split(stem, "_")

	if modelType, ok := meshExtensions[ext]; ok {
		mesh := &assets.ModelMesh{
			Directory: dir,
			Filename:  name,
			LOD:       "SOURCE",
			ModelType: modelType,
		}
		for _, tok := range tokens {
			if tokenIn(assets.LODs, tok) {
				mesh.LOD = tok
			}
		}
		return classified{Mesh: mesh}, true
	}

	if !imageExtensions[ext] {
		return classified{}, false
	}

	// METALNESS is both a workflow token and a map type code. With
	// another map type token present it names the workflow; a lone
	// occurrence names the map; doubled up the first is the workflow
	// and the second the map.
	metalnessLeft := 0
	otherMapType := false
	for _, tok := range tokens {
		upper := strings.ToUpper(tok)
		if upper == string(assets.MapMetalness) {
			metalnessLeft++
		} else if assets.IsMapTypeName(upper) {
			otherMapType = true
		}
	}

	result := classified{Workflow: "REGULAR"}
	tmap := assets.TextureMap{Directory: dir, Filename: name}
	for _, tok := range tokens {
		upper := strings.ToUpper(tok)
		switch {
		case upper == string(assets.MapMetalness):
			if otherMapType || metalnessLeft > 1 {
				result.Workflow = upper
			} else {
				tmap.MapType = assets.MapMetalness
			}
			metalnessLeft--
		case assets.IsMapTypeName(upper):
			tmap.MapType = assets.MapTypeFromCode(upper)
		case tokenIn(assets.Sizes, upper):
			tmap.Size = upper
		case tokenIn(assets.Variants, upper):
			tmap.Variant = upper
		case tokenIn(assets.LODs, upper):
			tmap.LOD = upper
		case tokenIn(assets.Workflows, upper):
			result.Workflow = upper
		}
	}

	if tmap.MapType == "" || tmap.MapType == assets.MapUnknown || tmap.Size == "" {
		return classified{}, false
	}
	result.Map = &tmap
	return result, true
}

// UpdateFromDirectory re-scans one asset's directory and merges every
// recognized file into the asset's payload. Returns the number of files
// registered.
func (idx *AssetIndex) UpdateFromDirectory(assetID int, dir string) (int, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return 0, err
	}

	maps := map[string][]assets.TextureMap{}
	var meshes []assets.ModelMesh
	count := 0

	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			log.WithError(err).Debugf("Skipping unreadable path %s", path)
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		found, ok := classifyFile(filepath.Dir(path), entry.Name())
		if !ok {
			return nil
		}
		if found.Mesh != nil {
			meshes = append(meshes, *found.Mesh)
			count++
		}
		if found.Map != nil {
			maps[found.Workflow] = append(maps[found.Workflow], *found.Map)
			count++
		}
		return nil
	})
	if walkErr != nil {
		return 0, walkErr
	}
	if count == 0 {
		return 0, nil
	}

	update := &assets.AssetData{
		AssetID:   asset.AssetID,
		AssetType: asset.AssetType,
		AssetName: asset.AssetName,
		IsLocal:   assets.Bool(true),
	}
	switch asset.AssetType {
	case assets.TypeTexture:
		update.Texture = &assets.Texture{Maps: maps}
	case assets.TypeModel:
		update.Model = &assets.Model{
			Meshes:  meshes,
			Texture: &assets.Texture{Maps: maps},
		}
	case assets.TypeHDRI:
		bg := map[string][]assets.TextureMap{}
		light := map[string][]assets.TextureMap{}
		for workflow, found := range maps {
			for _, m := range found {
				if m.MapType == assets.MapLight {
					light[workflow] = append(light[workflow], m)
				} else {
					bg[workflow] = append(bg[workflow], m)
				}
			}
		}
		update.Hdri = &assets.Hdri{
			Bg:    &assets.Texture{Maps: bg},
			Light: &assets.Texture{Maps: light},
		}
	case assets.TypeBrush:
		update.Brush = &assets.Brush{Alpha: &assets.Texture{Maps: maps}}
	}

	if err := idx.UpdateAsset(update, false); err != nil {
		return 0, err
	}
	idx.mu.Lock()
	if asset.DownloadedAt == 0 {
		asset.DownloadedAt = time.Now().UTC().Unix()
	}
	idx.mu.Unlock()
	return count, nil
}

// ScanReport summarizes a full-library rescan.
type ScanReport struct {
	MatchedAssets      int
	UnmatchedDirs      []string
	AssetsWithoutFiles []int
}

// UpdateAllLocalAssets walks the library directories and re-scans every
// directory whose name matches an indexed asset. Directories are visited
// in reverse order so files in higher-priority libraries, scanned last,
// win slot conflicts.
func (idx *AssetIndex) UpdateAllLocalAssets(libraryDirs []string) ScanReport {
	byName := map[string]int{}
	idx.mu.RLock()
	for id, asset := range idx.allAssets {
		byName[strings.ToLower(asset.AssetName)] = id
	}
	idx.mu.RUnlock()

	report := ScanReport{}
	matched := map[int]bool{}
	fileCounts := map[int]int{}

	for i := len(libraryDirs) - 1; i >= 0; i-- {
		libDir := libraryDirs[i]
		entries, err := os.ReadDir(libDir)
		if err != nil {
			log.WithError(err).Warnf("Cannot read library directory %s", libDir)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			assetID, ok := byName[strings.ToLower(entry.Name())]
			if !ok {
				report.UnmatchedDirs = append(report.UnmatchedDirs, filepath.Join(libDir, entry.Name()))
				continue
			}
			matched[assetID] = true
			count, err := idx.UpdateFromDirectory(assetID, filepath.Join(libDir, entry.Name()))
			if err != nil {
				log.WithError(err).Warnf("Rescan of asset %d failed", assetID)
				continue
			}
			fileCounts[assetID] += count
		}
	}

	report.MatchedAssets = len(matched)
	for assetID := range matched {
		if fileCounts[assetID] == 0 {
			report.AssetsWithoutFiles = append(report.AssetsWithoutFiles, assetID)
		}
	}
	return report
}

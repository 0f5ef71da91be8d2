package assetindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go-asset-sync/internal/assets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyFile(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		ok       bool
		mapType  assets.MapType
		size     string
		variant  string
		lod      string
		workflow string
		mesh     bool
	}{
		{
			name: "Plain color map", filename: "RustyMetal001_COL_4K.png",
			ok: true, mapType: assets.MapCol, size: "4K", workflow: "REGULAR",
		},
		{
			name: "Workflow and variant", filename: "RustyMetal001_METALNESS_COL_2K_VAR2.tif",
			ok: true, mapType: assets.MapCol, size: "2K", variant: "VAR2", workflow: "METALNESS",
		},
		{
			name: "Sixteen bit normal with LOD", filename: "ArmChair042_NRM16_4K_LOD1.png",
			ok: true, mapType: assets.MapNrm16, size: "4K", lod: "LOD1", workflow: "REGULAR",
		},
		{
			name: "HDRI lighting", filename: "CloudySky033_HDR_8K.exr",
			ok: true, mapType: assets.MapLight, size: "8K", workflow: "REGULAR",
		},
		{
			name: "HDRI background", filename: "CloudySky033_JPG_8K.jpg",
			ok: true, mapType: assets.MapEnv, size: "8K", workflow: "REGULAR",
		},
		{
			name: "Mesh with LOD", filename: "ArmChair042_LOD1.fbx",
			ok: true, mesh: true, lod: "LOD1",
		},
		{
			name: "Mesh without LOD is source", filename: "ArmChair042.blend",
			ok: true, mesh: true, lod: "SOURCE",
		},
		{
			name: "Lone metalness token is the map", filename: "RustyMetal001_METALNESS_2K.png",
			ok: true, mapType: assets.MapMetalness, size: "2K", workflow: "REGULAR",
		},
		{
			name: "Doubled metalness token is workflow then map", filename: "RustyMetal001_METALNESS_METALNESS_2K.png",
			ok: true, mapType: assets.MapMetalness, size: "2K", workflow: "METALNESS",
		},
		{name: "Preview render", filename: "RustyMetal001_sphere.jpg", ok: false},
		{name: "No size token", filename: "RustyMetal001_COL.png", ok: false},
		{name: "No map type token", filename: "RustyMetal001_4K.png", ok: false},
		{name: "Unrelated file", filename: "readme.txt", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := classifyFile("/lib/Asset", tt.filename)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			if tt.mesh {
				require.NotNil(t, result.Mesh)
				assert.Equal(t, tt.lod, result.Mesh.LOD)
				return
			}
			require.NotNil(t, result.Map)
			assert.Equal(t, tt.mapType, result.Map.MapType)
			assert.Equal(t, tt.size, result.Map.Size)
			assert.Equal(t, tt.variant, result.Map.Variant)
			assert.Equal(t, tt.lod, result.Map.LOD)
			assert.Equal(t, tt.workflow, result.Workflow)
		})
	}
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0700))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}
}

func TestUpdateFromDirectory(t *testing.T) {
	idx := NewAssetIndex()
	idx.PopulateAssets(QueryKey{Tab: TabOnline, Chunk: 1}, []json.RawMessage{json.RawMessage(textureItem)}, false)

	dir := filepath.Join(t.TempDir(), "RustyMetal001")
	writeFiles(t, dir,
		"RustyMetal001_METALNESS_COL_4K.png",
		"RustyMetal001_METALNESS_NRM_4K.png",
		"RustyMetal001_sphere.jpg",
		"notes.txt",
	)

	count, err := idx.UpdateFromDirectory(101, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	asset, err := idx.LoadAsset(101)
	require.NoError(t, err)
	require.NotNil(t, asset.IsLocal)
	assert.True(t, *asset.IsLocal)
	assert.NotZero(t, asset.DownloadedAt)
	assert.Len(t, asset.Texture.Maps["METALNESS"], 2)

	files, err := idx.GetAssetFiles(101)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestLocalSizes(t *testing.T) {
	idx := NewAssetIndex()
	idx.PopulateAssets(QueryKey{Tab: TabOnline, Chunk: 1}, []json.RawMessage{json.RawMessage(textureItem)}, false)

	dir := filepath.Join(t.TempDir(), "RustyMetal001")
	writeFiles(t, dir,
		"RustyMetal001_METALNESS_COL_4K.png",
		"RustyMetal001_METALNESS_NRM_4K.png",
		"RustyMetal001_METALNESS_METALNESS_4K.png",
		"RustyMetal001_METALNESS_COL_2K.png",
	)

	_, err := idx.UpdateFromDirectory(101, dir)
	require.NoError(t, err)

	// 4K has every METALNESS map, 2K only the color map.
	local, err := idx.LocalSizes(101, "METALNESS", false)
	require.NoError(t, err)
	assert.True(t, local["4K"])
	assert.False(t, local["2K"])
	assert.False(t, local["1K"])
	assert.False(t, local["8K"])
}

func TestUpdateFromDirectoryModel(t *testing.T) {
	idx := NewAssetIndex()
	idx.PopulateAssets(QueryKey{Tab: TabOnline, Chunk: 1}, []json.RawMessage{json.RawMessage(modelItem)}, false)

	dir := filepath.Join(t.TempDir(), "ArmChair042")
	writeFiles(t, dir,
		"ArmChair042.fbx",
		"ArmChair042_LOD1.fbx",
		"ArmChair042_METALNESS_COL_4K.png",
	)

	count, err := idx.UpdateFromDirectory(303, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	asset, err := idx.LoadAsset(303)
	require.NoError(t, err)
	require.Len(t, asset.Model.Meshes, 2)
	assert.NotNil(t, asset.Model.Mesh("SOURCE"))
	assert.NotNil(t, asset.Model.Mesh("LOD1"))

	local, err := idx.LocalLODs(303)
	require.NoError(t, err)
	assert.True(t, local["SOURCE"])
	assert.False(t, local["LOD0"])
	assert.True(t, local["LOD1"])
}

func TestUpdateAllLocalAssets(t *testing.T) {
	idx := NewAssetIndex()
	idx.PopulateAssets(QueryKey{Tab: TabMyAssets, Chunk: 1}, []json.RawMessage{
		json.RawMessage(textureItem),
		json.RawMessage(hdriItem),
	}, false)

	lib := t.TempDir()
	writeFiles(t, filepath.Join(lib, "RustyMetal001"), "RustyMetal001_METALNESS_COL_4K.png")
	writeFiles(t, filepath.Join(lib, "CloudySky033"),
		"CloudySky033_JPG_4K.jpg", "CloudySky033_HDR_4K.exr")
	writeFiles(t, filepath.Join(lib, "SomeStrayFolder"), "whatever.txt")

	report := idx.UpdateAllLocalAssets([]string{lib})

	assert.Equal(t, 2, report.MatchedAssets)
	require.Len(t, report.UnmatchedDirs, 1)
	assert.Contains(t, report.UnmatchedDirs[0], "SomeStrayFolder")
	assert.Empty(t, report.AssetsWithoutFiles)

	hdri, err := idx.LoadAsset(202)
	require.NoError(t, err)
	assert.Len(t, hdri.Hdri.Bg.Maps["REGULAR"], 1)
	assert.Len(t, hdri.Hdri.Light.Maps["REGULAR"], 1)
}

func TestUpdateAllLocalAssetsEmptyMatch(t *testing.T) {
	idx := NewAssetIndex()
	idx.PopulateAssets(QueryKey{Tab: TabMyAssets, Chunk: 1}, []json.RawMessage{json.RawMessage(textureItem)}, false)

	lib := t.TempDir()
	// Directory matches the asset but holds nothing usable.
	writeFiles(t, filepath.Join(lib, "RustyMetal001"), "readme.txt")

	report := idx.UpdateAllLocalAssets([]string{lib})
	assert.Equal(t, 1, report.MatchedAssets)
	assert.Equal(t, []int{101}, report.AssetsWithoutFiles)
}

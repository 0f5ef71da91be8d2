package assetindex

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go-asset-sync/internal/assets"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	idx := NewAssetIndex()
	idx.PopulateAssets(QueryKey{Tab: TabOnline, Chunk: 1}, []json.RawMessage{
		json.RawMessage(textureItem),
		json.RawMessage(hdriItem),
		json.RawMessage(modelItem),
		json.RawMessage(brushItem),
	}, false)
	require.NoError(t, idx.MarkPurchased(101))

	// Register a file that exists so verification keeps it.
	dir := filepath.Join(t.TempDir(), "RustyMetal001")
	writeFiles(t, dir, "RustyMetal001_METALNESS_COL_4K.png")
	_, err := idx.UpdateFromDirectory(101, dir)
	require.NoError(t, err)

	cachePath := filepath.Join(t.TempDir(), "cache", "assets.json.gz")
	require.NoError(t, idx.SaveCache(cachePath))

	loaded := NewAssetIndex()
	require.NoError(t, loaded.LoadCache(cachePath))
	require.Equal(t, 4, loaded.NumAssets())

	for _, id := range []int{101, 202, 303, 404} {
		want, err := idx.LoadAsset(id)
		require.NoError(t, err)
		got, err := loaded.LoadAsset(id)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("asset %d differs after round trip (-want +got):\n%s", id, diff)
		}
	}

	// The query cache is not persisted.
	_, ok := loaded.CachedQuery(QueryKey{Tab: TabOnline, Chunk: 1})
	assert.False(t, ok)
}

func TestLoadCacheDropsMissingFiles(t *testing.T) {
	idx := NewAssetIndex()
	idx.PopulateAssets(QueryKey{Tab: TabOnline, Chunk: 1}, []json.RawMessage{json.RawMessage(textureItem)}, false)

	dir := filepath.Join(t.TempDir(), "RustyMetal001")
	writeFiles(t, dir,
		"RustyMetal001_METALNESS_COL_4K.png",
		"RustyMetal001_METALNESS_NRM_4K.png",
	)
	_, err := idx.UpdateFromDirectory(101, dir)
	require.NoError(t, err)

	cachePath := filepath.Join(t.TempDir(), "assets.json.gz")
	require.NoError(t, idx.SaveCache(cachePath))

	// One file vanishes between save and load.
	require.NoError(t, os.Remove(filepath.Join(dir, "RustyMetal001_METALNESS_NRM_4K.png")))

	loaded := NewAssetIndex()
	require.NoError(t, loaded.LoadCache(cachePath))

	asset, err := loaded.LoadAsset(101)
	require.NoError(t, err)
	require.Len(t, asset.Texture.Maps["METALNESS"], 1)
	assert.Equal(t, assets.MapCol, asset.Texture.Maps["METALNESS"][0].MapType)
	require.NotNil(t, asset.IsLocal)
	assert.True(t, *asset.IsLocal)
}

func TestLoadCacheRecomputesLocality(t *testing.T) {
	idx := NewAssetIndex()
	idx.PopulateAssets(QueryKey{Tab: TabOnline, Chunk: 1}, []json.RawMessage{json.RawMessage(textureItem)}, false)

	dir := filepath.Join(t.TempDir(), "RustyMetal001")
	writeFiles(t, dir, "RustyMetal001_METALNESS_COL_4K.png")
	_, err := idx.UpdateFromDirectory(101, dir)
	require.NoError(t, err)

	cachePath := filepath.Join(t.TempDir(), "assets.json.gz")
	require.NoError(t, idx.SaveCache(cachePath))

	// Every file vanishes; the asset is no longer local.
	require.NoError(t, os.RemoveAll(dir))

	loaded := NewAssetIndex()
	require.NoError(t, loaded.LoadCache(cachePath))

	asset, err := loaded.LoadAsset(101)
	require.NoError(t, err)
	require.NotNil(t, asset.IsLocal)
	assert.False(t, *asset.IsLocal)
	assert.Empty(t, asset.Texture.Maps)
}

func TestLoadCacheMissingFile(t *testing.T) {
	idx := NewAssetIndex()
	err := idx.LoadCache(filepath.Join(t.TempDir(), "nope.json.gz"))
	assert.Error(t, err)
}

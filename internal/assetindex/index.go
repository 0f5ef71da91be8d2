package assetindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-asset-sync/internal/assets"

	log "github.com/sirupsen/logrus"
)

// Sentinel errors of asset construction and lookup.
var (
	ErrUnsupportedType = errors.New("unsupported asset type")
	ErrDecode          = errors.New("failed to decode catalog asset")
	ErrAssetNotFound   = errors.New("asset not found in index")
)

// QueryKey identifies one cached catalog query. Chunk is the page
// number, ChunkSize the page length the query was fetched with.
type QueryKey struct {
	Tab       string
	Type      assets.AssetType
	Category  string
	Search    string
	Chunk     int
	ChunkSize int
}

// Tab names used for query caching.
const (
	TabOnline   = "online"
	TabMyAssets = "my_assets"
	TabImported = "imported"
)

// AssetIndex is the in-memory asset catalog: every asset known locally
// or fetched from the server, plus a cache of query results. Safe for
// concurrent use.
type AssetIndex struct {
	mu            sync.RWMutex
	allAssets     map[int]*assets.AssetData
	cachedQueries map[QueryKey][]int
}

func NewAssetIndex() *AssetIndex {
	return &AssetIndex{
		allAssets:     map[int]*assets.AssetData{},
		cachedQueries: map[QueryKey][]int{},
	}
}

// catalogAsset is the wire shape of one asset in the catalog endpoints.
type catalogAsset struct {
	ID              int              `json:"id"`
	AssetName       string           `json:"asset_name"`
	Name            string           `json:"name"`
	Type            string           `json:"type"`
	Categories      []string         `json:"categories"`
	URL             string           `json:"url"`
	Slug            string           `json:"slug"`
	Credits         *int             `json:"credit"`
	Previews        []string         `json:"previews"`
	PublishedAt     string           `json:"published_at"`
	Purchased       bool             `json:"purchased"`
	Sizes           []string         `json:"sizes"`
	Lods            []string         `json:"lods"`
	Variants        []string         `json:"variants"`
	WatermarkedURLs []string         `json:"watermarked_urls"`
	RenderSchema    []workflowSchema `json:"render_schema"`
}

type workflowSchema struct {
	Workflow string      `json:"workflow"`
	Types    []mapSchema `json:"types"`
}

type mapSchema struct {
	TypeCode        string   `json:"type_code"`
	TypeName        string   `json:"type_name"`
	FilenamePreview string   `json:"file_name_preview"`
	Sizes           []string `json:"sizes"`
	Variants        []string `json:"variants"`
}

// mapDescs converts a render schema into per-workflow map descriptions,
// optionally keeping only the codes listed in only.
func mapDescs(schema []workflowSchema, only ...string) map[string][]assets.TextureMapDesc {
	keep := func(code string) bool {
		if len(only) == 0 {
			return true
		}
		for _, c := range only {
			if c == code {
				return true
			}
		}
		return false
	}

	descs := map[string][]assets.TextureMapDesc{}
	for _, wf := range schema {
		workflow := wf.Workflow
		if workflow == "" {
			workflow = "REGULAR"
		}
		for _, m := range wf.Types {
			if !keep(m.TypeCode) {
				continue
			}
			descs[workflow] = append(descs[workflow], assets.TextureMapDesc{
				DisplayName:     m.TypeName,
				FilenamePreview: m.FilenamePreview,
				MapTypeCode:     m.TypeCode,
				Sizes:           m.Sizes,
				Variants:        m.Variants,
			})
		}
	}
	if len(descs) == 0 {
		return nil
	}
	return descs
}

// ConstructAsset builds an AssetData from one raw catalog item. A type
// the client has no support for yields ErrUnsupportedType; a malformed
// item yields ErrDecode. Neither is fatal for the surrounding page.
func ConstructAsset(raw json.RawMessage) (*assets.AssetData, error) {
	var item catalogAsset
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if item.ID == 0 {
		return nil, fmt.Errorf("%w: missing asset id", ErrDecode)
	}

	assetType := assets.TypeFromAPI(item.Type)
	if assetType == assets.TypeUnsupported || assetType == assets.TypeSubstance {
		return nil, fmt.Errorf("%w: %s (asset %d)", ErrUnsupportedType, item.Type, item.ID)
	}

	name := item.AssetName
	if name == "" {
		name = item.Name
	}

	asset := &assets.AssetData{
		AssetID:     item.ID,
		AssetType:   assetType,
		AssetName:   name,
		DisplayName: item.Name,
		Categories:  item.Categories,
		URL:         item.URL,
		Slug:        item.Slug,
		Credits:     item.Credits,
		ThumbURLs:   item.Previews,
		PublishedAt: item.PublishedAt,
	}
	if item.Purchased {
		asset.IsPurchased = assets.Bool(true)
	}

	switch assetType {
	case assets.TypeTexture:
		asset.Texture = &assets.Texture{
			MapDescs:        mapDescs(item.RenderSchema),
			Sizes:           item.Sizes,
			Variants:        item.Variants,
			LODs:            item.Lods,
			WatermarkedURLs: item.WatermarkedURLs,
		}
	case assets.TypeModel:
		asset.Model = &assets.Model{
			LODs:  item.Lods,
			Sizes: item.Sizes,
			Texture: &assets.Texture{
				MapDescs: mapDescs(item.RenderSchema),
				Sizes:    item.Sizes,
			},
		}
	case assets.TypeHDRI:
		asset.Hdri = &assets.Hdri{
			Bg:    &assets.Texture{MapDescs: mapDescs(item.RenderSchema, "JPG"), Sizes: item.Sizes},
			Light: &assets.Texture{MapDescs: mapDescs(item.RenderSchema, "HDR"), Sizes: item.Sizes},
		}
	case assets.TypeBrush:
		asset.Brush = &assets.Brush{
			Alpha: &assets.Texture{
				MapDescs: mapDescs(item.RenderSchema),
				Sizes:    item.Sizes,
			},
		}
	}
	return asset, nil
}

// LoadAsset returns the asset with the given ID, or ErrAssetNotFound.
func (idx *AssetIndex) LoadAsset(assetID int) (*assets.AssetData, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	asset, ok := idx.allAssets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrAssetNotFound, assetID)
	}
	return asset, nil
}

// NumAssets returns the number of assets in the index.
func (idx *AssetIndex) NumAssets() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.allAssets)
}

// AllAssetIDs returns the IDs of every indexed asset.
func (idx *AssetIndex) AllAssetIDs() []int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]int, 0, len(idx.allAssets))
	for id := range idx.allAssets {
		ids = append(ids, id)
	}
	return ids
}

// UpdateAsset merges update into the stored asset, inserting it when the
// index has no asset with that ID yet.
func (idx *AssetIndex) UpdateAsset(update *assets.AssetData, purgeMaps bool) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	existing, ok := idx.allAssets[update.AssetID]
	if !ok {
		idx.allAssets[update.AssetID] = update
		return nil
	}
	return existing.Update(update, purgeMaps)
}

// MarkPurchased flags an asset as purchased, stamping the purchase time.
func (idx *AssetIndex) MarkPurchased(assetID int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	asset, ok := idx.allAssets[assetID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrAssetNotFound, assetID)
	}
	asset.IsPurchased = assets.Bool(true)
	asset.PurchasedAt = time.Now().UTC().Unix()
	return nil
}

// MarkDownloaded flags an asset as locally available, stamping the
// download time.
func (idx *AssetIndex) MarkDownloaded(assetID int) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	asset, ok := idx.allAssets[assetID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrAssetNotFound, assetID)
	}
	asset.IsLocal = assets.Bool(true)
	asset.DownloadedAt = time.Now().UTC().Unix()
	return nil
}

// PopulateAssets merges one page of catalog items into the index and
// caches the page under key. Items of unsupported types or with decode
// problems are skipped with a log line. When key.Tab is the purchased
// tab, every asset on the page is marked purchased.
func (idx *AssetIndex) PopulateAssets(key QueryKey, items []json.RawMessage, purgeMaps bool) int {
	ids := make([]int, 0, len(items))
	for _, raw := range items {
		asset, err := ConstructAsset(raw)
		if err != nil {
			if errors.Is(err, ErrUnsupportedType) {
				log.Debugf("Skipping catalog item: %v", err)
			} else {
				log.WithError(err).Warn("Skipping undecodable catalog item")
			}
			continue
		}
		if key.Tab == TabMyAssets {
			asset.IsPurchased = assets.Bool(true)
		}
		if err := idx.UpdateAsset(asset, purgeMaps); err != nil {
			log.WithError(err).Warnf("Failed to merge catalog asset %d", asset.AssetID)
			continue
		}
		ids = append(ids, asset.AssetID)
	}

	idx.mu.Lock()
	idx.cachedQueries[key] = ids
	idx.mu.Unlock()
	return len(ids)
}

// CachedQuery returns the assets of a previously stored query, or nil
// and false when the query was never cached. A miss is not an error;
// the caller decides whether to fetch.
func (idx *AssetIndex) CachedQuery(key QueryKey) ([]*assets.AssetData, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids, ok := idx.cachedQueries[key]
	if !ok {
		return nil, false
	}
	result := make([]*assets.AssetData, 0, len(ids))
	for _, id := range ids {
		if asset, ok := idx.allAssets[id]; ok {
			result = append(result, asset)
		}
	}
	return result, true
}

// StoreQuery caches a list of asset IDs under key.
func (idx *AssetIndex) StoreQuery(key QueryKey, ids []int) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cachedQueries[key] = append([]int(nil), ids...)
}

// FlushQueries drops the whole query cache. Asset data is kept.
func (idx *AssetIndex) FlushQueries() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cachedQueries = map[QueryKey][]int{}
}

// Typed accessors. They resolve the asset and delegate to its payload.

func (idx *AssetIndex) GetAssetWorkflowList(assetID int) ([]string, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return nil, err
	}
	return asset.WorkflowList(), nil
}

func (idx *AssetIndex) GetAssetWorkflow(assetID int, want string) (string, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return "", err
	}
	return asset.Workflow(want), nil
}

func (idx *AssetIndex) GetAssetSizeList(assetID int) ([]string, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return nil, err
	}
	return asset.SizeList(), nil
}

// GetAssetSize resolves the requested size against the asset, falling
// back to the nearest available size.
func (idx *AssetIndex) GetAssetSize(assetID int, want string) (string, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return "", err
	}
	return asset.Size(want)
}

func (idx *AssetIndex) GetAssetVariantList(assetID int) ([]string, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return nil, err
	}
	switch {
	case asset.AssetType == assets.TypeTexture && asset.Texture != nil:
		return asset.Texture.VariantList(), nil
	case asset.AssetType == assets.TypeModel && asset.Model != nil:
		return asset.Model.Variants, nil
	}
	return nil, nil
}

// GetAssetLOD resolves the requested LOD for a model asset.
func (idx *AssetIndex) GetAssetLOD(assetID int, want string) (string, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return "", err
	}
	if asset.AssetType != assets.TypeModel || asset.Model == nil {
		return "", fmt.Errorf("asset %d has no LODs", assetID)
	}
	return asset.Model.LOD(want), nil
}

// GetAssetFiles lists every registered local file of an asset with a
// short attribute description per path.
func (idx *AssetIndex) GetAssetFiles(assetID int) (map[string]string, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return nil, err
	}
	return asset.Files(), nil
}

// LocalSizes reports, per size the asset advertises, whether all maps of
// the given workflow are present locally in that size.
func (idx *AssetIndex) LocalSizes(assetID int, workflow string, prefer16Bit bool) (map[string]bool, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return nil, err
	}

	var tex *assets.Texture
	switch asset.AssetType {
	case assets.TypeTexture:
		tex = asset.Texture
	case assets.TypeBrush:
		if asset.Brush != nil {
			tex = asset.Brush.Alpha
		}
	case assets.TypeHDRI:
		if asset.Hdri != nil {
			tex = asset.Hdri.Bg
		}
	case assets.TypeModel:
		if asset.Model != nil {
			tex = asset.Model.Texture
		}
	}
	if tex == nil {
		return nil, fmt.Errorf("asset %d has no texture payload", assetID)
	}

	local := map[string]bool{}
	for _, size := range tex.SizeList() {
		local[size] = tex.IsLocal(workflow, size, prefer16Bit)
	}
	return local, nil
}

// LocalLODs reports, per LOD of a model asset, whether a mesh file is
// registered for it.
func (idx *AssetIndex) LocalLODs(assetID int) (map[string]bool, error) {
	asset, err := idx.LoadAsset(assetID)
	if err != nil {
		return nil, err
	}
	if asset.AssetType != assets.TypeModel || asset.Model == nil {
		return nil, fmt.Errorf("asset %d has no LODs", assetID)
	}

	local := map[string]bool{}
	for _, lod := range asset.Model.LODs {
		local[lod] = asset.Model.Mesh(lod) != nil
	}
	return local, nil
}

package assets

import (
	"fmt"
)

// AssetData is the canonical record for one marketplace asset.
// AssetID, AssetType and AssetName are immutable after construction.
// Exactly one of Brush/Hdri/Model/Texture is populated, matching AssetType.
type AssetData struct {
	AssetID   int       `json:"asset_id"`
	AssetType AssetType `json:"asset_type"`
	// AssetName is the stable on-disk directory and file stem name.
	AssetName string `json:"asset_name"`
	// DisplayName is the beauty name for presentation.
	DisplayName string   `json:"display_name,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	URL         string   `json:"url,omitempty"`
	Slug        string   `json:"slug,omitempty"`
	Credits     *int     `json:"credits,omitempty"`
	ThumbURLs   []string `json:"thumb_urls,omitempty"`
	PublishedAt string   `json:"published_at,omitempty"`

	// IsLocal and IsPurchased are nil until proven true or false.
	IsLocal      *bool `json:"is_local,omitempty"`
	DownloadedAt int64 `json:"downloaded_at,omitempty"` // UTC seconds since epoch
	IsPurchased  *bool `json:"is_purchased,omitempty"`
	PurchasedAt  int64 `json:"purchased_at,omitempty"` // UTC seconds since epoch

	Brush   *Brush   `json:"brush,omitempty"`
	Hdri    *Hdri    `json:"hdri,omitempty"`
	Model   *Model   `json:"model,omitempty"`
	Texture *Texture `json:"texture,omitempty"`
}

// Bool returns a pointer to b, for the tri-state flags.
func Bool(b bool) *bool {
	return &b
}

// Update merges non-nil fields of other into a. AssetID, AssetType and
// AssetName must match; they are never changed.
func (a *AssetData) Update(other *AssetData, purgeMaps bool) error {
	if other.AssetID != a.AssetID {
		return fmt.Errorf("cannot change asset ID (%d to %d)", a.AssetID, other.AssetID)
	}
	if other.AssetName != a.AssetName {
		return fmt.Errorf("cannot change asset name (%s to %s)", a.AssetName, other.AssetName)
	}
	if other.AssetType != a.AssetType {
		return fmt.Errorf("cannot change asset type (%s to %s)", a.AssetType, other.AssetType)
	}

	if other.DisplayName != "" {
		a.DisplayName = other.DisplayName
	}
	if other.Categories != nil {
		a.Categories = other.Categories
	}
	if other.URL != "" {
		a.URL = other.URL
	}
	if other.Slug != "" {
		a.Slug = other.Slug
	}
	if other.Credits != nil {
		a.Credits = other.Credits
	}
	if other.ThumbURLs != nil {
		a.ThumbURLs = other.ThumbURLs
	}
	if other.PublishedAt != "" {
		a.PublishedAt = other.PublishedAt
	}
	if other.IsLocal != nil {
		a.IsLocal = other.IsLocal
	}
	if other.DownloadedAt != 0 {
		a.DownloadedAt = other.DownloadedAt
	}
	if other.IsPurchased != nil {
		a.IsPurchased = other.IsPurchased
	}
	if other.PurchasedAt != 0 {
		a.PurchasedAt = other.PurchasedAt
	}

	switch a.AssetType {
	case TypeBrush:
		if a.Brush == nil {
			a.Brush = other.Brush
		} else {
			a.Brush.Update(other.Brush, purgeMaps)
		}
	case TypeHDRI:
		if a.Hdri == nil {
			a.Hdri = other.Hdri
		} else {
			a.Hdri.Update(other.Hdri, purgeMaps)
		}
	case TypeModel:
		if a.Model == nil {
			a.Model = other.Model
		} else {
			a.Model.Update(other.Model, purgeMaps)
		}
	case TypeTexture:
		if a.Texture == nil {
			a.Texture = other.Texture
		} else {
			a.Texture.Update(other.Texture, purgeMaps)
		}
	}
	return nil
}

// WorkflowList returns the available workflows of the type payload.
func (a *AssetData) WorkflowList() []string {
	switch a.AssetType {
	case TypeBrush:
		return a.Brush.WorkflowList()
	case TypeHDRI:
		return a.Hdri.WorkflowList()
	case TypeModel:
		return a.Model.WorkflowList()
	case TypeTexture:
		return a.Texture.WorkflowList()
	}
	return nil
}

// Workflow resolves the requested workflow against the type payload.
func (a *AssetData) Workflow(want string) string {
	switch a.AssetType {
	case TypeBrush:
		return a.Brush.Workflow(want)
	case TypeHDRI:
		return a.Hdri.Workflow(want)
	case TypeModel:
		return a.Model.Workflow(want)
	case TypeTexture:
		return a.Texture.Workflow(want)
	}
	return ""
}

// SizeList returns the available sizes of the type payload.
func (a *AssetData) SizeList() []string {
	switch a.AssetType {
	case TypeBrush:
		return a.Brush.SizeList()
	case TypeHDRI:
		return a.Hdri.SizeList()
	case TypeModel:
		return a.Model.SizeList()
	case TypeTexture:
		return a.Texture.SizeList()
	}
	return nil
}

// Size resolves the requested size against the type payload, falling
// back to the nearest available one.
func (a *AssetData) Size(want string) (string, error) {
	switch a.AssetType {
	case TypeBrush:
		return a.Brush.Size(want)
	case TypeHDRI:
		return a.Hdri.Size(want)
	case TypeModel:
		return a.Model.Size(want)
	case TypeTexture:
		return a.Texture.Size(want)
	}
	return "", fmt.Errorf("asset %d has no sized payload", a.AssetID)
}

// MapTypeCodeList returns the API type codes a workflow needs, for the
// image-based asset types.
func (a *AssetData) MapTypeCodeList(workflow string) ([]string, error) {
	switch a.AssetType {
	case TypeBrush:
		return a.Brush.Alpha.MapTypeCodeList(workflow)
	case TypeHDRI:
		return a.Hdri.MapTypeCodeList(workflow)
	case TypeTexture:
		return a.Texture.MapTypeCodeList(workflow)
	}
	return nil, fmt.Errorf("asset type %s has no map type codes", a.AssetType)
}

// Files returns every registered local file of the asset,
// keyed by path with an attribute description as value.
func (a *AssetData) Files() map[string]string {
	files := map[string]string{}
	switch a.AssetType {
	case TypeBrush:
		if a.Brush != nil {
			a.Brush.Files(files)
		}
	case TypeHDRI:
		if a.Hdri != nil {
			a.Hdri.Files(files)
		}
	case TypeModel:
		if a.Model != nil {
			a.Model.Files(files)
		}
	case TypeTexture:
		if a.Texture != nil {
			a.Texture.Files(files)
		}
	}
	return files
}

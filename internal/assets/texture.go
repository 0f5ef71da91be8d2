package assets

import (
	"fmt"
	"path/filepath"
)

// TextureMap is one concrete texture file on disk. Instances exist only
// for files that were actually downloaded and found; they are never
// created speculatively.
type TextureMap struct {
	Directory string  `json:"directory"`
	Filename  string  `json:"filename"`
	LOD       string  `json:"lod,omitempty"`
	MapType   MapType `json:"map_type"`
	Size      string  `json:"size"`
	Variant   string  `json:"variant,omitempty"`
}

// MapKey identifies the "slot" a texture map occupies. Two maps with equal
// keys are the same slot regardless of filename, which is what makes
// re-downloads overwrite instead of duplicate.
type MapKey struct {
	MapType MapType
	Size    string
	Variant string
	LOD     string
}

func (m TextureMap) Key() MapKey {
	return MapKey{MapType: m.MapType, Size: m.Size, Variant: m.Variant, LOD: m.LOD}
}

func (m TextureMap) Path() string {
	return filepath.Join(m.Directory, m.Filename)
}

// TextureMapDesc describes one map channel as advertised by the remote
// catalog, before any file exists locally.
type TextureMapDesc struct {
	DisplayName     string   `json:"display_name"`
	FilenamePreview string   `json:"filename_preview"`
	MapTypeCode     string   `json:"map_type_code"`
	Sizes           []string `json:"sizes"`
	Variants        []string `json:"variants"`
}

func (d TextureMapDesc) MapType() MapType {
	return MapTypeFromCode(d.MapTypeCode)
}

// Texture is the type payload for texture assets. Maps are grouped by
// workflow; Sizes/Variants/LODs are the union over all channels and are
// not guaranteed to exist in every channel.
type Texture struct {
	LODs            []string                    `json:"lods,omitempty"`
	MapDescs        map[string][]TextureMapDesc `json:"map_descs,omitempty"`
	Maps            map[string][]TextureMap     `json:"maps,omitempty"`
	Sizes           []string                    `json:"sizes,omitempty"`
	Variants        []string                    `json:"variants,omitempty"`
	WatermarkedURLs []string                    `json:"watermarked_urls,omitempty"`
}

// preferredSuffixes orders file formats for de-duplication when multiple
// files serve the same map slot.
var preferredSuffixes = []string{".png", ".tif", ".jpg", ".psd"}

// Update merges non-nil fields of other into t. Existing map entries are
// matched by slot key and have their filename refreshed in place; with
// purgeMaps the map collection is reset before merging.
func (t *Texture) Update(other *Texture, purgeMaps bool) {
	if other == nil {
		return
	}
	if other.MapDescs != nil {
		t.MapDescs = other.MapDescs
	}
	if other.Sizes != nil {
		t.Sizes = other.Sizes
	}
	if other.Variants != nil {
		t.Variants = other.Variants
	}
	if other.LODs != nil {
		t.LODs = other.LODs
	}
	if other.WatermarkedURLs != nil {
		t.WatermarkedURLs = other.WatermarkedURLs
	}

	if purgeMaps {
		t.Maps = map[string][]TextureMap{}
	}
	if t.Maps == nil {
		t.Maps = map[string][]TextureMap{}
	}

	for workflow, newMaps := range other.Maps {
		existing, ok := t.Maps[workflow]
		if !ok {
			t.Maps[workflow] = newMaps
			continue
		}
		byKey := map[MapKey]int{}
		for i, m := range existing {
			byKey[m.Key()] = i
		}
		for _, newMap := range newMaps {
			if i, ok := byKey[newMap.Key()]; ok {
				existing[i].Filename = newMap.Filename
				existing[i].Directory = newMap.Directory
			} else {
				existing = append(existing, newMap)
			}
		}
		t.Maps[workflow] = existing
	}
}

// WorkflowList returns all workflows advertised by the catalog.
func (t *Texture) WorkflowList() []string {
	workflows := make([]string, 0, len(t.MapDescs))
	for w := range t.MapDescs {
		workflows = append(workflows, w)
	}
	return workflows
}

// Workflow verifies the requested workflow is available and falls back to
// METALNESS, then REGULAR, then any.
func (t *Texture) Workflow(want string) string {
	if _, ok := t.MapDescs[want]; ok {
		return want
	}
	if _, ok := t.MapDescs["METALNESS"]; ok {
		return "METALNESS"
	}
	if _, ok := t.MapDescs["REGULAR"]; ok {
		return "REGULAR"
	}
	for w := range t.MapDescs {
		return w
	}
	return ""
}

func (t *Texture) SizeList() []string {
	return t.Sizes
}

// Size verifies the requested size is available, otherwise returns the
// closest one by index distance in the canonical size list. "WM"
// (watermarked) always passes through.
func (t *Texture) Size(want string) (string, error) {
	if want == "WM" || contains(t.Sizes, want) {
		return want, nil
	}
	if best := ClosestSize(want, t.Sizes); best != "" {
		return best, nil
	}
	return "", fmt.Errorf("no suitable size found (request: %s)", want)
}

func (t *Texture) VariantList() []string {
	return t.Variants
}

func (t *Texture) LODList() []string {
	return t.LODs
}

// MapTypeList returns the map types required by a workflow.
func (t *Texture) MapTypeList(workflow string) ([]MapType, error) {
	descs, ok := t.MapDescs[workflow]
	if !ok {
		return nil, fmt.Errorf("workflow not found: %s", workflow)
	}
	types := make([]MapType, 0, len(descs))
	for _, d := range descs {
		types = append(types, d.MapType())
	}
	return types, nil
}

// MapTypeCodeList returns the raw API type codes required by a workflow.
func (t *Texture) MapTypeCodeList(workflow string) ([]string, error) {
	descs, ok := t.MapDescs[workflow]
	if !ok {
		return nil, fmt.Errorf("workflow not found: %s", workflow)
	}
	codes := make([]string, 0, len(descs))
	for _, d := range descs {
		codes = append(codes, d.MapTypeCode)
	}
	return codes, nil
}

// GetMaps returns the set of local texture maps matching workflow, size
// and (when non-empty) lod. When both an 8-bit and a 16-bit version of a
// channel are present only one is kept, chosen by prefer16Bit. Multiple
// files per slot collapse to the preferred file format.
func (t *Texture) GetMaps(workflow, size, lod string, prefer16Bit bool) []TextureMap {
	maps, ok := t.Maps[workflow]
	if !ok {
		return nil
	}

	byType := map[MapType][]TextureMap{}
	for _, m := range maps {
		if m.Size != size {
			continue
		}
		if lod != "" && m.LOD != "" && m.LOD != lod {
			continue
		}
		byType[m.MapType] = append(byType[m.MapType], m)
	}

	dropBitDepthDupes(byType, MapBump, MapBump16, prefer16Bit)
	dropBitDepthDupes(byType, MapDisp, MapDisp16, prefer16Bit)
	dropBitDepthDupes(byType, MapNrm, MapNrm16, prefer16Bit)

	result := make([]TextureMap, 0, len(byType))
	for _, candidates := range byType {
		result = append(result, pickPreferredFormat(candidates))
	}
	return result
}

func dropBitDepthDupes(byType map[MapType][]TextureMap, low, high MapType, prefer16Bit bool) {
	_, hasLow := byType[low]
	_, hasHigh := byType[high]
	if !hasLow || !hasHigh {
		return
	}
	if prefer16Bit {
		delete(byType, low)
	} else {
		delete(byType, high)
	}
}

func pickPreferredFormat(candidates []TextureMap) TextureMap {
	if len(candidates) == 1 {
		return candidates[0]
	}
	for _, suffix := range preferredSuffixes {
		for _, m := range candidates {
			if filepath.Ext(m.Filename) == suffix {
				return m
			}
		}
	}
	return candidates[0]
}

// IsLocal reports whether every map type a workflow requires is present
// locally at the given size.
func (t *Texture) IsLocal(workflow, size string, prefer16Bit bool) bool {
	if _, ok := t.Maps[workflow]; !ok {
		return false
	}
	required, err := t.MapTypeList(workflow)
	if err != nil {
		return false
	}
	missing := map[MapType]int{}
	for _, mt := range required {
		missing[mt]++
	}
	for _, m := range t.GetMaps(workflow, size, "", prefer16Bit) {
		if missing[m.MapType] > 0 {
			missing[m.MapType]--
		}
	}
	for _, n := range missing {
		if n > 0 {
			return false
		}
	}
	return true
}

// Files adds every registered texture file to files, keyed by path with a
// short attribute description as value.
func (t *Texture) Files(files map[string]string) {
	for workflow, maps := range t.Maps {
		for _, m := range maps {
			attr := fmt.Sprintf("%s, %s, %s", workflow, m.MapType, m.Size)
			if m.LOD != "" {
				attr += ", " + m.LOD
			}
			if m.Variant != "" {
				attr += ", " + m.Variant
			}
			files[m.Path()] = attr
		}
	}
}

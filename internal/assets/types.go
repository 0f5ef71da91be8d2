package assets

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AssetType identifies the kind of marketplace asset.
type AssetType string

const (
	TypeUnsupported AssetType = "unsupported"
	TypeBrush       AssetType = "brush"
	TypeHDRI        AssetType = "hdri"
	TypeModel       AssetType = "model"
	TypeTexture     AssetType = "texture"
	// TypeSubstance exists in the remote catalog but has no local support yet.
	TypeSubstance AssetType = "substance"
)

// categoryNameToType maps the category names used by the remote API
// to asset types.
var categoryNameToType = map[string]AssetType{
	"Brushes":    TypeBrush,
	"HDRIs":      TypeHDRI,
	"Hdrs":       TypeHDRI, // legacy spelling still returned by some endpoints
	"Models":     TypeModel,
	"Substances": TypeSubstance,
	"Textures":   TypeTexture,
}

var typeToCategoryName = map[AssetType]string{
	TypeBrush:     "Brushes",
	TypeHDRI:      "HDRIs",
	TypeModel:     "Models",
	TypeSubstance: "Substances",
	TypeTexture:   "Textures",
}

// TypeFromAPI converts an API category name into an AssetType.
// Unknown names map to TypeUnsupported.
func TypeFromAPI(name string) AssetType {
	if t, ok := categoryNameToType[name]; ok {
		return t
	}
	return TypeUnsupported
}

// CategoryName returns the API-facing category name for an asset type.
func (t AssetType) CategoryName() string {
	return typeToCategoryName[t]
}

func (t AssetType) IsValid() bool {
	switch t {
	case TypeBrush, TypeHDRI, TypeModel, TypeTexture, TypeSubstance, TypeUnsupported:
		return true
	}
	return false
}

// MapType identifies a texture map channel. Values match the type codes
// used both by the remote API and in filenames on disk.
type MapType string

const (
	MapUnknown      MapType = "UNKNOWN"
	MapAlpha        MapType = "ALPHA"
	MapAlphaMasked  MapType = "ALPHAMASKED"
	MapAO           MapType = "AO"
	MapBump         MapType = "BUMP"
	MapBump16       MapType = "BUMP16"
	MapCol          MapType = "COL"
	MapDiff         MapType = "DIFF"
	MapDisp         MapType = "DISP"
	MapDisp16       MapType = "DISP16"
	MapEmissive     MapType = "EMISSIVE"
	MapEnv          MapType = "ENV" // HDRI background, typically .jpg
	MapFuzz         MapType = "FUZZ"
	MapGloss        MapType = "GLOSS"
	MapIDMap        MapType = "IDMAP"
	MapLight        MapType = "LIGHT" // HDRI lighting, typically .exr
	MapMask         MapType = "MASK"
	MapMetalness    MapType = "METALNESS"
	MapNrm          MapType = "NRM"
	MapNrm16        MapType = "NRM16"
	MapOverlay      MapType = "OVERLAY"
	MapRefl         MapType = "REFL"
	MapRoughness    MapType = "ROUGHNESS"
	MapSSS          MapType = "SSS"
	MapTranslucency MapType = "TRANSLUCENCY"
	MapTransmission MapType = "TRANSMISSION"
)

// mapTypeNames is the set of recognized map type tokens, including the
// API aliases JPG (background) and HDR (lighting).
var mapTypeNames = map[string]MapType{
	"ALPHA": MapAlpha, "ALPHAMASKED": MapAlphaMasked, "AO": MapAO,
	"BUMP": MapBump, "BUMP16": MapBump16, "COL": MapCol, "DIFF": MapDiff,
	"DISP": MapDisp, "DISP16": MapDisp16, "EMISSIVE": MapEmissive,
	"ENV": MapEnv, "JPG": MapEnv, "FUZZ": MapFuzz, "GLOSS": MapGloss,
	"IDMAP": MapIDMap, "LIGHT": MapLight, "HDR": MapLight, "MASK": MapMask,
	"METALNESS": MapMetalness, "NRM": MapNrm, "NRM16": MapNrm16,
	"OVERLAY": MapOverlay, "REFL": MapRefl, "ROUGHNESS": MapRoughness,
	"SSS": MapSSS, "TRANSLUCENCY": MapTranslucency,
	"TRANSMISSION": MapTransmission,
}

// MapTypeFromCode converts an API type code into a MapType.
// Codes may carry a variant suffix ("COL_VAR1") which is stripped.
func MapTypeFromCode(code string) MapType {
	if mt, ok := mapTypeNames[code]; ok {
		return mt
	}
	if base, _, found := strings.Cut(code, "_"); found {
		if mt, ok := mapTypeNames[base]; ok {
			return mt
		}
	}
	return MapUnknown
}

// IsMapTypeName reports whether token is a recognized map type token.
func IsMapTypeName(token string) bool {
	_, ok := mapTypeNames[token]
	return ok
}

// ModelType identifies the file format of a model mesh.
type ModelType string

const (
	ModelFBX   ModelType = "FBX"
	ModelBlend ModelType = "BLEND"
	ModelMax   ModelType = "MAX"
	ModelC4D   ModelType = "C4D"
)

// Canonical, ordered vocabularies for filename tokens. Order matters:
// nearest-size and nearest-LOD fallbacks use index distance in these lists.
var (
	Sizes     = buildSizes()
	LODs      = []string{"SOURCE", "LOD0", "LOD1", "LOD2", "LOD3", "LOD4"}
	Variants  = buildVariants()
	Workflows = []string{"REGULAR", "METALNESS", "SPECULAR"}
)

// previewSuffixes mark files that are preview renders, not asset content.
var previewSuffixes = []string{
	"_atlas", "_sphere", "_cylinder", "_fabric", "_preview1", "_preview2",
	"_preview3", "_flat", "_cube",
}

// IsPreviewName reports whether a filename is a preview render rather
// than asset content.
func IsPreviewName(filename string) bool {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	lower := strings.ToLower(stem)
	for _, suffix := range previewSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func buildSizes() []string {
	sizes := make([]string, 0, 20)
	for i := 1; i <= 18; i++ {
		sizes = append(sizes, fmt.Sprintf("%dK", i))
	}
	return append(sizes, "HIRES", "WM")
}

func buildVariants() []string {
	variants := make([]string, 0, 9)
	for i := 1; i <= 9; i++ {
		variants = append(variants, fmt.Sprintf("VAR%d", i))
	}
	return variants
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func contains(list []string, s string) bool {
	return indexOf(list, s) >= 0
}

// closestInVocab finds the entry of available nearest to want, measured by
// absolute index distance within the canonical vocab list. Ties resolve to
// the entry found first in vocab scan order.
func closestInVocab(vocab []string, available []string, want string) string {
	idxWant := indexOf(vocab, want)
	if idxWant < 0 {
		return ""
	}
	distMin := len(vocab)
	best := ""
	for idx, candidate := range vocab {
		dist := idxWant - idx
		if dist < 0 {
			dist = -dist
		}
		if contains(available, candidate) && dist < distMin {
			distMin = dist
			best = candidate
		}
	}
	return best
}

// ClosestSize returns the size in available nearest to want,
// or "" if nothing matches.
func ClosestSize(want string, available []string) string {
	return closestInVocab(Sizes, available, want)
}

// ClosestLOD returns the LOD in available nearest to want,
// or "" if nothing matches.
func ClosestLOD(want string, available []string) string {
	return closestInVocab(LODs, available, want)
}

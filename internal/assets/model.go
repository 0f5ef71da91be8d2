package assets

import (
	"fmt"
	"path/filepath"
)

// ModelMesh is one mesh file on disk. Like TextureMap, instances exist
// only for files that were downloaded and found.
type ModelMesh struct {
	Directory string    `json:"directory"`
	Filename  string    `json:"filename"`
	LOD       string    `json:"lod,omitempty"`
	ModelType ModelType `json:"model_type"`
}

func (m ModelMesh) Path() string {
	return filepath.Join(m.Directory, m.Filename)
}

// Model is the type payload for model assets: meshes plus an associated
// texture set.
type Model struct {
	LODs     []string    `json:"lods,omitempty"`
	Meshes   []ModelMesh `json:"meshes,omitempty"`
	Sizes    []string    `json:"sizes,omitempty"`
	Texture  *Texture    `json:"texture,omitempty"`
	Variants []string    `json:"variants,omitempty"`
}

// Update merges non-nil fields of other into m.
func (m *Model) Update(other *Model, purgeMaps bool) {
	if other == nil {
		return
	}
	if other.Meshes != nil {
		m.Meshes = other.Meshes
	}
	if other.LODs != nil {
		m.LODs = other.LODs
	}
	if other.Sizes != nil {
		m.Sizes = other.Sizes
	}
	if other.Variants != nil {
		m.Variants = other.Variants
	}
	if m.Texture == nil {
		m.Texture = other.Texture
	} else {
		m.Texture.Update(other.Texture, purgeMaps)
	}
}

func (m *Model) WorkflowList() []string {
	if m.Texture == nil {
		return nil
	}
	// model textures carry no map descs, only found maps
	workflows := make([]string, 0, len(m.Texture.Maps))
	for w := range m.Texture.Maps {
		workflows = append(workflows, w)
	}
	return workflows
}

func (m *Model) Workflow(want string) string {
	if m.Texture == nil {
		return ""
	}
	return m.Texture.Workflow(want)
}

func (m *Model) SizeList() []string {
	if m.Texture != nil && m.Texture.Sizes != nil {
		return m.Texture.Sizes
	}
	return m.Sizes
}

func (m *Model) Size(want string) (string, error) {
	sizes := m.SizeList()
	if contains(sizes, want) {
		return want, nil
	}
	if best := ClosestSize(want, sizes); best != "" {
		return best, nil
	}
	return "", fmt.Errorf("no suitable size found (request: %s)", want)
}

func (m *Model) VariantList() []string {
	return m.Variants
}

func (m *Model) LODList() []string {
	return m.LODs
}

// LOD verifies the requested LOD is available, otherwise returns the
// nearest one by index distance in the canonical LOD list.
func (m *Model) LOD(want string) string {
	if contains(m.LODs, want) {
		return want
	}
	return ClosestLOD(want, m.LODs)
}

// Mesh returns the mesh with the given LOD, or nil. An empty lod selects
// the SOURCE mesh.
func (m *Model) Mesh(lod string) *ModelMesh {
	if lod == "" {
		lod = "SOURCE"
	}
	for i := range m.Meshes {
		if m.Meshes[i].LOD == lod {
			return &m.Meshes[i]
		}
	}
	return nil
}

// Files adds all registered mesh and texture files to files.
func (m *Model) Files(files map[string]string) {
	for _, mesh := range m.Meshes {
		attr := string(mesh.ModelType)
		if mesh.LOD != "" {
			attr += ", " + mesh.LOD
		}
		files[mesh.Path()] = attr
	}
	if m.Texture != nil {
		m.Texture.Files(files)
	}
}

// Hdri is the type payload for HDRI assets: a background texture (single
// ENV map) and a lighting texture (single LIGHT map). Workflows and sizes
// are assumed identical for both.
type Hdri struct {
	Bg    *Texture `json:"bg"`
	Light *Texture `json:"light"`
}

func (h *Hdri) Update(other *Hdri, purgeMaps bool) {
	if other == nil {
		return
	}
	if h.Bg == nil {
		h.Bg = other.Bg
	} else {
		h.Bg.Update(other.Bg, purgeMaps)
	}
	if h.Light == nil {
		h.Light = other.Light
	} else {
		h.Light.Update(other.Light, purgeMaps)
	}
}

func (h *Hdri) WorkflowList() []string { return h.Bg.WorkflowList() }

func (h *Hdri) Workflow(want string) string { return h.Bg.Workflow(want) }

func (h *Hdri) SizeList() []string { return h.Bg.SizeList() }

func (h *Hdri) Size(want string) (string, error) { return h.Bg.Size(want) }

func (h *Hdri) MapTypeCodeList(workflow string) ([]string, error) {
	codes, err := h.Bg.MapTypeCodeList(workflow)
	if err != nil {
		return nil, err
	}
	lightCodes, err := h.Light.MapTypeCodeList(workflow)
	if err != nil {
		return nil, err
	}
	return append(codes, lightCodes...), nil
}

func (h *Hdri) GetMaps(workflow, size, lod string, prefer16Bit bool) []TextureMap {
	maps := h.Bg.GetMaps(workflow, size, lod, prefer16Bit)
	return append(maps, h.Light.GetMaps(workflow, size, lod, prefer16Bit)...)
}

func (h *Hdri) Files(files map[string]string) {
	h.Bg.Files(files)
	h.Light.Files(files)
}

// Brush is the type payload for brush assets: a single alpha texture.
type Brush struct {
	Alpha *Texture `json:"alpha"`
}

func (b *Brush) Update(other *Brush, purgeMaps bool) {
	if other == nil {
		return
	}
	if b.Alpha == nil {
		b.Alpha = other.Alpha
	} else {
		b.Alpha.Update(other.Alpha, purgeMaps)
	}
}

func (b *Brush) WorkflowList() []string { return b.Alpha.WorkflowList() }

func (b *Brush) Workflow(want string) string { return b.Alpha.Workflow(want) }

func (b *Brush) SizeList() []string { return b.Alpha.SizeList() }

func (b *Brush) Size(want string) (string, error) { return b.Alpha.Size(want) }

func (b *Brush) GetMaps(workflow, size, lod string, prefer16Bit bool) []TextureMap {
	return b.Alpha.GetMaps(workflow, size, lod, prefer16Bit)
}

func (b *Brush) Files(files map[string]string) {
	b.Alpha.Files(files)
}

// Package manifest reads and writes NeRF transforms_<split>.json files and
// moves frames between splits.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dicomnerf/pkg/pose"
)

// Split names a dataset partition.
type Split string

const (
	Train Split = "train"
	Test  Split = "test"
	Val   Split = "val"
)

// Splits lists every split in the order directories are created.
var Splits = []Split{Train, Test, Val}

// FileName returns the manifest file name for the split.
func (s Split) FileName() string {
	return "transforms_" + string(s) + ".json"
}

// Path returns the manifest location for split s under the dataset root.
func Path(root string, s Split) string {
	return filepath.Join(root, s.FileName())
}

// Frame is one image entry of a manifest.
type Frame struct {
	FilePath        string
	TransformMatrix [][]float64

	// fields written by other tools (sharpness, per-frame intrinsics)
	extra map[string]json.RawMessage
}

// NewFrame builds a frame from a path and a pose.
func NewFrame(filePath string, p pose.Matrix) Frame {
	return Frame{FilePath: filePath, TransformMatrix: p.Rows()}
}

// Pose decodes the transform matrix.
func (f Frame) Pose() (pose.Matrix, error) {
	return pose.FromRows(f.TransformMatrix)
}

// Manifest is the content of one transforms_<split>.json file.
type Manifest struct {
	CameraAngleX float64
	Frames       []Frame

	// intrinsics and scene settings written by the pose conversion script
	extra map[string]json.RawMessage
}

// New returns an empty manifest with the given horizontal field of view.
func New(cameraAngleX float64) *Manifest {
	return &Manifest{CameraAngleX: cameraAngleX, Frames: []Frame{}}
}

// Header returns a copy of m without frames, keeping the camera fields.
func (m *Manifest) Header() *Manifest {
	h := New(m.CameraAngleX)
	if len(m.extra) > 0 {
		h.extra = make(map[string]json.RawMessage, len(m.extra))
		for k, v := range m.extra {
			h.extra[k] = v
		}
	}
	return h
}

// Add appends a frame.
func (m *Manifest) Add(f Frame) {
	m.Frames = append(m.Frames, f)
}

// MarshalJSON writes known and preserved fields with sorted keys, so the
// same manifest always encodes to the same bytes.
func (m Manifest) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.extra)+2)
	for k, v := range m.extra {
		out[k] = v
	}
	frames := m.Frames
	if frames == nil {
		frames = []Frame{}
	}
	out["camera_angle_x"] = m.CameraAngleX
	out["frames"] = frames
	return json.Marshal(out)
}

// UnmarshalJSON reads the known fields and keeps every other one.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Manifest{Frames: []Frame{}}
	if v, ok := raw["camera_angle_x"]; ok {
		if err := json.Unmarshal(v, &m.CameraAngleX); err != nil {
			return fmt.Errorf("camera_angle_x: %w", err)
		}
		delete(raw, "camera_angle_x")
	}
	if v, ok := raw["frames"]; ok {
		if err := json.Unmarshal(v, &m.Frames); err != nil {
			return fmt.Errorf("frames: %w", err)
		}
		delete(raw, "frames")
	}
	if len(raw) > 0 {
		m.extra = raw
	}
	return nil
}

// MarshalJSON writes known and preserved frame fields with sorted keys.
func (f Frame) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.extra)+2)
	for k, v := range f.extra {
		out[k] = v
	}
	out["file_path"] = f.FilePath
	out["transform_matrix"] = f.TransformMatrix
	return json.Marshal(out)
}

// UnmarshalJSON reads the known frame fields and keeps every other one.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Frame{}
	if v, ok := raw["file_path"]; ok {
		if err := json.Unmarshal(v, &f.FilePath); err != nil {
			return fmt.Errorf("file_path: %w", err)
		}
		delete(raw, "file_path")
	}
	if v, ok := raw["transform_matrix"]; ok {
		if err := json.Unmarshal(v, &f.TransformMatrix); err != nil {
			return fmt.Errorf("transform_matrix: %w", err)
		}
		delete(raw, "transform_matrix")
	}
	if len(raw) > 0 {
		f.extra = raw
	}
	return nil
}

// Write encodes the manifest to path.
func (m *Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("manifest: write %s: %w", path, err)
	}
	return nil
}

// Read decodes the manifest at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	return &m, nil
}

// Set holds one manifest per split, built up during a sweep.
type Set map[Split]*Manifest

// NewSet returns empty manifests for every split.
func NewSet(cameraAngleX float64) Set {
	s := make(Set, len(Splits))
	for _, split := range Splits {
		s[split] = New(cameraAngleX)
	}
	return s
}

// WriteAll writes every manifest of the set under root.
func (s Set) WriteAll(root string) error {
	for _, split := range Splits {
		m, ok := s[split]
		if !ok {
			continue
		}
		if err := m.Write(Path(root, split)); err != nil {
			return err
		}
	}
	return nil
}

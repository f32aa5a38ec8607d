package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomnerf/pkg/pose"
)

func TestSplitFileName(t *testing.T) {
	assert.Equal(t, "transforms_train.json", Train.FileName())
	assert.Equal(t, "transforms_val.json", Val.FileName())
	assert.Equal(t, filepath.Join("root", "transforms_test.json"), Path("root", Test))
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), Train.FileName())

	m := New(0.6981317007977318)
	m.Add(NewFrame("./train/r_0.png", pose.Identity()))
	m.Add(NewFrame("./train/r_1.png", pose.Matrix{
		{0, 0, 1, 2.5},
		{1, 0, 0, -1},
		{0, 1, 0, 0.25},
		{0, 0, 0, 1},
	}))
	require.NoError(t, m.Write(path))

	got, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, m.CameraAngleX, got.CameraAngleX)
	if diff := cmp.Diff(m.Frames, got.Frames, cmp.AllowUnexported(Frame{})); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}

	p, err := got.Frames[1].Pose()
	require.NoError(t, err)
	assert.Equal(t, 2.5, p[0][3])
}

func TestManifestShape(t *testing.T) {
	m := New(1.5)
	m.Add(NewFrame("./train/r_0.png", pose.Identity()))

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, 1.5, generic["camera_angle_x"])

	frames := generic["frames"].([]any)
	require.Len(t, frames, 1)
	frame := frames[0].(map[string]any)
	assert.Equal(t, "./train/r_0.png", frame["file_path"])
	assert.Len(t, frame["transform_matrix"], 4)
}

func TestEmptyManifestEncodesEmptyFrames(t *testing.T) {
	data, err := json.Marshal(&Manifest{CameraAngleX: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"camera_angle_x":1,"frames":[]}`, string(data))
}

func TestUnknownFieldsSurvive(t *testing.T) {
	input := `{
		"camera_angle_x": 0.5,
		"fl_x": 1111.1,
		"aabb_scale": 1,
		"frames": [
			{"file_path": "./train/r_0.png", "sharpness": 31.5, "transform_matrix": [[1,0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0,1]]}
		]
	}`
	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(input), &m))

	out, err := json.Marshal(&m)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))

	header := m.Header()
	assert.Empty(t, header.Frames)
	out, err = json.Marshal(header)
	require.NoError(t, err)
	assert.JSONEq(t, `{"camera_angle_x":0.5,"fl_x":1111.1,"aabb_scale":1,"frames":[]}`, string(out))
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"frames": 3}`), 0644))
	_, err = Read(bad)
	assert.Error(t, err)
}

func TestSetWriteAll(t *testing.T) {
	dir := t.TempDir()
	set := NewSet(0.7)
	set[Train].Add(NewFrame("./train/r_0.png", pose.Identity()))
	require.NoError(t, set.WriteAll(dir))

	for _, s := range Splits {
		m, err := Read(Path(dir, s))
		require.NoError(t, err, s)
		assert.Equal(t, 0.7, m.CameraAngleX)
	}
	train, err := Read(Path(dir, Train))
	require.NoError(t, err)
	assert.Len(t, train.Frames, 1)
}

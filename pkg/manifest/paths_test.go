package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomnerf/pkg/pose"
)

func TestFramePath(t *testing.T) {
	assert.Equal(t, "./train/r_0.png", FramePath(Train, "r_0.png"))
	assert.Equal(t, "./test/r_12", FramePath(Test, "r_12"))
}

func TestNormalizePath(t *testing.T) {
	root := filepath.Join(t.TempDir(), "output")
	src := filepath.Join(filepath.Dir(root), "src")

	tests := []struct {
		name    string
		raw     string
		base    string
		keepExt bool
		want    string
	}{
		{"already normal", "./train/r_0.png", root, true, "./train/r_0.png"},
		{"no dot prefix", "train/r_4.png", root, true, "./train/r_4.png"},
		{"absolute", filepath.Join(root, "train", "r_7.png"), root, true, "./train/r_7.png"},
		{"windows separators", `.\train\r_9.png`, root, true, "./train/r_9.png"},
		{"relative to another working dir", `./..\output\train/r_98.png`, src, true, "./train/r_98.png"},
		{"drop extension", "./train/r_3.png", root, false, "./train/r_3"},
		{"drop extension twice", "./train/r_3", root, false, "./train/r_3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePath(tt.raw, root, tt.base, tt.keepExt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := NormalizePath(got, root, root, tt.keepExt)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestNormalizePathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	_, err := NormalizePath("../elsewhere/r_0.png", root, root, true)
	assert.Error(t, err)
}

func TestFixPathsIsIdempotent(t *testing.T) {
	root := t.TempDir()
	path := Path(root, Train)

	m := New(0.5)
	m.Add(NewFrame(filepath.Join(root, "train", "r_0.png"), pose.Identity()))
	m.Add(NewFrame(`train\r_1.png`, pose.Identity()))
	require.NoError(t, m.Write(path))

	require.NoError(t, FixPaths(path, true))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	fixed, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "./train/r_0.png", fixed.Frames[0].FilePath)
	assert.Equal(t, "./train/r_1.png", fixed.Frames[1].FilePath)

	require.NoError(t, FixPaths(path, true))
	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

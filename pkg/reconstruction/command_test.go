package reconstruction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicomnerf/pkg/manifest"
)

// ExitError reports a command that ran and exited with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) ExitCode() int {
	return e.Code
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts need a POSIX shell")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
}

func TestRealCommandExitCode(t *testing.T) {
	requireShell(t)

	out, err := NewRealCommandBuilder().BuildCommand(context.Background(), "", "/bin/sh", "-c", "echo failing; exit 3").Run()
	require.Error(t, err)
	assert.Equal(t, "failing\n", string(out))

	code, ok := exitCode(err)
	assert.True(t, ok)
	assert.Equal(t, 3, code)
}

func TestRealCommandRunsInDir(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	out, err := NewRealCommandBuilder().BuildCommand(context.Background(), dir, "/bin/sh", "-c", "pwd -P").Run()
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(string(out)))
}

func TestRealCommandMissingBinary(t *testing.T) {
	_, err := NewRealCommandBuilder().BuildCommand(context.Background(), "", filepath.Join(t.TempDir(), "no-such-tool")).Run()
	require.Error(t, err)

	code, ok := exitCode(err)
	assert.False(t, ok)
	assert.Equal(t, -1, code)
}

func TestReconstructReportsRealExitCode(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	colmap := filepath.Join(dir, "colmap.sh")
	writeScript(t, colmap, "echo 'no images'\nexit 3\n")

	params := DefaultParams()
	params.ColmapPath = colmap

	res := NewReconstructor(params, nil, nil).Reconstruct(context.Background(), manifest.Train, filepath.Join(dir, "train"), dir)
	assert.Equal(t, StatusNonZeroExit, res.Status)
	assert.Equal(t, StepReconstruct, res.Step)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Output, "no images")
}

// fakeToolScripts writes shell stand-ins for COLMAP and the conversion
// script into dir. The conversion stand-in writes one frame per image,
// using the --images path as given.
func fakeToolScripts(t *testing.T, dir string) (colmap, convert string) {
	t.Helper()
	colmap = filepath.Join(dir, "colmap.sh")
	writeScript(t, colmap, `cmd=$1; shift
while [ $# -gt 0 ]; do
  case $1 in
    --workspace_path) ws=$2; shift ;;
  esac
  shift
done
if [ "$cmd" = automatic_reconstructor ]; then mkdir -p "$ws/sparse/0"; fi
`)

	convert = filepath.Join(dir, "c2n.sh")
	writeScript(t, convert, `while [ $# -gt 0 ]; do
  case $1 in
    --images) images=$2; shift ;;
    --out) out=$2; shift ;;
  esac
  shift
done
printf '{"camera_angle_x":0.7,"frames":[' > "$out"
sep=""
for f in "$images"/*.png; do
  printf '%s{"file_path":"%s","transform_matrix":[[1,0,0,0],[0,1,0,0],[0,0,1,0],[0,0,0,1]]}' "$sep" "$f" >> "$out"
  sep=","
done
printf ']}\n' >> "$out"
`)
	return colmap, convert
}

func TestReconstructWithRelativePaths(t *testing.T) {
	requireShell(t)
	work := t.TempDir()
	testChdir(t, work)

	fakeToolScripts(t, work)
	require.NoError(t, os.MkdirAll(filepath.Join("out", "train"), 0755))
	for i := 0; i < 2; i++ {
		require.NoError(t, os.WriteFile(filepath.Join("out", "train", fmt.Sprintf("r_%d.png", i)), []byte("png"), 0644))
	}

	params := &Params{
		ColmapPath:      "./colmap.sh",
		PythonPath:      "/bin/sh",
		Colmap2NerfPath: "c2n.sh",
		AABBScale:       1,
		KeepExtension:   true,
	}
	res := NewReconstructor(params, nil, nil).Reconstruct(context.Background(), manifest.Train, filepath.Join("out", "train"), "out")
	require.NoError(t, res.Err, res.Output)
	require.True(t, res.OK())

	m, err := manifest.Read(filepath.Join(work, "out", manifest.Train.FileName()))
	require.NoError(t, err)
	require.Len(t, m.Frames, 2)
	assert.Equal(t, "./train/r_0.png", m.Frames[0].FilePath)
	assert.Equal(t, "./train/r_1.png", m.Frames[1].FilePath)
	assert.NoDirExists(t, filepath.Join(work, "out", "train_colmap"))
}

func TestParamsResolve(t *testing.T) {
	work := t.TempDir()
	testChdir(t, work)

	p, err := Params{ColmapPath: "colmap", PythonPath: "bin/python", Colmap2NerfPath: "colmap2nerf.py"}.resolve()
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, "colmap", p.ColmapPath)
	assert.Equal(t, filepath.Join(cwd, "bin", "python"), p.PythonPath)
	assert.Equal(t, filepath.Join(cwd, "colmap2nerf.py"), p.Colmap2NerfPath)
}

// testChdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func testChdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}

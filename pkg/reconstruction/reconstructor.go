// Package reconstruction recovers camera poses for a split of rendered
// images with COLMAP and converts them into a NeRF manifest.
package reconstruction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"dicomnerf/pkg/manifest"
)

// Status summarises how a reconstruction ended.
type Status int

const (
	// StatusSuccess means the manifest was written and its paths fixed
	StatusSuccess Status = iota
	// StatusNonZeroExit means one of the external steps failed
	StatusNonZeroExit
	// StatusMissingOutput means COLMAP did not converge on a sparse model
	StatusMissingOutput
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNonZeroExit:
		return "non-zero exit"
	case StatusMissingOutput:
		return "missing output"
	}
	return "unknown"
}

// Step names reported in Result.Step.
const (
	StepReconstruct = "automatic_reconstructor"
	StepConvert     = "model_converter"
	StepToNerf      = "colmap2nerf"
	StepFixPaths    = "fix_paths"
	StepCleanup     = "cleanup"
)

// Result reports the outcome of one reconstruction.
type Result struct {
	Status Status

	// Step names the step that failed; empty on success
	Step string

	// ExitCode is the failing step's exit status, or -1 when it never ran
	ExitCode int

	// Output is the combined output of the failing step
	Output string

	// Manifest is the path of the written manifest on success
	Manifest string

	Err error
}

// OK reports whether the reconstruction produced a manifest.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Params holds the external tool configuration.
type Params struct {
	// ColmapPath is the COLMAP executable
	ColmapPath string

	// PythonPath is the interpreter running the conversion script
	PythonPath string

	// Colmap2NerfPath is the COLMAP to NeRF conversion script
	Colmap2NerfPath string

	// AABBScale is passed to the conversion script
	AABBScale int

	// KeepExtension keeps file extensions in the fixed manifest paths
	KeepExtension bool
}

// DefaultParams returns tools looked up on PATH.
func DefaultParams() *Params {
	return &Params{
		ColmapPath:      "colmap",
		PythonPath:      "python",
		Colmap2NerfPath: "colmap2nerf.py",
		AABBScale:       1,
		KeepExtension:   true,
	}
}

// resolve returns a copy of p with path-like tools made absolute.
// Executables given as bare names are left for PATH lookup; the script is
// an interpreter argument and is always resolved.
func (p Params) resolve() (Params, error) {
	var err error
	for _, tool := range []*string{&p.ColmapPath, &p.PythonPath} {
		if strings.ContainsRune(*tool, filepath.Separator) || strings.ContainsRune(*tool, '/') {
			if *tool, err = filepath.Abs(*tool); err != nil {
				return p, err
			}
		}
	}
	if p.Colmap2NerfPath, err = filepath.Abs(p.Colmap2NerfPath); err != nil {
		return p, err
	}
	return p, nil
}

// Reconstructor runs the COLMAP pipeline.
type Reconstructor struct {
	params  *Params
	builder CommandBuilder
	logger  *zap.Logger
}

// NewReconstructor creates a new reconstructor. A nil builder runs real
// processes.
func NewReconstructor(params *Params, builder CommandBuilder, logger *zap.Logger) *Reconstructor {
	if params == nil {
		params = DefaultParams()
	}
	if builder == nil {
		builder = NewRealCommandBuilder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconstructor{params: params, builder: builder, logger: logger}
}

// WorkspacePath returns the scratch directory used for split.
func WorkspacePath(outputDir string, split manifest.Split) string {
	return filepath.Join(outputDir, string(split)+"_colmap")
}

// Reconstruct runs COLMAP on imageDir and writes
// <outputDir>/transforms_<split>.json. The workspace is removed on success
// and left behind otherwise for inspection.
func (r *Reconstructor) Reconstruct(ctx context.Context, split manifest.Split, imageDir, outputDir string) Result {
	log := r.logger.With(zap.String("split", string(split)))

	// the conversion step runs in outputDir, so every path handed to the
	// tools must be absolute
	tools, err := r.params.resolve()
	if err != nil {
		return Result{Status: StatusNonZeroExit, Step: StepReconstruct, ExitCode: -1, Err: err}
	}
	if imageDir, err = filepath.Abs(imageDir); err != nil {
		return Result{Status: StatusNonZeroExit, Step: StepReconstruct, ExitCode: -1, Err: err}
	}
	if outputDir, err = filepath.Abs(outputDir); err != nil {
		return Result{Status: StatusNonZeroExit, Step: StepReconstruct, ExitCode: -1, Err: err}
	}

	workspace := WorkspacePath(outputDir, split)
	textPath := filepath.Join(workspace, "text")
	sparsePath := filepath.Join(workspace, "sparse", "0")
	manifestPath := manifest.Path(outputDir, split)

	if err := os.MkdirAll(textPath, 0755); err != nil {
		return Result{Status: StatusNonZeroExit, Step: StepReconstruct, ExitCode: -1, Err: err}
	}

	log.Info("running COLMAP", zap.String("images", imageDir), zap.String("workspace", workspace))
	if res, ok := r.run(ctx, StepReconstruct, "", tools.ColmapPath,
		"automatic_reconstructor",
		"--dense", "0",
		"--single_camera", "0",
		"--workspace_path", workspace,
		"--image_path", imageDir,
	); !ok {
		return res
	}

	if info, err := os.Stat(sparsePath); err != nil || !info.IsDir() {
		log.Warn("no COLMAP convergence", zap.String("sparse", sparsePath))
		return Result{
			Status:   StatusMissingOutput,
			Step:     StepReconstruct,
			ExitCode: 0,
			Err:      fmt.Errorf("no COLMAP convergence in %s: %s missing", split, sparsePath),
		}
	}

	if res, ok := r.run(ctx, StepConvert, "", tools.ColmapPath,
		"model_converter",
		"--input_path", sparsePath,
		"--output_path", textPath,
		"--output_type", "TXT",
	); !ok {
		return res
	}

	// the script writes frame paths relative to its working directory
	if res, ok := r.run(ctx, StepToNerf, outputDir, tools.PythonPath,
		tools.Colmap2NerfPath,
		"--text", textPath,
		"--aabb_scale", strconv.Itoa(tools.AABBScale),
		"--images", imageDir,
		"--out", manifestPath,
	); !ok {
		return res
	}

	if err := manifest.FixPaths(manifestPath, tools.KeepExtension); err != nil {
		return Result{Status: StatusMissingOutput, Step: StepFixPaths, ExitCode: -1, Err: err}
	}

	if err := os.RemoveAll(workspace); err != nil {
		return Result{Status: StatusNonZeroExit, Step: StepCleanup, ExitCode: -1, Err: err}
	}

	log.Info("reconstruction complete", zap.String("manifest", manifestPath))
	return Result{Status: StatusSuccess, Manifest: manifestPath}
}

func (r *Reconstructor) run(ctx context.Context, step, dir, name string, args ...string) (Result, bool) {
	if err := ctx.Err(); err != nil {
		return Result{Status: StatusNonZeroExit, Step: step, ExitCode: -1, Err: err}, false
	}

	r.logger.Debug("exec", zap.String("step", step), zap.String("cmd", name), zap.Strings("args", args))
	out, err := r.builder.BuildCommand(ctx, dir, name, args...).Run()
	if err == nil {
		return Result{}, true
	}

	code, _ := exitCode(err)
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	r.logger.Error("step failed",
		zap.String("step", step),
		zap.Int("exitCode", code),
		zap.ByteString("output", out),
		zap.Error(err))
	return Result{
		Status:   StatusNonZeroExit,
		Step:     step,
		ExitCode: code,
		Output:   string(out),
		Err:      fmt.Errorf("%s: %w", step, err),
	}, false
}

// Package export runs a full dataset export: sweep the camera around the
// volume, attach poses and split the frames into train, test and val.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dicomnerf/pkg/camera"
	"dicomnerf/pkg/config"
	"dicomnerf/pkg/manifest"
	"dicomnerf/pkg/partition"
	"dicomnerf/pkg/reconstruction"
	"dicomnerf/pkg/sweep"
)

// ImageExt is the extension of rendered frames.
const ImageExt = ".png"

// Summary describes a finished export.
type Summary struct {
	RunID     string
	OutputDir string
	Frames    int
	Train     int
	Test      []string
	Val       []string

	// Reconstruction is set when poses came from COLMAP
	Reconstruction *reconstruction.Result
}

// Exporter wires the sweep, reconstruction and reclassification steps.
type Exporter struct {
	cfg      *config.Config
	renderer sweep.Renderer
	builder  reconstruction.CommandBuilder
	logger   *zap.Logger
}

// NewExporter creates an exporter. A nil builder runs real COLMAP
// processes.
func NewExporter(cfg *config.Config, renderer sweep.Renderer, builder reconstruction.CommandBuilder, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{cfg: cfg, renderer: renderer, builder: builder, logger: logger}
}

// Run exports a dataset for the sweep around cam into
// <outputRoot>/output_as<AZ>_es<EL>.
func (e *Exporter) Run(ctx context.Context, cam camera.Camera) (*Summary, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.NewString()
	log := e.logger.With(zap.String("runID", runID))

	grid, err := sweep.NewGrid(e.cfg.Sweep.AzimuthStep, e.cfg.Sweep.ElevationStep,
		e.cfg.Sweep.MaxAzimuth, e.cfg.Sweep.MaxElevation)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(e.cfg.Dataset.OutputRoot, grid.OutputDirName())
	if err := makeOrCleanDir(outDir, log); err != nil {
		return nil, err
	}

	total := grid.Size()
	labels, err := partition.Labels(total, partition.ValCount(total, e.cfg.Dataset.ValFraction), e.cfg.Dataset.RandomSeed)
	if err != nil {
		return nil, err
	}
	counts := partition.Counts(labels)
	log.Info("Partitioned sweep",
		zap.Int("frames", total),
		zap.Int("train", counts[manifest.Train]),
		zap.Int("val", counts[manifest.Val]),
		zap.Int64("seed", e.cfg.Dataset.RandomSeed))

	ctrl, err := sweep.NewController(grid, cam, labels, e.renderer, sweep.Options{
		OutputDir:     outDir,
		ImageExt:      ImageExt,
		KeepExtension: e.cfg.Dataset.KeepExtension,
		PoseScale:     e.cfg.Dataset.PoseScale,
	}, log)
	if err != nil {
		return nil, err
	}

	swept, err := ctrl.Run(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{RunID: runID, OutputDir: outDir, Frames: swept.Frames}

	if e.cfg.Dataset.ExportPoses {
		log.Info("Writing ground-truth poses")
		if err := swept.Manifests.WriteAll(outDir); err != nil {
			return nil, err
		}
	} else {
		res := e.reconstructor(log).Reconstruct(ctx, manifest.Train, filepath.Join(outDir, string(manifest.Train)), outDir)
		summary.Reconstruction = &res
		if !res.OK() {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Error("Reconstruction failed, train manifest skipped",
				zap.String("status", res.Status.String()),
				zap.String("step", res.Step),
				zap.Int("exitCode", res.ExitCode),
				zap.Error(res.Err))
		}
	}

	moved, err := manifest.Reclassify(outDir, swept.Candidates, manifest.ReclassifyOptions{
		KeepExtension: e.cfg.Dataset.KeepExtension,
		ImageExt:      ImageExt,
		Logger:        log,
	})
	if err != nil {
		if errors.Is(err, manifest.ErrManifestMissing) && summary.Reconstruction != nil {
			return nil, fmt.Errorf("reconstruction %s: %w", summary.Reconstruction.Status, err)
		}
		return nil, err
	}

	summary.Train = moved.Train
	summary.Test = moved.Test
	summary.Val = moved.Val

	log.Info("Export complete",
		zap.String("output", outDir),
		zap.Int("frames", summary.Frames),
		zap.Int("train", summary.Train),
		zap.Int("test", len(summary.Test)),
		zap.Int("val", len(summary.Val)))
	return summary, nil
}

func (e *Exporter) reconstructor(log *zap.Logger) *reconstruction.Reconstructor {
	return reconstruction.NewReconstructor(&reconstruction.Params{
		ColmapPath:      e.cfg.Tools.ColmapPath,
		PythonPath:      e.cfg.Tools.PythonPath,
		Colmap2NerfPath: e.cfg.Tools.Colmap2NerfPath,
		AABBScale:       1,
		KeepExtension:   e.cfg.Dataset.KeepExtension,
	}, e.builder, log)
}

// makeOrCleanDir creates dir, or empties it when it already exists. Entries
// that cannot be removed are logged and left in place.
func makeOrCleanDir(dir string, log *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn("Failed to delete", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

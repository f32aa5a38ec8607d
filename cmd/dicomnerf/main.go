package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dicomnerf/pkg/camera"
	"dicomnerf/pkg/colormap"
	"dicomnerf/pkg/config"
	"dicomnerf/pkg/export"
	"dicomnerf/pkg/visualization"
	"dicomnerf/pkg/volume"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Root flags
	dicomFolder  string
	exportNerf   bool
	noExportNerf bool
	outputRoot   string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "dicomnerf",
	Short: "Render a DICOM series into a NeRF training dataset",
	Long: `dicomnerf loads a DICOM series as a volume and orbits a virtual camera
around it on a regular azimuth/elevation grid. Every view is rendered to PNG
and paired with a camera-to-world pose in NeRF convention.

Poses come either from the renderer camera (exportPoses in the config) or
from a COLMAP reconstruction of the train images. The equatorial ring of
train views is then moved into the test split.

Without --export-nerf a single preview render and three mid-plane slices are
written to the output root.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a config file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "dicomnerf.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return err
		}
		logger.Info("Wrote default config", zap.String("path", path))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: built-in values)")

	rootCmd.Flags().StringVar(&dicomFolder, "dicom-folder", "", "Directory holding the DICOM series (required)")
	rootCmd.Flags().BoolVar(&exportNerf, "export-nerf", false, "Export a NeRF dataset")
	rootCmd.Flags().BoolVar(&noExportNerf, "no-export-nerf", false, "Only render a preview")
	rootCmd.Flags().StringVarP(&outputRoot, "output", "o", "", "Output root (overrides the config)")
	rootCmd.MarkFlagRequired("dicom-folder")
	rootCmd.MarkFlagsMutuallyExclusive("export-nerf", "no-export-nerf")

	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if outputRoot != "" {
		cfg.Dataset.OutputRoot = outputRoot
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	start := time.Now()
	vol, err := volume.LoadDir(dicomFolder, logger)
	if err != nil {
		return err
	}

	viewer := visualization.NewViewer(vol, visualization.Options{
		Size:        cfg.Render.Size,
		Supersample: cfg.Render.Supersample,
		SampleStep:  cfg.Render.SampleStep,
		Workers:     cfg.Render.Workers,
		Transfer:    colormap.DefaultTransfer(),
	})
	cam := camera.FitVolume(vol.Bounds(), cfg.Camera.ViewAngle)

	if exportNerf && !noExportNerf {
		summary, err := export.NewExporter(cfg, viewer, nil, logger).Run(ctx, cam)
		if err != nil {
			return err
		}
		logger.Info("Dataset written",
			zap.String("runID", summary.RunID),
			zap.String("output", summary.OutputDir),
			zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	return preview(ctx, viewer, cam, cfg.Dataset.OutputRoot)
}

func preview(ctx context.Context, viewer *visualization.Viewer, cam camera.Camera, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, "preview.png")
	if err := viewer.Render(ctx, cam, path); err != nil {
		return err
	}
	logger.Info("Wrote preview", zap.String("path", path))

	slices, err := viewer.SaveMidSlices(filepath.Join(dir, "slices"))
	if err != nil {
		return err
	}
	logger.Info("Wrote mid-plane slices", zap.Strings("paths", slices))
	return nil
}

package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"dicomnerf/pkg/camera"
	"dicomnerf/pkg/manifest"
	"dicomnerf/pkg/pose"
)

// ErrAlreadyRun is returned when Run is called on a controller that has
// already swept.
var ErrAlreadyRun = errors.New("sweep already run")

// Renderer produces an image of the volume as seen from cam and writes it
// to path.
type Renderer interface {
	Render(ctx context.Context, cam camera.Camera, path string) error
}

// State is the controller lifecycle.
type State int

const (
	StateInit State = iota
	StateSweeping
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSweeping:
		return "sweeping"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options controls where and how frames are written.
type Options struct {
	// OutputDir is the dataset root holding the split directories
	OutputDir string

	// ImageExt is the image file extension, with the dot
	ImageExt string

	// KeepExtension keeps ImageExt in manifest file paths
	KeepExtension bool

	// PoseScale divides pose translations
	PoseScale float64
}

// Result is the in-memory outcome of a sweep.
type Result struct {
	Manifests manifest.Set

	// Candidates holds the manifest paths of the train frames on the
	// equatorial row, in visitation order
	Candidates []string

	Frames int
}

// Controller drives a single sweep.
type Controller struct {
	grid     Grid
	base     camera.Camera
	labels   []manifest.Split
	renderer Renderer
	opts     Options
	logger   *zap.Logger

	state State
	row   int
	col   int
}

// NewController checks that there is one label per grid point.
func NewController(grid Grid, base camera.Camera, labels []manifest.Split, r Renderer, opts Options, logger *zap.Logger) (*Controller, error) {
	if len(labels) != grid.Size() {
		return nil, fmt.Errorf("sweep: %d labels for %d grid points", len(labels), grid.Size())
	}
	if r == nil {
		return nil, errors.New("sweep: nil renderer")
	}
	if opts.ImageExt == "" {
		opts.ImageExt = ".png"
	}
	if opts.PoseScale == 0 {
		opts.PoseScale = pose.DefaultScale
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		grid:     grid,
		base:     base,
		labels:   labels,
		renderer: r,
		opts:     opts,
		logger:   logger,
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return c.state
}

// Position returns the row and column being rendered.
func (c *Controller) Position() (row, col int) {
	return c.row, c.col
}

// Run visits every grid point once. Labels are consumed in visitation
// order and each split numbers its frames from r_0. A render error aborts
// the sweep.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	if c.state != StateInit {
		return nil, ErrAlreadyRun
	}
	c.state = StateSweeping
	defer func() { c.state = StateDone }()

	for _, s := range manifest.Splits {
		dir := filepath.Join(c.opts.OutputDir, string(s))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sweep: create %s: %w", dir, err)
		}
	}

	res := &Result{Manifests: manifest.NewSet(c.base.ViewAngleRadians())}
	counts := make(map[manifest.Split]int, len(manifest.Splits))
	equator := c.grid.EquatorialRow()

	c.logger.Info("Starting sweep",
		zap.Int("rows", c.grid.Rows),
		zap.Int("columns", c.grid.Columns),
		zap.String("output", c.opts.OutputDir))

	for k, pt := range c.grid.Points() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.row, c.col = pt.Row, pt.Column

		split := c.labels[k]
		name := fmt.Sprintf("r_%d", counts[split])
		counts[split]++

		cam := c.base.Orbit(pt.Azimuth, pt.Elevation)
		imagePath := filepath.Join(c.opts.OutputDir, string(split), name+c.opts.ImageExt)

		c.logger.Debug("Rendering frame",
			zap.String("path", imagePath),
			zap.Float64("azimuth", pt.Azimuth),
			zap.Float64("elevation", pt.Elevation))
		if err := c.renderer.Render(ctx, cam, imagePath); err != nil {
			return nil, fmt.Errorf("sweep: render row %d column %d: %w", pt.Row, pt.Column, err)
		}

		p, err := pose.ToTarget(cam.ModelView(), c.opts.PoseScale)
		if err != nil {
			return nil, fmt.Errorf("sweep: pose at row %d column %d: %w", pt.Row, pt.Column, err)
		}

		if c.opts.KeepExtension {
			name += c.opts.ImageExt
		}
		framePath := manifest.FramePath(split, name)
		res.Manifests[split].Add(manifest.NewFrame(framePath, p))
		res.Frames++

		if pt.Row == equator && split == manifest.Train {
			res.Candidates = append(res.Candidates, framePath)
		}
	}

	c.logger.Info("Sweep complete",
		zap.Int("frames", res.Frames),
		zap.Int("train", counts[manifest.Train]),
		zap.Int("val", counts[manifest.Val]),
		zap.Int("candidates", len(res.Candidates)))
	return res, nil
}

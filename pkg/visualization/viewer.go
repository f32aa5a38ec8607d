// Package visualization renders a volume from a camera and extracts
// orthogonal slices from it.
package visualization

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/spatial/r3"

	"dicomnerf/internal/models"
	"dicomnerf/pkg/camera"
	"dicomnerf/pkg/colormap"
)

// Options controls image size and ray marching.
type Options struct {
	// Size is the edge length of the square output image
	Size int

	// Supersample renders Size*Supersample pixels per edge and downsamples
	Supersample int

	// SampleStep is the distance between samples along a ray in mm
	SampleStep float64

	// Workers is the number of goroutines sharing the image rows
	Workers int

	Transfer colormap.Transfer
}

// Viewer renders maximum intensity projections of a volume. It satisfies
// the sweep renderer contract.
type Viewer struct {
	volume *models.Volume
	opts   Options
}

// NewViewer creates a new viewer for vol
func NewViewer(vol *models.Volume, opts Options) *Viewer {
	if opts.Size <= 0 {
		opts.Size = 800
	}
	if opts.Supersample <= 0 {
		opts.Supersample = 1
	}
	if opts.SampleStep <= 0 {
		opts.SampleStep = 0.5
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Transfer.Color == nil {
		opts.Transfer = colormap.DefaultTransfer()
	}
	return &Viewer{volume: vol, opts: opts}
}

// Render draws the volume as seen by cam and writes it to path as PNG.
func (v *Viewer) Render(ctx context.Context, cam camera.Camera, path string) error {
	img, err := v.RenderImage(ctx, cam)
	if err != nil {
		return err
	}
	return v.SaveImage(img, path)
}

// RenderImage draws the volume as seen by cam. Pixels whose ray misses the
// volume are transparent.
func (v *Viewer) RenderImage(ctx context.Context, cam camera.Camera) (*image.RGBA, error) {
	size := v.opts.Size * v.opts.Supersample
	img := image.NewRGBA(image.Rect(0, 0, size, size))

	right, up, back := cam.Basis()
	tanHalf := math.Tan(cam.ViewAngleRadians() / 2)
	forward := r3.Scale(-1, back)

	workers := v.opts.Workers
	if workers > size {
		workers = size
	}
	rowsPerWorker := (size + workers - 1) / workers

	type band struct {
		err error
	}
	done := make(chan band, workers)

	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := start + rowsPerWorker
		if end > size {
			end = size
		}
		go func(start, end int) {
			for py := start; py < end; py++ {
				if err := ctx.Err(); err != nil {
					done <- band{err: err}
					return
				}
				ny := 1 - 2*(float64(py)+0.5)/float64(size)
				for px := 0; px < size; px++ {
					nx := 2*(float64(px)+0.5)/float64(size) - 1
					dir := r3.Unit(r3.Add(forward, r3.Add(
						r3.Scale(nx*tanHalf, right),
						r3.Scale(ny*tanHalf, up))))
					img.SetRGBA(px, py, v.shade(v.castRay(cam, dir)))
				}
			}
			done <- band{}
		}(start, end)
	}

	var firstErr error
	for w := 0; w < workers; w++ {
		if b := <-done; b.err != nil && firstErr == nil {
			firstErr = b.err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	if v.opts.Supersample == 1 {
		return img, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, v.opts.Size, v.opts.Size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

// castRay returns the maximum normalised intensity along the ray, or -1
// when the ray misses the volume.
func (v *Viewer) castRay(cam camera.Camera, dir r3.Vec) float64 {
	b := v.volume.Bounds()
	tNear, tFar, ok := intersectBox(cam.Position, dir, b)
	if !ok {
		return -1
	}
	if cr := cam.ClippingRange; cr[1] > cr[0] {
		tNear = math.Max(tNear, cr[0])
		tFar = math.Min(tFar, cr[1])
		if tNear > tFar {
			return -1
		}
	}

	maxVal := 0.0
	for t := tNear; t <= tFar; t += v.opts.SampleStep {
		p := r3.Add(cam.Position, r3.Scale(t, dir))
		if s := v.volume.Sample([3]float64{p.X, p.Y, p.Z}); s > maxVal {
			maxVal = s
		}
	}
	return maxVal
}

func (v *Viewer) shade(n float64) color.RGBA {
	if n < 0 {
		return color.RGBA{}
	}
	raw := v.volume.Raw(n)
	c := v.opts.Transfer.Color.Eval(raw)
	a := clamp01(v.opts.Transfer.Opacity.Eval(raw))
	// image.RGBA stores premultiplied colour
	return color.RGBA{
		R: uint8(clamp01(c[0])*a*255 + 0.5),
		G: uint8(clamp01(c[1])*a*255 + 0.5),
		B: uint8(clamp01(c[2])*a*255 + 0.5),
		A: uint8(a*255 + 0.5),
	}
}

// intersectBox clips the ray origin+t*dir against the volume box using the
// slab method. t is never negative.
func intersectBox(origin, dir r3.Vec, b models.Bounds) (tNear, tFar float64, ok bool) {
	o := [3]float64{origin.X, origin.Y, origin.Z}
	d := [3]float64{dir.X, dir.Y, dir.Z}
	tNear, tFar = 0, math.Inf(1)
	for i := 0; i < 3; i++ {
		if math.Abs(d[i]) < 1e-12 {
			if o[i] < b.Min[i] || o[i] > b.Max[i] {
				return 0, 0, false
			}
			continue
		}
		t1 := (b.Min[i] - o[i]) / d[i]
		t2 := (b.Max[i] - o[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tNear = math.Max(tNear, t1)
		tFar = math.Min(tFar, t2)
		if tNear > tFar {
			return 0, 0, false
		}
	}
	return tNear, tFar, true
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	vol := v.volume
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// YZ plane
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, gray16(vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, gray16(vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		// XY plane
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, gray16(vol.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

func gray16(n float64) color.Gray16 {
	return color.Gray16{Y: uint16(clamp01(n)*65535 + 0.5)}
}

// SaveImage encodes img as PNG at filename
func (v *Viewer) SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("encode %s: %w", filename, err)
	}
	return file.Close()
}

// SaveMidSlices writes the middle slice along each axis to outputDir and
// returns the written paths.
func (v *Viewer) SaveMidSlices(outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}

	mids := map[string]int{
		"x": v.volume.Width / 2,
		"y": v.volume.Height / 2,
		"z": v.volume.Depth / 2,
	}

	var paths []string
	for _, axis := range []string{"x", "y", "z"} {
		img, err := v.ExtractSlice(axis, mids[axis])
		if err != nil {
			return nil, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, mids[axis]))
		if err := v.SaveImage(img, filename); err != nil {
			return nil, err
		}
		paths = append(paths, filename)
	}
	return paths, nil
}

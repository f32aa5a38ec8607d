package manifest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
)

var (
	// ErrManifestMissing is returned when reclassification runs without a
	// train manifest on disk.
	ErrManifestMissing = errors.New("train manifest missing")

	// ErrFrameNotFound is returned when a candidate path has no frame in
	// the train manifest.
	ErrFrameNotFound = errors.New("candidate frame not in train manifest")
)

// ReclassifyOptions controls naming during reclassification.
type ReclassifyOptions struct {
	// KeepExtension keeps the image extension in rewritten paths
	KeepExtension bool

	// ImageExt is the extension of image files on disk, with the dot
	ImageExt string

	Logger *zap.Logger
}

// ReclassifyResult lists the new paths of every moved frame.
type ReclassifyResult struct {
	Test  []string
	Val   []string
	Train int
}

// Reclassify moves the candidate frames out of the train manifest under root.
//
// Every train frame whose path is in candidates is copied into the test split
// with a fresh index and removed from train. The val split then receives the
// remaining train frames that match candidates, which keeps it disjoint from
// test; frames the partitioner already placed in val stay where they are.
// All three manifests are rewritten.
func Reclassify(root string, candidates []string, opts ReclassifyOptions) (*ReclassifyResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ImageExt == "" {
		opts.ImageExt = ".png"
	}

	trainPath := Path(root, Train)
	if _, err := os.Stat(trainPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestMissing, trainPath)
		}
		return nil, fmt.Errorf("manifest: stat %s: %w", trainPath, err)
	}

	train, err := Read(trainPath)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]int, len(train.Frames))
	for i, f := range train.Frames {
		byPath[f.FilePath] = i
	}
	for _, c := range candidates {
		if _, ok := byPath[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrFrameNotFound, c)
		}
	}

	test, err := loadOrHeader(root, Test, train)
	if err != nil {
		return nil, err
	}
	val, err := loadOrHeader(root, Val, train)
	if err != nil {
		return nil, err
	}

	mover := frameMover{root: root, opts: opts}
	result := &ReclassifyResult{}

	logger.Info("Creating test dataset", zap.Int("candidates", len(candidates)))
	remaining := train.Frames
	remaining, result.Test, err = mover.extract(remaining, candidates, test, Test)
	if err != nil {
		return nil, err
	}

	logger.Info("Creating val dataset")
	remaining, result.Val, err = mover.extract(remaining, candidates, val, Val)
	if err != nil {
		return nil, err
	}

	train.Frames = remaining
	result.Train = len(remaining)

	for split, m := range map[Split]*Manifest{Train: train, Test: test, Val: val} {
		if err := m.Write(Path(root, split)); err != nil {
			return nil, err
		}
	}

	logger.Info("Reclassified frames",
		zap.Int("train", result.Train),
		zap.Int("test", len(result.Test)),
		zap.Int("val", len(result.Val)))
	return result, nil
}

func loadOrHeader(root string, s Split, train *Manifest) (*Manifest, error) {
	p := Path(root, s)
	if _, err := os.Stat(p); err == nil {
		return Read(p)
	}
	return train.Header(), nil
}

type frameMover struct {
	root string
	opts ReclassifyOptions
}

// extract moves frames whose path is in candidates into dst, in candidate
// order, and returns the frames left behind. frames is not modified.
func (fm frameMover) extract(frames []Frame, candidates []string, dst *Manifest, split Split) ([]Frame, []string, error) {
	idx := make(map[string]int, len(frames))
	for i, f := range frames {
		idx[f.FilePath] = i
	}

	taken := make(map[int]bool)
	var moved []string
	for _, c := range candidates {
		i, ok := idx[c]
		if !ok || taken[i] {
			continue
		}
		taken[i] = true

		name := fmt.Sprintf("r_%d", len(dst.Frames))
		if err := fm.copyImage(frames[i].FilePath, split, name); err != nil {
			return nil, nil, err
		}

		f := frames[i]
		if fm.opts.KeepExtension {
			name += fm.opts.ImageExt
		}
		f.FilePath = FramePath(split, name)
		dst.Add(f)
		moved = append(moved, f.FilePath)
	}

	left := make([]Frame, 0, len(frames)-len(taken))
	for i, f := range frames {
		if !taken[i] {
			left = append(left, f)
		}
	}
	return left, moved, nil
}

func (fm frameMover) copyImage(framePath string, split Split, name string) error {
	src := filepath.Join(fm.root, filepath.FromSlash(framePath))
	if path.Ext(framePath) == "" {
		src += fm.opts.ImageExt
	}
	dstDir := filepath.Join(fm.root, string(split))
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return fmt.Errorf("manifest: create %s: %w", dstDir, err)
	}
	return copyFile(src, filepath.Join(dstDir, name+fm.opts.ImageExt))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("manifest: copy image: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("manifest: copy image: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("manifest: copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

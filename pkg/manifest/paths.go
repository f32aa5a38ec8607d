package manifest

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// FramePath returns the manifest path of image name in split, e.g.
// "./train/r_3.png".
func FramePath(split Split, name string) string {
	return "./" + path.Join(string(split), name)
}

// NormalizePath rewrites raw into a POSIX path relative to the dataset root,
// prefixed with "./". Backslashes are treated as separators. Relative paths
// are resolved against base, the working directory of whichever tool wrote
// them. With keepExt false the file extension is dropped.
//
// Normalising an already normalised path with base == root is a no-op.
func NormalizePath(raw, root, base string, keepExt bool) (string, error) {
	p := strings.ReplaceAll(raw, `\`, "/")
	if !path.IsAbs(p) {
		p = path.Join(toSlash(base), p)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("manifest: resolve root %s: %w", root, err)
	}
	absPath, err := filepath.Abs(filepath.FromSlash(p))
	if err != nil {
		return "", fmt.Errorf("manifest: resolve %s: %w", raw, err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return "", fmt.Errorf("manifest: %s is not under %s: %w", raw, root, err)
	}

	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("manifest: %s escapes dataset root %s", raw, root)
	}
	if !keepExt {
		rel = strings.TrimSuffix(rel, path.Ext(rel))
	}
	return "./" + rel, nil
}

// FixPaths normalises every frame path of the manifest file in place.
// Relative paths are taken relative to the manifest's directory.
func FixPaths(manifestPath string, keepExt bool) error {
	m, err := Read(manifestPath)
	if err != nil {
		return err
	}
	root := filepath.Dir(manifestPath)
	for i := range m.Frames {
		fixed, err := NormalizePath(m.Frames[i].FilePath, root, root, keepExt)
		if err != nil {
			return err
		}
		m.Frames[i].FilePath = fixed
	}
	return m.Write(manifestPath)
}

func toSlash(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
}

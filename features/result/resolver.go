package result

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for any reference that would resolve outside the
// storage root.
var ErrInvalidPath = errors.New("invalid path")

// File is a resolved result artifact.
type File struct {
	// Path is the absolute on-disk location, safe to open.
	Path string
	// Name is the base name used for the content-disposition hint.
	Name string
	// ContentType derives from the file extension.
	ContentType string
}

// Resolver maps logical output references to files, confined to one root
// directory. Confinement is checked on the resolved path, so neither ".."
// segments nor symlinks can escape.
type Resolver struct {
	root string
}

func NewResolver(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Resolver{root: abs}, nil
}

// Resolve validates a logical path and returns the file it denotes. Fails with
// ErrInvalidPath before any file access if the path is absolute or escapes the
// root; with fs.ErrNotExist (via os.Stat) if the file is missing.
func (rs *Resolver) Resolve(logical string) (*File, error) {
	if logical == "" || path.IsAbs(logical) || filepath.IsAbs(logical) {
		return nil, ErrInvalidPath
	}

	candidate := filepath.Join(rs.root, filepath.FromSlash(logical))
	if !rs.within(candidate) {
		return nil, ErrInvalidPath
	}

	// Re-check after symlink resolution: a link inside the root must not point
	// outside it.
	real, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return nil, err
	}
	rootReal, err := filepath.EvalSymlinks(rs.root)
	if err != nil {
		return nil, err
	}
	if real != rootReal && !strings.HasPrefix(real, rootReal+string(filepath.Separator)) {
		return nil, ErrInvalidPath
	}

	info, err := os.Stat(real)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrInvalidPath
	}

	return &File{
		Path:        real,
		Name:        filepath.Base(candidate),
		ContentType: ContentTypeFor(candidate),
	}, nil
}

func (rs *Resolver) within(p string) bool {
	return p == rs.root || strings.HasPrefix(p, rs.root+string(filepath.Separator))
}

// ContentTypeFor maps a score artifact extension to its media type.
func ContentTypeFor(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".xml", ".musicxml":
		return "application/xml"
	case ".mid", ".midi":
		return "audio/midi"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Loader errors.
var (
	// ErrNotFound is returned when no loader can resolve an identifier.
	ErrNotFound = errors.New("loader: not found")

	// ErrEmptyID is returned for an identifier that normalizes to nothing.
	ErrEmptyID = errors.New("loader: empty identifier")
)

// Loader resolves resource identifiers.
type Loader interface {
	// Read returns the bytes of the resource named id.
	Read(id string) ([]byte, error)

	// Search returns the location id resolves to without reading it.
	Search(id string) (string, error)
}

// Normalize returns the canonical form of a resource identifier: Unicode
// NFC, forward slashes, no leading slash and no "." or ".." segments that
// can be resolved lexically. It returns "" for an empty identifier.
func Normalize(id string) string {
	id = norm.NFC.String(strings.TrimSpace(id))
	id = strings.ReplaceAll(id, "\\", "/")
	if id == "" {
		return ""
	}
	id = strings.TrimLeft(path.Clean("/"+id), "/")
	return id
}

// FS loads resources from a file system.
type FS struct {
	fsys  fs.FS
	paths []string
	exts  []string
}

// NewFS returns a loader over fsys that looks up identifiers under each of
// the search paths in order. With no search paths only the root is used.
func NewFS(fsys fs.FS, searchPaths ...string) *FS {
	l := &FS{fsys: fsys}
	for _, p := range searchPaths {
		p = Normalize(p)
		if p == "" {
			p = "."
		}
		l.paths = append(l.paths, p)
	}
	if len(l.paths) == 0 {
		l.paths = []string{"."}
	}
	return l
}

// Dir returns a loader over the directory dir of the host file system.
func Dir(dir string, searchPaths ...string) *FS {
	return NewFS(os.DirFS(dir), searchPaths...)
}

// WithExtensions makes Search also try id with each extension appended
// when id itself is not found. Extensions include the dot.
func (l *FS) WithExtensions(exts ...string) *FS {
	l.exts = append(l.exts, exts...)
	return l
}

// Search returns the first existing path id resolves to.
func (l *FS) Search(id string) (string, error) {
	id = Normalize(id)
	if id == "" {
		return "", ErrEmptyID
	}
	for _, dir := range l.paths {
		p := path.Join(dir, id)
		if l.isFile(p) {
			return p, nil
		}
		for _, ext := range l.exts {
			if l.isFile(p + ext) {
				return p + ext, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, id)
}

// Read returns the contents of the file id resolves to.
func (l *FS) Read(id string) ([]byte, error) {
	p, err := l.Search(id)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", p, err)
	}
	return data, nil
}

func (l *FS) isFile(p string) bool {
	st, err := fs.Stat(l.fsys, p)
	return err == nil && !st.IsDir()
}

// Chain tries each loader in order. A loader reporting ErrNotFound passes
// the request on; any other error stops the chain.
type Chain []Loader

// Read returns the bytes from the first loader that has id.
func (c Chain) Read(id string) ([]byte, error) {
	for _, l := range c {
		data, err := l.Read(id)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, c.notFound(id)
}

// Search returns the location from the first loader that has id.
func (c Chain) Search(id string) (string, error) {
	for _, l := range c {
		loc, err := l.Search(id)
		if err == nil {
			return loc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	}
	return "", c.notFound(id)
}

func (c Chain) notFound(id string) error {
	if Normalize(id) == "" {
		return ErrEmptyID
	}
	return fmt.Errorf("%w: %q", ErrNotFound, Normalize(id))
}

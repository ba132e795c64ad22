// Package workspace lists and reads files under a fixed root directory for
// the editor's file explorer.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
)

// ErrOutsideRoot is returned for paths that resolve outside the workspace.
var ErrOutsideRoot = errors.New("path outside workspace")

// ErrTooLarge is returned when a file exceeds MaxReadBytes.
var ErrTooLarge = errors.New("file too large")

// MaxReadBytes bounds the size of a single file read.
const MaxReadBytes = 2 << 20

// DefaultExclude hides dotfiles and node_modules at any depth.
var DefaultExclude = []string{"**/.*", "**/node_modules"}

// Node types.
const (
	TypeFile      = "file"
	TypeDirectory = "directory"
)

// Node is one entry of the workspace tree. Path is slash-separated and
// relative to the root.
type Node struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Children []Node `json:"children,omitempty"`
}

// File is the content of one workspace file.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	MIME    string `json:"mime"`
}

// Workspace serves a directory tree rooted at Root.
type Workspace struct {
	root    string
	exclude []string
}

// New returns a Workspace for root. Exclude patterns use doublestar syntax
// and are matched against slash-separated paths relative to the root; nil
// selects DefaultExclude.
func New(root string, exclude []string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if exclude == nil {
		exclude = DefaultExclude
	}
	for _, p := range exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Workspace{root: abs, exclude: slices.Clone(exclude)}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Tree returns the workspace listing: directories first, then files, each
// group ordered by name. Unreadable directories are listed empty.
func (w *Workspace) Tree() ([]Node, error) {
	if _, err := os.Stat(w.root); err != nil {
		return nil, fmt.Errorf("stat workspace root: %w", err)
	}
	return w.readDir(w.root), nil
}

func (w *Workspace) readDir(dir string) []Node {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []Node{}
	}
	nodes := make([]Node, 0, len(entries))
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(w.root, full)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if w.excluded(rel) {
			continue
		}
		if e.IsDir() {
			nodes = append(nodes, Node{Name: e.Name(), Path: rel, Type: TypeDirectory, Children: w.readDir(full)})
			continue
		}
		nodes = append(nodes, Node{Name: e.Name(), Path: rel, Type: TypeFile})
	}
	slices.SortFunc(nodes, compareNodes)
	return nodes
}

func compareNodes(a, b Node) int {
	if a.Type != b.Type {
		if a.Type == TypeDirectory {
			return -1
		}
		return 1
	}
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

func (w *Workspace) excluded(rel string) bool {
	for _, p := range w.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Resolve maps a root-relative path to an absolute one, rejecting anything
// that lands outside the root, including through symlinks.
func (w *Workspace) Resolve(rel string) (string, error) {
	full := filepath.Join(w.root, filepath.FromSlash(rel))
	if !w.contains(full) {
		return "", ErrOutsideRoot
	}
	if resolved, err := filepath.EvalSymlinks(full); err == nil && !w.contains(resolved) {
		return "", ErrOutsideRoot
	}
	return full, nil
}

func (w *Workspace) contains(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Read returns the content of a file and its detected MIME type.
func (w *Workspace) Read(rel string) (File, error) {
	full, err := w.Resolve(rel)
	if err != nil {
		return File{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return File{}, err
	}
	if info.IsDir() {
		return File{}, &fs.PathError{Op: "read", Path: rel, Err: errors.New("is a directory")}
	}
	if info.Size() > MaxReadBytes {
		return File{}, fmt.Errorf("%s: %w", rel, ErrTooLarge)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return File{}, err
	}
	return File{
		Path:    filepath.ToSlash(rel),
		Content: string(data),
		MIME:    mimetype.Detect(data).String(),
	}, nil
}

// Package cfb exposes a Compound File Binary container as a read-only tree of
// storages and streams addressed by path segments.
package cfb

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a path does not name an entry of the expected kind.
var ErrNotFound = errors.New("cfb entry not found")

// Entry describes one direct child of a storage
type Entry struct {
	Name      string
	IsStorage bool
	Size      int64
}

// Storage is a directory node of the container
type Storage struct {
	Path    []string
	Entries []Entry
}

// Storages returns the names of the child storages in container order.
func (s *Storage) Storages() []string {
	var names []string
	for _, e := range s.Entries {
		if e.IsStorage {
			names = append(names, e.Name)
		}
	}
	return names
}

// Accessor is the capability the decoder needs from a container.
// Paths are relative to the root storage; an empty path names the root.
type Accessor interface {
	OpenStorage(path ...string) (*Storage, error)
	ReadStream(path ...string) ([]byte, error)
}

// Join appends segments to a base path without aliasing base.
func Join(base []string, segs ...string) []string {
	out := make([]string, 0, len(base)+len(segs))
	out = append(out, base...)
	return append(out, segs...)
}

// PathString renders a path for error messages and logs.
func PathString(path []string) string {
	return "/" + strings.Join(path, "/")
}

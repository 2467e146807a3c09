package cfb

import (
	"fmt"
	"strings"
)

type node struct {
	name     string
	storage  bool
	data     []byte
	children []*node
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		// CFB names compare case-insensitively
		if strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

// Memory is an in-memory container. Children keep insertion order, which
// stands in for the directory order of a real file.
type Memory struct {
	root *node
}

// NewMemory creates an empty container with only a root storage.
func NewMemory() *Memory {
	return &Memory{root: &node{storage: true}}
}

// AddStorage creates the storage at path, including missing parents.
func (m *Memory) AddStorage(path ...string) error {
	_, err := m.mkdirAll(path)
	return err
}

// AddStream stores data at path, creating parent storages as needed.
// An existing stream at the same path is replaced.
func (m *Memory) AddStream(data []byte, path ...string) error {
	if len(path) == 0 {
		return fmt.Errorf("failed to add stream: empty path")
	}
	parent, err := m.mkdirAll(path[:len(path)-1])
	if err != nil {
		return err
	}
	name := path[len(path)-1]
	if existing := parent.child(name); existing != nil {
		if existing.storage {
			return fmt.Errorf("failed to add stream %s: a storage has that name", PathString(path))
		}
		existing.data = append([]byte(nil), data...)
		return nil
	}
	parent.children = append(parent.children, &node{name: name, data: append([]byte(nil), data...)})
	return nil
}

func (m *Memory) mkdirAll(path []string) (*node, error) {
	cur := m.root
	for i, seg := range path {
		next := cur.child(seg)
		if next == nil {
			next = &node{name: seg, storage: true}
			cur.children = append(cur.children, next)
		} else if !next.storage {
			return nil, fmt.Errorf("failed to create storage %s: a stream has that name", PathString(path[:i+1]))
		}
		cur = next
	}
	return cur, nil
}

func (m *Memory) lookup(path []string) *node {
	cur := m.root
	for _, seg := range path {
		if cur = cur.child(seg); cur == nil {
			return nil
		}
	}
	return cur
}

// OpenStorage implements Accessor.
func (m *Memory) OpenStorage(path ...string) (*Storage, error) {
	n := m.lookup(path)
	if n == nil || !n.storage {
		return nil, fmt.Errorf("storage %s: %w", PathString(path), ErrNotFound)
	}
	st := &Storage{Path: Join(nil, path...), Entries: make([]Entry, 0, len(n.children))}
	for _, c := range n.children {
		st.Entries = append(st.Entries, Entry{Name: c.name, IsStorage: c.storage, Size: int64(len(c.data))})
	}
	return st, nil
}

// ReadStream implements Accessor. The returned slice is a copy.
func (m *Memory) ReadStream(path ...string) ([]byte, error) {
	n := m.lookup(path)
	if n == nil || n.storage {
		return nil, fmt.Errorf("stream %s: %w", PathString(path), ErrNotFound)
	}
	return append([]byte(nil), n.data...), nil
}

package cfb

import (
	"bytes"
	"io"
	"os"

	"github.com/richardlehane/mscfb"
	"github.com/rotisserie/eris"
)

// rootEntryName is the directory name CFB writers give the root storage.
const rootEntryName = "Root Entry"

// OpenFile reads the compound file at path into memory and returns it as an
// Accessor. The file is closed before OpenFile returns.
func OpenFile(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open file %s", path)
	}
	defer f.Close()

	m, err := Open(f)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read compound file %s", path)
	}
	return m, nil
}

// Open walks every directory entry of the compound file in ra and copies its
// storages and streams into a Memory container.
func Open(ra io.ReaderAt) (*Memory, error) {
	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, eris.Wrap(err, "invalid compound file header")
	}

	m := NewMemory()
	for entry, err := doc.Next(); err != io.EOF; entry, err = doc.Next() {
		if err != nil {
			return nil, eris.Wrap(err, "failed to walk directory")
		}
		if err := m.addEntry(entry.Path, entry.Name, entry.FileInfo().IsDir(), entry); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// addEntry places one directory entry found under parent. Streams are read
// fully from r.
func (m *Memory) addEntry(parent []string, name string, isStorage bool, r io.Reader) error {
	if len(parent) > 0 && parent[0] == rootEntryName {
		parent = parent[1:]
	}
	if len(parent) == 0 && name == rootEntryName {
		return nil
	}
	path := Join(parent, name)
	if isStorage {
		return m.AddStorage(path...)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return eris.Wrapf(err, "failed to read stream %s", PathString(path))
	}
	return m.AddStream(buf.Bytes(), path...)
}

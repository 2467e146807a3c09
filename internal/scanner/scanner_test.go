package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
}

func TestIsMSGFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"mail.msg", true},
		{"MAIL.MSG", true},
		{"dir/sub/mail.Msg", true},
		{"~$mail.msg", false},
		{"mail.eml", false},
		{"msg", false},
		{"mail.msg.bak", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMSGFile(tt.name))
		})
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"a.msg",
		"inbox/b.MSG",
		"inbox/2024/c.msg",
		"inbox/~$c.msg",
		"notes.txt",
		"export.eml",
	)

	files, err := NewScanner(root).Scan()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.msg", "inbox/b.MSG", "inbox/2024/c.msg"}, files)

	count, err := NewScanner(root).CountMSGFiles()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestScan_MissingRoot(t *testing.T) {
	s := NewScanner(filepath.Join(t.TempDir(), "missing"))

	_, err := s.Scan()
	assert.Error(t, err)

	_, err = s.CountMSGFiles()
	assert.Error(t, err)
}

func TestScanWithCallback(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a.msg", "b.msg")

	var seen []string
	err := NewScanner(root).ScanWithCallback(func(path string, index, total int) error {
		assert.Equal(t, 2, total)
		assert.Equal(t, len(seen)+1, index)
		seen = append(seen, path)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 2)

	stop := errors.New("stop")
	err = NewScanner(root).ScanWithCallback(func(string, int, int) error { return stop })
	assert.ErrorIs(t, err, stop)
}

package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTarGzipDirRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config"), []byte("k: v\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.000.mmap"), []byte("bitmap-bytes"), 0o644))

	archive, err := tarGzipDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, archive)

	gz, err := gzip.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	names := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		names[hdr.Name] = content
	}

	require.Equal(t, []byte("k: v\n"), names["config"])
	require.Equal(t, []byte("bitmap-bytes"), names["data.000.mmap"])
}

package scaling

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/bloomd/pkg/bloomfilter"
)

func paths(dir string) PathProvider {
	return func(index int) string {
		return filepath.Join(dir, fmt.Sprintf("data.%03d.mmap", index))
	}
}

func TestNewStartsWithSingleStage(t *testing.T) {
	sf, err := New(paths(t.TempDir()), 10, 0.1, 2, 0.9)
	require.NoError(t, err)
	defer sf.Close()

	require.Equal(t, 1, sf.Depth())
	require.Equal(t, 10, sf.Capacity())
}

func TestInsertReturnsNoveltyAndGrows(t *testing.T) {
	sf, err := New(paths(t.TempDir()), 4, 0.1, 2, 0.9)
	require.NoError(t, err)
	defer sf.Close()

	for i := 0; i < 4; i++ {
		novel, err := sf.Insert([]byte(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		require.True(t, novel)
	}
	require.Equal(t, 1, sf.Depth(), "tail not yet full until next insert observes it")

	// Tail is now full (count==capacity); the next insert should trigger a
	// grow to a second, larger stage.
	novel, err := sf.Insert([]byte("k4"))
	require.NoError(t, err)
	require.True(t, novel)
	require.Equal(t, 2, sf.Depth())
	require.Equal(t, 4+8, sf.Capacity(), "second stage capacity = scaleSize * first stage capacity")
}

func TestInsertDuplicateAcrossChainReturnsFalse(t *testing.T) {
	sf, err := New(paths(t.TempDir()), 4, 0.1, 2, 0.9)
	require.NoError(t, err)
	defer sf.Close()

	for i := 0; i < 5; i++ {
		_, err := sf.Insert([]byte(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
	}
	require.Equal(t, 2, sf.Depth())

	// k0 lives in stage 0; re-inserting must be detected across the whole
	// chain and must not increment size.
	sizeBefore := sf.Size()
	novel, err := sf.Insert([]byte("k0"))
	require.NoError(t, err)
	require.False(t, novel)
	require.Equal(t, sizeBefore, sf.Size())
}

func TestContainsScansEntireChain(t *testing.T) {
	sf, err := New(paths(t.TempDir()), 2, 0.1, 2, 0.9)
	require.NoError(t, err)
	defer sf.Close()

	keys := []string{"a", "b", "c", "d", "e"}
	for _, k := range keys {
		_, err := sf.Insert([]byte(k))
		require.NoError(t, err)
	}
	require.Greater(t, sf.Depth(), 1)

	for _, k := range keys {
		require.True(t, sf.Contains([]byte(k)))
	}
	require.False(t, sf.Contains([]byte("nope")))
}

func TestFlushThenFromChainRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sf, err := New(paths(dir), 2, 0.1, 2, 0.9)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := sf.Insert([]byte(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
	}
	wantDepth := sf.Depth()
	wantSize := sf.Size()
	require.NoError(t, sf.Close())

	filters := make([]*bloomfilter.BloomFilter, wantDepth)
	for i := 0; i < wantDepth; i++ {
		f, err := bloomfilter.Open(paths(dir)(i))
		require.NoError(t, err)
		filters[i] = f
	}

	reopened, err := FromChain(filters, paths(dir), 0.1, 2, 0.9)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, wantDepth, reopened.Depth())
	require.Equal(t, wantSize, reopened.Size())
	require.True(t, reopened.Contains([]byte("k0")))
}

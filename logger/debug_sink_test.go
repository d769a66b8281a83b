package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugSinkWritesRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	sink, err := NewDebugSink(path, 0)
	require.NoError(t, err)
	defer sink.Close()

	sink.Log("/up/2024/a.jpg", "authoritative", 42, true, 1500)
	sink.Log("/up/2024/missing.jpg", "not_found", 0, false, 300)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	assert.Contains(t, lines[0], "/up/2024/a.jpg")
	assert.Contains(t, lines[0], "authoritative")
	assert.Contains(t, lines[0], "\t42\t")
	assert.Contains(t, lines[0], "1500us")

	// Для ненайденного ресурса вместо id пишется прочерк
	assert.Contains(t, lines[1], "\t-\t")
}

func TestDebugSinkCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	sink, err := NewDebugSink(path, 0)
	require.NoError(t, err)
	defer sink.Close()

	sink.Log("/a.jpg", "cache", 1, true, 10)
	require.NoError(t, sink.Cleanup())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())

	// После очистки запись продолжается с начала файла
	sink.Log("/b.jpg", "index", 2, true, 20)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/b.jpg")
}

func TestDebugSinkRotatesAtLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	sink, err := NewDebugSink(path, 128)
	require.NoError(t, err)
	defer sink.Close()

	for i := 0; i < 50; i++ {
		sink.Log("/up/2024/some/fairly/long/path/image.jpg", "cache", 7, true, 100)
	}

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, info.Size(), int64(256), "file should be truncated around the limit")
}

func TestDebugSinkLogAfterCloseIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")

	sink, err := NewDebugSink(path, 0)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	// Не должно паниковать и не должно ничего писать
	sink.Log("/a.jpg", "cache", 1, true, 10)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

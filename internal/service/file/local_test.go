package file

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashwinyue/sanctuary/internal/config"
)

func TestLocalStorage_SaveGetDelete(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("\x89PNG fake")
	path, err := storage.Save(ctx, &SaveRequest{
		OwnerID:     "u1",
		ContentType: "image/png",
		Size:        int64(len(content)),
		Reader:      bytes.NewReader(content),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "u1/"))
	assert.True(t, strings.HasSuffix(path, ".png"))

	rc, err := storage.Get(ctx, path)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, storage.Delete(ctx, path))
	_, err = storage.Get(ctx, path)
	assert.Error(t, err)

	// 重复删除不报错
	assert.NoError(t, storage.Delete(ctx, path))
}

func TestLocalStorage_RejectsTraversal(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = storage.Get(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestNewStorage(t *testing.T) {
	s, err := NewStorage(context.Background(), &config.StorageConfig{
		Type:  "local",
		Local: config.LocalStorageConfig{BaseDir: t.TempDir()},
	})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = NewStorage(context.Background(), &config.StorageConfig{Type: "minio"})
	assert.Error(t, err)

	_, err = NewStorage(context.Background(), &config.StorageConfig{Type: "cos"})
	assert.Error(t, err)
}

package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveAndDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "uploads/")
	require.NoError(t, err)

	url, err := store.Save("items/2024/photo.jpg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/items/2024/photo.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "items", "2024", "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	require.NoError(t, store.Delete("items/2024/photo.jpg"))
	require.NoError(t, store.Delete("items/2024/photo.jpg"))
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "/uploads")
	require.NoError(t, err)

	_, err = store.SaveStream("../escape.jpg", strings.NewReader("x"))
	require.Error(t, err)
}

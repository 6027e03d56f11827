package media

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMediaConfig() models.MediaConfig {
	return models.MediaConfig{
		MaxSizeMB: models.MediaSizeLimits{
			Voice: 1,
			Image: 2,
			Video: 3,
		},
	}
}

func newTestStore(t *testing.T, baseURL string) *LocalObjectStore {
	t.Helper()
	store, err := NewLocalObjectStore(t.TempDir(), baseURL, testMediaConfig())
	require.NoError(t, err)
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t, "https://media.test")

	url, err := store.Put(context.Background(), "voice.ogg", []byte("opus-frames"), "audio/ogg")
	require.NoError(t, err)
	assert.Equal(t, "https://media.test/voice.ogg", url)

	data, err := store.Get(context.Background(), "voice.ogg")
	require.NoError(t, err)
	assert.Equal(t, []byte("opus-frames"), data)
}

func TestPutWithoutBaseURLReturnsFileURL(t *testing.T) {
	store := newTestStore(t, "")

	url, err := store.Put(context.Background(), "voice.ogg", []byte("x"), "audio/ogg")
	require.NoError(t, err)
	assert.Contains(t, url, "file://")
	assert.Contains(t, url, filepath.Join(store.dir, "voice.ogg"))
}

func TestPutRejectsTraversalKeys(t *testing.T) {
	store := newTestStore(t, "")

	for _, key := range []string{"../escape.ogg", "/etc/passwd", "a/../../b.ogg", ""} {
		_, err := store.Put(context.Background(), key, []byte("x"), "audio/ogg")
		assert.Error(t, err, "key %q should be rejected", key)
	}

	_, err := store.Get(context.Background(), "../escape.ogg")
	assert.Error(t, err)
}

func TestPutEnforcesSizeLimits(t *testing.T) {
	store := newTestStore(t, "")

	overVoice := bytes.Repeat([]byte("a"), 1024*1024+1)
	_, err := store.Put(context.Background(), "big.ogg", overVoice, "audio/ogg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	// The same payload is fine under the larger image limit.
	_, err = store.Put(context.Background(), "big.png", overVoice, "image/png")
	assert.NoError(t, err)
}

func TestPutHonorsContextCancellation(t *testing.T) {
	store := newTestStore(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Put(ctx, "voice.ogg", []byte("x"), "audio/ogg")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetMissingObject(t *testing.T) {
	store := newTestStore(t, "")

	_, err := store.Get(context.Background(), "nope.ogg")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

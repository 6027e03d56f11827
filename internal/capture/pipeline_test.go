package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"murmur/internal/apperr"
	"murmur/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream feeds chunks pushed by the test and ends when closed.
type fakeStream struct {
	mimeType string
	chunks   chan []byte
	readErr  error

	mu     sync.Mutex
	closed bool
}

func newFakeStream(mimeType string) *fakeStream {
	return &fakeStream{
		mimeType: mimeType,
		chunks:   make(chan []byte, 16),
	}
}

func (s *fakeStream) Read(p []byte) (int, error) {
	chunk, ok := <-s.chunks
	if !ok {
		if s.readErr != nil {
			return 0, s.readErr
		}
		return 0, io.EOF
	}
	return copy(p, chunk), nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.chunks)
	}
	return nil
}

func (s *fakeStream) MIMEType() string { return s.mimeType }

type fakeDevice struct {
	stream  *fakeStream
	openErr error
}

func (d *fakeDevice) Open(constraints Constraints) (Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.stream, nil
}

type fakeObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (s *fakeObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[key] = data
	s.types[key] = contentType
	return "https://media.test/" + key, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestRecorderBuffersStreamAndMeasuresDuration(t *testing.T) {
	stream := newFakeStream("audio/ogg")
	rec := NewRecorder(&fakeDevice{stream: stream}, testLogger())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	h, err := rec.StartCapture(KindAudio)
	require.NoError(t, err)

	stream.chunks <- []byte("opus-")
	stream.chunks <- []byte("frames")

	now = now.Add(2300 * time.Millisecond)
	blob, err := rec.StopCapture(h)
	require.NoError(t, err)

	assert.Equal(t, []byte("opus-frames"), blob.Data)
	assert.Equal(t, "audio/ogg", blob.MIMEType)
	assert.Equal(t, 2300*time.Millisecond, blob.Duration)
}

func TestStartCaptureSurfacesPermissionDenied(t *testing.T) {
	rec := NewRecorder(&fakeDevice{openErr: ErrPermissionDenied}, testLogger())

	_, err := rec.StartCapture(KindAudio)
	require.Error(t, err)
	assert.Equal(t, apperr.CodePermissionDenied, apperr.GetCode(err))
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.NotEmpty(t, apperr.GetUserMessage(err))
}

func TestStartCaptureWrapsOtherDeviceErrors(t *testing.T) {
	rec := NewRecorder(&fakeDevice{openErr: errors.New("device busy")}, testLogger())

	_, err := rec.StartCapture(KindAudio)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeCaptureFailed, apperr.GetCode(err))
}

func TestStopCaptureReportsStreamFailure(t *testing.T) {
	stream := newFakeStream("audio/ogg")
	stream.readErr = errors.New("device unplugged")
	rec := NewRecorder(&fakeDevice{stream: stream}, testLogger())

	h, err := rec.StartCapture(KindAudio)
	require.NoError(t, err)

	_, err = rec.StopCapture(h)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeCaptureFailed, apperr.GetCode(err))
}

func TestCancelDiscardsCapture(t *testing.T) {
	stream := newFakeStream("audio/ogg")
	store := newFakeObjectStore()
	rec := NewRecorder(&fakeDevice{stream: stream}, testLogger())
	p := NewPipeline(rec, store, testLogger())

	h, err := p.Start(KindAudio)
	require.NoError(t, err)

	stream.chunks <- []byte("discarded")
	p.Cancel(h)

	assert.Empty(t, store.objects)
	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.True(t, stream.closed)
}

func TestPipelineFinishProducesAudioDraft(t *testing.T) {
	stream := newFakeStream("audio/ogg")
	store := newFakeObjectStore()
	rec := NewRecorder(&fakeDevice{stream: stream}, testLogger())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return now }

	p := NewPipeline(rec, store, testLogger())

	h, err := p.Start(KindAudio)
	require.NoError(t, err)

	stream.chunks <- []byte("opus-frames")
	now = now.Add(4 * time.Second)

	draft, err := p.Finish(context.Background(), h)
	require.NoError(t, err)

	assert.Equal(t, models.AudioMessage, draft.Type)
	assert.Empty(t, draft.Content)
	assert.InDelta(t, 4.0, draft.DurationSeconds, 0.001)
	require.NotEmpty(t, draft.MediaURL)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.objects, 1)
	for key, data := range store.objects {
		assert.Equal(t, []byte("opus-frames"), data)
		assert.Equal(t, "audio/ogg", store.types[key])
		assert.Contains(t, draft.MediaURL, key)
	}
}

func TestPipelineFinishUploadFailure(t *testing.T) {
	stream := newFakeStream("audio/ogg")
	store := newFakeObjectStore()
	store.putErr = errors.New("storage unavailable")
	rec := NewRecorder(&fakeDevice{stream: stream}, testLogger())
	p := NewPipeline(rec, store, testLogger())

	h, err := p.Start(KindAudio)
	require.NoError(t, err)

	stream.chunks <- []byte("opus-frames")
	_, err = p.Finish(context.Background(), h)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUploadFailed, apperr.GetCode(err))
}

func TestObjectKeyFallsBackForUnknownType(t *testing.T) {
	assert.Contains(t, objectKey("not/a-type"), ".bin")
	assert.NotEqual(t, objectKey("not/a-type"), objectKey("not/a-type"))
}

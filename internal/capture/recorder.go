package capture

import (
	"bytes"
	"io"
	"sync"
	"time"

	"murmur/internal/apperr"

	"github.com/sirupsen/logrus"
)

// Handle is one in-progress capture. It buffers the device stream in the
// background until Stop or Cancel.
type Handle struct {
	stream   Stream
	started  time.Time
	mimeType string

	mu      sync.Mutex
	buf     bytes.Buffer
	done    chan struct{}
	readErr error
	closed  bool
}

// Recorder turns device streams into encoded blobs with a measured duration.
type Recorder struct {
	dev    Device
	logger *logrus.Logger
	now    func() time.Time
}

func NewRecorder(dev Device, logger *logrus.Logger) *Recorder {
	return &Recorder{
		dev:    dev,
		logger: logger,
		now:    time.Now,
	}
}

// StartCapture opens the device and begins buffering. A refusal from the
// device surfaces as PERMISSION_DENIED.
func (r *Recorder) StartCapture(kind Kind) (*Handle, error) {
	stream, err := r.dev.Open(Constraints{Kind: kind})
	if err != nil {
		if err == ErrPermissionDenied {
			return nil, apperr.Wrap(err, apperr.CodePermissionDenied, "microphone access denied").
				WithUserMessage("Allow microphone access to record a voice message")
		}
		return nil, apperr.Wrap(err, apperr.CodeCaptureFailed, "failed to open capture device").
			WithUserMessage("Could not start recording")
	}

	h := &Handle{
		stream:   stream,
		started:  r.now(),
		mimeType: stream.MIMEType(),
		done:     make(chan struct{}),
	}

	go h.drain()

	return h, nil
}

// StopCapture ends the capture and returns the encoded blob with the measured
// wall-clock duration.
func (r *Recorder) StopCapture(h *Handle) (*EncodedBlob, error) {
	data, err := h.finish()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeCaptureFailed, "capture stream failed").
			WithUserMessage("Recording failed, try again")
	}

	return &EncodedBlob{
		Data:     data,
		MIMEType: h.mimeType,
		Duration: r.now().Sub(h.started),
	}, nil
}

// Cancel discards an in-progress capture with no store interaction.
func (r *Recorder) Cancel(h *Handle) {
	if _, err := h.finish(); err != nil {
		r.logger.WithError(err).Debug("Discarding failed capture")
	}
}

func (h *Handle) drain() {
	defer close(h.done)
	buf := make([]byte, 4096)
	for {
		n, err := h.stream.Read(buf)
		if n > 0 {
			h.mu.Lock()
			h.buf.Write(buf[:n])
			h.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				h.mu.Lock()
				h.readErr = err
				h.mu.Unlock()
			}
			return
		}
	}
}

// finish closes the stream, waits for the drain goroutine and hands back the
// buffered bytes. Safe to call twice; the second call returns nothing.
func (h *Handle) finish() ([]byte, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		<-h.done
		return nil, nil
	}
	h.closed = true
	h.mu.Unlock()

	_ = h.stream.Close()
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.readErr != nil {
		return nil, h.readErr
	}
	return h.buf.Bytes(), nil
}

// Package capture implements the voice-message pipeline: device capture into
// an encoded blob, then upload to object storage, then a send-ready draft.
package capture

import (
	"errors"
	"io"
	"time"
)

// Kind is the media kind being captured.
type Kind string

const (
	KindAudio Kind = "audio"
)

// ErrPermissionDenied is returned by a Device when the user refused access to
// the underlying hardware. It must reach the user as an actionable prompt,
// never be swallowed.
var ErrPermissionDenied = errors.New("device access denied")

// Constraints selects what to capture.
type Constraints struct {
	Kind Kind
}

// Device opens a raw media stream. Implementations wrap the platform's
// microphone API; tests use an in-memory stream.
type Device interface {
	Open(constraints Constraints) (Stream, error)
}

// Stream delivers encoded media bytes until closed. Close stops the capture.
type Stream interface {
	io.ReadCloser
	// MIMEType reports the container/codec of the bytes, e.g. "audio/ogg".
	MIMEType() string
}

// EncodedBlob is a finished capture.
type EncodedBlob struct {
	Data     []byte
	MIMEType string
	Duration time.Duration
}

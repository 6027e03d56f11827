package capture

import (
	"context"
	"fmt"
	"mime"
	"time"

	"murmur/internal/apperr"
	"murmur/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ObjectStore uploads a finished blob and returns its public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Pipeline glues recorder and object store together. On a successful stop the
// blob is uploaded under a collision-resistant key and turned into a
// send-ready audio draft. Upload failure is terminal for the capture; the
// bytes are discarded and the user re-records.
type Pipeline struct {
	rec    *Recorder
	store  ObjectStore
	logger *logrus.Logger
}

func NewPipeline(rec *Recorder, store ObjectStore, logger *logrus.Logger) *Pipeline {
	return &Pipeline{
		rec:    rec,
		store:  store,
		logger: logger,
	}
}

// Start begins a capture.
func (p *Pipeline) Start(kind Kind) (*Handle, error) {
	return p.rec.StartCapture(kind)
}

// Cancel discards an in-progress capture before Finish.
func (p *Pipeline) Cancel(h *Handle) {
	p.rec.Cancel(h)
}

// Finish stops the capture, uploads the blob and returns a draft carrying the
// media URL and measured duration.
func (p *Pipeline) Finish(ctx context.Context, h *Handle) (models.Draft, error) {
	blob, err := p.rec.StopCapture(h)
	if err != nil {
		return models.Draft{}, err
	}

	key := objectKey(blob.MIMEType)
	url, err := p.store.Put(ctx, key, blob.Data, blob.MIMEType)
	if err != nil {
		return models.Draft{}, apperr.Wrap(err, apperr.CodeUploadFailed, "failed to upload voice message").
			WithUserMessage("Upload failed, record again")
	}

	p.logger.WithFields(logrus.Fields{
		"key":      key,
		"bytes":    len(blob.Data),
		"duration": blob.Duration,
	}).Debug("Voice message uploaded")

	return models.Draft{
		Type:            models.AudioMessage,
		MediaURL:        url,
		DurationSeconds: blob.Duration.Seconds(),
	}, nil
}

// objectKey builds a {timestamp}-{random}.{ext} key so concurrent uploads
// never collide.
func objectKey(mimeType string) string {
	ext := ".bin"
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return fmt.Sprintf("%d-%s%s", time.Now().Unix(), uuid.NewString(), ext)
}

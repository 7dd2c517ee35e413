// Package avatar coordinates avatar uploads: local validation, object
// storage, then the user-record update, in that order. The record is
// only ever updated after the object is durably stored, so a reader
// following an avatar_key always finds the object.
package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/loomworks/loom/pkg/apperr"
	"github.com/loomworks/loom/pkg/observability"
	"github.com/loomworks/loom/pkg/user"
)

const (
	// DefaultMaxSize is the upload size limit when none is configured
	DefaultMaxSize = 5 << 20 // 5 MiB

	// DefaultTimeout bounds the whole upload end to end
	DefaultTimeout = 30 * time.Second

	// recordUpdateRetries bounds retries of the user-record update
	// after the object is already stored
	recordUpdateRetries = 3
)

// allowedTypes is the avatar content-type allow-list
var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// AllowedType reports whether a content type is accepted for avatars
func AllowedType(contentType string) bool {
	return allowedTypes[contentType]
}

// Key returns the deterministic object key for a user's avatar.
// Re-uploads overwrite in place, so no garbage accumulates.
func Key(userID int64) string {
	return fmt.Sprintf("avatars/user-%d", userID)
}

// ObjectStore stores avatar objects. Satisfied by storage.S3Client.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) error
}

// RecordUpdater points the user record at a stored avatar. Satisfied by
// the user store.
type RecordUpdater interface {
	UpdateAvatar(ctx context.Context, id int64, avatarKey string) (*user.User, error)
}

// Coordinator runs the validate, store, update pipeline for one upload
type Coordinator struct {
	objects ObjectStore
	records RecordUpdater
	maxSize int64
	timeout time.Duration
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewCoordinator creates an upload coordinator. maxSize <= 0 and
// timeout <= 0 fall back to the defaults.
func NewCoordinator(objects ObjectStore, records RecordUpdater, maxSize int64, timeout time.Duration, metrics *observability.Metrics, logger *observability.Logger) *Coordinator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		objects: objects,
		records: records,
		maxSize: maxSize,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// MaxSize returns the configured upload size limit
func (c *Coordinator) MaxSize() int64 {
	return c.maxSize
}

// Upload validates and stores an avatar, then points the user record at
// it. Validation failures cost no network round-trips. A failure after
// the object is stored leaves the previous record intact; the orphaned
// object is overwritten by the next successful upload of the same user.
func (c *Coordinator) Upload(ctx context.Context, userID int64, content io.Reader, contentType string) (*user.User, error) {
	start := time.Now()

	u, err := c.upload(ctx, userID, content, contentType)

	if c.metrics != nil {
		c.metrics.AvatarUploadDuration.Observe(time.Since(start).Seconds())
		c.metrics.AvatarUploadsTotal.WithLabelValues(uploadOutcome(err)).Inc()
	}
	return u, err
}

func (c *Coordinator) upload(ctx context.Context, userID int64, content io.Reader, contentType string) (*user.User, error) {
	if !AllowedType(contentType) {
		return nil, apperr.Validationf("unsupported avatar content type %q", contentType)
	}

	// Read at most one byte over the limit so oversized uploads are
	// rejected without buffering the whole body
	data, err := io.ReadAll(io.LimitReader(content, c.maxSize+1))
	if err != nil {
		return nil, apperr.Validationf("failed to read upload body")
	}
	if int64(len(data)) > c.maxSize {
		return nil, apperr.Validationf("avatar exceeds maximum size of %d bytes", c.maxSize)
	}
	if len(data) == 0 {
		return nil, apperr.Validationf("avatar upload is empty")
	}

	// The declared type must match the actual bytes
	if sniffed := http.DetectContentType(data); !AllowedType(sniffed) || sniffed != contentType {
		return nil, apperr.Validationf("avatar content does not match declared type %q", contentType)
	}

	if c.metrics != nil {
		c.metrics.AvatarUploadBytes.Observe(float64(len(data)))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := Key(userID)
	if err := c.objects.PutObject(ctx, key, bytes.NewReader(data), contentType); err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Error("avatar object store failed")
		return nil, apperr.Dependency("avatar storage unavailable", err)
	}

	// The object is durable; retry the cheap record update briefly
	// before giving up
	var updated *user.User
	backoff := retry.WithMaxRetries(recordUpdateRetries, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		u, err := c.records.UpdateAvatar(ctx, userID, key)
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				return err // user deleted mid-upload, retrying cannot help
			}
			return retry.RetryableError(err)
		}
		updated = u
		return nil
	})
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.WithField("user_id", userID).Warn("avatar upload deadline exceeded after object store")
		}
		return nil, apperr.Dependency("avatar record update failed", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"key":     key,
		"bytes":   len(data),
	}).Info("avatar uploaded")
	return updated, nil
}

func uploadOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperr.IsKind(err, apperr.KindValidation):
		return "rejected"
	default:
		return "failed"
	}
}

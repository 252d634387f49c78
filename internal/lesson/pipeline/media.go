package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/blackboard-backend/internal/platform/gcp"
)

const (
	MediaKindImage = "image"
	MediaKindAudio = "audio"
)

type Media struct {
	Bytes    []byte
	MimeType string
}

// MediaStore turns generated media into a reference the board can load.
type MediaStore interface {
	Put(ctx context.Context, m Media, kind string) (string, error)
}

// InlineStore embeds media as a data URI.
type InlineStore struct{}

func (InlineStore) Put(_ context.Context, m Media, _ string) (string, error) {
	if len(m.Bytes) == 0 {
		return "", ErrNoImage
	}
	return "data:" + m.MimeType + ";base64," + base64.StdEncoding.EncodeToString(m.Bytes), nil
}

// BucketStore uploads media to the lesson media bucket and returns its public URL.
type BucketStore struct {
	Bucket gcp.MediaBucket
}

func NewBucketStore(bucket gcp.MediaBucket) *BucketStore {
	return &BucketStore{Bucket: bucket}
}

func (s *BucketStore) Put(ctx context.Context, m Media, kind string) (string, error) {
	if len(m.Bytes) == 0 {
		return "", ErrNoImage
	}
	key := MediaKey(kind, m.MimeType, uuid.New())
	if err := s.Bucket.Upload(ctx, key, m.MimeType, bytes.NewReader(m.Bytes)); err != nil {
		return "", fmt.Errorf("upload %s: %w", kind, err)
	}
	return s.Bucket.PublicURL(key), nil
}

// MediaKey lays objects out as lessons/{kind}/{id}.{ext}.
func MediaKey(kind, mimeType string, id uuid.UUID) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "misc"
	}
	return path.Join("lessons", kind, id.String()+extensionFor(mimeType))
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

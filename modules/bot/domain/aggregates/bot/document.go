package bot

import (
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxDocumentSize = 10 << 20

var allowedContentTypes = map[string]struct{}{
	"application/pdf":    {},
	"text/plain":         {},
	"text/markdown":      {},
	"text/csv":           {},
	"application/json":   {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
}

type Document interface {
	UID() uuid.UUID
	BotUID() uuid.UUID
	Filename() string
	ContentType() string
	Blob() []byte
	Size() int
	CreatedAt() time.Time
	UpdatedAt() time.Time

	PullEvents() []any
}

type document struct {
	events

	uid         uuid.UUID
	botUID      uuid.UUID
	filename    string
	contentType string
	blob        []byte
	createdAt   time.Time
	updatedAt   time.Time
}

type DocumentOption func(*document)

func WithDocumentUID(uid uuid.UUID) DocumentOption {
	return func(d *document) {
		if uid != uuid.Nil {
			d.uid = uid
		}
	}
}

func WithDocumentTimestamps(createdAt, updatedAt time.Time) DocumentOption {
	return func(d *document) {
		if !createdAt.IsZero() {
			d.createdAt = createdAt
		}
		if !updatedAt.IsZero() {
			d.updatedAt = updatedAt
		}
	}
}

func NewDocument(botUID uuid.UUID, filename, contentType string, blob []byte, opts ...DocumentOption) Document {
	now := time.Now().UTC()
	d := &document{
		uid:         uuid.New(),
		botUID:      botUID,
		filename:    filename,
		contentType: contentType,
		blob:        blob,
		createdAt:   now,
		updatedAt:   now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// UploadDocument validates an upload. A missing content type is derived
// from the file extension.
func UploadDocument(botUID uuid.UUID, filename, contentType string, blob []byte) (Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == "/" {
		return nil, ErrInvalidFileType.WithMessage("filename is required")
	}
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, ErrInvalidFileType.WithMessage("cannot determine content type of %s", filename)
	}
	if _, ok := allowedContentTypes[mediaType]; !ok {
		return nil, ErrInvalidFileType.WithMessage("content type %s is not supported", mediaType)
	}
	if len(blob) > MaxDocumentSize {
		return nil, ErrFileTooLarge.WithMessage("%s is %d bytes, limit is %d", filename, len(blob), MaxDocumentSize)
	}
	d := NewDocument(botUID, filename, mediaType, append([]byte(nil), blob...)).(*document)
	d.record(DocumentUploadedEvent{BotUID: botUID, DocumentUID: d.uid, Filename: filename})
	return d, nil
}

func (d *document) UID() uuid.UUID       { return d.uid }
func (d *document) BotUID() uuid.UUID    { return d.botUID }
func (d *document) Filename() string     { return d.filename }
func (d *document) ContentType() string  { return d.contentType }
func (d *document) Blob() []byte         { return d.blob }
func (d *document) Size() int            { return len(d.blob) }
func (d *document) CreatedAt() time.Time { return d.createdAt }
func (d *document) UpdatedAt() time.Time { return d.updatedAt }

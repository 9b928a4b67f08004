package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"

	"github.com/soyeahso/agentdesk/internal/domain"
)

// MaxAttachmentSize is the largest file UploadAttachment accepts.
const MaxAttachmentSize = 16 << 20

// ProgressFunc receives upload progress in percent.
type ProgressFunc func(percent int)

// UploadAttachment uploads a file as multipart form data under "file".
func (c *Client) UploadAttachment(ctx context.Context, name string, data []byte, progress ProgressFunc) (domain.Attachment, error) {
	var out domain.Attachment
	if len(data) > MaxAttachmentSize {
		return out, fmt.Errorf("attachment %s is %d bytes, limit is %d", name, len(data), MaxAttachmentSize)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(name)))
	h.Set("Content-Type", domain.MimeTypeFor(name))
	part, err := w.CreatePart(h)
	if err != nil {
		return out, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return out, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return out, fmt.Errorf("failed to build upload: %w", err)
	}

	if progress != nil {
		progress(0)
	}
	req := request{
		method:      http.MethodPost,
		path:        "attachments",
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}
	if err := c.call(ctx, req, &out); err != nil {
		return out, err
	}
	if progress != nil {
		progress(100)
	}

	if out.Name == "" {
		out.Name = filepath.Base(name)
	}
	if out.MimeType == "" {
		out.MimeType = domain.MimeTypeFor(name)
	}
	if out.Size == 0 {
		out.Size = int64(len(data))
	}
	return out, nil
}

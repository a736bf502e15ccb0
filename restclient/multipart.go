package restclient

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"

	"github.com/unkn0wn-root/editcache/admin"
)

// multipartBody streams files as a multipart form under field. The returned
// reader must be consumed or closed.
func multipartBody(field string, files []admin.Upload) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeParts(mw, field, files)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()
	return pr, mw.FormDataContentType()
}

func writeParts(mw *multipart.Writer, field string, files []admin.Upload) error {
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		if !f.ModTime.IsZero() {
			h.Set("X-Last-Modified", f.ModTime.UTC().Format(time.RFC3339))
		}
		if f.Size > 0 {
			h.Set("X-File-Size", strconv.FormatInt(f.Size, 10))
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if f.Body == nil {
			continue
		}
		if _, err := io.Copy(part, f.Body); err != nil {
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}
	}
	return nil
}

func (c *Client) upload(ctx context.Context, op, method, target, field string, files []admin.Upload) (admin.Response, error) {
	body, contentType := multipartBody(field, files)
	defer body.Close()
	resp, err := c.do(ctx, op, method, target, body, contentType)
	if err != nil {
		return nil, err
	}
	return readResponse(op, resp)
}

// UploadAttachments sends files in one multipart request. The server may
// answer with the full record or with no body.
func (c *Client) UploadAttachments(ctx context.Context, userID string, files []admin.Upload) (admin.Response, error) {
	if len(files) == 0 {
		return admin.NoBody{}, nil
	}
	return c.upload(ctx, "upload attachments", http.MethodPost, c.endpoint("users", userID, "attachments"), "files", files)
}

func (c *Client) SetAvatar(ctx context.Context, userID string, file admin.Upload) (admin.Response, error) {
	return c.upload(ctx, "set avatar", http.MethodPut, c.endpoint("users", userID, "avatar"), "file", []admin.Upload{file})
}

package client

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
)

// File is the content handed to an upload.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Content  io.Reader
}

// ProgressFunc receives upload progress in percent (0-100).
type ProgressFunc func(percent float64)

// UploadAsync submits file for background processing under botID.
// The server answers as soon as the file is stored; processing continues asynchronously.
func (c *Client) UploadAsync(ctx context.Context, file File, botID string, onProgress ProgressFunc) (*UploadResponse, error) {
	var resp UploadResponse
	if err := c.upload(ctx, "/documents/upload", file, botID, onProgress, &resp); err != nil {
		return nil, err
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadSync uses the legacy blocking endpoint, which returns after processing has finished.
func (c *Client) UploadSync(ctx context.Context, file File, botID string) (*SyncUploadResponse, error) {
	var resp SyncUploadResponse
	if err := c.upload(ctx, "/documents/upload/sync", file, botID, nil, &resp); err != nil {
		return nil, err
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) upload(ctx context.Context, path string, file File, botID string, onProgress ProgressFunc, result any) error {
	if file.Content == nil {
		return fmt.Errorf("upload %s: no content", file.Name)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeMultipart(mw, file, onProgress)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, path, url.Values{"bot_id": {botID}}, pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if err := c.do(req, result); err != nil {
		pr.Close()
		return fmt.Errorf("upload %s: %w", file.Name, err)
	}
	return nil
}

func writeMultipart(mw *multipart.Writer, file File, onProgress ProgressFunc) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
	mime := file.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	h.Set("Content-Type", mime)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create form part: %w", err)
	}

	if onProgress == nil {
		if _, err := io.Copy(part, file.Content); err != nil {
			return fmt.Errorf("copy file content: %w", err)
		}
		return nil
	}

	src := &progressReader{r: file.Content, total: file.Size, fn: onProgress}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy file content: %w", err)
	}
	if src.last < 100 {
		onProgress(100)
	}
	return nil
}

// progressReader reports the share of total bytes read so far.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  float64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 && n > 0 {
		pct := float64(p.read) / float64(p.total) * 100
		if pct > 100 {
			pct = 100
		}
		// Only whole-percent steps are reported.
		if pct-p.last >= 1 || (pct == 100 && p.last < 100) {
			p.last = pct
			p.fn(pct)
		}
	}
	return n, err
}

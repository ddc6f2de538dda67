package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/docshelf/backend/internal/models"
	"github.com/docshelf/backend/internal/upload"
)

// progressWriter counts payload bytes as the transport consumes them.
type progressWriter struct {
	w      io.Writer
	loaded int64
	total  int64
	report func(upload.Progress)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.loaded += int64(n)
		p.report(upload.Progress{Loaded: p.loaded, Total: p.total})
	}
	return n, err
}

// writeMultipart streams the form for f into mw. The payload is counted on
// the writer side of the pipe, so an event fires once the transport has
// taken the chunk.
func writeMultipart(mw *multipart.Writer, f *upload.UploadableFile, report func(upload.Progress)) error {
	if f.Parent != "" {
		if err := mw.WriteField("parent", f.Parent); err != nil {
			return err
		}
	}

	part, err := mw.CreateFormFile("file", filepath.Base(f.Name))
	if err != nil {
		return err
	}

	report(upload.Progress{Loaded: 0, Total: f.Size})

	pw := &progressWriter{w: part, total: f.Size, report: report}
	n, err := io.Copy(pw, f.Content)
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.Name, err)
	}
	if n != f.Size {
		return fmt.Errorf("%s: read %d bytes, expected %d", f.Name, n, f.Size)
	}
	return mw.Close()
}

// Send uploads f as multipart/form-data to /ui/api/documents/upload. It
// implements upload.Sender. The request is never retried.
func (c *Client) Send(ctx context.Context, f *upload.UploadableFile, report func(upload.Progress)) ([]models.Document, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, f, report))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/documents/upload"), pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("uploading %s: %w", f.Name, err)
	}
	defer resp.Body.Close()
	// Unblocks the writer if the server answered before reading the body.
	defer pr.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var docs []models.Document
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return docs, nil
}

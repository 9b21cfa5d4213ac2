// Package scanimport turns photographed paper diaries into reviewed diary
// events. Extraction output is never stored; only candidates a person has
// accepted become events.
package scanimport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// ErrUnavailable is returned when no extractor is configured or it fails.
var ErrUnavailable = errors.New("scan extractor unavailable")

// Image is one uploaded page.
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Extractor reads diary entries off scanned pages.
type Extractor interface {
	Extract(ctx context.Context, images []Image) ([]Candidate, error)
}

type extractResponse struct {
	Entries []Candidate `json:"entries"`
}

// HTTPExtractor posts pages as multipart form data to an extraction
// service and decodes {"entries": [...]}.
type HTTPExtractor struct {
	url    string
	client *http.Client
}

func NewHTTPExtractor(url string, timeout time.Duration) *HTTPExtractor {
	return &HTTPExtractor{url: url, client: &http.Client{Timeout: timeout}}
}

func (x *HTTPExtractor) Extract(ctx context.Context, images []Image) ([]Candidate, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Filename))
		h.Set("Content-Type", img.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}
	return out.Entries, nil
}

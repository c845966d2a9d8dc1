package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// uploadFieldName is the multipart form field the backend reads the file from.
const uploadFieldName = "file"

// maxLocatorBody caps the download locator response. Locators are URLs.
const maxLocatorBody = 64 << 10

// ErrNoLocator is returned when the backend answers a locator request with an
// empty body.
var ErrNoLocator = errors.New("api: empty download locator")

// ProgressFunc is called as upload bytes are handed to the transport.
// total is -1 when the payload size is unknown.
type ProgressFunc func(sent, total int64)

// ListFiles fetches the complete current listing. Server order is preserved.
func (c *Client) ListFiles(ctx context.Context) ([]FileRecord, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/files", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("api: decoding file listing: %w", err)
	}

	records := decodeRecords(raw, c.logger)

	c.logger.Debug("listed files",
		slog.Int("received", len(raw)),
		slog.Int("kept", len(records)),
	)

	return records, nil
}

// Upload sends one file as multipart/form-data in a single request.
// The body is streamed: the multipart envelope is precomputed so the request
// carries an exact Content-Length whenever size is known. Unlike ListFiles,
// a failed upload must never be replayed with the same reader.
func (c *Client) Upload(
	ctx context.Context, name string, r io.Reader, size int64, contentType string, progress ProgressFunc,
) (*FileRecord, error) {
	c.logger.Info("uploading file",
		slog.String("name", name),
		slog.Int64("size", size),
		slog.String("content_type", contentType),
	)

	head, tail, boundary, err := multipartEnvelope(name, contentType)
	if err != nil {
		return nil, err
	}

	var payload io.Reader = r
	if progress != nil {
		payload = &progressReader{r: r, total: size, fn: progress}
	}

	length := int64(-1)
	if size >= 0 {
		length = int64(len(head)) + size + int64(len(tail))
	}

	resp, err := c.send(ctx, request{
		method:        http.MethodPost,
		path:          "/files/upload",
		contentType:   "multipart/form-data; boundary=" + boundary,
		body:          io.MultiReader(bytes.NewReader(head), payload, bytes.NewReader(tail)),
		contentLength: length,
		authenticated: true,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decoding upload response: %w", ErrUnexpectedResponse, err)
	}

	rec, ok := decodeRecord(raw, 0, c.logger)
	if !ok || rec.ID == "" {
		return nil, fmt.Errorf("%w: upload response for %q has no identifier", ErrUnexpectedResponse, name)
	}

	c.logger.Debug("upload complete",
		slog.String("file_id", rec.ID),
		slog.String("name", rec.Name),
	)

	return &rec, nil
}

// DeleteFile deletes one file by identifier. A 404 surfaces as ErrNotFound.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	c.logger.Info("deleting file", slog.String("file_id", id))

	resp, err := c.Do(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}

	drain(resp)

	return nil
}

// DownloadLocator resolves an addressable reference (typically a signed URL)
// for the file's bytes. The backend answers with the locator as plain text, a
// JSON string, or a JSON object carrying it under url/downloadUrl/locator.
// The locator is never logged.
func (c *Client) DownloadLocator(ctx context.Context, id string) (string, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/files/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLocatorBody))
	if err != nil {
		return "", &NetworkError{Op: "reading download locator", Err: err}
	}

	locator, err := parseLocator(body)
	if err != nil {
		return "", err
	}

	c.logger.Debug("resolved download locator", slog.String("file_id", id))

	return locator, nil
}

func parseLocator(body []byte) (string, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return "", ErrNoLocator
	}

	switch body[0] {
	case '"':
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return "", fmt.Errorf("api: decoding download locator: %w", err)
		}

		if s = strings.TrimSpace(s); s == "" {
			return "", ErrNoLocator
		}

		return s, nil
	case '{':
		var obj struct {
			URL         string `json:"url"`
			DownloadURL string `json:"downloadUrl"`
			Locator     string `json:"locator"`
		}
		if err := json.Unmarshal(body, &obj); err != nil {
			return "", fmt.Errorf("api: decoding download locator: %w", err)
		}

		if s := firstNonEmpty(obj.DownloadURL, obj.URL, obj.Locator); s != "" {
			return s, nil
		}

		return "", ErrNoLocator
	default:
		return string(body), nil
	}
}

// multipartEnvelope renders everything around the file bytes: the part
// header before and the closing boundary after.
func multipartEnvelope(name, contentType string) (head, tail []byte, boundary string, err error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(uploadFieldName), escapeQuotes(name)))
	h.Set("Content-Type", contentType)

	if _, err := mw.CreatePart(h); err != nil {
		return nil, nil, "", fmt.Errorf("api: building multipart header: %w", err)
	}

	headLen := buf.Len()

	if err := mw.Close(); err != nil {
		return nil, nil, "", fmt.Errorf("api: building multipart trailer: %w", err)
	}

	all := buf.Bytes()

	return all[:headLen:headLen], all[headLen:], mw.Boundary(), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// escapeQuotes matches mime/multipart's escaping of form field names.
func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressReader reports cumulative bytes read from the payload.
type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}

	return n, err
}

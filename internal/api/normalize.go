package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Timestamp validation bounds. Timestamps outside this range are treated as
// absent and a warning is logged.
const (
	minValidYear = 1970
	maxValidYear = 2100
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds in
// numeric timestamps (1e11 seconds is the year 5138).
const epochMillisThreshold = 100_000_000_000

// timestampLayouts are tried in order for string timestamps. Zone-less
// layouts are interpreted as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// flexString decodes a JSON string or number into a string. Identifiers come
// back as UUID strings from some backends and as integers from others.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*f = flexString(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}

	*f = flexString(n.String())

	return nil
}

// fileResponse mirrors the backend file object. The backend has shipped
// several field spellings over time; every known alias is accepted.
// Unexported: callers use FileRecord via toRecord() normalization.
type fileResponse struct {
	ID     flexString `json:"id"`
	FileID flexString `json:"fileId"`
	UUID   flexString `json:"uuid"`
	OID    flexString `json:"_id"` //nolint:tagliatelle // document-store key

	FileName     flexString `json:"fileName"`
	Name         flexString `json:"name"`
	OriginalName flexString `json:"originalName"`
	Filename     flexString `json:"filename"`

	// Sizes arrive as integers, floats or numeric strings.
	Size     json.RawMessage `json:"size"`
	ByteSize json.RawMessage `json:"byteSize"`
	Length   json.RawMessage `json:"length"`

	CreatedAt   json.RawMessage `json:"createdAt"`
	UploadedAt  json.RawMessage `json:"uploadedAt"`
	CreatedDate json.RawMessage `json:"createdDate"`

	ContentType flexString `json:"contentType"`
	MimeType    flexString `json:"mimeType"`

	URL         flexString `json:"url"`
	DownloadURL flexString `json:"downloadUrl"`
}

// fileIDOnly is the fallback decode for an entry whose other fields are
// malformed; an identified file is still listed.
type fileIDOnly struct {
	ID     flexString `json:"id"`
	FileID flexString `json:"fileId"`
	UUID   flexString `json:"uuid"`
	OID    flexString `json:"_id"` //nolint:tagliatelle // document-store key
}

// toRecord normalizes a backend file object into a FileRecord.
func (f *fileResponse) toRecord(logger *slog.Logger) FileRecord {
	rec := FileRecord{
		ID:          firstNonEmpty(string(f.ID), string(f.FileID), string(f.UUID), string(f.OID)),
		Name:        norm.NFC.String(firstNonEmpty(string(f.FileName), string(f.Name), string(f.OriginalName), string(f.Filename))),
		Size:        SizeUnknown,
		ContentType: firstNonEmpty(string(f.ContentType), string(f.MimeType)),
		Locator:     firstNonEmpty(string(f.DownloadURL), string(f.URL)),
	}

	for _, raw := range []json.RawMessage{f.Size, f.ByteSize, f.Length} {
		if n, ok := parseSize(raw, rec.ID, logger); ok {
			rec.Size = n
			break
		}
	}

	for _, raw := range []json.RawMessage{f.CreatedAt, f.UploadedAt, f.CreatedDate} {
		if t, ok := parseTimestamp(raw, rec.ID, logger); ok {
			rec.CreatedAt = t
			break
		}
	}

	return rec
}

// decodeRecords normalizes a listing. Entries that fail to decode or carry no
// identifier are dropped with a warning; a repeated identifier keeps its first
// occurrence so IDs stay unique within one listing. Server order is preserved.
func decodeRecords(raw []json.RawMessage, logger *slog.Logger) []FileRecord {
	records := make([]FileRecord, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	for i, item := range raw {
		rec, ok := decodeRecord(item, i, logger)
		if !ok {
			continue
		}

		if rec.ID == "" {
			logger.Warn("dropping file entry without identifier",
				slog.Int("index", i),
				slog.String("name", rec.Name),
			)

			continue
		}

		if _, dup := seen[rec.ID]; dup {
			logger.Warn("dropping duplicate file entry",
				slog.String("file_id", rec.ID),
			)

			continue
		}

		seen[rec.ID] = struct{}{}
		records = append(records, rec)
	}

	return records
}

// decodeRecord decodes one listing entry. When the full decode fails but an
// identifier is readable, the record is kept with only its identifier.
func decodeRecord(item json.RawMessage, index int, logger *slog.Logger) (FileRecord, bool) {
	var fr fileResponse

	err := json.Unmarshal(item, &fr)
	if err == nil {
		return fr.toRecord(logger), true
	}

	var ids fileIDOnly
	if idErr := json.Unmarshal(item, &ids); idErr == nil {
		id := firstNonEmpty(string(ids.ID), string(ids.FileID), string(ids.UUID), string(ids.OID))
		if id != "" {
			logger.Warn("file entry partly undecodable, keeping identifier only",
				slog.String("file_id", id),
				slog.String("error", err.Error()),
			)

			return FileRecord{ID: id, Size: SizeUnknown}, true
		}
	}

	logger.Warn("dropping undecodable file entry",
		slog.Int("index", index),
		slog.String("error", err.Error()),
	)

	return FileRecord{}, false
}

// parseSize accepts a non-negative integer, an integral float or a numeric
// string. Returns false when the field is absent; anything else unreadable is
// logged and treated as absent.
func parseSize(raw json.RawMessage, fileID string, logger *slog.Logger) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			text = ""
		}

		text = strings.TrimSpace(text)
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil && n >= 0 {
		return n, true
	}

	if f, err := strconv.ParseFloat(text, 64); err == nil && f >= 0 && f == math.Trunc(f) && f < math.MaxInt64 {
		return int64(f), true
	}

	logger.Warn("invalid file size, treating as unknown",
		slog.String("file_id", fileID),
		slog.String("raw", string(raw)),
	)

	return 0, false
}

// parseTimestamp accepts an ISO-8601 string (with or without zone) or an
// epoch number in seconds or milliseconds. Returns false when the field is
// absent, malformed or out of range.
func parseTimestamp(raw json.RawMessage, fileID string, logger *slog.Logger) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}

	var t time.Time

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return time.Time{}, false
		}

		parsed, ok := parseTimestampString(s)
		if !ok {
			logger.Warn("invalid timestamp, treating as absent",
				slog.String("file_id", fileID),
				slog.String("raw", s),
			)

			return time.Time{}, false
		}

		t = parsed
	} else {
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			logger.Warn("invalid numeric timestamp, treating as absent",
				slog.String("file_id", fileID),
				slog.String("raw", string(raw)),
			)

			return time.Time{}, false
		}

		if n >= epochMillisThreshold {
			t = time.UnixMilli(n).UTC()
		} else {
			t = time.Unix(n, 0).UTC()
		}
	}

	if t.Year() < minValidYear || t.Year() > maxValidYear {
		logger.Warn("timestamp out of valid range, treating as absent",
			slog.String("file_id", fileID),
			slog.Time("parsed", t),
		)

		return time.Time{}, false
	}

	return t, true
}

func parseTimestampString(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}

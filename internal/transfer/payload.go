package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/unicode/norm"

	"github.com/cloudo-app/cloudo-go/internal/api"
)

// sniffLen is how many leading bytes are inspected to detect a content type.
const sniffLen = 3072

// Payload is the content of one upload.
type Payload struct {
	Name        string    // file name as stored by the backend
	Content     io.Reader // read exactly once
	Size        int64     // api.SizeUnknown when not known up front
	ContentType string    // detected from the content when empty

	closer io.Closer
}

// OpenPayload opens a local regular file for upload. The file is closed when
// the upload task finishes.
func OpenPayload(path string) (Payload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Payload{}, fmt.Errorf("transfer: %w", err)
	}

	if !info.Mode().IsRegular() {
		return Payload{}, fmt.Errorf("transfer: %s: %w: not a regular file", path, api.ErrInvalidInput)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return Payload{}, fmt.Errorf("transfer: detecting content type of %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Payload{}, fmt.Errorf("transfer: %w", err)
	}

	return Payload{
		Name:        norm.NFC.String(filepath.Base(path)),
		Content:     f,
		Size:        info.Size(),
		ContentType: mtype.String(),
		closer:      f,
	}, nil
}

func (p *Payload) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: payload has no name", api.ErrInvalidInput)
	}

	if p.Content == nil {
		return fmt.Errorf("%w: payload %q has no content", api.ErrInvalidInput, p.Name)
	}

	return nil
}

// sniff fills in ContentType from the leading bytes when the caller left it
// empty. The bytes read are stitched back in front of the remaining content.
func (p *Payload) sniff() error {
	if p.ContentType != "" {
		return nil
	}

	buf := make([]byte, sniffLen)

	n, err := io.ReadFull(p.Content, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("reading payload: %w", err)
	}

	buf = buf[:n]
	p.ContentType = mimetype.Detect(buf).String()
	p.Content = io.MultiReader(bytes.NewReader(buf), p.Content)

	return nil
}

func (p *Payload) close() {
	if p.closer != nil {
		_ = p.closer.Close()
	}
}

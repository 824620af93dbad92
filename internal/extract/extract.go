package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"casedocs-backend/internal/shared/storage/object"
)

// ErrUnsupported reports an extension this package cannot derive text from.
var ErrUnsupported = errors.New("unsupported file extension")

// passthrough extensions are stored as-is; their bytes already are text.
var passthrough = map[string]struct{}{
	"txt":  {},
	"md":   {},
	"csv":  {},
	"html": {},
}

// Supported reports whether text can be derived for the given extension.
// Extensions are lowercase without a leading dot.
func Supported(ext string) bool {
	if _, ok := passthrough[ext]; ok {
		return true
	}
	return ext == "pdf" || ext == "docx"
}

// Run reads the blob, derives plain text from it, and stores the result at
// derivedKey. It returns the number of bytes written. Callers are expected to
// record the derived key on the index themselves.
func Run(ctx context.Context, store object.Store, blobKey, derivedKey, ext string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	body, err := store.Open(ctx, blobKey)
	if err != nil {
		return 0, fmt.Errorf("extract key=%s ext=%s: %w", blobKey, ext, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return 0, fmt.Errorf("extract key=%s ext=%s: read: %w", blobKey, ext, err)
	}

	text, err := FromBytes(raw, ext)
	if err != nil {
		return 0, fmt.Errorf("extract key=%s ext=%s: %w", blobKey, ext, err)
	}

	n, err := store.Put(ctx, derivedKey, "text/plain; charset=utf-8", strings.NewReader(text))
	if err != nil {
		return 0, fmt.Errorf("extract key=%s ext=%s: store derived: %w", blobKey, ext, err)
	}
	return n, nil
}

// FromBytes derives plain text from an in-memory payload.
func FromBytes(data []byte, ext string) (string, error) {
	if _, ok := passthrough[ext]; ok {
		return string(data), nil
	}
	switch ext {
	case "pdf":
		return fromPDF(data)
	case "docx":
		return fromDOCX(data)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

func fromPDF(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	pdfReader, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func fromDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	readerAt := bytes.NewReader(data)
	zr, err := zip.NewReader(readerAt, int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		name := strings.ReplaceAll(f.Name, "\\", "/")
		if name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}

	return stripDocxXML(string(raw)), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if t.Name.Local == "p" || t.Name.Local == "br" {
				if last := buf.Len(); last > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

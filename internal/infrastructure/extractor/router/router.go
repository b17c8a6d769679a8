package router

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

const (
	MimePlain = "text/plain"
	MimePDF   = "application/pdf"
	MimeDOCX  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// MaxArchiveBytes bounds how much of an application/zip upload is buffered to inspect its layout.
const MaxArchiveBytes int64 = 64 << 20

// genericTypes carry no format information; the file extension or the zip layout decides.
var genericTypes = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
	"application/zip":          true,
	"binary/octet-stream":      true,
}

// Router picks an extractor by content type, then by extension, then by zip layout.
type Router struct {
	byType       map[string]ports.TextExtractor
	byExt        map[string]ports.TextExtractor
	fallback     ports.TextExtractor
	archiveLimit int64
}

func New() *Router {
	return &Router{
		archiveLimit: MaxArchiveBytes,
		byType:       make(map[string]ports.TextExtractor),
		byExt:        make(map[string]ports.TextExtractor),
	}
}

// Register binds extractor to the content type and the given extensions (".pdf").
func (r *Router) Register(contentType string, extractor ports.TextExtractor, exts ...string) *Router {
	r.byType[normalizeType(contentType)] = extractor
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = extractor
	}
	return r
}

// Fallback is used for any text/* type without a registered extractor.
func (r *Router) Fallback(extractor ports.TextExtractor) *Router {
	r.fallback = extractor
	return r
}

// ArchiveLimit overrides MaxArchiveBytes.
func (r *Router) ArchiveLimit(n int64) *Router {
	if n > 0 {
		r.archiveLimit = n
	}
	return r
}

func (r *Router) Extract(ctx context.Context, file ports.SourceFile) (string, error) {
	contentType := normalizeType(file.ContentType)

	if !genericTypes[contentType] {
		if ex, ok := r.byType[contentType]; ok {
			return ex.Extract(ctx, file)
		}
	}
	if ex, ok := r.byExt[strings.ToLower(filepath.Ext(file.Name))]; ok {
		return ex.Extract(ctx, file)
	}
	if contentType == "application/zip" {
		data, err := io.ReadAll(io.LimitReader(file.Body, r.archiveLimit+1))
		if err != nil {
			return "", fmt.Errorf("read source document: %w", err)
		}
		if int64(len(data)) > r.archiveLimit {
			return "", fmt.Errorf("archive %s exceeds %d bytes", file.Name, r.archiveLimit)
		}
		file.Body = bytes.NewReader(data)
		if ex, ok := r.byType[ooxmlType(data)]; ok {
			return ex.Extract(ctx, file)
		}
	}
	if r.fallback != nil && strings.HasPrefix(contentType, "text/") {
		return r.fallback.Extract(ctx, file)
	}

	if contentType == "" {
		contentType = "unknown"
	}
	return "", fmt.Errorf("unsupported format: %s", contentType)
}

func normalizeType(contentType string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
}

func ooxmlType(data []byte) string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		switch strings.ReplaceAll(f.Name, "\\", "/") {
		case "word/document.xml":
			return MimeDOCX
		case "xl/workbook.xml":
			return MimeXLSX
		}
	}
	return ""
}

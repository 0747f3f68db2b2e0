// Package document holds the parsed representation of an input document:
// its format, page geometry, metadata, and content hash.
package document

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/gopnik-forensics/gopnik/pkg/crypto"
)

// Format identifies the container format of an input file.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatPNG     Format = "png"
	FormatJPG     Format = "jpg"
	FormatJPEG    Format = "jpeg"
	FormatTIFF    Format = "tiff"
	FormatBMP     Format = "bmp"
	FormatUnknown Format = "unknown"
)

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF
	case ".png":
		return FormatPNG
	case ".jpg":
		return FormatJPG
	case ".jpeg":
		return FormatJPEG
	case ".tiff", ".tif":
		return FormatTIFF
	case ".bmp":
		return FormatBMP
	default:
		return FormatUnknown
	}
}

// Page describes one page of a document. Width and height are pixels at the
// recorded DPI; rotation is one of 0, 90, 180, 270.
type Page struct {
	PageNumber  int            `json:"page_number"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	DPI         int            `json:"dpi"`
	Rotation    int            `json:"rotation"`
	TextContent string         `json:"text_content,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Document is the parsed form of an input file. Pages are owned by the
// document and numbered 0..n-1.
type Document struct {
	ID       string         `json:"id"`
	Path     string         `json:"path"`
	Format   Format         `json:"format"`
	Pages    []Page         `json:"pages"`
	Metadata map[string]any `json:"metadata,omitempty"`
	FileHash string         `json:"file_hash,omitempty"`
}

// New creates a document shell for a path.
func New(path string) *Document {
	return &Document{
		ID:       uuid.New().String(),
		Path:     path,
		Format:   FormatFromPath(path),
		Metadata: map[string]any{},
	}
}

// PageCount returns the number of decoded pages.
func (d *Document) PageCount() int { return len(d.Pages) }

// ValidatePageNumbering checks that pages form the sequence 0..n-1.
func (d *Document) ValidatePageNumbering() error {
	for i, p := range d.Pages {
		if p.PageNumber != i {
			return fmt.Errorf("document: page %d numbered %d, want %d", i, p.PageNumber, i)
		}
	}
	return nil
}

// ComputeHash recomputes the file hash from the bytes on disk. Called on
// demand by integrity validation so the hash always reflects current state.
func (d *Document) ComputeHash() (string, error) {
	h, err := crypto.HashFile(d.Path)
	if err != nil {
		return "", err
	}
	d.FileHash = h
	return h, nil
}

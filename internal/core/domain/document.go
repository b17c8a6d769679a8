package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "UPLOADED"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusProcessed  DocumentStatus = "PROCESSED"
	StatusError      DocumentStatus = "ERROR"
)

// ParseStatus resolves a status token case-insensitively. Unknown tokens report ok=false.
func ParseStatus(raw string) (DocumentStatus, bool) {
	switch DocumentStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusUploaded:
		return StatusUploaded, true
	case StatusProcessing:
		return StatusProcessing, true
	case StatusProcessed:
		return StatusProcessed, true
	case StatusError:
		return StatusError, true
	default:
		return "", false
	}
}

func (s DocumentStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

// CanStartRun reports whether a pipeline run may move the document into PROCESSING.
func (s DocumentStatus) CanStartRun() bool {
	return s == StatusUploaded || s.Terminal()
}

type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Document struct {
	ID            string         `json:"id"`
	StorageKey    string         `json:"storage_key"`
	OriginalName  string         `json:"original_name"`
	ContentType   string         `json:"content_type"`
	SizeBytes     int64          `json:"size_bytes"`
	Status        DocumentStatus `json:"status"`
	ExtractedText string         `json:"extracted_text,omitempty"`
	Category      *Category      `json:"category,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	OwnerID       string         `json:"owner_id"`
	OwnerName     string         `json:"owner_name,omitempty"`
	Tags          []string       `json:"tags"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CategoryName returns the assigned category name or "" when unassigned.
func (d *Document) CategoryName() string {
	if d == nil || d.Category == nil {
		return ""
	}
	return d.Category.Name
}

type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// DocumentChange is a partial update. Nil fields are left untouched so concurrent
// writers to different fields of the same row do not clobber each other.
type DocumentChange struct {
	Status        *DocumentStatus
	ExtractedText *string
	CategoryName  *string
	Confidence    *float64
	ErrorMessage  *string
}

func (c DocumentChange) Empty() bool {
	return c.Status == nil && c.ExtractedText == nil && c.CategoryName == nil &&
		c.Confidence == nil && c.ErrorMessage == nil
}

// Apply mutates doc in place. Category resolution is left to the store; only the name is set here.
func (c DocumentChange) Apply(doc *Document, now time.Time) {
	if c.Status != nil {
		doc.Status = *c.Status
	}
	if c.ExtractedText != nil {
		doc.ExtractedText = *c.ExtractedText
	}
	if c.CategoryName != nil {
		if doc.Category == nil || doc.Category.Name != *c.CategoryName {
			doc.Category = &Category{Name: *c.CategoryName}
		}
	}
	if c.Confidence != nil {
		v := *c.Confidence
		doc.Confidence = &v
	}
	if c.ErrorMessage != nil {
		doc.ErrorMessage = *c.ErrorMessage
	}
	doc.UpdatedAt = now
}

func StatusPtr(s DocumentStatus) *DocumentStatus { return &s }

func StringPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }

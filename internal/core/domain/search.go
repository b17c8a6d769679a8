package domain

import "math"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = math.MaxInt / MaxPageSize // keeps Page*Size within int range
)

type Principal struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Admin bool   `json:"admin"`
}

// CanAccess reports whether the principal may see a document owned by ownerID.
func (p Principal) CanAccess(ownerID string) bool {
	return p.Admin || (p.ID != "" && p.ID == ownerID)
}

// Scope is the ownership boundary of a read. The zero value matches no documents;
// AllDocuments must be asked for explicitly.
type Scope struct {
	OwnerID  string
	Everyone bool
}

func AllDocuments() Scope { return Scope{Everyone: true} }

func (s Scope) All() bool { return s.Everyone }

// Includes reports whether a document owned by ownerID is inside the scope.
func (s Scope) Includes(ownerID string) bool {
	return s.Everyone || (s.OwnerID != "" && s.OwnerID == ownerID)
}

func ScopeFor(p Principal) Scope {
	if p.Admin {
		return AllDocuments()
	}
	return Scope{OwnerID: p.ID}
}

type PageRequest struct {
	Page int
	Size int
}

func (p PageRequest) Normalize() PageRequest {
	out := p
	if out.Page < 0 {
		out.Page = 0
	}
	if out.Page > MaxPage {
		out.Page = MaxPage
	}
	if out.Size <= 0 {
		out.Size = DefaultPageSize
	}
	if out.Size > MaxPageSize {
		out.Size = MaxPageSize
	}
	return out
}

func (p PageRequest) Offset() int { return p.Page * p.Size }

// SearchQuery filters documents. Status is nil when absent or not a known token.
type SearchQuery struct {
	Text     string
	Category string
	Status   *DocumentStatus
	Scope    Scope
	Page     PageRequest
}

type DocumentPage struct {
	Items      []Document `json:"items"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Size       int        `json:"size"`
	TotalPages int        `json:"total_pages"`
}

func NewDocumentPage(items []Document, total int, page PageRequest) DocumentPage {
	if items == nil {
		items = []Document{}
	}
	pages := 0
	if page.Size > 0 {
		pages = (total + page.Size - 1) / page.Size
	}
	return DocumentPage{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		Size:       page.Size,
		TotalPages: pages,
	}
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// UncategorizedLabel names the bucket for documents without a category in stats.
const UncategorizedLabel = "Uncategorized"

type Stats struct {
	TotalDocuments     int             `json:"total_documents"`
	ProcessedDocuments int             `json:"processed_documents"`
	ErrorDocuments     int             `json:"error_documents"`
	AverageConfidence  float64         `json:"average_confidence"`
	Categories         []CategoryCount `json:"categories"`
}

package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// Store is an in-process record store with the same semantics as the Postgres one.
// Reads return copies so callers never observe a half-applied change.
type Store struct {
	mu         sync.RWMutex
	docs       map[string]*domain.Document
	audit      []domain.AuditEntry
	categories map[string]domain.Category
	now        func() time.Time
}

func NewStore() *Store {
	return &Store{
		docs:       make(map[string]*domain.Document),
		categories: make(map[string]domain.Category),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for updated_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) Create(_ context.Context, doc *domain.Document, entry domain.AuditEntry) error {
	if doc == nil || doc.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("document id is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("duplicate id=%s", doc.ID))
	}
	stored := cloneDocument(doc)
	if stored.Tags == nil {
		stored.Tags = []string{}
	}
	s.docs[doc.ID] = stored
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	return cloneDocument(doc), nil
}

func (s *Store) ApplyChange(_ context.Context, id string, change domain.DocumentChange, entry domain.AuditEntry) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, notFound(id)
	}

	change.Apply(doc, s.now())
	if change.CategoryName != nil {
		cat := s.ensureCategoryLocked(*change.CategoryName, "")
		doc.Category = &cat
	}
	s.audit = append(s.audit, entry)
	return cloneDocument(doc), nil
}

func (s *Store) AddTag(_ context.Context, id, tag string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	if !slices.Contains(doc.Tags, tag) {
		doc.Tags = append(doc.Tags, tag)
		doc.UpdatedAt = s.now()
	}
	return cloneDocument(doc), nil
}

func (s *Store) RemoveTag(_ context.Context, id, tag string) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	if idx := slices.Index(doc.Tags, tag); idx >= 0 {
		doc.Tags = slices.Delete(doc.Tags, idx, idx+1)
		doc.UpdatedAt = s.now()
	}
	return cloneDocument(doc), nil
}

// Delete removes the record. Audit entries are kept.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return notFound(id)
	}
	delete(s.docs, id)
	return nil
}

func (s *Store) Search(_ context.Context, query domain.SearchQuery) (domain.DocumentPage, error) {
	page := query.Page.Normalize()
	text := strings.ToLower(strings.TrimSpace(query.Text))

	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if !query.Scope.Includes(doc.OwnerID) {
			continue
		}
		if query.Status != nil && doc.Status != *query.Status {
			continue
		}
		if query.Category != "" && doc.CategoryName() != query.Category {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(doc.OriginalName), text) &&
			!strings.Contains(strings.ToLower(doc.ExtractedText), text) {
			continue
		}
		matched = append(matched, doc)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	items := make([]domain.Document, 0, page.Size)
	if offset := page.Offset(); offset >= 0 {
		for i := offset; i < total && len(items) < page.Size; i++ {
			items = append(items, *cloneDocument(matched[i]))
		}
	}

	return domain.NewDocumentPage(items, total, page), nil
}

func (s *Store) Stats(_ context.Context, scope domain.Scope) (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		stats      domain.Stats
		confSum    float64
		confCount  int
		byCategory = make(map[string]int)
	)
	for _, doc := range s.docs {
		if !scope.Includes(doc.OwnerID) {
			continue
		}
		stats.TotalDocuments++
		switch doc.Status {
		case domain.StatusProcessed:
			stats.ProcessedDocuments++
		case domain.StatusError:
			stats.ErrorDocuments++
		}
		if doc.Confidence != nil {
			confSum += *doc.Confidence
			confCount++
		}
		name := doc.CategoryName()
		if name == "" {
			name = domain.UncategorizedLabel
		}
		byCategory[name]++
	}
	if confCount > 0 {
		stats.AverageConfidence = confSum / float64(confCount)
	}

	stats.Categories = make([]domain.CategoryCount, 0, len(byCategory))
	for name, count := range byCategory {
		stats.Categories = append(stats.Categories, domain.CategoryCount{Name: name, Count: count})
	}
	sort.Slice(stats.Categories, func(i, j int) bool {
		if stats.Categories[i].Count != stats.Categories[j].Count {
			return stats.Categories[i].Count > stats.Categories[j].Count
		}
		return stats.Categories[i].Name < stats.Categories[j].Name
	})
	return stats, nil
}

func (s *Store) ListByDocument(_ context.Context, documentID string) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AuditEntry, 0)
	for _, entry := range s.audit {
		if entry.DocumentID == documentID {
			out = append(out, entry)
		}
	}
	// Appends happen in commit order; the stable sort only matters for equal clocks.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *Store) EnsureCategory(_ context.Context, name, description string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.WrapError(domain.ErrInvalidInput, "ensure category", fmt.Errorf("name is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureCategoryLocked(name, description), nil
}

func (s *Store) GetCategoryByName(_ context.Context, name string) (domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cat, ok := s.categories[name]
	if !ok {
		return domain.Category{}, domain.WrapError(domain.ErrCategoryNotFound, "get category", fmt.Errorf("name=%s", name))
	}
	return cat, nil
}

func (s *Store) ListCategories(context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, cat := range s.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteCategory removes the category and unassigns it from every document.
func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	for n, cat := range s.categories {
		if cat.ID == id {
			name = n
			break
		}
	}
	if name == "" {
		return domain.WrapError(domain.ErrCategoryNotFound, "delete category", fmt.Errorf("id=%s", id))
	}
	delete(s.categories, name)

	now := s.now()
	for _, doc := range s.docs {
		if doc.Category != nil && doc.Category.ID == id {
			doc.Category = nil
			doc.UpdatedAt = now
		}
	}
	return nil
}

func (s *Store) ensureCategoryLocked(name, description string) domain.Category {
	if cat, ok := s.categories[name]; ok {
		if description != "" && cat.Description != description {
			cat.Description = description
			s.categories[name] = cat
		}
		return cat
	}
	cat := domain.Category{ID: uuid.NewString(), Name: name, Description: description}
	s.categories[name] = cat
	return cat
}

func notFound(id string) error {
	return domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
}

func cloneDocument(doc *domain.Document) *domain.Document {
	out := *doc
	if doc.Category != nil {
		cat := *doc.Category
		out.Category = &cat
	}
	if doc.Confidence != nil {
		v := *doc.Confidence
		out.Confidence = &v
	}
	out.Tags = slices.Clone(doc.Tags)
	if out.Tags == nil {
		out.Tags = []string{}
	}
	return &out
}

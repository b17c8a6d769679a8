package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

const documentColumns = `
d.id, d.storage_key, d.original_name, d.content_type, d.size_bytes, d.status,
COALESCE(d.extracted_text, ''), c.id, c.name, c.description, d.confidence,
COALESCE(d.error_message, ''), d.owner_id, d.owner_name, d.tags, d.created_at, d.updated_at`

const documentFrom = `
FROM documents d
LEFT JOIN categories c ON c.id = d.category_id`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document, entry domain.AuditEntry) error {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (
	id, storage_key, original_name, content_type, size_bytes, status, owner_id, owner_name, tags, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		doc.ID, doc.StorageKey, doc.OriginalName, doc.ContentType, doc.SizeBytes, string(doc.Status),
		doc.OwnerID, doc.OwnerName, tagsJSON, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return getDocument(ctx, r.db, id)
}

func getDocument(ctx context.Context, q queryer, id string) (*domain.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT`+documentColumns+documentFrom+`
WHERE d.id = $1
`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

// ApplyChange updates only the fields present in change and appends entry in the same transaction.
func (r *DocumentRepository) ApplyChange(ctx context.Context, id string, change domain.DocumentChange, entry domain.AuditEntry) (*domain.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin change tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	sets := make([]string, 0, 6)
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if change.Status != nil {
		add("status", string(*change.Status))
	}
	if change.ExtractedText != nil {
		add("extracted_text", *change.ExtractedText)
	}
	if change.CategoryName != nil {
		category, err := upsertCategory(ctx, tx, *change.CategoryName, "")
		if err != nil {
			return nil, err
		}
		add("category_id", category.ID)
	}
	if change.Confidence != nil {
		add("confidence", *change.Confidence)
	}
	if change.ErrorMessage != nil {
		add("error_message", nullIfEmpty(*change.ErrorMessage))
	}
	add("updated_at", r.now())

	res, err := tx.ExecContext(ctx, `UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return nil, err
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return nil, err
	}
	// Read back before commit: once committed, the change must be reported as applied.
	doc, err := getDocument(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit change tx: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) AddTag(ctx context.Context, id, tag string) (*domain.Document, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET tags = CASE WHEN tags @> jsonb_build_array($2::text) THEN tags ELSE tags || jsonb_build_array($2::text) END,
	updated_at = $3
WHERE id = $1
`, id, tag, r.now())
	if err != nil {
		return nil, fmt.Errorf("add tag: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *DocumentRepository) RemoveTag(ctx context.Context, id, tag string) (*domain.Document, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET tags = tags - $2::text, updated_at = $3
WHERE id = $1
`, id, tag, r.now())
	if err != nil {
		return nil, fmt.Errorf("remove tag: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRow(res, id)
}

func (r *DocumentRepository) Search(ctx context.Context, query domain.SearchQuery) (domain.DocumentPage, error) {
	page := query.Page.Normalize()
	where, args := searchFilter(query)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+documentFrom+where, args...).Scan(&total); err != nil {
		return domain.DocumentPage{}, fmt.Errorf("count documents: %w", err)
	}

	limitArg := len(args) + 1
	args = append(args, page.Size, page.Offset())
	rows, err := r.db.QueryContext(ctx, `SELECT`+documentColumns+documentFrom+where+`
ORDER BY d.created_at DESC, d.id ASC
LIMIT $`+strconv.Itoa(limitArg)+` OFFSET $`+strconv.Itoa(limitArg+1), args...)
	if err != nil {
		return domain.DocumentPage{}, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Document, 0, page.Size)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return domain.DocumentPage{}, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, *doc)
	}
	if err := rows.Err(); err != nil {
		return domain.DocumentPage{}, fmt.Errorf("iterate documents: %w", err)
	}
	return domain.NewDocumentPage(items, total, page), nil
}

func (r *DocumentRepository) Stats(ctx context.Context, scope domain.Scope) (domain.Stats, error) {
	where := ""
	args := []any{}
	switch {
	case scope.All():
	case scope.OwnerID == "":
		where = "\nWHERE FALSE"
	default:
		where = "\nWHERE d.owner_id = $1"
		args = append(args, scope.OwnerID)
	}

	var stats domain.Stats
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COUNT(*) FILTER (WHERE d.status = 'PROCESSED'),
	COUNT(*) FILTER (WHERE d.status = 'ERROR'),
	COALESCE(AVG(d.confidence), 0)
FROM documents d`+where, args...).Scan(
		&stats.TotalDocuments, &stats.ProcessedDocuments, &stats.ErrorDocuments, &stats.AverageConfidence,
	)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("document totals: %w", err)
	}

	labelArg := "$" + strconv.Itoa(len(args)+1)
	rows, err := r.db.QueryContext(ctx, `
SELECT COALESCE(c.name, `+labelArg+`) AS name, COUNT(*)`+documentFrom+where+`
GROUP BY 1
ORDER BY 2 DESC, 1 ASC`, append(args, domain.UncategorizedLabel)...)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("category counts: %w", err)
	}
	defer rows.Close()

	stats.Categories = make([]domain.CategoryCount, 0)
	for rows.Next() {
		var cc domain.CategoryCount
		if err := rows.Scan(&cc.Name, &cc.Count); err != nil {
			return domain.Stats{}, fmt.Errorf("scan category count: %w", err)
		}
		stats.Categories = append(stats.Categories, cc)
	}
	if err := rows.Err(); err != nil {
		return domain.Stats{}, fmt.Errorf("iterate category counts: %w", err)
	}
	return stats, nil
}

func searchFilter(query domain.SearchQuery) (string, []any) {
	conds := make([]string, 0, 4)
	args := make([]any, 0, 4)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	switch {
	case query.Scope.All():
	case query.Scope.OwnerID == "":
		conds = append(conds, "FALSE")
	default:
		conds = append(conds, "d.owner_id = "+next(query.Scope.OwnerID))
	}
	if query.Status != nil {
		conds = append(conds, "d.status = "+next(string(*query.Status)))
	}
	if category := strings.TrimSpace(query.Category); category != "" {
		conds = append(conds, "c.name = "+next(category))
	}
	if text := strings.TrimSpace(query.Text); text != "" {
		p := next("%" + escapeLike(text) + "%")
		conds = append(conds, "(d.original_name ILIKE "+p+" OR d.extracted_text ILIKE "+p+")")
	}

	if len(conds) == 0 {
		return "", args
	}
	return "\nWHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc        domain.Document
		status     string
		catID      sql.NullString
		catName    sql.NullString
		catDesc    sql.NullString
		confidence sql.NullFloat64
		tagsRaw    []byte
	)
	err := row.Scan(
		&doc.ID, &doc.StorageKey, &doc.OriginalName, &doc.ContentType, &doc.SizeBytes, &status,
		&doc.ExtractedText, &catID, &catName, &catDesc, &confidence,
		&doc.ErrorMessage, &doc.OwnerID, &doc.OwnerName, &tagsRaw, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Status = domain.DocumentStatus(status)
	if catID.Valid {
		doc.Category = &domain.Category{ID: catID.String, Name: catName.String, Description: catDesc.String}
	}
	if confidence.Valid {
		v := confidence.Float64
		doc.Confidence = &v
	}
	doc.Tags = []string{}
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &doc.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return &doc, nil
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "update document", fmt.Errorf("id=%s", id))
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

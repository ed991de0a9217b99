package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/research-portal-service/internal/domain"
	"github.com/helixir/research-portal-service/internal/workflow"
)

// PaperRepository handles research paper persistence.
type PaperRepository interface {
	workflow.TransitionStore

	// Create inserts a new paper together with any trail entries it carries.
	// Returns domain.ErrAlreadyExists if the ID is taken.
	Create(ctx context.Context, paper domain.PaperRecord) (domain.PaperRecord, error)

	// GetByID retrieves a paper with its full review trail.
	// Returns domain.ErrNotFound if no matching paper exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.PaperRecord, error)

	// List returns every paper matching filter, newest submission first.
	// The result is unpaginated because scoping and statistics need a full scan.
	List(ctx context.Context, filter PaperFilter) ([]domain.PaperRecord, error)

	// IncrementViews adds one to the view counter and returns the new value.
	IncrementViews(ctx context.Context, id uuid.UUID) (int64, error)

	// IncrementDownloads adds one to the download counter and returns the new value.
	IncrementDownloads(ctx context.Context, id uuid.UUID) (int64, error)
}

// PaperFilter specifies criteria for listing papers.
type PaperFilter struct {
	// Status filters to one canonical status, including its legacy aliases (optional).
	Status *domain.Status

	// AuthorID filters to one author's submissions (optional).
	AuthorID string

	// CategoryID filters to one category (optional).
	CategoryID string
}

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

const paperColumns = `id, title, abstract, keywords, co_authors, category_id, department,
	file_ref, author_id, author_name, faculty_id, status,
	submission_date, published_date, view_count, download_count, version, updated_at`

const trailColumns = `id, paper_id, actor_id, actor_role, action, note, from_status, to_status, created_at`

// Create inserts a new paper and its trail in one transaction.
func (r *PgPaperRepository) Create(ctx context.Context, paper domain.PaperRecord) (domain.PaperRecord, error) {
	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}

	query := `
		INSERT INTO research_papers (` + paperColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	err := inTx(ctx, r.db, func(db DBTX) error {
		_, err := db.Exec(ctx, query,
			paper.ID,
			paper.Title,
			paper.Abstract,
			paper.Keywords,
			nullString(paper.CoAuthors),
			paper.CategoryID,
			nullString(paper.Department),
			paper.FileRef,
			paper.AuthorID,
			nullString(paper.AuthorName),
			paper.FacultyID,
			string(paper.Status),
			paper.SubmissionDate,
			paper.PublishedDate,
			paper.ViewCount,
			paper.DownloadCount,
			paper.Version,
			paper.UpdatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return domain.NewAlreadyExistsError(domain.EntityPaper, paper.ID.String())
			}
			return fmt.Errorf("failed to insert paper: %w", err)
		}
		return insertTrail(ctx, db, paper.ID, 0, paper.ReviewTrail)
	})
	if err != nil {
		return domain.PaperRecord{}, err
	}

	return paper, nil
}

// GetByID retrieves a paper by its UUID.
func (r *PgPaperRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.PaperRecord, error) {
	query := `SELECT ` + paperColumns + ` FROM research_papers WHERE id = $1`

	paper, err := scanPaper(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PaperRecord{}, domain.NewNotFoundError(domain.EntityPaper, id.String())
		}
		return domain.PaperRecord{}, fmt.Errorf("failed to get paper by ID: %w", err)
	}

	trails, err := loadTrails(ctx, r.db, []uuid.UUID{id})
	if err != nil {
		return domain.PaperRecord{}, err
	}
	paper.ReviewTrail = trails[id]

	return paper, nil
}

// List retrieves papers matching the filter criteria.
func (r *PgPaperRepository) List(ctx context.Context, filter PaperFilter) ([]domain.PaperRecord, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIndex))
		args = append(args, filter.Status.StoredValues())
		argIndex++
	}

	if filter.AuthorID != "" {
		conditions = append(conditions, fmt.Sprintf("author_id = $%d", argIndex))
		args = append(args, filter.AuthorID)
		argIndex++
	}

	if filter.CategoryID != "" {
		conditions = append(conditions, fmt.Sprintf("category_id = $%d", argIndex))
		args = append(args, filter.CategoryID)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`SELECT %s FROM research_papers %s ORDER BY submission_date DESC, id ASC`, paperColumns, whereClause)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	papers := make([]domain.PaperRecord, 0)
	for rows.Next() {
		paper, err := scanPaperFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating papers: %w", err)
	}
	// Release the connection before the trail query when running inside a transaction.
	rows.Close()

	if len(papers) == 0 {
		return papers, nil
	}

	ids := make([]uuid.UUID, len(papers))
	for i, p := range papers {
		ids[i] = p.ID
	}
	trails, err := loadTrails(ctx, r.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range papers {
		papers[i].ReviewTrail = trails[papers[i].ID]
	}

	return papers, nil
}

// Transition locks the paper row, applies fn and persists the result.
//
// The row is read with SELECT FOR UPDATE. When the underlying DBTX is a pool
// the method opens its own transaction; inside an existing transaction it
// runs directly. The UPDATE is guarded by the version read under the lock,
// and only trail entries appended by fn are inserted.
func (r *PgPaperRepository) Transition(ctx context.Context, id uuid.UUID, fn func(current domain.PaperRecord) (domain.PaperRecord, error)) (domain.PaperRecord, error) {
	var updated domain.PaperRecord
	err := inTx(ctx, r.db, func(db DBTX) error {
		var err error
		updated, err = transitionInTx(ctx, db, id, fn)
		return err
	})
	if err != nil {
		return domain.PaperRecord{}, err
	}
	return updated, nil
}

func transitionInTx(ctx context.Context, db DBTX, id uuid.UUID, fn func(domain.PaperRecord) (domain.PaperRecord, error)) (domain.PaperRecord, error) {
	selectQuery := `SELECT ` + paperColumns + ` FROM research_papers WHERE id = $1 FOR UPDATE`

	rows, err := db.Query(ctx, selectQuery, id)
	if err != nil {
		return domain.PaperRecord{}, fmt.Errorf("failed to query paper for update: %w", err)
	}

	current, err := scanPaperRows(rows)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PaperRecord{}, domain.NewNotFoundError(domain.EntityPaper, id.String())
		}
		return domain.PaperRecord{}, fmt.Errorf("failed to scan paper: %w", err)
	}

	trails, err := loadTrails(ctx, db, []uuid.UUID{id})
	if err != nil {
		return domain.PaperRecord{}, err
	}
	current.ReviewTrail = trails[id]

	next, err := fn(current.Clone())
	if err != nil {
		return domain.PaperRecord{}, err
	}

	if len(next.ReviewTrail) < len(current.ReviewTrail) {
		return domain.PaperRecord{}, fmt.Errorf("review trail for paper %s shrank from %d to %d entries", id, len(current.ReviewTrail), len(next.ReviewTrail))
	}

	updateQuery := `
		UPDATE research_papers SET
			title = $1,
			abstract = $2,
			keywords = $3,
			co_authors = $4,
			file_ref = $5,
			faculty_id = $6,
			status = $7,
			published_date = $8,
			version = $9,
			updated_at = $10
		WHERE id = $11 AND version = $12`

	result, err := db.Exec(ctx, updateQuery,
		next.Title,
		next.Abstract,
		next.Keywords,
		nullString(next.CoAuthors),
		next.FileRef,
		next.FacultyID,
		string(next.Status),
		next.PublishedDate,
		next.Version,
		next.UpdatedAt,
		id,
		current.Version,
	)
	if err != nil {
		return domain.PaperRecord{}, fmt.Errorf("failed to update paper: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.PaperRecord{}, domain.NewConflictError(domain.EntityPaper, id.String(), current.Version, 0)
	}

	if err := insertTrail(ctx, db, id, len(current.ReviewTrail), next.ReviewTrail[len(current.ReviewTrail):]); err != nil {
		return domain.PaperRecord{}, err
	}

	return next, nil
}

// IncrementViews adds one to the view counter.
func (r *PgPaperRepository) IncrementViews(ctx context.Context, id uuid.UUID) (int64, error) {
	return r.increment(ctx, id, "view_count")
}

// IncrementDownloads adds one to the download counter.
func (r *PgPaperRepository) IncrementDownloads(ctx context.Context, id uuid.UUID) (int64, error) {
	return r.increment(ctx, id, "download_count")
}

// increment bumps a counter column without touching status or version.
func (r *PgPaperRepository) increment(ctx context.Context, id uuid.UUID, column string) (int64, error) {
	query := fmt.Sprintf(`UPDATE research_papers SET %[1]s = %[1]s + 1 WHERE id = $1 RETURNING %[1]s`, column)

	var count int64
	if err := r.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.NewNotFoundError(domain.EntityPaper, id.String())
		}
		return 0, fmt.Errorf("failed to increment %s: %w", column, err)
	}
	return count, nil
}

// insertTrail appends entries starting at position offset.
func insertTrail(ctx context.Context, db DBTX, paperID uuid.UUID, offset int, entries []domain.TrailEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `
		INSERT INTO review_trail (id, paper_id, position, actor_id, actor_role, action, note, from_status, to_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		_, err := db.Exec(ctx, query,
			e.ID,
			paperID,
			offset+i,
			e.ActorID,
			string(e.ActorRole),
			string(e.Action),
			nullString(e.Note),
			string(e.FromStatus),
			string(e.ToStatus),
			e.Timestamp,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
				return domain.NewNotFoundError(domain.EntityPaper, paperID.String())
			}
			return fmt.Errorf("failed to insert trail entry: %w", err)
		}
	}
	return nil
}

// loadTrails fetches the trails of the given papers, keyed by paper ID, in position order.
func loadTrails(ctx context.Context, db DBTX, ids []uuid.UUID) (map[uuid.UUID][]domain.TrailEntry, error) {
	query := `SELECT ` + trailColumns + ` FROM review_trail WHERE paper_id = ANY($1) ORDER BY paper_id, position`

	rows, err := db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query review trail: %w", err)
	}
	defer rows.Close()

	trails := make(map[uuid.UUID][]domain.TrailEntry, len(ids))
	for _, id := range ids {
		trails[id] = []domain.TrailEntry{}
	}

	for rows.Next() {
		var (
			e          domain.TrailEntry
			paperID    uuid.UUID
			role       string
			action     string
			note       *string
			fromStatus string
			toStatus   string
		)
		if err := rows.Scan(&e.ID, &paperID, &e.ActorID, &role, &action, &note, &fromStatus, &toStatus, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trail entry: %w", err)
		}

		e.ActorRole = domain.Role(role)
		e.Action = domain.TrailAction(action)
		e.Note = derefString(note)
		if e.FromStatus, err = domain.ParseStatus(fromStatus); err != nil {
			return nil, fmt.Errorf("trail entry %s: %w", e.ID, err)
		}
		if e.ToStatus, err = domain.ParseStatus(toStatus); err != nil {
			return nil, fmt.Errorf("trail entry %s: %w", e.ID, err)
		}

		trails[paperID] = append(trails[paperID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review trail: %w", err)
	}

	return trails, nil
}

// paperScanDest holds the destination pointers for scanning a paper row.
type paperScanDest struct {
	paper      domain.PaperRecord
	coAuthors  *string
	department *string
	authorName *string
	status     string
}

// destinations returns the slice of pointers for Scan operations.
func (d *paperScanDest) destinations() []interface{} {
	return []interface{}{
		&d.paper.ID, &d.paper.Title, &d.paper.Abstract, &d.paper.Keywords, &d.coAuthors,
		&d.paper.CategoryID, &d.department, &d.paper.FileRef, &d.paper.AuthorID, &d.authorName,
		&d.paper.FacultyID, &d.status, &d.paper.SubmissionDate, &d.paper.PublishedDate,
		&d.paper.ViewCount, &d.paper.DownloadCount, &d.paper.Version, &d.paper.UpdatedAt,
	}
}

// finalize sets nullable fields and normalizes the stored status.
func (d *paperScanDest) finalize() (domain.PaperRecord, error) {
	status, err := domain.ParseStatus(d.status)
	if err != nil {
		return domain.PaperRecord{}, fmt.Errorf("paper %s: %w", d.paper.ID, err)
	}
	d.paper.Status = status
	d.paper.CoAuthors = derefString(d.coAuthors)
	d.paper.Department = derefString(d.department)
	d.paper.AuthorName = derefString(d.authorName)
	if d.paper.Keywords == nil {
		d.paper.Keywords = []string{}
	}
	d.paper.ReviewTrail = []domain.TrailEntry{}
	return d.paper, nil
}

// scanPaper scans a single row into a PaperRecord.
func scanPaper(row pgx.Row) (domain.PaperRecord, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return domain.PaperRecord{}, err
	}
	return dest.finalize()
}

// scanPaperRows scans the first row of rows. Used with SELECT FOR UPDATE.
func scanPaperRows(rows pgx.Rows) (domain.PaperRecord, error) {
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.PaperRecord{}, err
		}
		return domain.PaperRecord{}, pgx.ErrNoRows
	}

	return scanPaperFromRows(rows)
}

// scanPaperFromRows scans the current row from pgx.Rows into a PaperRecord.
func scanPaperFromRows(rows pgx.Rows) (domain.PaperRecord, error) {
	var dest paperScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return domain.PaperRecord{}, err
	}
	return dest.finalize()
}

package hierarchy

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/storage"
)

// treeLockKey serializes structural folder changes across PostgreSQL
// sessions so two concurrent moves cannot close a cycle together.
const treeLockKey = 7100

const (
	folderColumns   = `id, parent_id, name, description, project_id, created_by, created_at`
	documentColumns = `id, folder_id, title, document_type, description, file_name, created_by, created_at`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLIndex stores the hierarchy in the folders and documents tables
type SQLIndex struct {
	db      *sql.DB
	dialect storage.Dialect
	now     func() time.Time
}

// NewSQLIndex creates a hierarchy index over db
func NewSQLIndex(db *sql.DB, dialect storage.Dialect) *SQLIndex {
	return &SQLIndex{db: db, dialect: dialect, now: time.Now}
}

// ParentOf returns the parent of a folder
func (s *SQLIndex) ParentOf(ctx context.Context, folderID int64) (*int64, error) {
	return parentOf(ctx, s.db, folderID)
}

func parentOf(ctx context.Context, q querier, folderID int64) (*int64, error) {
	var parent sql.NullInt64
	err := q.QueryRowContext(ctx, "SELECT parent_id FROM folders WHERE id = $1", folderID).Scan(&parent)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError(resourceFolder, folderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder parent: %w", err)
	}
	return int64Ptr(parent), nil
}

func boundParent(q querier) parentFunc {
	return func(ctx context.Context, folderID int64) (*int64, error) {
		return parentOf(ctx, q, folderID)
	}
}

// AncestorsOf returns the ancestors of a folder, nearest first
func (s *SQLIndex) AncestorsOf(ctx context.Context, folderID int64) ([]int64, error) {
	return walkAncestors(ctx, folderID, boundParent(s.db))
}

// FolderOf returns the folder holding a document
func (s *SQLIndex) FolderOf(ctx context.Context, documentID int64) (*int64, error) {
	var folder sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT folder_id FROM documents WHERE id = $1", documentID).Scan(&folder)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError(resourceDocument, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document folder: %w", err)
	}
	return int64Ptr(folder), nil
}

// GetFolder returns a folder by id
func (s *SQLIndex) GetFolder(ctx context.Context, id int64) (*Folder, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+folderColumns+" FROM folders WHERE id = $1", id)
	f, err := scanFolder(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError(resourceFolder, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return &f, nil
}

// ListChildren lists direct subfolders in id order
func (s *SQLIndex) ListChildren(ctx context.Context, parentID *int64) ([]Folder, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if parentID == nil {
		rows, err = s.db.QueryContext(ctx, "SELECT "+folderColumns+" FROM folders WHERE parent_id IS NULL ORDER BY id")
	} else {
		if _, err := s.ParentOf(ctx, *parentID); err != nil {
			return nil, err
		}
		rows, err = s.db.QueryContext(ctx, "SELECT "+folderColumns+" FROM folders WHERE parent_id = $1 ORDER BY id", *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	result := make([]Folder, 0)
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate folders: %w", err)
	}
	return result, nil
}

// CreateFolder stores a new folder under an existing parent
func (s *SQLIndex) CreateFolder(ctx context.Context, f Folder) (*Folder, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	stored := f.clone()
	stored.CreatedAt = s.now().UTC().Truncate(time.Microsecond)

	err := s.inTreeTx(ctx, func(tx *sql.Tx) error {
		if err := checkPlacement(ctx, 0, stored.ParentID, boundParent(tx)); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO folders (parent_id, name, description, project_id, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`,
			nullInt64(stored.ParentID),
			stored.Name,
			stored.Description,
			nullInt64(stored.ProjectID),
			stored.CreatedBy,
			stored.CreatedAt,
		).Scan(&stored.ID)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// MoveFolder reparents a folder, refusing moves that would form a cycle
func (s *SQLIndex) MoveFolder(ctx context.Context, id int64, newParentID *int64) error {
	return s.inTreeTx(ctx, func(tx *sql.Tx) error {
		if _, err := parentOf(ctx, tx, id); err != nil {
			return err
		}
		if err := checkPlacement(ctx, id, newParentID, boundParent(tx)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE folders SET parent_id = $1 WHERE id = $2", nullInt64(newParentID), id); err != nil {
			return fmt.Errorf("failed to move folder: %w", err)
		}
		return nil
	})
}

// DeleteFolder removes a folder that has no subfolders and no documents
func (s *SQLIndex) DeleteFolder(ctx context.Context, id int64) error {
	return s.inTreeTx(ctx, func(tx *sql.Tx) error {
		if _, err := parentOf(ctx, tx, id); err != nil {
			return err
		}

		var children, documents int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM folders WHERE parent_id = $1", id).Scan(&children); err != nil {
			return fmt.Errorf("failed to count subfolders: %w", err)
		}
		if children > 0 {
			return domain.NewInvariantViolation("folder %d has subfolders", id)
		}
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE folder_id = $1", id).Scan(&documents); err != nil {
			return fmt.Errorf("failed to count documents: %w", err)
		}
		if documents > 0 {
			return domain.NewInvariantViolation("folder %d contains documents", id)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM folders WHERE id = $1", id); err != nil {
			return fmt.Errorf("failed to delete folder: %w", err)
		}
		return nil
	})
}

// GetDocument returns a document by id
func (s *SQLIndex) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = $1", id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError(resourceDocument, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &d, nil
}

// ListDocuments lists matching documents in id order
func (s *SQLIndex) ListDocuments(ctx context.Context, filter DocumentFilter) ([]Document, error) {
	var (
		conditions []string
		args       []interface{}
	)
	switch {
	case filter.FolderID != nil:
		args = append(args, *filter.FolderID)
		conditions = append(conditions, fmt.Sprintf("folder_id = $%d", len(args)))
	case filter.RootOnly:
		conditions = append(conditions, "folder_id IS NULL")
	}
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("document_type = $%d", len(args)))
	}

	query := "SELECT " + documentColumns + " FROM documents"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	result := make([]Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return result, nil
}

// AddDocument stores a new document in an existing folder or at the root
func (s *SQLIndex) AddDocument(ctx context.Context, d Document) (*Document, error) {
	if d.Type == "" {
		d.Type = TypeOther
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	stored := d.clone()
	stored.CreatedAt = s.now().UTC().Truncate(time.Microsecond)

	err := s.inTreeTx(ctx, func(tx *sql.Tx) error {
		if stored.FolderID != nil {
			if _, err := parentOf(ctx, tx, *stored.FolderID); err != nil {
				return err
			}
		}
		return tx.QueryRowContext(ctx, `
			INSERT INTO documents (folder_id, title, document_type, description, file_name, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`,
			nullInt64(stored.FolderID),
			stored.Title,
			string(stored.Type),
			stored.Description,
			stored.FileName,
			stored.CreatedBy,
			stored.CreatedAt,
		).Scan(&stored.ID)
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// MoveDocument places a document in a folder, or at the root for nil
func (s *SQLIndex) MoveDocument(ctx context.Context, id int64, folderID *int64) error {
	return s.inTreeTx(ctx, func(tx *sql.Tx) error {
		if folderID != nil {
			if _, err := parentOf(ctx, tx, *folderID); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, "UPDATE documents SET folder_id = $1 WHERE id = $2", nullInt64(folderID), id)
		if err != nil {
			return fmt.Errorf("failed to move document: %w", err)
		}
		return requireRow(result, resourceDocument, id)
	})
}

// DeleteDocument removes a document
func (s *SQLIndex) DeleteDocument(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireRow(result, resourceDocument, id)
}

// inTreeTx runs fn in a transaction holding the tree lock
func (s *SQLIndex) inTreeTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if s.dialect == storage.DialectPostgres {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", treeLockKey); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to lock folder tree: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func requireRow(result sql.Result, resource string, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError(resource, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFolder(row rowScanner) (Folder, error) {
	var f Folder
	var parent, project sql.NullInt64
	if err := row.Scan(&f.ID, &parent, &f.Name, &f.Description, &project, &f.CreatedBy, &f.CreatedAt); err != nil {
		return Folder{}, err
	}
	f.ParentID = int64Ptr(parent)
	f.ProjectID = int64Ptr(project)
	f.CreatedAt = f.CreatedAt.UTC()
	return f, nil
}

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	var folder sql.NullInt64
	var docType string
	if err := row.Scan(&d.ID, &folder, &d.Title, &docType, &d.Description, &d.FileName, &d.CreatedBy, &d.CreatedAt); err != nil {
		return Document{}, err
	}
	d.FolderID = int64Ptr(folder)
	d.Type = DocumentType(docType)
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

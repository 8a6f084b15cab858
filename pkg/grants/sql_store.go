package grants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
)

const grantColumns = `id, document_id, folder_id, user_id, role, permission_type, granted_by, granted_at`

// SQLStore persists grants in the document_permissions table
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a grant store over db
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Create validates and inserts a grant in a single statement
func (s *SQLStore) Create(ctx context.Context, g Grant) (*Grant, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	stored := g.clone()
	stored.GrantedAt = s.now().UTC().Truncate(time.Microsecond)

	var role sql.NullString
	if stored.Role != "" {
		role = sql.NullString{String: string(stored.Role), Valid: true}
	}

	query := `
		INSERT INTO document_permissions (document_id, folder_id, user_id, role, permission_type, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		nullInt64(stored.DocumentID),
		nullInt64(stored.FolderID),
		nullInt64(stored.UserID),
		role,
		stored.Level.String(),
		stored.GrantedBy,
		stored.GrantedAt,
	).Scan(&stored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create grant: %w", err)
	}

	return &stored, nil
}

// Delete removes a grant by id
func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM document_permissions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete grant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NewNotFoundError(resourceGrant, id)
	}
	return nil
}

// Get returns a grant by id
func (s *SQLStore) Get(ctx context.Context, id int64) (*Grant, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+grantColumns+" FROM document_permissions WHERE id = $1", id)
	g, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError(resourceGrant, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &g, nil
}

// FindByDocument returns grants on a document
func (s *SQLStore) FindByDocument(ctx context.Context, documentID int64) ([]Grant, error) {
	return s.query(ctx, "document_id = $1", documentID)
}

// FindByFolder returns grants on a folder
func (s *SQLStore) FindByFolder(ctx context.Context, folderID int64) ([]Grant, error) {
	return s.query(ctx, "folder_id = $1", folderID)
}

// FindByPrincipal returns grants made to a user
func (s *SQLStore) FindByPrincipal(ctx context.Context, userID int64) ([]Grant, error) {
	return s.query(ctx, "user_id = $1", userID)
}

// FindByRole returns grants made to a role
func (s *SQLStore) FindByRole(ctx context.Context, role auth.Role) ([]Grant, error) {
	return s.query(ctx, "role = $1", string(role))
}

// DeleteByDocument removes every grant on a document
func (s *SQLStore) DeleteByDocument(ctx context.Context, documentID int64) (int, error) {
	return s.deleteWhere(ctx, "document_id = $1", documentID)
}

// DeleteByFolder removes every grant on a folder
func (s *SQLStore) DeleteByFolder(ctx context.Context, folderID int64) (int, error) {
	return s.deleteWhere(ctx, "folder_id = $1", folderID)
}

func (s *SQLStore) query(ctx context.Context, where string, arg interface{}) ([]Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+grantColumns+" FROM document_permissions WHERE "+where+" ORDER BY id", arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	result := make([]Grant, 0)
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate grants: %w", err)
	}
	return result, nil
}

func (s *SQLStore) deleteWhere(ctx context.Context, where string, arg interface{}) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM document_permissions WHERE "+where, arg)
	if err != nil {
		return 0, fmt.Errorf("failed to delete grants: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(row rowScanner) (Grant, error) {
	var g Grant
	var documentID, folderID, userID sql.NullInt64
	var role sql.NullString
	var level string

	if err := row.Scan(&g.ID, &documentID, &folderID, &userID, &role, &level, &g.GrantedBy, &g.GrantedAt); err != nil {
		return Grant{}, err
	}

	parsed, err := domain.ParseLevel(level)
	if err != nil {
		return Grant{}, fmt.Errorf("grant %d: %w", g.ID, err)
	}
	g.Level = parsed
	g.DocumentID = int64Ptr(documentID)
	g.FolderID = int64Ptr(folderID)
	g.UserID = int64Ptr(userID)
	if role.Valid {
		g.Role = auth.Role(role.String)
	}
	g.GrantedAt = g.GrantedAt.UTC()
	return g, nil
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

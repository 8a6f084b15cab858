package signatures

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/storage"
)

const signatureColumns = `id, document_id, assigned_to_user_id, assigned_by_user_id, assigned_by,
	provider_ref, status, signing_url, message, signed_at, created_at, updated_at`

// SQLStore persists signature requests in the document_signatures table.
// The open-request uniqueness rule is enforced by a partial unique index.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a signature store over db
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Create inserts a request
func (s *SQLStore) Create(ctx context.Context, r Request) (*Request, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	stored := r.clone()
	now := s.now().UTC().Truncate(time.Microsecond)
	stored.CreatedAt = now
	stored.UpdatedAt = now

	query := `
		INSERT INTO document_signatures (document_id, assigned_to_user_id, assigned_by_user_id, assigned_by,
			provider_ref, status, signing_url, message, signed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		stored.DocumentID,
		stored.AssigneeID,
		stored.AssignedByID,
		stored.AssignedBy,
		nullString(stored.ProviderRef),
		string(stored.Status),
		stored.SigningURL,
		stored.Message,
		nullTime(stored.SignedAt),
		stored.CreatedAt,
		stored.UpdatedAt,
	).Scan(&stored.ID)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return nil, duplicateError(stored)
		}
		return nil, fmt.Errorf("failed to create signature request: %w", err)
	}

	return &stored, nil
}

// Get returns a request by id
func (s *SQLStore) Get(ctx context.Context, id int64) (*Request, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+signatureColumns+" FROM document_signatures WHERE id = $1", id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, domain.NewNotFoundError(resourceSignature, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signature request: %w", err)
	}
	return &r, nil
}

// Update writes the mutable fields of r if the stored status is still from
func (s *SQLStore) Update(ctx context.Context, r Request, from Status) error {
	if err := r.Validate(); err != nil {
		return err
	}
	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	query := `
		UPDATE document_signatures
		SET provider_ref = $1, status = $2, signing_url = $3, message = $4, signed_at = $5, updated_at = $6
		WHERE id = $7 AND status = $8
	`
	result, err := s.db.ExecContext(ctx, query,
		nullString(r.ProviderRef),
		string(r.Status),
		r.SigningURL,
		r.Message,
		nullTime(r.SignedAt),
		updatedAt.UTC().Truncate(time.Microsecond),
		r.ID,
		string(from),
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return domain.NewInvariantViolation("provider reference %q is already in use", r.ProviderRef)
		}
		return fmt.Errorf("failed to update signature request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var current string
		err := s.db.QueryRowContext(ctx, "SELECT status FROM document_signatures WHERE id = $1", r.ID).Scan(&current)
		if err == sql.ErrNoRows {
			return domain.NewNotFoundError(resourceSignature, r.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to get signature status: %w", err)
		}
		return statusConflict(r.ID, Status(current), from)
	}
	return nil
}

// FindByDocument returns requests on a document
func (s *SQLStore) FindByDocument(ctx context.Context, documentID int64) ([]Request, error) {
	return s.query(ctx, "document_id = $1", documentID)
}

// FindByAssignee returns requests assigned to a user
func (s *SQLStore) FindByAssignee(ctx context.Context, userID int64, statuses ...Status) ([]Request, error) {
	where, args := statusClause("assigned_to_user_id = $1", []interface{}{userID}, statuses)
	return s.query(ctx, where, args...)
}

// FindByProviderRef returns the request the provider knows as ref
func (s *SQLStore) FindByProviderRef(ctx context.Context, ref string) (*Request, error) {
	if ref == "" {
		return nil, domain.NewNotFoundKey(resourceSignature, ref)
	}
	found, err := s.query(ctx, "provider_ref = $1", ref)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, domain.NewNotFoundKey(resourceSignature, ref)
	}
	return &found[0], nil
}

// FindOpenOlderThan returns open requests created before cutoff
func (s *SQLStore) FindOpenOlderThan(ctx context.Context, cutoff time.Time) ([]Request, error) {
	where, args := statusClause("created_at < $1", []interface{}{cutoff.UTC()}, OpenStatuses)
	return s.query(ctx, where, args...)
}

func (s *SQLStore) query(ctx context.Context, where string, args ...interface{}) ([]Request, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+signatureColumns+" FROM document_signatures WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signature requests: %w", err)
	}
	defer rows.Close()

	result := make([]Request, 0)
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signature request: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate signature requests: %w", err)
	}
	return result, nil
}

// statusClause appends "AND status IN ($n, ...)" when statuses is non-empty
func statusClause(where string, args []interface{}, statuses []Status) (string, []interface{}) {
	if len(statuses) == 0 {
		return where, args
	}
	placeholders := make([]string, len(statuses))
	for i, st := range statuses {
		args = append(args, string(st))
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	return where + " AND status IN (" + strings.Join(placeholders, ", ") + ")", args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (Request, error) {
	var r Request
	var ref sql.NullString
	var status string
	var signedAt sql.NullTime

	err := row.Scan(&r.ID, &r.DocumentID, &r.AssigneeID, &r.AssignedByID, &r.AssignedBy,
		&ref, &status, &r.SigningURL, &r.Message, &signedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Request{}, err
	}

	r.Status = Status(status)
	if !r.Status.Valid() {
		return Request{}, fmt.Errorf("signature request %d: unknown status %q", r.ID, status)
	}
	r.ProviderRef = ref.String
	if signedAt.Valid {
		t := signedAt.Time.UTC()
		r.SignedAt = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC().Truncate(time.Microsecond), Valid: true}
}

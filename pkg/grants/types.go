package grants

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
)

// Grant is an additive permission record linking one principal (a user or a
// role) to one resource (a document or a folder) at a permission level.
type Grant struct {
	ID         int64        `json:"id"`
	DocumentID *int64       `json:"document_id,omitempty"`
	FolderID   *int64       `json:"folder_id,omitempty"`
	UserID     *int64       `json:"user_id,omitempty"`
	Role       auth.Role    `json:"role,omitempty"`
	Level      domain.Level `json:"level"`
	GrantedBy  string       `json:"granted_by,omitempty"`
	GrantedAt  time.Time    `json:"granted_at"`
}

// Target identifies what a grant protects. Build one with OnDocument or
// OnFolder; the zero value is not a valid target.
type Target struct {
	document bool
	id       int64
}

// OnDocument targets a single document
func OnDocument(documentID int64) Target { return Target{document: true, id: documentID} }

// OnFolder targets a folder, covering the documents directly inside it
func OnFolder(folderID int64) Target { return Target{id: folderID} }

// Subject identifies who a grant is for. Build one with ForUser or ForRole.
type Subject struct {
	userID int64
	role   auth.Role
}

// ForUser grants to a single user
func ForUser(userID int64) Subject { return Subject{userID: userID} }

// ForRole grants to every principal holding the role
func ForRole(role auth.Role) Subject { return Subject{role: role} }

// New builds an unsaved grant. Exclusivity holds by construction.
func New(target Target, subject Subject, level domain.Level) Grant {
	g := Grant{Level: level}
	id := target.id
	if target.document {
		g.DocumentID = &id
	} else {
		g.FolderID = &id
	}
	if subject.role != "" {
		g.Role = subject.role
	} else {
		uid := subject.userID
		g.UserID = &uid
	}
	return g
}

var (
	grantableLevels = []interface{}{domain.LevelRead, domain.LevelWrite, domain.LevelDelete}
	knownRoles      = func() []interface{} {
		roles := make([]interface{}, 0, len(auth.AllRoles))
		for _, r := range auth.AllRoles {
			roles = append(roles, r)
		}
		return roles
	}()
)

// Validate checks target exclusivity, principal exclusivity and the level
func (g Grant) Validate() error {
	err := validation.ValidateStruct(&g,
		validation.Field(&g.DocumentID,
			validation.When(g.FolderID == nil, validation.Required.Error("either document_id or folder_id is required")),
			validation.When(g.FolderID != nil, validation.Nil.Error("cannot be set together with folder_id")),
			validation.Min(int64(1)),
		),
		validation.Field(&g.FolderID,
			validation.When(g.DocumentID == nil, validation.Required.Error("either document_id or folder_id is required")),
			validation.When(g.DocumentID != nil, validation.Nil.Error("cannot be set together with document_id")),
			validation.Min(int64(1)),
		),
		validation.Field(&g.UserID,
			validation.When(g.Role == "", validation.Required.Error("either user_id or role is required")),
			validation.When(g.Role != "", validation.Nil.Error("cannot be set together with role")),
			validation.Min(int64(1)),
		),
		validation.Field(&g.Role,
			validation.When(g.UserID != nil, validation.Empty.Error("cannot be set together with user_id")),
			validation.In(knownRoles...).Error("unknown role"),
		),
		validation.Field(&g.Level,
			validation.Required.Error("permission level is required"),
			validation.In(grantableLevels...).Error("must be READ, WRITE or DELETE"),
		),
	)
	if err != nil {
		return &domain.ValidationError{Message: "invalid grant: " + err.Error(), Err: err}
	}
	return nil
}

// OnDocumentTarget reports whether the grant targets a document
func (g Grant) OnDocumentTarget() bool { return g.DocumentID != nil }

// AppliesTo reports whether the grant's principal reference matches p
func (g Grant) AppliesTo(p auth.Principal) bool {
	if g.UserID != nil {
		return *g.UserID == p.ID
	}
	return g.Role != "" && g.Role == p.Role
}

// Covers reports whether the grant targets documentID directly, or folderID
// when folderID is non-nil.
func (g Grant) Covers(documentID int64, folderID *int64) bool {
	if g.DocumentID != nil {
		return *g.DocumentID == documentID
	}
	return folderID != nil && g.FolderID != nil && *g.FolderID == *folderID
}

// clone returns a deep copy so callers never share pointers with a store
func (g Grant) clone() Grant {
	out := g
	if g.DocumentID != nil {
		v := *g.DocumentID
		out.DocumentID = &v
	}
	if g.FolderID != nil {
		v := *g.FolderID
		out.FolderID = &v
	}
	if g.UserID != nil {
		v := *g.UserID
		out.UserID = &v
	}
	return out
}

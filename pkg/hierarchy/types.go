package hierarchy

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/trialsite/siteaccess/pkg/domain"
)

// DocumentType classifies a document
type DocumentType string

const (
	TypeContract         DocumentType = "CONTRACT"
	TypeProposal         DocumentType = "PROPOSAL"
	TypeDeliverable      DocumentType = "DELIVERABLE"
	TypeReport           DocumentType = "REPORT"
	TypeTrainingMaterial DocumentType = "TRAINING_MATERIAL"
	TypeOther            DocumentType = "OTHER"
)

// AllDocumentTypes lists document types in display order
var AllDocumentTypes = []DocumentType{
	TypeContract,
	TypeProposal,
	TypeDeliverable,
	TypeReport,
	TypeTrainingMaterial,
	TypeOther,
}

// Valid reports whether t is a known document type
func (t DocumentType) Valid() bool {
	for _, known := range AllDocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseDocumentType parses a document type name, case-insensitively
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", domain.NewValidationError("unknown document type %q", s)
	}
	return t, nil
}

// Folder groups documents. A nil ParentID is a root folder.
type Folder struct {
	ID          int64     `json:"id"`
	ParentID    *int64    `json:"parent_id,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ProjectID   *int64    `json:"project_id,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the caller-supplied fields of a new folder
func (f Folder) Validate() error {
	err := validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&f.Description, validation.Length(0, 2000)),
		validation.Field(&f.ParentID, validation.Min(int64(1))),
		validation.Field(&f.ProjectID, validation.Min(int64(1))),
	)
	if err != nil {
		return &domain.ValidationError{Message: "invalid folder: " + err.Error(), Err: err}
	}
	return nil
}

// Document is the protected resource. A nil FolderID is a root document.
type Document struct {
	ID          int64        `json:"id"`
	FolderID    *int64       `json:"folder_id,omitempty"`
	Title       string       `json:"title"`
	Type        DocumentType `json:"document_type"`
	Description string       `json:"description,omitempty"`
	FileName    string       `json:"file_name,omitempty"`
	CreatedBy   string       `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

var knownTypes = func() []interface{} {
	out := make([]interface{}, 0, len(AllDocumentTypes))
	for _, t := range AllDocumentTypes {
		out = append(out, t)
	}
	return out
}()

// Validate checks the caller-supplied fields of a new document
func (d Document) Validate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Title, validation.Required, validation.Length(1, 255)),
		validation.Field(&d.Type, validation.Required, validation.In(knownTypes...).Error("unknown document type")),
		validation.Field(&d.FolderID, validation.Min(int64(1))),
		validation.Field(&d.FileName, validation.Length(0, 255)),
	)
	if err != nil {
		return &domain.ValidationError{Message: "invalid document: " + err.Error(), Err: err}
	}
	return nil
}

// DocumentFilter narrows ListDocuments. The zero value lists everything.
type DocumentFilter struct {
	FolderID *int64 // only documents directly in this folder
	RootOnly bool   // only documents without a folder; ignored when FolderID is set
	Type     DocumentType
}

func (f DocumentFilter) matches(d Document) bool {
	switch {
	case f.FolderID != nil:
		if d.FolderID == nil || *d.FolderID != *f.FolderID {
			return false
		}
	case f.RootOnly:
		if d.FolderID != nil {
			return false
		}
	}
	return f.Type == "" || d.Type == f.Type
}

func cloneID(v *int64) *int64 {
	if v == nil {
		return nil
	}
	id := *v
	return &id
}

func (f Folder) clone() Folder {
	f.ParentID = cloneID(f.ParentID)
	f.ProjectID = cloneID(f.ProjectID)
	return f
}

func (d Document) clone() Document {
	d.FolderID = cloneID(d.FolderID)
	return d
}

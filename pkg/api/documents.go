package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trialsite/siteaccess/pkg/access"
	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/hierarchy"
	"github.com/trialsite/siteaccess/pkg/httputil"
	"github.com/trialsite/siteaccess/pkg/middleware"
)

// CatalogHandlers exposes documents and folders
type CatalogHandlers struct {
	catalog *access.Catalog
}

// NewCatalogHandlers creates document and folder handlers
func NewCatalogHandlers(catalog *access.Catalog) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// RegisterRoutes registers the /documents and /folders routes
func (h *CatalogHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/documents", h.listDocuments).Methods("GET")
	router.HandleFunc("/documents", h.createDocument).Methods("POST")
	router.HandleFunc("/documents/stats", h.documentStats).Methods("GET")
	router.HandleFunc("/documents/{id:[0-9]+}", h.getDocument).Methods("GET")
	router.HandleFunc("/documents/{id:[0-9]+}/folder", h.moveDocument).Methods("PUT")
	router.HandleFunc("/documents/{id:[0-9]+}", h.deleteDocument).Methods("DELETE")

	router.HandleFunc("/folders", h.listFolders).Methods("GET")
	router.HandleFunc("/folders", h.createFolder).Methods("POST")
	router.HandleFunc("/folders/{id:[0-9]+}", h.getFolder).Methods("GET")
	router.HandleFunc("/folders/{id:[0-9]+}/parent", h.moveFolder).Methods("PUT")
	router.HandleFunc("/folders/{id:[0-9]+}", h.deleteFolder).Methods("DELETE")
}

// CreateDocumentRequest is the body of POST /documents
type CreateDocumentRequest struct {
	Title       string                 `json:"title"`
	Type        hierarchy.DocumentType `json:"document_type,omitempty"`
	Description string                 `json:"description,omitempty"`
	FileName    string                 `json:"file_name,omitempty"`
	FolderID    *int64                 `json:"folder_id,omitempty"`
}

// MoveDocumentRequest is the body of PUT /documents/{id}/folder; a null
// folder_id moves the document to the root.
type MoveDocumentRequest struct {
	FolderID *int64 `json:"folder_id"`
}

// CreateFolderRequest is the body of POST /folders
type CreateFolderRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	ProjectID   *int64 `json:"project_id,omitempty"`
}

// MoveFolderRequest is the body of PUT /folders/{id}/parent
type MoveFolderRequest struct {
	ParentID *int64 `json:"parent_id"`
}

func documentFilter(r *http.Request) (hierarchy.DocumentFilter, error) {
	var filter hierarchy.DocumentFilter
	folderID, err := httputil.ParseQueryInt64Ptr(r, "folder_id")
	if err != nil {
		return filter, err
	}
	filter.FolderID = folderID
	if filter.RootOnly, err = httputil.ParseQueryBool(r, "root", false); err != nil {
		return filter, err
	}
	if t := r.URL.Query().Get("type"); t != "" {
		parsed, err := hierarchy.ParseDocumentType(t)
		if err != nil {
			return filter, err
		}
		filter.Type = parsed
	}
	return filter, nil
}

func (h *CatalogHandlers) listDocuments(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	filter, err := documentFilter(r)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}

	docs, err := h.catalog.ListDocuments(r.Context(), principal, filter)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	if docs == nil {
		docs = []hierarchy.Document{}
	}
	httputil.WriteSuccess(w, r, docs)
}

func (h *CatalogHandlers) documentStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	filter, err := documentFilter(r)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}

	stats, err := h.catalog.Stats(r.Context(), principal, filter)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, stats)
}

func (h *CatalogHandlers) getDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.catalog.GetDocument(r.Context(), principal, id)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, doc)
}

func (h *CatalogHandlers) createDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req CreateDocumentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	created, err := h.catalog.CreateDocument(r.Context(), principal, hierarchy.Document{
		Title:       req.Title,
		Type:        req.Type,
		Description: req.Description,
		FileName:    req.FileName,
		FolderID:    req.FolderID,
	})
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, created)
}

func (h *CatalogHandlers) moveDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req MoveDocumentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.catalog.MoveDocument(r.Context(), principal, id, req.FolderID); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *CatalogHandlers) deleteDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteDocument(r.Context(), principal, id); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *CatalogHandlers) listFolders(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	parentID, err := httputil.ParseQueryInt64Ptr(r, "parent_id")
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}

	folders, err := h.catalog.ListFolders(r.Context(), parentID)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	if folders == nil {
		folders = []hierarchy.Folder{}
	}
	httputil.WriteSuccess(w, r, folders)
}

func (h *CatalogHandlers) getFolder(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	view, err := h.catalog.GetFolder(r.Context(), id)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, view)
}

func (h *CatalogHandlers) createFolder(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req CreateFolderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	created, err := h.catalog.CreateFolder(r.Context(), principal, hierarchy.Folder{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
		ProjectID:   req.ProjectID,
	})
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, created)
}

func (h *CatalogHandlers) moveFolder(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req MoveFolderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.catalog.MoveFolder(r.Context(), principal, id, req.ParentID); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *CatalogHandlers) deleteFolder(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteFolder(r.Context(), principal, id); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r)
	if !ok {
		httputil.WriteUnauthorized(w, r, "authentication required")
	}
	return p, ok
}

package access

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/grants"
	"github.com/trialsite/siteaccess/pkg/httputil"
	"github.com/trialsite/siteaccess/pkg/middleware"
)

// Handlers exposes grant management and permission checks over HTTP
type Handlers struct {
	authz *Authorizer
}

// NewHandlers creates permission handlers
func NewHandlers(authz *Authorizer) *Handlers {
	return &Handlers{authz: authz}
}

// RegisterRoutes registers the /permissions routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permissions", h.GrantPermission).Methods("POST")
	router.HandleFunc("/permissions/check", h.CheckPermission).Methods("POST")
	router.HandleFunc("/permissions/{id:[0-9]+}", h.RevokePermission).Methods("DELETE")
	router.HandleFunc("/permissions/document/{id}", h.ListForDocument).Methods("GET")
	router.HandleFunc("/permissions/folder/{id}", h.ListForFolder).Methods("GET")
	router.HandleFunc("/permissions/user/{id}", h.ListForUser).Methods("GET")
	router.HandleFunc("/permissions/role/{role}", h.ListForRole).Methods("GET")
}

// GrantRequest is the body of POST /permissions
type GrantRequest struct {
	DocumentID *int64       `json:"document_id,omitempty"`
	FolderID   *int64       `json:"folder_id,omitempty"`
	UserID     *int64       `json:"user_id,omitempty"`
	Role       auth.Role    `json:"role,omitempty"`
	Level      domain.Level `json:"level"`
}

// CheckRequest is the body of POST /permissions/check
type CheckRequest struct {
	DocumentID int64        `json:"document_id"`
	Level      domain.Level `json:"level"`
}

// GrantPermission handles POST /permissions
func (h *Handlers) GrantPermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	created, err := h.authz.GrantPermission(r.Context(), principal, grants.Grant{
		DocumentID: req.DocumentID,
		FolderID:   req.FolderID,
		UserID:     req.UserID,
		Role:       req.Role,
		Level:      req.Level,
	})
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, created)
}

// RevokePermission handles DELETE /permissions/{id}
func (h *Handlers) RevokePermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.authz.RevokePermission(r.Context(), principal, id); err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// CheckPermission handles POST /permissions/check for the calling principal
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req CheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.DocumentID <= 0 {
		httputil.WriteBadRequest(w, r, "document_id is required")
		return
	}

	decision, err := h.authz.Explain(r.Context(), principal, req.DocumentID, req.Level)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, decision)
}

// ListForDocument handles GET /permissions/document/{id}
func (h *Handlers) ListForDocument(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.authz.GrantsForDocument)
}

// ListForFolder handles GET /permissions/folder/{id}
func (h *Handlers) ListForFolder(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.authz.GrantsForFolder)
}

// ListForUser handles GET /permissions/user/{id}
func (h *Handlers) ListForUser(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.authz.GrantsForUser)
}

// ListForRole handles GET /permissions/role/{role}
func (h *Handlers) ListForRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	name, err := httputil.ParsePathString(r, "role")
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	role, err := auth.ParseRole(name)
	if err != nil {
		httputil.WriteBadRequest(w, r, err.Error())
		return
	}

	found, err := h.authz.GrantsForRole(r.Context(), principal, role)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeGrants(w, r, found)
}

type listFunc func(ctx context.Context, viewer auth.Principal, id int64) ([]grants.Grant, error)

func (h *Handlers) list(w http.ResponseWriter, r *http.Request, fn listFunc) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	found, err := fn(r.Context(), principal, id)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	writeGrants(w, r, found)
}

func writeGrants(w http.ResponseWriter, r *http.Request, found []grants.Grant) {
	if found == nil {
		found = []grants.Grant{}
	}
	httputil.WriteSuccess(w, r, found)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r)
	if !ok {
		httputil.WriteUnauthorized(w, r, "authentication required")
	}
	return p, ok
}

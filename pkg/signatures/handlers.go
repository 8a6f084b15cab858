package signatures

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trialsite/siteaccess/pkg/auth"
	"github.com/trialsite/siteaccess/pkg/httputil"
	"github.com/trialsite/siteaccess/pkg/middleware"
)

// WebhookSecretHeader carries the shared secret on provider callbacks
const WebhookSecretHeader = "X-Webhook-Secret"

// Handlers exposes the signature workflow over HTTP
type Handlers struct {
	service       *Service
	webhookSecret string
}

// NewHandlers creates signature handlers. An empty webhookSecret accepts
// every callback.
func NewHandlers(service *Service, webhookSecret string) *Handlers {
	return &Handlers{service: service, webhookSecret: webhookSecret}
}

// RegisterRoutes registers the authenticated /signatures routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/signatures", h.Assign).Methods("POST")
	router.HandleFunc("/signatures/mine", h.Mine).Methods("GET")
	router.HandleFunc("/signatures/document/{id}", h.ForDocument).Methods("GET")
	router.HandleFunc("/signatures/{id:[0-9]+}", h.Get).Methods("GET")
	router.HandleFunc("/signatures/{id:[0-9]+}/sent", h.MarkSent).Methods("POST")
	router.HandleFunc("/signatures/{id:[0-9]+}/cancel", h.Cancel).Methods("POST")
}

// RegisterWebhook registers the provider callback, which is called without
// a bearer token.
func (h *Handlers) RegisterWebhook(router *mux.Router) {
	router.HandleFunc("/signatures/webhook", h.Webhook).Methods("POST")
}

// AssignRequest is the body of POST /signatures
type AssignRequest struct {
	DocumentID int64  `json:"document_id"`
	AssigneeID int64  `json:"assignee_id"`
	Message    string `json:"message,omitempty"`
}

// SentRequest is the body of POST /signatures/{id}/sent
type SentRequest struct {
	ProviderRef string `json:"provider_ref"`
	SigningURL  string `json:"signing_url,omitempty"`
}

// Assign handles POST /signatures
func (h *Handlers) Assign(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req AssignRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	created, err := h.service.Assign(r.Context(), principal, req.DocumentID, req.AssigneeID, req.Message)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteCreated(w, r, created)
}

// Mine handles GET /signatures/mine; ?open=true limits to open requests
func (h *Handlers) Mine(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	openOnly, err := httputil.ParseQueryBool(r, "open", false)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}

	found, err := h.service.Mine(r.Context(), principal, openOnly)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, found)
}

// ForDocument handles GET /signatures/document/{id}
func (h *Handlers) ForDocument(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.ForDocument(r.Context(), principal, id)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, found)
}

// Get handles GET /signatures/{id}
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	found, err := h.service.Get(r.Context(), principal, id)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, found)
}

// MarkSent handles POST /signatures/{id}/sent
func (h *Handlers) MarkSent(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	if !principal.IsPrivileged() {
		httputil.WriteForbidden(w, r, "only ADMIN or DOCTOR may update signature requests")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req SentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	updated, err := h.service.MarkSent(r.Context(), id, req.ProviderRef, req.SigningURL)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, updated)
}

// Cancel handles POST /signatures/{id}/cancel
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	cancelled, err := h.service.Cancel(r.Context(), principal, id)
	if err != nil {
		httputil.WriteDomainError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, r, cancelled)
}

// Webhook handles POST /signatures/webhook. The provider retries on any
// non-2xx response, so events that cannot be applied are acknowledged as
// ignored.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" {
		got := r.Header.Get(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			httputil.WriteUnauthorized(w, r, "invalid webhook secret")
			return
		}
	}

	// Provider payloads carry many more fields than ProviderEvent
	var ev ProviderEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		httputil.WriteSuccess(w, r, map[string]string{"status": "ignored", "reason": err.Error()})
		return
	}

	updated, err := h.service.ApplyEvent(r.Context(), ev)
	if err != nil {
		h.service.log(r.Context()).WithError(err).Warnf("ignored provider event %q", ev.Event)
		httputil.WriteSuccess(w, r, map[string]string{"status": "ignored", "reason": err.Error()})
		return
	}
	httputil.WriteSuccess(w, r, map[string]interface{}{"status": "ok", "signature_status": updated.Status})
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r)
	if !ok {
		httputil.WriteUnauthorized(w, r, "authentication required")
	}
	return p, ok
}

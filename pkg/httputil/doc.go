// Package httputil provides the JSON response, request parsing and
// middleware helpers shared by the HTTP handlers.
//
// Error responses are always {"error": "..."}. Handlers return domain errors
// through WriteDomainError, which picks the status code:
//
//	doc, err := catalog.GetDocument(ctx, principal, id)
//	if err != nil {
//		httputil.WriteDomainError(w, r, err)
//		return
//	}
//	httputil.WriteSuccess(w, r, doc)
//
// Path and query parameters:
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	folderID, err := httputil.ParseQueryInt64Ptr(r, "folder_id")
//
// Middleware:
//
//	router.Use(httputil.RequestIDMiddleware, httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger))
package httputil

// Package api assembles the HTTP surface: grant management under
// /permissions, documents and folders, signature requests and the signing
// provider webhook.
//
// Every route except the webhook requires a bearer token. Requests pass
// through request-id, logging, panic recovery, body-size limits, tracing
// and, when origins are configured, CORS.
package api

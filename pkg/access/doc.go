// Package access resolves document permissions and exposes the authorization
// façade used by the HTTP layer.
//
// A restricted principal (USER, AUDITOR, COORDINATOR) holds a level on a
// document when a grant names the principal, or the principal's role, on
// the document itself or on the document's immediate folder. Grants never
// propagate further up the folder tree. The highest applicable level wins
// and entails every lower level. ADMIN and DOCTOR bypass resolution.
//
// Resolver answers single questions. Authorizer adds the ADMIN-only grant
// management operations, bulk filtering, audit events and metrics. Catalog
// guards document and folder mutations with the Authorizer.
package access

// Package domain holds the value types and error taxonomy shared by the
// grant store, the folder hierarchy and the authorization layer.
//
// Errors come in four kinds: ValidationError (malformed input),
// NotFoundError (unknown id), InvariantViolation (a mutation that would
// corrupt the folder tree or a workflow) and PermissionDenied (a caller
// without the role a mutation requires). Each kind matches its sentinel
// through errors.Is and carries an HTTP status through StatusCode.
//
// A missing permission is never an error: resolvers answer false.
package domain

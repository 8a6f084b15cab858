// Package signatures tracks e-signature requests on documents.
//
// A request starts PENDING, becomes SENT once the provider accepts it, and
// then follows provider callbacks to VIEWED and to one of the terminal
// statuses SIGNED, DECLINED or EXPIRED. Staff may cancel an open request.
// At most one request per document and assignee may be open at a time.
//
// Assigning requires an ADMIN or DOCTOR assigner and an assignee who can
// read the document. A Sweeper expires open requests older than the
// configured TTL on a cron schedule.
package signatures

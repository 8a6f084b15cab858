// Package grants stores permission grants.
//
// A grant links exactly one principal reference (a user id or a role) to
// exactly one target (a document id or a folder id) at a level of READ,
// WRITE or DELETE. Grants are additive: there are no deny records and no
// in-place updates, so changing a level means revoking the grant and
// creating a new one.
//
//	g := grants.New(grants.OnFolder(10), grants.ForRole(auth.RoleAuditor), domain.LevelRead)
//	stored, err := store.Create(ctx, g)
//
// Create rejects malformed grants with a domain.ValidationError before
// anything is persisted. Two Store implementations exist: MemoryStore for
// single-process use and tests, and SQLStore over database/sql for
// PostgreSQL and SQLite. Both return grants in creation order.
package grants

// Package storage opens the relational backend and applies schema
// migrations owned by the grant, hierarchy and signature packages.
//
// Two drivers are supported: PostgreSQL through lib/pq for deployments and
// SQLite through mattn/go-sqlite3 for single-node installs and tests. The
// "memory" driver skips the database entirely and the caller wires the
// in-memory stores instead.
//
//	db, err := storage.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	_, err = storage.Migrate(ctx, db, cfg.Dialect(),
//		hierarchy.Migrations(), grants.Migrations(), signatures.Migrations())
//
// Migration versions are global: hierarchy owns 1-9, grants 10-19 and
// signatures 20-29.
package storage

package signatures

import "github.com/trialsite/siteaccess/pkg/storage"

// Migrations returns the signature schema migrations (versions 20-29)
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     20,
			Description: "Create document_signatures table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS document_signatures (
					id BIGSERIAL PRIMARY KEY,
					document_id BIGINT NOT NULL,
					assigned_to_user_id BIGINT NOT NULL,
					assigned_by_user_id BIGINT NOT NULL,
					assigned_by VARCHAR(255) NOT NULL DEFAULT '',
					provider_ref VARCHAR(255),
					status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
					signing_url VARCHAR(2000) NOT NULL DEFAULT '',
					message VARCHAR(1000) NOT NULL DEFAULT '',
					signed_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS document_signatures (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					document_id INTEGER NOT NULL,
					assigned_to_user_id INTEGER NOT NULL,
					assigned_by_user_id INTEGER NOT NULL,
					assigned_by TEXT NOT NULL DEFAULT '',
					provider_ref TEXT,
					status TEXT NOT NULL DEFAULT 'PENDING',
					signing_url TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					signed_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			// One open request per (document, assignee)
			Version:     21,
			Description: "Index document_signatures and enforce one open request",
			Postgres: `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_document_signatures_open
					ON document_signatures(document_id, assigned_to_user_id)
					WHERE status IN ('PENDING', 'SENT', 'VIEWED');
				CREATE UNIQUE INDEX IF NOT EXISTS uq_document_signatures_provider_ref
					ON document_signatures(provider_ref)
					WHERE provider_ref IS NOT NULL;
				CREATE INDEX IF NOT EXISTS idx_document_signatures_assignee
					ON document_signatures(assigned_to_user_id);
			`,
			SQLite: `
				CREATE UNIQUE INDEX IF NOT EXISTS uq_document_signatures_open
					ON document_signatures(document_id, assigned_to_user_id)
					WHERE status IN ('PENDING', 'SENT', 'VIEWED');
				CREATE UNIQUE INDEX IF NOT EXISTS uq_document_signatures_provider_ref
					ON document_signatures(provider_ref)
					WHERE provider_ref IS NOT NULL;
				CREATE INDEX IF NOT EXISTS idx_document_signatures_assignee
					ON document_signatures(assigned_to_user_id);
			`,
		},
	}
}

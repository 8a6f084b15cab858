package grants

import "github.com/trialsite/siteaccess/pkg/storage"

// Migrations returns the grant schema migrations (versions 10-19)
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     10,
			Description: "Create document_permissions table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS document_permissions (
					id BIGSERIAL PRIMARY KEY,
					document_id BIGINT,
					folder_id BIGINT,
					user_id BIGINT,
					role VARCHAR(32),
					permission_type VARCHAR(16) NOT NULL CHECK (permission_type IN ('READ', 'WRITE', 'DELETE')),
					granted_by VARCHAR(255) NOT NULL DEFAULT '',
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CONSTRAINT chk_permission_target CHECK ((document_id IS NULL) <> (folder_id IS NULL)),
					CONSTRAINT chk_permission_principal CHECK ((user_id IS NULL) <> (role IS NULL))
				);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS document_permissions (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					document_id INTEGER,
					folder_id INTEGER,
					user_id INTEGER,
					role TEXT,
					permission_type TEXT NOT NULL CHECK (permission_type IN ('READ', 'WRITE', 'DELETE')),
					granted_by TEXT NOT NULL DEFAULT '',
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					CHECK ((document_id IS NULL) <> (folder_id IS NULL)),
					CHECK ((user_id IS NULL) <> (role IS NULL))
				);
			`,
		},
		{
			Version:     11,
			Description: "Index document_permissions lookups",
			Postgres: `
				CREATE INDEX IF NOT EXISTS idx_document_permissions_document_id ON document_permissions(document_id);
				CREATE INDEX IF NOT EXISTS idx_document_permissions_folder_id ON document_permissions(folder_id);
				CREATE INDEX IF NOT EXISTS idx_document_permissions_user_id ON document_permissions(user_id);
				CREATE INDEX IF NOT EXISTS idx_document_permissions_role ON document_permissions(role);
			`,
		},
	}
}

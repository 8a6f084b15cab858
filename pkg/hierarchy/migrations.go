package hierarchy

import "github.com/trialsite/siteaccess/pkg/storage"

// Migrations returns the hierarchy schema migrations (versions 1-9)
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "Create folders table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS folders (
					id BIGSERIAL PRIMARY KEY,
					parent_id BIGINT REFERENCES folders(id),
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					project_id BIGINT,
					created_by VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CONSTRAINT chk_folder_not_own_parent CHECK (parent_id IS NULL OR parent_id <> id)
				);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS folders (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					parent_id INTEGER REFERENCES folders(id),
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					project_id INTEGER,
					created_by TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					CHECK (parent_id IS NULL OR parent_id <> id)
				);
			`,
		},
		{
			Version:     2,
			Description: "Create documents table",
			Postgres: `
				CREATE TABLE IF NOT EXISTS documents (
					id BIGSERIAL PRIMARY KEY,
					folder_id BIGINT REFERENCES folders(id),
					title VARCHAR(255) NOT NULL,
					document_type VARCHAR(32) NOT NULL DEFAULT 'OTHER',
					description TEXT NOT NULL DEFAULT '',
					file_name VARCHAR(255) NOT NULL DEFAULT '',
					created_by VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS documents (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					folder_id INTEGER REFERENCES folders(id),
					title TEXT NOT NULL,
					document_type TEXT NOT NULL DEFAULT 'OTHER',
					description TEXT NOT NULL DEFAULT '',
					file_name TEXT NOT NULL DEFAULT '',
					created_by TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version:     3,
			Description: "Index hierarchy lookups",
			Postgres: `
				CREATE INDEX IF NOT EXISTS idx_folders_parent_id ON folders(parent_id);
				CREATE INDEX IF NOT EXISTS idx_documents_folder_id ON documents(folder_id);
				CREATE INDEX IF NOT EXISTS idx_documents_document_type ON documents(document_type);
			`,
		},
	}
}

package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
)

// Migration represents a database migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all database migrations for the given driver.
func GetMigrations(dbType string) []Migration {
	if dbType == "postgres" {
		return getPostgresMigrations()
	}
	return getSQLiteMigrations()
}

func getPostgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY,
				email VARCHAR(255) UNIQUE NOT NULL,
				magic_link_token VARCHAR(64),
				magic_link_expires TIMESTAMP WITH TIME ZONE,
				email_verified BOOLEAN NOT NULL DEFAULT FALSE,
				last_login_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			CREATE INDEX IF NOT EXISTS idx_users_magic_link_token ON users(magic_link_token)`,
		},
		{
			Version:     2,
			Description: "Create magic_link_requests table",
			SQL: `CREATE TABLE IF NOT EXISTS magic_link_requests (
				id UUID PRIMARY KEY,
				email VARCHAR(255) NOT NULL,
				requested_at TIMESTAMP WITH TIME ZONE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_magic_link_requests_email ON magic_link_requests(email);
			CREATE INDEX IF NOT EXISTS idx_magic_link_requests_expires_at ON magic_link_requests(expires_at)`,
		},
		{
			Version:     3,
			Description: "Create devices table",
			SQL: `CREATE TABLE IF NOT EXISTS devices (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				device_fingerprint VARCHAR(128) NOT NULL,
				device_name VARCHAR(255) NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				last_active_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (user_id, device_fingerprint)
			);
			CREATE INDEX IF NOT EXISTS idx_devices_user_id ON devices(user_id)`,
		},
		{
			Version:     4,
			Description: "Create sessions table",
			SQL: `CREATE TABLE IF NOT EXISTS sessions (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				device_id UUID NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
				token_hash VARCHAR(64) UNIQUE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				user_agent VARCHAR(500) NOT NULL DEFAULT '',
				ip_address VARCHAR(45) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions(token_hash);
			CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
		},
		{
			Version:     5,
			Description: "Create entitlements table",
			SQL: `CREATE TABLE IF NOT EXISTS entitlements (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				entitlement_type VARCHAR(50) NOT NULL,
				item_id VARCHAR(100),
				expires_at TIMESTAMP WITH TIME ZONE,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (user_id, entitlement_type, item_id)
			);
			CREATE INDEX IF NOT EXISTS idx_entitlements_user_id ON entitlements(user_id)`,
		},
		{
			Version:     6,
			Description: "Create security_events table",
			SQL: `CREATE TABLE IF NOT EXISTS security_events (
				id UUID PRIMARY KEY,
				event_type VARCHAR(50) NOT NULL,
				severity VARCHAR(20) NOT NULL,
				user_id UUID,
				ip_address VARCHAR(45) NOT NULL DEFAULT '',
				user_agent VARCHAR(500) NOT NULL DEFAULT '',
				metadata TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_security_events_created_at ON security_events(created_at);
			CREATE INDEX IF NOT EXISTS idx_security_events_event_type ON security_events(event_type)`,
		},
	}
}

func getSQLiteMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT UNIQUE NOT NULL,
				magic_link_token TEXT,
				magic_link_expires DATETIME,
				email_verified INTEGER NOT NULL DEFAULT 0,
				last_login_at DATETIME,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
			CREATE INDEX IF NOT EXISTS idx_users_magic_link_token ON users(magic_link_token)`,
		},
		{
			Version:     2,
			Description: "Create magic_link_requests table",
			SQL: `CREATE TABLE IF NOT EXISTS magic_link_requests (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL,
				requested_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_magic_link_requests_email ON magic_link_requests(email);
			CREATE INDEX IF NOT EXISTS idx_magic_link_requests_expires_at ON magic_link_requests(expires_at)`,
		},
		{
			Version:     3,
			Description: "Create devices table",
			SQL: `CREATE TABLE IF NOT EXISTS devices (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				device_fingerprint TEXT NOT NULL,
				device_name TEXT NOT NULL DEFAULT '',
				is_active INTEGER NOT NULL DEFAULT 1,
				last_active_at DATETIME NOT NULL,
				created_at DATETIME NOT NULL,
				UNIQUE (user_id, device_fingerprint)
			);
			CREATE INDEX IF NOT EXISTS idx_devices_user_id ON devices(user_id)`,
		},
		{
			Version:     4,
			Description: "Create sessions table",
			SQL: `CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				device_id TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
				token_hash TEXT UNIQUE NOT NULL,
				expires_at DATETIME NOT NULL,
				user_agent TEXT NOT NULL DEFAULT '',
				ip_address TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_token_hash ON sessions(token_hash);
			CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`,
		},
		{
			Version:     5,
			Description: "Create entitlements table",
			SQL: `CREATE TABLE IF NOT EXISTS entitlements (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				entitlement_type TEXT NOT NULL,
				item_id TEXT,
				expires_at DATETIME,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE (user_id, entitlement_type, item_id)
			);
			CREATE INDEX IF NOT EXISTS idx_entitlements_user_id ON entitlements(user_id)`,
		},
		{
			Version:     6,
			Description: "Create security_events table",
			SQL: `CREATE TABLE IF NOT EXISTS security_events (
				id TEXT PRIMARY KEY,
				event_type TEXT NOT NULL,
				severity TEXT NOT NULL,
				user_id TEXT,
				ip_address TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				metadata TEXT,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_security_events_created_at ON security_events(created_at);
			CREATE INDEX IF NOT EXISTS idx_security_events_event_type ON security_events(event_type)`,
		},
	}
}

// createMigrationsTable creates the migrations tracking table.
func createMigrationsTable(db *sql.DB, dbType string) error {
	var query string
	if dbType == "postgres" {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`
	} else {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	}

	_, err := db.Exec(query)
	return err
}

// getAppliedMigrations returns the list of applied migration versions.
func getAppliedMigrations(db *sql.DB) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return applied, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return applied, err
		}
		applied[version] = true
	}

	return applied, rows.Err()
}

// recordMigration records that a migration has been applied.
func recordMigration(db *sql.DB, dbType string, version int) error {
	var query string
	if dbType == "postgres" {
		query = "INSERT INTO schema_migrations (version) VALUES ($1)"
	} else {
		query = "INSERT INTO schema_migrations (version) VALUES (?)"
	}
	_, err := db.Exec(query, version)
	return err
}

// RunMigrations runs all pending migrations.
func RunMigrations(db *sql.DB, dbType string) error {
	if err := createMigrationsTable(db, dbType); err != nil {
		return fmt.Errorf("failed to create migrations table: %v", err)
	}

	applied, err := getAppliedMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %v", err)
	}

	for _, migration := range GetMigrations(dbType) {
		if applied[migration.Version] {
			continue
		}

		log.Printf("[DB] Applying migration %d: %s", migration.Version, migration.Description)

		// Split SQL by semicolon and execute each statement.
		statements := strings.Split(migration.SQL, ";")
		for _, stmt := range statements {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("failed to apply migration %d: %v", migration.Version, err)
			}
		}

		if err := recordMigration(db, dbType, migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %v", migration.Version, err)
		}
	}

	return nil
}

package migrations

import (
	"database/sql"
)

func getAllMigrations() []Migration {
	return []Migration{
		migration1_Options(),
		migration2_SettingsHistory(),
	}
}

// migration1_Options creates the key/value options table holding the
// serialized settings record.
func migration1_Options() Migration {
	return Migration{
		Version:     1,
		Description: "Options table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS options (
					name TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					created_at INTEGER NOT NULL,
					updated_at INTEGER NOT NULL
				)
			`)
			return err
		},
	}
}

// migration2_SettingsHistory keeps a copy of every saved settings record
func migration2_SettingsHistory() Migration {
	return Migration{
		Version:     2,
		Description: "Settings history",
		Up: func(tx *sql.Tx) error {
			statements := []string{
				`CREATE TABLE IF NOT EXISTS settings_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					value TEXT NOT NULL,
					source TEXT NOT NULL DEFAULT '',
					saved_at INTEGER NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_settings_history_name ON settings_history(name, saved_at)`,
			}
			for _, stmt := range statements {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

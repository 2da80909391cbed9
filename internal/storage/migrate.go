package storage

import (
	"context"
	"fmt"
	"strings"
)

// tableDef is a CREATE TABLE statement written against placeholder column
// types that each dialect fills in.
type tableDef struct {
	name string
	ddl  string
}

// chats and classes are owned by the chat platform; the gateway only reads
// them to scope per-chat metrics for instructors.
var tables = []tableDef{
	{name: "users", ddl: `CREATE TABLE IF NOT EXISTS users (
	id {{key}} PRIMARY KEY,
	name VARCHAR(255) NOT NULL DEFAULT '',
	role VARCHAR(32) NOT NULL DEFAULT 'user',
	token_count BIGINT NOT NULL DEFAULT 0
)`},
	{name: "classes", ddl: `CREATE TABLE IF NOT EXISTS classes (
	id {{key}} PRIMARY KEY,
	instructor_id {{key}} NOT NULL
)`},
	{name: "chats", ddl: `CREATE TABLE IF NOT EXISTS chats (
	id {{key}} PRIMARY KEY,
	user_id {{key}} NOT NULL,
	class_id {{key}} NULL
)`},
	{name: "prompts", ddl: `CREATE TABLE IF NOT EXISTS prompts (
	id {{serial}},
	content TEXT NOT NULL,
	selected_model_id {{key}} NOT NULL DEFAULT ''
)`},
	{name: "evaluations", ddl: `CREATE TABLE IF NOT EXISTS evaluations (
	id {{serial}},
	content TEXT NOT NULL,
	selected_model_id {{key}} NOT NULL DEFAULT ''
)`},
	{name: "models", ddl: `CREATE TABLE IF NOT EXISTS models (
	id {{key}} PRIMARY KEY,
	name VARCHAR(255) NOT NULL DEFAULT '',
	base_model_id {{key}} NULL,
	params TEXT NULL
)`},
	{name: "metrics", ddl: `CREATE TABLE IF NOT EXISTS metrics (
	id {{serial}},
	user_id {{key}} NOT NULL,
	chat_id {{key}} NOT NULL,
	model_id {{key}} NOT NULL,
	date VARCHAR(10) NOT NULL,
	input_tokens BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	message_count BIGINT NOT NULL DEFAULT 0,
	UNIQUE (user_id, chat_id, model_id, date)
)`},
}

// indexes are created after the tables; duplicate-name errors from MySQL,
// which has no CREATE INDEX IF NOT EXISTS, are ignored.
var indexes = []struct {
	name    string
	table   string
	columns string
}{
	{name: "idx_metrics_chat", table: "metrics", columns: "chat_id"},
	{name: "idx_chats_class", table: "chats", columns: "class_id"},
}

func columnTypes(dialect Dialect) *strings.Replacer {
	switch dialect {
	case DialectPostgres:
		return strings.NewReplacer("{{key}}", "VARCHAR(191)", "{{serial}}", "BIGSERIAL PRIMARY KEY")
	case DialectMySQL:
		return strings.NewReplacer("{{key}}", "VARCHAR(191)", "{{serial}}", "BIGINT PRIMARY KEY AUTO_INCREMENT")
	default:
		return strings.NewReplacer("{{key}}", "TEXT", "{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT")
	}
}

// Migrate creates the tables and indexes the gateway reads and writes. It is
// idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	types := columnTypes(db.dialect)
	for _, tb := range tables {
		if _, err := db.conn.ExecContext(ctx, types.Replace(tb.ddl)); err != nil {
			return fmt.Errorf("create %s table: %w", tb.name, err)
		}
	}

	for _, idx := range indexes {
		query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if db.dialect == DialectMySQL {
			query = fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		}
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			if db.dialect == DialectMySQL && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}

	return nil
}

package store

// The archive keeps two layers. raw_sessions and the scan audit tables
// are the durable layer: raw bytes survive every rebuild. Everything
// below sessions is derived from raw_sessions and can be dropped and
// regenerated at any time.

var rawSchema = []string{
	`CREATE TABLE IF NOT EXISTS raw_sessions (
		session_id TEXT PRIMARY KEY,
		raw_json BLOB NOT NULL,
		workspace_name TEXT,
		workspace_path TEXT,
		source_kind TEXT NOT NULL,
		artifact_form TEXT NOT NULL,
		source_file TEXT,
		source_mtime REAL,
		source_size INTEGER,
		imported_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_sessions_workspace ON raw_sessions(workspace_name)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_sessions_source_file ON raw_sessions(source_file)`,

	`CREATE TABLE IF NOT EXISTS scan_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		full_rescan INTEGER NOT NULL DEFAULT 0,
		added INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		unchanged INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS scan_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		FOREIGN KEY (scan_id) REFERENCES scan_runs(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scan_files_scan ON scan_files(scan_id)`,
}

var derivedSchema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		workspace_name TEXT,
		workspace_path TEXT,
		source_kind TEXT NOT NULL,
		created_at TEXT,
		updated_at TEXT,
		custom_title TEXT,
		requester_username TEXT,
		responder_username TEXT,
		source_file TEXT,
		FOREIGN KEY (session_id) REFERENCES raw_sessions(session_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		message_index INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT,
		timestamp TEXT,
		FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS tool_invocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		tool_name TEXT NOT NULL,
		input TEXT,
		result TEXT,
		status TEXT,
		start_time TEXT,
		end_time TEXT,
		source_type TEXT,
		invocation_message TEXT,
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS file_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		file_path TEXT NOT NULL,
		diff TEXT,
		content TEXT,
		explanation TEXT,
		language_id TEXT,
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS command_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		command TEXT NOT NULL,
		title TEXT,
		result TEXT,
		status TEXT,
		output TEXT,
		timestamp TEXT,
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS content_blocks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		block_index INTEGER NOT NULL,
		kind TEXT NOT NULL,
		content TEXT,
		description TEXT,
		FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_name)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_source_kind ON sessions(source_kind)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tool_invocations_message ON tool_invocations(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_file_changes_message ON file_changes(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_command_runs_message ON command_runs(message_id)`,
	`CREATE INDEX IF NOT EXISTS idx_content_blocks_message ON content_blocks(message_id)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		content,
		content='messages',
		content_rowid='id'
	)`,
	`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
	END`,
	`CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
		INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
	END`,
}

// derivedDrops lists derived tables child-first so a rebuild can drop
// them without tripping foreign key checks.
var derivedDrops = []string{
	"messages_fts",
	"content_blocks",
	"command_runs",
	"file_changes",
	"tool_invocations",
	"messages",
	"sessions",
}

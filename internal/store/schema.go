package store

// migrations are applied forward in order; index i is schema version i+1.
var migrations = []string{
	// v1: core schema
	`
	CREATE TABLE IF NOT EXISTS spaces (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		settings    TEXT NOT NULL DEFAULT '{}',
		created_at  TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_spaces_name ON spaces (LOWER(name));

	CREATE TABLE IF NOT EXISTS memories (
		id           TEXT PRIMARY KEY,
		space_id     TEXT NOT NULL REFERENCES spaces(id) ON DELETE CASCADE,
		content_type TEXT NOT NULL,
		title        TEXT NOT NULL DEFAULT '',
		content      TEXT NOT NULL DEFAULT '',
		source       TEXT NOT NULL DEFAULT '',
		file_path    TEXT NOT NULL DEFAULT '',
		metadata     TEXT NOT NULL DEFAULT '{}',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_space_created ON memories (space_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS chunks (
		id              TEXT PRIMARY KEY,
		memory_id       TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		chunk_text      TEXT NOT NULL,
		chunk_order     INTEGER NOT NULL,
		start_offset_ms INTEGER,
		end_offset_ms   INTEGER,
		metadata        TEXT NOT NULL DEFAULT '{}',
		created_at      TEXT NOT NULL,
		UNIQUE (memory_id, chunk_order)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_memory_order ON chunks (memory_id, chunk_order);

	CREATE TABLE IF NOT EXISTS vector_embeddings (
		id              TEXT PRIMARY KEY,
		content_id      TEXT NOT NULL,
		content_type    TEXT NOT NULL,
		embedding_model TEXT NOT NULL,
		dimensions      INTEGER NOT NULL,
		vector          BLOB NOT NULL,
		created_at      TEXT NOT NULL,
		UNIQUE (content_id, content_type, embedding_model)
	);
	CREATE INDEX IF NOT EXISTS idx_embeddings_model ON vector_embeddings (embedding_model);

	CREATE TABLE IF NOT EXISTS video_processing_jobs (
		id              TEXT PRIMARY KEY,
		source_id       TEXT NOT NULL,
		source_type     TEXT NOT NULL,
		status          TEXT NOT NULL,
		progress        INTEGER NOT NULL DEFAULT 0,
		video_path      TEXT NOT NULL DEFAULT '',
		audio_path      TEXT NOT NULL DEFAULT '',
		transcript_path TEXT NOT NULL DEFAULT '',
		steps           TEXT NOT NULL DEFAULT '[]',
		metadata        TEXT NOT NULL DEFAULT '{}',
		error           TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL,
		completed_at    TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON video_processing_jobs (status);

	CREATE TABLE IF NOT EXISTS processed_video_content (
		id              TEXT PRIMARY KEY,
		job_id          TEXT NOT NULL UNIQUE REFERENCES video_processing_jobs(id),
		memory_id       TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		transcript      TEXT,
		chunk_count     INTEGER NOT NULL DEFAULT 0,
		embedding_count INTEGER NOT NULL DEFAULT 0,
		metadata        TEXT NOT NULL DEFAULT '{}',
		created_at      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS platform_videos (
		id                TEXT PRIMARY KEY,
		memory_id         TEXT NOT NULL DEFAULT '',
		platform          TEXT NOT NULL,
		platform_video_id TEXT NOT NULL,
		video_url         TEXT NOT NULL,
		thumbnail_url     TEXT NOT NULL DEFAULT '',
		duration_sec      REAL NOT NULL DEFAULT 0,
		upload_date       TEXT NOT NULL DEFAULT '',
		channel_info      TEXT NOT NULL DEFAULT '{}',
		playlist_info     TEXT NOT NULL DEFAULT '{}',
		platform_metadata TEXT NOT NULL DEFAULT '{}',
		last_indexed      TEXT NOT NULL,
		UNIQUE (platform, platform_video_id)
	);

	CREATE TABLE IF NOT EXISTS platform_transcripts (
		id                TEXT PRIMARY KEY,
		platform_video_id TEXT NOT NULL UNIQUE,
		transcript        TEXT NOT NULL,
		created_at        TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_deeplinks (
		id                  TEXT PRIMARY KEY,
		video_id            TEXT NOT NULL,
		video_type          TEXT NOT NULL,
		timestamp_start_sec REAL NOT NULL,
		timestamp_end_sec   REAL,
		deeplink_url        TEXT NOT NULL,
		context_summary     TEXT NOT NULL DEFAULT '',
		search_keywords     TEXT NOT NULL DEFAULT '',
		confidence_score    REAL NOT NULL DEFAULT 0,
		created_at          TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deeplinks_video ON video_deeplinks (video_id);

	CREATE TABLE IF NOT EXISTS tags (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_name ON tags (LOWER(name));

	CREATE TABLE IF NOT EXISTS memory_tags (
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		tag_id    TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (memory_id, tag_id)
	);
	`,
}

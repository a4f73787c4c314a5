package db

// schema holds the CREATE TABLE statements for every table the crawler
// persists. This is not an ORM - statements are plain SQL, executed once
// at Open time inside a single transaction; direct, explicit persistence
// code rather than framework-driven schema management.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		canonical_url TEXT,
		host TEXT NOT NULL,
		created_at TEXT NOT NULL,
		last_seen_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_urls_host ON urls(host)`,

	`CREATE TABLE IF NOT EXISTS domains (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host TEXT NOT NULL UNIQUE,
		tld TEXT,
		created_at TEXT NOT NULL,
		last_seen_at TEXT NOT NULL,
		analysis_json TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS links (
		src_url_id INTEGER NOT NULL REFERENCES urls(id),
		dst_url_id INTEGER NOT NULL REFERENCES urls(id),
		anchor TEXT,
		rel TEXT,
		type TEXT,
		depth INTEGER NOT NULL,
		on_domain INTEGER NOT NULL,
		discovered_at TEXT NOT NULL,
		PRIMARY KEY (src_url_id, dst_url_id)
	)`,

	`CREATE TABLE IF NOT EXISTS crawl_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		declaration TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS crawl_jobs (
		id TEXT PRIMARY KEY,
		url_id INTEGER NOT NULL REFERENCES urls(id),
		args TEXT NOT NULL,
		pid INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		status TEXT NOT NULL,
		crawl_type_id INTEGER REFERENCES crawl_types(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crawl_jobs_status ON crawl_jobs(status)`,

	`CREATE TABLE IF NOT EXISTS queue_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES crawl_jobs(id),
		ts TEXT NOT NULL,
		action TEXT NOT NULL,
		url_id INTEGER NOT NULL REFERENCES urls(id),
		depth INTEGER NOT NULL,
		host TEXT NOT NULL,
		reason TEXT,
		queue_size INTEGER NOT NULL,
		origin TEXT,
		role TEXT,
		depth_bucket TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_events_job_ts ON queue_events(job_id, ts, id)`,

	`CREATE TABLE IF NOT EXISTS crawl_problems (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES crawl_jobs(id),
		ts TEXT NOT NULL,
		kind TEXT NOT NULL,
		scope TEXT NOT NULL,
		target TEXT NOT NULL,
		message TEXT NOT NULL,
		details TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crawl_problems_job ON crawl_problems(job_id, id)`,

	`CREATE TABLE IF NOT EXISTS crawl_milestones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES crawl_jobs(id),
		ts TEXT NOT NULL,
		kind TEXT NOT NULL,
		scope TEXT NOT NULL,
		target TEXT NOT NULL,
		message TEXT NOT NULL,
		details TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crawl_milestones_job ON crawl_milestones(job_id, id)`,

	`CREATE TABLE IF NOT EXISTS planner_stage_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES crawl_jobs(id),
		ts TEXT NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		details TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stage_events_job_seq ON planner_stage_events(job_id, sequence)`,

	`CREATE TABLE IF NOT EXISTS crawl_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES crawl_jobs(id),
		host TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		url TEXT NOT NULL,
		payload TEXT,
		note TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_crawl_tasks_job_status ON crawl_tasks(job_id, status)`,

	`CREATE TABLE IF NOT EXISTS compression_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		algorithm TEXT NOT NULL,
		level INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS compression_buckets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		compression_type_id INTEGER NOT NULL REFERENCES compression_types(id),
		status TEXT NOT NULL,
		total_entries INTEGER NOT NULL DEFAULT 0,
		total_uncompressed_bytes INTEGER NOT NULL DEFAULT 0,
		total_compressed_bytes INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		sealed_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_buckets_type_status ON compression_buckets(compression_type_id, status)`,

	`CREATE TABLE IF NOT EXISTS bucket_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bucket_id INTEGER NOT NULL REFERENCES compression_buckets(id),
		entry_key TEXT NOT NULL,
		uncompressed_size INTEGER NOT NULL,
		compressed_size INTEGER NOT NULL,
		offset INTEGER NOT NULL,
		UNIQUE(bucket_id, entry_key)
	)`,

	`CREATE TABLE IF NOT EXISTS http_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url_id INTEGER NOT NULL REFERENCES urls(id),
		job_id TEXT NOT NULL REFERENCES crawl_jobs(id),
		request_started_at TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		http_status INTEGER NOT NULL,
		content_type TEXT,
		content_encoding TEXT,
		etag TEXT,
		last_modified TEXT,
		redirect_chain TEXT,
		ttfb_ms INTEGER,
		download_ms INTEGER,
		total_ms INTEGER,
		bytes_downloaded INTEGER,
		transfer_kbps REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_http_responses_job_url ON http_responses(job_id, url_id)`,
	`CREATE INDEX IF NOT EXISTS idx_http_responses_host_time ON http_responses(fetched_at)`,

	`CREATE TABLE IF NOT EXISTS content_storage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		storage_type TEXT NOT NULL,
		http_response_id INTEGER NOT NULL REFERENCES http_responses(id),
		compression_type_id INTEGER REFERENCES compression_types(id),
		compression_bucket_id INTEGER REFERENCES compression_buckets(id),
		bucket_entry_key TEXT,
		content_blob BLOB,
		content_sha256 TEXT NOT NULL,
		uncompressed_size INTEGER NOT NULL,
		compressed_size INTEGER,
		compression_ratio REAL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_content_storage_sha ON content_storage(content_sha256)`,

	`CREATE TABLE IF NOT EXISTS content_analysis (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content_id INTEGER NOT NULL REFERENCES content_storage(id),
		analysis_version INTEGER NOT NULL,
		classification TEXT,
		title TEXT,
		date TEXT,
		section TEXT,
		word_count INTEGER,
		language TEXT,
		analysis_json TEXT,
		analyzed_at TEXT NOT NULL,
		UNIQUE(content_id, analysis_version)
	)`,

	`CREATE TABLE IF NOT EXISTS places (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		place_type TEXT,
		country_code TEXT,
		wikidata_qid TEXT UNIQUE,
		osm_type TEXT,
		osm_id TEXT,
		lat REAL,
		lng REAL,
		population INTEGER,
		timezone TEXT,
		canonical_name_id INTEGER,
		status TEXT NOT NULL DEFAULT 'active',
		extra_json TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_places_country_kind ON places(country_code, kind)`,

	`CREATE TABLE IF NOT EXISTS place_names (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		place_id INTEGER NOT NULL REFERENCES places(id),
		name TEXT NOT NULL,
		normalized TEXT NOT NULL,
		lang TEXT,
		script TEXT,
		name_kind TEXT NOT NULL,
		is_preferred INTEGER NOT NULL DEFAULT 0,
		is_official INTEGER NOT NULL DEFAULT 0,
		valid_from TEXT,
		valid_to TEXT,
		source TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_place_names_norm ON place_names(normalized)`,
	`CREATE INDEX IF NOT EXISTS idx_place_names_place ON place_names(place_id)`,

	`CREATE TABLE IF NOT EXISTS place_external_ids (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		place_id INTEGER NOT NULL REFERENCES places(id),
		source TEXT NOT NULL,
		ext_id TEXT NOT NULL,
		UNIQUE(source, ext_id)
	)`,

	`CREATE TABLE IF NOT EXISTS place_hierarchy (
		parent_id INTEGER NOT NULL REFERENCES places(id),
		child_id INTEGER NOT NULL REFERENCES places(id),
		relation TEXT NOT NULL,
		depth INTEGER NOT NULL,
		metadata TEXT,
		UNIQUE(parent_id, child_id, relation)
	)`,

	`CREATE TABLE IF NOT EXISTS place_hubs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		host TEXT NOT NULL,
		url TEXT NOT NULL,
		place_slug TEXT NOT NULL,
		place_kind TEXT,
		title TEXT,
		evidence TEXT,
		status TEXT NOT NULL,
		UNIQUE(host, url)
	)`,

	`CREATE TABLE IF NOT EXISTS place_exclusions (
		trigger_word TEXT NOT NULL,
		exclusion_phrase TEXT NOT NULL,
		exclusion_type TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (trigger_word, exclusion_phrase)
	)`,

	`CREATE TABLE IF NOT EXISTS news_websites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		label TEXT,
		parent_domain TEXT,
		url_pattern TEXT,
		website_type TEXT,
		enabled INTEGER NOT NULL DEFAULT 1
	)`,
}

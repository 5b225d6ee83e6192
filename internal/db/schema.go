package db

// SchemaSQL defines the tracked_job mirror table.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS tracked_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS owner_id ON tracked_job TYPE string;
    DEFINE FIELD IF NOT EXISTS original_filename ON tracked_job TYPE string;
    DEFINE FIELD IF NOT EXISTS file_extension ON tracked_job TYPE string;
    DEFINE FIELD IF NOT EXISTS mime_type ON tracked_job TYPE string;
    DEFINE FIELD IF NOT EXISTS file_size_bytes ON tracked_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS status ON tracked_job TYPE string
        ASSERT $value IN ["uploaded", "queued", "processing", "done", "failed"];
    DEFINE FIELD IF NOT EXISTS retry_count ON tracked_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error_message ON tracked_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS chunk_count ON tracked_job TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS processing_time_ms ON tracked_job TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS progress_percent ON tracked_job TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON tracked_job TYPE datetime;
    DEFINE FIELD IF NOT EXISTS updated_at ON tracked_job TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS completed_at ON tracked_job TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS stale ON tracked_job TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS last_poll_error ON tracked_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON tracked_job FLEXIBLE TYPE option<object>;
    DEFINE FIELD IF NOT EXISTS synced_at ON tracked_job TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS tracked_job_owner ON tracked_job FIELDS owner_id;
    DEFINE INDEX IF NOT EXISTS tracked_job_status ON tracked_job FIELDS status;
`

package journal

const schemaSQL = `
CREATE TABLE IF NOT EXISTS session_log (
  id TEXT PRIMARY KEY,
  session_key TEXT NOT NULL,
  user_id TEXT,
  kind TEXT NOT NULL,
  detail TEXT,
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_log_session_created ON session_log(session_key, created_at);
`

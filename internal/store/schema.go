package store

// schemaSQL creates every table the pipeline relies on. Statements are
// idempotent so workers racing at startup converge on the same schema.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS articles (
    id BIGSERIAL PRIMARY KEY,
    title TEXT NOT NULL,
    content TEXT NOT NULL,
    content_hash VARCHAR(32) UNIQUE NOT NULL,
    url TEXT,
    source_type VARCHAR(10) NOT NULL DEFAULT 'unknown',
    source_url TEXT,
    source_file TEXT,
    page_number INTEGER,
    column_number INTEGER,
    section VARCHAR(100),
    author VARCHAR(200),
    tags JSONB,
    word_count INTEGER NOT NULL DEFAULT 0,
    date_published TIMESTAMP WITH TIME ZONE,
    date_extracted TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    date_created TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    date_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    processing_status VARCHAR(20) NOT NULL DEFAULT 'extracted',
    raw_html TEXT,
    metadata JSONB,
    publication TEXT,
    location_name TEXT,
    location_lat DOUBLE PRECISION,
    location_lon DOUBLE PRECISION,
    event_dates JSONB
);

CREATE TABLE IF NOT EXISTS summaries (
    id BIGSERIAL PRIMARY KEY,
    article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    summary_text TEXT NOT NULL,
    summary_type VARCHAR(20) NOT NULL DEFAULT 'brief',
    model_used VARCHAR(50),
    tokens_used INTEGER,
    generation_time_ms INTEGER,
    date_created TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    UNIQUE(article_id, summary_type)
);

CREATE TABLE IF NOT EXISTS article_events (
    id BIGSERIAL PRIMARY KEY,
    article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    description TEXT,
    start_time TIMESTAMP WITH TIME ZONE,
    end_time TIMESTAMP WITH TIME ZONE,
    location_name TEXT,
    location_meta JSONB,
    date_created TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    date_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS processing_history (
    id BIGSERIAL PRIMARY KEY,
    date_processed DATE NOT NULL,
    source_type VARCHAR(10) NOT NULL,
    source_identifier TEXT NOT NULL,
    articles_found INTEGER NOT NULL DEFAULT 0,
    articles_new INTEGER NOT NULL DEFAULT 0,
    articles_duplicate INTEGER NOT NULL DEFAULT 0,
    processing_time_ms INTEGER,
    status VARCHAR(20) NOT NULL DEFAULT 'success',
    error_message TEXT,
    metadata JSONB,
    date_created TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    UNIQUE(date_processed, source_type, source_identifier)
);

CREATE TABLE IF NOT EXISTS article_tags (
    article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    tag TEXT NOT NULL,
    PRIMARY KEY (article_id, tag)
);

CREATE TABLE IF NOT EXISTS entities (
    id BIGSERIAL PRIMARY KEY,
    name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS article_entities (
    article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    entity_id BIGINT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
    PRIMARY KEY (article_id, entity_id)
);

CREATE TABLE IF NOT EXISTS topics (
    id BIGSERIAL PRIMARY KEY,
    label TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS article_topics (
    article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
    topic_id BIGINT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    score REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (article_id, topic_id)
);

CREATE TABLE IF NOT EXISTS daily_metrics (
    id BIGSERIAL PRIMARY KEY,
    metric_date DATE NOT NULL,
    kind VARCHAR(20) NOT NULL,
    key TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    sum_score REAL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    UNIQUE(metric_date, kind, key)
);

CREATE TABLE IF NOT EXISTS trending_items (
    id BIGSERIAL PRIMARY KEY,
    metric_date DATE NOT NULL,
    kind VARCHAR(20) NOT NULL,
    key TEXT NOT NULL,
    score REAL NOT NULL DEFAULT 0,
    zscore REAL NOT NULL DEFAULT 0,
    delta REAL NOT NULL DEFAULT 0,
    win_size INTEGER NOT NULL DEFAULT 7,
    details JSONB,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    UNIQUE(metric_date, kind, key)
);

CREATE TABLE IF NOT EXISTS trend_forecasts (
    id BIGSERIAL PRIMARY KEY,
    date_generated DATE NOT NULL,
    kind VARCHAR(20) NOT NULL,
    key TEXT NOT NULL,
    horizon_days INTEGER NOT NULL,
    forecast JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    UNIQUE(date_generated, kind, key, horizon_days)
);

CREATE TABLE IF NOT EXISTS oauth_tokens (
    id BIGSERIAL PRIMARY KEY,
    provider TEXT NOT NULL,
    account TEXT NOT NULL,
    access_token TEXT NOT NULL,
    refresh_token TEXT,
    scope TEXT,
    expires_at TIMESTAMP WITH TIME ZONE,
    date_updated TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    UNIQUE(provider, account)
);

CREATE INDEX IF NOT EXISTS idx_articles_content_hash ON articles(content_hash);
CREATE INDEX IF NOT EXISTS idx_articles_date_published ON articles(date_published);
CREATE INDEX IF NOT EXISTS idx_articles_date_extracted ON articles(date_extracted);
CREATE INDEX IF NOT EXISTS idx_articles_source_type ON articles(source_type);
CREATE INDEX IF NOT EXISTS idx_articles_processing_status ON articles(processing_status);
CREATE INDEX IF NOT EXISTS idx_articles_section ON articles(section);
CREATE INDEX IF NOT EXISTS idx_summaries_article_id ON summaries(article_id);
CREATE INDEX IF NOT EXISTS idx_article_events_article_id ON article_events(article_id);
CREATE INDEX IF NOT EXISTS idx_article_events_start_time ON article_events(start_time);
CREATE INDEX IF NOT EXISTS idx_processing_history_date ON processing_history(date_processed);
CREATE INDEX IF NOT EXISTS idx_processing_history_source ON processing_history(source_type, source_identifier);
CREATE INDEX IF NOT EXISTS idx_daily_metrics_date ON daily_metrics(metric_date, kind);
CREATE INDEX IF NOT EXISTS idx_articles_fts ON articles USING gin(to_tsvector('english', title || ' ' || content));

CREATE OR REPLACE FUNCTION update_date_updated()
RETURNS TRIGGER AS $$
BEGIN
    NEW.date_updated = NOW();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trigger_articles_update_date ON articles;
CREATE TRIGGER trigger_articles_update_date
    BEFORE UPDATE ON articles
    FOR EACH ROW
    EXECUTE FUNCTION update_date_updated();
`

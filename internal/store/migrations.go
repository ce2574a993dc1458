package store

// postgresMigration is the idempotent schema for the campaign engine.
// customers is reference data synced from the CRM; the engine only reads
// it for deduplication.
const postgresMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id                 UUID PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	name               TEXT NOT NULL,
	type               TEXT NOT NULL,
	created_by         TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'draft',
	criteria           JSONB NOT NULL DEFAULT '{}',
	job_ref            TEXT,
	queued_at          TIMESTAMPTZ,
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ,
	targets_found      INT NOT NULL DEFAULT 0,
	leads_created      INT NOT NULL DEFAULT 0,
	duplicates_skipped INT NOT NULL DEFAULT 0,
	errors_count       INT NOT NULL DEFAULT 0,
	warnings           TEXT[] NOT NULL DEFAULT '{}',
	failure_reason     TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS campaign_transitions (
	id          BIGSERIAL PRIMARY KEY,
	campaign_id UUID NOT NULL REFERENCES campaigns(id),
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	cause       TEXT NOT NULL DEFAULT '',
	at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS campaign_jobs (
	ref         UUID PRIMARY KEY,
	campaign_id UUID NOT NULL,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	attempts    INT NOT NULL DEFAULT 0,
	enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	leased_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS campaign_claims (
	campaign_id UUID PRIMARY KEY,
	owner       TEXT NOT NULL,
	claimed_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS targets (
	id                  UUID PRIMARY KEY,
	campaign_id         UUID NOT NULL REFERENCES campaigns(id),
	tenant_id           TEXT NOT NULL,
	provider            TEXT NOT NULL,
	name                TEXT NOT NULL,
	address             TEXT NOT NULL DEFAULT '',
	postcode            TEXT NOT NULL DEFAULT '',
	registration_number TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	rating              DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count        INT NOT NULL DEFAULT 0,
	raw_payload         JSONB,
	disposition         TEXT NOT NULL DEFAULT 'pending',
	matched_entity_id   TEXT,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id                     UUID PRIMARY KEY,
	tenant_id              TEXT NOT NULL,
	campaign_id            UUID NOT NULL,
	name                   TEXT NOT NULL,
	normalized_name        TEXT NOT NULL,
	registration_number    TEXT NOT NULL DEFAULT '',
	address                TEXT NOT NULL DEFAULT '',
	postcode               TEXT NOT NULL DEFAULT '',
	postcode_outward       TEXT NOT NULL DEFAULT '',
	website                TEXT NOT NULL DEFAULT '',
	phone                  TEXT NOT NULL DEFAULT '',
	rating                 DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count           INT NOT NULL DEFAULT 0,
	status                 TEXT NOT NULL DEFAULT 'discovery',
	conversion_probability DOUBLE PRECISION,
	provenance             JSONB,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS customers (
	id                  TEXT PRIMARY KEY,
	tenant_id           TEXT NOT NULL,
	name                TEXT NOT NULL,
	normalized_name     TEXT NOT NULL,
	registration_number TEXT NOT NULL DEFAULT '',
	postcode_outward    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns(tenant_id);
CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status);
CREATE INDEX IF NOT EXISTS idx_transitions_campaign ON campaign_transitions(campaign_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON campaign_jobs(status, enqueued_at);
CREATE INDEX IF NOT EXISTS idx_targets_campaign ON targets(campaign_id);
CREATE INDEX IF NOT EXISTS idx_leads_tenant_reg ON leads(tenant_id, registration_number);
CREATE INDEX IF NOT EXISTS idx_leads_tenant_name ON leads(tenant_id, normalized_name, postcode_outward);
CREATE INDEX IF NOT EXISTS idx_customers_tenant_reg ON customers(tenant_id, registration_number);
CREATE INDEX IF NOT EXISTS idx_customers_tenant_name ON customers(tenant_id, normalized_name, postcode_outward);
`

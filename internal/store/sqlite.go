package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/campaign-engine/internal/dedup"
	"github.com/sells-group/campaign-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for development
// and single-process deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			_ = sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// Serialized access keeps the single writer happy under the worker
	// pool.
	sqlDB.SetMaxOpenConns(1)
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS campaigns (
	id                 TEXT PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	name               TEXT NOT NULL,
	type               TEXT NOT NULL,
	created_by         TEXT NOT NULL DEFAULT '',
	status             TEXT NOT NULL DEFAULT 'draft',
	criteria           TEXT NOT NULL DEFAULT '{}',
	job_ref            TEXT,
	queued_at          DATETIME,
	started_at         DATETIME,
	completed_at       DATETIME,
	targets_found      INTEGER NOT NULL DEFAULT 0,
	leads_created      INTEGER NOT NULL DEFAULT 0,
	duplicates_skipped INTEGER NOT NULL DEFAULT 0,
	errors_count       INTEGER NOT NULL DEFAULT 0,
	warnings           TEXT NOT NULL DEFAULT '[]',
	failure_reason     TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS campaign_transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	campaign_id TEXT NOT NULL REFERENCES campaigns(id),
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	cause       TEXT NOT NULL DEFAULT '',
	at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS campaign_claims (
	campaign_id TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	claimed_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS targets (
	id                  TEXT PRIMARY KEY,
	campaign_id         TEXT NOT NULL REFERENCES campaigns(id),
	tenant_id           TEXT NOT NULL,
	provider            TEXT NOT NULL,
	name                TEXT NOT NULL,
	address             TEXT NOT NULL DEFAULT '',
	postcode            TEXT NOT NULL DEFAULT '',
	registration_number TEXT NOT NULL DEFAULT '',
	website             TEXT NOT NULL DEFAULT '',
	phone               TEXT NOT NULL DEFAULT '',
	rating              REAL NOT NULL DEFAULT 0,
	review_count        INTEGER NOT NULL DEFAULT 0,
	raw_payload         TEXT,
	disposition         TEXT NOT NULL DEFAULT 'pending',
	matched_entity_id   TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS leads (
	id                     TEXT PRIMARY KEY,
	tenant_id              TEXT NOT NULL,
	campaign_id            TEXT NOT NULL,
	name                   TEXT NOT NULL,
	normalized_name        TEXT NOT NULL,
	registration_number    TEXT NOT NULL DEFAULT '',
	address                TEXT NOT NULL DEFAULT '',
	postcode               TEXT NOT NULL DEFAULT '',
	postcode_outward       TEXT NOT NULL DEFAULT '',
	website                TEXT NOT NULL DEFAULT '',
	phone                  TEXT NOT NULL DEFAULT '',
	rating                 REAL NOT NULL DEFAULT 0,
	review_count           INTEGER NOT NULL DEFAULT 0,
	status                 TEXT NOT NULL DEFAULT 'discovery',
	conversion_probability REAL,
	provenance             TEXT,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now'))
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
CREATE INDEX IF NOT EXISTS idx_transitions_campaign ON campaign_transitions(campaign_id);
CREATE INDEX IF NOT EXISTS idx_targets_campaign ON targets(campaign_id);
CREATE INDEX IF NOT EXISTS idx_leads_tenant_reg ON leads(tenant_id, registration_number);
CREATE INDEX IF NOT EXISTS idx_leads_tenant_name ON leads(tenant_id, normalized_name, postcode_outward);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	if err := c.Criteria.Validate(); err != nil {
		return err
	}

	criteria, err := model.MarshalCriteria(c.Criteria)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, tenant_id, name, type, created_by, status, criteria, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TenantID, c.Name, string(c.Type), c.CreatedBy, string(c.Status), string(criteria), now, now,
	)
	return eris.Wrap(err, "sqlite: create campaign")
}

const sqliteCampaignColumns = `id, tenant_id, name, type, created_by, status, criteria, job_ref,
	queued_at, started_at, completed_at,
	targets_found, leads_created, duplicates_skipped, errors_count,
	warnings, failure_reason, created_at, updated_at`

func (s *SQLiteStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCampaignColumns+` FROM campaigns WHERE id = ?`, id)
	c, err := scanSQLiteCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get campaign")
	}
	return c, nil
}

func (s *SQLiteStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT ` + sqliteCampaignColumns + ` FROM campaigns WHERE 1=1`
	var args []any

	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list campaigns")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Campaign
	for rows.Next() {
		c, err := scanSQLiteCampaign(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan campaign")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list campaigns rows")
}

func (s *SQLiteStore) TransitionCampaign(ctx context.Context, id string, from []model.CampaignStatus, to model.CampaignStatus, cause string) (*model.Campaign, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin transition")
	}
	defer func() { _ = tx.Rollback() }()

	var current model.CampaignStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read status")
	}
	if !slices.Contains(from, current) {
		return nil, eris.Wrapf(ErrInvalidTransition, "campaign %s is %s", id, current)
	}

	now := time.Now().UTC()
	set := `status = ?, updated_at = ?`
	args := []any{string(to), now}
	switch {
	case to == model.StatusQueued:
		set += `, queued_at = ?`
		args = append(args, now)
	case to == model.StatusRunning:
		set += `, started_at = ?`
		args = append(args, now)
	case to.IsTerminal():
		set += `, completed_at = ?`
		args = append(args, now)
	}
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, `UPDATE campaigns SET `+set+` WHERE id = ?`, args...); err != nil {
		return nil, eris.Wrap(err, "sqlite: transition campaign")
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO campaign_transitions (campaign_id, from_status, to_status, cause, at)
		VALUES (?, ?, ?, ?, ?)`,
		id, string(current), string(to), cause, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: log transition")
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit transition")
	}
	return s.GetCampaign(ctx, id)
}

func (s *SQLiteStore) GetStatus(ctx context.Context, id string) (model.CampaignStatus, error) {
	var status model.CampaignStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: get status")
	}
	return status, nil
}

func (s *SQLiteStore) ListTransitions(ctx context.Context, campaignID string) ([]model.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT campaign_id, from_status, to_status, cause, at
		FROM campaign_transitions WHERE campaign_id = ? ORDER BY id`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transitions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Transition
	for rows.Next() {
		var tr model.Transition
		if err := rows.Scan(&tr.CampaignID, &tr.From, &tr.To, &tr.Cause, &tr.At); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transition")
		}
		out = append(out, tr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list transitions rows")
}

func (s *SQLiteStore) SetJobRef(ctx context.Context, id, jobRef string) error {
	return s.execOne(ctx, "sqlite: set job ref",
		`UPDATE campaigns SET job_ref = ?, updated_at = ? WHERE id = ?`,
		jobRef, time.Now().UTC(), id)
}

func (s *SQLiteStore) ResetRunState(ctx context.Context, id string) error {
	return s.execOne(ctx, "sqlite: reset run state", `
		UPDATE campaigns SET
			targets_found = 0, leads_created = 0, duplicates_skipped = 0, errors_count = 0,
			warnings = '[]', failure_reason = '', completed_at = NULL, updated_at = ?
		WHERE id = ?`,
		time.Now().UTC(), id)
}

func (s *SQLiteStore) UpdateCounters(ctx context.Context, id string, delta model.Counters) (model.Counters, error) {
	var total model.Counters
	err := s.db.QueryRowContext(ctx, `
		UPDATE campaigns SET
			targets_found = targets_found + ?,
			leads_created = leads_created + ?,
			duplicates_skipped = duplicates_skipped + ?,
			errors_count = errors_count + ?,
			updated_at = ?
		WHERE id = ?
		RETURNING targets_found, leads_created, duplicates_skipped, errors_count`,
		delta.TargetsFound, delta.LeadsCreated, delta.DuplicatesSkipped, delta.ErrorsCount,
		time.Now().UTC(), id,
	).Scan(&total.TargetsFound, &total.LeadsCreated, &total.DuplicatesSkipped, &total.ErrorsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return total, ErrNotFound
	}
	if err != nil {
		return total, eris.Wrap(err, "sqlite: update counters")
	}
	return total, nil
}

func (s *SQLiteStore) AddWarning(ctx context.Context, id, warning string) error {
	encoded, err := json.Marshal(warning)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode warning")
	}
	return s.execOne(ctx, "sqlite: add warning", `
		UPDATE campaigns SET warnings = json_insert(warnings, '$[#]', json(?)), updated_at = ?
		WHERE id = ?`,
		string(encoded), time.Now().UTC(), id)
}

func (s *SQLiteStore) SetFailureReason(ctx context.Context, id, reason string) error {
	return s.execOne(ctx, "sqlite: set failure reason",
		`UPDATE campaigns SET failure_reason = ?, updated_at = ? WHERE id = ?`,
		reason, time.Now().UTC(), id)
}

func (s *SQLiteStore) InsertTargets(ctx context.Context, targets []model.Target) (int64, error) {
	if len(targets) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert targets")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for i := range targets {
		t := &targets[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Disposition == "" {
			t.Disposition = model.TargetPending
		}
		t.CreatedAt = now

		_, err := tx.ExecContext(ctx, `
			INSERT INTO targets (id, campaign_id, tenant_id, provider, name, address, postcode,
				registration_number, website, phone, rating, review_count, raw_payload, disposition, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.CampaignID, t.TenantID, t.Provider, t.Name, t.Address, t.Postcode,
			t.RegistrationNumber, t.Website, t.Phone, t.Rating, t.ReviewCount,
			string(t.RawPayload), string(t.Disposition), now,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert target %s", t.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert targets")
	}
	return int64(len(targets)), nil
}

func (s *SQLiteStore) MarkTargetDisposition(ctx context.Context, targetID string, d model.TargetDisposition, matchedEntityID string) error {
	return s.execOne(ctx, "sqlite: mark target disposition", `
		UPDATE targets SET disposition = ?, matched_entity_id = NULLIF(?, '') WHERE id = ?`,
		string(d), matchedEntityID, targetID)
}

func (s *SQLiteStore) ListTargets(ctx context.Context, campaignID string) ([]model.Target, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, tenant_id, provider, name, address, postcode,
			registration_number, website, phone, rating, review_count,
			raw_payload, disposition, COALESCE(matched_entity_id, ''), created_at
		FROM targets WHERE campaign_id = ? ORDER BY created_at, id`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list targets")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Target
	for rows.Next() {
		var (
			t   model.Target
			raw sql.NullString
		)
		err := rows.Scan(
			&t.ID, &t.CampaignID, &t.TenantID, &t.Provider, &t.Name, &t.Address, &t.Postcode,
			&t.RegistrationNumber, &t.Website, &t.Phone, &t.Rating, &t.ReviewCount,
			&raw, &t.Disposition, &t.MatchedEntityID, &t.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan target")
		}
		if raw.Valid {
			t.RawPayload = []byte(raw.String)
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list targets rows")
}

func (s *SQLiteStore) InsertLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert leads")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for i := range leads {
		lead := &leads[i]
		if lead.ID == "" {
			lead.ID = uuid.NewString()
		}
		if lead.Status == "" {
			lead.Status = model.LeadStatusDiscovery
		}
		lead.CreatedAt = now

		provenance, err := json.Marshal(lead.Provenance)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal provenance")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO leads (id, tenant_id, campaign_id, name, normalized_name, registration_number,
				address, postcode, postcode_outward, website, phone, rating, review_count,
				status, conversion_probability, provenance, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			lead.ID, lead.TenantID, lead.CampaignID, lead.Name,
			dedup.NormalizeName(lead.Name), dedup.NormalizeRegistration(lead.RegistrationNumber),
			lead.Address, lead.Postcode, dedup.OutwardCode(lead.Postcode),
			lead.Website, lead.Phone, lead.Rating, lead.ReviewCount,
			string(lead.Status), lead.ConversionProbability, string(provenance), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert lead %s", lead.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert leads")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, campaignID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, campaign_id, name, registration_number, address, postcode,
			website, phone, rating, review_count, status, conversion_probability,
			provenance, created_at
		FROM leads WHERE campaign_id = ? ORDER BY created_at, id`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Lead
	for rows.Next() {
		var (
			l          model.Lead
			provenance sql.NullString
		)
		err := rows.Scan(
			&l.ID, &l.TenantID, &l.CampaignID, &l.Name, &l.RegistrationNumber, &l.Address, &l.Postcode,
			&l.Website, &l.Phone, &l.Rating, &l.ReviewCount, &l.Status, &l.ConversionProbability,
			&provenance, &l.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		if provenance.Valid && provenance.String != "" && provenance.String != "null" {
			if err := json.Unmarshal([]byte(provenance.String), &l.Provenance); err != nil {
				return nil, eris.Wrap(err, "sqlite: decode provenance")
			}
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list leads rows")
}

func (s *SQLiteStore) FindByRegistration(ctx context.Context, tenantID, registration string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM customers WHERE tenant_id = ? AND registration_number = ?
		UNION ALL
		SELECT id FROM leads WHERE tenant_id = ? AND registration_number = ?
		LIMIT 1`,
		tenantID, registration, tenantID, registration,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: find by registration")
	}
	return id, true, nil
}

func (s *SQLiteStore) FindByNormalizedName(ctx context.Context, tenantID, normalizedName, outwardCode string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM customers WHERE tenant_id = ? AND normalized_name = ? AND postcode_outward = ?
		UNION ALL
		SELECT id FROM leads WHERE tenant_id = ? AND normalized_name = ? AND postcode_outward = ?
		LIMIT 1`,
		tenantID, normalizedName, outwardCode, tenantID, normalizedName, outwardCode,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: find by normalized name")
	}
	return id, true, nil
}

func (s *SQLiteStore) AcquireClaim(ctx context.Context, campaignID, owner string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO campaign_claims (campaign_id, owner, claimed_at)
		VALUES (?, ?, ?)`,
		campaignID, owner, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: acquire claim")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: acquire claim rows")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ReleaseClaim(ctx context.Context, campaignID, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM campaign_claims WHERE campaign_id = ? AND owner = ?`,
		campaignID, owner,
	)
	return eris.Wrap(err, "sqlite: release claim")
}

// execOne runs a statement expected to touch exactly one campaign row.
func (s *SQLiteStore) execOne(ctx context.Context, op, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrap(err, op)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return eris.Wrap(err, op)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCampaign(row sqlScanner) (*model.Campaign, error) {
	var (
		c        model.Campaign
		criteria string
		warnings string
		jobRef   sql.NullString
	)

	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Type, &c.CreatedBy, &c.Status, &criteria, &jobRef,
		&c.QueuedAt, &c.StartedAt, &c.CompletedAt,
		&c.Counters.TargetsFound, &c.Counters.LeadsCreated, &c.Counters.DuplicatesSkipped, &c.Counters.ErrorsCount,
		&warnings, &c.FailureReason, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := model.UnmarshalCriteria([]byte(criteria))
	if err != nil {
		return nil, err
	}
	c.Criteria = parsed
	c.JobRef = jobRef.String

	if warnings != "" && warnings != "[]" {
		if err := json.Unmarshal([]byte(warnings), &c.Warnings); err != nil {
			return nil, fmt.Errorf("sqlite: decode warnings: %w", err)
		}
	}
	return &c, nil
}

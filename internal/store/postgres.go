package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/campaign-engine/internal/db"
	"github.com/sells-group/campaign-engine/internal/dedup"
	"github.com/sells-group/campaign-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot paths of a running campaign.
var preparedStatements = map[string]string{
	"get_status":       `SELECT status FROM campaigns WHERE id = $1`,
	"update_counters":  `UPDATE campaigns SET targets_found = targets_found + $2, leads_created = leads_created + $3, duplicates_skipped = duplicates_skipped + $4, errors_count = errors_count + $5, updated_at = now() WHERE id = $1 RETURNING targets_found, leads_created, duplicates_skipped, errors_count`,
	"mark_disposition": `UPDATE targets SET disposition = $2, matched_entity_id = NULLIF($3, '') WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; tests inject pgxmock here.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool exposes the underlying connection pool so components like the job
// queue can share it.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const campaignColumns = `id, tenant_id, name, type, created_by, status, criteria, job_ref,
	queued_at, started_at, completed_at,
	targets_found, leads_created, duplicates_skipped, errors_count,
	warnings, failure_reason, created_at, updated_at`

func (s *PostgresStore) CreateCampaign(ctx context.Context, c *model.Campaign) error {
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

	row := s.pool.QueryRow(ctx, `
		INSERT INTO campaigns (id, tenant_id, name, type, created_by, status, criteria)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		c.ID, c.TenantID, c.Name, c.Type, c.CreatedBy, c.Status, criteria,
	)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		return eris.Wrap(err, "postgres: create campaign")
	}
	return nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get campaign")
	}
	return c, nil
}

func (s *PostgresStore) ListCampaigns(ctx context.Context, filter CampaignFilter) ([]model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.TenantID != "" {
		add(` AND tenant_id = $%d`, filter.TenantID)
	}
	if filter.Status != "" {
		add(` AND status = $%d`, filter.Status)
	}
	if filter.Type != "" {
		add(` AND type = $%d`, filter.Type)
	}

	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		add(` LIMIT $%d`, filter.Limit)
	}
	if filter.Offset > 0 {
		add(` OFFSET $%d`, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list campaigns")
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign")
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list campaigns rows")
}

func (s *PostgresStore) TransitionCampaign(ctx context.Context, id string, from []model.CampaignStatus, to model.CampaignStatus, cause string) (*model.Campaign, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin transition")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	// Conditional CAS: the row moves only if its current status is in
	// the allowed set. RETURNING gives us the pre-image status for the
	// transition log via the OLD-status subquery below.
	row := tx.QueryRow(ctx, `
		WITH prev AS (
			SELECT status FROM campaigns WHERE id = $1 FOR UPDATE
		)
		UPDATE campaigns SET
			status = $2,
			updated_at = now(),
			queued_at = CASE WHEN $2::text = 'queued' THEN now() ELSE queued_at END,
			started_at = CASE WHEN $2::text = 'running' THEN now() ELSE started_at END,
			completed_at = CASE WHEN $2::text IN ('completed', 'failed', 'cancelled') THEN now() ELSE completed_at END
		FROM prev
		WHERE campaigns.id = $1 AND campaigns.status = ANY($3)
		RETURNING prev.status, `+qualify(campaignColumns, "campaigns"),
		id, to, fromStrs,
	)

	var prevStatus model.CampaignStatus
	c, err := scanCampaignWith(row, &prevStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionConflict(ctx, id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: transition campaign")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO campaign_transitions (campaign_id, from_status, to_status, cause, at)
		VALUES ($1, $2, $3, $4, now())`,
		id, prevStatus, to, cause,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: log transition")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit transition")
	}
	return c, nil
}

// transitionConflict distinguishes a missing campaign from one in the
// wrong state.
func (s *PostgresStore) transitionConflict(ctx context.Context, id string) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM campaigns WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return eris.Wrap(err, "postgres: transition conflict check")
	}
	return eris.Wrapf(ErrInvalidTransition, "campaign %s is %s", id, status)
}

func (s *PostgresStore) GetStatus(ctx context.Context, id string) (model.CampaignStatus, error) {
	var status model.CampaignStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM campaigns WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: get status")
	}
	return status, nil
}

func (s *PostgresStore) ListTransitions(ctx context.Context, campaignID string) ([]model.Transition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT campaign_id, from_status, to_status, cause, at
		FROM campaign_transitions
		WHERE campaign_id = $1
		ORDER BY at`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transitions")
	}
	defer rows.Close()

	var out []model.Transition
	for rows.Next() {
		var tr model.Transition
		if err := rows.Scan(&tr.CampaignID, &tr.From, &tr.To, &tr.Cause, &tr.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transition")
		}
		out = append(out, tr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list transitions rows")
}

func (s *PostgresStore) SetJobRef(ctx context.Context, id, jobRef string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE campaigns SET job_ref = $2, updated_at = now() WHERE id = $1`, id, jobRef)
	if err != nil {
		return eris.Wrap(err, "postgres: set job ref")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResetRunState(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET
			targets_found = 0, leads_created = 0, duplicates_skipped = 0, errors_count = 0,
			warnings = '{}', failure_reason = '', completed_at = NULL, updated_at = now()
		WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: reset run state")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateCounters(ctx context.Context, id string, delta model.Counters) (model.Counters, error) {
	var total model.Counters
	err := s.pool.QueryRow(ctx, `
		UPDATE campaigns SET
			targets_found = targets_found + $2,
			leads_created = leads_created + $3,
			duplicates_skipped = duplicates_skipped + $4,
			errors_count = errors_count + $5,
			updated_at = now()
		WHERE id = $1
		RETURNING targets_found, leads_created, duplicates_skipped, errors_count`,
		id, delta.TargetsFound, delta.LeadsCreated, delta.DuplicatesSkipped, delta.ErrorsCount,
	).Scan(&total.TargetsFound, &total.LeadsCreated, &total.DuplicatesSkipped, &total.ErrorsCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return total, ErrNotFound
	}
	if err != nil {
		return total, eris.Wrap(err, "postgres: update counters")
	}
	return total, nil
}

func (s *PostgresStore) AddWarning(ctx context.Context, id, warning string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET warnings = array_append(warnings, $2), updated_at = now()
		WHERE id = $1`,
		id, warning,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: add warning")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetFailureReason(ctx context.Context, id, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE campaigns SET failure_reason = $2, updated_at = now() WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: set failure reason")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var targetColumns = []string{
	"id", "campaign_id", "tenant_id", "provider",
	"name", "address", "postcode", "registration_number", "website", "phone",
	"rating", "review_count", "raw_payload", "disposition", "created_at",
}

func (s *PostgresStore) InsertTargets(ctx context.Context, targets []model.Target) (int64, error) {
	if len(targets) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, len(targets))
	for i := range targets {
		t := &targets[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Disposition == "" {
			t.Disposition = model.TargetPending
		}
		t.CreatedAt = now
		rows[i] = []any{
			t.ID, t.CampaignID, t.TenantID, t.Provider,
			t.Name, t.Address, t.Postcode, t.RegistrationNumber, t.Website, t.Phone,
			t.Rating, t.ReviewCount, t.RawPayload, t.Disposition, t.CreatedAt,
		}
	}

	n, err := db.CopyFrom(ctx, s.pool, "targets", targetColumns, rows)
	return n, eris.Wrap(err, "postgres: insert targets")
}

func (s *PostgresStore) MarkTargetDisposition(ctx context.Context, targetID string, d model.TargetDisposition, matchedEntityID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE targets SET disposition = $2, matched_entity_id = NULLIF($3, '') WHERE id = $1`,
		targetID, d, matchedEntityID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: mark target disposition")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: target %s not found", targetID)
	}
	return nil
}

func (s *PostgresStore) ListTargets(ctx context.Context, campaignID string) ([]model.Target, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, campaign_id, tenant_id, provider,
			name, address, postcode, registration_number, website, phone,
			rating, review_count, raw_payload, disposition, COALESCE(matched_entity_id, ''), created_at
		FROM targets WHERE campaign_id = $1 ORDER BY created_at, id`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list targets")
	}
	defer rows.Close()

	var out []model.Target
	for rows.Next() {
		var t model.Target
		err := rows.Scan(
			&t.ID, &t.CampaignID, &t.TenantID, &t.Provider,
			&t.Name, &t.Address, &t.Postcode, &t.RegistrationNumber, &t.Website, &t.Phone,
			&t.Rating, &t.ReviewCount, &t.RawPayload, &t.Disposition, &t.MatchedEntityID, &t.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan target")
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list targets rows")
}

func (s *PostgresStore) InsertLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin insert leads")
	}
	defer func() { _ = tx.Rollback(ctx) }()

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
			return eris.Wrap(err, "postgres: marshal provenance")
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO leads (id, tenant_id, campaign_id, name, normalized_name, registration_number,
				address, postcode, postcode_outward, website, phone, rating, review_count,
				status, conversion_probability, provenance, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			lead.ID, lead.TenantID, lead.CampaignID, lead.Name,
			dedup.NormalizeName(lead.Name), dedup.NormalizeRegistration(lead.RegistrationNumber),
			lead.Address, lead.Postcode, dedup.OutwardCode(lead.Postcode),
			lead.Website, lead.Phone, lead.Rating, lead.ReviewCount,
			lead.Status, lead.ConversionProbability, provenance, lead.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert lead %s", lead.Name)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit insert leads")
}

func (s *PostgresStore) ListLeads(ctx context.Context, campaignID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, campaign_id, name, registration_number, address, postcode,
			website, phone, rating, review_count, status, conversion_probability,
			provenance, created_at
		FROM leads WHERE campaign_id = $1 ORDER BY created_at, id`,
		campaignID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var out []model.Lead
	for rows.Next() {
		var (
			l          model.Lead
			provenance []byte
		)
		err := rows.Scan(
			&l.ID, &l.TenantID, &l.CampaignID, &l.Name, &l.RegistrationNumber, &l.Address, &l.Postcode,
			&l.Website, &l.Phone, &l.Rating, &l.ReviewCount, &l.Status, &l.ConversionProbability,
			&provenance, &l.CreatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		if len(provenance) > 0 && string(provenance) != "null" {
			if err := json.Unmarshal(provenance, &l.Provenance); err != nil {
				return nil, eris.Wrap(err, "postgres: decode provenance")
			}
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list leads rows")
}

func (s *PostgresStore) FindByRegistration(ctx context.Context, tenantID, registration string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM customers WHERE tenant_id = $1 AND registration_number = $2
		UNION ALL
		SELECT id FROM leads WHERE tenant_id = $1 AND registration_number = $2
		LIMIT 1`,
		tenantID, registration,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "postgres: find by registration")
	}
	return id, true, nil
}

func (s *PostgresStore) FindByNormalizedName(ctx context.Context, tenantID, normalizedName, outwardCode string) (string, bool, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		SELECT id FROM customers WHERE tenant_id = $1 AND normalized_name = $2 AND postcode_outward = $3
		UNION ALL
		SELECT id FROM leads WHERE tenant_id = $1 AND normalized_name = $2 AND postcode_outward = $3
		LIMIT 1`,
		tenantID, normalizedName, outwardCode,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "postgres: find by normalized name")
	}
	return id, true, nil
}

func (s *PostgresStore) AcquireClaim(ctx context.Context, campaignID, owner string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO campaign_claims (campaign_id, owner, claimed_at)
		VALUES ($1, $2, now())
		ON CONFLICT (campaign_id) DO NOTHING`,
		campaignID, owner,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: acquire claim")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ReleaseClaim(ctx context.Context, campaignID, owner string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM campaign_claims WHERE campaign_id = $1 AND owner = $2`,
		campaignID, owner,
	)
	return eris.Wrap(err, "postgres: release claim")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// scanner covers both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row scanner) (*model.Campaign, error) {
	return scanCampaignInto(row, nil)
}

// scanCampaignWith also scans a leading previous-status column, used by
// the transition CAS.
func scanCampaignWith(row scanner, prevStatus *model.CampaignStatus) (*model.Campaign, error) {
	return scanCampaignInto(row, prevStatus)
}

func scanCampaignInto(row scanner, prevStatus *model.CampaignStatus) (*model.Campaign, error) {
	var (
		c        model.Campaign
		criteria []byte
		jobRef   *string
		failure  *string
	)

	dest := []any{}
	if prevStatus != nil {
		dest = append(dest, prevStatus)
	}
	dest = append(dest,
		&c.ID, &c.TenantID, &c.Name, &c.Type, &c.CreatedBy, &c.Status, &criteria, &jobRef,
		&c.QueuedAt, &c.StartedAt, &c.CompletedAt,
		&c.Counters.TargetsFound, &c.Counters.LeadsCreated, &c.Counters.DuplicatesSkipped, &c.Counters.ErrorsCount,
		&c.Warnings, &failure, &c.CreatedAt, &c.UpdatedAt,
	)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	parsed, err := model.UnmarshalCriteria(criteria)
	if err != nil {
		return nil, err
	}
	c.Criteria = parsed
	if jobRef != nil {
		c.JobRef = *jobRef
	}
	if failure != nil {
		c.FailureReason = *failure
	}
	return &c, nil
}

// qualify prefixes each column in a comma-separated list with a table
// alias.
func qualify(columns, table string) string {
	out := ""
	for i, col := range splitColumns(columns) {
		if i > 0 {
			out += ", "
		}
		out += table + "." + col
	}
	return out
}

func splitColumns(columns string) []string {
	var out []string
	field := ""
	for _, r := range columns {
		switch r {
		case ',':
			out = append(out, field)
			field = ""
		case ' ', '\n', '\t':
		default:
			field += string(r)
		}
	}
	if field != "" {
		out = append(out, field)
	}
	return out
}


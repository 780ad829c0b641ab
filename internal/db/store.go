package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/recovery-match/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type ListParams struct {
	Query      string
	Status     string // "open" (default), "closed", "archived" or "all"
	FunderType []string
	MinAmount  float64
	MaxAmount  float64
	Limit      int
	Offset     int
}

type ListResult struct {
	Opportunities []models.FundingOpportunity `json:"opportunities"`
	Total         int                         `json:"total"`
	Limit         int                         `json:"limit"`
	Offset        int                         `json:"offset"`
}

const opportunityCols = `id, title, summary, description, external_url, agency_name, funder_type,
	COALESCE(amount_min, 0), COALESCE(amount_max, 0), currency, deadline_at, is_rolling, status, criteria,
	created_at, updated_at`

func scanOpportunity(scan func(dest ...any) error) (models.FundingOpportunity, error) {
	var o models.FundingOpportunity
	var criteriaRaw []byte

	err := scan(
		&o.ID, &o.Title, &o.Summary, &o.Description, &o.ExternalURL, &o.AgencyName, &o.FunderType,
		&o.AmountMin, &o.AmountMax, &o.Currency, &o.DeadlineAt, &o.IsRolling, &o.Status, &criteriaRaw,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Criteria = []models.Criterion{}
	if len(criteriaRaw) > 0 {
		if err := json.Unmarshal(criteriaRaw, &o.Criteria); err != nil {
			return o, fmt.Errorf("decode criteria for %s: %w", o.ID, err)
		}
	}
	return o, nil
}

func buildListWhere(params ListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	if q := strings.TrimSpace(params.Query); q != "" {
		where += fmt.Sprintf(" AND (title ILIKE '%%' || $%d || '%%' OR agency_name ILIKE '%%' || $%d || '%%')", argIdx, argIdx)
		args = append(args, q)
		argIdx++
	}

	switch status := strings.ToLower(strings.TrimSpace(params.Status)); status {
	case "all":
	case "":
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, models.OpportunityOpen)
		argIdx++
	default:
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	if ft := sanitizeStringSlice(params.FunderType); len(ft) > 0 {
		where += fmt.Sprintf(" AND funder_type = ANY($%d)", argIdx)
		args = append(args, ft)
		argIdx++
	}
	if params.MinAmount > 0 {
		where += fmt.Sprintf(" AND amount_max >= $%d", argIdx)
		args = append(args, params.MinAmount)
		argIdx++
	}
	if params.MaxAmount > 0 {
		where += fmt.Sprintf(" AND amount_min <= $%d", argIdx)
		args = append(args, params.MaxAmount)
	}

	return where, args
}

func (s *Store) ListOpportunities(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 50
	}
	if params.Offset < 0 {
		params.Offset = 0
	}

	where, args := buildListWhere(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM funding_opportunities "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	n := len(args)
	selectSQL := fmt.Sprintf(`SELECT %s FROM funding_opportunities %s
		ORDER BY deadline_at ASC NULLS LAST, created_at DESC
		LIMIT $%d OFFSET $%d`, opportunityCols, where, n+1, n+2)
	args = append(args, params.Limit, params.Offset)

	opps, err := s.queryOpportunities(ctx, selectSQL, args...)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Opportunities: opps,
		Total:         total,
		Limit:         params.Limit,
		Offset:        params.Offset,
	}, nil
}

// OpenOpportunities returns every open opportunity, unpaginated.
func (s *Store) OpenOpportunities(ctx context.Context) ([]models.FundingOpportunity, error) {
	return s.queryOpportunities(ctx,
		fmt.Sprintf("SELECT %s FROM funding_opportunities WHERE status = $1 ORDER BY created_at", opportunityCols),
		models.OpportunityOpen)
}

func (s *Store) queryOpportunities(ctx context.Context, sql string, args ...any) ([]models.FundingOpportunity, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	opps := []models.FundingOpportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return opps, nil
}

func (s *Store) GetOpportunity(ctx context.Context, id uuid.UUID) (models.FundingOpportunity, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM funding_opportunities WHERE id = $1", opportunityCols), id)
	o, err := scanOpportunity(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return o, fmt.Errorf("get opportunity: %w", err)
	}
	return o, nil
}

func (s *Store) CreateOpportunity(ctx context.Context, o *models.FundingOpportunity) error {
	criteria, err := json.Marshal(nonNilCriteria(o.Criteria))
	if err != nil {
		return err
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO funding_opportunities (title, summary, description, external_url, agency_name, funder_type,
			amount_min, amount_max, currency, deadline_at, is_rolling, status, criteria)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`, o.Title, o.Summary, o.Description, o.ExternalURL, o.AgencyName, o.FunderType,
		o.AmountMin, o.AmountMax, o.Currency, o.DeadlineAt, o.IsRolling, o.Status, criteria,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

// UpsertOpportunity inserts or refreshes an opportunity keyed by title and
// agency. It reports whether a new row was created.
func (s *Store) UpsertOpportunity(ctx context.Context, o *models.FundingOpportunity) (bool, error) {
	criteria, err := json.Marshal(nonNilCriteria(o.Criteria))
	if err != nil {
		return false, err
	}

	var inserted bool
	err = s.pool.QueryRow(ctx, `
		INSERT INTO funding_opportunities (title, summary, description, external_url, agency_name, funder_type,
			amount_min, amount_max, currency, deadline_at, is_rolling, status, criteria)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (title, agency_name) DO UPDATE SET
			summary = EXCLUDED.summary,
			description = EXCLUDED.description,
			external_url = EXCLUDED.external_url,
			funder_type = EXCLUDED.funder_type,
			amount_min = EXCLUDED.amount_min,
			amount_max = EXCLUDED.amount_max,
			currency = EXCLUDED.currency,
			deadline_at = EXCLUDED.deadline_at,
			is_rolling = EXCLUDED.is_rolling,
			status = EXCLUDED.status,
			criteria = EXCLUDED.criteria,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)
	`, o.Title, o.Summary, o.Description, o.ExternalURL, o.AgencyName, o.FunderType,
		o.AmountMin, o.AmountMax, o.Currency, o.DeadlineAt, o.IsRolling, o.Status, criteria,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert opportunity %q: %w", o.Title, err)
	}
	return inserted, nil
}

// UpdateCriteria replaces the criteria of an opportunity.
func (s *Store) UpdateCriteria(ctx context.Context, id uuid.UUID, criteria []models.Criterion) (models.FundingOpportunity, error) {
	raw, err := json.Marshal(nonNilCriteria(criteria))
	if err != nil {
		return models.FundingOpportunity{}, err
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE funding_opportunities SET criteria = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, opportunityCols), id, raw)
	o, err := scanOpportunity(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, fmt.Errorf("opportunity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return o, fmt.Errorf("update criteria: %w", err)
	}
	return o, nil
}

func nonNilCriteria(c []models.Criterion) []models.Criterion {
	if c == nil {
		return []models.Criterion{}
	}
	return c
}

// Profiles

func (s *Store) GetProfile(ctx context.Context, survivorID uuid.UUID) (models.ApplicantProfile, error) {
	var p models.ApplicantProfile
	var customRaw []byte
	err := s.pool.QueryRow(ctx, `
		SELECT survivor_id, zip_code, annual_income, household_size, disaster_events, custom, updated_at
		FROM survivor_profiles WHERE survivor_id = $1
	`, survivorID).Scan(&p.SurvivorID, &p.ZipCode, &p.AnnualIncome, &p.HouseholdSize, &p.DisasterEvents, &customRaw, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, fmt.Errorf("profile %s: %w", survivorID, ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("get profile: %w", err)
	}
	if p.Custom, err = decodeCustom(customRaw); err != nil {
		return p, fmt.Errorf("decode custom for %s: %w", survivorID, err)
	}
	return p, nil
}

func decodeCustom(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var custom map[string]string
	if err := json.Unmarshal(raw, &custom); err != nil {
		return nil, err
	}
	return custom, nil
}

// PutProfile creates or replaces a survivor profile. A zero SurvivorID gets
// a fresh id.
func (s *Store) PutProfile(ctx context.Context, p models.ApplicantProfile) (models.ApplicantProfile, error) {
	if p.SurvivorID == uuid.Nil {
		p.SurvivorID = uuid.New()
	}
	if p.Custom == nil {
		p.Custom = map[string]string{}
	}
	if p.DisasterEvents == nil {
		p.DisasterEvents = []string{}
	}
	custom, err := json.Marshal(p.Custom)
	if err != nil {
		return p, err
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO survivor_profiles (survivor_id, zip_code, annual_income, household_size, disaster_events, custom, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (survivor_id) DO UPDATE SET
			zip_code = EXCLUDED.zip_code,
			annual_income = EXCLUDED.annual_income,
			household_size = EXCLUDED.household_size,
			disaster_events = EXCLUDED.disaster_events,
			custom = EXCLUDED.custom,
			updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`, p.SurvivorID, strings.TrimSpace(p.ZipCode), p.AnnualIncome, p.HouseholdSize, p.DisasterEvents, custom, time.Now().UTC()).Scan(&p.UpdatedAt)
	if err != nil {
		return p, fmt.Errorf("put profile: %w", err)
	}
	return p, nil
}

func sanitizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return values
	}

	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			clean = append(clean, trimmed)
		}
	}

	return clean
}

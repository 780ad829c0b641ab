package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/david/recovery-match/internal/models"
)

const matchCols = `id, opportunity_id, survivor_id, match_score, criteria_details, status, notes,
	award_amount, applied_at, applied_by_id, awarded_at, awarded_by_id, funded_at, funded_by_id,
	archived_from, status_history, created_at, updated_at`

func scanMatch(scan func(dest ...any) error) (models.OpportunityMatch, error) {
	var m models.OpportunityMatch
	var status, archivedFrom string
	var detailsRaw, historyRaw []byte

	err := scan(
		&m.ID, &m.OpportunityID, &m.SurvivorID, &m.Score, &detailsRaw, &status, &m.Notes,
		&m.AwardAmount, &m.AppliedAt, &m.AppliedByID, &m.AwardedAt, &m.AwardedByID, &m.FundedAt, &m.FundedByID,
		&archivedFrom, &historyRaw, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, err
	}

	m.Status = readStatus(status)
	if archivedFrom != "" {
		m.ArchivedFrom = readStatus(archivedFrom)
	}

	m.Details = []models.CriterionResult{}
	if len(detailsRaw) > 0 {
		if err := json.Unmarshal(detailsRaw, &m.Details); err != nil {
			return m, fmt.Errorf("decode criteria_details for %s: %w", m.ID, err)
		}
	}
	m.History = []models.StatusChange{}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &m.History); err != nil {
			return m, fmt.Errorf("decode status_history for %s: %w", m.ID, err)
		}
	}
	return m, nil
}

// readStatus maps stored values, including the legacy "approved", to a
// status. Unknown values are kept verbatim so the row stays readable; the
// state machine will refuse to move them.
func readStatus(raw string) models.Status {
	if s, err := models.ParseStatus(raw); err == nil {
		return s
	}
	return models.Status(raw)
}

// storedStatuses lists the column values a status may be persisted as.
func storedStatuses(s models.Status) []string {
	if s == models.StatusAwarded {
		return []string{string(models.StatusAwarded), "approved"}
	}
	return []string{string(s)}
}

func (s *Store) GetMatch(ctx context.Context, opportunityID, survivorID uuid.UUID) (models.OpportunityMatch, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM opportunity_matches
		WHERE opportunity_id = $1 AND survivor_id = $2`, matchCols), opportunityID, survivorID)

	m, err := scanMatch(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, fmt.Errorf("match %s/%s: %w", opportunityID, survivorID, ErrNotFound)
	}
	if err != nil {
		return m, fmt.Errorf("get match: %w", err)
	}
	return m, nil
}

// UpsertMatch writes a match conditioned on the status the caller last saw.
// An empty expected status means insert only. ErrConflict is returned when
// the row exists on insert, or its status moved on since it was read.
// Notes are only written on insert; see UpdateMatchNotes.
func (s *Store) UpsertMatch(ctx context.Context, m models.OpportunityMatch, expected models.Status) error {
	details, err := json.Marshal(m.Details)
	if err != nil {
		return err
	}
	history, err := json.Marshal(m.History)
	if err != nil {
		return err
	}
	if m.Details == nil {
		details = []byte("[]")
	}
	if m.History == nil {
		history = []byte("[]")
	}

	if expected == "" {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO opportunity_matches (id, opportunity_id, survivor_id, match_score, criteria_details, status, notes,
				award_amount, applied_at, applied_by_id, awarded_at, awarded_by_id, funded_at, funded_by_id,
				archived_from, status_history, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			ON CONFLICT (opportunity_id, survivor_id) DO NOTHING
		`, m.ID, m.OpportunityID, m.SurvivorID, m.Score, details, string(m.Status), m.Notes,
			m.AwardAmount, m.AppliedAt, m.AppliedByID, m.AwardedAt, m.AwardedByID, m.FundedAt, m.FundedByID,
			string(m.ArchivedFrom), history, m.CreatedAt, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("match %s/%s already exists: %w", m.OpportunityID, m.SurvivorID, ErrConflict)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE opportunity_matches SET
			match_score = $3,
			criteria_details = $4,
			status = $5,
			award_amount = $6,
			applied_at = $7,
			applied_by_id = $8,
			awarded_at = $9,
			awarded_by_id = $10,
			funded_at = $11,
			funded_by_id = $12,
			archived_from = $13,
			status_history = $14,
			updated_at = $15
		WHERE opportunity_id = $1 AND survivor_id = $2 AND status = ANY($16)
	`, m.OpportunityID, m.SurvivorID, m.Score, details, string(m.Status),
		m.AwardAmount, m.AppliedAt, m.AppliedByID, m.AwardedAt, m.AwardedByID, m.FundedAt, m.FundedByID,
		string(m.ArchivedFrom), history, m.UpdatedAt, storedStatuses(expected))
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %s/%s is no longer %s: %w", m.OpportunityID, m.SurvivorID, expected, ErrConflict)
	}
	return nil
}

// UpdateMatchStatus persists a workflow transition. Only status, award,
// actor and history columns are written, so a rescore that landed after the
// caller's read keeps its score and details. The stored row is returned.
func (s *Store) UpdateMatchStatus(ctx context.Context, m models.OpportunityMatch, expected models.Status) (models.OpportunityMatch, error) {
	history := []byte("[]")
	if m.History != nil {
		raw, err := json.Marshal(m.History)
		if err != nil {
			return m, err
		}
		history = raw
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE opportunity_matches SET
			status = $3,
			award_amount = $4,
			applied_at = $5,
			applied_by_id = $6,
			awarded_at = $7,
			awarded_by_id = $8,
			funded_at = $9,
			funded_by_id = $10,
			archived_from = $11,
			status_history = $12,
			updated_at = $13
		WHERE opportunity_id = $1 AND survivor_id = $2 AND status = ANY($14)
		RETURNING %s`, matchCols), m.OpportunityID, m.SurvivorID, string(m.Status),
		m.AwardAmount, m.AppliedAt, m.AppliedByID, m.AwardedAt, m.AwardedByID, m.FundedAt, m.FundedByID,
		string(m.ArchivedFrom), history, m.UpdatedAt, storedStatuses(expected))

	stored, err := scanMatch(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, fmt.Errorf("match %s/%s is no longer %s: %w", m.OpportunityID, m.SurvivorID, expected, ErrConflict)
	}
	if err != nil {
		return m, fmt.Errorf("update match status: %w", err)
	}
	return stored, nil
}

func (s *Store) UpdateMatchNotes(ctx context.Context, opportunityID, survivorID uuid.UUID, notes string) (models.OpportunityMatch, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE opportunity_matches SET notes = $3, updated_at = NOW()
		WHERE opportunity_id = $1 AND survivor_id = $2
		RETURNING %s`, matchCols), opportunityID, survivorID, notes)

	m, err := scanMatch(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, fmt.Errorf("match %s/%s: %w", opportunityID, survivorID, ErrNotFound)
	}
	if err != nil {
		return m, fmt.Errorf("update notes: %w", err)
	}
	return m, nil
}

func (s *Store) ListMatchesByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]models.OpportunityMatch, error) {
	return s.queryMatches(ctx, fmt.Sprintf(`
		SELECT %s FROM opportunity_matches
		WHERE opportunity_id = $1
		ORDER BY match_score DESC, created_at`, matchCols), opportunityID)
}

func (s *Store) ListMatchesBySurvivor(ctx context.Context, survivorID uuid.UUID) ([]models.OpportunityMatch, error) {
	return s.queryMatches(ctx, fmt.Sprintf(`
		SELECT %s FROM opportunity_matches
		WHERE survivor_id = $1
		ORDER BY match_score DESC, created_at`, matchCols), survivorID)
}

func (s *Store) queryMatches(ctx context.Context, sql string, args ...any) ([]models.OpportunityMatch, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	out := []models.OpportunityMatch{}
	for rows.Next() {
		m, err := scanMatch(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return out, nil
}

// MatchStatusCounts counts matches per status, optionally for one
// opportunity. Legacy "approved" rows are counted as awarded.
func (s *Store) MatchStatusCounts(ctx context.Context, opportunityID *uuid.UUID) (map[models.Status]int, error) {
	sql := "SELECT status, COUNT(*) FROM opportunity_matches"
	var args []any
	if opportunityID != nil {
		sql += " WHERE opportunity_id = $1"
		args = append(args, *opportunityID)
	}
	sql += " GROUP BY status"

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()

	counts := map[models.Status]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[readStatus(status)] += n
	}
	return counts, rows.Err()
}

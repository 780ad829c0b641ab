// Package matching ties eligibility scoring and the application workflow to
// storage. It is the only place that writes matches.
package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/db"
	"github.com/david/recovery-match/internal/eligibility"
	"github.com/david/recovery-match/internal/events"
	"github.com/david/recovery-match/internal/models"
	"github.com/david/recovery-match/internal/workflow"
)

// Repository persists matches. UpsertMatch must fail with db.ErrConflict when
// the stored status differs from expected, or when expected is empty and the
// match already exists. UpdateMatchStatus writes workflow fields only, under
// the same status check, and returns the stored row.
type Repository interface {
	GetMatch(ctx context.Context, opportunityID, survivorID uuid.UUID) (models.OpportunityMatch, error)
	UpsertMatch(ctx context.Context, m models.OpportunityMatch, expected models.Status) error
	UpdateMatchStatus(ctx context.Context, m models.OpportunityMatch, expected models.Status) (models.OpportunityMatch, error)
	ListMatchesByOpportunity(ctx context.Context, opportunityID uuid.UUID) ([]models.OpportunityMatch, error)
	ListMatchesBySurvivor(ctx context.Context, survivorID uuid.UUID) ([]models.OpportunityMatch, error)
	UpdateMatchNotes(ctx context.Context, opportunityID, survivorID uuid.UUID, notes string) (models.OpportunityMatch, error)
}

// Catalog reads opportunities and profiles.
type Catalog interface {
	GetOpportunity(ctx context.Context, id uuid.UUID) (models.FundingOpportunity, error)
	OpenOpportunities(ctx context.Context) ([]models.FundingOpportunity, error)
	GetProfile(ctx context.Context, survivorID uuid.UUID) (models.ApplicantProfile, error)
}

type Service struct {
	repo    Repository
	catalog Catalog
	events  events.Publisher
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(repo Repository, catalog Catalog, pub events.Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = events.LogPublisher{Logger: logger}
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		events:  pub,
		logger:  logger.Named("matching"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// storageErr translates repository failures into the workflow taxonomy.
// Not-found errors pass through unchanged.
func storageErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return err
	case errors.Is(err, db.ErrConflict):
		return fmt.Errorf("%w: %v", workflow.ErrConcurrentModification, err)
	default:
		return fmt.Errorf("%w: %v", workflow.ErrStorageUnavailable, err)
	}
}

// EvaluateMatch scores a survivor against an opportunity and stores the
// result. An existing match is rescored instead of replaced.
func (s *Service) EvaluateMatch(ctx context.Context, opp models.FundingOpportunity, profile models.ApplicantProfile) (models.OpportunityMatch, error) {
	existing, err := s.repo.GetMatch(ctx, opp.ID, profile.SurvivorID)
	if err == nil {
		return s.RescoreMatch(ctx, opp, profile, existing)
	}
	if !errors.Is(err, db.ErrNotFound) {
		return models.OpportunityMatch{}, storageErr(err)
	}

	m := eligibility.EvaluateMatch(opp, profile, s.now())
	err = s.repo.UpsertMatch(ctx, m, "")
	if errors.Is(err, db.ErrConflict) {
		// Created concurrently; fall back to rescoring what is there.
		existing, getErr := s.repo.GetMatch(ctx, opp.ID, profile.SurvivorID)
		if getErr != nil {
			return models.OpportunityMatch{}, storageErr(getErr)
		}
		return s.RescoreMatch(ctx, opp, profile, existing)
	}
	if err != nil {
		return models.OpportunityMatch{}, storageErr(err)
	}
	return m, nil
}

// RescoreMatch refreshes score and details of an existing match. The write is
// conditioned on the status of existing, so a concurrent transition wins and
// the rescore reports ErrConcurrentModification.
func (s *Service) RescoreMatch(ctx context.Context, opp models.FundingOpportunity, profile models.ApplicantProfile, existing models.OpportunityMatch) (models.OpportunityMatch, error) {
	m := eligibility.RescoreMatch(opp, profile, existing, s.now())
	if err := s.repo.UpsertMatch(ctx, m, existing.Status); err != nil {
		return existing, storageErr(err)
	}
	return m, nil
}

// Transition applies an event to the caller's snapshot of a match and
// persists it only if nobody changed the status in between. Score and details
// are left as stored, so the returned match carries the latest rescore.
func (s *Service) Transition(ctx context.Context, current models.OpportunityMatch, ev workflow.Event, actor models.Actor, payload workflow.Payload) (models.OpportunityMatch, error) {
	next, err := workflow.Apply(current, ev, actor, payload, s.now())
	if err != nil {
		return current, err
	}

	next, err = s.repo.UpdateMatchStatus(ctx, next, current.Status)
	if err != nil {
		return current, storageErr(err)
	}

	s.logger.Info("match transitioned",
		zap.String("match_id", next.ID.String()),
		zap.String("event", string(ev)),
		zap.String("from", string(current.Status)),
		zap.String("to", string(next.Status)),
		zap.String("actor_id", actor.UserID.String()),
	)

	if next.Status == models.StatusFunded {
		if err := s.events.PublishFunded(ctx, events.FundedFromMatch(next)); err != nil {
			s.logger.Error("failed to publish funded event",
				zap.String("match_id", next.ID.String()),
				zap.Error(err),
			)
		}
	}
	return next, nil
}

// UpdateNotes edits the free-text notes of a match. It is not a transition
// and leaves status and history untouched.
func (s *Service) UpdateNotes(ctx context.Context, opportunityID, survivorID uuid.UUID, actor models.Actor, notes string) (models.OpportunityMatch, error) {
	if !actor.IsStaff() {
		return models.OpportunityMatch{}, fmt.Errorf("%w: role %s may not edit notes", workflow.ErrUnauthorized, actor.Role)
	}
	m, err := s.repo.UpdateMatchNotes(ctx, opportunityID, survivorID, notes)
	if err != nil {
		return m, storageErr(err)
	}
	return m, nil
}

// MatchSurvivor evaluates a survivor against every open opportunity.
func (s *Service) MatchSurvivor(ctx context.Context, survivorID uuid.UUID) ([]models.OpportunityMatch, error) {
	profile, err := s.catalog.GetProfile(ctx, survivorID)
	if err != nil {
		return nil, storageErr(err)
	}
	opps, err := s.catalog.OpenOpportunities(ctx)
	if err != nil {
		return nil, storageErr(err)
	}

	out := make([]models.OpportunityMatch, 0, len(opps))
	for _, opp := range opps {
		m, err := s.EvaluateMatch(ctx, opp, profile)
		if err != nil {
			return out, fmt.Errorf("opportunity %s: %w", opp.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

type RescoreStats struct {
	Opportunities  int `json:"opportunities"`
	Scanned        int `json:"scanned"`
	Updated        int `json:"updated"`
	Conflicts      int `json:"conflicts"`
	MissingProfile int `json:"missing_profile"`
}

func (r *RescoreStats) add(o RescoreStats) {
	r.Opportunities += o.Opportunities
	r.Scanned += o.Scanned
	r.Updated += o.Updated
	r.Conflicts += o.Conflicts
	r.MissingProfile += o.MissingProfile
}

// RescoreOpportunity rescores every match of an opportunity, typically after
// its criteria changed. Matches modified concurrently are skipped and counted.
func (s *Service) RescoreOpportunity(ctx context.Context, opportunityID uuid.UUID) (RescoreStats, error) {
	opp, err := s.catalog.GetOpportunity(ctx, opportunityID)
	if err != nil {
		return RescoreStats{}, storageErr(err)
	}
	return s.rescore(ctx, opp)
}

func (s *Service) rescore(ctx context.Context, opp models.FundingOpportunity) (RescoreStats, error) {
	stats := RescoreStats{Opportunities: 1}

	matches, err := s.repo.ListMatchesByOpportunity(ctx, opp.ID)
	if err != nil {
		return stats, storageErr(err)
	}

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++

		profile, err := s.catalog.GetProfile(ctx, m.SurvivorID)
		if errors.Is(err, db.ErrNotFound) {
			stats.MissingProfile++
			continue
		}
		if err != nil {
			return stats, storageErr(err)
		}

		_, err = s.RescoreMatch(ctx, opp, profile, m)
		switch {
		case err == nil:
			stats.Updated++
		case errors.Is(err, workflow.ErrConcurrentModification):
			stats.Conflicts++
		default:
			return stats, err
		}
	}

	s.logger.Info("rescored opportunity",
		zap.String("opportunity_id", opp.ID.String()),
		zap.Int("scanned", stats.Scanned),
		zap.Int("updated", stats.Updated),
		zap.Int("conflicts", stats.Conflicts),
	)
	return stats, nil
}

// RescoreSurvivor rescores every match of a survivor after the profile
// changed.
func (s *Service) RescoreSurvivor(ctx context.Context, survivorID uuid.UUID) (RescoreStats, error) {
	var stats RescoreStats

	profile, err := s.catalog.GetProfile(ctx, survivorID)
	if err != nil {
		return stats, storageErr(err)
	}
	matches, err := s.repo.ListMatchesBySurvivor(ctx, survivorID)
	if err != nil {
		return stats, storageErr(err)
	}

	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Scanned++
		opp, err := s.catalog.GetOpportunity(ctx, m.OpportunityID)
		if err != nil {
			return stats, storageErr(err)
		}
		_, err = s.RescoreMatch(ctx, opp, profile, m)
		switch {
		case err == nil:
			stats.Updated++
		case errors.Is(err, workflow.ErrConcurrentModification):
			stats.Conflicts++
		default:
			return stats, err
		}
	}
	return stats, nil
}

// RescoreAll rescores the matches of every open opportunity.
func (s *Service) RescoreAll(ctx context.Context) (RescoreStats, error) {
	var total RescoreStats

	opps, err := s.catalog.OpenOpportunities(ctx)
	if err != nil {
		return total, storageErr(err)
	}
	for _, opp := range opps {
		stats, err := s.rescore(ctx, opp)
		total.add(stats)
		if err != nil {
			return total, fmt.Errorf("opportunity %s: %w", opp.ID, err)
		}
	}
	return total, nil
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/recovery-match/internal/auth"
	"github.com/david/recovery-match/internal/catalog"
	"github.com/david/recovery-match/internal/db"
	"github.com/david/recovery-match/internal/models"
	"github.com/david/recovery-match/internal/workflow"
)

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return s.respondError(c, err)
	}

	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCreds) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return s.respondError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func (s *Server) handleListOpportunities(c echo.Context) error {
	params := db.ListParams{
		Query:  c.QueryParam("q"),
		Status: c.QueryParam("status"),
	}
	if v := c.QueryParam("funder_type"); v != "" {
		params.FunderType = splitCSV(v)
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		params.Limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil {
		params.Offset = o
	}
	if v, err := strconv.ParseFloat(c.QueryParam("min_amount"), 64); err == nil {
		params.MinAmount = v
	}
	if v, err := strconv.ParseFloat(c.QueryParam("max_amount"), 64); err == nil {
		params.MaxAmount = v
	}

	result, err := s.Store.ListOpportunities(c.Request().Context(), params)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetOpportunity(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	opp, err := s.Store.GetOpportunity(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, opp)
}

func (s *Server) handleCreateOpportunity(c echo.Context) error {
	var opp models.FundingOpportunity
	if err := c.Bind(&opp); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	opp.ID = uuid.Nil
	if err := catalog.Normalize(&opp); err != nil {
		return s.respondError(c, err)
	}
	if err := s.Store.CreateOpportunity(c.Request().Context(), &opp); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, opp)
}

type criteriaRequest struct {
	Criteria []models.Criterion `json:"criteria"`
}

// handleUpdateCriteria replaces the criteria of an opportunity and rescores
// its existing matches.
func (s *Server) handleUpdateCriteria(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req criteriaRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := models.ValidateCriteria(req.Criteria); err != nil {
		return s.respondError(c, err)
	}

	ctx := c.Request().Context()
	opp, err := s.Store.UpdateCriteria(ctx, id, req.Criteria)
	if err != nil {
		return s.respondError(c, err)
	}
	stats, err := s.Matches.RescoreOpportunity(ctx, id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"opportunity": opp,
		"rescore":     stats,
	})
}

func (s *Server) survivorParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuidParam(c, "id")
	if err != nil {
		return uuid.Nil, err
	}
	if !canAccessSurvivor(actorOf(c), id) {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "Not allowed to access this survivor")
	}
	return id, nil
}

func (s *Server) handleGetProfile(c echo.Context) error {
	id, err := s.survivorParam(c)
	if err != nil {
		return err
	}
	profile, err := s.Store.GetProfile(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// handlePutProfile stores a profile and rescores the survivor's existing
// matches against it.
func (s *Server) handlePutProfile(c echo.Context) error {
	id, err := s.survivorParam(c)
	if err != nil {
		return err
	}
	var profile models.ApplicantProfile
	if err := c.Bind(&profile); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if profile.AnnualIncome != nil && *profile.AnnualIncome < 0 {
		return s.respondError(c, fmt.Errorf("%w: annual_income must not be negative", workflow.ErrValidation))
	}
	if profile.HouseholdSize < 0 {
		return s.respondError(c, fmt.Errorf("%w: household_size must not be negative", workflow.ErrValidation))
	}
	profile.SurvivorID = id

	ctx := c.Request().Context()
	saved, err := s.Store.PutProfile(ctx, profile)
	if err != nil {
		return s.respondError(c, err)
	}
	stats, err := s.Matches.RescoreSurvivor(ctx, id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"profile": saved,
		"rescore": stats,
	})
}

func (s *Server) handleEvaluateSurvivor(c echo.Context) error {
	id, err := s.survivorParam(c)
	if err != nil {
		return err
	}
	matches, err := s.Matches.MatchSurvivor(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleListSurvivorMatches(c echo.Context) error {
	id, err := s.survivorParam(c)
	if err != nil {
		return err
	}
	matches, err := s.Store.ListMatchesBySurvivor(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleListOpportunityMatches(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	if !actorOf(c).IsStaff() {
		return echo.NewHTTPError(http.StatusForbidden, "Insufficient role")
	}
	matches, err := s.Store.ListMatchesByOpportunity(c.Request().Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"matches": matches})
}

// matchView is a match plus the events the current actor may send.
type matchView struct {
	models.OpportunityMatch
	AvailableEvents []workflow.Event `json:"available_events"`
}

func newMatchView(m models.OpportunityMatch, actor models.Actor) matchView {
	evs := workflow.AvailableEvents(m.Status, actor, m.SurvivorID)
	if evs == nil {
		evs = []workflow.Event{}
	}
	return matchView{OpportunityMatch: m, AvailableEvents: evs}
}

func (s *Server) matchParams(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	oppID, err := uuidParam(c, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	survivorID, err := uuidParam(c, "survivorId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	if !canAccessSurvivor(actorOf(c), survivorID) {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "Not allowed to access this survivor")
	}
	return oppID, survivorID, nil
}

func (s *Server) handleGetMatch(c echo.Context) error {
	oppID, survivorID, err := s.matchParams(c)
	if err != nil {
		return err
	}
	m, err := s.Store.GetMatch(c.Request().Context(), oppID, survivorID)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, newMatchView(m, actorOf(c)))
}

type transitionRequest struct {
	Event          string   `json:"event"`
	AwardAmount    *float64 `json:"award_amount"`
	ExpectedStatus string   `json:"expected_status"`
}

// handleTransition applies a workflow event. When expected_status is given
// and the stored match has moved on, the request fails with 409 so the
// client can refetch.
func (s *Server) handleTransition(c echo.Context) error {
	oppID, survivorID, err := s.matchParams(c)
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	ev, err := workflow.ParseEvent(req.Event)
	if err != nil {
		return s.respondError(c, err)
	}

	ctx := c.Request().Context()
	current, err := s.Store.GetMatch(ctx, oppID, survivorID)
	if err != nil {
		return s.respondError(c, err)
	}
	if req.ExpectedStatus != "" {
		expected, err := models.ParseStatus(req.ExpectedStatus)
		if err != nil {
			return s.respondError(c, fmt.Errorf("%w: %v", workflow.ErrValidation, err))
		}
		if expected != current.Status {
			return s.respondError(c, fmt.Errorf("%w: match is %s, expected %s",
				workflow.ErrConcurrentModification, current.Status, expected))
		}
	}

	actor := actorOf(c)
	next, err := s.Matches.Transition(ctx, current, ev, actor, workflow.Payload{AwardAmount: req.AwardAmount})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, newMatchView(next, actor))
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleUpdateNotes(c echo.Context) error {
	oppID, survivorID, err := s.matchParams(c)
	if err != nil {
		return err
	}
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	m, err := s.Matches.UpdateNotes(c.Request().Context(), oppID, survivorID, actorOf(c), req.Notes)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

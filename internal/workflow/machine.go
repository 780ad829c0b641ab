// Package workflow is the application status state machine for survivor
// matches. Apply is pure: it returns a new match value and never touches
// storage.
package workflow

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/david/recovery-match/internal/models"
)

type Event string

const (
	EventNotify  Event = "notify"
	EventApply   Event = "apply"
	EventAward   Event = "award"
	EventFund    Event = "fund"
	EventReject  Event = "reject"
	EventArchive Event = "archive"
)

// Events lists every event in workflow order.
var Events = []Event{EventNotify, EventApply, EventAward, EventFund, EventReject, EventArchive}

func ParseEvent(raw string) (Event, error) {
	ev := Event(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := transitions[ev]; !ok {
		return "", fmt.Errorf("%w: unknown event %q", ErrValidation, raw)
	}
	return ev, nil
}

// Payload holds event-specific input.
type Payload struct {
	AwardAmount *float64 `json:"award_amount,omitempty"`
}

type rule struct {
	from       []models.Status
	to         models.Status
	ownerMayDo bool
}

var transitions = map[Event]rule{
	EventNotify:  {from: []models.Status{models.StatusPending}, to: models.StatusNotified},
	EventApply:   {from: []models.Status{models.StatusPending, models.StatusNotified}, to: models.StatusApplied, ownerMayDo: true},
	EventAward:   {from: []models.Status{models.StatusApplied}, to: models.StatusAwarded},
	EventFund:    {from: []models.Status{models.StatusAwarded}, to: models.StatusFunded},
	EventReject:  {from: []models.Status{models.StatusApplied}, to: models.StatusRejected},
	EventArchive: {from: []models.Status{models.StatusPending, models.StatusNotified, models.StatusApplied, models.StatusAwarded}, to: models.StatusArchived},
}

func (r rule) allows(s models.Status) bool {
	for _, f := range r.from {
		if f == s {
			return true
		}
	}
	return false
}

func (r rule) permits(a models.Actor, survivorID uuid.UUID) bool {
	if a.IsAdmin() {
		return true
	}
	return r.ownerMayDo && a.Owns(survivorID)
}

// Target returns the status an event leads to.
func Target(ev Event) (models.Status, bool) {
	r, ok := transitions[ev]
	return r.to, ok
}

// Apply runs one event against a match. On success the returned match has the
// new status, the event's side effects, and one more history entry.
func Apply(m models.OpportunityMatch, ev Event, actor models.Actor, p Payload, now time.Time) (models.OpportunityMatch, error) {
	r, ok := transitions[ev]
	if !ok {
		return m, reject(ErrValidation, m.Status, ev, "unknown event")
	}
	if !r.allows(m.Status) {
		return m, reject(ErrInvalidTransition, m.Status, ev, "")
	}
	if !r.permits(actor, m.SurvivorID) {
		return m, reject(ErrUnauthorized, m.Status, ev, fmt.Sprintf("role %s may not %s", actor.Role, ev))
	}
	if ev == EventAward {
		if p.AwardAmount == nil {
			return m, reject(ErrValidation, m.Status, ev, "award_amount is required")
		}
		if *p.AwardAmount < 0 || math.IsNaN(*p.AwardAmount) || math.IsInf(*p.AwardAmount, 0) {
			return m, reject(ErrValidation, m.Status, ev, "award_amount must be a non-negative number")
		}
	}

	now = now.UTC()
	out := m.Clone()
	from := out.Status
	actorID := actor.UserID

	switch ev {
	case EventApply:
		out.AppliedAt = &now
		out.AppliedByID = &actorID
	case EventAward:
		amount := *p.AwardAmount
		out.AwardAmount = &amount
		out.AwardedAt = &now
		out.AwardedByID = &actorID
	case EventFund:
		out.FundedAt = &now
		out.FundedByID = &actorID
	case EventArchive:
		out.ArchivedFrom = from
	}

	out.Status = r.to
	out.UpdatedAt = now
	out.History = append(out.History, models.StatusChange{
		From:    from,
		To:      r.to,
		Event:   string(ev),
		ActorID: actorID,
		At:      now,
	})
	return out, nil
}

// AvailableEvents lists the events the actor may trigger on a match in the
// given status.
func AvailableEvents(status models.Status, actor models.Actor, survivorID uuid.UUID) []Event {
	var out []Event
	for _, ev := range Events {
		r := transitions[ev]
		if r.allows(status) && r.permits(actor, survivorID) {
			out = append(out, ev)
		}
	}
	return out
}

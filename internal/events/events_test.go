package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/david/recovery-match/internal/models"
)

func TestFundedFromMatch(t *testing.T) {
	amount := 7500.0
	fundedAt := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	by := uuid.New()
	m := models.OpportunityMatch{
		ID:            uuid.New(),
		OpportunityID: uuid.New(),
		SurvivorID:    uuid.New(),
		Status:        models.StatusFunded,
		AwardAmount:   &amount,
		FundedAt:      &fundedAt,
		FundedByID:    &by,
	}

	ev := FundedFromMatch(m)
	if ev.AwardAmount != 7500 || ev.FundedByID != by || !ev.FundedAt.Equal(fundedAt) {
		t.Fatalf("unexpected event %+v", ev)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["match_id"] != m.ID.String() {
		t.Fatalf("expected match_id %s, got %v", m.ID, decoded["match_id"])
	}
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := LogPublisher{Logger: zap.New(core)}

	if err := p.PublishFunded(context.Background(), FundedEvent{MatchID: uuid.New(), AwardAmount: 10}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}
	if logs.All()[0].Message != "application funded" {
		t.Fatalf("unexpected message %q", logs.All()[0].Message)
	}
}

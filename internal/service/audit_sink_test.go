package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"copytrade/internal/models"
)

func TestAuditSink_WritesAndDrains(t *testing.T) {
	repo := NewMockAuditRepository()
	sink := NewAuditSink(repo, 16)

	for i := 0; i < 10; i++ {
		sink.Record(userAudit(models.AuditTradeAttempt, "", 1, "bybit", "buy BTCUSDT: success", nil))
	}
	sink.Close()

	if got := repo.count(); got != 10 {
		t.Fatalf("expected 10 written events, got %d", got)
	}
	for _, e := range repo.events {
		if e.Severity != models.SeverityInfo || e.CreatedAt.IsZero() {
			t.Errorf("event defaults not applied: %+v", e)
		}
	}
}

func TestAuditSink_RecordNeverBlocks(t *testing.T) {
	repo := NewMockAuditRepository()
	repo.gate = make(chan struct{})
	sink := NewAuditSink(repo, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			sink.Record(models.AuditEvent{Kind: models.AuditSyncError, Message: "boom"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	if dropped := sink.Dropped(); dropped < 47 {
		t.Errorf("expected at least 47 dropped events, got %d", dropped)
	}

	close(repo.gate)
	sink.Close()
}

func TestAuditSink_RecordAfterClose(t *testing.T) {
	sink := NewAuditSink(NewMockAuditRepository(), 4)
	sink.Close()
	sink.Close()

	sink.Record(models.AuditEvent{Kind: models.AuditSyncError})
	if sink.Dropped() != 1 {
		t.Error("event recorded after Close must be counted as dropped")
	}
}

func TestAuditSink_WriteErrorIsLogged(t *testing.T) {
	repo := NewMockAuditRepository()
	repo.createErr = errors.New("db down")
	sink := NewAuditSink(repo, 4)

	sink.Record(models.AuditEvent{Kind: models.AuditSyncError})
	sink.Close()

	if repo.count() != 0 {
		t.Error("failed write must not be stored")
	}
}

func TestAuditSink_Recent(t *testing.T) {
	repo := NewMockAuditRepository()
	sink := NewAuditSink(repo, 8)
	sink.Record(userAudit(models.AuditCredentialSaved, models.SeverityInfo, 1, "okx", "saved", nil))
	sink.Record(userAudit(models.AuditCredentialSaved, models.SeverityInfo, 2, "okx", "saved", nil))
	sink.Close()

	tests := []struct {
		limit     int
		wantLimit int
	}{
		{0, 100},
		{10, 10},
		{10000, 500},
	}
	for _, tt := range tests {
		events, err := sink.Recent(context.Background(), 1, tt.limit)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(events) != 1 {
			t.Errorf("expected 1 event for user 1, got %d", len(events))
		}
		if repo.lastLimit != tt.wantLimit {
			t.Errorf("limit %d clamped to %d, want %d", tt.limit, repo.lastLimit, tt.wantLimit)
		}
	}
}

func TestAuditSink_Purge(t *testing.T) {
	repo := NewMockAuditRepository()
	sink := NewAuditSink(repo, 8)

	old := userAudit(models.AuditSyncError, models.SeverityWarn, 1, "bybit", "old", nil)
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	sink.Record(old)
	sink.Record(userAudit(models.AuditSyncError, models.SeverityWarn, 1, "bybit", "fresh", nil))
	sink.Close()

	sink.purge(context.Background(), 24*time.Hour)
	if repo.count() != 1 || repo.events[0].Message != "fresh" {
		t.Errorf("events after purge = %d", repo.count())
	}
}

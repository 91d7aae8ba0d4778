package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-kana/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Append(ctx, Record{SessionID: "s"}); err != nil {
		t.Fatalf("append on ephemeral store: %v", err)
	}
	records, err := es.ListSession(ctx, "s", 10)
	if err != nil || len(records) != 0 {
		t.Fatalf("expected no records, got %v %v", records, err)
	}
	if !es.Healthy(ctx) {
		t.Fatal("ephemeral store should be healthy")
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "journal.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	ctx := context.Background()
	sessionID := "session-123"
	if err := es.AppendSession(ctx, sessionID, "kitchen"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	rec := Record{
		SessionID:     sessionID,
		Source:        "text",
		Speaker:       1,
		Text:          "こんにちは",
		Kana:          "コンニチワ'",
		Moras:         5,
		SpeechSeconds: 0.9,
		ProcSeconds:   0.01,
	}
	if err := es.Append(ctx, rec); err != nil {
		t.Fatalf("append record: %v", err)
	}
	if err := es.Append(ctx, Record{SessionID: sessionID, Source: "kana", Kana: "ア'イ'", Error: "malformed accent"}); err != nil {
		t.Fatalf("append failed record: %v", err)
	}
	records, err := es.ListSession(ctx, sessionID, 10)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Kana != "コンニチワ'" || records[0].Moras != 5 || records[0].Speaker != 1 || records[0].Truncated {
		t.Fatalf("unexpected record %+v", records[0])
	}
	if records[0].Target != "kitchen" {
		t.Fatalf("expected session target kitchen, got %q", records[0].Target)
	}
	if records[1].Error != "malformed accent" {
		t.Fatalf("unexpected failure record %+v", records[1])
	}

	if err := es.AppendSession(ctx, sessionID, ""); err != nil {
		t.Fatalf("append session again: %v", err)
	}
	records, err = es.ListSession(ctx, sessionID, 1)
	if err != nil || len(records) != 1 || records[0].Target != "kitchen" {
		t.Fatalf("empty target must keep the stored one, got %+v %v", records, err)
	}

	sum, err := es.Summarize(ctx)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.Requests != 2 || sum.Failures != 1 || sum.Moras != 5 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestAppendCreatesSession(t *testing.T) {
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "journal.db"), RetentionMode: "persistent"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Append(context.Background(), Record{SessionID: "fresh", Source: "text", Truncated: true}); err != nil {
		t.Fatalf("append: %v", err)
	}
	records, err := es.ListSession(context.Background(), "fresh", 0)
	if err != nil || len(records) != 1 || !records[0].Truncated {
		t.Fatalf("unexpected records %+v %v", records, err)
	}
	if err := es.Append(context.Background(), Record{}); err == nil {
		t.Fatal("expected error for record without session")
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "journal.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(context.Background(), "old-session", ""); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.Append(context.Background(), Record{SessionID: "old-session", Source: "text"}); err != nil {
		t.Fatalf("append record: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendSession(context.Background(), "new-session", ""); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := es.ListSession(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected old session pruned")
	}
}

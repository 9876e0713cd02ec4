package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	alarmapp "coatline/internal/alarms/application"
	alarmrepo "coatline/internal/alarms/infrastructure/postgres"
	alarmredis "coatline/internal/alarms/infrastructure/redis"
	"coatline/internal/migrate"
	telemetry "coatline/internal/telemetry/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestAlarmClosedLoop_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, db, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	lineNo := "IT-ALARM-1"
	_, _ = db.ExecContext(ctx, "DELETE FROM alarm_logs WHERE line_no = $1", lineNo)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	states, err := alarmredis.NewStateStore(client, "it:alarm:")
	if err != nil {
		t.Fatalf("state store: %v", err)
	}

	tracker, err := alarmapp.NewDedupTracker(alarmrepo.NewAlarmLogRepository(db), states)
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	signals := []struct {
		status string
		insert bool
	}{
		{"triggered", true},
		{"TRIGGERED", false},
		{"recovered", false},
		{"triggered", true},
	}
	for i, s := range signals {
		inserted, err := tracker.Handle(ctx, telemetry.AlarmSignal{
			Line:      lineNo,
			Machine:   "oven",
			Status:    s.status,
			Message:   "Temp  HIGH",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
		if inserted != s.insert {
			t.Fatalf("handle %d: expected insert=%v, got %v", i, s.insert, inserted)
		}
	}

	events, err := tracker.Recent(ctx, lineNo, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 alarm rows, got %d", len(events))
	}
	if !events[0].Timestamp.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("expected newest row first, got %s", events[0].Timestamp)
	}

	// A fresh cache forgets the open incident, so the same trigger is logged again.
	mr.FlushAll()
	inserted, err := tracker.Handle(ctx, telemetry.AlarmSignal{
		Line: lineNo, Machine: "oven", Status: "triggered", Message: "temp high", Timestamp: base.Add(4 * time.Minute),
	})
	if err != nil {
		t.Fatalf("handle after flush: %v", err)
	}
	if !inserted {
		t.Fatalf("expected insert after cache flush")
	}
}

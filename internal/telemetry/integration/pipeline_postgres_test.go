package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"coatline/internal/config"
	linestateapp "coatline/internal/linestate/application"
	linestateredis "coatline/internal/linestate/infrastructure/redis"
	masterdata "coatline/internal/masterdata/domain"
	masterdatarepo "coatline/internal/masterdata/infrastructure/postgres"
	"coatline/internal/migrate"
	planapp "coatline/internal/planning/application"
	planrepo "coatline/internal/planning/infrastructure/postgres"
	runapp "coatline/internal/runhistory/application"
	runrepo "coatline/internal/runhistory/infrastructure/postgres"
	shift "coatline/internal/shift/domain"
	telemetry "coatline/internal/telemetry/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestPipeline_Postgres(t *testing.T) {
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

	lineCode := "IT-PIPE-1"
	cleanup(ctx, db, lineCode)
	defer cleanup(ctx, db, lineCode)

	lineRepo := masterdatarepo.NewLineRepository(db)
	if err := lineRepo.Save(ctx, &masterdata.Line{Code: lineCode, Name: "Pipeline Line"}); err != nil {
		t.Fatalf("save line: %v", err)
	}

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	store, err := linestateredis.NewStore(client, linestateredis.WithKeyPrefix("it:pipe:"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	schedule := shift.Schedule{Windows: config.DefaultShifts(), Boundary: shift.DefaultDayBoundary}
	tracker, err := runapp.NewTracker(runrepo.NewRepository(db))
	if err != nil {
		t.Fatalf("tracker: %v", err)
	}
	binder, err := planapp.NewBinder(lineRepo, masterdatarepo.NewProductRepository(db), planrepo.NewPlanRepository(db), schedule)
	if err != nil {
		t.Fatalf("binder: %v", err)
	}
	history, err := planapp.NewHistoryWriter(planrepo.NewHistoryRepository(db), nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	engine, err := linestateapp.NewEngine(store, schedule, tracker, binder, history)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	counters := []int64{100, 130, 5}
	var last *telemetry.Aggregate
	for i, counter := range counters {
		last, err = engine.Process(ctx, telemetry.Sample{
			Line:        lineCode,
			Product:     "PANEL-A",
			Machine:     "oven",
			StatusCode:  1,
			Counter:     counter,
			GatewayTime: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("process %d: %v", i, err)
		}
	}
	if last.DailyActual != 135 {
		t.Fatalf("expected daily actual 135, got %d", last.DailyActual)
	}
	if last.PlanID == 0 {
		t.Fatalf("expected auto-registered plan")
	}
	if last.ShiftCode != "S1" {
		t.Fatalf("expected shift S1, got %q", last.ShiftCode)
	}

	var actual int64
	if err := db.QueryRowContext(ctx, "SELECT actual_qty FROM production_histories WHERE plan_id = $1", last.PlanID).Scan(&actual); err != nil {
		t.Fatalf("read history: %v", err)
	}
	if actual != 135 {
		t.Fatalf("expected stored actual 135, got %d", actual)
	}

	var open int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM machine_run_histories WHERE line_code = $1 AND end_at IS NULL", lineCode).Scan(&open); err != nil {
		t.Fatalf("count open intervals: %v", err)
	}
	if open != 1 {
		t.Fatalf("expected one open run interval, got %d", open)
	}
}

func cleanup(ctx context.Context, db *sql.DB, lineCode string) {
	_, _ = db.ExecContext(ctx, "DELETE FROM machine_run_histories WHERE line_code = $1", lineCode)
	_, _ = db.ExecContext(ctx, `
DELETE FROM production_histories WHERE plan_id IN (
	SELECT p.id FROM production_plans p JOIN lines l ON l.id = p.line_id WHERE l.code = $1)`, lineCode)
	_, _ = db.ExecContext(ctx, "DELETE FROM production_plans WHERE line_id IN (SELECT id FROM lines WHERE code = $1)", lineCode)
	_, _ = db.ExecContext(ctx, "DELETE FROM products WHERE line_id IN (SELECT id FROM lines WHERE code = $1)", lineCode)
}

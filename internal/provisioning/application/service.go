package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	masterdata "coatline/internal/masterdata/domain"
	masterdatarepo "coatline/internal/masterdata/infrastructure/postgres"
	planningrepo "coatline/internal/planning/infrastructure/postgres"
	shift "coatline/internal/shift/domain"
	shiftrepo "coatline/internal/shift/infrastructure/postgres"
)

// LineInput describes a line to provision.
type LineInput struct {
	Code    string
	Name    string
	Targets map[int]int64
}

// Request is the plant reference data to provision at startup.
type Request struct {
	Lines  []LineInput
	Shifts []shift.Window
}

// Result maps provisioned line codes to their ids.
type Result struct {
	LineIDs       map[string]int64
	ShiftsSeeded  int
	TargetsLoaded int
}

// Service provisions lines, hourly targets and shift windows.
type Service struct {
	db     *sql.DB
	logger *log.Logger
}

// NewService constructs a provisioning service.
func NewService(db *sql.DB, logger *log.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("provisioning: nil db")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{db: db, logger: logger}, nil
}

// Provision upserts lines and their targets. Shift windows are seeded only
// when the table is empty so edits made in the database survive restarts.
// Lines without targets keep the targets already stored.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	if err := validateProvision(req); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	lineRepo := masterdatarepo.NewLineRepository(tx)
	targetRepo := planningrepo.NewTargetRepository(tx)
	windowRepo := shiftrepo.NewWindowRepository(tx)

	result := &Result{LineIDs: make(map[string]int64, len(req.Lines))}
	for _, input := range req.Lines {
		line := &masterdata.Line{Code: input.Code, Name: input.Name}
		if line.Name == "" {
			line.Name = input.Code
		}
		if err := lineRepo.Save(ctx, line); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("provisioning: save line %s: %w", input.Code, err)
		}
		result.LineIDs[line.Code] = line.ID

		if len(input.Targets) == 0 {
			continue
		}
		if err := targetRepo.ReplaceTargets(ctx, line.ID, input.Targets); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("provisioning: targets of line %s: %w", input.Code, err)
		}
		result.TargetsLoaded += len(input.Targets)
	}

	existing, err := windowRepo.CountWindows(ctx)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("provisioning: count shift windows: %w", err)
	}
	if existing == 0 {
		for _, window := range req.Shifts {
			if err := windowRepo.SaveWindow(ctx, window); err != nil {
				_ = tx.Rollback()
				return nil, fmt.Errorf("provisioning: save shift %s/%s: %w", window.Schedule, window.Code, err)
			}
			result.ShiftsSeeded++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.logger.Printf("provisioning: lines=%d targets=%d shifts_seeded=%d", len(result.LineIDs), result.TargetsLoaded, result.ShiftsSeeded)
	return result, nil
}

func validateProvision(req Request) error {
	if len(req.Lines) == 0 {
		return errors.New("provisioning: lines required")
	}
	seen := make(map[string]struct{}, len(req.Lines))
	for _, line := range req.Lines {
		if line.Code == "" {
			return errors.New("provisioning: missing line code")
		}
		if _, dup := seen[line.Code]; dup {
			return fmt.Errorf("provisioning: duplicate line %s", line.Code)
		}
		seen[line.Code] = struct{}{}
		for hour, qty := range line.Targets {
			if hour < 0 || hour > 23 || qty < 0 {
				return fmt.Errorf("provisioning: invalid target for line %s hour %d", line.Code, hour)
			}
		}
	}
	for _, window := range req.Shifts {
		if err := window.Validate(); err != nil {
			return fmt.Errorf("provisioning: %w", err)
		}
	}
	return nil
}

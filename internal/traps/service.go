// Package traps provides trap management and entry evaluation: the write
// side of trap configuration and the hot path that decides which traps an
// ingested entry fires.
package traps

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/logtrap/internal/errs"
	"github.com/good-yellow-bee/logtrap/internal/evaluation"
	"github.com/good-yellow-bee/logtrap/internal/logger"
	"github.com/good-yellow-bee/logtrap/internal/metrics"
	"github.com/good-yellow-bee/logtrap/internal/models"
	"github.com/good-yellow-bee/logtrap/internal/storage"
)

// Backtest bounds.
const (
	MinBacktestHours = 1
	MaxBacktestHours = 168

	// maxBacktestSample caps the matching entry ids reported by TestTrap.
	maxBacktestSample = 100

	// maxBacktestEntries caps how many historical entries one backtest
	// evaluates.
	maxBacktestEntries = 10000

	backtestPageSize = 1000
)

// Service manages traps and evaluates entries against them.
type Service struct {
	traps   storage.TrapRepository
	entries storage.EntryRepository
	engine  *evaluation.Engine

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates a trap service.
func NewService(traps storage.TrapRepository, entries storage.EntryRepository) *Service {
	return &Service{
		traps:   traps,
		entries: entries,
		engine:  evaluation.NewEngine(entries),
		now:     time.Now,
	}
}

// Create validates and persists a new trap with its conditions.
func (s *Service) Create(ctx context.Context, trap *models.LogTrap) error {
	if err := trap.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	trap.ID = uuid.New().String()
	trap.CreatedAt = now
	trap.UpdatedAt = now
	for i := range trap.Conditions {
		trap.Conditions[i].ID = uuid.New().String()
		trap.Conditions[i].TrapID = trap.ID
	}
	return s.traps.Create(ctx, trap)
}

// Get returns a trap with its conditions, scoped to the team.
func (s *Service) Get(ctx context.Context, teamID, id string) (*models.LogTrap, error) {
	return s.traps.GetByID(ctx, teamID, id)
}

// Update validates and persists trap edits, replacing the condition set.
// In-flight evaluations that loaded the previous configuration are allowed
// to finish with it.
func (s *Service) Update(ctx context.Context, trap *models.LogTrap) error {
	if err := trap.Validate(); err != nil {
		return err
	}
	trap.UpdatedAt = s.now().UTC()
	for i := range trap.Conditions {
		if trap.Conditions[i].ID == "" {
			trap.Conditions[i].ID = uuid.New().String()
		}
		trap.Conditions[i].TrapID = trap.ID
	}
	return s.traps.Update(ctx, trap)
}

// Delete removes a trap; its conditions cascade with it.
func (s *Service) Delete(ctx context.Context, teamID, id string) error {
	return s.traps.Delete(ctx, teamID, id)
}

// List returns all of a team's traps.
func (s *Service) List(ctx context.Context, teamID string) ([]*models.LogTrap, error) {
	return s.traps.List(ctx, teamID)
}

// SetActive enables or disables a trap without touching its conditions.
func (s *Service) SetActive(ctx context.Context, teamID, id string, active bool) error {
	return s.traps.SetActive(ctx, teamID, id, active)
}

// EvaluateEntry evaluates the entry against every active trap of its team
// and returns the ids of traps that fired. Matching traps get their trigger
// statistics updated. A failure evaluating one trap is logged and does not
// prevent evaluation of the remaining traps.
func (s *Service) EvaluateEntry(ctx context.Context, entry *models.LogEntry) ([]string, error) {
	activeTraps, err := s.traps.ListActive(ctx, entry.TeamID)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("traps")

	var fired []string
	for _, trap := range activeTraps {
		matched, err := s.engine.Evaluate(ctx, trap, entry)
		if err != nil {
			log.Error().Err(err).
				Str("trap_id", trap.ID).
				Str("team_id", entry.TeamID).
				Msg("trap evaluation failed, skipping trap")
			continue
		}
		if !matched {
			continue
		}

		metrics.TrapsFired.WithLabelValues(string(trap.Type)).Inc()

		if err := s.traps.UpdateStats(ctx, entry.TeamID, trap.ID, s.now().UTC()); err != nil {
			log.Error().Err(err).
				Str("trap_id", trap.ID).
				Msg("failed to update trap statistics")
		}
		fired = append(fired, trap.ID)
	}

	return fired, nil
}

// TestResult reports the outcome of a trap backtest.
type TestResult struct {
	TrapID         string   `json:"trap_id"`
	HoursBack      int      `json:"hours_back"`
	TotalEvaluated int      `json:"total_evaluated"`
	MatchCount     int      `json:"match_count"`
	MatchPercent   float64  `json:"match_percent"`
	SampleEntryIDs []string `json:"sample_entry_ids"`
}

// Test runs the trap against historical entries, reporting how often it
// would have fired. Useful for validating a trap before activation.
func (s *Service) Test(ctx context.Context, teamID, trapID string, hoursBack int) (*TestResult, error) {
	if hoursBack < MinBacktestHours || hoursBack > MaxBacktestHours {
		return nil, errs.Validation("hours_back must be between %d and %d, got %d",
			MinBacktestHours, MaxBacktestHours, hoursBack)
	}

	trap, err := s.traps.GetByID(ctx, teamID, trapID)
	if err != nil {
		return nil, err
	}

	result := &TestResult{TrapID: trapID, HoursBack: hoursBack}
	since := s.now().UTC().Add(-time.Duration(hoursBack) * time.Hour)

	offset := 0
	for result.TotalEvaluated < maxBacktestEntries {
		entries, err := s.entries.Query(ctx, storage.EntryFilter{
			TeamID: teamID,
			Since:  since,
			Limit:  backtestPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			break
		}

		for _, entry := range entries {
			matched, err := s.engine.Evaluate(ctx, trap, entry)
			if err != nil {
				return nil, err
			}
			result.TotalEvaluated++
			if matched {
				result.MatchCount++
				if len(result.SampleEntryIDs) < maxBacktestSample {
					result.SampleEntryIDs = append(result.SampleEntryIDs, entry.ID)
				}
			}
			if result.TotalEvaluated >= maxBacktestEntries {
				break
			}
		}

		if len(entries) < backtestPageSize {
			break
		}
		offset += len(entries)
	}

	if result.TotalEvaluated > 0 {
		result.MatchPercent = float64(result.MatchCount) / float64(result.TotalEvaluated) * 100
	}
	return result, nil
}

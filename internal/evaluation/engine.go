package evaluation

import (
	"context"
	"fmt"

	"github.com/good-yellow-bee/logtrap/internal/models"
	"github.com/good-yellow-bee/logtrap/internal/storage"
)

// Engine evaluates all conditions of a trap according to the trap's type.
// Storage errors during evaluation propagate to the caller; this layer
// never swallows them.
type Engine struct {
	conditions *ConditionEvaluator
}

// NewEngine creates an evaluation engine backed by the given entry
// repository.
func NewEngine(entries storage.EntryRepository) *Engine {
	return &Engine{conditions: NewConditionEvaluator(entries)}
}

// Evaluate reports whether the trap matches the entry.
//
// PATTERN traps fire only when every condition evaluates true (AND).
// FREQUENCY and ABSENCE traps delegate to the aggregation path, which
// evaluates their threshold/absence conditions over the team-scoped
// historical window.
func (e *Engine) Evaluate(ctx context.Context, trap *models.LogTrap, entry *models.LogEntry) (bool, error) {
	if len(trap.Conditions) == 0 {
		return false, nil
	}

	switch trap.Type {
	case models.TrapTypePattern:
		return e.evaluateAll(ctx, trap, entry)
	case models.TrapTypeFrequency:
		return e.evaluateAggregate(ctx, trap, entry, models.ConditionFrequencyThreshold)
	case models.TrapTypeAbsence:
		return e.evaluateAggregate(ctx, trap, entry, models.ConditionAbsence)
	default:
		return false, fmt.Errorf("unknown trap type %q", trap.Type)
	}
}

// evaluateAll ANDs every condition of the trap.
func (e *Engine) evaluateAll(ctx context.Context, trap *models.LogTrap, entry *models.LogEntry) (bool, error) {
	for i := range trap.Conditions {
		ok, err := e.conditions.Evaluate(ctx, &trap.Conditions[i], entry)
		if err != nil {
			return false, fmt.Errorf("trap %s: %w", trap.ID, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evaluateAggregate evaluates the trap's conditions of the wanted
// aggregation kind, ANDing them. A trap carrying no condition of its own
// kind never fires.
func (e *Engine) evaluateAggregate(ctx context.Context, trap *models.LogTrap, entry *models.LogEntry, kind models.ConditionType) (bool, error) {
	matched := false
	for i := range trap.Conditions {
		cond := &trap.Conditions[i]
		if cond.Type != kind {
			continue
		}
		ok, err := e.conditions.Evaluate(ctx, cond, entry)
		if err != nil {
			return false, fmt.Errorf("trap %s: %w", trap.ID, err)
		}
		if !ok {
			return false, nil
		}
		matched = true
	}
	return matched, nil
}

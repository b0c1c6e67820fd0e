// Package evaluation provides the trap evaluation engine: per-condition
// predicates over single entries and historical windows, combined per trap
// type.
package evaluation

import (
	"context"
	"fmt"
	"strings"

	"github.com/good-yellow-bee/logtrap/internal/models"
	"github.com/good-yellow-bee/logtrap/internal/storage"
)

// ConditionEvaluator evaluates one trap condition against one log entry.
// It is a pure function over the entry plus a bounded historical read
// through the entry repository; it never mutates state.
type ConditionEvaluator struct {
	entries storage.EntryRepository
}

// NewConditionEvaluator creates a condition evaluator backed by the given
// entry repository.
func NewConditionEvaluator(entries storage.EntryRepository) *ConditionEvaluator {
	return &ConditionEvaluator{entries: entries}
}

// Evaluate dispatches on the condition type. Storage errors propagate to
// the caller; isolation is the orchestrator's responsibility.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, cond *models.TrapCondition, entry *models.LogEntry) (bool, error) {
	switch cond.Type {
	case models.ConditionRegex:
		return e.evaluateRegex(cond, entry)
	case models.ConditionKeyword:
		return e.evaluateKeyword(cond, entry), nil
	case models.ConditionFrequencyThreshold:
		count, err := e.countWindow(ctx, cond, entry)
		if err != nil {
			return false, err
		}
		return count >= int64(cond.Threshold), nil
	case models.ConditionAbsence:
		// Fires iff zero matching entries were stored in the trailing
		// window ending at the evaluated entry's timestamp.
		count, err := e.countWindow(ctx, cond, entry)
		if err != nil {
			return false, err
		}
		return count == 0, nil
	default:
		return false, fmt.Errorf("unknown condition type %q", cond.Type)
	}
}

// evaluateRegex applies the compiled pattern to the entry's field value.
// An absent field never matches.
func (e *ConditionEvaluator) evaluateRegex(cond *models.TrapCondition, entry *models.LogEntry) (bool, error) {
	value, ok := entry.FieldValue(cond.Field)
	if !ok {
		return false, nil
	}
	re, err := cond.CompiledPattern()
	if err != nil {
		return false, err
	}
	return re.MatchString(value), nil
}

// evaluateKeyword compares the pattern case-insensitively against the
// field value, matching both exact values and substrings.
func (e *ConditionEvaluator) evaluateKeyword(cond *models.TrapCondition, entry *models.LogEntry) bool {
	value, ok := entry.FieldValue(cond.Field)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(cond.Pattern))
}

// countWindow counts historical entries for the entry's team in the
// trailing window ending at the entry's timestamp, applying the
// condition's service and level filters.
func (e *ConditionEvaluator) countWindow(ctx context.Context, cond *models.TrapCondition, entry *models.LogEntry) (int64, error) {
	filter := storage.CountFilter{
		TeamID:      entry.TeamID,
		ServiceName: cond.ServiceName,
		Level:       cond.LogLevel,
		Pattern:     cond.Pattern,
		Since:       entry.Timestamp.Add(-cond.Window()),
		Until:       entry.Timestamp,
	}
	count, err := e.entries.CountMatching(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count window for condition %s: %w", cond.ID, err)
	}
	return count, nil
}

package alerts

import (
	"fmt"

	"github.com/eyenet/eyenet-monitor/internal/metrics"
)

// Condition gates a notification on a metric value resolved from a snapshot.
type Condition struct {
	MetricPath string   `json:"metric" mapstructure:"metric"`
	Operator   Operator `json:"operator" mapstructure:"operator"`
	Value      float64  `json:"value" mapstructure:"value"`
}

// Validate checks the condition for configuration errors.
func (c Condition) Validate() error {
	if c.MetricPath == "" {
		return fmt.Errorf("condition: metric path is required")
	}
	if !c.Operator.IsValid() {
		return fmt.Errorf("condition %q: invalid operator %q", c.MetricPath, c.Operator)
	}
	return nil
}

// String returns a human-readable form, e.g. "system.cpu.loadAvg.0 > 80".
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %g", c.MetricPath, c.Operator, c.Value)
}

// ConditionResult records the outcome of one condition evaluation, for the
// notification audit trail.
type ConditionResult struct {
	Condition Condition `json:"condition"`
	Resolved  bool      `json:"resolved"`
	Actual    float64   `json:"actual"`
	Met       bool      `json:"met"`
}

// CheckConditions evaluates all conditions against the snapshot with AND
// semantics. An empty or nil list is unconditionally true. A condition whose
// metric path does not resolve is false for every operator: a missing metric
// never satisfies a comparison.
func CheckConditions(snap metrics.Snapshot, conditions []Condition) bool {
	ok, _ := EvaluateConditions(snap, conditions)
	return ok
}

// EvaluateConditions is CheckConditions plus the per-condition results for
// auditing which values were actually observed.
func EvaluateConditions(snap metrics.Snapshot, conditions []Condition) (bool, []ConditionResult) {
	if len(conditions) == 0 {
		return true, nil
	}

	all := true
	results := make([]ConditionResult, 0, len(conditions))
	for _, cond := range conditions {
		value, resolved := snap.Lookup(cond.MetricPath)
		met := resolved && cond.Operator.Compare(value, cond.Value)
		if !met {
			all = false
		}
		results = append(results, ConditionResult{
			Condition: cond,
			Resolved:  resolved,
			Actual:    value,
			Met:       met,
		})
	}
	return all, results
}

// Package alerts provides threshold-based alert derivation over metric
// snapshots, a bounded alert buffer, and condition evaluation.
package alerts

// Level represents the severity of an alert.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// String returns the string representation of the level.
func (l Level) String() string {
	return string(l)
}

// Ordinal returns the numeric rank of the level for severity comparisons.
func (l Level) Ordinal() int {
	switch l {
	case LevelInfo:
		return 0
	case LevelWarning:
		return 1
	case LevelError:
		return 2
	case LevelCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast returns true if the level meets or exceeds the minimum.
func (l Level) AtLeast(minimum Level) bool {
	return l.Ordinal() >= minimum.Ordinal()
}

// IsValid returns true if the level is a recognized severity.
func (l Level) IsValid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError, LevelCritical:
		return true
	default:
		return false
	}
}

// Operator defines comparison operators for conditions and thresholds.
type Operator string

const (
	OpGreaterThan    Operator = ">"
	OpLessThan       Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
)

// String returns the string representation of the operator.
func (o Operator) String() string {
	return string(o)
}

// Compare evaluates the comparison between value and threshold.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreaterThan:
		return value > threshold
	case OpLessThan:
		return value < threshold
	case OpGreaterOrEqual:
		return value >= threshold
	case OpLessOrEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	default:
		return false
	}
}

// IsValid returns true if the operator is recognized.
func (o Operator) IsValid() bool {
	switch o {
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpEqual:
		return true
	default:
		return false
	}
}

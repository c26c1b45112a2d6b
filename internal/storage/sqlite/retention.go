package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/eyenet/eyenet-monitor/internal/logger"
)

// pruneBatchSize bounds each DELETE so retention never holds the write
// lock long enough to stall history inserts.
const pruneBatchSize = 1000

// pruneBefore deletes rows older than cutoff from the named table in
// batches. The table name is always one of our own constants, never user
// input.
func pruneBefore(ctx context.Context, db *DB, table string, cutoff time.Time) (int64, error) {
	var total int64
	for {
		res, err := db.conn.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE rowid IN (
				SELECT rowid FROM %s WHERE timestamp < ? LIMIT %d
			)`, table, table, pruneBatchSize),
			cutoff.UnixMilli())
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("prune %s: rows affected: %w", table, err)
		}
		total += n
		if n < pruneBatchSize {
			break
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
	}

	if total > 0 {
		logger.Debug("pruned history rows", "table", table, "rows", total)
	}
	return total, nil
}

package store

import (
	"context"

	"clinic-queue/internal/apperr"
	"clinic-queue/internal/models"

	"github.com/doug-martin/goqu/v9"
)

// AppendCall appends one record to the call log in its own transaction.
func (s *Store) AppendCall(ctx context.Context, rec models.CallRecord) (models.CallRecord, error) {
	err := s.InTx(ctx, func(tx *Tx) error {
		return tx.AppendCall(ctx, &rec)
	})
	return rec, err
}

// LatestCalls returns the newest n call records, newest first.
func (s *Store) LatestCalls(ctx context.Context, n int) ([]models.CallRecord, error) {
	if n <= 0 {
		return []models.CallRecord{}, nil
	}

	calls := []models.CallRecord{}
	err := s.from(tableCalls).
		Order(goqu.C("published_at").Desc(), goqu.C("id").Desc()).
		Limit(uint(n)).
		ScanStructsContext(ctx, &calls)
	if err != nil {
		return nil, apperr.Internal("list call records", err)
	}
	return calls, nil
}

// ClearCalls empties the call log and reports how many records went.
func (s *Store) ClearCalls(ctx context.Context) (int64, error) {
	var removed int64
	err := s.InTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.Delete(tableCalls).Prepared(true).Executor().ExecContext(ctx)
		if err != nil {
			return apperr.Internal("clear call records", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}

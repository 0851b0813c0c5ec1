package analytics

import (
	"context"
	"database/sql"
	"time"
)

var _ Source = (*PGSource)(nil)

// PGSource aggregates in SQL, keeping large histories out of process memory.
type PGSource struct {
	db *sql.DB
}

func NewPGSource(db *sql.DB) *PGSource {
	return &PGSource{db: db}
}

func (s *PGSource) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	sum := Summary{
		Since:     since,
		ByAsset:   make(map[string]Stats),
		ByNetwork: make(map[string]Stats),
	}

	row := s.db.QueryRowContext(ctx,
		`select count(*) filter (where status='completed'), count(*) filter (where status='failed')
		 from transfers where created_at >= $1`, since)
	if err := row.Scan(&sum.Transfers, &sum.Failed); err != nil {
		return Summary{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select asset, count(*), sum(amount) from transfers
		 where created_at >= $1 and status='completed' group by asset`, since)
	if err != nil {
		return Summary{}, err
	}
	if err := scanGrouped(rows, sum.ByAsset); err != nil {
		return Summary{}, err
	}

	rows, err = s.db.QueryContext(ctx,
		`select network, count(*), sum(amount) from transfers
		 where created_at >= $1 and status='completed' group by network`, since)
	if err != nil {
		return Summary{}, err
	}
	if err := scanGrouped(rows, sum.ByNetwork); err != nil {
		return Summary{}, err
	}

	rows, err = s.db.QueryContext(ctx,
		`select to_char(created_at at time zone 'UTC', 'YYYY-MM-DD') as day, count(*), sum(amount)
		 from transfers where created_at >= $1 and status='completed'
		 group by day order by day`, since)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var d DayStats
		if err := rows.Scan(&d.Date, &d.Count, &d.Volume); err != nil {
			return Summary{}, err
		}
		sum.ByDay = append(sum.ByDay, d)
	}
	return sum, rows.Err()
}

func scanGrouped(rows *sql.Rows, dst map[string]Stats) error {
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			st  Stats
		)
		if err := rows.Scan(&key, &st.Count, &st.Volume); err != nil {
			return err
		}
		dst[key] = st
	}
	return rows.Err()
}

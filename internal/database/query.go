package database

import (
	"database/sql"
	"time"
)

const runColumns = `
	id, timestamp, tool, target, status,
	files, dirs, bytes, failures, retries, used_fallback,
	seed, projects, duration_ms, error_message
`

// GetRecentRuns returns the N most recent runs
func (d *HistoryDB) GetRecentRuns(limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + `
	FROM runs
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	return d.queryRuns(query, limit)
}

// GetRunsByTool returns the N most recent runs of one tool
func (d *HistoryDB) GetRunsByTool(tool string, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + `
	FROM runs
	WHERE tool = ?
	ORDER BY timestamp DESC, id DESC
	LIMIT ?
	`

	return d.queryRuns(query, tool, limit)
}

// GetRunsByTarget returns runs whose target matches a path pattern (SQL LIKE syntax)
func (d *HistoryDB) GetRunsByTarget(pattern string) ([]Run, error) {
	query := `SELECT ` + runColumns + `
	FROM runs
	WHERE target LIKE ?
	ORDER BY timestamp DESC, id DESC
	`

	return d.queryRuns(query, pattern)
}

// GetFailures returns the failures recorded for a run
func (d *HistoryDB) GetFailures(runID int64) ([]FailureRecord, error) {
	rows, err := d.db.Query(`
		SELECT id, run_id, path, op, error_message
		FROM run_failures
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FailureRecord
	for rows.Next() {
		var f FailureRecord
		var msg sql.NullString
		if err := rows.Scan(&f.ID, &f.RunID, &f.Path, &f.Op, &msg); err != nil {
			return nil, err
		}
		f.ErrorMessage = msg.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// RunStats holds aggregated statistics for one tool
type RunStats struct {
	Runs      int
	Succeeded int
	Partial   int
	Failed    int
	Files     int64
	Dirs      int64
	Bytes     int64
	Retries   int64
	Fallbacks int
}

// HistoryStats holds aggregated statistics for a time period
type HistoryStats struct {
	ByTool    map[string]*RunStats
	StartDate time.Time
	EndDate   time.Time
}

// GetRunStats returns per-tool statistics for the last N days
func (d *HistoryDB) GetRunStats(days int) (*HistoryStats, error) {
	now := time.Now()
	since := now.AddDate(0, 0, -days)

	stats := &HistoryStats{
		ByTool:    make(map[string]*RunStats),
		StartDate: since,
		EndDate:   now,
	}

	rows, err := d.db.Query(`
		SELECT
			tool,
			COUNT(*),
			COUNT(CASE WHEN status = 'SUCCESS' THEN 1 END),
			COUNT(CASE WHEN status = 'PARTIAL' THEN 1 END),
			COUNT(CASE WHEN status = 'FAILED' THEN 1 END),
			COALESCE(SUM(files), 0),
			COALESCE(SUM(dirs), 0),
			COALESCE(SUM(bytes), 0),
			COALESCE(SUM(retries), 0),
			COALESCE(SUM(used_fallback), 0)
		FROM runs
		WHERE timestamp >= ?
		GROUP BY tool
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var tool string
		s := &RunStats{}
		if err := rows.Scan(&tool, &s.Runs, &s.Succeeded, &s.Partial, &s.Failed,
			&s.Files, &s.Dirs, &s.Bytes, &s.Retries, &s.Fallbacks); err != nil {
			return nil, err
		}
		stats.ByTool[tool] = s
	}

	return stats, rows.Err()
}

// DeleteOldRuns removes runs (and their failures) older than specified days
func (d *HistoryDB) DeleteOldRuns(olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	result, err := d.db.Exec(`DELETE FROM runs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// queryRuns is a helper function to execute queries and scan results
func (d *HistoryDB) queryRuns(query string, args ...interface{}) ([]Run, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var seed, projects sql.NullInt64
		var errMsg sql.NullString

		err := rows.Scan(
			&r.ID, &r.Timestamp, &r.Tool, &r.Target, &r.Status,
			&r.Files, &r.Dirs, &r.Bytes, &r.Failures, &r.Retries, &r.UsedFallback,
			&seed, &projects, &r.DurationMs, &errMsg,
		)
		if err != nil {
			return nil, err
		}

		if seed.Valid {
			v := seed.Int64
			r.Seed = &v
		}
		if projects.Valid {
			v := int(projects.Int64)
			r.Projects = &v
		}
		r.ErrorMessage = errMsg.String

		runs = append(runs, r)
	}

	return runs, rows.Err()
}

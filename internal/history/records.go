package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get for an unknown job.
var ErrNotFound = errors.New("history entry not found")

// Record is one finished conversion.
type Record struct {
	ID           int64     `json:"id"`
	JobID        string    `json:"job_id"`
	SourcePath   string    `json:"source_path"`
	SourceFormat string    `json:"source_format,omitempty"`
	TargetFormat string    `json:"target_format,omitempty"`
	Success      bool      `json:"success"`
	OutputPath   string    `json:"output_path,omitempty"`
	OutputSize   int64     `json:"output_size,omitempty"`
	OutputDigest string    `json:"output_digest,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error,omitempty"`
	Duration     int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListOptions filters List.
type ListOptions struct {
	Limit      int
	FailedOnly bool
	Since      time.Time
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const recordColumns = "id, job_id, source_path, source_format, target_format, success, output_path, output_size, output_digest, error_kind, error_message, duration_ms, created_at"

// Add inserts rec and returns it with ID populated. CreatedAt defaults to now.
func (s *Store) Add(ctx context.Context, rec Record) (Record, error) {
	if strings.TrimSpace(rec.JobID) == "" {
		return Record{}, errors.New("history record requires a job id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	res, err := s.execWithRetry(ctx,
		`INSERT INTO conversions (job_id, source_path, source_format, target_format, success, output_path, output_size, output_digest, error_kind, error_message, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.SourcePath,
		nullableString(rec.SourceFormat),
		nullableString(rec.TargetFormat),
		boolToInt(rec.Success),
		nullableString(rec.OutputPath),
		rec.OutputSize,
		nullableString(rec.OutputDigest),
		nullableString(rec.ErrorKind),
		nullableString(rec.ErrorMessage),
		rec.Duration,
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert history record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Record{}, fmt.Errorf("history record id: %w", err)
	}
	rec.ID = id
	return rec, nil
}

// Get returns the record for jobID.
func (s *Store) Get(ctx context.Context, jobID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM conversions WHERE job_id = ?", jobID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get history record: %w", err)
	}
	return rec, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	query := "SELECT " + recordColumns + " FROM conversions"
	var (
		where []string
		args  []any
	)
	if opts.FailedOnly {
		where = append(where, "success = 0")
	}
	if !opts.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, opts.Since.UTC().Format(timeLayout))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes records created before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM conversions WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

// Summary counts records by outcome.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summarize returns outcome counts over the whole table.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	var sum Summary
	var succeeded sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1), SUM(success) FROM conversions").Scan(&sum.Total, &succeeded)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize history: %w", err)
	}
	sum.Succeeded = int(succeeded.Int64)
	sum.Failed = sum.Total - sum.Succeeded
	return sum, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var (
		rec          Record
		sourceFormat sql.NullString
		targetFormat sql.NullString
		success      int
		outputPath   sql.NullString
		outputDigest sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		createdRaw   string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.SourcePath,
		&sourceFormat,
		&targetFormat,
		&success,
		&outputPath,
		&rec.OutputSize,
		&outputDigest,
		&errorKind,
		&errorMessage,
		&rec.Duration,
		&createdRaw,
	); err != nil {
		return Record{}, err
	}
	rec.SourceFormat = sourceFormat.String
	rec.TargetFormat = targetFormat.String
	rec.Success = success != 0
	rec.OutputPath = outputPath.String
	rec.OutputDigest = outputDigest.String
	rec.ErrorKind = errorKind.String
	rec.ErrorMessage = errorMessage.String
	if created, err := time.Parse(timeLayout, createdRaw); err == nil {
		rec.CreatedAt = created
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

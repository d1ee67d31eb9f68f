package catalog

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateMedia(ctx context.Context, m *Media) error
	GetMedia(ctx context.Context, id string) (*Media, error)
	GetMediaByFilename(ctx context.Context, filename string) (*Media, error)
	ListMedia(ctx context.Context, limit int) ([]*Media, error)
	DeleteMedia(ctx context.Context, id string) error
	CountMedia(ctx context.Context) (int, error)

	CreateExport(ctx context.Context, e *Export) error
	GetExport(ctx context.Context, id string) (*Export, error)
	ListExports(ctx context.Context, limit int) ([]*Export, error)
	UpdateExportStatus(ctx context.Context, id, status, errorMsg string) error
	CompleteExport(ctx context.Context, id string, frames int, filename string, size int64) error
	FailExport(ctx context.Context, id string, exitCode *int, errorMsg string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const mediaColumns = `id, filename, original_name, path, url, size, width, height, duration_seconds, codec, created_at`

func (r *SQLiteRepository) CreateMedia(ctx context.Context, m *Media) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO media (`+mediaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Filename, nullString(m.OriginalName), m.Path, m.URL, m.Size, m.Width, m.Height,
		m.DurationSeconds, nullString(m.Codec), m.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetMedia(ctx context.Context, id string) (*Media, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	return scanMedia(row)
}

func (r *SQLiteRepository) GetMediaByFilename(ctx context.Context, filename string) (*Media, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE filename = ?`, filename)
	return scanMedia(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMedia(row scanner) (*Media, error) {
	var m Media
	var originalName, codec sql.NullString
	var createdAt string

	err := row.Scan(&m.ID, &m.Filename, &originalName, &m.Path, &m.URL, &m.Size, &m.Width, &m.Height,
		&m.DurationSeconds, &codec, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.OriginalName = originalName.String
	m.Codec = codec.String
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

func (r *SQLiteRepository) ListMedia(ctx context.Context, limit int) ([]*Media, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mediaColumns+` FROM media ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var media []*Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

func (r *SQLiteRepository) DeleteMedia(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM media WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) CountMedia(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM media").Scan(&count)
	return count, err
}

const exportColumns = `id, session_id, media_id, status, duration_in_frames, output_filename, output_size, exit_code, error, created_at, updated_at`

func (r *SQLiteRepository) CreateExport(ctx context.Context, e *Export) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exports (`+exportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, nullString(e.SessionID), nullString(e.MediaID), e.Status, e.DurationInFrames,
		nullString(e.OutputFilename), e.OutputSize, nullInt(e.ExitCode), nullString(e.Error),
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetExport(ctx context.Context, id string) (*Export, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+exportColumns+` FROM exports WHERE id = ?`, id)
	return scanExport(row)
}

func scanExport(row scanner) (*Export, error) {
	var e Export
	var sessionID, mediaID, outputFilename, errMsg sql.NullString
	var exitCode sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(&e.ID, &sessionID, &mediaID, &e.Status, &e.DurationInFrames, &outputFilename,
		&e.OutputSize, &exitCode, &errMsg, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.SessionID = sessionID.String
	e.MediaID = mediaID.String
	e.OutputFilename = outputFilename.String
	e.Error = errMsg.String
	if exitCode.Valid {
		code := int(exitCode.Int64)
		e.ExitCode = &code
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &e, nil
}

func (r *SQLiteRepository) ListExports(ctx context.Context, limit int) ([]*Export, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+exportColumns+` FROM exports ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exports []*Export
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, err
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

func (r *SQLiteRepository) UpdateExportStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), now(), id)
	return err
}

func (r *SQLiteRepository) CompleteExport(ctx context.Context, id string, frames int, filename string, size int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports SET status = ?, duration_in_frames = ?, output_filename = ?, output_size = ?,
			exit_code = 0, error = NULL, updated_at = ?
		WHERE id = ?
	`, ExportStatusCompleted, frames, filename, size, now(), id)
	return err
}

func (r *SQLiteRepository) FailExport(ctx context.Context, id string, exitCode *int, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE exports SET status = ?, exit_code = ?, error = ?, updated_at = ? WHERE id = ?
	`, ExportStatusFailed, nullInt(exitCode), nullString(errorMsg), now(), id)
	return err
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/LeventeLantos/sms-inbox/internal/model"
)

const uniqueViolation = "23505"

type PostgresMessageRepo struct {
	db    *sql.DB
	table string
}

// OpenPostgres opens a pool through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresMessageRepo binds the repository to a table. The name is
// quoted as an identifier, so any configured value is safe to interpolate.
func NewPostgresMessageRepo(db *sql.DB, table string) *PostgresMessageRepo {
	if table == "" {
		table = "messages"
	}
	return &PostgresMessageRepo{db: db, table: pgx.Identifier{table}.Sanitize()}
}

func (r *PostgresMessageRepo) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq               BIGSERIAL,
			id                TEXT PRIMARY KEY,
			sender            TEXT NOT NULL,
			recipient         TEXT NOT NULL,
			body              TEXT NOT NULL,
			created_at        TEXT NOT NULL,
			status            TEXT NOT NULL,
			direction         TEXT NOT NULL,
			telavox_ticket_id TEXT
		)
	`, r.table))
	return err
}

const selectColumns = `id, sender, recipient, body, created_at, status, direction, telavox_ticket_id`

func (r *PostgresMessageRepo) List(ctx context.Context, limit int) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM %s
		ORDER BY seq DESC
		LIMIT $1
	`, selectColumns, r.table), normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresMessageRepo) Get(ctx context.Context, id string) (model.Message, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, r.table), id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	return m, err
}

func (r *PostgresMessageRepo) Put(ctx context.Context, m model.Message) error {
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, sender, recipient, body, created_at, status, direction, telavox_ticket_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))
	`, r.table), m.ID, m.From, m.To, m.Message, m.Timestamp, string(m.Status), string(m.Direction), m.TelavoxTicketID)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresMessageRepo) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Message, error) {
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = $2
		WHERE id = $1
		RETURNING %s
	`, r.table, selectColumns), id, string(status))

	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	return m, err
}

func (r *PostgresMessageRepo) AttachTicket(ctx context.Context, id, ticketID string) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET telavox_ticket_id = $2
		WHERE id = $1
	`, r.table), id, ticketID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(s rowScanner) (model.Message, error) {
	var m model.Message
	var status, direction string
	var ticketID sql.NullString

	if err := s.Scan(
		&m.ID,
		&m.From,
		&m.To,
		&m.Message,
		&m.Timestamp,
		&status,
		&direction,
		&ticketID,
	); err != nil {
		return model.Message{}, err
	}

	m.Status = model.Status(status)
	m.Direction = model.Direction(direction)
	if ticketID.Valid {
		m.TelavoxTicketID = ticketID.String
	}
	return m, nil
}

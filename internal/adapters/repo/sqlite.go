package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"tg-movie-bot/internal/domain"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

// SQLite реализует те же репозитории поверх встроенной БД (modernc.org/sqlite).
type SQLite struct {
	db *sql.DB
}

var (
	_ domain.CatalogRepo   = (*SQLite)(nil)
	_ domain.CatalogWriter = (*SQLite)(nil)
	_ domain.UserRepo      = (*SQLite)(nil)
	_ domain.ReactionRepo  = (*SQLite)(nil)
	_ domain.TicketRepo    = (*SQLite)(nil)
	_ domain.RaffleRepo    = (*SQLite)(nil)
)

// NewSQLite создаёт адаптер над открытой БД (см. db.OpenSQLite).
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// EnsureSchema создаёт таблицы, если их нет.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", value, err)
	}
	return t, nil
}

func parseTimePtr(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListMovies реализует domain.CatalogRepo.
func (s *SQLite) ListMovies(ctx context.Context) ([]domain.Movie, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, title, description, link FROM movies ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movies []domain.Movie
	for rows.Next() {
		var m domain.Movie
		if err := rows.Scan(&m.Code, &m.Title, &m.Description, &m.Link); err != nil {
			return nil, err
		}
		movies = append(movies, m)
	}
	return movies, rows.Err()
}

// UpsertMovies реализует domain.CatalogWriter одной транзакцией.
func (s *SQLite) UpsertMovies(ctx context.Context, movies []domain.Movie) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, m := range movies {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO movies (code, title, description, link) VALUES (?, ?, ?, ?)
ON CONFLICT(code) DO UPDATE SET title = excluded.title, description = excluded.description, link = excluded.link
`, m.Code, m.Title, m.Description, m.Link); err != nil {
			return 0, fmt.Errorf("upsert movie %s: %w", m.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(movies), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const sqliteUserColumns = `id, display_name, visit_count, last_active, raffle_opt_in, state, created_at, version`

func scanSQLiteUser(row rowScanner) (domain.User, error) {
	var (
		u          domain.User
		lastActive sql.NullString
		state      string
		createdAt  string
	)
	if err := row.Scan(&u.ID, &u.DisplayName, &u.VisitCount, &lastActive, &u.RaffleOptIn, &state, &createdAt, &u.Version); err != nil {
		return domain.User{}, err
	}
	var err error
	if u.LastActive, err = parseTimePtr(lastActive); err != nil {
		return domain.User{}, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.User{}, err
	}
	if u.State, err = decodeState([]byte(state)); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// GetUser реализует domain.UserRepo.
func (s *SQLite) GetUser(ctx context.Context, id int64) (domain.User, error) {
	u, err := scanSQLiteUser(s.db.QueryRowContext(ctx, `SELECT `+sqliteUserColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}

// PutUser реализует domain.UserRepo.
func (s *SQLite) PutUser(ctx context.Context, u domain.User) (int64, error) {
	state, err := encodeState(u.State)
	if err != nil {
		return 0, err
	}
	var res sql.Result
	if u.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
INSERT INTO users (id, display_name, visit_count, last_active, raffle_opt_in, state, created_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, 1)
ON CONFLICT(id) DO NOTHING
`, u.ID, u.DisplayName, u.VisitCount, formatTimePtr(u.LastActive), u.RaffleOptIn, string(state), formatTime(u.CreatedAt))
	} else {
		res, err = s.db.ExecContext(ctx, `
UPDATE users
SET display_name = ?, visit_count = ?, last_active = ?, raffle_opt_in = ?, state = ?, version = version + 1
WHERE id = ? AND version = ?
`, u.DisplayName, u.VisitCount, formatTimePtr(u.LastActive), u.RaffleOptIn, string(state), u.ID, u.Version)
	}
	if err != nil {
		return 0, err
	}
	n, err := affected(res)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.ErrConflict
	}
	return u.Version + 1, nil
}

// ListUsers реализует domain.UserRepo.
func (s *SQLite) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteUserColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser реализует domain.UserRepo.
func (s *SQLite) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetReactions реализует domain.ReactionRepo.
func (s *SQLite) GetReactions(ctx context.Context, movieCode string) (domain.ReactionRecord, error) {
	var (
		members string
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT members, version FROM reactions WHERE movie_code = ?`, movieCode).Scan(&members, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewReactionRecord(movieCode), nil
	}
	if err != nil {
		return domain.ReactionRecord{}, err
	}
	return decodeMembers(movieCode, []byte(members), version)
}

// PutReactions реализует domain.ReactionRepo.
func (s *SQLite) PutReactions(ctx context.Context, rec domain.ReactionRecord) (int64, error) {
	members, err := encodeMembers(rec)
	if err != nil {
		return 0, err
	}
	var res sql.Result
	if rec.Version == 0 {
		res, err = s.db.ExecContext(ctx, `
INSERT INTO reactions (movie_code, members, version) VALUES (?, ?, 1)
ON CONFLICT(movie_code) DO NOTHING
`, rec.MovieCode, string(members))
	} else {
		res, err = s.db.ExecContext(ctx, `
UPDATE reactions SET members = ?, version = version + 1 WHERE movie_code = ? AND version = ?
`, string(members), rec.MovieCode, rec.Version)
	}
	if err != nil {
		return 0, err
	}
	n, err := affected(res)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, domain.ErrConflict
	}
	return rec.Version + 1, nil
}

// CreateTicket реализует domain.TicketRepo.
func (s *SQLite) CreateTicket(ctx context.Context, t domain.Ticket) error {
	var reply sql.NullString
	if t.AdminReply != nil {
		reply = sql.NullString{String: *t.AdminReply, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO support_tickets (id, user_id, topic, message, answered, admin_reply, created_at, answered_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, t.ID, t.UserID, string(t.Topic), t.Message, t.Answered, reply, formatTime(t.CreatedAt), formatTimePtr(t.AnsweredAt))
	return err
}

const sqliteTicketColumns = `id, user_id, topic, message, answered, admin_reply, created_at, answered_at`

func scanSQLiteTicket(row rowScanner) (domain.Ticket, error) {
	var (
		t          domain.Ticket
		topic      string
		reply      sql.NullString
		createdAt  string
		answeredAt sql.NullString
	)
	if err := row.Scan(&t.ID, &t.UserID, &topic, &t.Message, &t.Answered, &reply, &createdAt, &answeredAt); err != nil {
		return domain.Ticket{}, err
	}
	t.Topic = domain.SupportTopic(topic)
	if reply.Valid {
		text := reply.String
		t.AdminReply = &text
	}
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Ticket{}, err
	}
	if t.AnsweredAt, err = parseTimePtr(answeredAt); err != nil {
		return domain.Ticket{}, err
	}
	return t, nil
}

// LatestOpenTicket реализует domain.TicketRepo.
func (s *SQLite) LatestOpenTicket(ctx context.Context, userID int64) (domain.Ticket, error) {
	t, err := scanSQLiteTicket(s.db.QueryRowContext(ctx, `
SELECT `+sqliteTicketColumns+` FROM support_tickets
WHERE user_id = ? AND answered = 0
ORDER BY created_at DESC
LIMIT 1
`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Ticket{}, domain.ErrNotFound
	}
	return t, err
}

// AnswerTicket реализует domain.TicketRepo.
func (s *SQLite) AnswerTicket(ctx context.Context, id, reply string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE support_tickets SET answered = 1, admin_reply = ?, answered_at = ?
WHERE id = ? AND answered = 0
`, reply, formatTime(at), id)
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpenTickets реализует domain.TicketRepo.
func (s *SQLite) ListOpenTickets(ctx context.Context, limit int) ([]domain.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sqliteTicketColumns+` FROM support_tickets
WHERE answered = 0
ORDER BY created_at
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanSQLiteTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// SaveDraw реализует domain.RaffleRepo.
func (s *SQLite) SaveDraw(ctx context.Context, d domain.RaffleDraw) error {
	participants, err := encodeIDs(d.Participants)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO raffle_draws (period, id, winner_id, participants, drawn_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(period) DO NOTHING
`, d.Period, d.ID, d.WinnerID, string(participants), formatTime(d.DrawnAt))
	if err != nil {
		return err
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (s *SQLite) queryDraw(ctx context.Context, query string, args ...any) (domain.RaffleDraw, error) {
	var (
		d            domain.RaffleDraw
		participants string
		drawnAt      string
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&d.Period, &d.ID, &d.WinnerID, &participants, &drawnAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RaffleDraw{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RaffleDraw{}, err
	}
	if d.Participants, err = decodeIDs([]byte(participants)); err != nil {
		return domain.RaffleDraw{}, fmt.Errorf("участники розыгрыша %s: %w", d.Period, err)
	}
	if d.DrawnAt, err = parseTime(drawnAt); err != nil {
		return domain.RaffleDraw{}, err
	}
	return d, nil
}

// GetDraw реализует domain.RaffleRepo.
func (s *SQLite) GetDraw(ctx context.Context, period string) (domain.RaffleDraw, error) {
	return s.queryDraw(ctx, `SELECT period, id, winner_id, participants, drawn_at FROM raffle_draws WHERE period = ?`, period)
}

// LatestDraw реализует domain.RaffleRepo.
func (s *SQLite) LatestDraw(ctx context.Context) (domain.RaffleDraw, error) {
	return s.queryDraw(ctx, `SELECT period, id, winner_id, participants, drawn_at FROM raffle_draws ORDER BY period DESC LIMIT 1`)
}

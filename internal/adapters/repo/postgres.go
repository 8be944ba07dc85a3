package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tg-movie-bot/internal/domain"
	"tg-movie-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var (
	_ domain.CatalogRepo   = (*Postgres)(nil)
	_ domain.CatalogWriter = (*Postgres)(nil)
	_ domain.UserRepo      = (*Postgres)(nil)
	_ domain.ReactionRepo  = (*Postgres)(nil)
	_ domain.TicketRepo    = (*Postgres)(nil)
	_ domain.RaffleRepo    = (*Postgres)(nil)
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS movies (
	code        TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	link        TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS users (
	id            BIGINT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	visit_count   INTEGER NOT NULL DEFAULT 0,
	last_active   TIMESTAMPTZ,
	raffle_opt_in BOOLEAN NOT NULL DEFAULT FALSE,
	state         JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	version       BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS reactions (
	movie_code TEXT PRIMARY KEY,
	members    JSONB NOT NULL,
	version    BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS support_tickets (
	id          TEXT PRIMARY KEY,
	user_id     BIGINT NOT NULL,
	topic       TEXT NOT NULL,
	message     TEXT NOT NULL,
	answered    BOOLEAN NOT NULL DEFAULT FALSE,
	admin_reply TEXT,
	created_at  TIMESTAMPTZ NOT NULL,
	answered_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS support_tickets_open_idx ON support_tickets (user_id, created_at) WHERE NOT answered;
CREATE TABLE IF NOT EXISTS raffle_draws (
	period       TEXT PRIMARY KEY,
	id           TEXT NOT NULL,
	winner_id    BIGINT NOT NULL,
	participants JSONB NOT NULL,
	drawn_at     TIMESTAMPTZ NOT NULL
);
`

// NewPostgres создаёт адаптер БД. timeout ограничивает запросы без собственного дедлайна.
func NewPostgres(pool *pgxpool.Pool, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Postgres{pool: pool, timeout: timeout}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// EnsureSchema создаёт таблицы, если их нет.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, postgresSchema)
	metrics.ObserveNetworkRequest("postgres", "ensure_schema", "schema", start, err)
	return err
}

// ListMovies реализует domain.CatalogRepo.
func (p *Postgres) ListMovies(ctx context.Context) ([]domain.Movie, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT code, title, description, link FROM movies ORDER BY code`)
	metrics.ObserveNetworkRequest("postgres", "list_movies", "movies", start, err)
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

// UpsertMovies реализует domain.CatalogWriter.
func (p *Postgres) UpsertMovies(ctx context.Context, movies []domain.Movie) (int, error) {
	if len(movies) == 0 {
		return 0, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	batch := &pgx.Batch{}
	for _, m := range movies {
		batch.Queue(`
INSERT INTO movies (code, title, description, link)
VALUES ($1, $2, $3, $4)
ON CONFLICT (code) DO UPDATE SET title = EXCLUDED.title, description = EXCLUDED.description, link = EXCLUDED.link
`, m.Code, m.Title, m.Description, m.Link)
	}
	start := time.Now()
	err := p.pool.SendBatch(ctx, batch).Close()
	metrics.ObserveNetworkRequest("postgres", "upsert_movies", "movies", start, err)
	if err != nil {
		return 0, err
	}
	return len(movies), nil
}

const userColumns = `id, display_name, visit_count, last_active, raffle_opt_in, state, created_at, version`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u     domain.User
		state []byte
	)
	if err := row.Scan(&u.ID, &u.DisplayName, &u.VisitCount, &u.LastActive, &u.RaffleOptIn, &state, &u.CreatedAt, &u.Version); err != nil {
		return domain.User{}, err
	}
	decoded, err := decodeState(state)
	if err != nil {
		return domain.User{}, err
	}
	u.State = decoded
	return u, nil
}

// GetUser реализует domain.UserRepo.
func (p *Postgres) GetUser(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "get_user", "users", start, nil)
		return domain.User{}, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "get_user", "users", start, err)
	return u, err
}

// PutUser реализует domain.UserRepo: вставка при нулевой версии, иначе обновление по версии.
func (p *Postgres) PutUser(ctx context.Context, u domain.User) (int64, error) {
	state, err := encodeState(u.State)
	if err != nil {
		return 0, err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var tag pgconn.CommandTag
	start := time.Now()
	if u.Version == 0 {
		tag, err = p.pool.Exec(ctx, `
INSERT INTO users (id, display_name, visit_count, last_active, raffle_opt_in, state, created_at, version)
VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
ON CONFLICT (id) DO NOTHING
`, u.ID, u.DisplayName, u.VisitCount, u.LastActive, u.RaffleOptIn, string(state), u.CreatedAt)
	} else {
		tag, err = p.pool.Exec(ctx, `
UPDATE users
SET display_name = $2, visit_count = $3, last_active = $4, raffle_opt_in = $5, state = $6, version = version + 1
WHERE id = $1 AND version = $7
`, u.ID, u.DisplayName, u.VisitCount, u.LastActive, u.RaffleOptIn, string(state), u.Version)
	}
	metrics.ObserveNetworkRequest("postgres", "put_user", "users", start, err)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.ErrConflict
	}
	return u.Version + 1, nil
}

// ListUsers реализует domain.UserRepo.
func (p *Postgres) ListUsers(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	metrics.ObserveNetworkRequest("postgres", "list_users", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser реализует domain.UserRepo.
func (p *Postgres) DeleteUser(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "delete_user", "users", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetReactions реализует domain.ReactionRepo. Для фильма без реакций возвращает пустую запись.
func (p *Postgres) GetReactions(ctx context.Context, movieCode string) (domain.ReactionRecord, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	var (
		members []byte
		version int64
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT members, version FROM reactions WHERE movie_code = $1`, movieCode).Scan(&members, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "get_reactions", "reactions", start, nil)
		return domain.NewReactionRecord(movieCode), nil
	}
	metrics.ObserveNetworkRequest("postgres", "get_reactions", "reactions", start, err)
	if err != nil {
		return domain.ReactionRecord{}, err
	}
	return decodeMembers(movieCode, members, version)
}

// PutReactions реализует domain.ReactionRepo.
func (p *Postgres) PutReactions(ctx context.Context, rec domain.ReactionRecord) (int64, error) {
	members, err := encodeMembers(rec)
	if err != nil {
		return 0, err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var tag pgconn.CommandTag
	start := time.Now()
	if rec.Version == 0 {
		tag, err = p.pool.Exec(ctx, `
INSERT INTO reactions (movie_code, members, version) VALUES ($1, $2, 1)
ON CONFLICT (movie_code) DO NOTHING
`, rec.MovieCode, string(members))
	} else {
		tag, err = p.pool.Exec(ctx, `
UPDATE reactions SET members = $2, version = version + 1
WHERE movie_code = $1 AND version = $3
`, rec.MovieCode, string(members), rec.Version)
	}
	metrics.ObserveNetworkRequest("postgres", "put_reactions", "reactions", start, err)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, domain.ErrConflict
	}
	return rec.Version + 1, nil
}

// CreateTicket реализует domain.TicketRepo.
func (p *Postgres) CreateTicket(ctx context.Context, t domain.Ticket) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO support_tickets (id, user_id, topic, message, answered, admin_reply, created_at, answered_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, t.ID, t.UserID, string(t.Topic), t.Message, t.Answered, t.AdminReply, t.CreatedAt, t.AnsweredAt)
	metrics.ObserveNetworkRequest("postgres", "create_ticket", "support_tickets", start, err)
	return err
}

const ticketColumns = `id, user_id, topic, message, answered, admin_reply, created_at, answered_at`

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var (
		t     domain.Ticket
		topic string
	)
	if err := row.Scan(&t.ID, &t.UserID, &topic, &t.Message, &t.Answered, &t.AdminReply, &t.CreatedAt, &t.AnsweredAt); err != nil {
		return domain.Ticket{}, err
	}
	t.Topic = domain.SupportTopic(topic)
	return t, nil
}

// LatestOpenTicket реализует domain.TicketRepo.
func (p *Postgres) LatestOpenTicket(ctx context.Context, userID int64) (domain.Ticket, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	t, err := scanTicket(p.pool.QueryRow(ctx, `
SELECT `+ticketColumns+` FROM support_tickets
WHERE user_id = $1 AND NOT answered
ORDER BY created_at DESC
LIMIT 1
`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "latest_open_ticket", "support_tickets", start, nil)
		return domain.Ticket{}, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "latest_open_ticket", "support_tickets", start, err)
	return t, err
}

// AnswerTicket реализует domain.TicketRepo. Отвеченное обращение повторно не меняется.
func (p *Postgres) AnswerTicket(ctx context.Context, id, reply string, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE support_tickets SET answered = TRUE, admin_reply = $2, answered_at = $3
WHERE id = $1 AND NOT answered
`, id, reply, at)
	metrics.ObserveNetworkRequest("postgres", "answer_ticket", "support_tickets", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpenTickets реализует domain.TicketRepo.
func (p *Postgres) ListOpenTickets(ctx context.Context, limit int) ([]domain.Ticket, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+ticketColumns+` FROM support_tickets
WHERE NOT answered
ORDER BY created_at
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "list_open_tickets", "support_tickets", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tickets []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// SaveDraw реализует domain.RaffleRepo. Второй розыгрыш за период — ErrConflict.
func (p *Postgres) SaveDraw(ctx context.Context, d domain.RaffleDraw) error {
	participants, err := encodeIDs(d.Participants)
	if err != nil {
		return err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO raffle_draws (period, id, winner_id, participants, drawn_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (period) DO NOTHING
`, d.Period, d.ID, d.WinnerID, string(participants), d.DrawnAt)
	metrics.ObserveNetworkRequest("postgres", "save_draw", "raffle_draws", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func scanDraw(row pgx.Row) (domain.RaffleDraw, error) {
	var (
		d            domain.RaffleDraw
		participants []byte
	)
	if err := row.Scan(&d.Period, &d.ID, &d.WinnerID, &participants, &d.DrawnAt); err != nil {
		return domain.RaffleDraw{}, err
	}
	ids, err := decodeIDs(participants)
	if err != nil {
		return domain.RaffleDraw{}, fmt.Errorf("участники розыгрыша %s: %w", d.Period, err)
	}
	d.Participants = ids
	return d, nil
}

// GetDraw реализует domain.RaffleRepo.
func (p *Postgres) GetDraw(ctx context.Context, period string) (domain.RaffleDraw, error) {
	return p.queryDraw(ctx, "get_draw", `SELECT period, id, winner_id, participants, drawn_at FROM raffle_draws WHERE period = $1`, period)
}

// LatestDraw реализует domain.RaffleRepo.
func (p *Postgres) LatestDraw(ctx context.Context) (domain.RaffleDraw, error) {
	return p.queryDraw(ctx, "latest_draw", `SELECT period, id, winner_id, participants, drawn_at FROM raffle_draws ORDER BY period DESC LIMIT 1`)
}

func (p *Postgres) queryDraw(ctx context.Context, op, query string, args ...any) (domain.RaffleDraw, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	d, err := scanDraw(p.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", op, "raffle_draws", start, nil)
		return domain.RaffleDraw{}, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", op, "raffle_draws", start, err)
	return d, err
}

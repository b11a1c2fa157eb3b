// Package sqlite is the durable RoomStore. Membership lives in two
// columns of the room row, so every transition is a single conditional
// UPDATE ... RETURNING and needs no transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Roulette/internal/core"
	"github.com/dkeye/Roulette/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL CHECK (status IN ('waiting', 'chatting', 'inactive')),
	member_a   TEXT,
	member_b   TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	CHECK (member_b IS NULL OR member_a IS NOT NULL)
);
CREATE INDEX IF NOT EXISTS rooms_status_idx ON rooms (status);
CREATE INDEX IF NOT EXISTS rooms_member_a_idx ON rooms (member_a);
CREATE INDEX IF NOT EXISTS rooms_member_b_idx ON rooms (member_b);
`

const returning = ` RETURNING id, status, member_a, member_b`

type Store struct {
	db *sql.DB
}

var _ core.RoomStore = (*Store)(nil)

// Open opens (and migrates) the database at dsn, e.g.
// "file:roulette.db?_busy_timeout=5000&_journal_mode=WAL".
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, unavailable("open", err)
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, unavailable("migrate", err)
	}
	log.Info().Str("module", "store.sqlite").Str("dsn", dsn).Msg("room store ready")
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

func now() int64 { return time.Now().UnixNano() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (domain.Room, error) {
	var (
		id     string
		status string
		a, b   sql.NullString
	)
	if err := row.Scan(&id, &status, &a, &b); err != nil {
		return domain.Room{}, err
	}
	room := domain.Room{ID: domain.RoomID(id), Status: domain.Status(status), Members: []domain.ClientID{}}
	if a.Valid {
		room.Members = append(room.Members, domain.ClientID(a.String))
	}
	if b.Valid {
		room.Members = append(room.Members, domain.ClientID(b.String))
	}
	return room, nil
}

func (s *Store) Create(ctx context.Context, client domain.ClientID) (domain.Room, error) {
	id := domain.NewRoomID()
	ts := now()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO rooms (id, status, member_a, member_b, created_at, updated_at) VALUES (?, 'waiting', ?, NULL, ?, ?)`+returning,
		string(id), string(client), ts, ts)
	room, err := scanRoom(row)
	if err != nil {
		return domain.Room{}, unavailable("create room", err)
	}
	log.Debug().Str("module", "store.sqlite").Str("room", string(id)).Str("client", string(client)).Msg("room created")
	return room, nil
}

func (s *Store) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, status, member_a, member_b FROM rooms WHERE id = ?`, string(id))
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Room{}, unavailable("get room", err)
	}
	return room, nil
}

func (s *Store) queryRooms(ctx context.Context, op, query string, args ...any) ([]domain.Room, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	out := []domain.Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, room)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

const waitingWhere = `status = 'waiting' AND member_a IS NOT NULL AND member_b IS NULL AND member_a <> ?`

func (s *Store) FindOneWaitingExcluding(ctx context.Context, client domain.ClientID, skip ...domain.RoomID) (domain.Room, error) {
	query := `SELECT id, status, member_a, member_b FROM rooms WHERE ` + waitingWhere
	args := []any{string(client)}
	if len(skip) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(`, ?`, len(skip)-1) + `)`
		for _, id := range skip {
			args = append(args, string(id))
		}
	}
	query += ` ORDER BY rowid LIMIT 1`

	rooms, err := s.queryRooms(ctx, "find waiting room", query, args...)
	if err != nil {
		return domain.Room{}, err
	}
	if len(rooms) == 0 {
		return domain.Room{}, domain.ErrNotFound
	}
	return rooms[0], nil
}

func (s *Store) ListWaiting(ctx context.Context, exclude domain.ClientID, limit int) ([]domain.Room, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryRooms(ctx, "list waiting rooms",
		`SELECT id, status, member_a, member_b FROM rooms WHERE `+waitingWhere+` ORDER BY rowid LIMIT ?`,
		string(exclude), limit)
}

func (s *Store) RoomsOf(ctx context.Context, client domain.ClientID) ([]domain.Room, error) {
	return s.queryRooms(ctx, "rooms of client",
		`SELECT id, status, member_a, member_b FROM rooms
		 WHERE status <> 'inactive' AND (member_a = ?1 OR member_b = ?1) ORDER BY rowid`,
		string(client))
}

// conditional runs an UPDATE ... RETURNING. When the precondition fails
// it resolves whether the room exists and returns the current row.
func (s *Store) conditional(ctx context.Context, op string, id domain.RoomID, query string, args ...any) (domain.Room, bool, error) {
	room, err := scanRoom(s.db.QueryRowContext(ctx, query+returning, args...))
	if err == nil {
		return room, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Room{}, false, unavailable(op, err)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Room{}, false, err
	}
	return current, false, nil
}

func (s *Store) TryJoin(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error) {
	room, applied, err := s.conditional(ctx, "try join", id,
		`UPDATE rooms SET member_b = ?1, status = 'chatting', updated_at = ?2
		 WHERE id = ?3 AND status = 'waiting' AND member_a IS NOT NULL AND member_b IS NULL AND member_a <> ?1`,
		string(client), now(), string(id))
	if err != nil {
		return domain.Room{}, err
	}
	if !applied {
		return domain.Room{}, domain.ErrConflict
	}
	return room, nil
}

func (s *Store) Leave(ctx context.Context, id domain.RoomID, client domain.ClientID) (domain.Room, error) {
	// SET expressions see the old row: the remaining member shifts into
	// member_a and the new status follows the old member_b.
	room, _, err := s.conditional(ctx, "leave", id,
		`UPDATE rooms SET
			member_a = CASE WHEN member_a = ?1 THEN member_b ELSE member_a END,
			member_b = NULL,
			status = CASE WHEN member_b IS NULL THEN 'inactive' ELSE 'waiting' END,
			updated_at = ?2
		 WHERE id = ?3 AND (member_a = ?1 OR member_b = ?1)`,
		string(client), now(), string(id))
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *Store) SetStatus(ctx context.Context, id domain.RoomID, status domain.Status) (domain.Room, error) {
	room, applied, err := s.conditional(ctx, "set status", id,
		`UPDATE rooms SET status = ?1, updated_at = ?2
		 WHERE id = ?3 AND ?1 = CASE
			WHEN member_a IS NULL THEN 'inactive'
			WHEN member_b IS NULL THEN 'waiting'
			ELSE 'chatting' END`,
		string(status), now(), string(id))
	if err != nil {
		return domain.Room{}, err
	}
	if !applied {
		return domain.Room{}, domain.ErrConflict
	}
	return room, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

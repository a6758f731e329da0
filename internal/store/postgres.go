// Package store persists room records and the subscription interest list.
// The relay core consumes it through the narrow interfaces in core; the
// administrative HTTP surface uses the full CRUD set.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkeye/Parley/internal/domain"
)

// Postgres is the production store backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS rooms (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            admin_name TEXT NOT NULL,
            started_at TIMESTAMPTZ,
            ended_at TIMESTAMPTZ,
            log_path TEXT
        );
        CREATE TABLE IF NOT EXISTS room_subscribers (
            user_id TEXT NOT NULL,
            room_id BIGINT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            PRIMARY KEY (user_id, room_id)
        );
    `)
	return err
}

func (s *Postgres) CreateRoom(ctx context.Context, name, admin string) (domain.RoomID, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
        INSERT INTO rooms (name, admin_name) VALUES ($1, $2) RETURNING id
    `, name, admin).Scan(&id)
	return domain.RoomID(id), err
}

func (s *Postgres) Room(ctx context.Context, id domain.RoomID) (*domain.Room, error) {
	room := &domain.Room{ID: id}
	err := s.pool.QueryRow(ctx, `
        SELECT name, admin_name, started_at, ended_at, COALESCE(log_path, '')
        FROM rooms WHERE id = $1
    `, int64(id)).Scan(&room.Name, &room.Admin, &room.StartedAt, &room.EndedAt, &room.LogPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Postgres) Rooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, name, admin_name, started_at, ended_at, COALESCE(log_path, '')
        FROM rooms ORDER BY id
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Room
	for rows.Next() {
		var r domain.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Admin, &r.StartedAt, &r.EndedAt, &r.LogPath); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, int64(id))
	return err
}

// SetLogPath records the synthesized transcript path. Immutable once set.
func (s *Postgres) SetLogPath(ctx context.Context, id domain.RoomID, path string) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE rooms SET log_path = $2 WHERE id = $1 AND log_path IS NULL
    `, int64(id), path)
	return err
}

// SetStartedAt marks the room live; a reactivated room gets a fresh start
// time and its end time cleared.
func (s *Postgres) SetStartedAt(ctx context.Context, id domain.RoomID) error {
	_, err := s.pool.Exec(ctx, `
        UPDATE rooms SET started_at = now(), ended_at = NULL WHERE id = $1
    `, int64(id))
	return err
}

func (s *Postgres) SetEndedAt(ctx context.Context, id domain.RoomID) error {
	_, err := s.pool.Exec(ctx, `UPDATE rooms SET ended_at = now() WHERE id = $1`, int64(id))
	return err
}

func (s *Postgres) Subscribe(ctx context.Context, uid domain.UserID, id domain.RoomID) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO room_subscribers (user_id, room_id) VALUES ($1, $2)
        ON CONFLICT (user_id, room_id) DO NOTHING
    `, string(uid), int64(id))
	return err
}

func (s *Postgres) Unsubscribe(ctx context.Context, uid domain.UserID, id domain.RoomID) error {
	_, err := s.pool.Exec(ctx, `
        DELETE FROM room_subscribers WHERE user_id = $1 AND room_id = $2
    `, string(uid), int64(id))
	return err
}

func (s *Postgres) Subscribers(ctx context.Context, id domain.RoomID) ([]domain.UserID, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT user_id FROM room_subscribers WHERE room_id = $1
    `, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.UserID
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, domain.UserID(uid))
	}
	return out, rows.Err()
}

// Package sqlitestore keeps vehicles and operators in a single sqlite file.
// Changes are fanned out in-process, so watchers only see writes made
// through the same Store.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/phuslu/log"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/vehicle"
)

type Store struct {
	// sendMu keeps notifications in commit order.
	sendMu sync.Mutex
	db     *sql.DB
	fanout *store.Fanout
	log    log.Logger
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, fanout: store.NewFanout()}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "sqlitestore").Value()
	err = s.initSchema()
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS last_reported_event (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		event_dt_utc TEXT NOT NULL DEFAULT '',
		lat TEXT NOT NULL DEFAULT '',
		lon TEXT NOT NULL DEFAULT '',
		speed_kmh TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("create last_reported_event: %w", err)
	}
	_, err = s.db.Exec(`CREATE TABLE IF NOT EXISTS operator (
		email TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		suspend_login INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("create operator: %w", err)
	}
	return nil
}

// AddOperator stores an operator with an already hashed password.
func (s *Store) AddOperator(ctx context.Context, email, hash string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO operator (email,password) VALUES (?,?)
	ON CONFLICT (email) DO UPDATE SET password = excluded.password`, email, hash)
	return err
}

// SuspendOperator blocks or unblocks sign in for email.
func (s *Store) SuspendOperator(ctx context.Context, email string, suspend bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operator SET suspend_login = ? WHERE email = ?`, suspend, email)
	return err
}

func (s *Store) SignIn(ctx context.Context, email, password string) error {
	var hashpwd string
	var suspend_login bool
	err := s.db.QueryRowContext(ctx, `SELECT password,suspend_login FROM operator WHERE email = ?`, email).Scan(&hashpwd, &suspend_login)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UserNotFound(email)
	} else if err != nil {
		s.log.Error().Err(err).Msg("error while querying operator")
		return &store.AuthError{Code: store.CodeInternal, Message: err.Error()}
	}
	if suspend_login {
		return store.UserDisabled()
	}
	if bcrypt.CompareHashAndPassword([]byte(hashpwd), []byte(password)) != nil {
		return store.WrongPassword()
	}
	return nil
}

func (s *Store) ReadAll(ctx context.Context) (map[string]vehicle.Fields, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,name,event_dt_utc,lat,lon,speed_kmh FROM last_reported_event`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]vehicle.Fields)
	for rows.Next() {
		var id string
		var f vehicle.Fields
		err := rows.Scan(&id, &f.Name, &f.EventDTUTC, &f.Lat, &f.Lon, &f.SpeedKmh)
		if err != nil {
			return nil, err
		}
		out[id] = f
	}
	return out, rows.Err()
}

func (s *Store) Set(ctx context.Context, id string, f vehicle.Fields) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var prev vehicle.Fields
	err = tx.QueryRowContext(ctx, `SELECT name,event_dt_utc,lat,lon,speed_kmh FROM last_reported_event WHERE id = ?`, id).
		Scan(&prev.Name, &prev.EventDTUTC, &prev.Lat, &prev.Lon, &prev.SpeedKmh)
	existed := true
	if errors.Is(err, sql.ErrNoRows) {
		existed = false
	} else if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO last_reported_event (id,name,event_dt_utc,lat,lon,speed_kmh) VALUES (?,?,?,?,?,?)
	ON CONFLICT (id) DO UPDATE SET name = excluded.name, event_dt_utc = excluded.event_dt_utc,
	lat = excluded.lat, lon = excluded.lon, speed_kmh = excluded.speed_kmh`, id, f.Name, f.EventDTUTC, f.Lat, f.Lon, f.SpeedKmh)
	if err != nil {
		return err
	}
	err = tx.Commit()
	if err != nil {
		return err
	}
	if existed && prev != f {
		s.fanout.Send(store.Change{Key: id, Value: f})
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, fn func(store.Change)) error {
	return s.fanout.Watch(ctx, fn)
}

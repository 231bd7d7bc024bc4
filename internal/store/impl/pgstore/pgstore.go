package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/phuslu/log"
	"golang.org/x/crypto/bcrypt"

	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/vehicle"
)

const notifyChannel = "last_reported_event_changed"

type Store struct {
	db  *pgxpool.Pool
	log log.Logger
}

func NewStore(db *pgxpool.Pool) *Store {
	o := &Store{db: db}
	o.log = log.DefaultLogger
	o.log.Context = log.NewContext(nil).Str("module", "pgstore").Value()
	return o
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS last_reported_event (
		id text PRIMARY KEY,
		name text NOT NULL DEFAULT '',
		event_dt_utc text NOT NULL DEFAULT '',
		lat text NOT NULL DEFAULT '',
		lon text NOT NULL DEFAULT '',
		speed_kmh text NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS operator (
		id bigserial PRIMARY KEY,
		email text UNIQUE NOT NULL,
		"password" text NOT NULL,
		suspend_login boolean NOT NULL DEFAULT false
	)`,
	`CREATE OR REPLACE FUNCTION notify_last_reported_event() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('` + notifyChannel + `', json_build_object(
			'key', NEW.id,
			'value', json_build_object(
				'Name', NEW.name,
				'EventDTUTC', NEW.event_dt_utc,
				'Lat', NEW.lat,
				'Lon', NEW.lon,
				'SpeedKmh', NEW.speed_kmh))::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`CREATE TRIGGER last_reported_event_changed
		AFTER UPDATE ON last_reported_event
		FOR EACH ROW WHEN (OLD.* IS DISTINCT FROM NEW.*)
		EXECUTE PROCEDURE notify_last_reported_event()`,
}

// InitSchema creates tables and the change trigger. Running it twice is
// harmless.
func (st *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		_, err := st.db.Exec(ctx, stmt)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.DuplicateObject {
				continue
			}
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// AddOperator stores an operator with an already hashed password.
func (st *Store) AddOperator(ctx context.Context, email, hash string) error {
	_, err := st.db.Exec(ctx, `INSERT INTO operator (email,"password") VALUES ($1,$2)
	ON CONFLICT (email) DO UPDATE SET "password" = $2`, email, hash)
	return err
}

func (st *Store) SignIn(ctx context.Context, email, password string) error {
	var hashpwd string
	var suspend_login bool
	err := st.db.QueryRow(ctx, `SELECT "password",suspend_login FROM operator WHERE email = $1`, email).Scan(&hashpwd, &suspend_login)
	if err == pgx.ErrNoRows {
		return store.UserNotFound(email)
	} else if err != nil {
		st.log.Error().Err(err).Msg("error while querying operator")
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

func (st *Store) ReadAll(ctx context.Context) (map[string]vehicle.Fields, error) {
	rows, err := st.db.Query(ctx, `SELECT id,name,event_dt_utc,lat,lon,speed_kmh FROM last_reported_event`)
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

func (st *Store) Set(ctx context.Context, id string, f vehicle.Fields) error {
	sqlStmt := `INSERT INTO last_reported_event (id,name,event_dt_utc,lat,lon,speed_kmh) VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (id) DO UPDATE SET name = $2, event_dt_utc = $3, lat = $4, lon = $5, speed_kmh = $6`
	_, err := st.db.Exec(ctx, sqlStmt, id, f.Name, f.EventDTUTC, f.Lat, f.Lon, f.SpeedKmh)
	return err
}

// Watch listens on the trigger channel with a dedicated connection. Each
// notification carries the full new row.
func (st *Store) Watch(ctx context.Context, fn func(store.Change)) error {
	conn, err := st.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()
	_, err = conn.Exec(ctx, "LISTEN "+notifyChannel)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	st.log.Info().Str("channel", notifyChannel).Msg("listening for changes")
	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		c := store.Change{}
		err = json.Unmarshal([]byte(n.Payload), &c)
		if err != nil {
			st.log.Error().Err(err).Str("payload", n.Payload).Msg("bad change payload")
			continue
		}
		st.log.Trace().Str("vehicle_id", c.Key).Msg("change received")
		fn(c)
	}
}

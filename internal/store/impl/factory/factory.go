package factory

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"nuha.dev/fleetmap/internal/config"
	"nuha.dev/fleetmap/internal/store"
	"nuha.dev/fleetmap/internal/store/impl/memstore"
	"nuha.dev/fleetmap/internal/store/impl/pgstore"
	"nuha.dev/fleetmap/internal/store/impl/sqlitestore"
	"nuha.dev/fleetmap/internal/util"
)

// CrossProcess reports whether writes through driver reach watchers in
// other processes. Only postgres notifications leave the process.
func CrossProcess(driver string) bool {
	return driver == "postgres"
}

// Open builds the store selected by db_driver. SQL stores get their schema
// and, when operator_email is set, the operator account.
func Open(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.DbDriver {
	case "postgres":
		pool, err := pgxpool.Connect(ctx, cfg.DbUrl)
		if err != nil {
			return nil, err
		}
		st := pgstore.NewStore(pool)
		err = st.InitSchema(ctx)
		if err != nil {
			return nil, err
		}
		if cfg.OperatorEmail != "" {
			err = st.AddOperator(ctx, cfg.OperatorEmail, util.CryptPwd(cfg.OperatorPassword))
			if err != nil {
				return nil, err
			}
		}
		return st, nil
	case "sqlite":
		st, err := sqlitestore.Open(cfg.SqlitePath)
		if err != nil {
			return nil, err
		}
		if cfg.OperatorEmail != "" {
			err = st.AddOperator(ctx, cfg.OperatorEmail, util.CryptPwd(cfg.OperatorPassword))
			if err != nil {
				return nil, err
			}
		}
		return st, nil
	default:
		st := memstore.New(memstore.Operator{Email: cfg.OperatorEmail, Hash: []byte(util.CryptPwd(cfg.OperatorPassword))})
		if cfg.SeedFile != "" {
			err := st.SeedFile(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
		}
		return st, nil
	}
}

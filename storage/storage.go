// Package storage opens the repositories of the configured database engine.
package storage

import (
	"database/sql"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/staff"
	"github.com/trezcool/academia/storage/database"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

type Store struct {
	DB          core.Transactor
	AccountRepo account.Repository
	StaffRepo   staff.Repository
	closer      func() error
}

func (s *Store) Close() error { return s.closer() }

// Open returns the in-memory store when conf.Database.Engine is "memory".
// Otherwise it creates the PostgreSQL role and database if needed, then applies pending migrations.
func Open(conf *core.Config, logger core.Logger) (*Store, error) {
	if conf.Database.Engine == core.EngineMemory {
		logger.Info("using the in-memory database: data is lost on exit")
		return NewMemoryStore(inmemdb.Open()), nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	sqlDB, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return NewSQLStore(sqlDB), nil
}

// NewSQLStore wraps an open PostgreSQL connection pool. Closing the Store closes the pool.
func NewSQLStore(sqlDB *sql.DB) *Store {
	db := sqlxrepos.NewStore(sqlDB)
	return &Store{
		DB:          db,
		AccountRepo: sqlxrepos.NewAccountRepository(db),
		StaffRepo:   sqlxrepos.NewStaffRepository(db),
		closer:      db.Close,
	}
}

func NewMemoryStore(db *inmemdb.DB) *Store {
	return &Store{
		DB:          db,
		AccountRepo: inmemdb.NewAccountRepository(db),
		StaffRepo:   inmemdb.NewStaffRepository(db),
		closer:      db.Close,
	}
}

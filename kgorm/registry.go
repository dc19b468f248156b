// Package kgorm stores casbin rules in relational databases through GORM.
//
// Importing the package registers the sqlite, postgres and mysql providers
// with the store registry:
//
//	s, err := store.Open(ctx, "postgres", dsn, store.Options{AutoMigrate: true})
//
// Existing connections can be wrapped directly with NewRepository.
package kgorm

import (
	"context"

	"github.com/getkayan/kcasbin/store"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DialectorOpener is an alias for a function that returns a gorm.Dialector for a given DSN.
type DialectorOpener = func(string) gorm.Dialector

func init() {
	store.Register("sqlite", Opener(sqlite.Open))
	store.Register("postgres", Opener(postgres.Open))
	store.Register("mysql", Opener(mysql.Open))
}

// Opener adapts a GORM dialector to a store.Opener.
func Opener(dial DialectorOpener) store.Opener {
	return func(ctx context.Context, dsn string, opts store.Options) (store.Store, error) {
		db, err := gorm.Open(dial(dsn), &gorm.Config{
			Logger: gormLogger(opts.Logger),
		})
		if err != nil {
			return nil, err
		}

		repo := NewRepository(db, opts.Schema)
		if err := repo.Ping(ctx); err != nil {
			_ = repo.Close()
			return nil, err
		}
		return repo, nil
	}
}

// gormLogger keeps GORM quiet unless the adapter logs at debug level.
func gormLogger(log *zap.Logger) gormlogger.Interface {
	if log != nil && log.Core().Enabled(zap.DebugLevel) {
		return gormlogger.Default.LogMode(gormlogger.Info)
	}
	return gormlogger.Default.LogMode(gormlogger.Silent)
}

package kgorm

import (
	"context"
	"sync"

	"github.com/getkayan/kcasbin/rule"
	"github.com/getkayan/kcasbin/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 500

// Repository implements store.Store on top of GORM.
type Repository struct {
	db     *gorm.DB
	schema rule.Schema

	// inTx marks repositories handed out by Transaction; they share the
	// parent's connection and must not close it.
	inTx bool

	closeOnce sync.Once
	closeErr  error
}

// NewRepository wraps an existing GORM connection. An empty schema table
// falls back to rule.DefaultTable.
func NewRepository(db *gorm.DB, schema rule.Schema) *Repository {
	if schema.Table == "" {
		schema = rule.NewSchema("")
	}
	return &Repository{db: db, schema: schema}
}

// DB returns the underlying connection.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Schema returns the table description the repository uses.
func (r *Repository) Schema() rule.Schema {
	return r.schema
}

func (r *Repository) table(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.schema.Table)
}

// AutoMigrate creates or updates the rule table.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.table(ctx).AutoMigrate(&gormCasbinRule{})
}

// Find returns the rules matching the pattern ordered by id.
func (r *Repository) Find(ctx context.Context, p rule.Pattern) ([]rule.Rule, error) {
	var rows []gormCasbinRule
	query := r.applyPattern(r.table(ctx), p)
	if err := query.Order(r.schema.ID.Name).Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make([]rule.Rule, len(rows))
	for i := range rows {
		result[i] = toCoreRule(&rows[i])
	}
	return result, nil
}

// Insert writes the rules in batched INSERT statements.
func (r *Repository) Insert(ctx context.Context, rules ...rule.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	rows := make([]gormCasbinRule, len(rules))
	for i, rl := range rules {
		rows[i] = fromCoreRule(rl)
	}
	return r.table(ctx).CreateInBatches(&rows, insertBatchSize).Error
}

// Delete issues one DELETE for the pattern.
func (r *Repository) Delete(ctx context.Context, p rule.Pattern) (int64, error) {
	query := r.applyPattern(r.table(ctx), p)
	if p.IsEmpty() {
		// GORM refuses unconditioned deletes.
		query = query.Where("1 = 1")
	}

	res := query.Delete(&gormCasbinRule{})
	return res.RowsAffected, res.Error
}

// Transaction runs fn inside a database transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, schema: r.schema, inTx: true})
	})
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	if r.inTx {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool once.
func (r *Repository) Close() error {
	if r.inTx {
		return nil
	}
	r.closeOnce.Do(func() {
		sqlDB, err := r.db.DB()
		if err != nil {
			r.closeErr = err
			return
		}
		r.closeErr = sqlDB.Close()
	})
	return r.closeErr
}

// applyPattern adds one equality per constrained column.
func (r *Repository) applyPattern(query *gorm.DB, p rule.Pattern) *gorm.DB {
	conds := p.Conditions(r.schema)
	if len(conds) == 0 {
		return query
	}

	exprs := make([]clause.Expression, 0, len(conds))
	for _, c := range conds {
		exprs = append(exprs, clause.Eq{Column: clause.Column{Name: c.Column}, Value: c.Value})
	}
	return query.Clauses(clause.Where{Exprs: exprs})
}

// Compile-time interface check
var (
	_ store.Store    = (*Repository)(nil)
	_ store.Migrator = (*Repository)(nil)
)

// Package dbpool owns one connection pool per configured database target.
package dbpool

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/tinytelemetry/amiharvest/internal/model"
)

// Pools maps database target ids to their pools. Pools connect lazily; an
// unreachable target surfaces on first insert, not at startup.
type Pools struct {
	byID map[string]*sqlx.DB
}

// Open creates one pool per target. A duplicate target id is a fatal
// configuration condition.
func Open(targets []model.DatabaseTarget) (*Pools, error) {
	byID := make(map[string]*sqlx.DB, len(targets))
	for _, tgt := range targets {
		if _, dup := byID[tgt.ID]; dup {
			closeAll(byID)
			return nil, fmt.Errorf("dbpool: duplicate database id %q", tgt.ID)
		}
		db, err := sqlx.Open("mysql", dsn(tgt))
		if err != nil {
			closeAll(byID)
			return nil, fmt.Errorf("dbpool: open database %q: %w", tgt.ID, err)
		}
		byID[tgt.ID] = db
	}
	return &Pools{byID: byID}, nil
}

func dsn(tgt model.DatabaseTarget) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		tgt.User, tgt.Password, tgt.Host, tgt.Port, tgt.Database)
}

// Get returns the pool for one target id.
func (p *Pools) Get(id string) (*sqlx.DB, bool) {
	db, ok := p.byID[id]
	return db, ok
}

// ByID returns the full id-to-pool map for wiring the rule engine.
func (p *Pools) ByID() map[string]*sqlx.DB {
	return p.byID
}

// Close closes every pool.
func (p *Pools) Close() {
	closeAll(p.byID)
	p.byID = nil
}

func closeAll(byID map[string]*sqlx.DB) {
	for _, db := range byID {
		db.Close()
	}
}

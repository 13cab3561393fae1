// Package rules matches incoming events against configured mapping rules
// and executes one parameterized insert per match.
package rules

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/tinytelemetry/amiharvest/internal/model"
)

// Execer is the narrow database contract the engine needs. *sqlx.DB
// satisfies it; tests substitute a recorder.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Engine evaluates mapping rules against incoming messages. Every rule's
// database id must resolve in dbs; configuration validation guarantees
// this before the engine is built.
type Engine struct {
	rules []model.MappingRule
	dbs   map[string]Execer
}

// NewEngine creates an engine over the given rules and per-target-id
// database handles.
func NewEngine(rules []model.MappingRule, dbs map[string]Execer) *Engine {
	return &Engine{rules: rules, dbs: dbs}
}

// Apply executes the insert for every rule whose event name equals the
// message's Event header. Rules are independent: an execution failure is
// logged with the target id and table and the remaining rules still run.
func (e *Engine) Apply(source string, msg *model.Message) {
	event, ok := msg.Event()
	if !ok {
		return
	}
	for _, r := range e.rules {
		if r.Event != event {
			continue
		}
		query, args := BuildInsert(r, source, msg)
		if _, err := e.dbs[r.DatabaseID].Exec(query, args...); err != nil {
			log.Printf("rules: insert into %s (database %q): %v", r.Table, r.DatabaseID, err)
		}
	}
}

// BuildInsert assembles the parameterized statement for one rule and the
// bind values for one event, in the rule's declared column order. Table
// and column names come from trusted configuration and are the only text
// concatenated into the statement; all values are bound. A field whose
// header is absent binds nil, which the driver sends as SQL NULL.
func BuildInsert(r model.MappingRule, source string, msg *model.Message) (string, []any) {
	cols := make([]string, 0, len(r.Columns))
	marks := make([]string, 0, len(r.Columns))
	args := make([]any, 0, len(r.Columns))
	for _, c := range r.Columns {
		cols = append(cols, c.Column)
		marks = append(marks, "?")
		args = append(args, c.Source.Resolve(source, msg))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.Table, strings.Join(cols, ","), strings.Join(marks, ","))
	return query, args
}

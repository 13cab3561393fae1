package rules

import (
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/tinytelemetry/amiharvest/internal/model"
)

type execCall struct {
	query string
	args  []any
}

type fakeDB struct {
	calls []execCall
	err   error
}

func (f *fakeDB) Exec(query string, args ...any) (sql.Result, error) {
	f.calls = append(f.calls, execCall{query: query, args: args})
	return nil, f.err
}

func dialRule() model.MappingRule {
	return model.MappingRule{
		Event:      "Dial",
		DatabaseID: "calls-db",
		Table:      "calls",
		Columns: []model.ColumnMapping{
			{Source: model.FromSourceIdentity(), Column: "server_col"},
			{Source: model.FromHeader("Channel"), Column: "chan_col"},
		},
	}
}

func dialMessage() *model.Message {
	return &model.Message{Headers: map[string]string{"Event": "Dial", "Channel": "SIP/100"}}
}

func TestBuildInsert_OrderedColumnsAndIdentity(t *testing.T) {
	t.Parallel()

	query, args := BuildInsert(dialRule(), "serverA", dialMessage())

	if want := "INSERT INTO calls (server_col,chan_col) VALUES (?,?)"; query != want {
		t.Fatalf("query = %q, want %q", query, want)
	}
	if want := []any{"serverA", "SIP/100"}; !reflect.DeepEqual(args, want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
}

func TestBuildInsert_MissingHeaderBindsNull(t *testing.T) {
	t.Parallel()

	r := dialRule()
	r.Columns = append(r.Columns, model.ColumnMapping{
		Source: model.FromHeader("CallerID"),
		Column: "caller_col",
	})

	query, args := BuildInsert(r, "serverA", dialMessage())

	if want := "INSERT INTO calls (server_col,chan_col,caller_col) VALUES (?,?,?)"; query != want {
		t.Fatalf("query = %q, want %q", query, want)
	}
	if len(args) != 3 {
		t.Fatalf("args = %v, want 3 values", args)
	}
	if args[2] != nil {
		t.Fatalf("missing header bound %v, want nil", args[2])
	}
}

func TestApply_MatchIsExactAndCaseSensitive(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	e := NewEngine([]model.MappingRule{dialRule()}, map[string]Execer{"calls-db": db})

	e.Apply("serverA", &model.Message{Headers: map[string]string{"Event": "dial"}})
	e.Apply("serverA", &model.Message{Headers: map[string]string{"Event": "DialEnd"}})
	e.Apply("serverA", &model.Message{Headers: map[string]string{"Response": "Success"}})

	if len(db.calls) != 0 {
		t.Fatalf("executed %d inserts, want 0", len(db.calls))
	}

	e.Apply("serverA", dialMessage())
	if len(db.calls) != 1 {
		t.Fatalf("executed %d inserts, want 1", len(db.calls))
	}
}

func TestApply_RulesExecuteIndependently(t *testing.T) {
	t.Parallel()

	failing := &fakeDB{err: errors.New("connection refused")}
	working := &fakeDB{}

	audit := model.MappingRule{
		Event:      "Dial",
		DatabaseID: "audit-db",
		Table:      "audit",
		Columns: []model.ColumnMapping{
			{Source: model.FromHeader("Channel"), Column: "channel"},
		},
	}
	e := NewEngine(
		[]model.MappingRule{dialRule(), audit},
		map[string]Execer{"calls-db": failing, "audit-db": working},
	)

	e.Apply("serverA", dialMessage())

	if len(failing.calls) != 1 {
		t.Fatalf("failing target executed %d inserts, want 1", len(failing.calls))
	}
	if len(working.calls) != 1 {
		t.Fatalf("second rule executed %d inserts, want 1 despite first rule failing", len(working.calls))
	}
	if want := []any{"SIP/100"}; !reflect.DeepEqual(working.calls[0].args, want) {
		t.Fatalf("second rule args = %v, want %v", working.calls[0].args, want)
	}
}

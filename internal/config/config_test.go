package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/amiharvest/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
basic:
  target-directory: /var/log/amiharvest/
  directory-per-server: true
servers:
  - name: serverA
    host: pbx-a.internal
    port: 5038
    username: harvest
    password: s3cret
  - name: serverB
    host: pbx-b.internal
    port: 5038
    username: harvest
    password: s3cret
    reconnect: false
databases:
  - id: calls-db
    host: db.internal
    port: 3306
    user: harvest
    password: s3cret
    database: pbx
rules:
  - event: Dial
    database: calls-db
    table: calls
    columns:
      - { from: "%SERVER_NAME%", to: server_col }
      - { from: Channel, to: chan_col }
`

func TestLoad_ParsesAndNormalizes(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Generated {
		t.Error("Generated set for an existing file")
	}
	if got := cfg.Basic.TargetDirectory; got != "/var/log/amiharvest" {
		t.Errorf("target directory = %q, want trailing slash stripped", got)
	}
	if !cfg.Basic.DirectoryPerServer {
		t.Error("directory-per-server = false, want true")
	}
	if got := cfg.Runtime.ReconnectMinBackoff; got != time.Second {
		t.Errorf("reconnect-min-backoff = %v, want default 1s", got)
	}
	if got := cfg.Runtime.APIAddr; got != "127.0.0.1:3000" {
		t.Errorf("api-addr = %q, want default", got)
	}

	eps := cfg.Endpoints()
	if len(eps) != 2 {
		t.Fatalf("endpoints = %d, want 2", len(eps))
	}
	if !eps[0].Reconnect {
		t.Error("serverA reconnect = false, want default true")
	}
	if eps[1].Reconnect {
		t.Error("serverB reconnect = true, want configured false")
	}
}

func TestLoad_MappingRuleConversion(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	mrs := cfg.MappingRules()
	if len(mrs) != 1 {
		t.Fatalf("rules = %d, want 1", len(mrs))
	}
	r := mrs[0]
	if r.Event != "Dial" || r.DatabaseID != "calls-db" || r.Table != "calls" {
		t.Fatalf("rule = %+v, want Dial/calls-db/calls", r)
	}
	if len(r.Columns) != 2 {
		t.Fatalf("columns = %d, want 2", len(r.Columns))
	}
	if _, headerBacked := r.Columns[0].Source.Header(); headerBacked {
		t.Error("first column resolves a header, want source identity")
	}
	if name, headerBacked := r.Columns[1].Source.Header(); !headerBacked || name != "Channel" {
		t.Errorf("second column source = (%q, %v), want Channel header", name, headerBacked)
	}

	msg := &model.Message{Headers: map[string]string{"Event": "Dial", "Channel": "SIP/100"}}
	if got := r.Columns[0].Source.Resolve("serverA", msg); got != "serverA" {
		t.Errorf("identity column resolved %v, want serverA", got)
	}
}

func TestLoad_GeneratesExampleOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
	if !cfg.Generated {
		t.Error("Generated = false, want true")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("example file not written: %v", err)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Name != "example" {
		t.Errorf("servers = %+v, want the documented example server", cfg.Servers)
	}
	if cfg.Basic.TargetDirectory != "events" {
		t.Errorf("target directory = %q, want events", cfg.Basic.TargetDirectory)
	}

	// The generated file must itself load cleanly on the next run.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("Load generated file: %v", err)
	}
	if again.Generated {
		t.Error("second load still reports Generated")
	}
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "duplicate server name",
			body: `
basic: {target-directory: events}
servers:
  - {name: serverA, host: a.internal, port: 5038}
  - {name: serverA, host: b.internal, port: 5038}
`,
			want: "duplicate server name",
		},
		{
			name: "duplicate database id",
			body: `
basic: {target-directory: events}
databases:
  - {id: db1, host: a.internal, port: 3306}
  - {id: db1, host: b.internal, port: 3306}
`,
			want: "duplicate database id",
		},
		{
			name: "rule references unknown database",
			body: `
basic: {target-directory: events}
databases:
  - {id: db1, host: a.internal, port: 3306}
rules:
  - event: Dial
    database: nope
    table: calls
    columns: [{from: Channel, to: chan_col}]
`,
			want: "unknown database id",
		},
		{
			name: "rule without columns",
			body: `
basic: {target-directory: events}
databases:
  - {id: db1, host: a.internal, port: 3306}
rules:
  - {event: Dial, database: db1, table: calls}
`,
			want: "at least one column",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("Load succeeded, want validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want %q", err, tc.want)
			}
		})
	}
}

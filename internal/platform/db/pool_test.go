package db

import "testing"

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig("postgres://u:p@localhost:5432/caseload", 8, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxConns != 8 || cfg.MinConns != 2 {
		t.Errorf("expected 8/2 conns, got %d/%d", cfg.MaxConns, cfg.MinConns)
	}
	params := cfg.ConnConfig.RuntimeParams
	if params["application_name"] != ApplicationName {
		t.Errorf("expected application_name %q, got %q", ApplicationName, params["application_name"])
	}
	if params["timezone"] != "UTC" {
		t.Errorf("expected UTC session time zone, got %q", params["timezone"])
	}
}

func TestPoolConfig_KeepsExplicitApplicationName(t *testing.T) {
	cfg, err := poolConfig("postgres://u:p@localhost:5432/caseload?application_name=reports", 4, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := cfg.ConnConfig.RuntimeParams["application_name"]; got != "reports" {
		t.Errorf("expected application_name from the url, got %q", got)
	}
}

func TestPoolConfig_Rejects(t *testing.T) {
	if _, err := poolConfig("postgres://localhost:%zz/caseload", 4, 1); err == nil {
		t.Error("expected parse error")
	}
	if _, err := poolConfig("postgres://localhost/caseload", 2, 4); err == nil {
		t.Error("expected error when min conns exceed max conns")
	}
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"nifty-strangler/internal/config"
	errs "nifty-strangler/internal/errors"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("STRANGLER_DB_PATH", filepath.Join(home, "test.db"))

	root, app := NewRootCmd()
	defer app.Close()

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", filepath.Join(home, "cfg")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "--json", "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %q", out)
	}
	if got["version"] != Version {
		t.Errorf("version = %q, want %q", got["version"], Version)
	}
}

func TestStrikeCommand(t *testing.T) {
	out, err := execute(t, "strike", "22000", "3", "0.22", "CE")
	if err != nil {
		t.Fatalf("strike error = %v", err)
	}
	if !strings.Contains(out, "ATM:    22000") || !strings.Contains(out, "Strike: ") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestGreeksRejectsBadInput(t *testing.T) {
	if _, err := execute(t, "greeks", "22000", "22300", "3", "XX"); err == nil {
		t.Error("greeks accepted an unknown option type")
	}
	if _, err := execute(t, "greeks", "22000", "abc", "3", "CE"); err == nil {
		t.Error("greeks accepted a non-numeric strike")
	}
	if _, err := execute(t, "iv", "85"); err == nil {
		t.Error("iv accepted missing arguments")
	}
}

func TestTradesEmptyDatabase(t *testing.T) {
	out, err := execute(t, "trades")
	if err != nil {
		t.Fatalf("trades error = %v", err)
	}
	if !strings.Contains(out, "No trades recorded") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestBuildGatewayLiveNeedsCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Trading.Mode = "live"
	_, err := buildGateway(cfg, runOptions{}, zerolog.Nop())
	if !errors.Is(err, errs.ErrNotAuthenticated) {
		t.Fatalf("buildGateway() error = %v, want ErrNotAuthenticated", err)
	}
}

func TestBuildGatewayPaperWithoutCredentials(t *testing.T) {
	cfg := config.Default()
	set, err := buildGateway(cfg, runOptions{paperSpot: 22000}, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildGateway() error = %v", err)
	}
	if set.guarded == nil || set.kite != nil || set.stream != nil {
		t.Errorf("unexpected gateway set %+v", set)
	}
	spot, err := set.guarded.SpotPrice(context.Background())
	if err != nil || spot != 22000 {
		t.Errorf("SpotPrice() = %.2f, %v", spot, err)
	}
}

func TestTableRender(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	out := &Output{writer: &buf}

	table := NewTable(out, "ID", "STATUS")
	table.AddRow("1", "OPEN")
	table.AddRow("12", "CLOSED")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if lines[0] != "ID  STATUS" || lines[1] != "--  ------" || lines[3] != "12  CLOSED" {
		t.Errorf("unexpected table:\n%s", buf.String())
	}
}

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/danmuck/pgplink/internal/protocol/routing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "link.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
device = "/dev/pgpcard_2"
routing_profile = "address"
link_config = 0x01301200

[data_mask]
vcs = 0x3
lanes = 0x0F

[[lanes]]
index = 0
run_opcode = 0x20
run_delay = 4
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Device != "/dev/pgpcard_2" {
		t.Fatalf("device = %q", cfg.Device)
	}
	profile, err := cfg.Profile()
	if err != nil || profile != routing.ProfileAddress {
		t.Fatalf("profile = %v, %v", profile, err)
	}
	if cfg.LinkConfig != 0x01301200 {
		t.Fatalf("link_config = %#x", cfg.LinkConfig)
	}
	if cfg.MaxRxWords != 2048 {
		t.Fatalf("max_rx_words default lost: %d", cfg.MaxRxWords)
	}
	mask := cfg.Mask()
	if mask.VCs != 0x3 || mask.Lanes != 0x0F {
		t.Fatalf("mask = %+v", mask)
	}
	if len(cfg.Lanes) != 1 || cfg.Lanes[0].RunOpCode != 0x20 {
		t.Fatalf("lanes = %+v", cfg.Lanes)
	}
}

func TestLoadEmptyFileGivesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadRejectsUnknownProfile(t *testing.T) {
	if _, err := Load(writeConfig(t, `routing_profile = "bogus"`)); err == nil {
		t.Fatalf("expected profile error")
	}
}

func TestLoadRejectsLaneIndexOutOfRange(t *testing.T) {
	body := `
[[lanes]]
index = 12
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatalf("expected lane range error")
	}
}

func TestBackoffSectionConversion(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[send_retry]
initial_delay_us = 10
max_delay_us = 5000
multiplier = 2.0
max_attempts = 16
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	b := cfg.Backoff()
	if b.MaxAttempts != 16 {
		t.Fatalf("max attempts = %d", b.MaxAttempts)
	}
	if b.InitialDelay.Microseconds() != 10 {
		t.Fatalf("initial delay = %v", b.InitialDelay)
	}
}

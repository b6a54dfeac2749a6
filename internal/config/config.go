// Package config loads the per-deployment link configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/pgplink/internal/evr"
	"github.com/danmuck/pgplink/internal/link"
	"github.com/danmuck/pgplink/internal/pgp"
	"github.com/danmuck/pgplink/internal/protocol/routing"
)

// Lane programs one lane's EVR opcode and delay settings.
type Lane struct {
	Index        uint8  `toml:"index"`
	RunOpCode    uint32 `toml:"run_opcode"`
	AcceptOpCode uint32 `toml:"accept_opcode"`
	RunDelay     uint32 `toml:"run_delay"`
	AcceptDelay  uint32 `toml:"accept_delay"`
}

// DataMask is the destination-mask section.
type DataMask struct {
	VCs   uint8 `toml:"vcs"`
	Lanes uint8 `toml:"lanes"`
}

// SendRetry bounds the synchronous busy-retry loop.
type SendRetry struct {
	InitialDelayUS int64   `toml:"initial_delay_us"`
	MaxDelayUS     int64   `toml:"max_delay_us"`
	Multiplier     float64 `toml:"multiplier"`
	Jitter         bool    `toml:"jitter"`
	MaxAttempts    int     `toml:"max_attempts"`
}

// Link is one link's full configuration.
type Link struct {
	Device         string    `toml:"device"`
	RoutingProfile string    `toml:"routing_profile"`
	LinkConfig     uint32    `toml:"link_config"`
	MaxRxWords     int       `toml:"max_rx_words"`
	DataMask       DataMask  `toml:"data_mask"`
	SendRetry      SendRetry `toml:"send_retry"`
	Lanes          []Lane    `toml:"lanes"`
}

// Profile returns the parsed routing profile.
func (l Link) Profile() (routing.Profile, error) {
	return routing.ParseProfile(l.RoutingProfile)
}

// Mask returns the destination mask as the channel consumes it.
func (l Link) Mask() pgp.DataMask {
	return pgp.DataMask{VCs: l.DataMask.VCs, Lanes: l.DataMask.Lanes}
}

// Backoff converts the retry section into the transport's bounds.
func (l Link) Backoff() link.BackoffConfig {
	if l.SendRetry == (SendRetry{}) {
		return link.DefaultBackoff()
	}
	return link.BackoffConfig{
		InitialDelay: time.Duration(l.SendRetry.InitialDelayUS) * time.Microsecond,
		MaxDelay:     time.Duration(l.SendRetry.MaxDelayUS) * time.Microsecond,
		Multiplier:   l.SendRetry.Multiplier,
		Jitter:       l.SendRetry.Jitter,
		MaxAttempts:  l.SendRetry.MaxAttempts,
	}
}

// Load reads and validates a link configuration file, overlaying the
// defaults for keys the file leaves out.
func Load(path string) (Link, error) {
	cfg := Default()

	var raw Link
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Link{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if meta.IsDefined("device") {
		cfg.Device = raw.Device
	}
	if meta.IsDefined("routing_profile") {
		cfg.RoutingProfile = raw.RoutingProfile
	}
	if meta.IsDefined("link_config") {
		cfg.LinkConfig = raw.LinkConfig
	}
	if meta.IsDefined("max_rx_words") {
		cfg.MaxRxWords = raw.MaxRxWords
	}
	if meta.IsDefined("data_mask") {
		cfg.DataMask = raw.DataMask
	}
	if meta.IsDefined("send_retry") {
		cfg.SendRetry = raw.SendRetry
	}
	if meta.IsDefined("lanes") {
		cfg.Lanes = raw.Lanes
	}

	if err := Validate(cfg); err != nil {
		return Link{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when a key is absent.
func Default() Link {
	return Link{
		Device:         "/dev/pgpcard_0",
		RoutingProfile: "linkconfig",
		MaxRxWords:     2048,
		DataMask:       DataMask{VCs: 0b0001, Lanes: 0b00000001},
	}
}

// Validate rejects configurations the transports cannot serve.
func Validate(cfg Link) error {
	if cfg.Device == "" {
		return fmt.Errorf("config: device path required")
	}
	if _, err := routing.ParseProfile(cfg.RoutingProfile); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.MaxRxWords <= 0 {
		return fmt.Errorf("config: max_rx_words must be positive, got %d", cfg.MaxRxWords)
	}
	if cfg.DataMask.VCs == 0 && cfg.DataMask.Lanes == 0 {
		return fmt.Errorf("config: data mask must select at least one vc and lane")
	}
	for i, lane := range cfg.Lanes {
		if lane.Index >= evr.Lanes {
			return fmt.Errorf("config: lanes[%d] index %d out of range (max %d)",
				i, lane.Index, evr.Lanes-1)
		}
	}
	return nil
}

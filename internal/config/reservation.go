package config

import (
	"fmt"
	"time"
)

// ReservationConfig tunes the reservation engine and the expiry reaper.
type ReservationConfig struct {
	HoldTTL        time.Duration // lifetime of a new hold
	ReaperEnabled  bool          // run the background reaper in the server
	ReaperInterval time.Duration // period between reaper sweeps
	CodeAttempts   int           // ticket code candidates tried per hold
}

// LoadReservationConfig reads HOLD_TTL, REAPER_ENABLED, REAPER_INTERVAL and
// TICKET_CODE_ATTEMPTS.  Unset or unparsable values fall back to the
// defaults; values that parse but make no sense are rejected.
func LoadReservationConfig() (ReservationConfig, error) {
	cfg := ReservationConfig{
		HoldTTL:        envDur("HOLD_TTL", 5*time.Minute),
		ReaperEnabled:  envBool("REAPER_ENABLED", true),
		ReaperInterval: envDur("REAPER_INTERVAL", 60*time.Second),
		CodeAttempts:   envInt("TICKET_CODE_ATTEMPTS", 10),
	}
	if cfg.HoldTTL < time.Second {
		return cfg, fmt.Errorf("HOLD_TTL must be at least 1s, got %s", cfg.HoldTTL)
	}
	if cfg.ReaperInterval <= 0 {
		return cfg, fmt.Errorf("REAPER_INTERVAL must be positive, got %s", cfg.ReaperInterval)
	}
	if cfg.CodeAttempts < 1 {
		return cfg, fmt.Errorf("TICKET_CODE_ATTEMPTS must be positive, got %d", cfg.CodeAttempts)
	}
	return cfg, nil
}

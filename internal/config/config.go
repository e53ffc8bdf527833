// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
)

type Config struct {
	Agent  AgentConfig   `yaml:"agent"`
	Probes []ProbeConfig `yaml:"probes"`
}

// ---- AGENT ----

type AgentConfig struct {
	LogLevel string         `yaml:"log_level"` // debug | info | warn | error
	WakeLock WakeLockConfig `yaml:"wake_lock"`
	Journal  *JournalConfig `yaml:"journal"` // optional, opt-in
}

// Wake lock modes.
const (
	WakeLockNone  = "none"
	WakeLockSysfs = "sysfs"
)

type WakeLockConfig struct {
	Mode string `yaml:"mode"` // sysfs | none
	Dir  string `yaml:"dir"`  // sysfs control directory
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

// ---- PROBE ----

type ProbeConfig struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`

	// Passive probes are only enabled; their sinks take whatever data
	// other consumers cause them to produce.
	Passive bool `yaml:"passive"`

	// Config is handed verbatim to the probe. Only keys the probe type
	// declares are used.
	Config map[string]any `yaml:"config"`

	Targets        []TargetConfig `yaml:"targets"`
	Status         *StatusConfig  `yaml:"status"` // optional, opt-in
	Journal        bool           `yaml:"journal"`
	WriteTimeoutMs int            `yaml:"write_timeout_ms"`
}

// ---- READ GEOMETRY ----

// ReadConfig mirrors one entry of a register probe's "reads" list.
type ReadConfig struct {
	FC       uint8  `yaml:"fc" json:"fc"`
	Address  uint16 `yaml:"address" json:"address"`
	Quantity uint16 `yaml:"quantity" json:"quantity"`
}

// Reads decodes the read geometry from the probe config, if any.
func (p ProbeConfig) Reads() ([]ReadConfig, error) {
	v, ok := p.Config["reads"]
	if !ok || v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("probe %q: reads: %w", p.ID, err)
	}
	var out []ReadConfig
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("probe %q: reads: %w", p.ID, err)
	}
	return out, nil
}

// ---- TARGET ----

type TargetConfig struct {
	ID       uint32         `yaml:"id"`
	Endpoint string         `yaml:"endpoint"`
	UnitID   uint8          `yaml:"unit_id"`
	Memories []MemoryConfig `yaml:"memories"`
}

type MemoryConfig struct {
	MemoryID uint16         `yaml:"memory_id"`
	Offsets  map[int]uint16 `yaml:"offsets"` // delta map; missing FC => 0
}

// ---- STATUS ----

type StatusConfig struct {
	Endpoint   string `yaml:"endpoint"`
	UnitID     uint8  `yaml:"unit_id"`
	Slot       uint16 `yaml:"slot"`
	DeviceName string `yaml:"device_name"`
}

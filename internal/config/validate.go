// internal/config/validate.go
package config

import (
	"fmt"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}

	type span struct {
		start uint32
		end   uint32
		probe string
	}

	// ------------------------------------------------------------
	// AGENT VALIDATION
	// ------------------------------------------------------------

	switch cfg.Agent.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent: unknown log_level %q", cfg.Agent.LogLevel)
	}

	switch cfg.Agent.WakeLock.Mode {
	case "", WakeLockNone, WakeLockSysfs:
	default:
		return fmt.Errorf("agent: unknown wake_lock.mode %q", cfg.Agent.WakeLock.Mode)
	}

	// ------------------------------------------------------------
	// PROBE IDENTITY VALIDATION
	// ------------------------------------------------------------

	ids := make(map[string]bool, len(cfg.Probes))
	for _, p := range cfg.Probes {
		if p.ID == "" {
			return fmt.Errorf("probe: id required")
		}
		if ids[p.ID] {
			return fmt.Errorf("probe %q: duplicate id", p.ID)
		}
		ids[p.ID] = true

		if p.Type == "" {
			return fmt.Errorf("probe %q: type required", p.ID)
		}
		if p.Journal && cfg.Agent.Journal == nil {
			return fmt.Errorf("probe %q: journal is set but agent.journal is not configured", p.ID)
		}
		for _, t := range p.Targets {
			if t.Endpoint == "" {
				return fmt.Errorf("probe %q: target %d has no endpoint", p.ID, t.ID)
			}
		}
	}

	// ------------------------------------------------------------
	// DEVICE STATUS BLOCK VALIDATION (OPT-IN)
	// ------------------------------------------------------------

	// key = endpoint | unit_id | slot
	statusOwner := make(map[string]string)

	for _, p := range cfg.Probes {
		// status is opt-in
		if p.Status == nil {
			continue
		}
		st := p.Status

		// device_name sanity (ASCII only)
		for i := 0; i < len(st.DeviceName); i++ {
			if st.DeviceName[i] > 0x7F {
				return fmt.Errorf(
					"probe %q: device_name must contain ASCII characters only",
					p.ID,
				)
			}
		}

		if st.Endpoint == "" {
			return fmt.Errorf("probe %q: status is set but has no endpoint", p.ID)
		}

		key := fmt.Sprintf("%s|%d|%d", st.Endpoint, st.UnitID, st.Slot)
		if prev, exists := statusOwner[key]; exists {
			return fmt.Errorf(
				"status slot collision: endpoint=%s unit_id=%d slot=%d used by probes %q and %q",
				st.Endpoint,
				st.UnitID,
				st.Slot,
				prev,
				p.ID,
			)
		}
		statusOwner[key] = p.ID
	}

	// ------------------------------------------------------------
	// DESTINATION MEMORY GEOMETRY VALIDATION
	// ------------------------------------------------------------

	// key = endpoint | memory_id | fc
	spans := make(map[string][]span)

	for _, p := range cfg.Probes {
		if len(p.Targets) == 0 {
			continue
		}

		reads, err := p.Reads()
		if err != nil {
			return err
		}

		for _, t := range p.Targets {
			for _, m := range t.Memories {
				for _, r := range reads {
					if r.Quantity == 0 {
						return fmt.Errorf("probe %q: read fc=%d addr=%d has zero quantity", p.ID, r.FC, r.Address)
					}

					offset := uint16(0)
					if m.Offsets != nil {
						if v, ok := m.Offsets[int(r.FC)]; ok {
							offset = v
						}
					}

					start := uint32(offset) + uint32(r.Address)
					end := start + uint32(r.Quantity) - 1
					if end > 0xFFFF {
						return fmt.Errorf(
							"probe %q: endpoint=%s memory_id=%d fc=%d range=%d-%d exceeds address space",
							p.ID, t.Endpoint, m.MemoryID, r.FC, start, end,
						)
					}

					key := fmt.Sprintf("%s|%d|%d", t.Endpoint, m.MemoryID, r.FC)

					existing := spans[key]
					for _, s := range existing {
						// overlap check (inclusive)
						if !(end < s.start || start > s.end) {
							return fmt.Errorf(
								"memory overlap: endpoint=%s memory_id=%d fc=%d range=%d-%d overlaps with probe=%s range=%d-%d",
								t.Endpoint,
								m.MemoryID,
								r.FC,
								start,
								end,
								s.probe,
								s.start,
								s.end,
							)
						}
					}

					spans[key] = append(spans[key], span{
						start: start,
						end:   end,
						probe: p.ID,
					})
				}
			}
		}
	}

	return nil
}

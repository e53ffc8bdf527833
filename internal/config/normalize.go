// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultLogLevel       = "info"
	DefaultWakeLockMode   = WakeLockNone
	DefaultWakeLockDir    = "/sys/power"
	DefaultWriteTimeoutMs = 1000
	DefaultJournalPath    = "probed-journal.db"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// AGENT DEFAULTS
	// ------------------------------------------------------------

	if cfg.Agent.LogLevel == "" {
		cfg.Agent.LogLevel = DefaultLogLevel
	}
	if cfg.Agent.WakeLock.Mode == "" {
		cfg.Agent.WakeLock.Mode = DefaultWakeLockMode
	}
	if cfg.Agent.WakeLock.Mode == WakeLockSysfs && cfg.Agent.WakeLock.Dir == "" {
		cfg.Agent.WakeLock.Dir = DefaultWakeLockDir
	}
	if cfg.Agent.Journal != nil && cfg.Agent.Journal.Path == "" {
		cfg.Agent.Journal.Path = DefaultJournalPath
	}

	for pi := range cfg.Probes {
		p := &cfg.Probes[pi]

		if p.WriteTimeoutMs <= 0 {
			p.WriteTimeoutMs = DefaultWriteTimeoutMs
		}

		// ------------------------------------------------------------
		// DEVICE STATUS BLOCK NORMALIZATION (OPT-IN)
		// ------------------------------------------------------------

		// Skip probes that did not opt in
		if p.Status == nil {
			continue
		}

		// Normalize device_name:
		// - ASCII already validated
		// - Truncate to max 16 characters
		if len(p.Status.DeviceName) > 16 {
			p.Status.DeviceName = p.Status.DeviceName[:16]
		}
	}
}

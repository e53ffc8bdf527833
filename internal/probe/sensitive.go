// internal/probe/sensitive.go
package probe

import (
	"crypto/sha256"
	"encoding/hex"
)

// HideSensitiveDataKey is the base configurable field every probe has.
const HideSensitiveDataKey = "hide_sensitive_data"

// SensitiveData returns a one-way digest of s unless the probe is
// configured with hide_sensitive_data=false. normalize, if given, runs
// first so equal values hash equally.
func (b *Base) SensitiveData(s string, normalize ...func(string) string) string {
	b.mu.Lock()
	hide := b.hideSensitive
	b.mu.Unlock()
	if !hide {
		return s
	}
	for _, fn := range normalize {
		s = fn(s)
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// internal/probe/identity.go
package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gowebpki/jcs"
)

// Scheme is the URI scheme of every probe address.
const Scheme = "probe"

// ErrInvalidAddress is returned when a string is not a probe address.
var ErrInvalidAddress = errors.New("probe: invalid address")

// Address identifies a probe type together with one configuration.
// Config holds the canonical JSON text, or "" when no configuration
// was given. Two addresses are equal iff their String forms are equal.
type Address struct {
	TypeName string
	Config   string
}

// NewAddress builds the canonical address for typeName and cfg.
// Keys are sorted at every nesting level (RFC 8785), so configs that
// differ only in key order produce the same address.
func NewAddress(typeName string, cfg Config) (Address, error) {
	if err := validateTypeName(typeName); err != nil {
		return Address{}, err
	}
	if cfg == nil {
		return Address{TypeName: typeName}, nil
	}
	text, err := Canonicalize(cfg)
	if err != nil {
		return Address{}, err
	}
	return Address{TypeName: typeName, Config: text}, nil
}

// Canonicalize returns the canonical JSON text of cfg.
func Canonicalize(cfg Config) (string, error) {
	raw, err := json.Marshal(map[string]any(cfg))
	if err != nil {
		return "", fmt.Errorf("probe: marshal config: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("probe: canonicalize config: %w", err)
	}
	return string(out), nil
}

// ParseAddress is the inverse of Address.String.
func ParseAddress(s string) (Address, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return Address{}, fmt.Errorf("%w: %q: scheme is not %q", ErrInvalidAddress, s, Scheme)
	}
	if err := validateTypeName(u.Host); err != nil {
		return Address{}, fmt.Errorf("%w: %q", err, s)
	}

	a := Address{TypeName: u.Host}
	if strings.HasPrefix(u.Path, "/") {
		a.Config = u.Path[1:]
	}
	return a, nil
}

// String renders probe://<type-name>[/<config>]. The config segment is
// percent-encoded where URI syntax requires it.
func (a Address) String() string {
	u := url.URL{Scheme: Scheme, Host: a.TypeName}
	if a.Config != "" {
		u.Path = "/" + a.Config
	}
	return u.String()
}

// DecodeConfig parses the config text. It returns nil when the address
// carries no configuration.
func (a Address) DecodeConfig() (Config, error) {
	if a.Config == "" {
		return nil, nil
	}
	var cfg Config
	if err := json.Unmarshal([]byte(a.Config), &cfg); err != nil {
		return nil, fmt.Errorf("%w: config text: %v", ErrInvalidAddress, err)
	}
	return cfg, nil
}

// validateTypeName keeps type names usable as a URI authority.
func validateTypeName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty type name", ErrInvalidAddress)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.' || c == '-' || c == '_':
		default:
			return fmt.Errorf("%w: type name %q contains %q", ErrInvalidAddress, name, c)
		}
	}
	return nil
}

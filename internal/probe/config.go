// internal/probe/config.go
package probe

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Field declares one configurable value of a probe: the name it is
// configured under and how to read and write the backing variable.
type Field struct {
	name string
	get  func() any
	set  func(v any) error
}

// Var declares ptr as configurable under name. Values are converted to
// T the way encoding/json would decode them.
func Var[T any](name string, ptr *T) Field {
	return Field{
		name: name,
		get:  func() any { return *ptr },
		set: func(v any) error {
			raw, err := json.Marshal(v)
			if err != nil {
				return err
			}
			var out T
			if err := json.Unmarshal(raw, &out); err != nil {
				return err
			}
			*ptr = out
			return nil
		},
	}
}

// Name returns the configuration key of the field.
func (f Field) Name() string { return f.name }

// binder owns the declared schema and the two configuration views.
// Callers hold Base.mu.
type binder struct {
	fields   []Field
	defaults map[string]any // normalized snapshot taken before any config

	specified Config // nil until configured
	complete  Config // cache
}

func newBinder(fields []Field, logger *slog.Logger) *binder {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.name == "" {
			panic("probe: configurable field without a name")
		}
		if seen[f.name] {
			panic(fmt.Sprintf("probe: configurable field %q declared twice", f.name))
		}
		seen[f.name] = true
	}

	b := &binder{
		fields:   fields,
		defaults: make(map[string]any, len(fields)),
	}
	for _, f := range fields {
		v, err := normalize(f.get())
		if err != nil {
			logger.Error("probe: default value is not serializable",
				"field", f.name,
				"error", err,
			)
			continue
		}
		b.defaults[f.name] = v
	}
	return b
}

// bind resets every field to its default, then applies cfg.
// Unknown keys are ignored. A value that does not convert is logged and
// the field keeps its previous value, which stays in the specified view
// if it was specified before.
func (b *binder) bind(cfg Config, logger *slog.Logger) {
	b.complete = nil
	prev := b.specified

	if cfg == nil {
		b.specified = nil
	} else {
		b.specified = Config{}
	}

	for _, f := range b.fields {
		if def, ok := b.defaults[f.name]; ok {
			if err := f.set(def); err != nil {
				logger.Error("probe: restore default failed", "field", f.name, "error", err)
			}
		}
		if cfg == nil {
			continue
		}

		v, ok := cfg[f.name]
		if !ok {
			continue
		}
		norm, err := normalize(v)
		if err == nil {
			err = f.set(norm)
		}
		if err != nil {
			logger.Warn("probe: config value rejected, keeping previous value",
				"field", f.name,
				"value", fmt.Sprint(v),
				"error", err,
			)
			if old, had := prev[f.name]; had {
				if err := f.set(old); err == nil {
					b.specified[f.name] = old
				}
			}
			continue
		}
		b.specified[f.name] = norm
	}
}

// specifiedView returns a copy of the explicitly set keys.
func (b *binder) specifiedView() Config {
	if b.specified == nil {
		return Config{}
	}
	return b.specified.Clone()
}

// completeView reads back every field. The result is cached until the
// next bind.
func (b *binder) completeView(logger *slog.Logger) Config {
	if b.complete == nil {
		complete := make(Config, len(b.fields))
		for _, f := range b.fields {
			v, err := normalize(f.get())
			if err != nil {
				logger.Error("probe: field value is not serializable", "field", f.name, "error", err)
				continue
			}
			complete[f.name] = v
		}
		b.complete = complete
	}
	return b.complete.Clone()
}

package config

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"github.com/shuldan/eventbus/pkg/contracts"
)

// MapConfig resolves dotted keys ("eventbus.drivers.redis.address") against
// nested maps. Getters coerce between the scalar types that YAML, JSON and
// environment loaders produce.
type MapConfig struct {
	values map[string]any
}

var _ contracts.Config = (*MapConfig)(nil)

func (c *MapConfig) Has(key string) bool {
	_, ok := c.find(key)
	return ok
}

func (c *MapConfig) Get(key string) any {
	value, _ := c.find(key)
	return value
}

func (c *MapConfig) GetString(key string, defaultVal ...string) string {
	v, ok := c.find(key)
	switch {
	case !ok:
		return first(defaultVal)
	case v == nil:
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (c *MapConfig) GetInt(key string, defaultVal ...int) int {
	v, ok := c.find(key)
	if !ok {
		return first(defaultVal)
	}
	n, ok := asInt64(v)
	if !ok || n < math.MinInt || n > math.MaxInt {
		return first(defaultVal)
	}
	return int(n)
}

func (c *MapConfig) GetInt64(key string, defaultVal ...int64) int64 {
	v, ok := c.find(key)
	if !ok {
		return first(defaultVal)
	}
	if n, ok := asInt64(v); ok {
		return n
	}
	return first(defaultVal)
}

func (c *MapConfig) GetFloat64(key string, defaultVal ...float64) float64 {
	v, ok := c.find(key)
	if !ok {
		return first(defaultVal)
	}
	if f, ok := asFloat64(v); ok {
		return f
	}
	return first(defaultVal)
}

func (c *MapConfig) GetBool(key string, defaultVal ...bool) bool {
	v, ok := c.find(key)
	if !ok {
		return first(defaultVal)
	}
	if b, ok := asBool(v); ok {
		return b
	}
	return first(defaultVal)
}

// GetStringSlice accepts lists or a separated string (comma by default).
func (c *MapConfig) GetStringSlice(key string, separator ...string) []string {
	v, ok := c.find(key)
	if !ok || v == nil {
		return nil
	}

	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		sep := ","
		if len(separator) > 0 {
			sep = separator[0]
		}
		parts := strings.Split(val, sep)
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return parts
	}
	return []string{fmt.Sprint(v)}
}

func (c *MapConfig) GetSub(key string) (contracts.Config, bool) {
	v, ok := c.find(key)
	if !ok {
		return nil, false
	}
	section, ok := asSection(v)
	if !ok {
		return nil, false
	}
	return NewMapConfig(section), true
}

func (c *MapConfig) All() map[string]any {
	return maps.Clone(c.values)
}

func (c *MapConfig) find(path string) (any, bool) {
	var current any = c.values
	for _, k := range strings.Split(path, ".") {
		section, ok := asSection(current)
		if !ok {
			return nil, false
		}
		if current, ok = section[k]; !ok {
			return nil, false
		}
	}
	return current, true
}

// asSection normalises the map shapes the decoders produce.
func asSection(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case float64:
		if n < math.MinInt64 || n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int:
		return b != 0, true
	case int64:
		return b != 0, true
	case float64:
		return b != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "on", "yes", "y":
			return true, true
		case "false", "0", "off", "no", "n":
			return false, true
		}
	}
	return false, false
}

func first[T any](values []T) T {
	var zero T
	if len(values) > 0 {
		return values[0]
	}
	return zero
}

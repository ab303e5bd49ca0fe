package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvConfigLoader maps PREFIX_A__B=value to the key a.b. Values that parse
// as bool, int or float are stored typed.
type EnvConfigLoader struct {
	prefix string
}

func (l *EnvConfigLoader) Load() (map[string]any, error) {
	prefix := l.prefix
	if prefix != "" && !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	values := make(map[string]any)
	for _, env := range os.Environ() {
		name, raw, found := strings.Cut(env, "=")
		if !found || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := envKey(strings.TrimPrefix(name, prefix))
		if key == "" {
			continue
		}
		setNested(values, key, typedEnvValue(raw))
	}
	return values, nil
}

func envKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

func typedEnvValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// setNested writes value under a dotted key, replacing scalars that stand
// in the way of a section.
func setNested(m map[string]any, key string, value any) {
	keys := strings.Split(key, ".")
	current := m
	for _, k := range keys[:len(keys)-1] {
		next, ok := current[k].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[k] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
}

package config

import (
	"os"

	"github.com/goccy/go-yaml"
)

type YamlConfigLoader struct {
	paths []string
}

func (l *YamlConfigLoader) Load() (map[string]any, error) {
	for _, path := range l.paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var config map[string]any
		if err = yaml.UnmarshalWithOptions(data, &config, yaml.UseJSONUnmarshaler()); err != nil {
			return nil, ErrParseYAML.
				WithDetail("path", path).
				WithDetail("reason", err.Error()).
				WithCause(err)
		}
		if config == nil {
			config = make(map[string]any)
		}

		return config, nil
	}

	return nil, ErrNoConfigSource.WithDetail("loader", "yaml")
}

package config

import "github.com/shuldan/eventbus/pkg/contracts"

var _ Loader = (*EnvConfigLoader)(nil)
var _ Loader = (*YamlConfigLoader)(nil)
var _ Loader = (*JSONConfigLoader)(nil)
var _ Loader = (*ChainLoader)(nil)
var _ Loader = (*TemplatedLoader)(nil)

func NewEnvConfigLoader(prefix string) Loader {
	return &EnvConfigLoader{prefix: prefix}
}

func NewYamlConfigLoader(paths ...string) *YamlConfigLoader {
	return &YamlConfigLoader{paths: paths}
}

func NewJSONConfigLoader(paths ...string) *JSONConfigLoader {
	return &JSONConfigLoader{paths: paths}
}

func NewChainLoader(loaders ...Loader) Loader {
	return &ChainLoader{loaders: loaders}
}

func NewMapConfig(values map[string]any) contracts.Config {
	if values == nil {
		values = make(map[string]any)
	}
	return &MapConfig{values: values}
}

// Load reads the given YAML/JSON files, overlays variables starting with
// envPrefix and renders {{ }} templates.
func Load(envPrefix string, paths ...string) (contracts.Config, error) {
	loader := NewTemplatedLoader(NewChainLoader(
		NewYamlConfigLoader(paths...),
		NewJSONConfigLoader(paths...),
		NewEnvConfigLoader(envPrefix),
	))

	values, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return NewMapConfig(values), nil
}

package config

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saiset-co/sai-assets/types"
)

// Parser resolves dotted paths against the raw YAML document so components
// can read sections that ServiceConfig does not model.
type Parser struct {
	data map[string]interface{}
}

func NewParser(data map[string]interface{}) *Parser {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &Parser{data: data}
}

func (p *Parser) GetValue(path string, defaultValue interface{}) interface{} {
	value := p.navigateToPath(path)
	if value == nil {
		return defaultValue
	}
	return value
}

func (p *Parser) GetAs(path string, target interface{}) error {
	value := p.navigateToPath(path)
	if value == nil {
		return types.Errorf(types.ErrConfigNotFound, "path: %s", path)
	}

	valueBytes, err := yaml.Marshal(value)
	if err != nil {
		return types.WrapError(err, "failed to marshal config value")
	}

	if err = yaml.Unmarshal(valueBytes, target); err != nil {
		return types.WrapError(err, "failed to unmarshal config value")
	}

	return nil
}

func (p *Parser) GetAllPaths() []string {
	var paths []string
	collectPaths("", p.data, &paths)
	sort.Strings(paths)
	return paths
}

func collectPaths(prefix string, node interface{}, paths *[]string) {
	m, ok := node.(map[string]interface{})
	if !ok {
		if prefix != "" {
			*paths = append(*paths, prefix)
		}
		return
	}

	for key, value := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		collectPaths(path, value, paths)
	}
}

func (p *Parser) navigateToPath(path string) interface{} {
	if path == "" {
		return p.data
	}

	parts := strings.Split(path, ".")
	var current interface{} = p.data

	for _, part := range parts {
		switch v := current.(type) {
		case map[string]interface{}:
			val, exists := v[part]
			if !exists {
				return nil
			}
			current = val
		case map[interface{}]interface{}:
			val, exists := v[part]
			if !exists {
				return nil
			}
			current = val
		default:
			return nil
		}

		if current == nil {
			return nil
		}
	}

	return current
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StoredKeys is the flat key set kept at the top level of the global config file.
type StoredKeys struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// ReadStoredKeys 读取全局配置文件中的扁平键值；文件不存在时返回空 map
// ReadStoredKeys reads the flat top-level values of the config file; a missing file yields an empty map
func ReadStoredKeys(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	var root map[string]any
	if err := json.Unmarshal(stripJSONComments(data), &root); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if root == nil {
		root = map[string]any{}
	}
	return root, nil
}

// WriteStoredKeys 将非空的 API key 写入配置文件，保留其他字段；目录不存在则创建
// WriteStoredKeys writes the non-empty API keys into the config file, keeping other fields; creates the dir if needed
func WriteStoredKeys(path string, keys StoredKeys) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("config path is empty")
	}
	root, err := ReadStoredKeys(path)
	if err != nil {
		return err
	}
	if v := strings.TrimSpace(keys.OpenAIAPIKey); v != "" {
		root["OPENAI_API_KEY"] = v
	}
	if v := strings.TrimSpace(keys.AnthropicAPIKey); v != "" {
		root["ANTHROPIC_API_KEY"] = v
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// MaskSecret keeps the first half of value and stars out the rest.
func MaskSecret(value string) string {
	runes := []rune(value)
	visible := len(runes) / 2
	return string(runes[:visible]) + strings.Repeat("*", len(runes)-visible)
}

// DescribeStored renders the stored flat values as "KEY: value" lines, masking *_KEY entries.
func DescribeStored(root map[string]any) []string {
	keys := make([]string, 0, len(root))
	for k := range root {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		var value string
		switch v := root[k].(type) {
		case string:
			value = v
			if strings.HasSuffix(k, "_KEY") {
				value = MaskSecret(v)
			}
		default:
			data, _ := json.Marshal(v)
			value = string(data)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", k, value))
	}
	return lines
}

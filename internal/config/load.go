package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/charmbracelet/log"
	"github.com/titanous/json5"
)

// Load reads <name>.<ext> and <name>.local.<ext> (both optional, local wins)
// on top of DefaultConfig. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var file Config
	found, err := readFile(path, &file)
	if err != nil {
		return nil, err
	}

	localPath := localName(path)
	var local Config
	ok, err := readFile(localPath, &local)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := mergo.Merge(&file, local, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge %s: %w", localPath, err)
		}
		log.Debug("merged local config overrides", "local", localPath)
		found = true
	}

	if !found {
		return nil, fmt.Errorf("config %s: %w", path, os.ErrNotExist)
	}

	if err := mergo.Merge(cfg, file, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}
	return cfg, nil
}

func readFile(path string, out *Config) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}
	if err := decodeJSON5(data, out); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	return true, nil
}

// decodeJSON5 parses relaxed JSON and re-decodes it strictly so that custom
// unmarshalers such as Duration apply.
func decodeJSON5(data []byte, out any) error {
	var raw any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return err
	}
	canonical, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(canonical, out)
}

func localName(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, stem+".local"+ext)
}

package config

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/KirkDiggler/pinball-core/internal/errors"
	"github.com/KirkDiggler/pinball-core/internal/modes"
)

// LoadModes decodes every *.yaml and *.yml file in dir into a mode config.
// A file without mode.name is named after the file. Files are returned in
// name order.
func LoadModes(dir string) ([]*modes.Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read modes directory %s", dir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	configs := make([]*modes.Config, 0, len(files))
	for _, name := range files {
		cfg, err := LoadMode(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	log.Printf("Config: Loaded %d mode files from %s", len(configs), dir)
	return configs, nil
}

// LoadMode decodes a single mode file
func LoadMode(path string) (*modes.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read mode file %s", path)
	}

	base := filepath.Base(path)
	cfg := modes.NewConfig(strings.TrimSuffix(base, filepath.Ext(base)))
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "failed to parse mode file "+path).
			WithMeta("file", path)
	}
	if cfg.Mode.Name == "" {
		cfg.Mode.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return cfg, nil
}

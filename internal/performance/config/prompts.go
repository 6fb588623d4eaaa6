package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadPrompts returns the corpus: inline prompts followed by those in the
// prompts file. Blank entries are skipped.
func LoadPrompts(p PromptsConfig) ([]string, error) {
	var out []string
	for _, s := range p.Inline {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}

	if p.File != "" {
		fromFile, err := ReadPromptsFile(p.File)
		if err != nil {
			return nil, err
		}
		out = append(out, fromFile...)
	}
	return out, nil
}

// ReadPromptsFile reads prompts from path. ".json", ".yaml" and ".yml" files
// hold a list of strings; anything else is read one prompt per line.
func ReadPromptsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var list []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse JSON prompts %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse YAML prompts %s: %w", path, err)
		}
	default:
		sc := bufio.NewScanner(bytes.NewReader(data))
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for sc.Scan() {
			list = append(list, sc.Text())
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("failed to read prompts %s: %w", path, err)
		}
	}

	out := list[:0]
	for _, s := range list {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Copyright 2025 The DBQ Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

type fileFormat int

const (
	formatYAML fileFormat = iota
	formatJSON
)

func formatFromPath(path string) (fileFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".json":
		return formatJSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Store is a config document addressable by dot separated key paths such as
// "dataset.data_path". Updates are written back to the file it was loaded from.
type Store struct {
	path   string
	format fileFormat

	mu  sync.RWMutex
	doc map[string]any
}

func Open(path string) (*Store, error) {
	format, err := formatFromPath(path)
	if err != nil {
		return nil, err
	}

	s := &Store{path: path, format: format}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

// Reload replaces the in-memory document with the file contents.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", s.path, err)
	}

	doc := map[string]any{}
	switch s.format {
	case formatJSON:
		if len(bytes.TrimSpace(data)) > 0 {
			err = json.Unmarshal(data, &doc)
		}
	default:
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", s.path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Get returns the value stored under keyPath.
func (s *Store) Get(keyPath string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value any = s.doc
	for _, key := range strings.Split(keyPath, ".") {
		node, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		if value, ok = node[key]; !ok {
			return nil, false
		}
	}
	return value, true
}

func (s *Store) GetString(keyPath string, defaultValue string) string {
	value, ok := s.Get(keyPath)
	if !ok || value == nil {
		return defaultValue
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprint(value)
}

// Update sets keyPath to value, creating intermediate sections, and saves the file.
func (s *Store) Update(keyPath string, value any) error {
	keys := strings.Split(keyPath, ".")
	for _, key := range keys {
		if key == "" {
			return fmt.Errorf("%w: %q", ErrInvalidKeyPath, keyPath)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	node := s.doc
	for _, key := range keys[:len(keys)-1] {
		next, exists := node[key]
		if !exists || next == nil {
			child := map[string]any{}
			node[key] = child
			node = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %q is not a section", ErrInvalidKeyPath, key)
		}
		node = child
	}
	node[keys[len(keys)-1]] = value

	return s.saveLocked()
}

// Decode fills out from the document using its yaml tags.
func (s *Store) Decode(out any) error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.doc)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode config document: %w", err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode config document: %w", err)
	}
	return nil
}

func (s *Store) saveLocked() error {
	var (
		data []byte
		err  error
	)
	switch s.format {
	case formatJSON:
		data, err = json.MarshalIndent(s.doc, "", "    ")
	default:
		data, err = yaml.Marshal(s.doc)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config document: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", s.path, err)
	}
	return nil
}

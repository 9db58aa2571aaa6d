package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhouzirui/z-notes/internal/model/project"
)

// ConfigFileName is the workspace config file inside the data folder.
const ConfigFileName = ".znotes_config.json"

func (s *Store) configPath() string {
	return filepath.Join(s.root, ConfigFileName)
}

func (s *Store) initConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.configPath()); err == nil {
		return nil
	}
	now := s.now()
	return s.writeConfigLocked(project.WorkspaceConfig{
		UserSettings: map[string]any{},
		Created:      now,
		Modified:     now,
	})
}

// Config returns the persisted workspace config.
func (s *Store) Config(_ context.Context) (project.WorkspaceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readConfigLocked()
}

// ActiveProject returns the active project id, or nil.
func (s *Store) ActiveProject(ctx context.Context) (*string, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.ActiveProjectID, nil
}

// SetActiveProject selects an existing project; nil clears the selection.
func (s *Store) SetActiveProject(_ context.Context, id *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != nil {
		if _, err := s.projectDir(*id); err != nil {
			return err
		}
	}
	if err := s.updateConfigLocked(func(cfg *project.WorkspaceConfig) bool {
		cfg.ActiveProjectID = id
		return true
	}); err != nil {
		return err
	}
	s.publish(project.ConfigChanged, deref(id), "")
	return nil
}

// ActiveFile returns the active file path relative to the data folder, or nil.
func (s *Store) ActiveFile(ctx context.Context) (*string, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.ActiveFilePath, nil
}

// SetActiveFile records the open note; nil clears it. The path must stay
// inside the data folder.
func (s *Store) SetActiveFile(_ context.Context, path *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path != nil {
		clean := filepath.ToSlash(filepath.Clean(strings.TrimSpace(*path)))
		if clean == "." || filepath.IsAbs(clean) {
			return fmt.Errorf("%q: %w", *path, ErrOutsideRoot)
		}
		if err := s.contain(filepath.Join(s.root, filepath.FromSlash(clean))); err != nil {
			return err
		}
		path = &clean
	}
	if err := s.updateConfigLocked(func(cfg *project.WorkspaceConfig) bool {
		cfg.ActiveFilePath = path
		return true
	}); err != nil {
		return err
	}
	s.publish(project.ConfigChanged, "", deref(path))
	return nil
}

func (s *Store) readConfigLocked() (project.WorkspaceConfig, error) {
	data, err := os.ReadFile(s.configPath())
	if errors.Is(err, fs.ErrNotExist) {
		now := s.now()
		return project.WorkspaceConfig{UserSettings: map[string]any{}, Created: now, Modified: now}, nil
	}
	if err != nil {
		return project.WorkspaceConfig{}, fmt.Errorf("read workspace config: %w", err)
	}
	var cfg project.WorkspaceConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return project.WorkspaceConfig{}, fmt.Errorf("decode workspace config: %w", err)
	}
	if cfg.UserSettings == nil {
		cfg.UserSettings = map[string]any{}
	}
	return cfg, nil
}

// updateConfigLocked applies mutate and persists the result when it reports
// a change.
func (s *Store) updateConfigLocked(mutate func(cfg *project.WorkspaceConfig) bool) error {
	cfg, err := s.readConfigLocked()
	if err != nil {
		return err
	}
	if !mutate(&cfg) {
		return nil
	}
	cfg.Modified = s.now()
	return s.writeConfigLocked(cfg)
}

func (s *Store) writeConfigLocked(cfg project.WorkspaceConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode workspace config: %w", err)
	}
	tmp := s.configPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write workspace config: %w", err)
	}
	if err := os.Rename(tmp, s.configPath()); err != nil {
		return fmt.Errorf("replace workspace config: %w", err)
	}
	return nil
}

// rebaseActive moves the active selection from project oldID to newID, or
// clears it when newID is empty.
func rebaseActive(cfg *project.WorkspaceConfig, oldID, newID string) bool {
	changed := false
	if cfg.ActiveProjectID != nil && *cfg.ActiveProjectID == oldID {
		if newID == "" {
			cfg.ActiveProjectID = nil
		} else {
			id := newID
			cfg.ActiveProjectID = &id
		}
		changed = true
	}
	prefix := oldID + "/"
	if cfg.ActiveFilePath != nil && strings.HasPrefix(*cfg.ActiveFilePath, prefix) {
		if newID == "" {
			cfg.ActiveFilePath = nil
		} else {
			path := newID + "/" + strings.TrimPrefix(*cfg.ActiveFilePath, prefix)
			cfg.ActiveFilePath = &path
		}
		changed = true
	}
	return changed
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-notes/internal/model/project"
)

const noteExt = ".md"

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidName     = errors.New("invalid name")
	ErrExists          = errors.New("already exists")
	ErrOutsideRoot     = errors.New("path is outside the data folder")
	ErrNotAFile        = errors.New("path is not a file")
)

// Store keeps projects as directories of markdown files under one data folder.
type Store struct {
	root     string
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu sync.RWMutex
}

// NewStore creates the data folder if needed and initializes the workspace
// config file.
func NewStore(root string, notifier Notifier, logger *zap.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve data folder: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create data folder: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}

	s := &Store{
		root:     abs,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	if err := s.initConfig(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the absolute data folder.
func (s *Store) Root() string {
	return s.root
}

// ListProjects returns every project, sorted by name.
func (s *Store) ListProjects(_ context.Context) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read data folder: %w", err)
	}

	projects := make([]project.Project, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || hidden(entry.Name()) {
			continue
		}
		p, err := s.loadProject(entry.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable project", zap.String("project_id", entry.Name()), zap.Error(err))
			continue
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// GetProject returns one project with its file names.
func (s *Store) GetProject(_ context.Context, id string) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadProject(id)
}

// CreateProject creates a project directory seeded with a welcome note.
func (s *Store) CreateProject(_ context.Context, name string) (project.Project, error) {
	safe := sanitizeName(name, false)
	if safe == "" {
		return project.Project{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, safe)
	if _, err := os.Stat(dir); err == nil {
		return project.Project{}, fmt.Errorf("project %q: %w", safe, ErrExists)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return project.Project{}, fmt.Errorf("create project: %w", err)
	}

	welcome := fmt.Sprintf("# %s\n\nWelcome to your new project!\n\nStart writing your notes here.\n", safe)
	if err := os.WriteFile(filepath.Join(dir, "welcome"+noteExt), []byte(welcome), 0o644); err != nil {
		return project.Project{}, fmt.Errorf("write welcome note: %w", err)
	}

	p, err := s.loadProject(safe)
	if err != nil {
		return project.Project{}, err
	}
	s.publish(project.ProjectCreated, p.ID, "")
	s.logger.Info("project created", zap.String("project_id", p.ID))
	return p, nil
}

// RenameProject renames the project directory. The workspace config follows
// the rename when it points into the project.
func (s *Store) RenameProject(_ context.Context, id, newName string) (project.Project, error) {
	safe := sanitizeName(newName, false)
	if safe == "" {
		return project.Project{}, fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldDir, err := s.projectDir(id)
	if err != nil {
		return project.Project{}, err
	}
	newDir := filepath.Join(s.root, safe)
	if _, err := os.Stat(newDir); err == nil {
		return project.Project{}, fmt.Errorf("project %q: %w", safe, ErrExists)
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return project.Project{}, fmt.Errorf("rename project: %w", err)
	}

	if err := s.updateConfigLocked(func(cfg *project.WorkspaceConfig) bool {
		return rebaseActive(cfg, id, safe)
	}); err != nil {
		s.logger.Warn("failed to update workspace config after rename", zap.Error(err))
	}

	p, err := s.loadProject(safe)
	if err != nil {
		return project.Project{}, err
	}
	s.publish(project.ProjectRenamed, p.ID, "")
	return p, nil
}

// DeleteProject removes the project and everything in it.
func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.projectDir(id)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	if err := s.updateConfigLocked(func(cfg *project.WorkspaceConfig) bool {
		return rebaseActive(cfg, id, "")
	}); err != nil {
		s.logger.Warn("failed to update workspace config after delete", zap.Error(err))
	}

	s.publish(project.ProjectDeleted, id, "")
	s.logger.Info("project deleted", zap.String("project_id", id))
	return nil
}

// CreateFile adds a note to a project, seeded with a title heading.
func (s *Store) CreateFile(_ context.Context, projectID, filename string) (project.File, error) {
	if !strings.HasSuffix(filename, noteExt) {
		filename += noteExt
	}
	safe := sanitizeName(filename, true)
	if safe == "" || safe == noteExt {
		return project.File{}, fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, err := s.projectDir(projectID)
	if err != nil {
		return project.File{}, err
	}
	path := filepath.Join(dir, safe)
	if err := s.contain(path); err != nil {
		return project.File{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return project.File{}, fmt.Errorf("file %q: %w", safe, ErrExists)
	}

	content := "# " + titleCase(strings.NewReplacer(noteExt, "", "-", " ", "_", " ").Replace(safe)) + "\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return project.File{}, fmt.Errorf("create file: %w", err)
	}

	f, err := s.readFile(path)
	if err != nil {
		return project.File{}, err
	}
	s.publish(project.FileCreated, projectID, f.Name)
	return f, nil
}

// OpenFile reads a note by project and file id (the name without extension).
func (s *Store) OpenFile(_ context.Context, projectID, fileID string) (project.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.filePath(projectID, fileID)
	if err != nil {
		return project.File{}, err
	}
	return s.readFile(path)
}

// OpenPath reads a note by its path relative to the data folder, as stored in
// the workspace config.
func (s *Store) OpenPath(_ context.Context, rel string) (project.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := rel
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, filepath.FromSlash(rel))
	}
	if err := s.contain(path); err != nil {
		return project.File{}, err
	}
	return s.readFile(path)
}

// SaveFile overwrites (or creates) a note in an existing project.
func (s *Store) SaveFile(_ context.Context, projectID, fileID, content string) (project.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.filePath(projectID, fileID)
	if err != nil {
		return project.File{}, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return project.File{}, fmt.Errorf("save file: %w", err)
	}

	f, err := s.readFile(path)
	if err != nil {
		return project.File{}, err
	}
	s.publish(project.FileSaved, projectID, fileID)
	return f, nil
}

// RenameFile renames a note within its project.
func (s *Store) RenameFile(_ context.Context, projectID, fileID, newName string) (project.File, error) {
	safe := sanitizeName(strings.TrimSuffix(newName, noteExt), false)
	if safe == "" {
		return project.File{}, fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldPath, err := s.filePath(projectID, fileID)
	if err != nil {
		return project.File{}, err
	}
	if _, err := os.Stat(oldPath); err != nil {
		return project.File{}, fmt.Errorf("%s: %w", fileID, ErrFileNotFound)
	}
	newPath := filepath.Join(filepath.Dir(oldPath), safe+noteExt)
	if _, err := os.Stat(newPath); err == nil {
		return project.File{}, fmt.Errorf("file %q: %w", safe, ErrExists)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return project.File{}, fmt.Errorf("rename file: %w", err)
	}

	oldRel, newRel := s.relative(oldPath), s.relative(newPath)
	if err := s.updateConfigLocked(func(cfg *project.WorkspaceConfig) bool {
		if cfg.ActiveFilePath == nil || *cfg.ActiveFilePath != oldRel {
			return false
		}
		cfg.ActiveFilePath = &newRel
		return true
	}); err != nil {
		s.logger.Warn("failed to update workspace config after file rename", zap.Error(err))
	}

	f, err := s.readFile(newPath)
	if err != nil {
		return project.File{}, err
	}
	s.publish(project.FileRenamed, projectID, f.Name)
	return f, nil
}

// DeleteFile removes a note.
func (s *Store) DeleteFile(_ context.Context, projectID, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.filePath(projectID, fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", fileID, ErrFileNotFound)
		}
		return fmt.Errorf("delete file: %w", err)
	}

	rel := s.relative(path)
	if err := s.updateConfigLocked(func(cfg *project.WorkspaceConfig) bool {
		if cfg.ActiveFilePath == nil || *cfg.ActiveFilePath != rel {
			return false
		}
		cfg.ActiveFilePath = nil
		return true
	}); err != nil {
		s.logger.Warn("failed to update workspace config after file delete", zap.Error(err))
	}

	s.publish(project.FileDeleted, projectID, fileID)
	return nil
}

func (s *Store) loadProject(id string) (project.Project, error) {
	dir, err := s.projectDir(id)
	if err != nil {
		return project.Project{}, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return project.Project{}, fmt.Errorf("stat project: %w", err)
	}
	names, err := noteNames(dir)
	if err != nil {
		return project.Project{}, err
	}
	return project.Project{
		ID:        id,
		Name:      id,
		Path:      s.relative(dir),
		FileNames: names,
		Created:   info.ModTime(),
		Modified:  info.ModTime(),
	}, nil
}

// projectDir resolves a project id to an existing directory.
func (s *Store) projectDir(id string) (string, error) {
	if !validSegment(id) {
		return "", fmt.Errorf("%q: %w", id, ErrProjectNotFound)
	}
	dir := filepath.Join(s.root, id)
	if err := s.contain(dir); err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%q: %w", id, ErrProjectNotFound)
	}
	return dir, nil
}

func (s *Store) filePath(projectID, fileID string) (string, error) {
	dir, err := s.projectDir(projectID)
	if err != nil {
		return "", err
	}
	if !validSegment(fileID) {
		return "", fmt.Errorf("%q: %w", fileID, ErrFileNotFound)
	}
	path := filepath.Join(dir, fileID+noteExt)
	if err := s.contain(path); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Store) readFile(path string) (project.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return project.File{}, fmt.Errorf("%s: %w", s.relative(path), ErrFileNotFound)
		}
		return project.File{}, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return project.File{}, fmt.Errorf("%s: %w", s.relative(path), ErrNotAFile)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return project.File{}, fmt.Errorf("read file: %w", err)
	}
	return project.File{
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path:     s.relative(path),
		Content:  string(data),
		Modified: info.ModTime(),
		Size:     info.Size(),
	}, nil
}

// contain rejects any path that resolves outside the data folder.
func (s *Store) contain(path string) error {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ErrOutsideRoot
	}
	return nil
}

func (s *Store) relative(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (s *Store) publish(kind project.ChangeType, projectID, fileID string) {
	s.notifier.Publish(project.Change{
		Type:      kind,
		ProjectID: projectID,
		FileID:    fileID,
		Timestamp: s.now().UTC(),
	})
}

func noteNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if hidden(name) || !entry.Type().IsRegular() || !strings.HasSuffix(name, noteExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, noteExt))
	}
	sort.Strings(names)
	return names, nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func validSegment(name string) bool {
	return name != "" && !hidden(name) && !strings.ContainsAny(name, `/\`)
}

// sanitizeName keeps letters, digits, space, '-' and '_' (and '.' for file
// names), then trims surrounding space.
func sanitizeName(name string, allowDot bool) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		case r == '.' && allowDot:
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	if hidden(safe) {
		return ""
	}
	return safe
}

// titleCase upper-cases the first letter of every word and lower-cases the
// rest, where any non-letter separates words.
func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

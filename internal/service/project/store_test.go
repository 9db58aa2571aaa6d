package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	model "github.com/zhouzirui/z-notes/internal/model/project"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []model.Change
}

func (r *recordingNotifier) Publish(change model.Change) {
	r.mu.Lock()
	r.changes = append(r.changes, change)
	r.mu.Unlock()
}

func (r *recordingNotifier) types() []model.ChangeType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ChangeType, 0, len(r.changes))
	for _, c := range r.changes {
		out = append(out, c.Type)
	}
	return out
}

func newTestStore(t *testing.T) (*Store, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	store, err := NewStore(t.TempDir(), notifier, nil)
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	return store, notifier
}

func TestCreateProjectSeedsWelcomeNote(t *testing.T) {
	store, notifier := newTestStore(t)
	ctx := context.Background()

	p, err := store.CreateProject(ctx, "  Biology 101!? ")
	if err != nil {
		t.Fatalf("CreateProject err: %v", err)
	}
	if p.ID != "Biology 101" || p.Name != "Biology 101" {
		t.Fatalf("unexpected project: %#v", p)
	}
	if !reflect.DeepEqual(p.FileNames, []string{"welcome"}) {
		t.Fatalf("unexpected files: %v", p.FileNames)
	}

	f, err := store.OpenFile(ctx, p.ID, "welcome")
	if err != nil {
		t.Fatalf("OpenFile err: %v", err)
	}
	want := "# Biology 101\n\nWelcome to your new project!\n\nStart writing your notes here.\n"
	if f.Content != want {
		t.Fatalf("unexpected welcome note %q", f.Content)
	}
	if f.Path != "Biology 101/welcome.md" {
		t.Fatalf("unexpected path %q", f.Path)
	}

	if _, err := store.CreateProject(ctx, "Biology 101"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := store.CreateProject(ctx, "../!!"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if got := notifier.types(); !reflect.DeepEqual(got, []model.ChangeType{model.ProjectCreated}) {
		t.Fatalf("unexpected changes: %v", got)
	}
}

func TestListProjectsSkipsHiddenAndFiles(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Chemistry", "Art"} {
		if _, err := store.CreateProject(ctx, name); err != nil {
			t.Fatalf("CreateProject %s err: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(store.Root(), ".trash"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	projects, err := store.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects err: %v", err)
	}
	var ids []string
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	if !reflect.DeepEqual(ids, []string{"Art", "Chemistry"}) {
		t.Fatalf("unexpected projects: %v", ids)
	}
}

func TestFileLifecycle(t *testing.T) {
	store, notifier := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateProject(ctx, "Physics"); err != nil {
		t.Fatalf("CreateProject err: %v", err)
	}

	f, err := store.CreateFile(ctx, "Physics", "newton_laws-intro")
	if err != nil {
		t.Fatalf("CreateFile err: %v", err)
	}
	if f.Name != "newton_laws-intro" || f.Content != "# Newton Laws Intro\n\n" {
		t.Fatalf("unexpected file: %#v", f)
	}
	if _, err := store.CreateFile(ctx, "Physics", "newton_laws-intro.md"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	saved, err := store.SaveFile(ctx, "Physics", f.Name, "# Newton\n\nF = ma\n")
	if err != nil {
		t.Fatalf("SaveFile err: %v", err)
	}
	if saved.Size != int64(len("# Newton\n\nF = ma\n")) {
		t.Fatalf("unexpected size %d", saved.Size)
	}

	renamed, err := store.RenameFile(ctx, "Physics", f.Name, "mechanics")
	if err != nil {
		t.Fatalf("RenameFile err: %v", err)
	}
	if renamed.Name != "mechanics" || renamed.Content != "# Newton\n\nF = ma\n" {
		t.Fatalf("unexpected renamed file: %#v", renamed)
	}

	p, err := store.GetProject(ctx, "Physics")
	if err != nil {
		t.Fatalf("GetProject err: %v", err)
	}
	if !reflect.DeepEqual(p.FileNames, []string{"mechanics", "welcome"}) {
		t.Fatalf("unexpected files: %v", p.FileNames)
	}

	if err := store.DeleteFile(ctx, "Physics", "mechanics"); err != nil {
		t.Fatalf("DeleteFile err: %v", err)
	}
	if err := store.DeleteFile(ctx, "Physics", "mechanics"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if _, err := store.OpenFile(ctx, "Physics", "mechanics"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}

	want := []model.ChangeType{model.ProjectCreated, model.FileCreated, model.FileSaved, model.FileRenamed, model.FileDeleted}
	if got := notifier.types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected changes: %v", got)
	}
}

func TestPathsStayInsideDataFolder(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateProject(ctx, "Safe"); err != nil {
		t.Fatalf("CreateProject err: %v", err)
	}

	if _, err := store.GetProject(ctx, ".."); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
	if _, err := store.OpenFile(ctx, "Safe", "../../etc/passwd"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
	if _, err := store.OpenPath(ctx, "../outside.md"); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("expected ErrOutsideRoot, got %v", err)
	}
	if err := store.SetActiveFile(ctx, ptr("../../secret.md")); !errors.Is(err, ErrOutsideRoot) {
		t.Fatalf("expected ErrOutsideRoot, got %v", err)
	}
}

func TestWorkspaceConfigFollowsProject(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateProject(ctx, "History"); err != nil {
		t.Fatalf("CreateProject err: %v", err)
	}

	if err := store.SetActiveProject(ctx, ptr("Missing")); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
	if err := store.SetActiveProject(ctx, ptr("History")); err != nil {
		t.Fatalf("SetActiveProject err: %v", err)
	}
	if err := store.SetActiveFile(ctx, ptr("History/welcome.md")); err != nil {
		t.Fatalf("SetActiveFile err: %v", err)
	}

	if _, err := store.RenameProject(ctx, "History", "World History"); err != nil {
		t.Fatalf("RenameProject err: %v", err)
	}
	cfg, err := store.Config(ctx)
	if err != nil {
		t.Fatalf("Config err: %v", err)
	}
	if deref(cfg.ActiveProjectID) != "World History" || deref(cfg.ActiveFilePath) != "World History/welcome.md" {
		t.Fatalf("config did not follow rename: %#v", cfg)
	}

	f, err := store.OpenPath(ctx, deref(cfg.ActiveFilePath))
	if err != nil || f.Name != "welcome" {
		t.Fatalf("OpenPath: %#v, %v", f, err)
	}

	if err := store.DeleteProject(ctx, "World History"); err != nil {
		t.Fatalf("DeleteProject err: %v", err)
	}
	active, err := store.ActiveProject(ctx)
	if err != nil || active != nil {
		t.Fatalf("expected cleared active project, got %v, %v", active, err)
	}
	file, err := store.ActiveFile(ctx)
	if err != nil || file != nil {
		t.Fatalf("expected cleared active file, got %v, %v", file, err)
	}
}

func TestConfigSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewStore(dir, nil, nil)
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	if _, err := first.CreateProject(ctx, "Math"); err != nil {
		t.Fatalf("CreateProject err: %v", err)
	}
	if err := first.SetActiveProject(ctx, ptr("Math")); err != nil {
		t.Fatalf("SetActiveProject err: %v", err)
	}

	second, err := NewStore(dir, nil, nil)
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	active, err := second.ActiveProject(ctx)
	if err != nil || deref(active) != "Math" {
		t.Fatalf("expected Math, got %v, %v", active, err)
	}
	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err != nil {
		t.Fatalf("config file missing: %v", err)
	}
}

func TestSearchRanksByMatchedTerms(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	if _, err := store.CreateProject(ctx, "Bio"); err != nil {
		t.Fatalf("CreateProject err: %v", err)
	}
	notes := map[string]string{
		"cells":   "Cells have a MEMBRANE and mitochondria.",
		"plants":  "Plants use chlorophyll. Their cells have walls.",
		"animals": "Animals move around.",
	}
	for name, content := range notes {
		if _, err := store.SaveFile(ctx, "Bio", name, content); err != nil {
			t.Fatalf("SaveFile err: %v", err)
		}
	}

	result, err := store.Search(ctx, "Bio", []string{"cells", " Membrane", ""}, DefaultSearchLimit)
	if err != nil {
		t.Fatalf("Search err: %v", err)
	}
	if result.Total != 2 || len(result.Hits) != 2 {
		t.Fatalf("unexpected result: %#v", result)
	}
	if result.Hits[0].File != "cells" || result.Hits[0].Relevance != 2 {
		t.Fatalf("unexpected top hit: %#v", result.Hits[0])
	}
	if result.Hits[1].File != "plants" || result.Hits[1].Relevance != 1 {
		t.Fatalf("unexpected second hit: %#v", result.Hits[1])
	}

	limited, err := store.Search(ctx, "Bio", []string{"cells"}, 1)
	if err != nil {
		t.Fatalf("Search err: %v", err)
	}
	if limited.Total != 2 || len(limited.Hits) != 1 {
		t.Fatalf("unexpected limited result: %#v", limited)
	}

	if _, err := store.Search(ctx, "Nope", []string{"cells"}, 5); !errors.Is(err, ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
}

func TestTitleCase(t *testing.T) {
	cases := map[string]string{
		"newton laws intro": "Newton Laws Intro",
		"DNA replication":   "Dna Replication",
		"notes.v2":          "Notes.V2",
	}
	for in, want := range cases {
		if got := titleCase(in); got != want {
			t.Fatalf("titleCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func ptr(s string) *string {
	return &s
}

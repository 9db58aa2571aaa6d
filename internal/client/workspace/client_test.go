package workspace

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/zhouzirui/z-notes/internal/handler"
	projectsvc "github.com/zhouzirui/z-notes/internal/service/project"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	store, err := projectsvc.NewStore(t.TempDir(), nil, nil)
	if err != nil {
		t.Fatalf("NewStore err: %v", err)
	}
	server := httptest.NewServer(handler.NewRouter(store, nil, nil, nil))
	t.Cleanup(server.Close)
	return New(server.URL+"/", server.Client(), nil)
}

func TestClientRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	p, err := client.CreateProject(ctx, "Cell Bio")
	if err != nil {
		t.Fatalf("CreateProject err: %v", err)
	}
	if _, err := client.CreateFile(ctx, p.ID, "organelles"); err != nil {
		t.Fatalf("CreateFile err: %v", err)
	}
	if _, err := client.SaveFile(ctx, p.ID, "organelles", "# Organelles\n\nRibosomes.\n"); err != nil {
		t.Fatalf("SaveFile err: %v", err)
	}

	f, err := client.OpenFile(ctx, p.ID, "organelles")
	if err != nil {
		t.Fatalf("OpenFile err: %v", err)
	}
	if f.Content != "# Organelles\n\nRibosomes.\n" || f.Path != "Cell Bio/organelles.md" {
		t.Fatalf("unexpected file %#v", f)
	}

	got, err := client.GetProject(ctx, "Cell Bio")
	if err != nil || len(got.FileNames) != 2 {
		t.Fatalf("GetProject: %#v, %v", got, err)
	}

	projects, err := client.ListProjects(ctx)
	if err != nil || len(projects) != 1 {
		t.Fatalf("ListProjects: %#v, %v", projects, err)
	}
}

func TestClientActiveSelection(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	if _, err := client.CreateProject(ctx, "Math"); err != nil {
		t.Fatalf("CreateProject err: %v", err)
	}

	id, path := "Math", "Math/welcome.md"
	if err := client.SetActiveProject(ctx, &id); err != nil {
		t.Fatalf("SetActiveProject err: %v", err)
	}
	if err := client.SetActiveFile(ctx, &path); err != nil {
		t.Fatalf("SetActiveFile err: %v", err)
	}

	cfg, err := client.Config(ctx)
	if err != nil {
		t.Fatalf("Config err: %v", err)
	}
	if cfg.ActiveProjectID == nil || *cfg.ActiveProjectID != "Math" {
		t.Fatalf("unexpected active project %v", cfg.ActiveProjectID)
	}
	if cfg.ActiveFilePath == nil || *cfg.ActiveFilePath != path {
		t.Fatalf("unexpected active file %v", cfg.ActiveFilePath)
	}
}

func TestClientErrors(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_, err := client.OpenFile(ctx, "Nope", "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message == "" {
		t.Fatalf("expected APIError with message, got %#v", err)
	}

	_, err = client.CreateProject(ctx, "!!!")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}

package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-notes/internal/model/project"
)

const (
	apiPrefix       = "/api/v1"
	defaultTimeout  = 15 * time.Second
	maxErrorPayload = 4 * 1024
)

// ErrNotFound matches any APIError with status 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-success answer from the notes API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notes api: status=%d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client calls the project, file and config routes of the notes API.
type Client struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

// New targets baseURL. A nil httpClient gets a bounded timeout.
func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/") + apiPrefix,
		http:   httpClient,
		logger: logger,
	}
}

func (c *Client) Config(ctx context.Context) (project.WorkspaceConfig, error) {
	var cfg project.WorkspaceConfig
	err := c.do(ctx, http.MethodGet, "/config", nil, &cfg)
	return cfg, err
}

func (c *Client) ListProjects(ctx context.Context) ([]project.Project, error) {
	var projects []project.Project
	err := c.do(ctx, http.MethodGet, "/projects", nil, &projects)
	return projects, err
}

func (c *Client) GetProject(ctx context.Context, id string) (project.Project, error) {
	var p project.Project
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(id), nil, &p)
	return p, err
}

func (c *Client) CreateProject(ctx context.Context, name string) (project.Project, error) {
	var p project.Project
	err := c.do(ctx, http.MethodPost, "/projects", map[string]string{"name": name}, &p)
	return p, err
}

func (c *Client) CreateFile(ctx context.Context, projectID, filename string) (project.File, error) {
	var f project.File
	err := c.do(ctx, http.MethodPost, projectPath(projectID)+"/files", map[string]string{"filename": filename}, &f)
	return f, err
}

func (c *Client) OpenFile(ctx context.Context, projectID, fileID string) (project.File, error) {
	var f project.File
	err := c.do(ctx, http.MethodGet, filePath(projectID, fileID), nil, &f)
	return f, err
}

func (c *Client) SaveFile(ctx context.Context, projectID, fileID, content string) (project.File, error) {
	var f project.File
	err := c.do(ctx, http.MethodPost, filePath(projectID, fileID), map[string]string{"content": content}, &f)
	return f, err
}

// SetActiveProject records the open project; nil clears it.
func (c *Client) SetActiveProject(ctx context.Context, id *string) error {
	return c.do(ctx, http.MethodPost, "/config/active-project", map[string]*string{"project_id": id}, nil)
}

// SetActiveFile records the open note by its data-folder relative path.
func (c *Client) SetActiveFile(ctx context.Context, path *string) error {
	return c.do(ctx, http.MethodPost, "/config/active-file", map[string]*string{"file_path": path}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorPayload))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
		c.logger.Debug("notes api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func projectPath(projectID string) string {
	return "/projects/" + url.PathEscape(projectID)
}

func filePath(projectID, fileID string) string {
	return projectPath(projectID) + "/files/" + url.PathEscape(fileID)
}

func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}

package project

import "time"

// Project is a directory of markdown notes.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	FileNames []string  `json:"file_names"`
	Created   time.Time `json:"created"`
	Modified  time.Time `json:"modified"`
}

// File is the content of one markdown note.
type File struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Content  string    `json:"content"`
	Modified time.Time `json:"modified"`
	Size     int64     `json:"size"`
}

// WorkspaceConfig is the small persisted state shared by all clients.
type WorkspaceConfig struct {
	ActiveProjectID *string        `json:"active_project_id"`
	ActiveFilePath  *string        `json:"active_file_path"`
	UserSettings    map[string]any `json:"user_settings"`
	Created         time.Time      `json:"created"`
	Modified        time.Time      `json:"modified"`
}

// SearchHit is one note matched by a keyword search.
type SearchHit struct {
	Project   string `json:"project"`
	File      string `json:"file"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	Relevance int    `json:"relevance"`
}

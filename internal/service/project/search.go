package project

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-notes/internal/model/project"
)

// DefaultSearchLimit is how many notes a search returns.
const DefaultSearchLimit = 5

// SearchResult holds the best hits and how many notes matched in total.
type SearchResult struct {
	Hits  []project.SearchHit
	Total int
}

// Search scores every note in a project by how many terms it contains,
// ignoring case, and returns the highest scoring ones. Notes that cannot be
// read are skipped.
func (s *Store) Search(ctx context.Context, projectID string, terms []string, limit int) (SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	normalized := make([]string, 0, len(terms))
	for _, term := range terms {
		if term = strings.TrimSpace(strings.ToLower(term)); term != "" {
			normalized = append(normalized, term)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.loadProject(projectID)
	if err != nil {
		return SearchResult{}, err
	}
	if len(normalized) == 0 {
		return SearchResult{Hits: []project.SearchHit{}}, nil
	}

	dir := filepath.Join(s.root, projectID)
	hits := make([]project.SearchHit, 0)
	for _, name := range p.FileNames {
		if err := ctx.Err(); err != nil {
			return SearchResult{}, err
		}
		path := filepath.Join(dir, name+noteExt)
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Debug("search skipping unreadable note", zap.String("path", path), zap.Error(err))
			continue
		}

		content := string(data)
		lower := strings.ToLower(content)
		matches := 0
		for _, term := range normalized {
			if strings.Contains(lower, term) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		hits = append(hits, project.SearchHit{
			Project:   p.Name,
			File:      name,
			Path:      s.relative(path),
			Content:   content,
			Relevance: matches,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Relevance > hits[j].Relevance
	})

	total := len(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return SearchResult{Hits: hits, Total: total}, nil
}

package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// QueryType 表示导师工作流的分支。
type QueryType string

const (
	Search    QueryType = "SEARCH"
	AddToNote QueryType = "ADD_TO_NOTE"
	General   QueryType = "GENERAL"
)

// Decision 给出查询分类结果以及用于笔记检索的关键词。
type Decision struct {
	Type     QueryType
	Keywords []string
	Score    int
}

const maxKeywords = 8

var keywordBuckets = map[QueryType][]string{
	Search: {
		"find", "search", "look up", "look for", "where did i", "where is", "in my notes", "my notes",
		"which file", "which note", "what did i write", "did i write", "show me", "remind me", "locate",
		"查找", "搜索", "我的笔记",
	},
	AddToNote: {
		"add to my note", "add to the note", "add a note", "add this", "add it", "add some", "write a note",
		"write down", "jot", "append", "put this in", "put it in", "insert", "take notes", "make notes",
		"create notes", "expand my note", "expand the note", "summarize into", "记下", "添加到笔记", "写进笔记",
	},
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {}, "any": {},
	"can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {}, "his": {}, "has": {},
	"how": {}, "its": {}, "did": {}, "does": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"who": {}, "why": {}, "with": {}, "this": {}, "that": {}, "these": {}, "those": {}, "from": {},
	"about": {}, "into": {}, "have": {}, "there": {}, "their": {}, "them": {}, "they": {}, "then": {},
	"than": {}, "some": {}, "please": {}, "could": {}, "would": {}, "should": {}, "tell": {}, "explain": {},
	"find": {}, "search": {}, "look": {}, "notes": {}, "note": {}, "file": {}, "files": {}, "write": {},
	"wrote": {}, "show": {}, "add": {}, "my": {}, "me": {}, "i": {}, "a": {}, "an": {}, "of": {}, "in": {},
	"on": {}, "to": {}, "is": {}, "it": {}, "do": {}, "be": {}, "or": {}, "up": {}, "information": {},
	"remind": {}, "anything": {}, "something": {}, "your": {}, "project": {},
}

// Classify 根据关键词启发式推断查询类型，在模型不可用或输出无效时使用。
func Classify(message string) Decision {
	normalized := strings.TrimSpace(strings.ToLower(message))
	if normalized == "" {
		return Decision{Type: General}
	}

	scores := make(map[QueryType]int)
	for label, phrases := range keywordBuckets {
		for _, phrase := range phrases {
			if strings.Contains(normalized, phrase) {
				// 多词短语比单词更可靠。
				scores[label] += 1 + strings.Count(phrase, " ")
			}
		}
	}

	best := General
	bestScore := 0
	// 固定顺序保证平局时结果稳定：添加笔记优先于检索。
	for _, label := range []QueryType{AddToNote, Search} {
		if s := scores[label]; s > bestScore {
			best = label
			bestScore = s
		}
	}

	decision := Decision{Type: best, Score: bestScore}
	if best == Search {
		decision.Keywords = SearchTerms(message)
	}
	return decision
}

// Keywords extracts distinctive lowercase terms from message, in order of
// first appearance.
func Keywords(message string) []string {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, maxKeywords)
	for _, field := range fields {
		field = strings.Trim(field, "-")
		if len([]rune(field)) < 3 {
			continue
		}
		if _, stop := stopwords[field]; stop {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		keywords = append(keywords, field)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// SearchTerms returns the keywords of message, or the whole message when it
// has none.
func SearchTerms(message string) []string {
	if keywords := Keywords(message); len(keywords) > 0 {
		return keywords
	}
	if trimmed := strings.TrimSpace(strings.ToLower(message)); trimmed != "" {
		return []string{trimmed}
	}
	return nil
}

// ErrNoJSON means a model reply contained no JSON object.
var ErrNoJSON = errors.New("no json object in analysis reply")

type analysisReply struct {
	QueryType string   `json:"query_type"`
	Keywords  []string `json:"keywords"`
}

// Parse decodes a model analysis reply of the form
// {"query_type": "...", "keywords": [...]}. Surrounding prose and code
// fences are tolerated. Unknown query types map to General.
func Parse(reply, message string) (Decision, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Decision{}, ErrNoJSON
	}

	var parsed analysisReply
	if err := json.Unmarshal([]byte(reply[start:end+1]), &parsed); err != nil {
		return Decision{}, fmt.Errorf("decode analysis reply: %w", err)
	}

	decision := Decision{Type: General}
	switch QueryType(strings.ToUpper(strings.TrimSpace(parsed.QueryType))) {
	case Search:
		decision.Type = Search
		decision.Keywords = normalizeKeywords(parsed.Keywords)
		if len(decision.Keywords) == 0 {
			decision.Keywords = SearchTerms(message)
		}
	case AddToNote:
		decision.Type = AddToNote
	}
	return decision, nil
}

func normalizeKeywords(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, keyword := range raw {
		keyword = strings.TrimSpace(strings.ToLower(keyword))
		if keyword == "" {
			continue
		}
		if _, dup := seen[keyword]; dup {
			continue
		}
		seen[keyword] = struct{}{}
		out = append(out, keyword)
	}
	return out
}

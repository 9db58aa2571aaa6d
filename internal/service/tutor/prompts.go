package tutor

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-notes/internal/model/project"
)

const (
	taskAnalyze = "analyze"
	taskNote    = "note"
	taskAnswer  = "answer"
)

const analysisSystemPrompt = `You route requests for a study assistant embedded in a markdown note-taking app.
Classify the latest user message into exactly one query type:
- SEARCH: the user asks about something they wrote in their own project notes.
- ADD_TO_NOTE: the user wants new content written into the open note.
- GENERAL: anything else, answered from general knowledge.

Reply with a single JSON object and nothing else. It has the key "query_type" holding one of the three types, and for SEARCH also the key "keywords" holding a list of up to five short lowercase search terms.`

const noteSystemPrompt = `You write study notes in GitHub-flavored markdown for a student's note file.
Write only the note content: headings, bullet points and short explanations.
Do not greet the user, do not ask questions, and do not wrap the result in a code fence.
Match the language the user writes in.`

const answerSystemPrompt = `You are a patient tutor inside a markdown note-taking app.
Answer the student's question clearly and concisely using markdown.
When excerpts from the student's notes are provided, ground the answer in them and mention which file the information came from.
If the notes do not cover the question, say so and answer from general knowledge.`

type promptContext struct {
	Message     string
	Highlighted *string
	ActiveFile  string
	Files       string
}

func analysisQuery(c promptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User message:\n%s\n\n", c.Message)
	fmt.Fprintf(&b, "Highlighted text:\n%s\n", highlightedOrNone(c.Highlighted))
	return b.String()
}

func noteQuery(c promptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request:\n%s\n\n", c.Message)
	fmt.Fprintf(&b, "Highlighted text:\n%s\n\n", highlightedOrNone(c.Highlighted))
	fmt.Fprintf(&b, "Current note content:\n%s\n", orNone(c.ActiveFile))
	return b.String()
}

func answerQuery(c promptContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\n", c.Message)
	if c.Files != "" {
		fmt.Fprintf(&b, "Relevant notes from the project:\n%s\n\n", c.Files)
	}
	fmt.Fprintf(&b, "Highlighted text:\n%s\n\n", highlightedOrNone(c.Highlighted))
	fmt.Fprintf(&b, "Currently open note:\n%s\n", orNone(c.ActiveFile))
	return b.String()
}

// formatHits renders search hits as the file context of an answer prompt.
func formatHits(hits []project.SearchHit) string {
	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		parts = append(parts, fmt.Sprintf("File: %s\nContent: %s\n---", hit.File, hit.Content))
	}
	return strings.Join(parts, "\n")
}

func highlightedOrNone(text *string) string {
	if text == nil {
		return "None"
	}
	return orNone(*text)
}

func orNone(text string) string {
	if strings.TrimSpace(text) == "" {
		return "None"
	}
	return text
}

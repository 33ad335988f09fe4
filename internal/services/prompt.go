package services

import (
	"strings"
	"time"

	"github.com/tbourn/go-reflect-backend/internal/domain"
	"github.com/tbourn/go-reflect-backend/internal/llm"
	"github.com/tbourn/go-reflect-backend/internal/notes"
)

// PromptVersion is stored on every report so output can be traced back to
// the instructions that produced it.
const PromptVersion = "v2"

// notesRuneBudget keeps the notes digest under the gateway's per-message cap
// with room for the surrounding instructions.
const notesRuneBudget = 9000

const systemPrompt = `You are a reflective journaling assistant. You receive a person's recent notes,
newest first, each prefixed with its local date. Write a short weekly reflection
report: recurring themes, notable changes, and one or two gentle suggestions.
Do not invent events that are not in the notes. Address the reader as "you".

Respond with a single JSON object with these fields:
- "title": a short headline (max 80 characters)
- "html": the report as simple HTML using only <h2>, <p>, <ul>, <li>, <strong>, <em>
- "text": the same report as plain text`

// reportSchema is the structured answer required from the model.
var reportSchema = llm.Schema{
	Name: "reflection_report",
	Properties: map[string]llm.FieldType{
		"title": llm.FieldString,
		"html":  llm.FieldString,
		"text":  llm.FieldString,
	},
	Required: []string{"title", "html", "text"},
}

// buildMessages renders the system and user turns for a report.
func buildMessages(items []domain.Note, loc *time.Location) []llm.Message {
	var b strings.Builder
	b.WriteString("Notes:\n")
	digest := notes.Digest(items, loc, notesRuneBudget)
	if digest == "" {
		b.WriteString("(no notes in the selected categories yet)\n")
	} else {
		b.WriteString(digest)
	}
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

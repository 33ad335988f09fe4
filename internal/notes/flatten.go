// Package notes turns stored note bodies into the plain-text digest sent to
// the language model. Notes are written in Markdown; tables are flattened into
// one fact per row so the model sees prose-like lines instead of pipe soup.
package notes

import (
	"bufio"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tbourn/go-reflect-backend/internal/domain"
)

// Flatten rewrites a Markdown note so that every table row becomes a
// standalone fact and every other non-blank line is kept as-is.
//
// Notes:
//   - Separator rows ("| --- | :-: |") are dropped.
//   - Empty cells are skipped; the remaining cells are joined by a space.
//   - Runs of blank lines collapse to one; the result has no leading or
//     trailing blank lines.
//
// Content without tables comes back trimmed but otherwise unchanged.
func Flatten(content string) string {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	pendingBlank := false
	writeLine := func(s string) {
		if b.Len() > 0 {
			if pendingBlank {
				b.WriteByte('\n')
			}
			b.WriteByte('\n')
		}
		b.WriteString(s)
		pendingBlank = false
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			pendingBlank = true
			continue
		}

		// table row: "| ... |"
		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") && len(line) > 1 {
			cells, sep := splitRow(line)
			if sep || len(cells) == 0 {
				continue
			}
			writeLine(strings.Join(cells, " "))
			continue
		}
		writeLine(line)
	}
	if sc.Err() != nil {
		// Lines beyond the scanner limit: fall back to the raw text.
		return strings.TrimSpace(content)
	}
	return b.String()
}

// splitRow returns the non-empty cells of a table row and whether the row is
// a header separator.
func splitRow(line string) (cells []string, separator bool) {
	raw := strings.Trim(line, "|")
	separator = true
	for _, c := range strings.Split(raw, "|") {
		cell := strings.TrimSpace(c)
		if cell != "" {
			cells = append(cells, cell)
		}
		tmp := strings.NewReplacer(":", "", "-", "").Replace(cell)
		if strings.TrimSpace(tmp) != "" {
			separator = false
		}
	}
	return cells, separator
}

// Digest renders notes (newest first, as stored) into a bullet list with the
// local date of each note, stopping before maxRunes would be exceeded.
// maxRunes <= 0 disables the cap.
func Digest(items []domain.Note, loc *time.Location, maxRunes int) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	used := 0
	for _, n := range items {
		body := Flatten(n.Content)
		if body == "" {
			continue
		}
		entry := "- [" + n.CreatedAt.In(loc).Format("2006-01-02") + "] " +
			strings.ReplaceAll(body, "\n", "\n  ") + "\n"
		size := utf8.RuneCountInString(entry)
		if maxRunes > 0 && used+size > maxRunes {
			break
		}
		b.WriteString(entry)
		used += size
	}
	return b.String()
}

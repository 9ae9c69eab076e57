package usecase

import (
	"regexp"
	"strings"
)

var (
	majorHeadingRe    = regexp.MustCompile(`\n[A-Z ]{5,}\n`)
	requestedWithRe   = regexp.MustCompile(`(?i)with\s+(.+)`)
	defaultReportSecs = []string{"Introduction", "Summary"}
)

// findSection returns the text from the first case-insensitive occurrence of
// name up to the next all-caps heading line (or the end of text).
func findSection(text, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return text, false
	}
	nameRe, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(name))
	if err != nil {
		return text, false
	}
	loc := nameRe.FindStringIndex(text)
	if loc == nil {
		return text, false
	}

	end := len(text)
	if heading := majorHeadingRe.FindStringIndex(text[loc[1]:]); heading != nil {
		end = loc[1] + heading[0]
	}
	return strings.TrimSpace(text[loc[0]:end]), true
}

// parseRequestedSections reads "... with A, B, C" from a report query.
func parseRequestedSections(query string) []string {
	match := requestedWithRe.FindStringSubmatch(query)
	if match == nil {
		return append([]string(nil), defaultReportSecs...)
	}

	sections := make([]string, 0, 4)
	seen := make(map[string]struct{})
	for _, part := range strings.Split(match[1], ",") {
		title := strings.TrimSpace(part)
		if title == "" {
			continue
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		sections = append(sections, title)
	}
	if len(sections) == 0 {
		return append([]string(nil), defaultReportSecs...)
	}
	return sections
}

// markdownTableFromLines treats the first non-empty line as the header and
// splits every other line on whitespace.
func markdownTableFromLines(text string) string {
	rows := make([][]string, 0)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Fields(line))
	}
	return markdownTable(rows)
}

// markdownTable renders rows[0] as the header. Short rows are padded and
// surplus cells are folded into the last column.
func markdownTable(rows [][]string) string {
	nonEmpty := make([][]string, 0, len(rows))
	for _, row := range rows {
		if rowIsBlank(row) {
			continue
		}
		nonEmpty = append(nonEmpty, row)
	}
	if len(nonEmpty) == 0 {
		return ""
	}

	header := trimTrailingBlank(nonEmpty[0])
	width := len(header)
	if width == 0 {
		return ""
	}

	var b strings.Builder
	writeMarkdownRow(&b, header)
	separator := make([]string, width)
	for i := range separator {
		separator[i] = "---"
	}
	writeMarkdownRow(&b, separator)

	for _, row := range nonEmpty[1:] {
		cells := make([]string, width)
		for i := 0; i < width && i < len(row); i++ {
			cells[i] = row[i]
		}
		if len(row) > width {
			cells[width-1] = strings.Join(row[width-1:], " ")
		}
		writeMarkdownRow(&b, cells)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeMarkdownRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, cell := range cells {
		b.WriteString(" ")
		b.WriteString(strings.ReplaceAll(strings.TrimSpace(cell), "|", `\|`))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

func rowIsBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func trimTrailingBlank(row []string) []string {
	end := len(row)
	for end > 0 && strings.TrimSpace(row[end-1]) == "" {
		end--
	}
	return row[:end]
}

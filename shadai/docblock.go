// Copyright (c) Microsoft. All rights reserved.

package shadai

import (
	"regexp"
	"strings"
)

// Doc is a parsed tool documentation block.
type Doc struct {
	// Summary is the first paragraph, joined onto one line.
	Summary string
	// Params maps parameter names to their descriptions.
	Params map[string]string
}

// Param returns the description documented for a parameter, looked up by
// its wire name first and then by its Go field name (case-insensitively).
func (d Doc) Param(names ...string) string {
	for _, n := range names {
		if desc, ok := d.Params[n]; ok {
			return desc
		}
	}
	for _, n := range names {
		for k, desc := range d.Params {
			if strings.EqualFold(k, n) {
				return desc
			}
		}
	}
	return ""
}

var (
	paramLine     = regexp.MustCompile(`^(\w+)\s*(?:\([^)]*\))?\s*:\s*(.*)$`)
	paramSections = map[string]bool{"args": true, "arguments": true, "parameters": true, "params": true}
	otherSections = map[string]bool{
		"returns": true, "return": true, "raises": true, "errors": true,
		"example": true, "examples": true, "yields": true, "notes": true, "note": true,
	}
)

// ParseDoc parses a documentation block written in the common
// "summary / Args:" layout:
//
//	Search the database.
//
//	Args:
//	    query: Search query string
//	    limit (int): Max results to return,
//	        continued on the next line.
//
// Unknown sections are ignored. An empty block yields an empty Doc.
func ParseDoc(text string) Doc {
	doc := Doc{Params: map[string]string{}}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var summary []string
	inSummary := true
	inParams := false
	paramIndent := -1
	current := ""

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		indent := len(line) - len(strings.TrimLeft(line, " \t"))

		if header, ok := sectionHeader(trimmed); ok && (paramIndent < 0 || indent < paramIndent) {
			inSummary = false
			inParams = paramSections[header]
			paramIndent = -1
			current = ""
			continue
		}

		if inSummary {
			if trimmed == "" {
				if len(summary) > 0 {
					inSummary = false
				}
				continue
			}
			summary = append(summary, trimmed)
			continue
		}

		if !inParams || trimmed == "" {
			continue
		}

		if paramIndent < 0 || indent <= paramIndent {
			if m := paramLine.FindStringSubmatch(trimmed); m != nil {
				paramIndent = indent
				current = m[1]
				doc.Params[current] = strings.TrimSpace(m[2])
				continue
			}
		}
		if current != "" && indent > paramIndent {
			doc.Params[current] = strings.TrimSpace(doc.Params[current] + " " + trimmed)
		}
	}

	doc.Summary = strings.Join(summary, " ")
	return doc
}

func sectionHeader(trimmed string) (string, bool) {
	if !strings.HasSuffix(trimmed, ":") {
		return "", false
	}
	name := strings.ToLower(strings.TrimSuffix(trimmed, ":"))
	if paramSections[name] || otherSections[name] {
		return name, true
	}
	return "", false
}

package rag

import (
	"regexp"
	"strconv"
	"strings"

	"pdf-rag/internal/models"
)

// sourcePattern matches markers like [Source: report.pdf, Page 3]. The file
// name may not contain brackets or line breaks.
var sourcePattern = regexp.MustCompile(`(?i)\[Source:\s*([^\[\]\n]+?),\s*Page\s*(\d+)\]`)

// ExtractCitations returns the well-formed markers in text, in order of
// first appearance. Markers with an empty name or a page below 1 are dropped.
func ExtractCitations(text string) []models.Citation {
	var out []models.Citation
	seen := make(map[models.Citation]bool)
	for _, m := range sourcePattern.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		page, err := strconv.Atoi(m[2])
		if err != nil || page < 1 {
			continue
		}
		c := models.Citation{SourceFile: name, PageNumber: page}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// ReconcileCitations returns the retrieved (file, page) pairs the answer
// cites, de-duplicated and in retrieval order.
//
// If none of the answer's markers matches a retrieved chunk, every
// retrieved pair is returned instead.
func ReconcileCitations(text string, chunks []models.RetrievedChunk) []models.Citation {
	cited := make(map[models.Citation]bool)
	for _, c := range ExtractCitations(text) {
		cited[c] = true
	}

	out := uniqueKeys(chunks, func(key models.Citation) bool { return cited[key] })
	if len(out) > 0 {
		return out
	}
	return uniqueKeys(chunks, func(models.Citation) bool { return true })
}

func uniqueKeys(chunks []models.RetrievedChunk, keep func(models.Citation) bool) []models.Citation {
	out := make([]models.Citation, 0, len(chunks))
	seen := make(map[models.Citation]bool, len(chunks))
	for _, c := range chunks {
		key := c.Key()
		if seen[key] || !keep(key) {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

package ollama

import (
	"fmt"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/infrastructure/catalog"
)

const maxSnippetRunes = 4000

func buildClassificationPrompt(c catalog.Catalog, snippet string) string {
	var categories strings.Builder
	for _, cat := range c.Categories {
		categories.WriteString(fmt.Sprintf("- %s", cat.Name))
		if cat.Description != "" {
			categories.WriteString(": " + cat.Description)
		}
		if len(cat.Keywords) > 0 {
			categories.WriteString(" (hints: " + strings.Join(cat.Keywords, ", ") + ")")
		}
		categories.WriteString("\n")
	}

	return fmt.Sprintf(`You are a document classifier.
Pick exactly one category from the list below. Use %s when nothing fits.
Return strict JSON object with keys:
category (string), confidence (number from 0 to 1).
No markdown, no extra keys.

Categories:
%s
Document:
%s`, c.DefaultCategory, categories.String(), snippet)
}

package keyword

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/catalog"
)

const (
	// FallbackConfidence is reported when no keyword matched and the default category is used.
	FallbackConfidence = 0.5

	minConfidence = 0.6
	maxConfidence = 0.99
)

// Classifier scores catalog categories by keyword occurrences in the extracted text.
type Classifier struct {
	catalog catalog.Catalog
}

func New(c catalog.Catalog) *Classifier {
	return &Classifier{catalog: c}
}

// Classify picks the category with the most keyword hits. Confidence grows with
// the share of all hits the winner holds; ties go to the category listed first.
func (c *Classifier) Classify(ctx context.Context, doc domain.Document) (domain.Classification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Classification{}, err
	}
	text := strings.ToLower(doc.ExtractedText)
	if strings.TrimSpace(text) == "" {
		return domain.Classification{}, errors.New("no text to classify")
	}

	best, bestHits, total := "", 0, 0
	for _, cat := range c.catalog.Categories {
		hits := 0
		for _, kw := range cat.Keywords {
			hits += strings.Count(text, kw)
		}
		total += hits
		if hits > bestHits {
			best, bestHits = cat.Name, hits
		}
	}

	if bestHits == 0 {
		return domain.Classification{Category: c.catalog.DefaultCategory, Confidence: FallbackConfidence}, nil
	}

	share := float64(bestHits) / float64(total)
	// More hits for the winner push confidence toward the cap.
	strength := 1 - 1/float64(bestHits+1)
	confidence := minConfidence + (maxConfidence-minConfidence)*share*strength
	return domain.Classification{
		Category:   best,
		Confidence: math.Round(confidence*100) / 100,
	}, nil
}

package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ternarybob/arbor"
)

// IndexingAgent builds a term-frequency index for a document. It is fully
// deterministic: tokenize, drop stopwords and short tokens, count, rank.
//
// Input Format:
//
//	{
//	    "content": "Document text...",  // Or injected via a dependency result
//	    "max_keywords": 15              // Clamped to [5, 25]
//	}
//
// Output Format:
//
//	{
//	    "keywords": [{"term": "termination", "count": 12}, ...],
//	    "total_terms": 4821,
//	    "unique_terms": 913
//	}
type IndexingAgent struct {
	logger arbor.ILogger
}

func NewIndexingAgent(logger arbor.ILogger) *IndexingAgent {
	return &IndexingAgent{logger: logger}
}

// GetType returns the agent name used for registry lookup
func (a *IndexingAgent) GetType() string {
	return "indexing"
}

// stopwords covers common English function words plus markdown noise tokens.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "any": true, "can": true,
	"had": true, "her": true, "was": true, "one": true, "our": true,
	"out": true, "has": true, "have": true, "this": true, "that": true,
	"with": true, "from": true, "they": true, "will": true, "would": true,
	"there": true, "their": true, "what": true, "which": true, "when": true,
	"were": true, "been": true, "who": true, "its": true, "his": true,
	"she": true, "him": true, "than": true, "then": true, "them": true,
	"these": true, "those": true, "such": true, "into": true, "upon": true,
	"shall": true, "may": true, "must": true, "each": true, "other": true,
	"under": true, "over": true, "only": true, "also": true, "more": true,
	"per": true, "www": true, "http": true, "https": true,
}

func (a *IndexingAgent) Execute(ctx context.Context, taskName string, inputs map[string]interface{}) (interface{}, error) {
	content, ok := contentFromInputs(inputs)
	if !ok {
		return nil, fmt.Errorf("content is required, either directly or from a dependency result")
	}
	maxKeywords := clampInt(inputs, "max_keywords", 15, 5, 25)

	tokens := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	counts := make(map[string]int)
	totalTerms := 0
	for _, token := range tokens {
		if len(token) < 3 || stopwords[token] {
			continue
		}
		counts[token]++
		totalTerms++
	}

	terms := make([]string, 0, len(counts))
	for term := range counts {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxKeywords {
		terms = terms[:maxKeywords]
	}

	keywords := make([]map[string]interface{}, 0, len(terms))
	for _, term := range terms {
		keywords = append(keywords, map[string]interface{}{
			"term":  term,
			"count": counts[term],
		})
	}

	a.logger.Debug().
		Str("task", taskName).
		Int("unique_terms", len(counts)).
		Int("keywords", len(keywords)).
		Msg("Index built")

	return map[string]interface{}{
		"keywords":     keywords,
		"total_terms":  totalTerms,
		"unique_terms": len(counts),
	}, nil
}

package assistant

import (
	"strings"

	"github.com/askcart-ai/assistant/internal/model"
)

// MaxRecommendations caps the products attached to a single reply.
const MaxRecommendations = 3

// IntentClassifier labels a shopper's message. Implementations must be pure
// and must not depend on the reasoning engine.
type IntentClassifier interface {
	Classify(message string) model.Intent
}

// Recommender picks the products a generated reply refers to.
type Recommender interface {
	Recommend(reply string, candidates []model.Product) []model.Product
}

type intentRule struct {
	intent   model.Intent
	keywords []string
}

// KeywordClassifier matches lowercase keywords against the message.
// Rules are tried in order and the first hit wins.
type KeywordClassifier struct {
	rules []intentRule
}

// NewKeywordClassifier returns the default compare, support, search rules.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		rules: []intentRule{
			{intent: model.IntentCompare, keywords: []string{"compare", "vs", "difference"}},
			{intent: model.IntentSupport, keywords: []string{"return", "shipping", "policy"}},
			{intent: model.IntentSearch, keywords: []string{"looking for", "need", "want"}},
		},
	}
}

// Classify implements IntentClassifier.
func (c *KeywordClassifier) Classify(message string) model.Intent {
	lower := strings.ToLower(message)
	for _, rule := range c.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.intent
			}
		}
	}
	return model.IntentGeneral
}

// NameMatchRecommender returns candidates whose display name appears in the
// reply, case-insensitively, in catalog order. A name that is also a common
// word will match spuriously and a paraphrased name will not match at all.
type NameMatchRecommender struct {
	Limit int
}

// Recommend implements Recommender.
func (r NameMatchRecommender) Recommend(reply string, candidates []model.Product) []model.Product {
	limit := r.Limit
	if limit <= 0 || limit > MaxRecommendations {
		limit = MaxRecommendations
	}

	lower := strings.ToLower(reply)
	var out []model.Product
	for _, p := range candidates {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" || !strings.Contains(lower, name) {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out
}

package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"

	"github.com/askcart-ai/assistant/internal/model"
)

const replyTemplate = `You are AskCart AI, a helpful e-commerce shopping assistant. Your role is to:
1. Help customers find products that match their needs
2. Provide detailed product information and comparisons
3. Answer questions about shipping, returns, and policies
4. Offer personalized recommendations based on customer preferences

Available products in the catalog:
{{.catalog}}

Guidelines:
- Be friendly, helpful, and conversational
- Always recommend specific products when relevant, using their exact catalog names
- Provide clear reasoning for your recommendations
- Keep responses concise but informative
- If asked about products not in catalog, politely explain limitations

Conversation history:
{{.history}}

Current user message: {{.message}}

Respond with helpful information and product recommendations if relevant.`

const compareTemplate = `Compare these products and provide a helpful comparison for a customer:

{{.products}}

Provide a clear, concise comparison highlighting:
- Key differences in features and specifications
- Price value analysis
- Which product might be better for different use cases
- Pros and cons of each option

Format the response in a customer-friendly way.`

const analyzeTemplate = `Analyze this product search query and extract structured information:
Query: "{{.query}}"

Return a JSON response with:
- category: product category if mentioned
- priceRange: {min, max} if price mentioned (in dollars)
- features: array of specific features or requirements mentioned
- intent: one of "search", "compare", "support", "general"

Example: "laptop under $1500 for gaming" -> {"category":"laptop","priceRange":{"min":0,"max":1500},"features":["gaming"],"intent":"search"}`

var (
	replyPrompt   = prompts.NewPromptTemplate(replyTemplate, []string{"catalog", "history", "message"})
	comparePrompt = prompts.NewPromptTemplate(compareTemplate, []string{"products"})
	analyzePrompt = prompts.NewPromptTemplate(analyzeTemplate, []string{"query"})
)

// buildReplyPrompt assembles the full instruction block for one turn. The
// engine keeps no state between calls, so everything it needs is in here.
func buildReplyPrompt(message string, history []model.Turn, products []model.Product) (string, error) {
	historyText, err := formatHistory(history)
	if err != nil {
		return "", err
	}
	return replyPrompt.Format(map[string]any{
		"catalog": formatCatalog(products),
		"history": historyText,
		"message": message,
	})
}

func formatCatalog(products []model.Product) string {
	var b strings.Builder
	for i, p := range products {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s - %s", p.Name, model.FormatPrice(p.Price), p.Description)
	}
	return b.String()
}

func formatHistory(history []model.Turn) (string, error) {
	messages := make([]llms.ChatMessage, 0, len(history))
	for _, turn := range history {
		switch turn.Role {
		case model.RoleUser:
			messages = append(messages, llms.HumanChatMessage{Content: turn.Content})
		case model.RoleAssistant:
			messages = append(messages, llms.AIChatMessage{Content: turn.Content})
		}
	}
	return llms.GetBufferString(messages, string(model.RoleUser), string(model.RoleAssistant))
}

type comparisonRecord struct {
	Name           string          `json:"name"`
	Price          string          `json:"price"`
	Description    string          `json:"description"`
	Specifications json.RawMessage `json:"specifications,omitempty"`
}

func buildComparePrompt(products []model.Product) (string, error) {
	records := make([]comparisonRecord, len(products))
	for i, p := range products {
		records[i] = comparisonRecord{
			Name:           p.Name,
			Price:          model.FormatPrice(p.Price),
			Description:    p.Description,
			Specifications: p.Specifications,
		}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode products: %w", err)
	}
	return comparePrompt.Format(map[string]any{"products": string(data)})
}

func buildAnalyzePrompt(query string) (string, error) {
	return analyzePrompt.Format(map[string]any{"query": query})
}

// extractJSON trims markdown fences and any prose around a JSON object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}

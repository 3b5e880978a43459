package summarize

import (
	"fmt"
	"strings"

	"newsroom/internal/core"
)

// systemPrompt frames every summarization call.
const systemPrompt = `You are a skilled local news summarizer. Your task is to create concise, accurate summaries of local news articles that help busy residents stay informed about their community.

Guidelines:
- Focus on key facts, decisions, and impacts on the local community
- Preserve important names, dates, locations, and numbers
- Highlight any actions residents should take or be aware of
- Maintain a neutral, informative tone
- Keep summaries between 150-250 words
- Extract 3-5 key points
- Identify the overall sentiment
- List 2-4 main topics covered`

// userPromptTemplate shapes the JSON response the batch pipeline parses.
const userPromptTemplate = `Please summarize this local news article:

Title: %s
Section: %s
Published: %s

Article Content:
%s

Provide a JSON response with the following structure:
{
    "summary": "150-250 word summary focusing on key facts and community impact",
    "key_points": ["3-5 bullet points of most important information"],
    "sentiment": "neutral|positive|negative|mixed",
    "tags": ["2-5 short topical tags"],
    "entities": ["people, places, and organizations mentioned"],
    "topics": [{"label": "topic name", "score": 0.9}],
    "event_dates": [{"title": "event", "start_time": "2025-01-01T18:00:00Z", "location_name": "venue"}],
    "confidence_score": 0.95
}`

// BuildUserPrompt renders the user prompt for one article, with the
// content already truncated to the token budget.
func BuildUserPrompt(article core.Article, content string) string {
	section := article.Section
	if section == "" {
		section = "General"
	}
	published := "Unknown"
	if article.DatePublished != nil {
		published = article.DatePublished.Format("2006-01-02")
	}
	return fmt.Sprintf(userPromptTemplate, article.Title, section, published, content)
}

// TruncateContent trims content to a soft token budget using the 4 chars
// per token heuristic, preferring to end on a sentence boundary.
func TruncateContent(content string, maxTokens int) string {
	estimated := len(content) / 4
	if estimated <= maxTokens {
		return content
	}

	maxChars := maxTokens * 4
	truncated := content[:maxChars]
	if lastPeriod := strings.LastIndex(truncated, "."); lastPeriod > int(float64(maxChars)*0.8) {
		truncated = truncated[:lastPeriod+1]
	}
	return truncated + "..."
}

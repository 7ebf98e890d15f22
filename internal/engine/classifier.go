package engine

import (
	"fmt"
	"strings"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

// Classifier thresholds
const (
	AmbiguityScoreGap = 0.08
	MinQueryWords     = 4
	MaxTopics         = 5
	TopResultsWindow  = 8
)

// vaguePatterns carry no specifics on their own
var vaguePatterns = []string{
	"проблема", "не работает", "ошибка", "помогите", "помощь",
	"не могу", "сломалось", "баг", "вопрос по", "вопрос",
	"как быть", "что делать", "не получается", "не открывается",
	"не сохраняется", "не отображается", "не печатается",
	"не загружается", "зависает", "глючит", "беда",
}

// broadObjects name common entities without detail
var broadObjects = []string{
	"накладная", "отчёт", "отчет", "документ", "справочник",
	"печать", "товар", "цена", "остаток", "приход", "расход",
	"рецепт", "лицензия", "обновление", "база", "касса",
	"чек", "скидка", "карта", "поставщик", "контрагент",
}

// Classification is the outcome of the completeness check
type Classification struct {
	Complete bool
	Topics   []domain.SuggestedTopic
	Message  string
}

// IsVague reports whether a query is too unspecific to answer directly:
// it contains a vague pattern and either names a broad object or is short.
func IsVague(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	short := len(strings.Fields(q)) < MinQueryWords
	return containsAny(q, vaguePatterns) && (short || containsAny(q, broadObjects))
}

// Classify decides whether passages answer the query directly or whether
// the user should pick one of several competing topics first. Passages must
// be ordered by descending score.
func Classify(query string, passages []Passage) Classification {
	if len(passages) == 0 {
		return Classification{Complete: true}
	}

	topics := UniqueTopics(passages)
	if len(topics) <= 1 {
		return Classification{Complete: true}
	}

	if !IsVague(query) {
		return Classification{Complete: true}
	}

	// clear leader
	if passages[0].Score-passages[1].Score > AmbiguityScoreGap {
		return Classification{Complete: true}
	}

	return Classification{
		Topics:  topics,
		Message: ClarificationMessage(topics),
	}
}

// UniqueTopics extracts up to MaxTopics distinct articles from the top of the result list
func UniqueTopics(passages []Passage) []domain.SuggestedTopic {
	window := passages
	if len(window) > TopResultsWindow {
		window = window[:TopResultsWindow]
	}

	seen := make(map[string]bool)
	var topics []domain.SuggestedTopic
	for _, p := range window {
		id := p.ArticleID
		if id == "" {
			id = "unknown"
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		title := strings.TrimSpace(p.Title)
		if title == "" {
			title = "Статья " + id
		}

		topics = append(topics, domain.SuggestedTopic{
			Title:     title,
			ArticleID: id,
			Score:     p.Score,
			Snippet:   snippet(p.Content),
		})
		if len(topics) >= MaxTopics {
			break
		}
	}
	return topics
}

// ClarificationMessage lists topics as numbered lines
func ClarificationMessage(topics []domain.SuggestedTopic) string {
	lines := []string{"Уточните, какая тема вас интересует:"}
	for i, t := range topics {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, t.Title))
	}
	lines = append(lines, "\nВыберите номер или опишите проблему подробнее.")
	return strings.Join(lines, "\n")
}

func snippet(content string) string {
	r := []rune(content)
	if len(r) > 120 {
		r = r[:120]
	}
	return strings.TrimSpace(strings.ReplaceAll(string(r), "\n", " "))
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

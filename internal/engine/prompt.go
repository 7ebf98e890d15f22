package engine

import (
	"fmt"
	"strings"
)

// SystemPrompt instructs the model to answer from context only and to end
// with a machine-readable confidence block
const SystemPrompt = `Ты — ИИ-ассистент техподдержки компании ООО «Фармбазис» (www.farmbazis.ru).
Компания разрабатывает программное обеспечение для аптек.

ПРАВИЛА:
1. Отвечай ТОЛЬКО на основе предоставленного контекста из базы знаний.
2. Если в контексте нет информации для ответа на вопрос — НЕ ВЫДУМЫВАЙ. Скажи, что не нашёл ответ, и предложи связаться с оператором.
3. Давай пошаговые, подробные инструкции.
4. Если к инструкции есть скриншоты — упомяни, что пользователь может посмотреть скриншоты в статье.
5. Если есть видео-инструкция на YouTube — обязательно дай ссылку.
6. Используй вежливый, профессиональный тон.
7. Отвечай на русском языке.
8. Не раскрывай внутреннюю механику работы бота.

В конце ответа ОБЯЗАТЕЛЬНО добавь JSON-блок оценки (пользователь его не увидит):
` + "```confidence\n" + `{"confidence": <число от 0.0 до 1.0>, "reason": "<краткое пояснение>"}
` + "```" + `

Где confidence:
- 0.0-0.3 — ответ не найден, нужна эскалация
- 0.3-0.6 — частичный ответ, может потребоваться помощь оператора
- 0.6-1.0 — уверенный ответ на основе базы знаний
`

// BuildContext renders passages as the knowledge base context block
func BuildContext(passages []Passage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n")
		}
		title := p.Title
		if title == "" {
			title = "Без названия"
		}
		fmt.Fprintf(&b, "--- Статья: %s (ID: %s) ---\n%s\n", title, p.ArticleID, p.Content)
	}
	return b.String()
}

// BuildUserMessage combines the context and the question into the final user message
func BuildUserMessage(req GenerateRequest) string {
	return fmt.Sprintf("\nКОНТЕКСТ ИЗ БАЗЫ ЗНАНИЙ:\n%s\n\nВОПРОС ПОЛЬЗОВАТЕЛЯ:\n%s\n", BuildContext(req.Passages), req.Question)
}

// LastTurns returns at most n trailing messages
func LastTurns(history []Message, n int) []Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

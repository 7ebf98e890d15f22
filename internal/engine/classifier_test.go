package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scored(items ...Passage) []Passage { return items }

func p(id, title string, score float64) Passage {
	return Passage{ArticleID: id, Title: title, Content: "Текст статьи " + title, Score: score}
}

func TestClassifyComplete(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		passages []Passage
	}{
		{"no results", "проблема в накладной", nil},
		{"single topic", "проблема в накладной", scored(p("1001", "Настройка накладных", 0.85))},
		{"specific query", "Как настроить формат печати расходной накладной в формате А4", scored(
			p("1001", "Печать накладной", 0.80),
			p("1002", "Настройка принтера", 0.78),
			p("1003", "Формат бланка", 0.75),
		)},
		{"clear leader", "проблема в накладной", scored(
			p("1001", "Не проводится накладная", 0.95),
			p("1002", "Не печатается накладная", 0.60),
		)},
		{"no vague pattern", "настроить шрифт в интерфейсе", scored(
			p("1001", "Настройка шрифтов", 0.70),
			p("1002", "Настройка языка", 0.68),
		)},
		{"same article chunks", "ошибка", scored(
			p("1001", "Накладная", 0.85),
			p("1001", "Накладная", 0.84),
		)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.query, tt.passages)
			assert.True(t, c.Complete)
			assert.Empty(t, c.Topics)
		})
	}
}

func TestClassifyNeedsClarification(t *testing.T) {
	c := Classify("проблема в накладной", scored(
		p("1001", "Не проводится накладная", 0.82),
		p("1002", "Не печатается накладная", 0.80),
		p("1003", "Ошибка цен в накладной", 0.79),
	))

	require.False(t, c.Complete)
	require.Len(t, c.Topics, 3)
	assert.Equal(t, "1001", c.Topics[0].ArticleID)
	assert.Equal(t, "1003", c.Topics[2].ArticleID)
	assert.Contains(t, c.Message, "1. Не проводится накладная")
	assert.Contains(t, c.Message, "2. Не печатается накладная")
	assert.True(t, strings.HasPrefix(c.Message, "Уточните, какая тема вас интересует:"))
	assert.True(t, strings.HasSuffix(c.Message, "Выберите номер или опишите проблему подробнее."))
}

func TestClassifyShortVagueQuery(t *testing.T) {
	c := Classify("ошибка", scored(
		p("1001", "Ошибка обновления", 0.75),
		p("1002", "Ошибка авторизации", 0.73),
		p("1003", "Ошибка приёма данных", 0.70),
	))
	assert.False(t, c.Complete)
}

func TestClassifyLimitsTopics(t *testing.T) {
	var passages []Passage
	for i := 0; i < 10; i++ {
		passages = append(passages, p(fmt.Sprintf("100%d", i), fmt.Sprintf("Тема %d", i), 0.80-float64(i)*0.01))
	}

	c := Classify("не работает", passages)
	require.False(t, c.Complete)
	assert.Len(t, c.Topics, MaxTopics)
}

func TestUniqueTopicsDedupAndDefaults(t *testing.T) {
	long := strings.Repeat("строка\n", 40)
	topics := UniqueTopics([]Passage{
		{ArticleID: "1001", Title: "Накладная", Content: "Чанк 1", Score: 0.85},
		{ArticleID: "1001", Title: "Накладная", Content: "Чанк 2", Score: 0.83},
		{ArticleID: "1002", Title: "  ", Content: long, Score: 0.80},
	})

	require.Len(t, topics, 2)
	assert.Equal(t, "Чанк 1", topics[0].Snippet)
	assert.Equal(t, "Статья 1002", topics[1].Title)
	assert.NotContains(t, topics[1].Snippet, "\n")
	assert.LessOrEqual(t, len([]rune(topics[1].Snippet)), 120)
}

func TestIsVague(t *testing.T) {
	assert.True(t, IsVague("Не работает касса при закрытии смены"))
	assert.True(t, IsVague("помогите"))
	assert.False(t, IsVague("Как сбросить пароль?"))
	assert.False(t, IsVague("ошибка при выгрузке данных в систему маркировки"))
}

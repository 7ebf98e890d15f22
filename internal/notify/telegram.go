package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

const (
	sendTimeout  = 10 * time.Second
	summaryTurns = 6
)

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Telegram posts notifications to a support group chat through the Bot API
type Telegram struct {
	client *http.Client
	apiURL string
	token  string
	chatID string
	logger *zap.Logger
}

// NewTelegram creates a Telegram notifier
func NewTelegram(apiURL, token, chatID string, logger *zap.Logger) *Telegram {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		client: &http.Client{Timeout: sendTimeout},
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		logger: logger,
	}
}

type sendMessageRequest struct {
	ChatID           string `json:"chat_id"`
	Text             string `json:"text"`
	ParseMode        string `json:"parse_mode"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// TicketCreated implements Notifier
func (t *Telegram) TicketCreated(ctx context.Context, esc *domain.Escalation) (string, error) {
	var b strings.Builder
	b.WriteString("🆘 <b>Новая заявка в техподдержку</b>\n\n")
	fmt.Fprintf(&b, "📋 <b>ID:</b> <code>%s...</code>\n", shortID(esc.ID))
	if esc.ContactInfo != "" {
		fmt.Fprintf(&b, "📞 <b>Контакт:</b> %s\n", escape(esc.ContactInfo, 0))
	}
	if esc.Reason != "" {
		fmt.Fprintf(&b, "❓ <b>Причина:</b> %s\n", escape(esc.Reason, 200))
	}

	question, answer := lastExchange(esc.ChatHistory)
	fmt.Fprintf(&b, "\n💬 <b>Последний вопрос:</b>\n%s\n", escape(question, 300))
	if answer != "" {
		fmt.Fprintf(&b, "\n🤖 <b>Ответ бота:</b>\n%s\n", escape(answer, 300))
	}
	if summary := summarize(esc.ChatHistory); summary != "" {
		fmt.Fprintf(&b, "\n📝 <b>Краткое содержание диалога:</b>\n%s\n", escape(summary, 500))
	}
	fmt.Fprintf(&b, "\n🔗 <b>Панель оператора:</b>\n/escalation_%s", shortID(esc.ID))

	id, err := t.send(ctx, sendMessageRequest{ChatID: t.chatID, Text: b.String(), ParseMode: "HTML"})
	if err != nil {
		return "", err
	}
	t.logger.Info("telegram notification sent", zap.String("escalation_id", esc.ID))
	return strconv.FormatInt(id, 10), nil
}

// OperatorReplied implements Notifier. The message threads under the ticket
// announcement when its id is known.
func (t *Telegram) OperatorReplied(ctx context.Context, esc *domain.Escalation, operator, reply string) error {
	text := fmt.Sprintf("✅ <b>Оператор ответил</b>\n\n👤 <b>Оператор:</b> %s\n📋 <b>Заявка:</b> <code>%s...</code>\n\n💬 %s",
		escape(operator, 0), shortID(esc.ID), escape(reply, 500))

	req := sendMessageRequest{ChatID: t.chatID, Text: text, ParseMode: "HTML"}
	if esc.TelegramMessageID != "" {
		if id, err := strconv.ParseInt(esc.TelegramMessageID, 10, 64); err == nil {
			req.ReplyToMessageID = id
		}
	}

	_, err := t.send(ctx, req)
	return err
}

func (t *Telegram) send(ctx context.Context, msg sendMessageRequest) (int64, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if !out.OK {
		if out.Description == "" {
			out.Description = resp.Status
		}
		return 0, errors.New("telegram api error: " + out.Description)
	}
	return out.Result.MessageID, nil
}

func escape(s string, limit int) string {
	if limit > 0 {
		if r := []rune(s); len(r) > limit {
			s = string(r[:limit])
		}
	}
	return htmlEscaper.Replace(s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// lastExchange finds the last user question and the assistant turn after it
func lastExchange(history []*domain.Turn) (question, answer string) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != domain.RoleUser {
			continue
		}
		question = history[i].Content
		if i+1 < len(history) {
			answer = history[i+1].Content
		}
		return question, answer
	}
	return "", ""
}

func summarize(history []*domain.Turn) string {
	if len(history) > summaryTurns {
		history = history[len(history)-summaryTurns:]
	}
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		role := "Пользователь"
		if turn.Role == domain.RoleAssistant {
			role = "Бот"
		}
		content := []rune(turn.Content)
		if len(content) > 100 {
			content = append(content[:100], '…')
		}
		lines = append(lines, role+": "+string(content))
	}
	return strings.Join(lines, "\n")
}

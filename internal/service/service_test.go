package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/helpdesk/internal/clarify"
	"github.com/liliang-cn/helpdesk/internal/domain"
	"github.com/liliang-cn/helpdesk/internal/engine"
	"github.com/liliang-cn/helpdesk/internal/repository"
)

// fakeBackend serves passages by query substring and a fixed confidence
type fakeBackend struct {
	mu         sync.Mutex
	byQuery    map[string][]engine.Passage
	fallback   []engine.Passage
	confidence float64
	genErr     error

	retrieves []engine.RetrieveRequest
	questions []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		byQuery: map[string][]engine.Passage{
			"накладн": {
				{ArticleID: "1001", Title: "Не проводится накладная", Content: "Проверьте остатки", Score: 0.82},
				{ArticleID: "1002", Title: "Не печатается накладная", Content: "Проверьте принтер", Score: 0.80},
			},
			"погода": nil,
		},
		fallback: []engine.Passage{
			{ArticleID: "2001", Title: "Сброс пароля", Content: "Откройте Сервис → Пользователи", Score: 0.91},
		},
		confidence: 0.9,
	}
}

func (f *fakeBackend) Retrieve(_ context.Context, req engine.RetrieveRequest) ([]engine.Passage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retrieves = append(f.retrieves, req)

	passages := f.fallback
	for key, p := range f.byQuery {
		if strings.Contains(strings.ToLower(req.Query), key) {
			passages = p
			break
		}
	}
	if req.ArticleID == "" {
		return passages, nil
	}
	var out []engine.Passage
	for _, p := range passages {
		if p.ArticleID == req.ArticleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) Generate(_ context.Context, req engine.GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, req.Question)
	if f.genErr != nil {
		return "", f.genErr
	}
	return fmt.Sprintf("Ответ по статье %s\n```confidence\n{\"confidence\": %v, \"reason\": \"test\"}\n```",
		req.Passages[0].ArticleID, f.confidence), nil
}

func (f *fakeBackend) Stats(context.Context) (*domain.KnowledgeBaseStats, error) {
	return &domain.KnowledgeBaseStats{TotalArticles: 3, TotalChunks: 12}, nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) lastRetrieve() engine.RetrieveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retrieves[len(f.retrieves)-1]
}

func (f *fakeBackend) lastQuestion() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.questions[len(f.questions)-1]
}

// recorder collects published ticket events
type recorder struct {
	mu     sync.Mutex
	events []*domain.TicketEvent
}

func (r *recorder) Publish(ev *domain.TicketEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fixture struct {
	db          *repository.DB
	backend     *fakeBackend
	answerer    *engine.Answerer
	clarify     *clarify.MemoryStore
	chat        *ChatService
	escalations *EscalationService
	sessions    *repository.SessionRepository
	repo        *repository.EscalationRepository
	events      *recorder
	notifier    *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := repository.NewDB(filepath.Join(t.TempDir(), "support.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	backend := newFakeBackend()
	store := clarify.NewMemoryStore(clarify.DefaultTTL)
	t.Cleanup(store.Close)

	sessions := repository.NewSessionRepository(db)
	repo := repository.NewEscalationRepository(db)
	answerer := engine.NewAnswerer(backend, engine.Options{TopK: 5, MinRelevance: 0.3, ConfidenceThreshold: 0.3}, nil)
	rec := &recorder{}
	notifier := &fakeNotifier{messageID: "777"}

	return &fixture{
		db:          db,
		backend:     backend,
		answerer:    answerer,
		clarify:     store,
		chat:        NewChatService(sessions, answerer, store, nil),
		escalations: NewEscalationService(repo, notifier, rec, nil),
		sessions:    sessions,
		repo:        repo,
		events:      rec,
		notifier:    notifier,
	}
}

type fakeNotifier struct {
	mu        sync.Mutex
	messageID string
	created   []string
	replies   []string
}

func (n *fakeNotifier) TicketCreated(_ context.Context, esc *domain.Escalation) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, esc.ID)
	return n.messageID, nil
}

func (n *fakeNotifier) OperatorReplied(_ context.Context, esc *domain.Escalation, operator, reply string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replies = append(n.replies, operator+": "+reply)
	return nil
}

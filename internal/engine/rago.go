package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	ragoconfig "github.com/liliang-cn/rago/v2/pkg/config"
	ragodomain "github.com/liliang-cn/rago/v2/pkg/domain"
	"github.com/liliang-cn/rago/v2/pkg/providers"
	"github.com/liliang-cn/rago/v2/pkg/rag"
	"github.com/liliang-cn/rago/v2/pkg/rag/processor"
	ragstore "github.com/liliang-cn/rago/v2/pkg/rag/store"

	// rago agent
	"github.com/liliang-cn/rago/v2/pkg/agent"

	"github.com/liliang-cn/helpdesk/internal/config"
	"github.com/liliang-cn/helpdesk/internal/domain"
)

// articleOverfetch widens the vector search when results are restricted to one article
const articleOverfetch = 4

// RagoBackend answers from a rago vector store with the rago agent as generator
type RagoBackend struct {
	cfg       *config.Config
	ragClient *rag.Client

	documentStore *ragstore.DocumentStore
	sqliteStore   *ragstore.SQLiteStore

	agentService *agent.Service
}

// NewRagoBackend wires the rago client, stores and agent
func NewRagoBackend(ctx context.Context, cfg *config.Config) (*RagoBackend, error) {
	ragoCfg := &ragoconfig.Config{
		Sqvect: ragoconfig.SqvectConfig{
			DBPath:    cfg.RAG.DBPath,
			IndexType: cfg.RAG.IndexType,
		},
		Chunker: ragoconfig.ChunkerConfig{
			ChunkSize: cfg.RAG.ChunkSize,
			Overlap:   cfg.RAG.ChunkOverlap,
		},
		Ingest: ragoconfig.IngestConfig{
			MetadataExtraction: ragoconfig.MetadataExtractionConfig{
				Enable: false,
			},
		},
	}

	factory := providers.NewFactory()
	providerCfg := &ragodomain.OpenAIProviderConfig{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		LLMModel:       cfg.LLM.LLMModel,
	}

	embedder, err := factory.CreateEmbedderProvider(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	llmProvider, err := factory.CreateLLMProvider(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	ragClient, err := rag.NewClient(ragoCfg, embedder, llmProvider, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create RAG client: %w", err)
	}

	sqliteStore, err := ragstore.NewSQLiteStore(cfg.RAG.DBPath, cfg.RAG.IndexType)
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite store: %w", err)
	}
	documentStore := ragstore.NewDocumentStore(sqliteStore.GetSqvectStore())

	proc := processor.New(
		embedder,
		llmProvider,
		nil, // chunker - will use default
		sqliteStore,
		documentStore,
		ragoCfg,
		nil, // metadata extractor
		nil, // memory service
	)

	agentService, err := agent.NewService(
		llmProvider,
		nil, // no MCP tools
		proc,
		cfg.RAG.DBPath+".agent",
		nil,
	)
	if err != nil {
		sqliteStore.Close()
		return nil, fmt.Errorf("failed to create agent service: %w", err)
	}

	return &RagoBackend{
		cfg:           cfg,
		ragClient:     ragClient,
		documentStore: documentStore,
		sqliteStore:   sqliteStore,
		agentService:  agentService,
	}, nil
}

// Retrieve performs a pure vector search without LLM generation
func (b *RagoBackend) Retrieve(ctx context.Context, req RetrieveRequest) ([]Passage, error) {
	topK := req.TopK
	if req.ArticleID != "" {
		topK *= articleOverfetch
	}

	resp, err := b.ragClient.Query(ctx, req.Query, &rag.QueryOptions{
		TopK:        topK,
		Temperature: 0,
		MaxTokens:   0,
		ShowSources: true,
	})
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		p := passageFromMetadata(src.Metadata)
		if p.ArticleID == "" {
			p.ArticleID = src.DocumentID
		}
		p.Content = src.Content
		p.Score = src.Score

		if req.ArticleID != "" && p.ArticleID != req.ArticleID {
			continue
		}
		passages = append(passages, p)
		if len(passages) >= req.TopK {
			break
		}
	}
	return passages, nil
}

// Generate asks the rago agent with the rendered support prompt
func (b *RagoBackend) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	result, err := b.agentService.Chat(ctx, renderPrompt(req))
	if err != nil {
		return "", fmt.Errorf("agent chat failed: %w", err)
	}

	answer := ""
	if result.FinalResult != nil {
		switch v := result.FinalResult.(type) {
		case string:
			answer = v
		case map[string]interface{}:
			if content, ok := v["content"].(string); ok {
				answer = content
			} else if content, ok := v["answer"].(string); ok {
				answer = content
			} else {
				answer = fmt.Sprintf("%v", v)
			}
		default:
			answer = fmt.Sprintf("%v", v)
		}
	}
	return answer, nil
}

// Stats counts indexed articles and chunks from the document store
func (b *RagoBackend) Stats(ctx context.Context) (*domain.KnowledgeBaseStats, error) {
	docs, err := b.documentStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	articles := make(map[string]bool)
	stats := &domain.KnowledgeBaseStats{}
	for _, doc := range docs {
		id := doc.ID
		if v, ok := doc.Metadata[domain.MetadataKeyArticleID].(string); ok && v != "" {
			id = v
		}
		articles[id] = true

		switch v := doc.Metadata[domain.MetadataKeyChunkCount].(type) {
		case int:
			stats.TotalChunks += v
		case float64:
			stats.TotalChunks += int(v)
		default:
			stats.TotalChunks++
		}
	}
	stats.TotalArticles = len(articles)
	return stats, nil
}

// Close closes the underlying stores
func (b *RagoBackend) Close() error {
	if b.sqliteStore != nil {
		return b.sqliteStore.Close()
	}
	return nil
}

// renderPrompt flattens the system prompt, history and question into the
// single message the agent accepts
func renderPrompt(req GenerateRequest) string {
	var sb strings.Builder
	sb.WriteString(SystemPrompt)
	if len(req.History) > 0 {
		sb.WriteString("\nИСТОРИЯ ДИАЛОГА:\n")
		for _, m := range req.History {
			role := "Пользователь"
			if m.Role == domain.RoleAssistant {
				role = "Ассистент"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, m.Content)
		}
	}
	sb.WriteString(BuildUserMessage(req))
	return sb.String()
}

// passageFromMetadata reads article fields from chunk metadata
func passageFromMetadata(meta map[string]interface{}) Passage {
	var p Passage
	if meta == nil {
		return p
	}
	p.ArticleID = metaString(meta[domain.MetadataKeyArticleID])
	p.Title = metaString(meta[domain.MetadataKeyTitle])
	if p.Title == "" {
		p.Title = metaString(meta[domain.MetadataKeyFilename])
	}
	p.YouTubeLinks = metaStrings(meta[domain.MetadataKeyYouTubeLinks])
	return p
}

func metaString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return fmt.Sprintf("%.0f", s)
	case int:
		return fmt.Sprintf("%d", s)
	default:
		return ""
	}
}

// metaStrings accepts a JSON-encoded list or a decoded one
func metaStrings(v interface{}) []string {
	switch s := v.(type) {
	case string:
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil
		}
		return out
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

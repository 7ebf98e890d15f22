package domain

// Article metadata keys stored alongside indexed chunks
const (
	MetadataKeyArticleID    = "article_id"
	MetadataKeyTitle        = "title"
	MetadataKeyFilename     = "filename"
	MetadataKeyYouTubeLinks = "youtube_links"
	MetadataKeyChunkCount   = "chunk_count"
)

// KnowledgeBaseStats summarises the indexed support articles
type KnowledgeBaseStats struct {
	TotalArticles int
	TotalChunks   int
}

// HealthResponse is the operational health report
type HealthResponse struct {
	Status             string `json:"status"`
	Version            string `json:"version"`
	KnowledgeBaseReady bool   `json:"knowledge_base_ready"`
	TotalArticles      int    `json:"total_articles"`
	TotalChunks        int    `json:"total_chunks"`
}

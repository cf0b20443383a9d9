package llm

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body POSTed to the upstream chat-completions endpoint.
// DataSources is omitted entirely when no retrieval grounding is configured;
// the upstream rejects an empty array.
type ChatRequest struct {
	Messages         []ChatMessage `json:"messages"`
	DataSources      []DataSource  `json:"data_sources,omitempty"`
	Temperature      float32       `json:"temperature"`
	TopP             float32       `json:"top_p"`
	FrequencyPenalty float32       `json:"frequency_penalty"`
	PresencePenalty  float32       `json:"presence_penalty"`
	MaxTokens        int32         `json:"max_tokens"`
	Stop             any           `json:"stop"`
	Stream           bool          `json:"stream"`
}

type DataSource struct {
	Type       string               `json:"type"`
	Parameters DataSourceParameters `json:"parameters"`
}

type DataSourceParameters struct {
	Endpoint            string              `json:"endpoint"`
	IndexName           string              `json:"index_name"`
	Authentication      Authentication      `json:"authentication"`
	QueryType           string              `json:"query_type"`
	TopNDocuments       int                 `json:"top_n_documents"`
	Strictness          int                 `json:"strictness"`
	FieldsMapping       FieldsMapping       `json:"fields_mapping"`
	EmbeddingDependency EmbeddingDependency `json:"embedding_dependency"`
}

type Authentication struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

type FieldsMapping struct {
	ContentFields []string `json:"content_fields"`
	FilepathField string   `json:"filepath_field"`
	TitleField    string   `json:"title_field"`
	URLField      string   `json:"url_field"`
	VectorFields  []string `json:"vector_fields"`
}

type EmbeddingDependency struct {
	Type           string `json:"type"`
	DeploymentName string `json:"deployment_name"`
}

// StreamChunk is one parsed SSE payload from the upstream. Only the delta
// content is consumed; everything else is passed over.
type StreamChunk struct {
	Choices []StreamChoice `json:"choices"`
}

type StreamChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

package chatbot

import (
	"context"
	"encoding/json"

	"github.com/studiumhub/coursechat/internal/llm"
	"github.com/studiumhub/coursechat/internal/search"
	"github.com/studiumhub/coursechat/internal/tokens"
)

// SearchSettings are the vector-search credentials the assembler needs when
// a configuration enables retrieval grounding.
type SearchSettings struct {
	Endpoint            string
	APIKey              string
	EmbeddingDeployment string
}

func (s SearchSettings) configured() bool {
	return s.Endpoint != "" && s.APIKey != ""
}

// AssembledPrompt is the output of one prompt-assembly pass: the upstream
// request, the user message that was inserted on the way, and the
// request-side token estimate used for reservation and quota checks.
type AssembledPrompt struct {
	Request        *llm.ChatRequest
	UserMessage    *Message
	ReservedTokens int
}

// AssemblePrompt loads the ordered history, inserts the new user message at
// the next order number, and builds the upstream chat request: system prompt
// first, then history in conversation order, then the new user turn. When
// the configuration enables grounding, a single data source pointing at the
// course index is attached.
func AssemblePrompt(ctx context.Context, repo *Repo, cfg *Configuration, conv *Conversation, userText, originHost string, settings SearchSettings) (*AssembledPrompt, error) {
	history, err := repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	newOrder := 1
	for _, m := range history {
		if m.OrderNumber >= newOrder {
			newOrder = m.OrderNumber + 1
		}
	}

	userMsg, err := repo.InsertUserMessage(ctx, conv.ID, userText, newOrder)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: cfg.Prompt})
	for _, m := range history {
		messages = append(messages, toAPIMessage(m))
	}
	messages = append(messages, llm.ChatMessage{Role: llm.RoleUser, Content: userText})

	req := &llm.ChatRequest{
		Messages:         messages,
		Temperature:      cfg.Temperature,
		TopP:             cfg.TopP,
		FrequencyPenalty: cfg.FrequencyPenalty,
		PresencePenalty:  cfg.PresencePenalty,
		MaxTokens:        cfg.ResponseMaxTokens,
		Stop:             nil,
		Stream:           true,
	}

	if cfg.UseAzureSearch {
		if !settings.configured() {
			return nil, ErrConfigMissing
		}
		req.DataSources = []llm.DataSource{groundingSource(cfg, originHost, settings)}
	}

	serialized, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}

	return &AssembledPrompt{
		Request:        req,
		UserMessage:    userMsg,
		ReservedTokens: tokens.Estimate(string(serialized)),
	}, nil
}

func toAPIMessage(m Message) llm.ChatMessage {
	role := llm.RoleUser
	if m.IsFromChatbot {
		role = llm.RoleAssistant
	}
	content := ""
	if m.Content != nil {
		content = *m.Content
	}
	return llm.ChatMessage{Role: role, Content: content}
}

func groundingSource(cfg *Configuration, originHost string, settings SearchSettings) llm.DataSource {
	return llm.DataSource{
		Type: "azure_search",
		Parameters: llm.DataSourceParameters{
			Endpoint:  settings.Endpoint,
			IndexName: search.IndexName(originHost, cfg.CourseID),
			Authentication: llm.Authentication{
				Type: "api_key",
				Key:  settings.APIKey,
			},
			QueryType:     "vector_simple_hybrid",
			TopNDocuments: 5,
			Strictness:    3,
			FieldsMapping: llm.FieldsMapping{
				ContentFields: []string{"chunk"},
				FilepathField: "filepath",
				TitleField:    "title",
				URLField:      "page_path",
				VectorFields:  []string{"text_vector"},
			},
			EmbeddingDependency: llm.EmbeddingDependency{
				Type:           "deployment_name",
				DeploymentName: settings.EmbeddingDeployment,
			},
		},
	}
}

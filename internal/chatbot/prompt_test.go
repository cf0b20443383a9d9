package chatbot

import (
	"context"
	"testing"

	"github.com/studiumhub/coursechat/internal/llm"
)

func TestAssemblePromptEmptyHistory(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	cfg := seedConfig(t, db, nil)
	conv := seedConversation(t, db, 1, cfg)

	ap, err := AssemblePrompt(context.Background(), repo, cfg, conv, "Hello", "courses.example.org", SearchSettings{})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	msgs := ap.Request.Messages
	if len(msgs) != 2 {
		t.Fatalf("expected [system, user], got %d messages", len(msgs))
	}
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != cfg.Prompt {
		t.Fatalf("system prompt not first: %+v", msgs[0])
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "Hello" {
		t.Fatalf("new user message not last: %+v", msgs[1])
	}
	if ap.UserMessage.OrderNumber != 1 {
		t.Fatalf("first message should get order 1, got %d", ap.UserMessage.OrderNumber)
	}
	if ap.ReservedTokens <= 0 {
		t.Fatalf("reserved estimate should be positive, got %d", ap.ReservedTokens)
	}
	if len(ap.Request.DataSources) != 0 {
		t.Fatalf("data sources must be omitted without grounding")
	}
	if !ap.Request.Stream {
		t.Fatalf("streaming must be enabled")
	}
}

func TestAssemblePromptPreservesHistoryOrder(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	cfg := seedConfig(t, db, nil)
	conv := seedConversation(t, db, 1, cfg)

	if _, err := repo.InsertUserMessage(context.Background(), conv.ID, "first", 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	reply := "earlier reply"
	placeholder, err := repo.InsertAssistantPlaceholder(context.Background(), conv.ID, 2, 5)
	if err != nil {
		t.Fatalf("seed placeholder: %v", err)
	}
	if err := repo.FinalizeAssistant(context.Background(), placeholder.ID, reply, true, 8); err != nil {
		t.Fatalf("seed finalize: %v", err)
	}

	ap, err := AssemblePrompt(context.Background(), repo, cfg, conv, "next question", "courses.example.org", SearchSettings{})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	msgs := ap.Request.Messages
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "first" {
		t.Fatalf("history user turn misplaced: %+v", msgs[1])
	}
	if msgs[2].Role != llm.RoleAssistant || msgs[2].Content != reply {
		t.Fatalf("history assistant turn misplaced: %+v", msgs[2])
	}
	if msgs[3].Content != "next question" {
		t.Fatalf("new turn not last: %+v", msgs[3])
	}
	if ap.UserMessage.OrderNumber != 3 {
		t.Fatalf("new order should be 3, got %d", ap.UserMessage.OrderNumber)
	}
}

func TestAssemblePromptMapsNullContentToEmpty(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	cfg := seedConfig(t, db, nil)
	conv := seedConversation(t, db, 1, cfg)

	// An orphaned placeholder with null content still appears in history.
	if _, err := repo.InsertAssistantPlaceholder(context.Background(), conv.ID, 1, 5); err != nil {
		t.Fatalf("seed placeholder: %v", err)
	}

	ap, err := AssemblePrompt(context.Background(), repo, cfg, conv, "hi", "h", SearchSettings{})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if ap.Request.Messages[1].Role != llm.RoleAssistant || ap.Request.Messages[1].Content != "" {
		t.Fatalf("null content should map to empty string: %+v", ap.Request.Messages[1])
	}
}

func TestAssemblePromptGrounding(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	cfg := seedConfig(t, db, func(c *Configuration) {
		c.UseAzureSearch = true
		c.CourseID = "c1"
	})
	conv := seedConversation(t, db, 1, cfg)

	settings := SearchSettings{
		Endpoint:            "https://search.example.net",
		APIKey:              "sk",
		EmbeddingDeployment: "text-embedding-ada-002",
	}
	ap, err := AssemblePrompt(context.Background(), repo, cfg, conv, "hi", "courses.example.org", settings)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	if len(ap.Request.DataSources) != 1 {
		t.Fatalf("expected exactly one data source, got %d", len(ap.Request.DataSources))
	}
	ds := ap.Request.DataSources[0].Parameters
	if ds.IndexName != "courses-example-org-c1" {
		t.Fatalf("index name: %q", ds.IndexName)
	}
	if ds.QueryType != "vector_simple_hybrid" || ds.TopNDocuments != 5 || ds.Strictness != 3 {
		t.Fatalf("grounding parameters wrong: %+v", ds)
	}
	if ds.EmbeddingDependency.DeploymentName != "text-embedding-ada-002" {
		t.Fatalf("embedding dependency: %+v", ds.EmbeddingDependency)
	}
}

func TestAssemblePromptGroundingWithoutCredentials(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	cfg := seedConfig(t, db, func(c *Configuration) { c.UseAzureSearch = true })
	conv := seedConversation(t, db, 1, cfg)

	_, err := AssemblePrompt(context.Background(), repo, cfg, conv, "hi", "h", SearchSettings{})
	if err != ErrConfigMissing {
		t.Fatalf("expected ErrConfigMissing, got %v", err)
	}
}

package handlers

import (
	"log/slog"

	"github.com/studiumhub/coursechat/internal/chatbot"
	"github.com/studiumhub/coursechat/internal/config"
	"github.com/studiumhub/coursechat/internal/llm"
	"github.com/studiumhub/coursechat/internal/store/rabbitmq"
	"github.com/studiumhub/coursechat/internal/store/redisstore"
	"gorm.io/gorm"
)

type Handler struct {
	DB           *gorm.DB
	Cfg          config.Config
	Repo         *chatbot.Repo
	Configs      *redisstore.CachedConfigSource
	Orchestrator *chatbot.Orchestrator
	Rabbit       *rabbitmq.Publisher
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *Handler {
	repo := chatbot.NewRepo(db)
	configs := redisstore.NewCachedConfigSource(rds, repo, slog.Default())

	upstream := llm.NewClient(cfg.ChatEndpoint, cfg.ChatAPIKey, cfg.ChatAPIVersion)
	settings := chatbot.SearchSettings{
		Endpoint:            cfg.SearchEndpoint,
		APIKey:              cfg.SearchAPIKey,
		EmbeddingDeployment: cfg.EmbeddingDeployment,
	}
	orch := chatbot.NewOrchestrator(repo, configs, upstream, settings, slog.Default())

	return &Handler{
		DB:           db,
		Cfg:          cfg,
		Repo:         repo,
		Configs:      configs,
		Orchestrator: orch,
		Rabbit:       rabbit,
	}
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/studiumhub/coursechat/internal/chatbot"
	"github.com/studiumhub/coursechat/internal/common"
	"github.com/studiumhub/coursechat/internal/store/rabbitmq"
)

type updateConfigurationReq struct {
	Prompt              *string  `json:"prompt"`
	Temperature         *float32 `json:"temperature"`
	TopP                *float32 `json:"top_p"`
	FrequencyPenalty    *float32 `json:"frequency_penalty"`
	PresencePenalty     *float32 `json:"presence_penalty"`
	ResponseMaxTokens   *int32   `json:"response_max_tokens"`
	DailyTokensPerUser  *int32   `json:"daily_tokens_per_user"`
	WeeklyTokensPerUser *int32   `json:"weekly_tokens_per_user"`
	UseAzureSearch      *bool    `json:"use_azure_search"`
	MaintainIndex       *bool    `json:"maintain_azure_search_index"`
	HideCitations       *bool    `json:"hide_citations"`
	EnabledToStudents   *bool    `json:"enabled_to_students"`
	DefaultChatbot      *bool    `json:"default_chatbot"`
}

// UpdateConfiguration writes administrative changes and drops the cached
// copy so the next chat turn sees them.
func (h *Handler) UpdateConfiguration(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid configuration id")
		return
	}

	var req updateConfigurationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	cfg, err := h.Repo.GetConfiguration(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, chatbot.ErrConfigMissing) {
			common.Fail(c, http.StatusNotFound, 40402, "chatbot configuration not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	applyConfigurationUpdate(cfg, &req)

	if err := h.Repo.UpdateConfiguration(c.Request.Context(), cfg); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to update configuration")
		return
	}
	h.Configs.Invalidate(c.Request.Context(), cfg.ID)

	common.OK(c, cfg)
}

func applyConfigurationUpdate(cfg *chatbot.Configuration, req *updateConfigurationReq) {
	if req.Prompt != nil {
		cfg.Prompt = *req.Prompt
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		cfg.TopP = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		cfg.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		cfg.PresencePenalty = *req.PresencePenalty
	}
	if req.ResponseMaxTokens != nil {
		cfg.ResponseMaxTokens = *req.ResponseMaxTokens
	}
	if req.DailyTokensPerUser != nil {
		cfg.DailyTokensPerUser = *req.DailyTokensPerUser
	}
	if req.WeeklyTokensPerUser != nil {
		cfg.WeeklyTokensPerUser = *req.WeeklyTokensPerUser
	}
	if req.UseAzureSearch != nil {
		cfg.UseAzureSearch = *req.UseAzureSearch
	}
	if req.MaintainIndex != nil {
		cfg.MaintainAzureSearchIndex = *req.MaintainIndex
	}
	if req.HideCitations != nil {
		cfg.HideCitations = *req.HideCitations
	}
	if req.EnabledToStudents != nil {
		cfg.EnabledToStudents = *req.EnabledToStudents
	}
	if req.DefaultChatbot != nil {
		cfg.DefaultChatbot = *req.DefaultChatbot
	}
}

// RefreshCourseIndex enqueues a maintenance job; the worker handles the
// actual index lifecycle outside the request path.
func (h *Handler) RefreshCourseIndex(c *gin.Context) {
	courseID := c.Param("course_id")
	if courseID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "course_id required")
		return
	}

	cfg, err := h.Repo.GetDefaultConfigurationForCourse(c.Request.Context(), courseID)
	if err != nil {
		if errors.Is(err, chatbot.ErrConfigMissing) {
			common.Fail(c, http.StatusNotFound, 40402, "no chatbot configuration for course")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if !cfg.MaintainAzureSearchIndex {
		common.Fail(c, http.StatusConflict, 40901, "index maintenance not enabled for course")
		return
	}

	job := rabbitmq.IndexRefreshJob{CourseID: courseID, OriginHost: c.Request.Host}
	if err := h.Rabbit.PublishIndexRefresh(c.Request.Context(), job); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}

	common.OK(c, gin.H{"course_id": courseID, "queued": true})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiumhub/coursechat/internal/chatbot"
	"github.com/studiumhub/coursechat/internal/common"
	"github.com/studiumhub/coursechat/internal/httpapi/middleware"
	"github.com/studiumhub/coursechat/internal/llm"
	"gorm.io/gorm"
)

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

type createConversationReq struct {
	ConfigurationID uint64 `json:"configuration_id" binding:"required"`
}

func (h *Handler) CreateConversation(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	cfg, err := h.Configs.GetConfiguration(c.Request.Context(), req.ConfigurationID)
	if err != nil {
		if errors.Is(err, chatbot.ErrConfigMissing) {
			common.Fail(c, http.StatusNotFound, 40402, "chatbot configuration not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if !cfg.EnabledToStudents {
		common.Fail(c, http.StatusForbidden, 40301, "chatbot not enabled")
		return
	}

	cid, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	conv := &chatbot.Conversation{
		ConversationID:  cid,
		UserID:          uid,
		ConfigurationID: cfg.ID,
	}
	if err := h.Repo.CreateConversation(c.Request.Context(), conv); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create conversation")
		return
	}

	common.OK(c, gin.H{"conversation_id": conv.ConversationID})
}

func (h *Handler) ListConversationMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	conv, err := h.Repo.GetConversationByPublicID(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if conv.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
		return
	}

	msgs, err := h.Repo.ListMessages(c.Request.Context(), conv.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}

	common.OK(c, gin.H{"messages": msgs})
}

type streamMessageReq struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
}

// StreamChatMessage runs one chat turn and copies the engine's stream to the
// client as newline-delimited JSON. Closing the connection mid-stream
// cancels the request context; the engine persists whatever was streamed.
func (h *Handler) StreamChatMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req streamMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	st, err := h.Orchestrator.StartChat(c.Request.Context(), uid, req.ConversationID, req.Message, c.Request.Host)
	if err != nil {
		h.failChat(c, err)
		return
	}
	defer st.Close()

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	flusher, okk := c.Writer.(http.Flusher)
	if !okk {
		st.Close()
		return
	}

	for b := range st.Chunks() {
		if _, err := c.Writer.Write(b); err != nil {
			// Client is gone; let the engine unwind via cancellation.
			st.Close()
			continue
		}
		flusher.Flush()
	}

	if err := st.Err(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("chat stream ended with error", "conversation_id", req.ConversationID, "err", err)
		item, merr := json.Marshal(gin.H{"error": "stream interrupted"})
		if merr == nil {
			_, _ = c.Writer.Write(append(item, '\n'))
			flusher.Flush()
		}
	}
}

func (h *Handler) failChat(c *gin.Context, err error) {
	var ue *llm.UpstreamError
	switch {
	case errors.Is(err, chatbot.ErrConversationNotFound):
		common.Fail(c, http.StatusNotFound, 40401, "conversation not found")
	case errors.Is(err, chatbot.ErrConfigMissing):
		common.Fail(c, http.StatusNotFound, 40402, "chatbot configuration missing")
	case errors.Is(err, chatbot.ErrQuotaExceeded):
		common.Fail(c, http.StatusTooManyRequests, 42901, "token quota exceeded")
	case errors.As(err, &ue):
		slog.Error("upstream rejected chat request", "status", ue.Status, "body", ue.Body)
		common.Fail(c, http.StatusBadGateway, 50201, "upstream error")
	default:
		slog.Error("chat request failed", "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiumhub/coursechat/internal/common"
	"github.com/studiumhub/coursechat/internal/config"
	"github.com/studiumhub/coursechat/internal/httpapi/handlers"
	"github.com/studiumhub/coursechat/internal/httpapi/middleware"
	"github.com/studiumhub/coursechat/internal/store/rabbitmq"
	"github.com/studiumhub/coursechat/internal/store/redisstore"
	"gorm.io/gorm"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, rabbit *rabbitmq.Publisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	h := handlers.NewHandler(db, cfg, rds, rabbit)

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))

	// Chat (JWT required)
	authGroup.POST("/chat/conversations", h.CreateConversation)
	authGroup.GET("/chat/conversations/:conversation_id/messages", h.ListConversationMessages)
	authGroup.POST("/chat/messages/stream", h.StreamChatMessage)

	// Administration
	authGroup.PUT("/chatbot/configurations/:id", h.UpdateConfiguration)
	authGroup.POST("/chatbot/courses/:course_id/index/refresh", h.RefreshCourseIndex)

	return r
}

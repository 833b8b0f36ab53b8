package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const apiPrefix = "/api"

func (s *Server) apiAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if !s.authenticate(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) registerAPIRoutes(engine *gin.Engine) {
	api := engine.Group(apiPrefix, s.apiAuthMiddleware())
	api.GET("/health", s.ginAPIHealth)
	api.GET("/sessions", s.ginAPISessions)
	api.GET("/outbox", s.ginAPIOutbox)
	api.GET("/subscriptions", s.ginAPISubscriptions)
}

func (s *Server) ginAPIHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.Sessions.Len(),
		"watchers": s.Events.Count(),
	})
}

func (s *Server) ginAPISessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.Sessions.List()})
}

func (s *Server) ginAPIOutbox(c *gin.Context) {
	messages := s.Outbox.List()
	status := c.Query("status")
	if status != "" {
		filtered := messages[:0]
		for _, m := range messages {
			if string(m.Status) == status {
				filtered = append(filtered, m)
			}
		}
		messages = filtered
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages, "total": len(messages)})
}

func (s *Server) ginAPISubscriptions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subscriptions": s.Subs.List()})
}

// Package gateway is the HTTP surface: carrier webhooks for USSD and SMS,
// a token-protected ops API, and a WebSocket event stream for monitoring.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dahamkakooza/agrogram-gateway/internal/alert"
	"github.com/dahamkakooza/agrogram-gateway/internal/command"
	"github.com/dahamkakooza/agrogram-gateway/internal/config"
	"github.com/dahamkakooza/agrogram-gateway/internal/outbox"
	"github.com/dahamkakooza/agrogram-gateway/internal/session"
	"github.com/dahamkakooza/agrogram-gateway/internal/ussd"
)

// Server wires the webhooks to the menu engine, command dispatcher and
// outbox.
type Server struct {
	Config   *config.Config
	USSD     *ussd.Handler
	Commands *command.Registry
	Sessions *session.Store
	Outbox   *outbox.Store
	Subs     *alert.Store
	Events   *EventHub

	httpSrv *http.Server
	startAt time.Time
}

func NewServer(cfg *config.Config, h *ussd.Handler, reg *command.Registry,
	sessions *session.Store, ob *outbox.Store, subs *alert.Store) *Server {
	return &Server{
		Config:   cfg,
		USSD:     h,
		Commands: reg,
		Sessions: sessions,
		Outbox:   ob,
		Subs:     subs,
		Events:   NewEventHub(),
		startAt:  time.Now(),
	}
}

func (s *Server) buildRouter() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", s.ginHealth)
	engine.POST("/ussd/callback", s.ginUSSDCallback)
	engine.POST("/sms/inbound", s.ginSMSInbound)
	engine.GET("/ws", s.ginEventStream)
	s.registerAPIRoutes(engine)
	return engine
}

// Start begins serving and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	engine := s.buildRouter()

	addr := fmt.Sprintf(":%d", s.Config.Gateway.Port)
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	slog.Info("agrogram gateway starting", "port", s.Config.Gateway.Port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) ginHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(s.startAt).String(),
		"sessions": s.Sessions.Len(),
	})
}

func (s *Server) authenticate(token string) bool {
	expected := s.Config.Gateway.Auth.Token
	if expected == "" {
		return true // no auth configured
	}
	return token == expected
}

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dahamkakooza/agrogram-gateway/internal/ussd"
)

// ginUSSDCallback handles one carrier keypress callback. The carrier posts
// form fields and expects a plain-text "CON ..."/"END ..." body. This
// endpoint must answer every request with a screen; a missing field is the
// only case that returns a 400, since it means the carrier integration
// itself is broken.
func (s *Server) ginUSSDCallback(c *gin.Context) {
	cb := ussd.Callback{
		SessionID:   c.PostForm("sessionId"),
		Phone:       c.PostForm("phoneNumber"),
		Text:        c.PostForm("text"),
		ServiceCode: c.PostForm("serviceCode"),
	}
	if cb.SessionID == "" || cb.Phone == "" {
		c.String(http.StatusBadRequest, "sessionId and phoneNumber required")
		return
	}

	reply := s.USSD.Handle(c.Request.Context(), cb)
	s.Events.Publish("ussd.callback", gin.H{
		"sessionId": cb.SessionID,
		"input":     cb.Text,
		"end":       reply.End,
	})
	c.String(http.StatusOK, reply.Encode())
}

// smsInboundBody is the inbound SMS webhook payload.
type smsInboundBody struct {
	From       string    `json:"from" binding:"required"`
	To         string    `json:"to"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// ginSMSInbound acknowledges the webhook immediately; the reply is
// produced by the dispatcher and delivered asynchronously via the outbox.
func (s *Server) ginSMSInbound(c *gin.Context) {
	var body smsInboundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	// Dispatch runs detached: the request context dies with the 202, and
	// the carrier does not wait for the reply anyway.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		reply := s.Commands.Dispatch(ctx, body.From, body.Text)
		m := s.Outbox.Enqueue(body.From, reply)
		s.Events.Publish("sms.reply-enqueued", gin.H{
			"id": m.ID,
			"to": m.To,
		})
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

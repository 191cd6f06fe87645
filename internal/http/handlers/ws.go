package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/vinimpm/zoapets-sistema-sub001/internal/auth"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/chat"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/http/middleware"
	"github.com/vinimpm/zoapets-sistema-sub001/internal/ws"
)

type WSHandler struct {
	Hub            *ws.Hub
	Service        *chat.Service
	Verifier       auth.Verifier
	OriginPatterns []string
	Log            *logrus.Logger
}

// Handle admits a websocket connection. Browser websocket clients cannot
// set Authorization on the handshake, so the credential is accepted either
// as ?token=... or as a bearer header. Missing or invalid credentials close
// the request before any registry state is touched.
func (h *WSHandler) Handle(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		tokenStr = middleware.BearerToken(c.Request)
	}
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return
	}

	userID, err := h.Verifier.Verify(tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: h.OriginPatterns,
	})
	if err != nil {
		return // Accept already wrote the error response
	}

	client := h.Hub.Add(userID, ws.Wrap(conn))
	defer h.Hub.Remove(client)

	h.readLoop(c.Request.Context(), conn, userID)
}

// readLoop processes client -> server frames (typing signals) until the
// connection drops. Unknown frame types are ignored.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, userID uint) {
	for {
		var frame ws.InboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return
		}

		switch frame.Type {
		case ws.InboundTyping:
			var req ws.TypingRequest
			if err := json.Unmarshal(frame.Data, &req); err != nil {
				h.Log.WithFields(logrus.Fields{
					"user_id": userID,
				}).WithError(err).Warn("malformed typing frame")
				continue
			}
			h.Service.Typing(userID, req.RecipientID, req.IsTyping)
		}
	}
}

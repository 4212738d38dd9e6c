package api

import (
	"net/http"
	"sync"

	"zapbot-backend/internal/transport"
	"zapbot-backend/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionHandler manages the WhatsApp link lifecycle: a connect request
// issues a pairing token, the device confirms it, disconnect tears the
// link down. The tracker fans the transitions out to the engine.
type SessionHandler struct {
	Status *transport.StatusTracker
	Hub    *ws.Hub

	mu           sync.Mutex
	pendingToken string
}

func NewSessionHandler(status *transport.StatusTracker, hub *ws.Hub) *SessionHandler {
	return &SessionHandler{Status: status, Hub: hub}
}

func (h *SessionHandler) Connect(c *gin.Context) {
	if h.Status.Connected() {
		c.JSON(http.StatusOK, gin.H{"status": "connected"})
		return
	}

	h.mu.Lock()
	h.pendingToken = uuid.New().String()
	token := h.pendingToken
	h.mu.Unlock()

	h.broadcast("session_pairing", gin.H{"qr_code": token})
	c.JSON(http.StatusOK, gin.H{
		"status":  "awaiting_scan",
		"qr_code": token,
	})
}

type ConfirmSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *SessionHandler) Confirm(c *gin.Context) {
	var req ConfirmSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mu.Lock()
	valid := h.pendingToken != "" && h.pendingToken == req.Token
	if valid {
		h.pendingToken = ""
	}
	h.mu.Unlock()

	if !valid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid pairing token"})
		return
	}

	h.Status.SetConnected(true)
	h.broadcast("session_connected", gin.H{"connected": true})
	c.JSON(http.StatusOK, gin.H{"status": "connected"})
}

func (h *SessionHandler) Disconnect(c *gin.Context) {
	h.mu.Lock()
	h.pendingToken = ""
	h.mu.Unlock()

	h.Status.SetConnected(false)
	h.broadcast("session_disconnected", gin.H{"connected": false})
	c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
}

func (h *SessionHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connected": h.Status.Connected()})
}

func (h *SessionHandler) broadcast(event string, data interface{}) {
	if h.Hub != nil {
		h.Hub.BroadcastEvent(event, data)
	}
}

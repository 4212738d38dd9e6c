package webhook

import (
	"net/http"
	"time"

	"zapbot-backend/internal/automation"
	"zapbot-backend/internal/config"
	"zapbot-backend/internal/logger"
	"zapbot-backend/internal/store"
	"zapbot-backend/internal/ws"

	"github.com/gin-gonic/gin"
)

var log = logger.Named("webhook")

// Handler is the inbound message feed: it ingests the sender into the
// client ledger, stores the message, and hands the text to the trigger
// matcher.
type Handler struct {
	Config  *config.Config
	Clients *store.ClientStore
	Matcher *automation.Matcher
	Hub     *ws.Hub
}

func NewHandler(cfg *config.Config, clients *store.ClientStore, matcher *automation.Matcher, hub *ws.Hub) *Handler {
	return &Handler{Config: cfg, Clients: clients, Matcher: matcher, Hub: hub}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.Config.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// InboundMessage is the feed payload: who wrote, what, and from which
// campaign funnel the contact came.
type InboundMessage struct {
	Name      string    `json:"name"`
	Phone     string    `json:"phone" binding:"required"`
	Campaign  string    `json:"campaign"`
	Message   string    `json:"message" binding:"required"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) HandleMessage(c *gin.Context) {
	var payload InboundMessage
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.Clients.IngestInbound(payload.Name, payload.Phone, payload.Campaign, payload.Message)
	if err != nil {
		log.Errorw("failed to ingest inbound message", "phone", payload.Phone, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if h.Hub != nil {
		h.Hub.BroadcastEvent("new_message", gin.H{
			"client_id": client.ID,
			"content":   payload.Message,
		})
	}

	// Matching never blocks the feed and never fails it.
	go h.Matcher.ProcessIncomingMessage(client.ID, payload.Message)

	c.Status(http.StatusOK)
}

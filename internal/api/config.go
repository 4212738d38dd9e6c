package api

import (
	"net/http"

	"zapbot-backend/internal/store"
	"zapbot-backend/internal/ws"

	"github.com/gin-gonic/gin"
)

type ConfigHandler struct {
	Config *store.BotConfigStore
	Hub    *ws.Hub
}

func NewConfigHandler(config *store.BotConfigStore, hub *ws.Hub) *ConfigHandler {
	return &ConfigHandler{Config: config, Hub: hub}
}

func (h *ConfigHandler) GetConfig(c *gin.Context) {
	cfg, err := h.Config.Get()
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type UpdateConfigRequest struct {
	AttendantName     *string `json:"attendant_name"`
	WelcomeAudio      *bool   `json:"welcome_audio"`
	AutoResponse      *bool   `json:"auto_response"`
	AllowClientAudio  *bool   `json:"allow_client_audio"`
	AllowClientVideo  *bool   `json:"allow_client_video"`
	AllowClientImages *bool   `json:"allow_client_images"`
	PublicChatURL     *string `json:"public_chat_url"`
}

func (h *ConfigHandler) UpdateConfig(c *gin.Context) {
	var req UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := h.Config.Update(store.BotConfigUpdate{
		AttendantName:     req.AttendantName,
		WelcomeAudio:      req.WelcomeAudio,
		AutoResponse:      req.AutoResponse,
		AllowClientAudio:  req.AllowClientAudio,
		AllowClientVideo:  req.AllowClientVideo,
		AllowClientImages: req.AllowClientImages,
		PublicChatURL:     req.PublicChatURL,
	})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	if h.Hub != nil {
		h.Hub.BroadcastEvent("config_updated", cfg)
	}
	c.JSON(http.StatusOK, cfg)
}

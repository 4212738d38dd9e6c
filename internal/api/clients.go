package api

import (
	"net/http"

	"zapbot-backend/internal/models"
	"zapbot-backend/internal/store"
	"zapbot-backend/internal/ws"

	"github.com/gin-gonic/gin"
)

type ClientHandler struct {
	Clients *store.ClientStore
	Hub     *ws.Hub
}

func NewClientHandler(clients *store.ClientStore, hub *ws.Hub) *ClientHandler {
	return &ClientHandler{Clients: clients, Hub: hub}
}

func (h *ClientHandler) GetClients(c *gin.Context) {
	clients, err := h.Clients.List(c.Query("category"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, clients)
}

type CreateClientRequest struct {
	Name           string `json:"name" binding:"required"`
	Phone          string `json:"phone" binding:"required"`
	Category       string `json:"category" binding:"required"`
	CampaignSource string `json:"campaign_source"`
	Notes          string `json:"notes"`
}

func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := models.Client{
		Name:           req.Name,
		Phone:          req.Phone,
		Category:       req.Category,
		CampaignSource: req.CampaignSource,
		Notes:          req.Notes,
	}
	if err := h.Clients.Create(&client); err != nil {
		respondStoreError(c, err)
		return
	}

	h.notify("client_created", client)
	c.JSON(http.StatusCreated, client)
}

type UpdateClientRequest struct {
	Name           *string `json:"name"`
	Phone          *string `json:"phone"`
	Category       *string `json:"category"`
	Status         *string `json:"status"`
	CampaignSource *string `json:"campaign_source"`
	Notes          *string `json:"notes"`
}

func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req UpdateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.Clients.Update(c.Param("id"), store.ClientUpdate{
		Name:           req.Name,
		Phone:          req.Phone,
		Category:       req.Category,
		Status:         req.Status,
		CampaignSource: req.CampaignSource,
		Notes:          req.Notes,
	})
	if err != nil {
		respondStoreError(c, err)
		return
	}

	h.notify("client_updated", client)
	c.JSON(http.StatusOK, client)
}

type MoveCategoryRequest struct {
	Category string `json:"category" binding:"required"`
}

func (h *ClientHandler) MoveToCategory(c *gin.Context) {
	var req MoveCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := h.Clients.MoveToCategory(c.Param("id"), req.Category)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	h.notify("client_updated", client)
	c.JSON(http.StatusOK, client)
}

func (h *ClientHandler) DeleteClient(c *gin.Context) {
	id := c.Param("id")
	if err := h.Clients.Delete(id); err != nil {
		respondStoreError(c, err)
		return
	}
	h.notify("client_deleted", gin.H{"id": id})
	c.JSON(http.StatusOK, gin.H{"status": "Client deleted"})
}

func (h *ClientHandler) GetMessages(c *gin.Context) {
	messages, err := h.Clients.Messages(c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ClientHandler) notify(event string, data interface{}) {
	if h.Hub != nil {
		h.Hub.BroadcastEvent(event, data)
	}
}

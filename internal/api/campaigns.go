package api

import (
	"encoding/json"
	"net/http"
	"time"

	"zapbot-backend/internal/models"
	"zapbot-backend/internal/store"
	"zapbot-backend/internal/worker"
	"zapbot-backend/internal/ws"

	"github.com/gin-gonic/gin"
)

type CampaignHandler struct {
	Campaigns  *store.CampaignStore
	Dispatcher *worker.Dispatcher
	Hub        *ws.Hub
}

func NewCampaignHandler(campaigns *store.CampaignStore, dispatcher *worker.Dispatcher, hub *ws.Hub) *CampaignHandler {
	return &CampaignHandler{Campaigns: campaigns, Dispatcher: dispatcher, Hub: hub}
}

type CampaignStepRequest struct {
	Kind     string                `json:"kind" binding:"required"`
	Content  string                `json:"content"`
	MediaURL string                `json:"media_url"`
	FileName string                `json:"file_name"`
	Buttons  []models.ButtonOption `json:"buttons"`
	Delay    int                   `json:"delay"`
}

func (r CampaignStepRequest) toModel() models.CampaignStep {
	step := models.CampaignStep{
		Kind:     r.Kind,
		Content:  r.Content,
		MediaURL: r.MediaURL,
		FileName: r.FileName,
		Delay:    r.Delay,
	}
	if len(r.Buttons) > 0 {
		data, _ := json.Marshal(r.Buttons)
		step.Buttons = string(data)
	}
	return step
}

func campaignSteps(reqs []CampaignStepRequest) []models.CampaignStep {
	steps := make([]models.CampaignStep, 0, len(reqs))
	for _, r := range reqs {
		steps = append(steps, r.toModel())
	}
	return steps
}

func (h *CampaignHandler) GetCampaigns(c *gin.Context) {
	campaigns, err := h.Campaigns.List()
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaigns)
}

func (h *CampaignHandler) GetCampaign(c *gin.Context) {
	campaign, err := h.Campaigns.Get(c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

type CreateCampaignRequest struct {
	Name               string                `json:"name" binding:"required"`
	Description        string                `json:"description"`
	TargetCategory     string                `json:"target_category" binding:"required"`
	HasRemarketingFlow bool                  `json:"has_remarketing_flow"`
	Steps              []CampaignStepRequest `json:"steps"`
}

func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign := models.Campaign{
		Name:               req.Name,
		Description:        req.Description,
		TargetCategory:     req.TargetCategory,
		HasRemarketingFlow: req.HasRemarketingFlow,
		Steps:              campaignSteps(req.Steps),
	}
	if err := h.Campaigns.Create(&campaign); err != nil {
		respondStoreError(c, err)
		return
	}

	h.notify("campaign_created", campaign)
	c.JSON(http.StatusCreated, campaign)
}

type UpdateCampaignRequest struct {
	Name           *string                `json:"name"`
	Description    *string                `json:"description"`
	TargetCategory *string                `json:"target_category"`
	OpenCount      *int                   `json:"open_count"`
	Steps          *[]CampaignStepRequest `json:"steps"`
}

func (h *CampaignHandler) UpdateCampaign(c *gin.Context) {
	var req UpdateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upd := store.CampaignUpdate{
		Name:           req.Name,
		Description:    req.Description,
		TargetCategory: req.TargetCategory,
		OpenCount:      req.OpenCount,
	}
	if req.Steps != nil {
		steps := campaignSteps(*req.Steps)
		upd.Steps = &steps
	}

	campaign, err := h.Campaigns.Update(c.Param("id"), upd)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	h.notify("campaign_updated", campaign)
	c.JSON(http.StatusOK, campaign)
}

func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	id := c.Param("id")
	if err := h.Campaigns.Delete(id); err != nil {
		respondStoreError(c, err)
		return
	}
	h.notify("campaign_deleted", gin.H{"id": id})
	c.JSON(http.StatusOK, gin.H{"status": "Campaign deleted"})
}

// SendCampaign transitions the campaign to sent and dispatches its steps
// to the snapshotted recipient list in the background.
func (h *CampaignHandler) SendCampaign(c *gin.Context) {
	campaign, recipients, err := h.Campaigns.Send(c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}

	go h.Dispatcher.DispatchCampaign(campaign, recipients)

	h.notify("campaign_sent", campaign)
	c.JSON(http.StatusOK, gin.H{
		"status":     "Campaign sent",
		"sent_count": campaign.SentCount,
	})
}

type ScheduleCampaignRequest struct {
	ScheduledDate time.Time `json:"scheduled_date" binding:"required"`
}

func (h *CampaignHandler) ScheduleCampaign(c *gin.Context) {
	var req ScheduleCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	campaign, err := h.Campaigns.Schedule(c.Param("id"), req.ScheduledDate)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	h.notify("campaign_updated", campaign)
	c.JSON(http.StatusOK, campaign)
}

func (h *CampaignHandler) notify(event string, data interface{}) {
	if h.Hub != nil {
		h.Hub.BroadcastEvent(event, data)
	}
}

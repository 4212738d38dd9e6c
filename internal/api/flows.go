package api

import (
	"encoding/json"
	"net/http"

	"zapbot-backend/internal/models"
	"zapbot-backend/internal/store"
	"zapbot-backend/internal/ws"

	"github.com/gin-gonic/gin"
)

type FlowHandler struct {
	Flows *store.FlowStore
	Hub   *ws.Hub
}

func NewFlowHandler(flows *store.FlowStore, hub *ws.Hub) *FlowHandler {
	return &FlowHandler{Flows: flows, Hub: hub}
}

type FlowStepRequest struct {
	Kind          string                `json:"kind" binding:"required"`
	Content       string                `json:"content"`
	MediaURL      string                `json:"media_url"`
	FileName      string                `json:"file_name"`
	Options       []models.ButtonOption `json:"options"`
	Delay         int                   `json:"delay"`
	AIProductName string                `json:"ai_product_name"`
}

func (r FlowStepRequest) toModel() models.FlowStep {
	step := models.FlowStep{
		Kind:          r.Kind,
		Content:       r.Content,
		MediaURL:      r.MediaURL,
		FileName:      r.FileName,
		Delay:         r.Delay,
		AIProductName: r.AIProductName,
	}
	if len(r.Options) > 0 {
		data, _ := json.Marshal(r.Options)
		step.Options = string(data)
	}
	return step
}

func flowSteps(reqs []FlowStepRequest) []models.FlowStep {
	steps := make([]models.FlowStep, 0, len(reqs))
	for _, r := range reqs {
		steps = append(steps, r.toModel())
	}
	return steps
}

func (h *FlowHandler) GetFlows(c *gin.Context) {
	flows, err := h.Flows.List()
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, flows)
}

func (h *FlowHandler) GetFlow(c *gin.Context) {
	flow, err := h.Flows.Get(c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, flow)
}

type CreateFlowRequest struct {
	Name            string            `json:"name" binding:"required"`
	Description     string            `json:"description"`
	CampaignID      string            `json:"campaign_id" binding:"required"`
	Triggers        []string          `json:"triggers"`
	AbandonmentTime float64           `json:"abandonment_time"`
	IsActive        bool              `json:"is_active"`
	Steps           []FlowStepRequest `json:"steps"`
}

func (h *FlowHandler) CreateFlow(c *gin.Context) {
	var req CreateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flow := models.RemarketingFlow{
		Name:            req.Name,
		Description:     req.Description,
		CampaignID:      req.CampaignID,
		Triggers:        store.TriggersJSON(req.Triggers),
		AbandonmentTime: req.AbandonmentTime,
		IsActive:        req.IsActive,
		Steps:           flowSteps(req.Steps),
	}
	if err := h.Flows.Create(&flow); err != nil {
		respondStoreError(c, err)
		return
	}

	h.notify("flow_created", flow)
	c.JSON(http.StatusCreated, flow)
}

type UpdateFlowRequest struct {
	Name            *string            `json:"name"`
	Description     *string            `json:"description"`
	CampaignID      *string            `json:"campaign_id"`
	Triggers        *[]string          `json:"triggers"`
	AbandonmentTime *float64           `json:"abandonment_time"`
	Steps           *[]FlowStepRequest `json:"steps"`
}

func (h *FlowHandler) UpdateFlow(c *gin.Context) {
	var req UpdateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upd := store.FlowUpdate{
		Name:            req.Name,
		Description:     req.Description,
		CampaignID:      req.CampaignID,
		Triggers:        req.Triggers,
		AbandonmentTime: req.AbandonmentTime,
	}
	if req.Steps != nil {
		steps := flowSteps(*req.Steps)
		upd.Steps = &steps
	}

	flow, err := h.Flows.Update(c.Param("id"), upd)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	h.notify("flow_updated", flow)
	c.JSON(http.StatusOK, flow)
}

func (h *FlowHandler) DeleteFlow(c *gin.Context) {
	id := c.Param("id")
	if err := h.Flows.Delete(id); err != nil {
		respondStoreError(c, err)
		return
	}
	h.notify("flow_deleted", gin.H{"id": id})
	c.JSON(http.StatusOK, gin.H{"status": "Flow deleted"})
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (h *FlowHandler) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	flow, err := h.Flows.SetActive(c.Param("id"), *req.Active)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	h.notify("flow_updated", flow)
	c.JSON(http.StatusOK, flow)
}

func (h *FlowHandler) notify(event string, data interface{}) {
	if h.Hub != nil {
		h.Hub.BroadcastEvent(event, data)
	}
}

package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"zapbot-backend/internal/automation"
	"zapbot-backend/internal/config"
	"zapbot-backend/internal/database"
	"zapbot-backend/internal/models"
	"zapbot-backend/internal/store"
	"zapbot-backend/internal/transport"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type chanSender struct {
	sent chan transport.OutboundStep
}

func (s *chanSender) SendToClient(ctx context.Context, client models.Client, step transport.OutboundStep) (transport.Receipt, error) {
	s.sent <- step
	return transport.Receipt{MessageID: "wamid.test", DeliveredAt: time.Now()}, nil
}

type noMedia struct{}

func (noMedia) Resolve(ctx context.Context, mediaURL string) ([]byte, error) {
	return nil, transport.ErrMediaNotFound
}

type noAI struct{}

func (noAI) Generate(ctx context.Context, instructions, productContext string) (string, error) {
	return "", fmt.Errorf("disabled")
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB, *chanSender) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	clients := store.NewClientStore(db, nil, nil)
	sender := &chanSender{sent: make(chan transport.OutboundStep, 16)}
	scheduler := automation.NewScheduler(sender, noMedia{}, noAI{}, clients)
	scheduler.DelayUnit = time.Millisecond
	scheduler.AbandonmentUnit = time.Millisecond
	clients.SetExecutionCanceller(scheduler)
	matcher := automation.NewMatcher(db, scheduler)

	h := NewHandler(&config.Config{VerifyToken: "secret"}, clients, matcher, nil)
	r := gin.New()
	r.GET("/webhook", h.VerifyWebhook)
	r.POST("/webhook", h.HandleMessage)
	return r, db, sender
}

func TestVerifyWebhook(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleMessageIngestsClient(t *testing.T) {
	r, db, _ := newTestRouter(t)

	body := []byte(`{"name":"Maria","phone":"5511999990000","campaign":"Instagram","message":"oi, tudo bem?"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var client models.Client
	require.NoError(t, db.First(&client, "phone = ?", "5511999990000").Error)
	assert.Equal(t, models.CategoryNotBought, client.Category)
	assert.Equal(t, "oi, tudo bem?", client.LastMessage)

	var count int64
	require.NoError(t, db.Model(&models.Message{}).Where("client_id = ?", client.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestHandleMessageRejectsIncompletePayload(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(`{"name":"Maria"}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleMessageFiresMatchedFlow(t *testing.T) {
	r, db, sender := newTestRouter(t)

	sentAt := time.Now()
	campaign := models.Campaign{
		ID:                 uuid.NewString(),
		Name:               "Campanha",
		TargetCategory:     models.CategoryNotBought,
		Status:             models.CampaignSent,
		HasRemarketingFlow: true,
		SentAt:             &sentAt,
	}
	flow := models.RemarketingFlow{
		ID:             uuid.NewString(),
		Name:           "Fluxo",
		IsActive:       true,
		Triggers:       `["sim"]`,
		CampaignID:     campaign.ID,
		TargetCategory: models.CategoryNotBought,
		Steps:          []models.FlowStep{{Kind: models.StepMessage, Content: "que bom!", Position: 0}},
	}
	campaign.RemarketingFlowID = flow.ID
	require.NoError(t, db.Create(&campaign).Error)
	require.NoError(t, db.Create(&flow).Error)

	body := []byte(`{"name":"Maria","phone":"5511999990000","message":"SIM, quero"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	select {
	case step := <-sender.sent:
		assert.Equal(t, "que bom!", step.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("flow never fired")
	}
}

package store

import (
	"testing"
	"time"

	"zapbot-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCampaign(t *testing.T, s *CampaignStore, category string, steps ...models.CampaignStep) models.Campaign {
	t.Helper()
	campaign := models.Campaign{
		Name:           "Lançamento",
		TargetCategory: category,
		Steps:          steps,
	}
	require.NoError(t, s.Create(&campaign))
	return campaign
}

func TestCampaignCreateStartsAsDraft(t *testing.T) {
	db := newTestDB(t)
	inv := &countingInvalidator{}
	s := NewCampaignStore(db, inv)

	campaign := models.Campaign{
		Name:           "Lançamento",
		TargetCategory: models.CategoryNotBought,
		Status:         models.CampaignSent, // must be ignored
		SentCount:      42,
		Steps: []models.CampaignStep{
			{Kind: models.StepMessage, Content: "olá"},
			{Kind: models.StepImage, MediaURL: "https://cdn.example/a.png"},
		},
	}
	require.NoError(t, s.Create(&campaign))

	got, err := s.Get(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignDraft, got.Status)
	assert.Equal(t, 0, got.SentCount)
	assert.Nil(t, got.SentAt)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, 0, got.Steps[0].Position)
	assert.Equal(t, 1, got.Steps[1].Position)
	assert.Positive(t, inv.n.Load())
}

func TestCampaignCreateRejectsUnknownCategory(t *testing.T) {
	s := NewCampaignStore(newTestDB(t), nil)
	err := s.Create(&models.Campaign{Name: "x", TargetCategory: "vip"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCampaignCreateRejectsUnknownStepKind(t *testing.T) {
	s := NewCampaignStore(newTestDB(t), nil)
	err := s.Create(&models.Campaign{
		Name:           "x",
		TargetCategory: models.CategoryNotBought,
		Steps:          []models.CampaignStep{{Kind: "hologram"}},
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCampaignGetNotFound(t *testing.T) {
	s := NewCampaignStore(newTestDB(t), nil)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaignUpdateReplacesSteps(t *testing.T) {
	db := newTestDB(t)
	s := NewCampaignStore(db, nil)
	campaign := newCampaign(t, s, models.CategoryNotBought,
		models.CampaignStep{Kind: models.StepMessage, Content: "velho"},
	)

	steps := []models.CampaignStep{
		{Kind: models.StepMessage, Content: "novo 1"},
		{Kind: models.StepMessage, Content: "novo 2"},
	}
	got, err := s.Update(campaign.ID, CampaignUpdate{Steps: &steps})
	require.NoError(t, err)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "novo 1", got.Steps[0].Content)
	assert.Equal(t, "novo 2", got.Steps[1].Content)

	var count int64
	require.NoError(t, db.Model(&models.CampaignStep{}).Where("campaign_id = ?", campaign.ID).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestCampaignSendSnapshotsRecipients(t *testing.T) {
	db := newTestDB(t)
	s := NewCampaignStore(db, nil)
	seedCategoryClient(t, db, models.CategoryNotBought)
	seedCategoryClient(t, db, models.CategoryNotBought)
	seedCategoryClient(t, db, models.CategoryBoughtLogz)

	campaign := newCampaign(t, s, models.CategoryNotBought,
		models.CampaignStep{Kind: models.StepMessage, Content: "oferta"},
	)

	sent, recipients, err := s.Send(campaign.ID)
	require.NoError(t, err)
	assert.Len(t, recipients, 2)
	assert.Equal(t, models.CampaignSent, sent.Status)
	assert.Equal(t, 2, sent.SentCount)
	require.NotNil(t, sent.SentAt)

	_, _, err = s.Send(campaign.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCampaignScheduleRejectsNonDraft(t *testing.T) {
	db := newTestDB(t)
	s := NewCampaignStore(db, nil)
	campaign := newCampaign(t, s, models.CategoryNotBought)

	_, _, err := s.Send(campaign.ID)
	require.NoError(t, err)

	_, err = s.Schedule(campaign.ID, time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCampaignSendDue(t *testing.T) {
	db := newTestDB(t)
	s := NewCampaignStore(db, nil)
	seedCategoryClient(t, db, models.CategoryBoughtCorreios)

	campaign := newCampaign(t, s, models.CategoryBoughtCorreios,
		models.CampaignStep{Kind: models.StepMessage, Content: "lembrete"},
	)
	at := time.Now().Add(time.Minute)
	_, err := s.Schedule(campaign.ID, at)
	require.NoError(t, err)

	// Not due yet.
	due, err := s.SendDue(time.Now())
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.SendDue(at.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, campaign.ID, due[0].Campaign.ID)
	assert.Len(t, due[0].Recipients, 1)
	assert.Equal(t, models.CampaignSent, due[0].Campaign.Status)

	// Already sent, nothing left.
	due, err = s.SendDue(at.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestCampaignDeleteCascadesToFlows(t *testing.T) {
	db := newTestDB(t)
	campaigns := NewCampaignStore(db, nil)
	flows := NewFlowStore(db, nil)
	canceller := &recordingFlowCanceller{}
	campaigns.SetExecutionCanceller(canceller)

	campaign := models.Campaign{
		Name:               "Com fluxo",
		TargetCategory:     models.CategoryNotBought,
		HasRemarketingFlow: true,
		Steps:              []models.CampaignStep{{Kind: models.StepMessage, Content: "olá"}},
	}
	require.NoError(t, campaigns.Create(&campaign))

	flow := models.RemarketingFlow{
		Name:       "Fluxo",
		CampaignID: campaign.ID,
		Triggers:   TriggersJSON([]string{"sim"}),
		Steps:      []models.FlowStep{{Kind: models.StepMessage, Content: "resposta"}},
	}
	require.NoError(t, flows.Create(&flow))

	require.NoError(t, campaigns.Delete(campaign.ID))

	_, err := campaigns.Get(campaign.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = flows.Get(flow.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var stepCount int64
	require.NoError(t, db.Model(&models.FlowStep{}).Where("flow_id = ?", flow.ID).Count(&stepCount).Error)
	assert.Zero(t, stepCount)
	require.NoError(t, db.Model(&models.CampaignStep{}).Where("campaign_id = ?", campaign.ID).Count(&stepCount).Error)
	assert.Zero(t, stepCount)

	assert.Equal(t, []string{flow.ID}, canceller.cancelled, "cascade delete stops the flow's executions")
}

func TestSendDueSkipsCampaignNoLongerScheduled(t *testing.T) {
	db := newTestDB(t)
	s := NewCampaignStore(db, nil)
	campaign := newCampaign(t, s, models.CategoryNotBought)

	// Still a draft: the in-transaction re-check must neither send nor
	// report the campaign.
	_, ok, err := s.sendScheduled(campaign.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignDraft, got.Status)
	assert.Nil(t, got.SentAt)
}

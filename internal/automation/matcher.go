package automation

import (
	"zapbot-backend/internal/logger"
	"zapbot-backend/internal/models"

	"gorm.io/gorm"
)

var matcherLog = logger.Named("matcher")

// Matcher decides, for an inbound client message, whether a remarketing
// flow fires. It never returns an error to the message feed: stale or
// dangling references degrade to "no flow matched".
type Matcher struct {
	db        *gorm.DB
	scheduler *Scheduler
}

func NewMatcher(db *gorm.DB, scheduler *Scheduler) *Matcher {
	return &Matcher{db: db, scheduler: scheduler}
}

// ProcessIncomingMessage runs the trigger decision for one inbound text.
// The message itself is assumed to be already stored by the feed.
func (m *Matcher) ProcessIncomingMessage(clientID, text string) {
	var client models.Client
	if err := m.db.First(&client, "id = ?", clientID).Error; err != nil {
		// Client deleted between ingestion and matching. Not an error.
		matcherLog.Debugw("inbound message for unknown client", "client_id", clientID)
		return
	}

	flow, ok := m.matchFlow(client, text)
	if !ok {
		matcherLog.Debugw("no flow matched", "client_id", clientID)
		return
	}

	matcherLog.Infow("remarketing flow matched",
		"client_id", clientID, "flow_id", flow.ID, "campaign_id", flow.CampaignID)
	m.scheduler.Start(client, flow)
}

// matchFlow picks the winning flow for the client's category, if any.
// Candidates are flows whose owning campaign was sent to the client's
// category with remarketing enabled and a consistent back-reference. The
// most recently sent campaign wins ties, then creation time, then id, so
// the choice is deterministic.
func (m *Matcher) matchFlow(client models.Client, text string) (models.RemarketingFlow, bool) {
	var candidates []models.RemarketingFlow
	err := m.db.
		Joins("JOIN campaigns ON campaigns.id = remarketing_flows.campaign_id").
		Where("remarketing_flows.is_active = ?", true).
		Where("campaigns.status = ?", models.CampaignSent).
		Where("campaigns.has_remarketing_flow = ?", true).
		Where("campaigns.remarketing_flow_id = remarketing_flows.id").
		Where("campaigns.target_category = ?", client.Category).
		Order("campaigns.sent_at DESC, campaigns.created_at DESC, campaigns.id DESC").
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Find(&candidates).Error
	if err != nil {
		matcherLog.Errorw("candidate lookup failed", "client_id", client.ID, "error", err)
		return models.RemarketingFlow{}, false
	}

	for _, flow := range candidates {
		if ContainsTrigger(text, flow.EffectiveTriggers()) {
			return flow, true
		}
	}
	return models.RemarketingFlow{}, false
}

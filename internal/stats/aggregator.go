// Package stats derives reporting counters from the stores. Read-only: it
// caches one snapshot and recomputes after any store mutation invalidates
// it.
package stats

import (
	"sync"
	"time"

	"zapbot-backend/internal/models"

	"gorm.io/gorm"
)

// Statistics is the panel's reporting card.
type Statistics struct {
	TotalConversations     int     `json:"total_conversations"`
	ActiveConversations    int     `json:"active_conversations"`
	AbandonedConversations int     `json:"abandoned_conversations"`
	ResponseRate           float64 `json:"response_rate"`
	ConversionRate         float64 `json:"conversion_rate"`
	DailyMessages          int     `json:"daily_messages"`
	CampaignsSent          int     `json:"campaigns_sent"`
	CampaignReach          int     `json:"campaign_reach"`
}

type Aggregator struct {
	db    *gorm.DB
	mu    sync.Mutex
	cache *Statistics
}

func NewAggregator(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

// Invalidate drops the cached snapshot. Stores call this on mutation.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	a.cache = nil
	a.mu.Unlock()
}

// Snapshot returns the current statistics, recomputing only when a store
// mutation invalidated the cache.
func (a *Aggregator) Snapshot() (Statistics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache != nil {
		return *a.cache, nil
	}

	snap, err := a.compute()
	if err != nil {
		return Statistics{}, err
	}
	a.cache = &snap
	return snap, nil
}

func (a *Aggregator) compute() (Statistics, error) {
	var snap Statistics

	var total, active, abandoned, notBought int64
	if err := a.db.Model(&models.Client{}).Count(&total).Error; err != nil {
		return snap, err
	}
	if err := a.db.Model(&models.Client{}).Where("status = ?", models.ClientActive).Count(&active).Error; err != nil {
		return snap, err
	}
	if err := a.db.Model(&models.Client{}).Where("status = ?", models.ClientAbandoned).Count(&abandoned).Error; err != nil {
		return snap, err
	}
	if err := a.db.Model(&models.Client{}).Where("category = ?", models.CategoryNotBought).Count(&notBought).Error; err != nil {
		return snap, err
	}

	// Midnight in the server's timezone, not the UTC day boundary.
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var daily int64
	if err := a.db.Model(&models.Message{}).Where("created_at >= ?", startOfDay).Count(&daily).Error; err != nil {
		return snap, err
	}

	var campaignsSent int64
	var reach int64
	if err := a.db.Model(&models.Campaign{}).Where("status = ?", models.CampaignSent).Count(&campaignsSent).Error; err != nil {
		return snap, err
	}
	row := a.db.Model(&models.Campaign{}).Where("status = ?", models.CampaignSent).Select("COALESCE(SUM(sent_count), 0)").Row()
	if err := row.Scan(&reach); err != nil {
		return snap, err
	}

	snap.TotalConversations = int(total)
	snap.ActiveConversations = int(active)
	snap.AbandonedConversations = int(abandoned)
	snap.DailyMessages = int(daily)
	snap.CampaignsSent = int(campaignsSent)
	snap.CampaignReach = int(reach)
	if total > 0 {
		snap.ResponseRate = float64(active) / float64(total) * 100
		snap.ConversionRate = float64(total-notBought) / float64(total) * 100
	}
	return snap, nil
}

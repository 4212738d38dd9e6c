package worker

import (
	"context"
	"time"

	"zapbot-backend/internal/store"
)

// CampaignWorker periodically sends scheduled campaigns whose time has
// come, using the same snapshot semantics as a manual send.
type CampaignWorker struct {
	campaigns  *store.CampaignStore
	dispatcher *Dispatcher
	Interval   time.Duration
}

func NewCampaignWorker(campaigns *store.CampaignStore, dispatcher *Dispatcher) *CampaignWorker {
	return &CampaignWorker{
		campaigns:  campaigns,
		dispatcher: dispatcher,
		Interval:   30 * time.Second,
	}
}

func (w *CampaignWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.tick(now)
		}
	}
}

func (w *CampaignWorker) tick(now time.Time) {
	due, err := w.campaigns.SendDue(now)
	if err != nil {
		log.Errorw("scheduled campaign sweep failed", "error", err)
		return
	}
	for _, d := range due {
		go w.dispatcher.DispatchCampaign(d.Campaign, d.Recipients)
	}
}

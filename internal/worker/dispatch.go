package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"zapbot-backend/internal/logger"
	"zapbot-backend/internal/models"
	"zapbot-backend/internal/store"
	"zapbot-backend/internal/transport"
)

var log = logger.Named("worker")

// Dispatcher pushes a sent campaign's steps to its recipients. Campaign
// sends are bulk one-shots: each step goes to every recipient before the
// next step's delay starts.
type Dispatcher struct {
	sender  transport.Sender
	media   transport.MediaResolver
	clients *store.ClientStore

	// DelayUnit compresses step delays in tests; production is seconds.
	DelayUnit time.Duration
}

func NewDispatcher(sender transport.Sender, media transport.MediaResolver, clients *store.ClientStore) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		media:     media,
		clients:   clients,
		DelayUnit: time.Second,
	}
}

// DispatchCampaign runs in its own goroutine per campaign. Per-recipient
// failures are logged and skipped; one bad number never stops the batch.
func (d *Dispatcher) DispatchCampaign(campaign models.Campaign, recipients []models.Client) {
	if len(recipients) == 0 {
		log.Infow("campaign has no recipients", "campaign_id", campaign.ID)
		return
	}
	ctx := context.Background()

	for _, step := range campaign.Steps {
		if step.Delay > 0 {
			time.Sleep(time.Duration(step.Delay) * d.DelayUnit)
		}

		out := transport.OutboundStep{
			Kind:     step.Kind,
			Content:  step.Content,
			MediaURL: step.MediaURL,
			FileName: step.FileName,
		}
		if step.Kind == models.StepButtons && step.Buttons != "" {
			_ = json.Unmarshal([]byte(step.Buttons), &out.Options)
		}
		if models.MediaStepKind(step.Kind) {
			data, err := d.media.Resolve(ctx, step.MediaURL)
			if err != nil {
				log.Warnw("campaign media unresolved, skipping step",
					"campaign_id", campaign.ID, "media_url", step.MediaURL, "error", err)
				continue
			}
			out.Media = data
		}

		for _, recipient := range recipients {
			if _, err := d.sender.SendToClient(ctx, recipient, out); err != nil {
				if errors.Is(err, transport.ErrClientUnreachable) {
					log.Warnw("recipient unreachable", "campaign_id", campaign.ID, "client_id", recipient.ID)
				} else {
					log.Errorw("campaign step delivery failed",
						"campaign_id", campaign.ID, "client_id", recipient.ID, "error", err)
				}
				continue
			}
			if err := d.clients.RecordOutbound(recipient.ID, out.Content, campaignMessageType(step.Kind), step.MediaURL); err != nil {
				log.Errorw("failed to record campaign message", "client_id", recipient.ID, "error", err)
			}
		}
	}
	log.Infow("campaign dispatched", "campaign_id", campaign.ID, "recipients", len(recipients))
}

func campaignMessageType(kind string) string {
	switch kind {
	case models.StepAudio:
		return "audio"
	case models.StepImage:
		return "image"
	case models.StepVideo:
		return "video"
	case models.StepPDF:
		return "file"
	default:
		return "text"
	}
}

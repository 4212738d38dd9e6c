package store

import (
	"errors"
	"fmt"
	"time"

	"zapbot-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CampaignStore struct {
	db    *gorm.DB
	stats Invalidator
	execs FlowExecutionCanceller
}

func NewCampaignStore(db *gorm.DB, stats Invalidator) *CampaignStore {
	return &CampaignStore{db: db, stats: stats}
}

// SetExecutionCanceller wires the scheduler in after construction, so a
// cascade delete can stop executions of the flows it removes.
func (s *CampaignStore) SetExecutionCanceller(execs FlowExecutionCanceller) {
	s.execs = execs
}

// CampaignUpdate is a partial update; nil fields are left untouched.
type CampaignUpdate struct {
	Name           *string
	Description    *string
	TargetCategory *string
	OpenCount      *int
	Steps          *[]models.CampaignStep
}

// Create stores a new campaign as a draft with zeroed counters.
func (s *CampaignStore) Create(campaign *models.Campaign) error {
	if !models.ValidCategory(campaign.TargetCategory) {
		return fmt.Errorf("%w: unknown target category %q", ErrInvalidState, campaign.TargetCategory)
	}
	if err := validateCampaignSteps(campaign.Steps); err != nil {
		return err
	}

	campaign.ID = uuid.NewString()
	campaign.Status = models.CampaignDraft
	campaign.SentCount = 0
	campaign.OpenCount = 0
	campaign.SentAt = nil
	campaign.RemarketingFlowID = ""
	for i := range campaign.Steps {
		campaign.Steps[i].Position = i
	}

	if err := s.db.Create(campaign).Error; err != nil {
		return err
	}
	invalidate(s.stats)
	return nil
}

func (s *CampaignStore) Get(id string) (models.Campaign, error) {
	var campaign models.Campaign
	err := s.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&campaign, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return campaign, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
	}
	return campaign, err
}

func (s *CampaignStore) List() ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := s.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("created_at DESC").Find(&campaigns).Error
	if campaigns == nil {
		campaigns = []models.Campaign{}
	}
	return campaigns, err
}

// Update applies a partial update. Replacing steps rewrites the whole
// step list in the same transaction.
func (s *CampaignStore) Update(id string, upd CampaignUpdate) (models.Campaign, error) {
	if upd.TargetCategory != nil && !models.ValidCategory(*upd.TargetCategory) {
		return models.Campaign{}, fmt.Errorf("%w: unknown target category %q", ErrInvalidState, *upd.TargetCategory)
	}
	if upd.Steps != nil {
		if err := validateCampaignSteps(*upd.Steps); err != nil {
			return models.Campaign{}, err
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
			}
			return err
		}

		fields := map[string]interface{}{}
		if upd.Name != nil {
			fields["name"] = *upd.Name
		}
		if upd.Description != nil {
			fields["description"] = *upd.Description
		}
		if upd.TargetCategory != nil {
			fields["target_category"] = *upd.TargetCategory
		}
		if upd.OpenCount != nil {
			fields["open_count"] = *upd.OpenCount
		}
		if len(fields) > 0 {
			if err := tx.Model(&campaign).Updates(fields).Error; err != nil {
				return err
			}
		}

		if upd.Steps != nil {
			if err := tx.Where("campaign_id = ?", id).Delete(&models.CampaignStep{}).Error; err != nil {
				return err
			}
			steps := *upd.Steps
			for i := range steps {
				steps[i].ID = 0
				steps[i].CampaignID = id
				steps[i].Position = i
			}
			if len(steps) > 0 {
				if err := tx.Create(&steps).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return models.Campaign{}, err
	}

	invalidate(s.stats)
	return s.Get(id)
}

// Schedule moves a draft campaign to scheduled for the given time.
func (s *CampaignStore) Schedule(id string, at time.Time) (models.Campaign, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
			}
			return err
		}
		if campaign.Status != models.CampaignDraft {
			return fmt.Errorf("%w: cannot schedule campaign in status %q", ErrInvalidState, campaign.Status)
		}
		return tx.Model(&campaign).Updates(map[string]interface{}{
			"status":         models.CampaignScheduled,
			"scheduled_date": at,
		}).Error
	})
	if err != nil {
		return models.Campaign{}, err
	}
	invalidate(s.stats)
	return s.Get(id)
}

// Delete removes a campaign, its steps and every remarketing flow bound to
// it, as one transaction.
func (s *CampaignStore) Delete(id string) error {
	var flowIDs []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
			}
			return err
		}

		var flows []models.RemarketingFlow
		if err := tx.Where("campaign_id = ?", id).Find(&flows).Error; err != nil {
			return err
		}
		for _, flow := range flows {
			if err := tx.Where("flow_id = ?", flow.ID).Delete(&models.FlowStep{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.RemarketingFlow{}, "id = ?", flow.ID).Error; err != nil {
				return err
			}
			flowIDs = append(flowIDs, flow.ID)
		}

		if err := tx.Where("campaign_id = ?", id).Delete(&models.CampaignStep{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Campaign{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	if s.execs != nil {
		for _, flowID := range flowIDs {
			s.execs.CancelFlow(flowID)
		}
	}
	invalidate(s.stats)
	return nil
}

// Send transitions draft -> sent, snapshotting sent_count from the current
// size of the target category. Returns the recipients for dispatch.
func (s *CampaignStore) Send(id string) (models.Campaign, []models.Client, error) {
	var recipients []models.Client
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("campaign %s: %w", id, ErrNotFound)
			}
			return err
		}
		if campaign.Status != models.CampaignDraft {
			return fmt.Errorf("%w: cannot send campaign in status %q", ErrInvalidState, campaign.Status)
		}
		return s.markSent(tx, &campaign, &recipients)
	})
	if err != nil {
		return models.Campaign{}, nil, err
	}

	invalidate(s.stats)
	campaign, err := s.Get(id)
	return campaign, recipients, err
}

// DueCampaign pairs a just-sent scheduled campaign with its recipients.
type DueCampaign struct {
	Campaign   models.Campaign
	Recipients []models.Client
}

// SendDue transitions every scheduled campaign whose scheduled date has
// passed to sent, with the same snapshot semantics as Send. The dispatch
// worker is the only caller.
func (s *CampaignStore) SendDue(now time.Time) ([]DueCampaign, error) {
	var due []models.Campaign
	if err := s.db.Where("status = ? AND scheduled_date <= ?", models.CampaignScheduled, now).Find(&due).Error; err != nil {
		return nil, err
	}

	var sent []DueCampaign
	for _, campaign := range due {
		d, ok, err := s.sendScheduled(campaign.ID)
		if err != nil {
			log.Errorw("failed to send scheduled campaign", "campaign_id", campaign.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		sent = append(sent, d)
	}

	if len(sent) > 0 {
		invalidate(s.stats)
	}
	return sent, nil
}

// sendScheduled re-checks the status inside the transaction. A campaign
// that raced into another status since the sweep query is skipped, never
// dispatched or reported as sent.
func (s *CampaignStore) sendScheduled(id string) (DueCampaign, bool, error) {
	var recipients []models.Client
	sentNow := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var fresh models.Campaign
		if err := tx.First(&fresh, "id = ?", id).Error; err != nil {
			return err
		}
		if fresh.Status != models.CampaignScheduled {
			return nil
		}
		sentNow = true
		return s.markSent(tx, &fresh, &recipients)
	})
	if err != nil || !sentNow {
		return DueCampaign{}, false, err
	}
	full, err := s.Get(id)
	if err != nil {
		return DueCampaign{}, false, err
	}
	return DueCampaign{Campaign: full, Recipients: recipients}, true, nil
}

func (s *CampaignStore) markSent(tx *gorm.DB, campaign *models.Campaign, recipients *[]models.Client) error {
	if err := tx.Where("category = ?", campaign.TargetCategory).Find(recipients).Error; err != nil {
		return err
	}
	now := time.Now()
	return tx.Model(campaign).Updates(map[string]interface{}{
		"status":     models.CampaignSent,
		"sent_count": len(*recipients),
		"sent_at":    now,
	}).Error
}

func validateCampaignSteps(steps []models.CampaignStep) error {
	for i, step := range steps {
		if !models.ValidCampaignStepKind(step.Kind) {
			return fmt.Errorf("%w: step %d has unknown kind %q", ErrInvalidState, i, step.Kind)
		}
		if step.Delay < 0 {
			return fmt.Errorf("%w: step %d has negative delay", ErrInvalidState, i)
		}
	}
	return nil
}

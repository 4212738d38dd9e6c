package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"zapbot-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FlowStore struct {
	db    *gorm.DB
	stats Invalidator
	execs FlowExecutionCanceller
}

func NewFlowStore(db *gorm.DB, stats Invalidator) *FlowStore {
	return &FlowStore{db: db, stats: stats}
}

// SetExecutionCanceller wires the scheduler in after construction; the
// scheduler itself needs the stores for abandonment status flips.
func (s *FlowStore) SetExecutionCanceller(execs FlowExecutionCanceller) {
	s.execs = execs
}

// FlowUpdate is a partial update; nil fields are left untouched.
// Activation goes through SetActive, not here.
type FlowUpdate struct {
	Name            *string
	Description     *string
	Triggers        *[]string
	AbandonmentTime *float64
	CampaignID      *string
	Steps           *[]models.FlowStep
}

// TriggersJSON encodes a trigger list for storage.
func TriggersJSON(triggers []string) string {
	data, _ := json.Marshal(triggers)
	return string(data)
}

// Create stores a new flow and writes the owning campaign's back-reference
// in the same transaction. The campaign must exist and be flagged for
// remarketing.
func (s *FlowStore) Create(flow *models.RemarketingFlow) error {
	if err := validateFlowSteps(flow.Steps); err != nil {
		return err
	}
	if flow.AbandonmentTime <= 0 {
		flow.AbandonmentTime = 30
	}

	flow.ID = uuid.NewString()
	for i := range flow.Steps {
		flow.Steps[i].Position = i
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		campaign, err := requireRemarketingCampaign(tx, flow.CampaignID)
		if err != nil {
			return err
		}
		flow.TargetCategory = campaign.TargetCategory

		if flow.IsActive && len(flow.EffectiveTriggers()) == 0 {
			return fmt.Errorf("%w: cannot activate a flow without triggers", ErrInvalidState)
		}

		if err := tx.Create(flow).Error; err != nil {
			return err
		}
		return tx.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
			Update("remarketing_flow_id", flow.ID).Error
	})
	if err != nil {
		return err
	}
	invalidate(s.stats)
	return nil
}

func (s *FlowStore) Get(id string) (models.RemarketingFlow, error) {
	var flow models.RemarketingFlow
	err := s.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&flow, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return flow, fmt.Errorf("flow %s: %w", id, ErrNotFound)
	}
	return flow, err
}

func (s *FlowStore) List() ([]models.RemarketingFlow, error) {
	var flows []models.RemarketingFlow
	err := s.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("created_at DESC").Find(&flows).Error
	if flows == nil {
		flows = []models.RemarketingFlow{}
	}
	return flows, err
}

// Update applies a partial update. Rebinding to another campaign
// re-validates the reference and moves the back-reference over, all in one
// transaction.
func (s *FlowStore) Update(id string, upd FlowUpdate) (models.RemarketingFlow, error) {
	if upd.Steps != nil {
		if err := validateFlowSteps(*upd.Steps); err != nil {
			return models.RemarketingFlow{}, err
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var flow models.RemarketingFlow
		if err := tx.First(&flow, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("flow %s: %w", id, ErrNotFound)
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
		if upd.Triggers != nil {
			next := models.RemarketingFlow{Triggers: TriggersJSON(*upd.Triggers)}
			if flow.IsActive && len(next.EffectiveTriggers()) == 0 {
				return fmt.Errorf("%w: an active flow cannot lose all its triggers", ErrInvalidState)
			}
			fields["triggers"] = next.Triggers
		}
		if upd.AbandonmentTime != nil {
			if *upd.AbandonmentTime <= 0 {
				return fmt.Errorf("%w: abandonment time must be positive", ErrInvalidState)
			}
			fields["abandonment_time"] = *upd.AbandonmentTime
		}

		if upd.CampaignID != nil && *upd.CampaignID != flow.CampaignID {
			campaign, err := requireRemarketingCampaign(tx, *upd.CampaignID)
			if err != nil {
				return err
			}
			if err := tx.Model(&models.Campaign{}).Where("id = ? AND remarketing_flow_id = ?", flow.CampaignID, flow.ID).
				Update("remarketing_flow_id", "").Error; err != nil {
				return err
			}
			if err := tx.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
				Update("remarketing_flow_id", flow.ID).Error; err != nil {
				return err
			}
			fields["campaign_id"] = campaign.ID
			fields["target_category"] = campaign.TargetCategory
		}

		if len(fields) > 0 {
			if err := tx.Model(&flow).Updates(fields).Error; err != nil {
				return err
			}
		}

		if upd.Steps != nil {
			if err := tx.Where("flow_id = ?", id).Delete(&models.FlowStep{}).Error; err != nil {
				return err
			}
			steps := *upd.Steps
			for i := range steps {
				steps[i].ID = 0
				steps[i].FlowID = id
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
		return models.RemarketingFlow{}, err
	}

	invalidate(s.stats)
	return s.Get(id)
}

// Delete removes the flow and clears the owning campaign's back-reference.
// The campaign itself is never deleted here.
func (s *FlowStore) Delete(id string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var flow models.RemarketingFlow
		if err := tx.First(&flow, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("flow %s: %w", id, ErrNotFound)
			}
			return err
		}

		if err := tx.Model(&models.Campaign{}).Where("remarketing_flow_id = ?", id).
			Update("remarketing_flow_id", "").Error; err != nil {
			return err
		}
		if err := tx.Where("flow_id = ?", id).Delete(&models.FlowStep{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.RemarketingFlow{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	if s.execs != nil {
		s.execs.CancelFlow(id)
	}
	invalidate(s.stats)
	return nil
}

// SetActive toggles a flow. Activating a flow whose effective trigger set is
// empty, or whose text steps are blank, is rejected.
func (s *FlowStore) SetActive(id string, active bool) (models.RemarketingFlow, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var flow models.RemarketingFlow
		if err := tx.Preload("Steps").First(&flow, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("flow %s: %w", id, ErrNotFound)
			}
			return err
		}

		if active {
			if len(flow.EffectiveTriggers()) == 0 {
				return fmt.Errorf("%w: cannot activate a flow without triggers", ErrInvalidState)
			}
			for _, step := range flow.Steps {
				if models.StepRequiresContent(step.Kind) && step.Content == "" {
					return fmt.Errorf("%w: step %d (%s) has no content", ErrInvalidState, step.Position, step.Kind)
				}
			}
		}
		return tx.Model(&flow).Update("is_active", active).Error
	})
	if err != nil {
		return models.RemarketingFlow{}, err
	}
	if !active && s.execs != nil {
		s.execs.CancelFlow(id)
	}
	invalidate(s.stats)
	return s.Get(id)
}

func requireRemarketingCampaign(tx *gorm.DB, id string) (models.Campaign, error) {
	var campaign models.Campaign
	if err := tx.First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return campaign, fmt.Errorf("campaign %s: %w", id, ErrNotFound)
		}
		return campaign, err
	}
	if !campaign.HasRemarketingFlow {
		return campaign, fmt.Errorf("%w: campaign %s is not flagged for remarketing", ErrInvalidState, id)
	}
	return campaign, nil
}

func validateFlowSteps(steps []models.FlowStep) error {
	for i, step := range steps {
		if !models.ValidFlowStepKind(step.Kind) {
			return fmt.Errorf("%w: step %d has unknown kind %q", ErrInvalidState, i, step.Kind)
		}
		if step.Delay < 0 {
			return fmt.Errorf("%w: step %d has negative delay", ErrInvalidState, i)
		}
	}
	return nil
}

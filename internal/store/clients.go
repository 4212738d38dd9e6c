package store

import (
	"errors"
	"fmt"
	"time"

	"zapbot-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ClientStore struct {
	db    *gorm.DB
	stats Invalidator
	execs ExecutionCanceller
}

func NewClientStore(db *gorm.DB, stats Invalidator, execs ExecutionCanceller) *ClientStore {
	return &ClientStore{db: db, stats: stats, execs: execs}
}

// SetExecutionCanceller wires the scheduler in after construction; the
// scheduler itself needs the store for abandonment status flips.
func (s *ClientStore) SetExecutionCanceller(execs ExecutionCanceller) {
	s.execs = execs
}

// ClientUpdate is a partial update; nil fields are left untouched.
type ClientUpdate struct {
	Name           *string
	Phone          *string
	Category       *string
	Status         *string
	LastMessage    *string
	CampaignSource *string
	Notes          *string
}

func (s *ClientStore) Create(client *models.Client) error {
	if !models.ValidCategory(client.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidState, client.Category)
	}
	client.ID = uuid.NewString()
	if client.Status == "" {
		client.Status = models.ClientActive
	}
	if client.LastActivity.IsZero() {
		client.LastActivity = time.Now()
	}
	if err := s.db.Create(client).Error; err != nil {
		return err
	}
	invalidate(s.stats)
	return nil
}

func (s *ClientStore) Get(id string) (models.Client, error) {
	var client models.Client
	err := s.db.First(&client, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return client, fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	return client, err
}

func (s *ClientStore) GetByPhone(phone string) (models.Client, error) {
	var client models.Client
	err := s.db.First(&client, "phone = ?", phone).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return client, fmt.Errorf("client with phone %s: %w", phone, ErrNotFound)
	}
	return client, err
}

// List returns clients, optionally filtered to one category.
func (s *ClientStore) List(category string) ([]models.Client, error) {
	query := s.db.Order("last_activity DESC")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var clients []models.Client
	err := query.Find(&clients).Error
	if clients == nil {
		clients = []models.Client{}
	}
	return clients, err
}

func (s *ClientStore) Update(id string, upd ClientUpdate) (models.Client, error) {
	if upd.Category != nil && !models.ValidCategory(*upd.Category) {
		return models.Client{}, fmt.Errorf("%w: unknown category %q", ErrInvalidState, *upd.Category)
	}
	if upd.Status != nil && *upd.Status != models.ClientActive && *upd.Status != models.ClientAbandoned {
		return models.Client{}, fmt.Errorf("%w: unknown status %q", ErrInvalidState, *upd.Status)
	}

	fields := map[string]interface{}{}
	if upd.Name != nil {
		fields["name"] = *upd.Name
	}
	if upd.Phone != nil {
		fields["phone"] = *upd.Phone
	}
	if upd.Category != nil {
		fields["category"] = *upd.Category
	}
	if upd.Status != nil {
		fields["status"] = *upd.Status
	}
	if upd.LastMessage != nil {
		fields["last_message"] = *upd.LastMessage
		fields["last_activity"] = time.Now()
	}
	if upd.CampaignSource != nil {
		fields["campaign_source"] = *upd.CampaignSource
	}
	if upd.Notes != nil {
		fields["notes"] = *upd.Notes
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var client models.Client
		if err := tx.First(&client, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("client %s: %w", id, ErrNotFound)
			}
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		return tx.Model(&client).Updates(fields).Error
	})
	if err != nil {
		return models.Client{}, err
	}

	invalidate(s.stats)
	return s.Get(id)
}

// MoveToCategory is a convenience wrapper around Update.
func (s *ClientStore) MoveToCategory(id, category string) (models.Client, error) {
	return s.Update(id, ClientUpdate{Category: &category})
}

// MarkAbandoned flips a client's status. The scheduler calls this when an
// abandonment timer fires.
func (s *ClientStore) MarkAbandoned(id string) error {
	status := models.ClientAbandoned
	_, err := s.Update(id, ClientUpdate{Status: &status})
	return err
}

// Delete cancels any running flow execution for the client, then removes
// the client and its message history in one transaction.
func (s *ClientStore) Delete(id string) error {
	if s.execs != nil {
		s.execs.Cancel(id)
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var client models.Client
		if err := tx.First(&client, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("client %s: %w", id, ErrNotFound)
			}
			return err
		}
		if err := tx.Where("client_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Client{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	invalidate(s.stats)
	return nil
}

// IngestInbound finds a client by phone or creates one in not_bought; used
// by the inbound message feed. The message itself is stored alongside.
func (s *ClientStore) IngestInbound(name, phone, campaignSource, text string) (models.Client, error) {
	var client models.Client
	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.First(&client, "phone = ?", phone).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			client = models.Client{
				ID:             uuid.NewString(),
				Name:           name,
				Phone:          phone,
				Category:       models.CategoryNotBought,
				Status:         models.ClientActive,
				CampaignSource: campaignSource,
			}
			if err := tx.Create(&client).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if err := tx.Model(&models.Client{}).Where("id = ?", client.ID).Updates(map[string]interface{}{
			"last_message":  text,
			"last_activity": time.Now(),
		}).Error; err != nil {
			return err
		}

		return tx.Create(&models.Message{
			ClientID: client.ID,
			Content:  text,
			Type:     "text",
			Sender:   "client",
		}).Error
	})
	if err != nil {
		return models.Client{}, err
	}
	invalidate(s.stats)
	return s.Get(client.ID)
}

// RecordOutbound stores a bot-sent message for a client's history.
func (s *ClientStore) RecordOutbound(clientID, content, msgType, mediaURL string) error {
	err := s.db.Create(&models.Message{
		ClientID: clientID,
		Content:  content,
		Type:     msgType,
		Sender:   "bot",
		MediaURL: mediaURL,
	}).Error
	if err != nil {
		return err
	}
	invalidate(s.stats)
	return nil
}

// Messages returns a client's conversation history, oldest first.
func (s *ClientStore) Messages(clientID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.Where("client_id = ?", clientID).Order("created_at ASC").Find(&messages).Error
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, err
}

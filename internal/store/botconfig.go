package store

import (
	"errors"

	"zapbot-backend/internal/models"

	"gorm.io/gorm"
)

type BotConfigStore struct {
	db *gorm.DB
}

func NewBotConfigStore(db *gorm.DB) *BotConfigStore {
	return &BotConfigStore{db: db}
}

// BotConfigUpdate is a partial update; nil fields are left untouched.
type BotConfigUpdate struct {
	AttendantName     *string
	WelcomeAudio      *bool
	AutoResponse      *bool
	AllowClientAudio  *bool
	AllowClientVideo  *bool
	AllowClientImages *bool
	PublicChatURL     *string
}

// Get returns the singleton config row, creating defaults on first read.
func (s *BotConfigStore) Get() (models.BotConfig, error) {
	var cfg models.BotConfig
	err := s.db.First(&cfg, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.BotConfig{
			ID:                1,
			AttendantName:     "Assistente Virtual",
			WelcomeAudio:      true,
			AutoResponse:      true,
			AllowClientAudio:  true,
			AllowClientVideo:  true,
			AllowClientImages: true,
		}
		if err := s.db.Create(&cfg).Error; err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	return cfg, err
}

func (s *BotConfigStore) Update(upd BotConfigUpdate) (models.BotConfig, error) {
	if _, err := s.Get(); err != nil {
		return models.BotConfig{}, err
	}

	fields := map[string]interface{}{}
	if upd.AttendantName != nil {
		fields["attendant_name"] = *upd.AttendantName
	}
	if upd.WelcomeAudio != nil {
		fields["welcome_audio"] = *upd.WelcomeAudio
	}
	if upd.AutoResponse != nil {
		fields["auto_response"] = *upd.AutoResponse
	}
	if upd.AllowClientAudio != nil {
		fields["allow_client_audio"] = *upd.AllowClientAudio
	}
	if upd.AllowClientVideo != nil {
		fields["allow_client_video"] = *upd.AllowClientVideo
	}
	if upd.AllowClientImages != nil {
		fields["allow_client_images"] = *upd.AllowClientImages
	}
	if upd.PublicChatURL != nil {
		fields["public_chat_url"] = *upd.PublicChatURL
	}

	if len(fields) > 0 {
		if err := s.db.Model(&models.BotConfig{}).Where("id = ?", 1).Updates(fields).Error; err != nil {
			return models.BotConfig{}, err
		}
	}
	return s.Get()
}

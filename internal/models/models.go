package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Funnel categories. Every client is in exactly one.
const (
	CategoryNotBought          = "not_bought"
	CategoryBoughtCorreios     = "bought_correios"
	CategoryBoughtLogz         = "bought_logz"
	CategoryCompletedPurchases = "completed_purchases"
)

var Categories = []string{
	CategoryNotBought,
	CategoryBoughtCorreios,
	CategoryBoughtLogz,
	CategoryCompletedPurchases,
}

func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Client statuses.
const (
	ClientActive    = "active"
	ClientAbandoned = "abandoned"
)

// Campaign statuses. Transitions are monotonic: draft -> scheduled|sent,
// scheduled -> sent. Sent is terminal.
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignSent      = "sent"
)

// Client represents a contact tracked in the purchase funnel.
type Client struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name           string    `gorm:"type:varchar(255)" json:"name"`
	Phone          string    `gorm:"type:varchar(50);index" json:"phone"`
	Category       string    `gorm:"type:varchar(50);not null;index" json:"category"`
	Status         string    `gorm:"type:varchar(20);default:'active'" json:"status"`
	LastMessage    string    `gorm:"type:text" json:"last_message"`
	LastActivity   time.Time `json:"last_activity"`
	CampaignSource string    `gorm:"type:varchar(255)" json:"campaign_source,omitempty"`
	Notes          string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Client) TableName() string {
	return "clients"
}

// Message is one conversation entry with a client. Owned by the client and
// removed with it.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClientID  string    `gorm:"type:varchar(64);not null;index" json:"client_id"`
	Content   string    `gorm:"type:text" json:"content"`
	Type      string    `gorm:"type:varchar(20)" json:"type"`   // text, audio, image, video, file
	Sender    string    `gorm:"type:varchar(10)" json:"sender"` // client, bot, admin
	MediaURL  string    `gorm:"type:text" json:"media_url,omitempty"`
	FileName  string    `gorm:"type:varchar(255)" json:"file_name,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Campaign is an outbound multi-step sequence targeted at one funnel category.
type Campaign struct {
	ID                 string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name               string         `gorm:"type:varchar(255);not null" json:"name"`
	Description        string         `gorm:"type:text" json:"description"`
	TargetCategory     string         `gorm:"type:varchar(50);not null;index" json:"target_category"`
	Steps              []CampaignStep `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE;" json:"steps"`
	ScheduledDate      *time.Time     `json:"scheduled_date,omitempty"`
	SentAt             *time.Time     `json:"sent_at,omitempty"`
	Status             string         `gorm:"type:varchar(20);default:'draft'" json:"status"`
	SentCount          int            `json:"sent_count"`
	OpenCount          int            `json:"open_count"`
	HasRemarketingFlow bool           `json:"has_remarketing_flow"`
	RemarketingFlowID  string         `gorm:"type:varchar(64)" json:"remarketing_flow_id,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignStep is one unit of a campaign sequence.
type CampaignStep struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CampaignID string `gorm:"type:varchar(64);index" json:"campaign_id"`
	Position   int    `gorm:"not null" json:"position"`
	Kind       string `gorm:"type:varchar(20);not null" json:"kind"`
	Content    string `gorm:"type:text" json:"content"`
	MediaURL   string `gorm:"type:text" json:"media_url,omitempty"`
	FileName   string `gorm:"type:varchar(255)" json:"file_name,omitempty"`
	Buttons    string `gorm:"type:text" json:"buttons,omitempty"` // JSON [{id,text}]
	Delay      int    `gorm:"default:0" json:"delay"`             // seconds before this step sends
}

func (CampaignStep) TableName() string {
	return "campaign_steps"
}

// RemarketingFlow is an automated reply sequence bound to one campaign and
// fired when a campaign recipient answers with a trigger keyword.
type RemarketingFlow struct {
	ID              string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name            string     `gorm:"type:varchar(255);not null" json:"name"`
	Description     string     `gorm:"type:text" json:"description"`
	IsActive        bool       `json:"is_active"`
	Steps           []FlowStep `gorm:"foreignKey:FlowID;constraint:OnDelete:CASCADE;" json:"steps"`
	Triggers        string     `gorm:"type:text" json:"triggers"` // JSON list of keywords
	AbandonmentTime float64    `gorm:"default:30" json:"abandonment_time"` // minutes
	CampaignID      string     `gorm:"type:varchar(64);not null;index" json:"campaign_id"`
	TargetCategory  string     `gorm:"type:varchar(50)" json:"target_category"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RemarketingFlow) TableName() string {
	return "remarketing_flows"
}

// TriggerList decodes the stored trigger JSON. Bad data reads as empty.
func (f *RemarketingFlow) TriggerList() []string {
	var triggers []string
	if f.Triggers != "" {
		_ = json.Unmarshal([]byte(f.Triggers), &triggers)
	}
	return triggers
}

// EffectiveTriggers returns the trigger set after trimming and deduping.
// A flow may only be activated when this is non-empty.
func (f *RemarketingFlow) EffectiveTriggers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range f.TriggerList() {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// FlowStep is one unit of a remarketing flow sequence.
type FlowStep struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	FlowID        string `gorm:"type:varchar(64);index" json:"flow_id"`
	Position      int    `gorm:"not null" json:"position"`
	Kind          string `gorm:"type:varchar(20);not null" json:"kind"`
	Content       string `gorm:"type:text" json:"content"`
	MediaURL      string `gorm:"type:text" json:"media_url,omitempty"`
	FileName      string `gorm:"type:varchar(255)" json:"file_name,omitempty"`
	Options       string `gorm:"type:text" json:"options,omitempty"` // JSON [{id,text}] for menu steps
	Delay         int    `gorm:"default:0" json:"delay"`             // seconds before this step sends
	AIProductName string `gorm:"type:varchar(255)" json:"ai_product_name,omitempty"`
}

func (FlowStep) TableName() string {
	return "flow_steps"
}

// ButtonOption is the JSON shape stored in CampaignStep.Buttons and
// FlowStep.Options.
type ButtonOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// BotConfig holds operator preferences. Single row, id 1.
type BotConfig struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	AttendantName     string    `gorm:"type:varchar(255);default:'Assistente Virtual'" json:"attendant_name"`
	WelcomeAudio      bool      `gorm:"default:true" json:"welcome_audio"`
	AutoResponse      bool      `gorm:"default:true" json:"auto_response"`
	AllowClientAudio  bool      `gorm:"default:true" json:"allow_client_audio"`
	AllowClientVideo  bool      `gorm:"default:true" json:"allow_client_video"`
	AllowClientImages bool      `gorm:"default:true" json:"allow_client_images"`
	PublicChatURL     string    `gorm:"type:text" json:"public_chat_url"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BotConfig) TableName() string {
	return "bot_config"
}

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"zapbot-backend/internal/config"
	"zapbot-backend/internal/logger"
	"zapbot-backend/internal/models"
)

var waLog = logger.Named("whatsapp")

// WhatsAppClient delivers steps through the WhatsApp Cloud API.
type WhatsAppClient struct {
	cfg  *config.Config
	http *http.Client
}

func NewWhatsAppClient(cfg *config.Config) *WhatsAppClient {
	return &WhatsAppClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Cloud API payload structures ---

type genericMessage struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Text             *textObj        `json:"text,omitempty"`
	Image            *mediaObj       `json:"image,omitempty"`
	Video            *mediaObj       `json:"video,omitempty"`
	Audio            *mediaObj       `json:"audio,omitempty"`
	Document         *mediaObj       `json:"document,omitempty"`
	Interactive      *interactiveObj `json:"interactive,omitempty"`
}

type textObj struct {
	Body string `json:"body"`
}

type mediaObj struct {
	Link     string `json:"link,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type interactiveObj struct {
	Type   string    `json:"type"`
	Body   bodyObj   `json:"body"`
	Action actionObj `json:"action"`
}

type bodyObj struct {
	Text string `json:"text"`
}

type actionObj struct {
	Buttons []buttonObj `json:"buttons,omitempty"`
}

type buttonObj struct {
	Type  string   `json:"type"`
	Reply replyObj `json:"reply"`
}

type replyObj struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Cloud API code for an invalid/unreachable recipient.
const codeInvalidRecipient = 131026

// SendToClient maps a step onto the matching Cloud API message type and
// posts it. Media steps are sent by link; the resolved bytes already
// proved the reference reachable.
func (c *WhatsAppClient) SendToClient(ctx context.Context, client models.Client, step OutboundStep) (Receipt, error) {
	msg := genericMessage{
		MessagingProduct: "whatsapp",
		To:               client.Phone,
	}

	switch step.Kind {
	case models.StepMessage:
		msg.Type = "text"
		msg.Text = &textObj{Body: step.Content}
	case models.StepMenu, models.StepButtons:
		if len(step.Options) == 0 {
			msg.Type = "text"
			msg.Text = &textObj{Body: step.Content}
			break
		}
		msg.Type = "interactive"
		buttons := make([]buttonObj, 0, 3)
		for i, opt := range step.Options {
			if i >= 3 {
				break // WhatsApp limit
			}
			buttons = append(buttons, buttonObj{
				Type:  "reply",
				Reply: replyObj{ID: opt.ID, Title: opt.Text},
			})
		}
		msg.Interactive = &interactiveObj{
			Type:   "button",
			Body:   bodyObj{Text: step.Content},
			Action: actionObj{Buttons: buttons},
		}
	case models.StepImage:
		msg.Type = "image"
		msg.Image = &mediaObj{Link: step.MediaURL, Caption: step.Content}
	case models.StepVideo:
		msg.Type = "video"
		msg.Video = &mediaObj{Link: step.MediaURL, Caption: step.Content}
	case models.StepAudio:
		msg.Type = "audio"
		msg.Audio = &mediaObj{Link: step.MediaURL}
	case models.StepPDF:
		msg.Type = "document"
		msg.Document = &mediaObj{Link: step.MediaURL, Filename: step.FileName}
	default:
		return Receipt{}, fmt.Errorf("unsupported step kind %q", step.Kind)
	}

	return c.post(ctx, msg)
}

func (c *WhatsAppClient) post(ctx context.Context, msg genericMessage) (Receipt, error) {
	url := fmt.Sprintf("https://graph.facebook.com/v19.0/%s/messages", c.cfg.PhoneNumberID)
	payload, err := json.Marshal(msg)
	if err != nil {
		return Receipt{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.WhatsAppToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("delivery failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Receipt{}, err
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Code == codeInvalidRecipient {
			return Receipt{}, fmt.Errorf("%w: %s", ErrClientUnreachable, apiErr.Error.Message)
		}
		return Receipt{}, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	var parsed sendResponse
	receipt := Receipt{DeliveredAt: time.Now()}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Messages) > 0 {
		receipt.MessageID = parsed.Messages[0].ID
	}
	waLog.Debugw("message delivered", "to", msg.To, "type", msg.Type, "message_id", receipt.MessageID)
	return receipt, nil
}

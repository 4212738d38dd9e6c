package automation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"zapbot-backend/internal/ai"
	"zapbot-backend/internal/logger"
	"zapbot-backend/internal/models"
	"zapbot-backend/internal/transport"
)

var schedLog = logger.Named("scheduler")

// Execution states.
const (
	ExecRunning   = "running"
	ExecCompleted = "completed"
	ExecCancelled = "cancelled"
	ExecAbandoned = "abandoned"
)

// Ledger is the slice of the client store the scheduler needs: status
// flips on abandonment and outbound history recording.
type Ledger interface {
	MarkAbandoned(clientID string) error
	RecordOutbound(clientID, content, msgType, mediaURL string) error
}

// execution tracks one running flow for one client. The generation counter
// makes stale timer callbacks no-ops after cancellation or replacement.
type execution struct {
	client    models.Client
	flow      models.RemarketingFlow
	gen       uint64
	stepIndex int
	state     string
	queued    bool // a due step is waiting for the link to come back
	stepTimer *time.Timer
	abandon   *time.Timer
}

// Scheduler steps matched flows through their steps with per-step delays
// and abandonment supervision. One execution per client: starting a new
// flow for a client cancels whatever was running.
type Scheduler struct {
	mu      sync.Mutex
	execs   map[string]*execution
	nextGen uint64
	online  bool

	sender    transport.Sender
	media     transport.MediaResolver
	generator ai.Generator
	ledger    Ledger

	// Units let tests compress time. Production keeps seconds/minutes.
	DelayUnit       time.Duration
	AbandonmentUnit time.Duration

	// Events receives lifecycle notifications for the panel, if set.
	Events func(event string, data map[string]interface{})
}

func NewScheduler(sender transport.Sender, media transport.MediaResolver, generator ai.Generator, ledger Ledger) *Scheduler {
	return &Scheduler{
		execs:           make(map[string]*execution),
		online:          true,
		sender:          sender,
		media:           media,
		generator:       generator,
		ledger:          ledger,
		DelayUnit:       time.Second,
		AbandonmentUnit: time.Minute,
	}
}

// Start begins executing a flow for a client. Any prior execution for the
// same client is cancelled first.
func (s *Scheduler) Start(client models.Client, flow models.RemarketingFlow) {
	if len(flow.Steps) == 0 {
		schedLog.Warnw("flow has no steps", "flow_id", flow.ID)
		return
	}

	s.mu.Lock()
	s.cancelLocked(client.ID)
	s.nextGen++
	e := &execution{
		client: client,
		flow:   flow,
		gen:    s.nextGen,
		state:  ExecRunning,
	}
	s.execs[client.ID] = e

	clientID := client.ID
	gen := e.gen
	firstDelay := time.Duration(flow.Steps[0].Delay) * s.DelayUnit
	abandonAfter := time.Duration(flow.AbandonmentTime * float64(s.AbandonmentUnit))
	e.stepTimer = time.AfterFunc(firstDelay, func() { s.fire(clientID, gen, 0) })
	e.abandon = time.AfterFunc(abandonAfter, func() { s.abandonExec(clientID, gen) })
	s.mu.Unlock()

	schedLog.Infow("flow execution started", "client_id", clientID, "flow_id", flow.ID)
	s.emit("flow_started", map[string]interface{}{"client_id": clientID, "flow_id": flow.ID})
}

// Cancel tears down any running execution for the client. Idempotent; any
// already-scheduled timer for a cancelled execution fires into a stale
// generation and does nothing.
func (s *Scheduler) Cancel(clientID string) {
	s.mu.Lock()
	cancelled := s.cancelLocked(clientID)
	s.mu.Unlock()
	if cancelled {
		schedLog.Infow("flow execution cancelled", "client_id", clientID)
		s.emit("flow_cancelled", map[string]interface{}{"client_id": clientID})
	}
}

func (s *Scheduler) cancelLocked(clientID string) bool {
	e, ok := s.execs[clientID]
	if !ok {
		return false
	}
	e.state = ExecCancelled
	stopTimers(e)
	delete(s.execs, clientID)
	return true
}

// CancelFlow tears down every running execution of the given flow. Flow
// deactivation and deletion route here so an operator-withdrawn flow stops
// delivering immediately.
func (s *Scheduler) CancelFlow(flowID string) {
	s.mu.Lock()
	var cancelled []string
	for clientID, e := range s.execs {
		if e.flow.ID != flowID {
			continue
		}
		e.state = ExecCancelled
		stopTimers(e)
		delete(s.execs, clientID)
		cancelled = append(cancelled, clientID)
	}
	s.mu.Unlock()

	for _, clientID := range cancelled {
		schedLog.Infow("flow execution cancelled", "client_id", clientID, "flow_id", flowID)
		s.emit("flow_cancelled", map[string]interface{}{"client_id": clientID, "flow_id": flowID})
	}
}

// SetOnline pauses or resumes deliveries. Steps that came due while the
// link was down are queued and flushed on reconnect.
func (s *Scheduler) SetOnline(online bool) {
	type resumeItem struct {
		clientID string
		gen      uint64
		idx      int
	}
	s.mu.Lock()
	s.online = online
	var resume []resumeItem
	if online {
		for id, e := range s.execs {
			if e.queued && e.state == ExecRunning {
				e.queued = false
				resume = append(resume, resumeItem{id, e.gen, e.stepIndex})
			}
		}
	}
	s.mu.Unlock()

	for _, r := range resume {
		go s.fire(r.clientID, r.gen, r.idx)
	}
}

// Running reports the current step index of a client's execution.
func (s *Scheduler) Running(clientID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.execs[clientID]
	if !ok || e.state != ExecRunning {
		return 0, false
	}
	return e.stepIndex, true
}

// ActiveCount returns how many executions are currently running.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.execs)
}

// fire delivers step idx, then schedules the next one. The next step's
// delay is measured from the end of this delivery, not from flow start.
func (s *Scheduler) fire(clientID string, gen uint64, idx int) {
	s.mu.Lock()
	e, ok := s.execs[clientID]
	if !ok || e.gen != gen || e.state != ExecRunning {
		s.mu.Unlock()
		return
	}
	if !s.online {
		e.queued = true
		s.mu.Unlock()
		schedLog.Infow("transport link down, step queued", "client_id", clientID, "step", idx)
		return
	}
	client := e.client
	step := e.flow.Steps[idx]
	s.mu.Unlock()

	err := s.deliver(client, step)
	if errors.Is(err, transport.ErrClientUnreachable) {
		schedLog.Warnw("client unreachable, aborting execution", "client_id", clientID)
		s.Cancel(clientID)
		return
	}

	s.mu.Lock()
	e, ok = s.execs[clientID]
	if !ok || e.gen != gen || e.state != ExecRunning {
		s.mu.Unlock()
		return
	}

	next := idx + 1
	if next < len(e.flow.Steps) {
		e.stepIndex = next
		delay := time.Duration(e.flow.Steps[next].Delay) * s.DelayUnit
		e.stepTimer = time.AfterFunc(delay, func() { s.fire(clientID, gen, next) })
		s.mu.Unlock()
		return
	}

	e.state = ExecCompleted
	stopTimers(e)
	delete(s.execs, clientID)
	s.mu.Unlock()

	schedLog.Infow("flow execution completed", "client_id", clientID, "flow_id", e.flow.ID)
	s.emit("flow_completed", map[string]interface{}{"client_id": clientID, "flow_id": e.flow.ID})
}

// deliver sends one step. Execution-time failures are handled here per the
// skip/continue policy; only client-unreachable propagates so fire can
// abort the whole execution.
func (s *Scheduler) deliver(client models.Client, step models.FlowStep) error {
	ctx := context.Background()
	out := transport.OutboundStep{
		Kind:     step.Kind,
		Content:  step.Content,
		MediaURL: step.MediaURL,
		FileName: step.FileName,
	}

	switch step.Kind {
	case models.StepMessage:
		// Plain text, nothing to prepare.
	case models.StepMenu:
		out.Options = decodeOptions(step.Options)
	case models.StepAIResponse:
		text, err := s.generator.Generate(ctx, step.Content, step.AIProductName)
		if err != nil {
			// Policy: send the operator-authored instructions verbatim
			// rather than dropping the touchpoint.
			schedLog.Warnw("AI generation failed, sending content verbatim",
				"client_id", client.ID, "error", err)
			text = step.Content
		}
		out.Kind = models.StepMessage
		out.Content = text
	case models.StepAudio, models.StepImage, models.StepVideo, models.StepPDF:
		data, err := s.media.Resolve(ctx, step.MediaURL)
		if err != nil {
			schedLog.Warnw("media unresolved, skipping step",
				"client_id", client.ID, "media_url", step.MediaURL, "error", err)
			return nil
		}
		out.Media = data
	default:
		schedLog.Warnw("unknown step kind, skipping", "kind", step.Kind)
		return nil
	}

	if _, err := s.sender.SendToClient(ctx, client, out); err != nil {
		if errors.Is(err, transport.ErrClientUnreachable) {
			return err
		}
		schedLog.Errorw("step delivery failed", "client_id", client.ID, "kind", step.Kind, "error", err)
		return nil
	}

	if err := s.ledger.RecordOutbound(client.ID, out.Content, messageType(out.Kind), step.MediaURL); err != nil {
		schedLog.Errorw("failed to record outbound message", "client_id", client.ID, "error", err)
	}
	return nil
}

// abandonExec runs when the abandonment timer fires before completion or
// cancellation. Fires at most once per execution.
func (s *Scheduler) abandonExec(clientID string, gen uint64) {
	s.mu.Lock()
	e, ok := s.execs[clientID]
	if !ok || e.gen != gen || e.state != ExecRunning {
		s.mu.Unlock()
		return
	}
	e.state = ExecAbandoned
	if e.stepTimer != nil {
		e.stepTimer.Stop()
	}
	delete(s.execs, clientID)
	s.mu.Unlock()

	if err := s.ledger.MarkAbandoned(clientID); err != nil {
		schedLog.Errorw("failed to mark client abandoned", "client_id", clientID, "error", err)
	}
	schedLog.Infow("flow execution abandoned", "client_id", clientID, "flow_id", e.flow.ID)
	s.emit("flow_abandoned", map[string]interface{}{"client_id": clientID, "flow_id": e.flow.ID})
}

func (s *Scheduler) emit(event string, data map[string]interface{}) {
	if s.Events != nil {
		s.Events(event, data)
	}
}

func stopTimers(e *execution) {
	if e.stepTimer != nil {
		e.stepTimer.Stop()
	}
	if e.abandon != nil {
		e.abandon.Stop()
	}
}

func decodeOptions(raw string) []models.ButtonOption {
	var options []models.ButtonOption
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &options)
	}
	return options
}

func messageType(kind string) string {
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

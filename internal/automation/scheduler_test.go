package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"zapbot-backend/internal/models"
	"zapbot-backend/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu        sync.Mutex
	failErr   error
	failFirst int
	calls     int
	sent      chan transport.OutboundStep
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(chan transport.OutboundStep, 16)}
}

func (s *captureSender) SendToClient(ctx context.Context, client models.Client, step transport.OutboundStep) (transport.Receipt, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failErr != nil && (s.failFirst == 0 || s.calls <= s.failFirst)
	err := s.failErr
	s.mu.Unlock()
	if fail {
		return transport.Receipt{}, err
	}
	s.sent <- step
	return transport.Receipt{MessageID: "wamid.test", DeliveredAt: time.Now()}, nil
}

type fakeMedia struct {
	err error
}

func (m fakeMedia) Resolve(ctx context.Context, mediaURL string) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte("binary"), nil
}

type fakeGenerator struct {
	text string
	err  error
}

func (g fakeGenerator) Generate(ctx context.Context, instructions, productContext string) (string, error) {
	return g.text, g.err
}

type memLedger struct {
	mu        sync.Mutex
	outbound  []string
	abandoned chan string
}

func newMemLedger() *memLedger {
	return &memLedger{abandoned: make(chan string, 4)}
}

func (l *memLedger) MarkAbandoned(clientID string) error {
	l.abandoned <- clientID
	return nil
}

func (l *memLedger) RecordOutbound(clientID, content, msgType, mediaURL string) error {
	l.mu.Lock()
	l.outbound = append(l.outbound, content)
	l.mu.Unlock()
	return nil
}

func (l *memLedger) outboundCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.outbound)
}

// newTestScheduler compresses the time units so delays of a few "seconds"
// and abandonment windows of a few "minutes" run in milliseconds.
func newTestScheduler(sender transport.Sender, media transport.MediaResolver, gen fakeGenerator, ledger Ledger) *Scheduler {
	s := NewScheduler(sender, media, gen, ledger)
	s.DelayUnit = 5 * time.Millisecond
	s.AbandonmentUnit = 5 * time.Millisecond
	return s
}

func testClient() models.Client {
	return models.Client{ID: "client-1", Name: "Maria", Phone: "5511999990000", Category: models.CategoryNotBought}
}

func testFlow(steps ...models.FlowStep) models.RemarketingFlow {
	return models.RemarketingFlow{
		ID:              "flow-1",
		Name:            "Recuperação",
		IsActive:        true,
		AbandonmentTime: 1000, // far beyond any test's runtime
		Steps:           steps,
	}
}

func waitStep(t *testing.T, ch chan transport.OutboundStep) transport.OutboundStep {
	t.Helper()
	select {
	case step := <-ch:
		return step
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a delivery")
		return transport.OutboundStep{}
	}
}

func assertNoStep(t *testing.T, ch chan transport.OutboundStep, within time.Duration) {
	t.Helper()
	select {
	case step := <-ch:
		t.Fatalf("unexpected delivery: %+v", step)
	case <-time.After(within):
	}
}

func TestSchedulerDeliversStepsInOrder(t *testing.T) {
	sender := newCaptureSender()
	ledger := newMemLedger()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{}, ledger)

	flow := testFlow(
		models.FlowStep{Kind: models.StepMessage, Content: "primeiro", Delay: 1},
		models.FlowStep{Kind: models.StepMessage, Content: "segundo", Delay: 2},
	)
	start := time.Now()
	s.Start(testClient(), flow)

	first := waitStep(t, sender.sent)
	second := waitStep(t, sender.sent)
	elapsed := time.Since(start)

	assert.Equal(t, "primeiro", first.Content)
	assert.Equal(t, "segundo", second.Content)
	assert.GreaterOrEqual(t, elapsed, 3*s.DelayUnit, "delays must accumulate across steps")

	require.Eventually(t, func() bool { return s.ActiveCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, ledger.outboundCount())
}

func TestStartReplacesRunningExecution(t *testing.T) {
	sender := newCaptureSender()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{}, newMemLedger())
	client := testClient()

	slow := testFlow(models.FlowStep{Kind: models.StepMessage, Content: "antigo", Delay: 200})
	s.Start(client, slow)

	replacement := testFlow(models.FlowStep{Kind: models.StepMessage, Content: "novo", Delay: 0})
	replacement.ID = "flow-2"
	s.Start(client, replacement)

	step := waitStep(t, sender.sent)
	assert.Equal(t, "novo", step.Content)
	assertNoStep(t, sender.sent, 100*time.Millisecond)
}

func TestCancelStopsPendingSteps(t *testing.T) {
	sender := newCaptureSender()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{}, newMemLedger())
	client := testClient()

	s.Start(client, testFlow(models.FlowStep{Kind: models.StepMessage, Content: "pendente", Delay: 10}))
	_, running := s.Running(client.ID)
	require.True(t, running)

	s.Cancel(client.ID)
	s.Cancel(client.ID) // idempotent

	assert.Equal(t, 0, s.ActiveCount())
	assertNoStep(t, sender.sent, 150*time.Millisecond)
}

func TestCancelFlowStopsMatchingExecutions(t *testing.T) {
	sender := newCaptureSender()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{}, newMemLedger())

	shared := testFlow(models.FlowStep{Kind: models.StepMessage, Content: "pendente", Delay: 10})
	other := testFlow(models.FlowStep{Kind: models.StepMessage, Content: "alheio", Delay: 100})
	other.ID = "flow-2"

	s.Start(models.Client{ID: "client-a", Category: models.CategoryNotBought}, shared)
	s.Start(models.Client{ID: "client-b", Category: models.CategoryNotBought}, shared)
	s.Start(models.Client{ID: "client-c", Category: models.CategoryNotBought}, other)

	s.CancelFlow(shared.ID)

	assert.Equal(t, 1, s.ActiveCount())
	_, running := s.Running("client-c")
	assert.True(t, running, "executions of other flows keep running")

	// The shared flow's pending steps were due shortly; none may deliver.
	assertNoStep(t, sender.sent, 200*time.Millisecond)
}

func TestAbandonmentMarksClient(t *testing.T) {
	sender := newCaptureSender()
	ledger := newMemLedger()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{}, ledger)
	client := testClient()

	flow := testFlow(models.FlowStep{Kind: models.StepMessage, Content: "nunca", Delay: 500})
	flow.AbandonmentTime = 2
	s.Start(client, flow)

	select {
	case id := <-ledger.abandoned:
		assert.Equal(t, client.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("abandonment never fired")
	}

	assert.Equal(t, 0, s.ActiveCount())
	assertNoStep(t, sender.sent, 100*time.Millisecond)
}

func TestCompletionStopsAbandonmentTimer(t *testing.T) {
	sender := newCaptureSender()
	ledger := newMemLedger()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{}, ledger)

	flow := testFlow(models.FlowStep{Kind: models.StepMessage, Content: "único", Delay: 0})
	flow.AbandonmentTime = 10
	s.Start(testClient(), flow)

	waitStep(t, sender.sent)
	require.Eventually(t, func() bool { return s.ActiveCount() == 0 }, time.Second, 5*time.Millisecond)

	select {
	case <-ledger.abandoned:
		t.Fatal("abandonment fired after completion")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAIStepUsesGeneratedText(t *testing.T) {
	sender := newCaptureSender()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{text: "oferta personalizada"}, newMemLedger())

	s.Start(testClient(), testFlow(
		models.FlowStep{Kind: models.StepAIResponse, Content: "ofereça um desconto", AIProductName: "Curso X"},
	))

	step := waitStep(t, sender.sent)
	assert.Equal(t, models.StepMessage, step.Kind)
	assert.Equal(t, "oferta personalizada", step.Content)
}

func TestAIFailureSendsContentVerbatim(t *testing.T) {
	sender := newCaptureSender()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{err: errors.New("quota exceeded")}, newMemLedger())

	s.Start(testClient(), testFlow(
		models.FlowStep{Kind: models.StepAIResponse, Content: "ofereça um desconto"},
	))

	step := waitStep(t, sender.sent)
	assert.Equal(t, models.StepMessage, step.Kind)
	assert.Equal(t, "ofereça um desconto", step.Content)
}

func TestUnresolvedMediaSkipsStep(t *testing.T) {
	sender := newCaptureSender()
	s := newTestScheduler(sender, fakeMedia{err: transport.ErrMediaNotFound}, fakeGenerator{}, newMemLedger())

	s.Start(testClient(), testFlow(
		models.FlowStep{Kind: models.StepImage, MediaURL: "https://cdn.example/gone.png", Delay: 0},
		models.FlowStep{Kind: models.StepMessage, Content: "depois", Delay: 0},
	))

	step := waitStep(t, sender.sent)
	assert.Equal(t, "depois", step.Content)
	require.Eventually(t, func() bool { return s.ActiveCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestOfflineQueuesUntilReconnect(t *testing.T) {
	sender := newCaptureSender()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{}, newMemLedger())

	s.SetOnline(false)
	s.Start(testClient(), testFlow(models.FlowStep{Kind: models.StepMessage, Content: "represado", Delay: 0}))

	assertNoStep(t, sender.sent, 100*time.Millisecond)

	s.SetOnline(true)
	step := waitStep(t, sender.sent)
	assert.Equal(t, "represado", step.Content)
}

func TestUnreachableClientAbortsExecution(t *testing.T) {
	sender := newCaptureSender()
	sender.failErr = transport.ErrClientUnreachable
	ledger := newMemLedger()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{}, ledger)

	s.Start(testClient(), testFlow(
		models.FlowStep{Kind: models.StepMessage, Content: "a", Delay: 0},
		models.FlowStep{Kind: models.StepMessage, Content: "b", Delay: 1},
	))

	require.Eventually(t, func() bool { return s.ActiveCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, ledger.outboundCount())
	assertNoStep(t, sender.sent, 100*time.Millisecond)
}

func TestDeliveryFailureSkipsToNextStep(t *testing.T) {
	sender := newCaptureSender()
	sender.failErr = errors.New("rate limited")
	sender.failFirst = 1
	ledger := newMemLedger()
	s := newTestScheduler(sender, fakeMedia{}, fakeGenerator{}, ledger)

	s.Start(testClient(), testFlow(
		models.FlowStep{Kind: models.StepMessage, Content: "falha", Delay: 0},
		models.FlowStep{Kind: models.StepMessage, Content: "sucesso", Delay: 0},
	))

	step := waitStep(t, sender.sent)
	assert.Equal(t, "sucesso", step.Content)
	require.Eventually(t, func() bool { return s.ActiveCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, ledger.outboundCount())
}

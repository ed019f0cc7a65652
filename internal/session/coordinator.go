package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coderoom/internal/activity"
	"coderoom/internal/generationlog"
	"coderoom/internal/llm"
	"coderoom/internal/metrics"
	"coderoom/internal/models"
	"coderoom/internal/prompts"
)

const (
	defaultAITimeout = 30 * time.Second
	defaultAIPrefix  = "@ai "
	recordTimeout    = 5 * time.Second
)

// User-facing notices for generation requests.
const (
	NoticeGenerationBusy  = "AI is already generating code for this room"
	NoticeEmptyPrompt     = "Ask the AI something after the prefix, e.g. \"@ai reverse a string\""
	noticeGenerationError = "AI failed to generate code: %s"
)

type CoordinatorOptions struct {
	Provider llm.Provider
	Prompts  *prompts.PromptManager
	Timeout  time.Duration
	Prefix   string
	Recorder generationlog.Recorder
	Activity activity.Publisher
	Logger   *zap.Logger
}

// Coordinator turns ask_ai requests into asynchronous calls to the
// generation provider and broadcasts the outcome to the room.
type Coordinator struct {
	hub      *Hub
	provider llm.Provider
	prompts  *prompts.PromptManager
	timeout  time.Duration
	prefix   string
	recorder generationlog.Recorder
	activity activity.Publisher
	logger   *zap.Logger

	wg sync.WaitGroup
}

func NewCoordinator(hub *Hub, opts CoordinatorOptions) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultAITimeout
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultAIPrefix
	}
	if opts.Recorder == nil {
		opts.Recorder = generationlog.NopRecorder{}
	}
	if opts.Activity == nil {
		opts.Activity = activity.NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Coordinator{
		hub:      hub,
		provider: opts.Provider,
		prompts:  opts.Prompts,
		timeout:  opts.Timeout,
		prefix:   opts.Prefix,
		recorder: opts.Recorder,
		activity: opts.Activity,
		logger:   opts.Logger,
	}
}

// Matches reports whether a chat message is addressed to the AI.
func (co *Coordinator) Matches(message string) bool {
	return strings.HasPrefix(message, co.prefix)
}

// Prompt strips the AI prefix from a chat message.
func (co *Coordinator) Prompt(message string) string {
	if strings.TrimSpace(message) == strings.TrimSpace(co.prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(message, co.prefix))
}

// AskAI echoes the request, shows the placeholder and starts the generation
// in the background. A second request while one is in flight for the same
// room is refused with a notice to the sender only.
func (co *Coordinator) AskAI(c *Client, msg models.ChatLine) error {
	r, err := co.hub.roomOf(c)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	at := msg.Time
	if at == "" {
		at = r.timeLabel()
	}

	prompt := co.Prompt(msg.Message)
	if prompt == "" {
		r.deliverLocked([]*Client{c}, models.WSFrame{
			Type: models.EventReceiveMessage,
			Data: models.SystemNotice(NoticeEmptyPrompt, at),
		})
		return nil
	}

	if !r.generation.TryAcquire(1) {
		r.deliverLocked([]*Client{c}, models.WSFrame{
			Type: models.EventReceiveMessage,
			Data: models.SystemNotice(NoticeGenerationBusy, at),
		})
		return nil
	}

	r.broadcastLocked("", models.WSFrame{
		Type: models.EventReceiveMessage,
		Data: models.ReceiveMessage{Username: msg.Username, Message: msg.Message, Time: msg.Time},
	})
	r.broadcastLocked("", models.WSFrame{
		Type: models.EventCodeChange,
		Data: models.CodeChange{Code: models.PlaceholderCode, Message: models.MessageAIGenerating},
	})

	job := generationJob{
		requestID: uuid.NewString(),
		room:      r,
		username:  msg.Username,
		prompt:    prompt,
		at:        at,
	}

	co.hub.generating.Add(1)
	co.wg.Add(1)
	go co.generate(job)
	return nil
}

// Wait blocks until every in-flight generation has finished.
func (co *Coordinator) Wait() {
	co.wg.Wait()
}

type generationJob struct {
	requestID string
	room      *Room
	username  string
	prompt    string
	at        string
}

func (co *Coordinator) generate(job generationJob) {
	defer co.wg.Done()
	defer co.hub.generating.Add(-1)

	r := job.room
	logger := co.logger.With(
		zap.String("request_id", job.requestID),
		zap.String("room_id", r.ID),
	)

	ctx, cancel := context.WithTimeout(r.ctx, co.timeout)
	defer cancel()

	start := co.hub.clock.Now()
	resp, err := co.call(ctx, job)
	elapsed := co.hub.clock.Since(start)
	metrics.GenerationDuration.Observe(elapsed.Seconds())

	rec := &generationlog.Record{
		RequestID:   job.requestID,
		RoomID:      r.ID,
		Username:    job.username,
		PromptChars: len(job.prompt),
		Provider:    co.providerName(),
		DurationMS:  elapsed.Milliseconds(),
		RequestedAt: start.UTC(),
	}

	var code string
	if err == nil {
		code = prompts.StripFences(resp.Text)
		rec.LLMModel = resp.Model
		if code == "" {
			err = &llm.ProviderError{Provider: rec.Provider, Code: llm.ErrCodeInvalidInput, Message: "Empty response generated"}
		}
	}

	switch {
	case r.ctx.Err() != nil:
		// room evicted or hub shutting down; nobody is left to tell
		rec.Status = generationlog.StatusCancelled
		if err != nil {
			rec.Error = err.Error()
		}
		logger.Info("generation cancelled", zap.Duration("duration", elapsed))

	case err == nil:
		rec.Status = generationlog.StatusSucceeded
		rec.OutputChars = len(code)
		r.Broadcast(
			models.WSFrame{
				Type: models.EventCodeChange,
				Data: models.CodeChange{Code: code, Message: models.MessageCodeChangedAI},
			},
			models.WSFrame{
				Type: models.EventReceiveMessage,
				Data: models.SystemNotice(models.MessageCodeChangedAI, job.at),
			},
		)
		logger.Info("generation succeeded", zap.Duration("duration", elapsed), zap.Int("output_chars", len(code)))

	default:
		rec.Status = generationlog.StatusFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			rec.Status = generationlog.StatusTimedOut
		}
		rec.Error = err.Error()
		r.Broadcast(models.WSFrame{
			Type: models.EventReceiveMessage,
			Data: models.SystemNotice(fmt.Sprintf(noticeGenerationError, failureReason(rec.Status, err)), job.at),
		})
		logger.Warn("generation failed", zap.String("status", string(rec.Status)), zap.Error(err))
	}

	// the room may ask again as soon as it has seen the outcome
	r.generation.Release(1)

	metrics.Generations.WithLabelValues(string(rec.Status)).Inc()
	co.activity.Publish(activity.Event{
		Kind:     activity.KindGenerationFinished,
		RoomID:   r.ID,
		Username: job.username,
		Detail:   string(rec.Status),
		At:       co.hub.clock.Now().UTC(),
	})

	recordCtx, recordCancel := context.WithTimeout(context.Background(), recordTimeout)
	defer recordCancel()
	if err := co.recorder.Record(recordCtx, rec); err != nil {
		logger.Warn("failed to record generation", zap.Error(err))
	}
}

func (co *Coordinator) call(ctx context.Context, job generationJob) (*llm.Response, error) {
	if co.provider == nil {
		return nil, &llm.ProviderError{Code: llm.ErrCodeServiceDown, Message: "No AI provider configured"}
	}

	req := &llm.Request{RequestID: job.requestID, Prompt: job.prompt}
	if co.prompts != nil {
		p, err := co.prompts.BuildPrompt(prompts.ModeGenerate, map[string]string{"Prompt": job.prompt})
		if err != nil {
			return nil, fmt.Errorf("build prompt: %w", err)
		}
		req.Prompt = p.Text
		req.SystemInstruction = p.SystemInstruction
		req.Temperature = p.Temperature
	}

	return co.provider.GenerateCode(ctx, req)
}

func (co *Coordinator) providerName() string {
	if co.provider == nil {
		return ""
	}
	return co.provider.GetProviderName()
}

func failureReason(status generationlog.Status, err error) string {
	if status == generationlog.StatusTimedOut {
		return "request timed out"
	}
	var provErr *llm.ProviderError
	if errors.As(err, &provErr) && provErr.Message != "" {
		return provErr.Message
	}
	return err.Error()
}

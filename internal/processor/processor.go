// Package processor wires the intake path together: inbound chat events
// feed the batcher, released batches run the extraction pipeline, the audit
// gate strips unsupported actions, and the applier executes the rest.
package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stocklens/yardbot/internal/apply"
	"github.com/stocklens/yardbot/internal/audit"
	"github.com/stocklens/yardbot/internal/batch"
	"github.com/stocklens/yardbot/internal/chat"
	"github.com/stocklens/yardbot/internal/dedup"
	"github.com/stocklens/yardbot/internal/pipeline"
	"github.com/stocklens/yardbot/internal/reliability"
)

// Sender posts text back to a conversation. *chat.Client satisfies it.
type Sender interface {
	Send(conversationID, text string) error
}

// PhotoStore fetches a stored photo's bytes by reference. The object-storage
// wrapper behind it is not our concern.
type PhotoStore interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Captioner turns a photo into a short findings caption (vehicle, rego if
// legible, visible damage). The vision service behind it is not our concern.
type Captioner interface {
	Caption(ctx context.Context, photo []byte) (string, error)
}

// photoPlaceholder holds a photo message's slot in the window until the
// caption lands. If the batch releases first, the enrichment no-ops.
const photoPlaceholder = "[photo]"

const enrichTimeout = 60 * time.Second

// Stats are cumulative processing counters for the status endpoint.
type Stats struct {
	Batches     int `json:"batches"`
	Extracted   int `json:"extracted"`
	Gated       int `json:"gated"`
	Applied     int `json:"applied"`
	NeedsReview int `json:"needs_review"`
	Failed      int `json:"failed"`
}

// Processor owns the batcher and runs one released batch at a time through
// pipeline, audit and apply.
type Processor struct {
	pipe      *pipeline.Pipeline
	auditor   *audit.Engine
	applier   *apply.Applier
	sender    Sender
	photos    PhotoStore
	captioner Captioner
	logger    *slog.Logger

	batcher     *batch.Batcher
	suppressor  *dedup.Suppressor
	reliability *reliability.Tracker

	mu    sync.Mutex
	stats Stats
}

// New builds a processor and its batcher. sender, photos and captioner may
// be nil: replies, or photo enrichment, are then skipped.
func New(pipe *pipeline.Pipeline, auditor *audit.Engine, applier *apply.Applier,
	sender Sender, photos PhotoStore, captioner Captioner,
	batchCfg batch.Config, logger *slog.Logger) *Processor {

	p := &Processor{
		pipe:        pipe,
		auditor:     auditor,
		applier:     applier,
		sender:      sender,
		photos:      photos,
		captioner:   captioner,
		logger:      logger,
		suppressor:  dedup.New(dedup.DefaultTTL),
		reliability: reliability.NewTracker(),
	}
	p.batcher = batch.New(batchCfg, p.processBatch, logger)
	return p
}

// HandleMessage is the NATS handler for inbound chat events.
func (p *Processor) HandleMessage(subject string, data []byte) {
	evt, err := chat.ParseMessageEvent(data)
	if err != nil {
		p.logger.Error("bad message event", "error", err)
		return
	}
	if evt.ConversationID == "" || evt.MessageKey == "" {
		p.logger.Warn("message event missing identifiers", "conversation", evt.ConversationID)
		return
	}
	if p.suppressor.Seen(evt.ConversationID, evt.MessageKey) {
		p.logger.Info("dropping redelivered message", "conversation", evt.ConversationID, "key", evt.MessageKey)
		return
	}

	text := evt.Text
	if evt.PhotoRef != "" && text == "" {
		text = photoPlaceholder
	}

	p.batcher.Add(evt.ConversationID, evt.Speaker, text, evt.MessageKey, evt.Timestamp)

	if evt.PhotoRef != "" {
		go p.enrichPhoto(evt)
	}
}

// enrichPhoto captions a photo and overwrites its placeholder in the still
// pending window. Racing the timer is fine: Update reports false once the
// batch has released and the caption is simply dropped.
func (p *Processor) enrichPhoto(evt chat.MessageEvent) {
	if p.photos == nil || p.captioner == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
	defer cancel()

	photo, err := p.photos.Fetch(ctx, evt.PhotoRef)
	if err != nil {
		p.logger.Warn("photo fetch failed", "ref", evt.PhotoRef, "error", err)
		return
	}
	caption, err := p.captioner.Caption(ctx, photo)
	if err != nil {
		p.logger.Warn("photo caption failed", "ref", evt.PhotoRef, "error", err)
		return
	}

	text := caption
	if evt.Text != "" {
		text = evt.Text + "\n" + caption
	}
	if !p.batcher.Update(evt.ConversationID, evt.MessageKey, text) {
		p.logger.Info("caption arrived after batch release", "ref", evt.PhotoRef)
	}
}

// processBatch is the batcher's release callback.
func (p *Processor) processBatch(conversationID string, msgs []batch.Message) {
	ctx := context.Background()

	p.logger.Info("processing batch", "conversation", conversationID, "messages", len(msgs))

	actions := p.pipe.Run(ctx, msgs)

	sourceLines := make([]pipeline.Line, 0, len(msgs))
	for _, m := range msgs {
		sourceLines = append(sourceLines, pipeline.Line{Speaker: m.Speaker, Text: m.Text})
	}

	verdicts := p.auditor.Audit(ctx, sourceLines, actions)
	p.reliability.Record(actions, verdicts)
	gated := audit.Gate(actions, verdicts)
	for i, v := range verdicts {
		if v.Verdict == audit.VerdictIncorrect {
			p.logger.Warn("audit dropped action",
				"conversation", conversationID,
				"type", actions[i].Type,
				"rego", actions[i].Rego,
				"reason", v.Reason,
			)
		}
	}

	outcome := p.applier.Apply(ctx, gated)

	p.mu.Lock()
	p.stats.Batches++
	p.stats.Extracted += len(actions)
	p.stats.Gated += len(actions) - len(gated)
	p.stats.Applied += len(outcome.Applied)
	p.stats.NeedsReview += len(outcome.NeedsReview)
	p.stats.Failed += len(outcome.Failed)
	p.mu.Unlock()

	p.logger.Info("batch processed",
		"conversation", conversationID,
		"extracted", len(actions),
		"gated_out", len(actions)-len(gated),
		"applied", len(outcome.Applied),
		"review", len(outcome.NeedsReview),
		"failed", len(outcome.Failed),
	)

	if p.sender != nil && len(gated) > 0 {
		if err := p.sender.Send(conversationID, outcome.Summary()); err != nil {
			p.logger.Error("failed to post batch summary", "conversation", conversationID, "error", err)
		}
	}
}

// Stats returns a snapshot of the processing counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Reliability returns the running per-type extraction reliability scores.
func (p *Processor) Reliability() []reliability.TypeScore {
	return p.reliability.Snapshot()
}

// Close flushes pending windows through processing and stops the timers.
func (p *Processor) Close() {
	p.batcher.Close()
}

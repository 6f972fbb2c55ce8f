package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is the ingress poll cadence.
const DefaultPollInterval = 5 * time.Second

// InboundSource reads channel history and posts replies; the Slack
// adapter implements it, tests use fakes.
type InboundSource interface {
	History(ctx context.Context, channelName, oldest string) ([]InboundMessage, string, error)
	PostToChannel(ctx context.Context, channelName, text string) error
}

// Poller is the ingress loop: it polls the command channel for founder
// messages, runs them through the command handler, and drives the
// announcer. Messages from any other user are ignored.
type Poller struct {
	source    InboundSource
	handler   *Handler
	announcer *Announcer
	founderID string
	channel   string
	logger    *slog.Logger

	interval time.Duration
	lastTS   string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a Poller. Only messages from founderID are handled.
func NewPoller(source InboundSource, handler *Handler, announcer *Announcer, founderID, channel string, logger *slog.Logger) *Poller {
	return &Poller{
		source:    source,
		handler:   handler,
		announcer: announcer,
		founderID: founderID,
		channel:   channel,
		logger:    logger.With("component", "ingress"),
		interval:  DefaultPollInterval,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the poll loop. History older than startup is never
// replayed.
func (p *Poller) Start(ctx context.Context) {
	p.lastTS = fmt.Sprintf("%d.000000", time.Now().Unix())
	p.wg.Add(1)
	go p.run(ctx)
	p.logger.Info("ingress started", "channel", p.channel, "interval", p.interval)
}

// Stop signals the loop to finish its current iteration and waits.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.logger.Info("ingress stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.pollCommands(ctx)
	if p.announcer != nil {
		p.announcer.Tick(ctx)
	}
}

func (p *Poller) pollCommands(ctx context.Context) {
	messages, newest, err := p.source.History(ctx, p.channel, p.lastTS)
	if err != nil {
		p.logger.Warn("history poll failed", "error", err)
		return
	}
	p.lastTS = newest

	for _, msg := range messages {
		if msg.FromUserID != p.founderID {
			continue
		}
		reply := p.handler.Handle(ctx, msg.Text)
		if reply == "" {
			continue
		}
		if err := p.source.PostToChannel(ctx, p.channel, reply); err != nil {
			p.logger.Warn("failed to post reply", "error", err)
		}
	}
}

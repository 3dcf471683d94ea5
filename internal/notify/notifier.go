// Package notify delivers trade notifications to external channels.
// Publishing never blocks the trading loop: messages are queued and sent by a
// background goroutine, and dropped when the queue is full.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vadiminshakov/tradeflow/internal/metrics"
)

const (
	DefaultQueueSize = 64
	sendTimeout      = 10 * time.Second
)

// Sender notification channel.
type Sender interface {
	Send(ctx context.Context, text string) error
	Name() string
}

// Notifier fans queued messages out to every sender.
type Notifier struct {
	senders []Sender
	queue   chan string
	logger  *zap.Logger
	done    chan struct{}
}

// NewNotifier creates a notifier with a queue of size messages.
func NewNotifier(size int, logger *zap.Logger, senders ...Sender) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Notifier{
		senders: senders,
		queue:   make(chan string, size),
		logger:  logger.With(zap.String("component", "notifier")),
		done:    make(chan struct{}),
	}
}

// Publish queues text for delivery. It drops the message when the queue is full.
func (n *Notifier) Publish(text string) {
	select {
	case n.queue <- text:
	default:
		metrics.NotificationsDropped.Inc()
		n.logger.Warn("notification queue full, dropping message", zap.String("text", text))
	}
}

// Run delivers queued messages until ctx is done, then drains what is left.
func (n *Notifier) Run(ctx context.Context) {
	defer close(n.done)
	for {
		select {
		case text := <-n.queue:
			n.dispatch(ctx, text)
		case <-ctx.Done():
			n.drain()
			return
		}
	}
}

// Wait blocks until Run has returned.
func (n *Notifier) Wait() {
	<-n.done
}

func (n *Notifier) drain() {
	ctx := context.Background()
	for {
		select {
		case text := <-n.queue:
			n.dispatch(ctx, text)
		default:
			return
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, text string) {
	for _, s := range n.senders {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		err := s.Send(sendCtx, text)
		cancel()
		if err != nil {
			n.logger.Error("sender failed", zap.String("sender", s.Name()), zap.Error(err))
			continue
		}
		n.logger.Debug("notification sent", zap.String("sender", s.Name()))
	}
}

// LogSender writes notifications to the log.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a sender logging at info level.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(_ context.Context, text string) error {
	l.logger.Info("notification", zap.String("text", text))
	return nil
}

func (l *LogSender) Name() string {
	return "log"
}

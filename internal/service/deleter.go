package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"discordarchive/internal/discord"
	"discordarchive/internal/logger"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
)

// A rate-limited delete is retried exactly once.
const deleteAttempts = 2

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Deleter unpins messages one at a time, honouring the server's retry_after
// on a first 429 and giving up after the second attempt.
type Deleter struct {
	api    PinsAPI
	index  Index
	logger *log.Logger
	timer  retry.Timer
}

// DeleteSummary counts the outcome of a DeletePins run.
type DeleteSummary struct {
	Deleted int
	Failed  int
}

func NewDeleter(api PinsAPI, index Index, l *log.Logger) *Deleter {
	if index == nil {
		index = nopIndex{}
	}
	return &Deleter{
		api:    api,
		index:  index,
		logger: l,
		timer:  realTimer{},
	}
}

// DeletePin removes one pin and reports how many DELETE requests it took.
func (d *Deleter) DeletePin(ctx context.Context, channelID, messageID string) (int, error) {
	attempts := 0
	operation := "delete pin " + messageID

	err := retry.Do(
		func() error {
			attempts++
			if attempts > 1 {
				logger.LogRetryAttempt(d.logger, attempts, deleteAttempts, operation)
			}
			return d.api.DeletePin(ctx, channelID, messageID)
		},
		retry.Context(ctx),
		retry.Attempts(deleteAttempts),
		retry.RetryIf(discord.IsRateLimited),
		retry.DelayType(func(_ uint, err error, _ *retry.Config) time.Duration {
			var rl *discord.RateLimitError
			if !errors.As(err, &rl) {
				return 0
			}
			logger.LogRateLimit(d.logger, rl.RetryAfter, operation)
			return rl.RetryAfter
		}),
		retry.LastErrorOnly(true),
		retry.WithTimer(d.timer),
	)
	return attempts, err
}

// DeletePins walks pins in order. A pin that cannot be deleted is logged and
// skipped; only context cancellation stops the loop early.
func (d *Deleter) DeletePins(ctx context.Context, channelID string, pins []discord.Pin) (DeleteSummary, error) {
	var summary DeleteSummary

	for _, pin := range pins {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		pinChannel := pin.ChannelID
		if pinChannel == "" {
			pinChannel = channelID
		}

		d.logger.Debug("deleting pin", "pin", pin.ID)
		attempts, err := d.DeletePin(ctx, pinChannel, pin.ID)
		if err != nil {
			msg := fmt.Sprintf("failed to delete pin %s", pin.ID)
			if attempts > 1 {
				msg += " again"
			}
			d.logger.Error(msg, "status", discord.StatusCode(err), "attempts", attempts, "err", err)
			summary.Failed++
			continue
		}

		summary.Deleted++
		if err := d.index.MarkPinDeleted(ctx, pinChannel, pin.ID); err != nil {
			d.logger.Warn("archive index not updated", "err", err)
		}
	}

	d.logger.Info(fmt.Sprintf("deleted %d pins", summary.Deleted), "failed", summary.Failed)
	return summary, nil
}

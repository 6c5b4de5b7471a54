// Copyright 2025 AtticFS Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimited decorates a Channel with a client-side token bucket. The
// platform enforces per-bot request limits; pacing calls locally keeps the
// retry machinery from fighting 429 storms.
type rateLimited struct {
	ch      Channel
	limiter *rate.Limiter
}

// RateLimited wraps ch so every platform call first waits on a token bucket
// of r events per second with the given burst.
func RateLimited(ch Channel, r rate.Limit, burst int) Channel {
	return &rateLimited{ch: ch, limiter: rate.NewLimiter(r, burst)}
}

func (l *rateLimited) SendFiles(ctx context.Context, channelID uint64, files []File) (*Message, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.ch.SendFiles(ctx, channelID, files)
}

func (l *rateLimited) GetMessage(ctx context.Context, channelID, messageID uint64) (*Message, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.ch.GetMessage(ctx, channelID, messageID)
}

func (l *rateLimited) DeleteMessages(ctx context.Context, channelID uint64, messageIDs []uint64) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.ch.DeleteMessages(ctx, channelID, messageIDs)
}

func (l *rateLimited) CreateChannel(ctx context.Context, name string) (uint64, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return l.ch.CreateChannel(ctx, name)
}

func (l *rateLimited) DeleteChannel(ctx context.Context, channelID uint64) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	return l.ch.DeleteChannel(ctx, channelID)
}

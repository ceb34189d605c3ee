package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// PGListener relays Postgres NOTIFY payloads into a Hub. The payloads are
// produced by the complaints table trigger, so every insert, update, or
// delete reaches subscribers no matter which process wrote it.
type PGListener struct {
	dsn     string
	channel string
	hub     *Hub

	minReconnect time.Duration
	maxReconnect time.Duration
}

// NewPGListener prepares a listener; nothing connects until Run.
func NewPGListener(dsn, channel string, hub *Hub) *PGListener {
	return &PGListener{
		dsn:          dsn,
		channel:      channel,
		hub:          hub,
		minReconnect: 10 * time.Second,
		maxReconnect: time.Minute,
	}
}

// Publish is a no-op: the database trigger emits the notification as part of
// the insert's transaction.
func (l *PGListener) Publish(context.Context, Event) error { return nil }

// Run listens on the channel and relays notifications until ctx is done.
func (l *PGListener) Run(ctx context.Context) error {
	ln := pq.NewListener(l.dsn, l.minReconnect, l.maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("postgres listener")
		}
	})
	defer ln.Close()

	if err := ln.Listen(l.channel); err != nil {
		return fmt.Errorf("postgres listen %q: %w", l.channel, err)
	}
	log.Info().Str("channel", l.channel).Msg("postgres notifier listening")

	relayPG(ctx, ln.Notify, l.hub, 90*time.Second, ln.Ping)
	return nil
}

// relayPG forwards notifications to hub. A nil notification means the
// connection was re-established and some events may have been missed. When
// idle for the given interval, ping checks the connection.
func relayPG(ctx context.Context, notes <-chan *pq.Notification, hub *Hub, idle time.Duration, ping func() error) {
	t := time.NewTimer(idle)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			if n == nil {
				log.Warn().Msg("postgres listener reconnected; events may have been missed")
				continue
			}
			ev, err := DecodeEvent([]byte(n.Extra))
			if err != nil {
				log.Warn().Err(err).Str("channel", n.Channel).Msg("dropping postgres notification")
				continue
			}
			_ = hub.Publish(ctx, ev)
		case <-t.C:
			if ping != nil {
				if err := ping(); err != nil {
					log.Warn().Err(err).Msg("postgres listener ping failed")
				}
			}
			t.Reset(idle)
		}
	}
}

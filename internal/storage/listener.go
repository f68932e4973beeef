package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"rechtstreeks/internal/domain"
)

// SectionListener relays NOTIFY payloads written by PostgresStore.
type SectionListener struct {
	listener *pq.Listener
	logger   *zap.Logger
}

func NewSectionListener(dsn string, logger *zap.Logger) (*SectionListener, error) {
	l := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("section listener connection event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := l.Listen(SectionEventsChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", SectionEventsChannel, err)
	}
	return &SectionListener{listener: l, logger: logger}, nil
}

// EventSink receives decoded section events, and Resync after a gap in the feed.
type EventSink interface {
	Publish(ev domain.SectionEvent)
	Resync()
}

// Run delivers events to sink until ctx is cancelled.
func (s *SectionListener) Run(ctx context.Context, sink EventSink) error {
	defer s.listener.Close()

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-s.listener.Notify:
			if !ok {
				return fmt.Errorf("section listener closed")
			}
			s.deliver(n, sink)
		case <-ping.C:
			if err := s.listener.Ping(); err != nil {
				s.logger.Warn("section listener ping failed", zap.Error(err))
			}
		}
	}
}

// deliver handles one notification. A nil notification follows a reconnect: events sent
// during the gap are lost, so every subscriber is told to re-read.
func (s *SectionListener) deliver(n *pq.Notification, sink EventSink) {
	if n == nil {
		s.logger.Info("section listener reconnected, requesting resync")
		sink.Resync()
		return
	}
	ev, err := decodeSectionEvent(n.Extra)
	if err != nil {
		s.logger.Warn("drop malformed section event", zap.String("payload", n.Extra), zap.Error(err))
		return
	}
	sink.Publish(ev)
}

func decodeSectionEvent(payload string) (domain.SectionEvent, error) {
	var ev domain.SectionEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.SectionEvent{}, err
	}
	if ev.SummonsID == "" || ev.SectionKey == "" {
		return domain.SectionEvent{}, fmt.Errorf("section event missing summons or section key")
	}
	return ev, nil
}

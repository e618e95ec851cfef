package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/signage-server/signage-gateway-pro/internal/models"
	"github.com/signage-server/signage-gateway-pro/internal/storage"
	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

// Pusher 向在线设备下发一帧，由网关服务器实现
type Pusher interface {
	Push(imei string, resp protocol.ResponseFrame) error
}

// NATSSubscriber NATS subscriber
type NATSSubscriber struct {
	nc     *nats.Conn
	store  storage.Store
	pusher Pusher
	subs   []*nats.Subscription
}

// NewNATSSubscriber creates NATS subscriber
func NewNATSSubscriber(nc *nats.Conn, store storage.Store, pusher Pusher) *NATSSubscriber {
	return &NATSSubscriber{
		nc:     nc,
		store:  store,
		pusher: pusher,
		subs:   make([]*nats.Subscription, 0),
	}
}

// Start starts subscriptions and blocks until ctx is cancelled
func (s *NATSSubscriber) Start(ctx context.Context) error {
	// Subscribe to push requests for connected devices
	sub, err := s.nc.Subscribe("device.*.push", s.handleDevicePush)
	if err != nil {
		return fmt.Errorf("subscribe device push: %w", err)
	}
	s.subs = append(s.subs, sub)

	log.Info().
		Int("subscriptions", len(s.subs)).
		Msg("NATS subscriber started")

	<-ctx.Done()

	// Unsubscribe
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}

	return ctx.Err()
}

// handleDevicePush handles push requests published on device.<imei>.push
func (s *NATSSubscriber) handleDevicePush(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("Received device push request")

	tokens := strings.Split(msg.Subject, ".")
	if len(tokens) != 3 {
		log.Error().Str("subject", msg.Subject).Msg("Unexpected push subject")
		return
	}
	imei := tokens[1]

	var pushReq struct {
		Type   int      `json:"type"`
		Fields []string `json:"fields"`
	}

	if err := json.Unmarshal(msg.Data, &pushReq); err != nil {
		log.Error().Err(err).Msg("Failed to unmarshal push request")
		return
	}

	resp := protocol.ResponseFrame{
		Code:   protocol.ResponseAccept,
		Type:   protocol.ParseMessageType(pushReq.Type),
		Time:   protocol.FormatResponseTime(time.Now()),
		Fields: pushReq.Fields,
	}

	if err := s.pusher.Push(imei, resp); err != nil {
		log.Warn().
			Err(err).
			Str("imei", imei).
			Str("type", resp.Type.String()).
			Msg("Push to device failed")
		return
	}

	// Log event
	ctx := context.Background()
	event := &models.EventLog{
		IMEI:        imei,
		Type:        models.EventTypePush,
		Level:       models.EventLevelInfo,
		Description: fmt.Sprintf("Pushed %s frame to device", resp.Type.String()),
		Details: models.Variables{
			"type":   resp.Type.String(),
			"fields": len(resp.Fields),
		},
	}

	if err := s.store.CreateEventLog(ctx, event); err != nil {
		log.Error().Err(err).Msg("Failed to create event log")
	}

	log.Info().
		Str("imei", imei).
		Str("type", resp.Type.String()).
		Msg("Push delivered to device")
}

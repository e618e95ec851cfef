package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/signage-server/signage-gateway-pro/internal/verifier"
)

// EventPublisher 把连接生命周期事件发布到 NATS，
// 主题格式 device.<imei>.<event>
type EventPublisher struct {
	nc *nats.Conn
}

// NewEventPublisher creates a publisher on an established NATS connection
func NewEventPublisher(nc *nats.Conn) *EventPublisher {
	return &EventPublisher{nc: nc}
}

// DeviceConnected publishes device.<imei>.connected
func (p *EventPublisher) DeviceConnected(imei, remoteAddr string) {
	p.publish(imei, "connected", map[string]interface{}{
		"imei":       imei,
		"remoteAddr": remoteAddr,
	})
}

// DeviceAdmitted publishes device.<imei>.admitted
func (p *EventPublisher) DeviceAdmitted(imei string) {
	p.publish(imei, "admitted", map[string]interface{}{
		"imei": imei,
	})
}

// DeviceRejected publishes device.<imei>.rejected
func (p *EventPublisher) DeviceRejected(imei string, reason verifier.Reason) {
	p.publish(imei, "rejected", map[string]interface{}{
		"imei":   imei,
		"reason": string(reason),
	})
}

// DeviceClosed publishes device.<imei>.closed
func (p *EventPublisher) DeviceClosed(imei, remoteAddr string) {
	p.publish(imei, "closed", map[string]interface{}{
		"imei":       imei,
		"remoteAddr": remoteAddr,
	})
}

func (p *EventPublisher) publish(imei, event string, payload map[string]interface{}) {
	if imei == "" {
		// 握手前断开的连接没有 IMEI
		imei = "unknown"
	}
	payload["timestamp"] = time.Now().Unix()

	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("序列化设备事件失败")
		return
	}

	subject := fmt.Sprintf("device.%s.%s", imei, event)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("发布设备事件到 NATS 失败")
	}
}

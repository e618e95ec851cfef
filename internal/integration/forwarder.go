package integration

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/signage-server/signage-gateway-pro/internal/config"
)

// DeviceEvent 是转发到外部系统的设备生命周期事件
type DeviceEvent struct {
	IMEI      string `json:"imei"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Remote    string `json:"remoteAddr,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ForwarderService 把设备生命周期事件转发到外部系统
type ForwarderService struct {
	nc  *nats.Conn
	cfg config.IntegrationConfig

	// HTTP 客户端
	httpClient *http.Client

	// MQTT 客户端，懒连接
	mqttMu     sync.Mutex
	mqttClient mqtt.Client
}

// NewForwarderService 创建转发服务
func NewForwarderService(nc *nats.Conn, cfg config.IntegrationConfig) *ForwarderService {
	return &ForwarderService{
		nc:  nc,
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTP.Timeout,
		},
	}
}

// Start 订阅设备事件并阻塞到 ctx 结束
func (s *ForwarderService) Start(ctx context.Context) error {
	// 订阅所有设备事件，push 是下行指令不外发
	sub, err := s.nc.Subscribe("device.*.*", s.handleDeviceEvent)
	if err != nil {
		return fmt.Errorf("subscribe to device events: %w", err)
	}

	log.Info().
		Bool("http", s.cfg.HTTP.Enabled).
		Bool("mqtt", s.cfg.MQTT.Enabled).
		Msg("事件转发服务启动")

	<-ctx.Done()

	sub.Unsubscribe()
	s.closeMQTT()

	return nil
}

// handleDeviceEvent 处理一条设备事件
func (s *ForwarderService) handleDeviceEvent(msg *nats.Msg) {
	parts := strings.Split(msg.Subject, ".")
	if len(parts) != 3 {
		return
	}
	if parts[2] == "push" {
		return
	}

	event := DeviceEvent{
		IMEI:  parts[1],
		Event: parts[2],
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("解析设备事件失败")
		return
	}
	if reason, ok := payload["reason"].(string); ok {
		event.Reason = reason
	}
	if remote, ok := payload["remoteAddr"].(string); ok {
		event.Remote = remote
	}
	if ts, ok := payload["timestamp"].(float64); ok {
		event.Timestamp = int64(ts)
	}

	if s.cfg.HTTP.Enabled {
		go s.forwardToHTTP(event)
	}
	if s.cfg.MQTT.Enabled {
		go s.forwardToMQTT(event)
	}
}

// forwardToHTTP 转发事件到 webhook
func (s *ForwarderService) forwardToHTTP(event DeviceEvent) {
	jsonData, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("序列化转发数据失败")
		return
	}

	req, err := http.NewRequest("POST", s.cfg.HTTP.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		log.Error().Err(err).Msg("创建 HTTP 请求失败")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.cfg.HTTP.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("endpoint", s.cfg.HTTP.Endpoint).
			Msg("转发事件到 HTTP 失败")

		// TODO: 实现重试逻辑
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("endpoint", s.cfg.HTTP.Endpoint).
			Msg("HTTP 转发被拒绝")
	} else {
		log.Debug().
			Str("imei", event.IMEI).
			Str("event", event.Event).
			Msg("事件已转发到 HTTP")
	}
}

// forwardToMQTT 转发事件到 MQTT
func (s *ForwarderService) forwardToMQTT(event DeviceEvent) {
	client := s.getMQTTClient()
	if client == nil {
		return
	}

	topic := s.cfg.MQTT.TopicPattern
	topic = strings.ReplaceAll(topic, "{imei}", event.IMEI)
	topic = strings.ReplaceAll(topic, "{event}", event.Event)

	jsonData, err := json.Marshal(event)
	if err != nil {
		return
	}

	token := client.Publish(topic, s.cfg.MQTT.QoS, false, jsonData)
	if token.WaitTimeout(5 * time.Second) {
		if err := token.Error(); err != nil {
			log.Error().
				Err(err).
				Str("topic", topic).
				Msg("发布到 MQTT 失败")
		} else {
			log.Debug().
				Str("imei", event.IMEI).
				Str("topic", topic).
				Msg("事件已转发到 MQTT")
		}
	} else {
		log.Error().
			Str("topic", topic).
			Msg("MQTT 发布超时")
	}
}

// getMQTTClient 获取 MQTT 客户端，没有连接时建立连接
func (s *ForwarderService) getMQTTClient() mqtt.Client {
	s.mqttMu.Lock()
	defer s.mqttMu.Unlock()

	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		return s.mqttClient
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.MQTT.BrokerURL)
	opts.SetClientID("signage-gateway-forwarder")

	if s.cfg.MQTT.Username != "" {
		opts.SetUsername(s.cfg.MQTT.Username)
		opts.SetPassword(s.cfg.MQTT.Password)
	}

	if s.cfg.MQTT.TLS {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: true, // 生产环境应该使用证书验证
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("broker", s.cfg.MQTT.BrokerURL).Msg("MQTT 已连接")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Msg("MQTT 连接丢失")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()

	if token.WaitTimeout(10*time.Second) && token.Error() == nil {
		s.mqttClient = client
		return client
	}

	log.Error().
		Err(token.Error()).
		Str("broker", s.cfg.MQTT.BrokerURL).
		Msg("连接 MQTT 失败")

	return nil
}

// closeMQTT 断开 MQTT 连接
func (s *ForwarderService) closeMQTT() {
	s.mqttMu.Lock()
	defer s.mqttMu.Unlock()

	if s.mqttClient != nil && s.mqttClient.IsConnected() {
		s.mqttClient.Disconnect(250)
		log.Info().Msg("MQTT 已断开")
	}
	s.mqttClient = nil
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signage-server/signage-gateway-pro/internal/config"
	"github.com/signage-server/signage-gateway-pro/internal/models"
	"github.com/signage-server/signage-gateway-pro/internal/scheduler"
	"github.com/signage-server/signage-gateway-pro/internal/verifier"
	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

var (
	// ErrAlreadyRunning server Start 重复调用
	ErrAlreadyRunning = errors.New("gateway: server already running")
	// ErrNotRunning 服务未启动
	ErrNotRunning = errors.New("gateway: server not running")
	// ErrDeviceNotConnected 目标设备当前没有活动连接
	ErrDeviceNotConnected = errors.New("gateway: device not connected")
)

// Directory 设备目录查询，由存储层实现
type Directory interface {
	GetDeviceByIMEI(ctx context.Context, imei string) (*models.Device, error)
	TouchDeviceSeen(ctx context.Context, imei string, seenAt time.Time) error
	CreateEventLog(ctx context.Context, event *models.EventLog) error
}

// Events 连接生命周期事件的外发通道（NATS 等）
type Events interface {
	DeviceConnected(imei, remoteAddr string)
	DeviceAdmitted(imei string)
	DeviceRejected(imei string, reason verifier.Reason)
	DeviceClosed(imei, remoteAddr string)
}

// Server 接收标牌设备的 TCP 连接并驱动会话状态机
type Server struct {
	cfg       config.GatewayConfig
	codec     *protocol.Codec
	verifier  *verifier.DeviceVerifier
	evaluator *scheduler.Evaluator
	directory Directory
	events    Events

	ln        net.Listener
	sem       chan struct{}
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	startedAt time.Time
	counters  statCounters

	mu       sync.RWMutex
	running  bool
	sessions map[*session]struct{}
	byIMEI   map[string]*session
}

// NewServer 创建网关服务器，directory 和 events 允许为 nil
func NewServer(cfg config.GatewayConfig, codec *protocol.Codec, v *verifier.DeviceVerifier, ev *scheduler.Evaluator, dir Directory, events Events) *Server {
	return &Server{
		cfg:       cfg,
		codec:     codec,
		verifier:  v,
		evaluator: ev,
		directory: dir,
		events:    events,
		sem:       make(chan struct{}, cfg.MaxConnections),
		sessions:  make(map[*session]struct{}),
		byIMEI:    make(map[string]*session),
	}
}

// Start 开始监听并接受连接，立即返回
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.ln = ln
	s.cancel = cancel
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	log.Info().
		Str("addr", ln.Addr().String()).
		Int("maxConnections", s.cfg.MaxConnections).
		Msg("设备网关 TCP 服务器启动")

	s.wg.Add(1)
	go s.acceptLoop(loopCtx)

	return nil
}

// Stop 停止接受新连接，通知所有会话关闭并等待退出。
// ctx 超时后不再等待，剩余会话在各自 goroutine 中自行收尾。
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	ln := s.ln
	cancel := s.cancel
	s.mu.Unlock()

	ln.Close()
	cancel()

	s.mu.RLock()
	for sess := range s.sessions {
		sess.signalClose()
	}
	s.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("设备网关已停止")
		return nil
	case <-ctx.Done():
		log.Warn().Int("remaining", s.ActiveConnections()).Msg("网关停止超时，放弃等待剩余会话")
		return ctx.Err()
	}
}

// IsRunning 返回服务器是否在接受连接
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr 返回实际监听地址，端口 0 启动时用于测试
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// ActiveConnections 当前活动会话数
func (s *Server) ActiveConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ConnectedIMEIs 已通过握手的在线设备 IMEI 列表
func (s *Server) ConnectedIMEIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byIMEI))
	for imei := range s.byIMEI {
		out = append(out, imei)
	}
	return out
}

// Statistics 返回运行统计快照
func (s *Server) Statistics() Statistics {
	now := time.Now()

	s.mu.RLock()
	running := s.running
	startedAt := s.startedAt
	active := len(s.sessions)
	s.mu.RUnlock()

	var uptime float64
	if running {
		uptime = now.Sub(startedAt).Seconds()
	}

	return Statistics{
		Running:               running,
		StartedAt:             startedAt,
		UptimeSeconds:         uptime,
		ActiveConnections:     active,
		TotalConnections:      s.counters.total.Load(),
		ConnectionsLastMinute: s.counters.lastMinute(now),
		OverCapacityDropped:   s.counters.overCap.Load(),
		Admission:             s.verifier.Counters().Snapshot(),
		MessagesByType:        s.counters.typeSnapshot(),
	}
}

// Push 向已连接设备下发一帧响应
func (s *Server) Push(imei string, resp protocol.ResponseFrame) error {
	s.mu.RLock()
	sess, ok := s.byIMEI[imei]
	s.mu.RUnlock()

	if !ok {
		return ErrDeviceNotConnected
	}
	return sess.write(s.codec.Encode(resp))
}

// acceptLoop 接受连接，连接数超限时直接关闭，不做任何协议交互
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("接受连接错误")
			continue
		}

		now := time.Now()
		s.counters.connectionAccepted(now)

		select {
		case s.sem <- struct{}{}:
		default:
			s.counters.overCap.Add(1)
			log.Warn().
				Str("remote", conn.RemoteAddr().String()).
				Int("max", s.cfg.MaxConnections).
				Msg("连接数已满，拒绝新连接")
			conn.Close()
			continue
		}

		sess := newSession(s, conn)
		s.addSession(sess)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			sess.run(ctx)
		}()
	}
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	if sess.imei != "" && s.byIMEI[sess.imei] == sess {
		delete(s.byIMEI, sess.imei)
	}
	s.mu.Unlock()
}

// bindIMEI 握手通过后登记在线设备，同一 IMEI 的旧会话被挤掉
func (s *Server) bindIMEI(sess *session) {
	s.mu.Lock()
	old, exists := s.byIMEI[sess.imei]
	s.byIMEI[sess.imei] = sess
	s.mu.Unlock()

	if exists && old != sess {
		log.Info().Str("imei", sess.imei).Msg("同一设备重复上线，关闭旧会话")
		old.signalClose()
	}
}

func (s *Server) logEvent(ctx context.Context, imei string, typ models.EventType, level models.EventLevel, message string, details models.Variables) {
	if s.directory == nil {
		return
	}
	event := &models.EventLog{
		IMEI:        imei,
		Type:        typ,
		Level:       level,
		Description: message,
		Details:     details,
	}
	if err := s.directory.CreateEventLog(ctx, event); err != nil {
		log.Warn().Err(err).Str("imei", imei).Msg("写入事件日志失败")
	}
}

package gateway

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signage-server/signage-gateway-pro/internal/models"
	"github.com/signage-server/signage-gateway-pro/internal/verifier"
	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

// 会话状态机：连接建立后等待握手，通过校验进入数据流，任何
// 出错、超时或拒绝都走同一条关闭路径
type sessionState int

const (
	stateAwaitingHandshake sessionState = iota
	stateStreaming
	stateClosed
)

type session struct {
	server  *Server
	conn    net.Conn
	scanner *protocol.FrameScanner

	state     sessionState
	imei      string
	device    *models.Device
	openedAt  time.Time
	closeOnce sync.Once

	writeMu sync.Mutex
}

func newSession(s *Server, conn net.Conn) *session {
	return &session{
		server:   s,
		conn:     conn,
		scanner:  protocol.NewFrameScanner(s.codec.Markers(), 4*s.cfg.BufferSize),
		state:    stateAwaitingHandshake,
		openedAt: time.Now(),
	}
}

// signalClose 从任意 goroutine 请求关闭，Read 会随之出错退出
func (s *session) signalClose() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

// write 串行化对同一连接的写入，下发推送和会话响应共用
func (s *session) write(p []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_, err := s.conn.Write(p)
	return err
}

// run 驱动会话直到关闭，单一退出路径
func (s *session) run(ctx context.Context) {
	remote := s.conn.RemoteAddr().String()
	log.Debug().Str("remote", remote).Msg("新设备连接")

	defer func() {
		s.state = stateClosed
		s.signalClose()
		s.server.removeSession(s)

		if s.server.events != nil {
			s.server.events.DeviceClosed(s.imei, remote)
		}
		if s.imei != "" {
			s.server.logEvent(context.Background(), s.imei, models.EventTypeClosed, models.EventLevelInfo,
				"connection closed", models.Variables{"remote": remote})
		}
		log.Debug().Str("remote", remote).Str("imei", s.imei).Msg("连接关闭")
	}()

	handshakeDeadline := s.openedAt.Add(s.server.cfg.ConnectionTimeout)
	buf := make([]byte, s.server.cfg.BufferSize)

	for {
		if s.state == stateAwaitingHandshake {
			s.conn.SetReadDeadline(handshakeDeadline)
		} else {
			s.conn.SetReadDeadline(time.Now().Add(s.server.cfg.ClientTimeout))
		}

		n, err := s.conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if s.state == stateAwaitingHandshake {
					log.Warn().Str("remote", remote).Msg("握手超时，关闭连接")
				} else {
					log.Debug().Str("remote", remote).Str("imei", s.imei).Msg("设备空闲超时")
				}
			}
			return
		}

		s.scanner.Append(buf[:n])
		for {
			span, ok := s.scanner.Next()
			if !ok {
				break
			}
			if !s.handleSpan(ctx, span, remote) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// handleSpan 处理一个完整帧，返回 false 表示会话应当结束
func (s *session) handleSpan(ctx context.Context, span []byte, remote string) bool {
	frame, err := s.server.codec.Decode(span)
	if err != nil {
		log.Debug().Err(err).Str("remote", remote).Msg("丢弃无法解析的帧")
		return true
	}

	if frame.Type == protocol.MessageTypeHandshake {
		return s.handleHandshake(ctx, frame, remote)
	}

	if s.state != stateStreaming {
		// 握手之前的业务帧不作响应
		log.Debug().
			Str("remote", remote).
			Str("type", frame.Type.String()).
			Msg("未握手即发送业务帧，忽略")
		return true
	}

	return s.handleStreamFrame(ctx, frame)
}

// handleHandshake 执行准入判定并应答。数据流中重复握手按新的
// 准入判定处理，被拒绝的会话随之关闭。
func (s *session) handleHandshake(ctx context.Context, frame protocol.Frame, remote string) bool {
	now := time.Now()

	if s.server.events != nil {
		s.server.events.DeviceConnected(frame.IMEI, remote)
	}

	decision := s.server.verifier.Admit(ctx, frame.IMEI, now)

	resp := protocol.ResponseFrame{
		Type: protocol.MessageTypeHandshake,
		Time: protocol.FormatResponseTime(now),
	}

	if !decision.Accepted {
		resp.Code = protocol.ResponseReject
		s.write(s.server.codec.Encode(resp))

		log.Info().
			Str("imei", frame.IMEI).
			Str("remote", remote).
			Str("reason", string(decision.Reason)).
			Int("attempts", decision.Record.UnapprovedAttempts).
			Msg("设备准入被拒绝")

		if s.server.events != nil {
			s.server.events.DeviceRejected(frame.IMEI, decision.Reason)
		}
		s.server.logEvent(ctx, frame.IMEI, rejectionEventType(decision.Reason), models.EventLevelWarning,
			"admission rejected", models.Variables{"reason": string(decision.Reason), "remote": remote})
		return false
	}

	s.imei = frame.IMEI
	s.state = stateStreaming
	s.server.bindIMEI(s)

	if s.server.directory != nil {
		device, err := s.server.directory.GetDeviceByIMEI(ctx, frame.IMEI)
		if err != nil {
			log.Warn().Err(err).Str("imei", frame.IMEI).Msg("查询设备档案失败")
		} else {
			s.device = device
		}
		if err := s.server.directory.TouchDeviceSeen(ctx, frame.IMEI, now); err != nil {
			log.Warn().Err(err).Str("imei", frame.IMEI).Msg("更新设备在线时间失败")
		}
	}

	resp.Code = protocol.ResponseAccept
	if err := s.write(s.server.codec.Encode(resp)); err != nil {
		log.Warn().Err(err).Str("imei", frame.IMEI).Msg("发送握手应答失败")
		return false
	}

	log.Info().
		Str("imei", frame.IMEI).
		Str("remote", remote).
		Str("communication", frame.Communication.String()).
		Msg("设备上线")

	if s.server.events != nil {
		s.server.events.DeviceAdmitted(frame.IMEI)
	}
	s.server.logEvent(ctx, frame.IMEI, models.EventTypeAdmitted, models.EventLevelInfo,
		"device admitted", models.Variables{"remote": remote, "communication": frame.Communication.String()})
	return true
}

// handleStreamFrame 应答已准入设备的业务帧。内容查询帧返回当前
// 生效的排期内容，没有命中的规则时返回空闲标记。
func (s *session) handleStreamFrame(ctx context.Context, frame protocol.Frame) bool {
	now := time.Now()
	s.server.counters.messageProcessed(frame.Type)

	resp := protocol.ResponseFrame{
		Code: protocol.ResponseAccept,
		Type: frame.Type,
		Time: protocol.FormatResponseTime(now),
	}

	switch {
	case frame.Type == protocol.MessageTypeUnknown:
		resp.Code = protocol.ResponseReject

	case frame.Type.IsContentQuery():
		resp.Fields = s.contentFields(ctx, now)
	}

	if err := s.write(s.server.codec.Encode(resp)); err != nil {
		log.Debug().Err(err).Str("imei", s.imei).Msg("写入响应失败，关闭会话")
		return false
	}
	return true
}

// contentFields 查询当前生效的排期规则
func (s *session) contentFields(ctx context.Context, now time.Time) []string {
	if s.server.evaluator == nil || s.device == nil {
		return []string{protocol.ContentIdle}
	}

	rule := s.server.evaluator.ActiveRule(ctx, s.device.ID, now)
	if rule == nil {
		return []string{protocol.ContentIdle}
	}
	return []string{string(rule.Content.Kind), rule.Content.ID.String()}
}

func rejectionEventType(reason verifier.Reason) models.EventType {
	switch reason {
	case verifier.ReasonBlacklisted:
		return models.EventTypeBlacklisted
	case verifier.ReasonRateLimited:
		return models.EventTypeRateLimited
	default:
		return models.EventTypeRejected
	}
}

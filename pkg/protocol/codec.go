package protocol

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ContentIdle is sent in place of a content reference when no schedule
// rule is active for the device.
const ContentIdle = "IDLE"

// Markers holds the three framing characters
type Markers struct {
	Start     byte
	Delimiter byte
	End       byte
}

// DefaultMarkers returns the default framing characters ^ + ~
func DefaultMarkers() Markers {
	return Markers{Start: '^', Delimiter: '+', End: '~'}
}

// Codec encodes and decodes wire frames. It is stateless and safe for
// concurrent use.
type Codec struct {
	markers Markers
}

// NewCodec creates a codec for the given framing characters
func NewCodec(m Markers) (*Codec, error) {
	if m.Start == 0 || m.Delimiter == 0 || m.End == 0 {
		return nil, fmt.Errorf("framing characters must be non-zero")
	}
	if m.Start == m.Delimiter || m.Start == m.End || m.Delimiter == m.End {
		return nil, fmt.Errorf("framing characters must be distinct")
	}
	return &Codec{markers: m}, nil
}

// Markers returns the configured framing characters
func (c *Codec) Markers() Markers {
	return c.markers
}

// Decode parses one inbound frame. It never panics on malformed input:
// missing markers, empty body, wrong field count or a non-numeric type
// code all yield MessageTypeUnknown together with a descriptive error.
// The caller decides whether to reject or ignore.
func (c *Codec) Decode(data []byte) (Frame, error) {
	frame := Frame{Type: MessageTypeUnknown}

	start := bytes.IndexByte(data, c.markers.Start)
	if start < 0 {
		return frame, fmt.Errorf("missing start marker %q", c.markers.Start)
	}
	end := bytes.IndexByte(data[start+1:], c.markers.End)
	if end < 0 {
		return frame, fmt.Errorf("missing end marker %q", c.markers.End)
	}

	body := string(data[start+1 : start+1+end])
	if body == "" {
		return frame, fmt.Errorf("empty frame body")
	}

	tokens := strings.Split(body, string(c.markers.Delimiter))
	code, err := strconv.Atoi(tokens[0])
	if err != nil {
		return frame, fmt.Errorf("non-numeric message type code %q", tokens[0])
	}

	frame.Type = ParseMessageType(code)
	frame.Fields = tokens[1:]

	if frame.Type == MessageTypeHandshake {
		if len(frame.Fields) < 2 {
			frame.Type = MessageTypeUnknown
			return frame, fmt.Errorf("handshake frame needs IMEI and communication code, got %d fields", len(frame.Fields))
		}
		frame.IMEI = frame.Fields[0]
		if frame.IMEI == "" {
			frame.Type = MessageTypeUnknown
			return frame, fmt.Errorf("handshake frame with empty IMEI")
		}
		commCode, err := strconv.Atoi(frame.Fields[1])
		if err != nil {
			frame.Communication = CommunicationUnknown
		} else {
			frame.Communication = ParseCommunicationType(commCode)
		}
	}

	return frame, nil
}

// Encode renders an outbound frame:
// start + responseCode + delim + messageType + delim + time [+ delim + field]... + end
func (c *Codec) Encode(resp ResponseFrame) []byte {
	var b bytes.Buffer
	b.WriteByte(c.markers.Start)
	b.WriteString(strconv.Itoa(int(resp.Code)))
	b.WriteByte(c.markers.Delimiter)
	b.WriteString(strconv.Itoa(int(resp.Type)))
	b.WriteByte(c.markers.Delimiter)
	b.WriteString(resp.Time)
	for _, f := range resp.Fields {
		b.WriteByte(c.markers.Delimiter)
		b.WriteString(f)
	}
	b.WriteByte(c.markers.End)
	return b.Bytes()
}

// DecodeResponse parses an outbound frame back into a ResponseFrame. It is
// the inverse of Encode for every value Encode can produce.
func (c *Codec) DecodeResponse(data []byte) (ResponseFrame, error) {
	resp := ResponseFrame{}

	start := bytes.IndexByte(data, c.markers.Start)
	if start < 0 {
		return resp, fmt.Errorf("missing start marker %q", c.markers.Start)
	}
	end := bytes.IndexByte(data[start+1:], c.markers.End)
	if end < 0 {
		return resp, fmt.Errorf("missing end marker %q", c.markers.End)
	}

	// 响应帧的时间字段包含分隔符以外的 "," 所以按分隔符切分是安全的
	tokens := strings.Split(string(data[start+1:start+1+end]), string(c.markers.Delimiter))
	if len(tokens) < 3 {
		return resp, fmt.Errorf("response frame needs code, type and time, got %d fields", len(tokens))
	}

	code, err := strconv.Atoi(tokens[0])
	if err != nil {
		return resp, fmt.Errorf("non-numeric response code %q", tokens[0])
	}
	msgType, err := strconv.Atoi(tokens[1])
	if err != nil {
		return resp, fmt.Errorf("non-numeric message type code %q", tokens[1])
	}

	resp.Code = ParseResponseCode(code)
	resp.Type = ParseMessageType(msgType)
	resp.Time = tokens[2]
	if len(tokens) > 3 {
		resp.Fields = tokens[3:]
	}
	return resp, nil
}

// EncodeFrame renders an inbound-style frame. Used by tests and simulators
// that speak the device side of the protocol.
func (c *Codec) EncodeFrame(frame Frame) []byte {
	var b bytes.Buffer
	b.WriteByte(c.markers.Start)
	b.WriteString(strconv.Itoa(int(frame.Type)))
	for _, f := range frame.Fields {
		b.WriteByte(c.markers.Delimiter)
		b.WriteString(f)
	}
	b.WriteByte(c.markers.End)
	return b.Bytes()
}

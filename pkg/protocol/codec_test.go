package protocol_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

func newCodec(t *testing.T) *protocol.Codec {
	t.Helper()
	codec, err := protocol.NewCodec(protocol.DefaultMarkers())
	require.NoError(t, err)
	return codec
}

func TestNewCodec_RejectsBadMarkers(t *testing.T) {
	_, err := protocol.NewCodec(protocol.Markers{Start: '^', Delimiter: '^', End: '~'})
	require.Error(t, err)

	_, err = protocol.NewCodec(protocol.Markers{Start: '^', Delimiter: 0, End: '~'})
	require.Error(t, err)
}

func TestCodec_DecodeHandshake(t *testing.T) {
	codec := newCodec(t)

	frame, err := codec.Decode([]byte("^1+358276051111111+1~"))
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypeHandshake, frame.Type)
	require.Equal(t, "358276051111111", frame.IMEI)
	require.Equal(t, protocol.CommunicationEthernet, frame.Communication)
}

func TestCodec_DecodeContentQuery(t *testing.T) {
	codec := newCodec(t)

	frame, err := codec.Decode([]byte("^7+12~"))
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypeBus, frame.Type)
	require.True(t, frame.Type.IsContentQuery())
	require.Equal(t, []string{"12"}, frame.Fields)
}

func TestCodec_DecodeMalformed(t *testing.T) {
	codec := newCodec(t)

	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no start marker", "1+123~"},
		{"no end marker", "^1+123"},
		{"empty body", "^~"},
		{"non-numeric type", "^abc+123~"},
		{"handshake without fields", "^1~"},
		{"handshake with empty imei", "^1++1~"},
		{"only garbage", "xxxxxx"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := codec.Decode([]byte(tc.input))
			require.Error(t, err)
			require.Equal(t, protocol.MessageTypeUnknown, frame.Type)
		})
	}
}

func TestCodec_DecodeUnknownTypeCode(t *testing.T) {
	codec := newCodec(t)

	frame, err := codec.Decode([]byte("^99+whatever~"))
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypeUnknown, frame.Type)
}

func TestCodec_EncodeResponse(t *testing.T) {
	codec := newCodec(t)

	resp := protocol.ResponseFrame{
		Code:   protocol.ResponseAccept,
		Type:   protocol.MessageTypeHandshake,
		Time:   "05/03/26,14:07:09",
		Fields: []string{"FULL_SCREEN", "42"},
	}

	data := codec.Encode(resp)
	require.Equal(t, "^1+1+05/03/26,14:07:09+FULL_SCREEN+42~", string(data))

	decoded, err := codec.DecodeResponse(data)
	require.NoError(t, err)
	require.Equal(t, resp, decoded)
}

func allMessageTypes() []protocol.MessageType {
	return []protocol.MessageType{
		protocol.MessageTypeUnknown,
		protocol.MessageTypeHandshake,
		protocol.MessageTypeOpeningScreen,
		protocol.MessageTypeSettings,
		protocol.MessageTypeLogo,
		protocol.MessageTypeClearScreen,
		protocol.MessageTypeInformation,
		protocol.MessageTypeBus,
		protocol.MessageTypeTram,
		protocol.MessageTypeLive,
		protocol.MessageTypeFerry,
	}
}

func TestCodec_ResponseRoundTrip(t *testing.T) {
	codec := newCodec(t)
	now := protocol.FormatResponseTime(time.Now())

	for _, code := range []protocol.ResponseCode{protocol.ResponseAccept, protocol.ResponseReject} {
		for _, mt := range allMessageTypes() {
			t.Run(code.String()+"/"+mt.String(), func(t *testing.T) {
				resp := protocol.ResponseFrame{Code: code, Type: mt, Time: now}
				decoded, err := codec.DecodeResponse(codec.Encode(resp))
				require.NoError(t, err)
				require.Equal(t, resp, decoded)

				resp.Fields = []string{"FULL_SCREEN", "42"}
				decoded, err = codec.DecodeResponse(codec.Encode(resp))
				require.NoError(t, err)
				require.Equal(t, resp, decoded)
			})
		}
	}
}

func TestCodec_FrameRoundTrip(t *testing.T) {
	codec := newCodec(t)

	for _, mt := range allMessageTypes() {
		t.Run(mt.String(), func(t *testing.T) {
			frame := protocol.Frame{Type: mt, Fields: []string{"12", "34"}}
			if mt == protocol.MessageTypeHandshake {
				frame.Fields = []string{"358276051111111", "1"}
			}

			decoded, err := codec.Decode(codec.EncodeFrame(frame))
			require.NoError(t, err)
			require.Equal(t, mt, decoded.Type)
			require.Equal(t, frame.Fields, decoded.Fields)

			if mt == protocol.MessageTypeHandshake {
				require.Equal(t, "358276051111111", decoded.IMEI)
				require.Equal(t, protocol.CommunicationEthernet, decoded.Communication)
			}
		})
	}
}

func TestFormatResponseTime(t *testing.T) {
	ts := time.Date(2026, time.March, 5, 14, 7, 9, 0, time.UTC)
	require.Equal(t, "05/03/26,14:07:09", protocol.FormatResponseTime(ts))
}

func TestCodec_CustomMarkers(t *testing.T) {
	codec, err := protocol.NewCodec(protocol.Markers{Start: '<', Delimiter: '|', End: '>'})
	require.NoError(t, err)

	frame, err := codec.Decode([]byte("<1|358276051111111|2>"))
	require.NoError(t, err)
	require.Equal(t, protocol.MessageTypeHandshake, frame.Type)
	require.Equal(t, protocol.CommunicationGsmGprs, frame.Communication)
}

func TestFrameScanner_SplitsAcrossReads(t *testing.T) {
	s := protocol.NewFrameScanner(protocol.DefaultMarkers(), 0)

	s.Append([]byte("^1+3582760"))
	_, ok := s.Next()
	require.False(t, ok)

	s.Append([]byte("51111111+1~^6"))
	span, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, "^1+358276051111111+1~", string(span))

	_, ok = s.Next()
	require.False(t, ok)

	s.Append([]byte("~"))
	span, ok = s.Next()
	require.True(t, ok)
	require.Equal(t, "^6~", string(span))
}

func TestFrameScanner_MultipleFramesPerRead(t *testing.T) {
	s := protocol.NewFrameScanner(protocol.DefaultMarkers(), 0)
	s.Append([]byte("^6~^7~^8~"))

	var frames []string
	for {
		span, ok := s.Next()
		if !ok {
			break
		}
		frames = append(frames, string(span))
	}
	require.Equal(t, []string{"^6~", "^7~", "^8~"}, frames)
}

func TestFrameScanner_DiscardsLeadingGarbage(t *testing.T) {
	s := protocol.NewFrameScanner(protocol.DefaultMarkers(), 0)
	s.Append([]byte("garbage^6~"))

	span, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, "^6~", string(span))
	require.Zero(t, s.Pending())
}

func TestFrameScanner_DropsOversizedUnterminatedFrame(t *testing.T) {
	s := protocol.NewFrameScanner(protocol.DefaultMarkers(), 16)

	s.Append([]byte("^111111111111111111111111"))
	_, ok := s.Next()
	require.False(t, ok)

	// 后续完整帧仍然能被解析出来
	s.Append([]byte("^6~"))
	span, ok := s.Next()
	require.True(t, ok)
	require.Equal(t, "^6~", string(span))
}

package protocol

import "time"

// MessageType represents the frame type code carried in field 0
type MessageType byte

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeHandshake
	MessageTypeOpeningScreen
	MessageTypeSettings
	MessageTypeLogo
	MessageTypeClearScreen
	MessageTypeInformation
	MessageTypeBus
	MessageTypeTram
	MessageTypeLive
	MessageTypeFerry
)

// ParseMessageType maps a numeric wire code to a MessageType.
// Out-of-range codes map to MessageTypeUnknown.
func ParseMessageType(code int) MessageType {
	switch code {
	case 1:
		return MessageTypeHandshake
	case 2:
		return MessageTypeOpeningScreen
	case 3:
		return MessageTypeSettings
	case 4:
		return MessageTypeLogo
	case 5:
		return MessageTypeClearScreen
	case 6:
		return MessageTypeInformation
	case 7:
		return MessageTypeBus
	case 8:
		return MessageTypeTram
	case 9:
		return MessageTypeLive
	case 10:
		return MessageTypeFerry
	default:
		return MessageTypeUnknown
	}
}

// String returns a readable name
func (t MessageType) String() string {
	switch t {
	case MessageTypeHandshake:
		return "HANDSHAKE"
	case MessageTypeOpeningScreen:
		return "OPENING_SCREEN"
	case MessageTypeSettings:
		return "SETTINGS"
	case MessageTypeLogo:
		return "LOGO"
	case MessageTypeClearScreen:
		return "CLEAR_SCREEN"
	case MessageTypeInformation:
		return "INFORMATION"
	case MessageTypeBus:
		return "BUS"
	case MessageTypeTram:
		return "TRAM"
	case MessageTypeLive:
		return "LIVE"
	case MessageTypeFerry:
		return "FERRY"
	default:
		return "UNKNOWN"
	}
}

// IsContentQuery reports whether frames of this type request display content
func (t MessageType) IsContentQuery() bool {
	switch t {
	case MessageTypeInformation, MessageTypeBus, MessageTypeTram, MessageTypeLive, MessageTypeFerry:
		return true
	default:
		return false
	}
}

// CommunicationType represents the transport the device reports in its handshake
type CommunicationType byte

const (
	CommunicationUnknown CommunicationType = iota
	CommunicationEthernet
	CommunicationGsmGprs
)

// ParseCommunicationType maps a numeric wire code to a CommunicationType
func ParseCommunicationType(code int) CommunicationType {
	switch code {
	case 1:
		return CommunicationEthernet
	case 2:
		return CommunicationGsmGprs
	default:
		return CommunicationUnknown
	}
}

// String returns a readable name
func (c CommunicationType) String() string {
	switch c {
	case CommunicationEthernet:
		return "ETHERNET"
	case CommunicationGsmGprs:
		return "GSM_GPRS"
	default:
		return "UNKNOWN"
	}
}

// ResponseCode represents the outcome code of an outbound frame
type ResponseCode byte

const (
	ResponseUnknown ResponseCode = iota
	ResponseAccept
	ResponseReject
)

// String returns a readable name
func (r ResponseCode) String() string {
	switch r {
	case ResponseAccept:
		return "ACCEPT"
	case ResponseReject:
		return "REJECT"
	default:
		return "UNKNOWN"
	}
}

// ParseResponseCode maps a numeric wire code to a ResponseCode
func ParseResponseCode(code int) ResponseCode {
	switch code {
	case 1:
		return ResponseAccept
	case 2:
		return ResponseReject
	default:
		return ResponseUnknown
	}
}

// ResponseTimeLayout is the timestamp format used in outbound frames (dd/MM/yy,HH:mm:ss)
const ResponseTimeLayout = "02/01/06,15:04:05"

// FormatResponseTime renders a timestamp in the wire format
func FormatResponseTime(t time.Time) string {
	return t.Format(ResponseTimeLayout)
}

// Frame is a decoded inbound device message
type Frame struct {
	Type          MessageType
	IMEI          string
	Communication CommunicationType
	// Fields holds the positional payload tokens after the type code
	Fields []string
}

// ResponseFrame is an outbound server message
type ResponseFrame struct {
	Code ResponseCode
	Type MessageType
	// Time is the already formatted response timestamp, see ResponseTimeLayout
	Time   string
	Fields []string
}

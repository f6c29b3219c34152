package protocol

import erro "github.com/relaymesh/socketio/internal/errors"

const (
	ErrEmptyPacket            erro.String  = "empty packet"
	ErrUnknownPacketType      erro.StringF = "unknown packet type: %q"
	ErrInvalidAttachmentCount erro.StringF = "invalid attachment count:: %w"
	ErrInvalidAckID           erro.StringF = "invalid ack id:: %w"
	ErrInvalidPayload         erro.StringF = "invalid %s payload:: %w"
	ErrInvalidEvent           erro.String  = "event payload must start with a string event name"
	ErrMissingDash            erro.String  = "missing '-' after attachment count"
	ErrInvalidPlaceholder     erro.StringF = "placeholder %d has no attachment (have %d)"
	ErrUnexpectedAttachment   erro.String  = "binary attachment without a pending packet"
	ErrMissingAttachments     erro.StringF = "packet dropped with %d of %d attachments"
	ErrUnexpectedFrame        erro.String  = "unexpected text frame for a binary parser"
	ErrEncodePayload          erro.StringF = "encode payload:: %w"
	ErrDecodeMsgpack          erro.StringF = "decode msgpack packet:: %w"
)

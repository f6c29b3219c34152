package protocol

import "strings"

const (
	ConnectPacket PacketType = iota
	DisconnectPacket
	EventPacket
	AckPacket
	ErrorPacket
	BinaryEventPacket
	BinaryAckPacket
)

// ConnectErrorPacket is the EIO4 name of ErrorPacket.
const ConnectErrorPacket = ErrorPacket

// RootNamespace is the API name of the default namespace. On the wire the
// root namespace is written as nothing.
const RootNamespace = "/"

type PacketType byte

func (pt PacketType) Valid() bool { return pt <= BinaryAckPacket }

// IsBinary reports whether packets of this type declare attachments.
func (pt PacketType) IsBinary() bool { return pt == BinaryEventPacket || pt == BinaryAckPacket }

func (pt PacketType) String() string {
	switch pt {
	case ConnectPacket:
		return "connect"
	case DisconnectPacket:
		return "disconnect"
	case EventPacket:
		return "event"
	case AckPacket:
		return "ack"
	case ErrorPacket:
		return "error"
	case BinaryEventPacket:
		return "binary_event"
	case BinaryAckPacket:
		return "binary_ack"
	}
	return "unknown"
}

// Packet is a socket.io packet.
//
// Data holds the payload values. For EVENT the event name is kept apart in
// Event. CONNECT and ERROR carry at most one value (an auth or error object)
// in Data[0]. Binary values ([]byte) may sit anywhere inside Data.
type Packet struct {
	Type      PacketType
	Namespace string
	AckID     *uint64
	Event     string
	Data      []interface{}

	// AttachmentCount is the number of binary frames declared by the header.
	// Attachments holds those loaded so far.
	AttachmentCount int
	Attachments     [][]byte
}

func (pac *Packet) WithType(t PacketType) *Packet    { pac.Type = t; return pac }
func (pac *Packet) WithNamespace(ns string) *Packet  { pac.Namespace = NormalizeNamespace(ns); return pac }
func (pac *Packet) WithAckID(id uint64) *Packet      { pac.AckID = &id; return pac }
func (pac *Packet) WithEvent(event string) *Packet   { pac.Event = event; return pac }
func (pac *Packet) WithData(v ...interface{}) *Packet { pac.Data = v; return pac }

// Nsp returns the namespace in its API form ("/" for root).
func (pac *Packet) Nsp() string {
	if pac.Namespace == "" {
		return RootNamespace
	}
	return pac.Namespace
}

func (pac *Packet) HasAck() bool { return pac.AckID != nil }

// IsLoaded reports whether every declared attachment has arrived.
func (pac *Packet) IsLoaded() bool { return len(pac.Attachments) >= pac.AttachmentCount }

// AddAttachment appends the next binary frame. Once the last one arrives the
// placeholders in Data are replaced by the buffers.
func (pac *Packet) AddAttachment(b []byte) error {
	if pac.IsLoaded() {
		return ErrUnexpectedAttachment
	}
	pac.Attachments = append(pac.Attachments, b)
	if pac.IsLoaded() {
		return pac.reconstruct()
	}
	return nil
}

func (pac *Packet) reconstruct() error {
	for i, v := range pac.Data {
		nv, err := fillPlaceholders(v, pac.Attachments)
		if err != nil {
			return err
		}
		pac.Data[i] = nv
	}
	return nil
}

// NormalizeNamespace maps the API form of a namespace to its wire form: the
// root namespace is "", others keep a leading slash.
func NormalizeNamespace(ns string) string {
	if i := strings.IndexByte(ns, '?'); i >= 0 {
		ns = ns[:i]
	}
	if ns == "" || ns == RootNamespace {
		return ""
	}
	if ns[0] != '/' {
		return "/" + ns
	}
	return ns
}

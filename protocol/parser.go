package protocol

// Frame is one Engine.IO MESSAGE worth of data.
type Frame struct {
	Data   []byte
	Binary bool
}

// Parser turns packets into frames and back. A Parser is shared by every
// session; the per-session reassembly state lives in the Decoder it hands out.
type Parser interface {
	Encode(*Packet) ([]Frame, error)
	NewDecoder() Decoder
}

// Decoder reassembles packets from the frames of one session. Add returns nil
// without an error while a packet waits for its attachments. A packet returned
// together with an error is still valid: the error reports an earlier packet
// that was abandoned before all of its attachments arrived.
type Decoder interface {
	Add(Frame) (*Packet, error)
	Pending() bool
}

// JSONParser is the default text parser with binary placeholders.
type JSONParser struct{}

func (JSONParser) Encode(pac *Packet) ([]Frame, error) {
	text, attachments, err := Encode(pac)
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, 1+len(attachments))
	frames = append(frames, Frame{Data: text})
	for _, a := range attachments {
		frames = append(frames, Frame{Data: a, Binary: true})
	}
	return frames, nil
}

func (JSONParser) NewDecoder() Decoder { return &jsonDecoder{} }

type jsonDecoder struct {
	pending *Packet
}

func (d *jsonDecoder) Pending() bool { return d.pending != nil }

func (d *jsonDecoder) Add(f Frame) (*Packet, error) {
	if f.Binary {
		if d.pending == nil {
			return nil, ErrUnexpectedAttachment
		}
		if err := d.pending.AddAttachment(f.Data); err != nil {
			d.pending = nil
			return nil, err
		}
		if !d.pending.IsLoaded() {
			return nil, nil
		}
		pac := d.pending
		d.pending = nil
		return pac, nil
	}

	var lost error
	if d.pending != nil {
		lost = ErrMissingAttachments.F(len(d.pending.Attachments), d.pending.AttachmentCount)
		d.pending = nil
	}

	pac, err := Decode(f.Data)
	if err != nil {
		return nil, err
	}
	if !pac.IsLoaded() {
		d.pending = pac
		return nil, lost
	}
	return pac, lost
}

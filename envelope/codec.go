package envelope

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Payload field tags. 0x00 terminates the tagged section. Unknown tags are
// skipped by their length prefix so old readers tolerate new fields appended
// by a newer peer (forward compatibility); a reader encountering a tag it
// once knew how to decode never needs to understand every tag ever emitted.
const (
	tagEnd uint8 = iota
	tagUint32Array
	tagBoolArray
	tagStringArray
	tagVariable
	tagVariableArray
	tagError
	tagComponentInfoArray
	tagInputContextInfoArray
	tagKeyEventArray
	tagComposition
	tagCandidateList
	tagCommandList
	tagHotkeyList
	tagInputCaret
)

// DefaultMaxEnvelopeBytes is the wire-frame ceiling used when a caller does
// not supply one from config.Config.
const DefaultMaxEnvelopeBytes = 16 * 1024 * 1024

// Encode serializes m into its wire representation, without the outer
// length prefix (WriteFrame adds that).
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	w := &writer{buf: &buf}

	w.uint32(uint32(m.Type))
	w.uint8(uint8(m.ReplyMode))
	w.uint32(uint32(m.Source))
	w.uint32(uint32(m.Target))
	w.uint32(uint32(m.Icid))
	w.uint32(uint32(m.Serial))

	if err := w.payload(m.Payload); err != nil {
		return nil, err
	}
	w.uint8(tagEnd)

	return buf.Bytes(), w.err
}

// Decode parses the wire representation written by Encode.
func Decode(data []byte) (Message, error) {
	r := &reader{buf: bytes.NewReader(data)}

	var m Message
	m.Type = MessageType(r.uint32())
	m.ReplyMode = ReplyMode(r.uint8())
	m.Source = ComponentId(r.uint32())
	m.Target = ComponentId(r.uint32())
	m.Icid = InputContextId(r.uint32())
	m.Serial = Serial(r.uint32())

	if r.err != nil {
		return Message{}, NewInvalidMessageError("truncated envelope header", r.err)
	}

	payload, err := r.payload()
	if err != nil {
		return Message{}, err
	}
	m.Payload = payload

	return m, nil
}

// WriteFrame writes a 4-byte little-endian length prefix followed by m's
// encoded bytes, the framing PipeChannel uses on its duplex byte stream.
func WriteFrame(w io.Writer, m Message, maxBytes int) error {
	body, err := Encode(m)
	if err != nil {
		return err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxEnvelopeBytes
	}
	if len(body) > maxBytes {
		return NewEnvelopeTooLargeError(len(body), maxBytes)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one length-prefixed frame and decodes it. It returns
// io.EOF only when the stream is closed cleanly between frames.
func ReadFrame(r io.Reader, maxBytes int) (Message, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxEnvelopeBytes
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	size := int(binary.LittleEndian.Uint32(lenBuf[:]))
	if size > maxBytes {
		return Message{}, NewEnvelopeTooLargeError(size, maxBytes)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, NewInvalidMessageError("truncated envelope body", err)
	}

	return Decode(body)
}

// writer accumulates encode errors so call sites can chain writes without
// checking every intermediate error.
type writer struct {
	buf *bytes.Buffer
	err error
}

func (w *writer) uint8(v uint8)   { w.buf.WriteByte(v) }
func (w *writer) uint32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); w.buf.Write(b[:]) }
func (w *writer) boolean(v bool) {
	if v {
		w.uint8(1)
	} else {
		w.uint8(0)
	}
}
func (w *writer) int32(v int32) { w.uint32(uint32(v)) }
func (w *writer) str(s string) {
	w.uint32(uint32(len(s)))
	w.buf.WriteString(s)
}

// field opens a length-prefixed tagged section, lets fn write the value,
// and backpatches the length once fn returns.
func (w *writer) field(tag uint8, fn func()) {
	if w.err != nil {
		return
	}
	w.uint8(tag)
	lenPos := w.buf.Len()
	w.uint32(0)
	start := w.buf.Len()
	fn()
	end := w.buf.Len()
	out := w.buf.Bytes()
	binary.LittleEndian.PutUint32(out[lenPos:lenPos+4], uint32(end-start))
}

func (w *writer) messageType(t MessageType) { w.uint32(uint32(t)) }

func (w *writer) keyEvent(k KeyEvent) {
	w.uint32(k.KeyCode)
	w.uint32(k.Modifiers)
	w.boolean(k.IsKeyUp)
	w.boolean(k.Consumed)
}

func (w *writer) componentInfo(c ComponentInfo) {
	w.uint32(uint32(c.Id))
	w.str(c.StringId)
	w.str(c.Name)
	w.str(c.Language)
	w.str(c.Icon)
	w.uint32(uint32(len(c.Produce)))
	for _, t := range c.Produce {
		w.messageType(t)
	}
	w.uint32(uint32(len(c.Consume)))
	for _, t := range c.Consume {
		w.messageType(t)
	}
}

func (w *writer) inputContextInfo(ic InputContextInfo) {
	w.uint32(uint32(ic.Id))
	w.uint32(uint32(ic.Owner))
	w.boolean(ic.Focused)
	w.uint32(uint32(len(ic.Attached)))
	for _, c := range ic.Attached {
		w.uint32(uint32(c))
	}
	w.uint32(uint32(ic.ActiveConsumer))
}

func (w *writer) variable(v Variable) {
	w.uint8(uint8(v.Kind))
	switch v.Kind {
	case VarBool:
		w.boolean(v.Bool)
	case VarInt:
		w.uint32(uint32(v.Int))
	case VarString:
		w.str(v.Str)
	}
}

func (w *writer) payload(p Payload) error {
	if p.Uint32Array != nil {
		w.field(tagUint32Array, func() {
			w.uint32(uint32(len(p.Uint32Array)))
			for _, v := range p.Uint32Array {
				w.uint32(v)
			}
		})
	}
	if p.BoolArray != nil {
		w.field(tagBoolArray, func() {
			w.uint32(uint32(len(p.BoolArray)))
			for _, v := range p.BoolArray {
				w.boolean(v)
			}
		})
	}
	if p.StringArray != nil {
		w.field(tagStringArray, func() {
			w.uint32(uint32(len(p.StringArray)))
			for _, v := range p.StringArray {
				w.str(v)
			}
		})
	}
	if p.Variable != nil {
		w.field(tagVariable, func() { w.variable(*p.Variable) })
	}
	if p.VariableArray != nil {
		w.field(tagVariableArray, func() {
			w.uint32(uint32(len(p.VariableArray)))
			for _, v := range p.VariableArray {
				w.variable(v)
			}
		})
	}
	if p.Error != nil {
		w.field(tagError, func() {
			w.uint8(uint8(p.Error.Code))
			w.str(p.Error.Message)
		})
	}
	if p.ComponentInfoArray != nil {
		w.field(tagComponentInfoArray, func() {
			w.uint32(uint32(len(p.ComponentInfoArray)))
			for _, c := range p.ComponentInfoArray {
				w.componentInfo(c)
			}
		})
	}
	if p.InputContextInfoArray != nil {
		w.field(tagInputContextInfoArray, func() {
			w.uint32(uint32(len(p.InputContextInfoArray)))
			for _, ic := range p.InputContextInfoArray {
				w.inputContextInfo(ic)
			}
		})
	}
	if p.KeyEventArray != nil {
		w.field(tagKeyEventArray, func() {
			w.uint32(uint32(len(p.KeyEventArray)))
			for _, k := range p.KeyEventArray {
				w.keyEvent(k)
			}
		})
	}
	if p.Composition != nil {
		w.field(tagComposition, func() {
			c := p.Composition
			w.str(c.Text)
			w.int32(int32(c.CursorAt))
			w.uint32(uint32(len(c.Segments)))
			for _, s := range c.Segments {
				w.int32(int32(s.Start))
				w.int32(int32(s.End))
				w.boolean(s.Highlight)
			}
		})
	}
	if p.CandidateList != nil {
		w.field(tagCandidateList, func() {
			c := p.CandidateList
			w.uint32(uint32(len(c.Candidates)))
			for _, s := range c.Candidates {
				w.str(s)
			}
			w.int32(int32(c.PageStart))
			w.int32(int32(c.PageSize))
			w.int32(int32(c.Selected))
			w.boolean(c.Visible)
		})
	}
	if p.CommandList != nil {
		w.field(tagCommandList, func() {
			c := p.CommandList
			w.uint32(uint32(c.Owner))
			w.uint32(uint32(len(c.Commands)))
			for _, cmd := range c.Commands {
				w.uint32(cmd.Id)
				w.str(cmd.Title)
				w.boolean(cmd.Enabled)
			}
		})
	}
	if p.HotkeyList != nil {
		w.field(tagHotkeyList, func() {
			h := p.HotkeyList
			w.uint32(h.Id)
			w.uint32(uint32(h.Owner))
			w.uint32(uint32(len(h.Bindings)))
			for _, b := range h.Bindings {
				w.uint32(b.KeyCode)
				w.uint32(b.Modifiers)
				w.uint32(b.CommandId)
			}
		})
	}
	if p.InputCaret != nil {
		w.field(tagInputCaret, func() {
			c := p.InputCaret
			w.int32(c.Position.X)
			w.int32(c.Position.Y)
			w.int32(c.Position.Width)
			w.int32(c.Position.Height)
			w.boolean(c.Visible)
		})
	}
	return w.err
}

// reader mirrors writer: it tracks the first error encountered so callers
// can chain reads and check err once at the end.
type reader struct {
	buf *bytes.Reader
	err error
}

func (r *reader) uint8() uint8 {
	if r.err != nil {
		return 0
	}
	b, err := r.buf.ReadByte()
	if err != nil {
		r.err = err
		return 0
	}
	return b
}

func (r *reader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	var b [4]byte
	if _, err := io.ReadFull(r.buf, b[:]); err != nil {
		r.err = err
		return 0
	}
	return binary.LittleEndian.Uint32(b[:])
}

func (r *reader) int32() int32   { return int32(r.uint32()) }
func (r *reader) boolean() bool  { return r.uint8() != 0 }

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	n := r.uint32()
	if r.err != nil {
		return ""
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.buf, b); err != nil {
		r.err = err
		return ""
	}
	return string(b)
}

func (r *reader) skip(n uint32) {
	if r.err != nil {
		return
	}
	if _, err := r.buf.Seek(int64(n), io.SeekCurrent); err != nil {
		r.err = err
	}
}

func (r *reader) messageType() MessageType { return MessageType(r.uint32()) }

func (r *reader) keyEvent() KeyEvent {
	k := KeyEvent{}
	k.KeyCode = r.uint32()
	k.Modifiers = r.uint32()
	k.IsKeyUp = r.boolean()
	k.Consumed = r.boolean()
	return k
}

func (r *reader) componentInfo() ComponentInfo {
	var c ComponentInfo
	c.Id = ComponentId(r.uint32())
	c.StringId = r.str()
	c.Name = r.str()
	c.Language = r.str()
	c.Icon = r.str()
	n := r.uint32()
	c.Produce = make([]MessageType, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		c.Produce = append(c.Produce, r.messageType())
	}
	n = r.uint32()
	c.Consume = make([]MessageType, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		c.Consume = append(c.Consume, r.messageType())
	}
	return c
}

func (r *reader) inputContextInfo() InputContextInfo {
	var ic InputContextInfo
	ic.Id = InputContextId(r.uint32())
	ic.Owner = ComponentId(r.uint32())
	ic.Focused = r.boolean()
	n := r.uint32()
	ic.Attached = make([]ComponentId, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		ic.Attached = append(ic.Attached, ComponentId(r.uint32()))
	}
	ic.ActiveConsumer = ComponentId(r.uint32())
	return ic
}

func (r *reader) variable() Variable {
	var v Variable
	v.Kind = VariableKind(r.uint8())
	switch v.Kind {
	case VarBool:
		v.Bool = r.boolean()
	case VarInt:
		v.Int = int64(int32(r.uint32()))
	case VarString:
		v.Str = r.str()
	}
	return v
}

// payload reads tagged fields until tagEnd. An unrecognized tag is skipped
// by its length prefix so newer writers can add fields without breaking
// older readers.
func (r *reader) payload() (Payload, error) {
	var p Payload
	for {
		if r.err != nil {
			return Payload{}, NewInvalidMessageError("truncated payload", r.err)
		}
		tag := r.uint8()
		if r.err != nil {
			return Payload{}, NewInvalidMessageError("truncated payload", r.err)
		}
		if tag == tagEnd {
			return p, nil
		}
		length := r.uint32()
		if r.err != nil {
			return Payload{}, NewInvalidMessageError("truncated field length", r.err)
		}

		fieldStart := r.buf.Len()

		switch tag {
		case tagUint32Array:
			n := r.uint32()
			p.Uint32Array = make([]uint32, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				p.Uint32Array = append(p.Uint32Array, r.uint32())
			}
		case tagBoolArray:
			n := r.uint32()
			p.BoolArray = make([]bool, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				p.BoolArray = append(p.BoolArray, r.boolean())
			}
		case tagStringArray:
			n := r.uint32()
			p.StringArray = make([]string, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				p.StringArray = append(p.StringArray, r.str())
			}
		case tagVariable:
			v := r.variable()
			p.Variable = &v
		case tagVariableArray:
			n := r.uint32()
			p.VariableArray = make([]Variable, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				p.VariableArray = append(p.VariableArray, r.variable())
			}
		case tagError:
			code := ErrorCode(r.uint8())
			msg := r.str()
			p.Error = &ErrorInfo{Code: code, Message: msg}
		case tagComponentInfoArray:
			n := r.uint32()
			p.ComponentInfoArray = make([]ComponentInfo, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				p.ComponentInfoArray = append(p.ComponentInfoArray, r.componentInfo())
			}
		case tagInputContextInfoArray:
			n := r.uint32()
			p.InputContextInfoArray = make([]InputContextInfo, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				p.InputContextInfoArray = append(p.InputContextInfoArray, r.inputContextInfo())
			}
		case tagKeyEventArray:
			n := r.uint32()
			p.KeyEventArray = make([]KeyEvent, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				p.KeyEventArray = append(p.KeyEventArray, r.keyEvent())
			}
		case tagComposition:
			c := &Composition{}
			c.Text = r.str()
			c.CursorAt = int(r.int32())
			n := r.uint32()
			c.Segments = make([]CompositionSegment, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				c.Segments = append(c.Segments, CompositionSegment{
					Start:     int(r.int32()),
					End:       int(r.int32()),
					Highlight: r.boolean(),
				})
			}
			p.Composition = c
		case tagCandidateList:
			c := &CandidateList{}
			n := r.uint32()
			c.Candidates = make([]string, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				c.Candidates = append(c.Candidates, r.str())
			}
			c.PageStart = int(r.int32())
			c.PageSize = int(r.int32())
			c.Selected = int(r.int32())
			c.Visible = r.boolean()
			p.CandidateList = c
		case tagCommandList:
			c := &CommandList{}
			c.Owner = ComponentId(r.uint32())
			n := r.uint32()
			c.Commands = make([]Command, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				c.Commands = append(c.Commands, Command{
					Id:      r.uint32(),
					Title:   r.str(),
					Enabled: r.boolean(),
				})
			}
			p.CommandList = c
		case tagHotkeyList:
			h := &HotkeyList{}
			h.Id = r.uint32()
			h.Owner = ComponentId(r.uint32())
			n := r.uint32()
			h.Bindings = make([]HotkeyBinding, 0, n)
			for i := uint32(0); i < n && r.err == nil; i++ {
				h.Bindings = append(h.Bindings, HotkeyBinding{
					KeyCode:   r.uint32(),
					Modifiers: r.uint32(),
					CommandId: r.uint32(),
				})
			}
			p.HotkeyList = h
		case tagInputCaret:
			c := &InputCaret{}
			c.Position.X = r.int32()
			c.Position.Y = r.int32()
			c.Position.Width = r.int32()
			c.Position.Height = r.int32()
			c.Visible = r.boolean()
			p.InputCaret = c
		default:
			r.skip(length)
		}

		if r.err != nil {
			return Payload{}, NewInvalidMessageError(fmt.Sprintf("malformed field tag %d", tag), r.err)
		}

		consumed := fieldStart - r.buf.Len()
		if consumed != int(length) {
			return Payload{}, NewInvalidPayloadError(
				fmt.Sprintf("field tag %d declared length %d but consumed %d", tag, length, consumed), nil)
		}
	}
}

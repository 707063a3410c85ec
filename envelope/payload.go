package envelope

// VariableKind tags the concrete type held by a Variable.
type VariableKind uint8

const (
	VarNone VariableKind = iota
	VarBool
	VarInt
	VarString
)

// Variable is a dynamically-typed scalar carried by settings and command
// messages, mirroring the tagged unions components exchange over the bus.
type Variable struct {
	Kind VariableKind
	Bool bool
	Int  int64
	Str  string
}

// ComponentInfo describes a component as registered with Hub.
type ComponentInfo struct {
	Id       ComponentId
	StringId string
	Name     string
	Language string
	Icon     string
	// Produce lists the message types this component can originate.
	Produce []MessageType
	// Consume lists the message types this component wants delivered to it.
	Consume []MessageType
}

// InputContextInfo describes an input context as tracked by Hub.
type InputContextInfo struct {
	Id             InputContextId
	Owner          ComponentId
	Focused        bool
	Attached       []ComponentId
	ActiveConsumer ComponentId
}

// KeyEvent carries a single key press/release, the unit SEND_KEY_EVENT and
// PROCESS_KEY_EVENT exchange.
type KeyEvent struct {
	KeyCode   uint32
	Modifiers uint32
	IsKeyUp   bool
	// Consumed is filled in on the IS_REPLY to PROCESS_KEY_EVENT: true if some
	// component handled the key and the application should not echo it.
	Consumed bool
}

// Key modifier bits for KeyEvent.Modifiers.
const (
	ModShift = 1 << iota
	ModControl
	ModAlt
	ModMeta
)

// Composition is the in-progress text of an input method, keyed by segment
// so a client can render under/over-lines without re-parsing runs itself.
type Composition struct {
	Text     string
	CursorAt int
	Segments []CompositionSegment
}

// CompositionSegment marks a sub-range of Composition.Text with a highlight
// style (e.g. the segment currently being converted).
type CompositionSegment struct {
	Start, End int
	Highlight  bool
}

// CandidateList is a page of conversion candidates offered to the user.
type CandidateList struct {
	Candidates []string
	PageStart  int
	PageSize   int
	Selected   int
	Visible    bool
}

// Command is a single user-invokable action exposed by a component (e.g. a
// toolbar button), addressed by Id in DO_COMMAND.
type Command struct {
	Id      uint32
	Title   string
	Enabled bool
}

// CommandList is the full set of commands a component currently exposes.
type CommandList struct {
	Owner    ComponentId
	Commands []Command
}

// HotkeyBinding pairs a key chord with the command it should trigger.
type HotkeyBinding struct {
	KeyCode   uint32
	Modifiers uint32
	CommandId uint32
}

// HotkeyList is a named, orderable set of key bindings a component registers
// with Hub via ADD_HOTKEY_LIST.
type HotkeyList struct {
	Id       uint32
	Owner    ComponentId
	Bindings []HotkeyBinding
}

// Rect is an on-screen rectangle in the coordinate space the application
// uses for its own window, as published by UPDATE_INPUT_CARET.
type Rect struct {
	X, Y, Width, Height int32
}

// InputCaret is the screen-space position and bounding box of the text
// caret in the currently focused input context.
type InputCaret struct {
	Position Rect
	Visible  bool
}

// ErrorInfo is the payload of a failure reply, see ErrorCode for the
// taxonomy.
type ErrorInfo struct {
	Code    ErrorCode
	Message string
}

// Payload is the tagged union carried by a Message. Exactly the fields
// relevant to a Message's Type are populated; the rest are left at their
// zero value. Arrays are nil, not empty, when absent so the codec can omit
// them on the wire.
type Payload struct {
	Uint32Array  []uint32
	BoolArray    []bool
	StringArray  []string
	Variable     *Variable
	VariableArray []Variable
	Error        *ErrorInfo

	ComponentInfoArray    []ComponentInfo
	InputContextInfoArray []InputContextInfo
	KeyEventArray         []KeyEvent
	Composition           *Composition
	CandidateList         *CandidateList
	CommandList           *CommandList
	HotkeyList            *HotkeyList
	InputCaret            *InputCaret
}

// IsEmpty reports whether no field of the union is populated.
func (p Payload) IsEmpty() bool {
	return p.Uint32Array == nil &&
		p.BoolArray == nil &&
		p.StringArray == nil &&
		p.Variable == nil &&
		p.VariableArray == nil &&
		p.Error == nil &&
		p.ComponentInfoArray == nil &&
		p.InputContextInfoArray == nil &&
		p.KeyEventArray == nil &&
		p.Composition == nil &&
		p.CandidateList == nil &&
		p.CommandList == nil &&
		p.HotkeyList == nil &&
		p.InputCaret == nil
}

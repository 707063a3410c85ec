package envelope

// MessageType is a closed enum of message kinds. Ids are stable and must not
// be renumbered across compatible versions; they are grouped into ranges the
// same way client/ipc/message_types_decl.h groups them, leaving room for
// growth within each section.
type MessageType uint32

const (
	Invalid MessageType = 0x0000

	// Component management (0x0001-0x000F).
	RegisterComponent   MessageType = 0x0001
	ComponentCreated     MessageType = 0x0002
	DeregisterComponent  MessageType = 0x0003
	ComponentDeleted     MessageType = 0x0004
	QueryComponent       MessageType = 0x0005

	// Input-context lifecycle (0x0020-0x002F).
	CreateInputContext          MessageType = 0x0020
	InputContextCreated         MessageType = 0x0021
	DeleteInputContext          MessageType = 0x0022
	InputContextDeleted         MessageType = 0x0023
	AttachToInputContext        MessageType = 0x0024
	DetachFromInputContext      MessageType = 0x0025
	DetachedFromInputContext    MessageType = 0x0026
	QueryInputContext           MessageType = 0x0027
	FocusInputContext           MessageType = 0x0028
	InputContextGotFocus        MessageType = 0x0029
	BlurInputContext            MessageType = 0x002A
	InputContextLostFocus       MessageType = 0x002B
	ComponentAttached           MessageType = 0x002C
	ComponentDetached           MessageType = 0x002D

	// Active consumer (0x0040-0x004F).
	ActivateComponent      MessageType = 0x0040
	AssignActiveConsumer   MessageType = 0x0041
	ResignActiveConsumer   MessageType = 0x0042
	QueryActiveConsumer    MessageType = 0x0043
	ComponentActivated     MessageType = 0x0044
	ComponentDeactivated   MessageType = 0x0045
	RequestConsumer        MessageType = 0x0046
	ActiveConsumerChanged  MessageType = 0x0047

	// Key events (0x0060-0x006F).
	SendKeyEvent      MessageType = 0x0060
	ProcessKeyEvent   MessageType = 0x0061
	SynthesizeKeyEvent MessageType = 0x0062

	// Composition / text (0x0080-0x00AF).
	SetComposition       MessageType = 0x0080
	CancelComposition    MessageType = 0x0081
	CompleteComposition  MessageType = 0x0082
	CompositionChanged   MessageType = 0x0083
	QueryComposition     MessageType = 0x0084
	InsertText           MessageType = 0x0085

	// Candidate list (0x00C0-0x00CF).
	SetCandidateList               MessageType = 0x00C0
	CandidateListChanged           MessageType = 0x00C1
	SetSelectedCandidate           MessageType = 0x00C2
	SelectedCandidateChanged       MessageType = 0x00C3
	SetCandidateListVisibility     MessageType = 0x00C4
	CandidateListVisibilityChanged MessageType = 0x00C5
	CandidateListShown             MessageType = 0x00C6
	CandidateListHidden            MessageType = 0x00C7
	CandidateListPageDown          MessageType = 0x00C8
	CandidateListPageUp            MessageType = 0x00C9
	CandidateListScrollTo          MessageType = 0x00CA
	CandidateListPageResize        MessageType = 0x00CB
	SelectCandidate                MessageType = 0x00CC
	DoCandidateCommand             MessageType = 0x00CD
	QueryCandidateList             MessageType = 0x00CE

	// Input caret (0x00E0-0x00EF).
	UpdateInputCaret MessageType = 0x00E0
	QueryInputCaret  MessageType = 0x00E1

	// Command list (0x0120-0x012F).
	SetCommandList    MessageType = 0x0120
	UpdateCommands    MessageType = 0x0121
	QueryCommandList  MessageType = 0x0122
	CommandListChanged MessageType = 0x0123
	DoCommand         MessageType = 0x0124

	// Hotkeys (0x0140-0x014F).
	AddHotkeyList         MessageType = 0x0140
	RemoveHotkeyList      MessageType = 0x0141
	CheckHotkeyConflict   MessageType = 0x0142
	ActivateHotkeyList    MessageType = 0x0143
	DeactivateHotkeyList  MessageType = 0x0144
	QueryActiveHotkeyList MessageType = 0x0145
	ActiveHotkeyListUpdated MessageType = 0x0146

	// Input method switch (0x0160-0x016F).
	ListInputMethods                 MessageType = 0x0160
	SwitchToInputMethod              MessageType = 0x0161
	SwitchToNextInputMethodInList    MessageType = 0x0162
	SwitchToPreviousInputMethod      MessageType = 0x0163
	InputMethodActivated             MessageType = 0x0164
	QueryActiveInputMethod           MessageType = 0x0165

	// Settings (0x0180-0x018F).
	SettingsSetValues          MessageType = 0x0180
	SettingsGetValues          MessageType = 0x0181
	SettingsSetArrayValue      MessageType = 0x0182
	SettingsGetArrayValue      MessageType = 0x0183
	SettingsAddChangeObserver  MessageType = 0x0184
	SettingsRemoveChangeObserver MessageType = 0x0185
	SettingsChanged            MessageType = 0x0186

	// UI visibility (0x0200-0x020F).
	ShowCompositionUI            MessageType = 0x0200
	HideCompositionUI            MessageType = 0x0201
	ShowCandidateListUI          MessageType = 0x0202
	HideCandidateListUI          MessageType = 0x0203
	ShowToolbarUI                MessageType = 0x0204
	HideToolbarUI                MessageType = 0x0205
	ConversionModeChanged        MessageType = 0x0206
	EnableFakeInlineComposition  MessageType = 0x0207

	// Misc (0x0220-0x0241).
	SetTimer     MessageType = 0x0220
	KillTimer    MessageType = 0x0221
	NotifyTimer  MessageType = 0x0222
	Beep         MessageType = 0x0223
	HubServerQuit MessageType = 0x0224

	// Plug-in manager (0x0260-0x026F).
	PluginQueryComponents MessageType = 0x0260
	PluginStartComponents MessageType = 0x0261
	PluginStopComponents  MessageType = 0x0262
	PluginUnload          MessageType = 0x0263
	PluginInstalled       MessageType = 0x0264
	PluginChanged         MessageType = 0x0265

	// Application UI (0x0280-0x0303).
	ShowMenu                     MessageType = 0x0280
	ShowMessageBox               MessageType = 0x0281
	SetKeyboardLayout            MessageType = 0x0282
	ChangeKeyboardState          MessageType = 0x0283
	VirtualKeyboardStateChanged  MessageType = 0x0284
	EndOfPredefinedMessage       MessageType = 0x0303

	// Reserved ranges.
	SystemReservedStart MessageType = 0x8000
	SystemReservedEnd   MessageType = 0xFFFF
	UserDefinedStart    MessageType = 0x10000

	// Internal control messages used by HubHost/ComponentHost bookkeeping,
	// placed inside the system-reserved range so Hub's normal reserved-range
	// check already keeps them off the wire between processes.
	InternalAttachHubHost    MessageType = SystemReservedStart
	InternalDetachHubHost    MessageType = SystemReservedStart + 1
	InternalChannelConnected MessageType = SystemReservedStart + 2

	// Internal control messages used by componenthost.Host's own bookkeeping:
	// a channel drop that must unblock every pending send-with-reply wait,
	// and the pause/resume drain self-post.
	InternalChannelBroken  MessageType = SystemReservedStart + 3
	InternalDrainPending   MessageType = SystemReservedStart + 4
)

// IsSystemReserved reports whether a message type falls in the range Hub
// forbids on the wire from external components.
func (t MessageType) IsSystemReserved() bool {
	return t >= SystemReservedStart && t <= SystemReservedEnd
}

// IsUserDefined reports whether a message type is reserved for third parties
// and should be routed opaquely by Hub.
func (t MessageType) IsUserDefined() bool {
	return t >= UserDefinedStart
}

// isInternalControl reports whether t is one of the internal bookkeeping
// types used between ComponentHost/HubHost and their driving MessageQueue;
// these are never valid on an inter-process MessageChannel.
func (t MessageType) isInternalControl() bool {
	switch t {
	case InternalAttachHubHost, InternalDetachHubHost, InternalChannelConnected, InternalChannelBroken, InternalDrainPending:
		return true
	default:
		return false
	}
}

// broadcastFallbackTypes is the set of message types that fan out to every
// attached consumer of the icid when no active consumer is assigned, instead
// of producing an error reply.
var broadcastFallbackTypes = map[MessageType]bool{
	CompositionChanged:             true,
	CandidateListChanged:           true,
	SelectedCandidateChanged:       true,
	CandidateListVisibilityChanged: true,
	CommandListChanged:             true,
	UpdateInputCaret:               true,
	ActiveConsumerChanged:          true,
	ConversionModeChanged:          true,
}

// HasBroadcastFallback reports whether t falls back to attached-consumer
// fan-out when no active consumer is present for an icid.
func (t MessageType) HasBroadcastFallback() bool {
	return broadcastFallbackTypes[t]
}

// ErrorCode is the taxonomy of Error.Code values (spec §7).
type ErrorCode uint8

const (
	NotError ErrorCode = iota
	InvalidMessage
	InvalidPayload
	InvalidArgument
	ComponentNotFound
	InputContextNotFound
	PermissionDenied
	ChannelBroken
	Timeout
)

func (c ErrorCode) String() string {
	switch c {
	case NotError:
		return "NOT_ERROR"
	case InvalidMessage:
		return "INVALID_MESSAGE"
	case InvalidPayload:
		return "INVALID_PAYLOAD"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case ComponentNotFound:
		return "COMPONENT_NOT_FOUND"
	case InputContextNotFound:
		return "INPUT_CONTEXT_NOT_FOUND"
	case PermissionDenied:
		return "PERMISSION_DENIED"
	case ChannelBroken:
		return "CHANNEL_BROKEN"
	case Timeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN_ERROR_CODE"
	}
}

// Package plugin is a C-ABI-shaped shim over Go's standard library plugin
// package: it lets a component ship as a separately built .so and be
// loaded into a running hubd without either side importing the other's
// concrete types.
//
// It is grounded on google-input-tools' components/plugin_wrapper: a DLL
// boundary wrapping one ipc::Component with eight exported C functions
// (ListComponents, CreateInstance, DestroyInstance, GetInfo, Registered,
// Deregistered, HandleMessage, FreeBuffer) plus a ComponentCallbacks
// struct the host hands the plugin so it can call back in. Adaptor plays
// the role the wrapped ipc::Component plays inside the DLL; Stub plays the
// role PluginComponentStub plays in the host process.
package plugin

import "github.com/jeeves-cluster-organization/hubcore/envelope"

// Instance is the opaque handle CreateInstance returns and every later ABI
// call receives back, mirroring the bare void* ComponentInstance of the
// C ABI this package is shaped after.
type Instance any

// Callbacks is the set of functions a host hands to a plugin's
// CreateInstance so the plugin can call back into the host without linking
// against componenthost, mirroring ComponentCallbacks's send/
// send_with_reply/pause_message_handling/resume_message_handling/
// remove_component function pointers. There is no "owner" field: Go
// closures already carry whatever state the C struct needed an opaque
// owner pointer for.
type Callbacks struct {
	Send                  func(msg envelope.Message)
	SendWithReply         func(msg envelope.Message) (envelope.Message, bool)
	PauseMessageHandling  func()
	ResumeMessageHandling func()
	RemoveComponent       func()
}

// Exported symbol names a .so built with `go build -buildmode=plugin`
// must provide; Stub looks each of these up with Plugin.Lookup after
// opening the plugin file, the same way PluginInstance resolves each
// function pointer by name via GetProcAddress.
const (
	SymCreateInstance  = "CreateInstance"
	SymDestroyInstance = "DestroyInstance"
	SymGetInfo         = "GetInfo"
	SymRegistered      = "Registered"
	SymDeregistered    = "Deregistered"
	SymHandleMessage   = "HandleMessage"
	SymFreeBuffer      = "FreeBuffer"
	// SymListComponents is a package-level (not instance-level) symbol: it
	// answers "what components does this plugin file offer" before any
	// instance exists, mirroring PluginInstance::ListComponents.
	SymListComponents = "ListComponents"
)

// Function types each exported symbol must satisfy.
//
// GetInfo and HandleMessage cross the plugin boundary as encoded bytes
// rather than envelope.Message values directly. The C ABI this mirrors
// passes char*/int buffers because a DLL boundary can't share a class
// layout; a Go plugin shares a runtime with its host, but package plugin
// still requires every transitively imported package to resolve to an
// identical build — including envelope itself — or Lookup fails outright.
// A plugin built at a different time than the host, even from identical
// source, is rejected. Passing envelope.Encode/Decode bytes instead of the
// struct avoids that fragility entirely: the only cross-boundary contract
// is the wire format envelope/codec.go already defines for PipeChannel.
type (
	// ListComponentsFunc returns the encoded Message this plugin file's
	// components would report via GetInfo, with one entry per component
	// Payload.ComponentInfoArray, before any instance is created.
	ListComponentsFunc func() []byte
	// CreateInstanceFunc constructs one plugin-side component bound to cb
	// and returns its opaque handle. id is the string id the host wants
	// this instance to register under.
	CreateInstanceFunc func(cb Callbacks, id string) Instance
	// DestroyInstanceFunc releases an instance CreateInstance returned.
	DestroyInstanceFunc func(inst Instance)
	// GetInfoFunc returns inst's ComponentInfo, encoded the same way
	// ListComponentsFunc does.
	GetInfoFunc func(inst Instance) []byte
	// RegisteredFunc notifies inst of its Hub-assigned id, or
	// envelope.ComponentDefault on registration failure.
	RegisteredFunc func(inst Instance, id uint32)
	// DeregisteredFunc is the symmetric teardown notification.
	DeregisteredFunc func(inst Instance)
	// HandleMessageFunc hands inst one encoded envelope.Message.
	HandleMessageFunc func(inst Instance, buf []byte)
	// FreeBufferFunc releases a buffer obtained from GetInfoFunc or
	// ListComponentsFunc. The C ABI needs this because ownership of a
	// malloc'd char* crosses the DLL boundary; in Go both sides share one
	// garbage collector, so Stub calls it only for symmetry with the ABI
	// it mirrors — a plugin author may leave it a no-op.
	FreeBufferFunc func(buf []byte)
)

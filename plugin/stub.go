package plugin

import (
	"fmt"
	stdplugin "plugin"

	"github.com/jeeves-cluster-organization/hubcore/componenthost"
	"github.com/jeeves-cluster-organization/hubcore/config"
	"github.com/jeeves-cluster-organization/hubcore/envelope"
)

// Stub loads a component from a .so built with `go build -buildmode=plugin`
// and proxies every componenthost.Component call into it, mirroring
// PluginComponentStub: the ipc::ComponentBase subclass that loads a real
// component from a given dll and ferries messages between the Hub and the
// plugin across the wrapper's C ABI. A Stub is added to a ComponentHost
// exactly like any in-process Component; the host never has to know its
// messages cross a plugin boundary.
type Stub struct {
	componenthost.BaseComponent

	path     string
	stringID string
	host     *componenthost.ComponentHost

	plug            *stdplugin.Plugin
	instance        Instance
	createInstance  CreateInstanceFunc
	destroyInstance DestroyInstanceFunc
	getInfoFn       GetInfoFunc
	registeredFn    RegisteredFunc
	deregisteredFn  DeregisteredFunc
	handleMessageFn HandleMessageFunc
	freeBufferFn    FreeBufferFunc
}

var _ componenthost.Component = (*Stub)(nil)

// ListComponents opens the plugin at path just long enough to call its
// ListComponents symbol, answering "what could I add from this file"
// without creating an instance, mirroring PluginInstance::ListComponents.
func ListComponents(path string) ([]envelope.ComponentInfo, error) {
	plug, err := stdplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: open %s: %w", path, err)
	}
	sym, err := plug.Lookup(SymListComponents)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: missing symbol %s: %w", path, SymListComponents, err)
	}
	fn, ok := sym.(ListComponentsFunc)
	if !ok {
		return nil, fmt.Errorf("plugin: %s: symbol %s has an unexpected type", path, SymListComponents)
	}
	msg, err := envelope.Decode(fn())
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: decoding %s result: %w", path, SymListComponents, err)
	}
	return msg.Payload.ComponentInfoArray, nil
}

// NewStub opens the plugin at path, resolves every ABI symbol it must
// export, and creates one instance bound to host via the stringID the
// caller registers it under. Call host.AddComponent(stub) next, the same
// as for any in-process Component.
func NewStub(host *componenthost.ComponentHost, path, stringID string) (*Stub, error) {
	plug, err := stdplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: open %s: %w", path, err)
	}

	s := &Stub{path: path, stringID: stringID, host: host, plug: plug}
	if err := s.bindSymbols(); err != nil {
		return nil, err
	}
	s.instance = s.createInstance(s.callbacks(), stringID)
	return s, nil
}

func (s *Stub) bindSymbols() error {
	createSym, err := s.lookup(SymCreateInstance)
	if err != nil {
		return err
	}
	fn, ok := createSym.(CreateInstanceFunc)
	if !ok {
		return s.badType(SymCreateInstance)
	}
	s.createInstance = fn

	destroySym, err := s.lookup(SymDestroyInstance)
	if err != nil {
		return err
	}
	destroyFn, ok := destroySym.(DestroyInstanceFunc)
	if !ok {
		return s.badType(SymDestroyInstance)
	}
	s.destroyInstance = destroyFn

	infoSym, err := s.lookup(SymGetInfo)
	if err != nil {
		return err
	}
	infoFn, ok := infoSym.(GetInfoFunc)
	if !ok {
		return s.badType(SymGetInfo)
	}
	s.getInfoFn = infoFn

	registeredSym, err := s.lookup(SymRegistered)
	if err != nil {
		return err
	}
	registeredFn, ok := registeredSym.(RegisteredFunc)
	if !ok {
		return s.badType(SymRegistered)
	}
	s.registeredFn = registeredFn

	deregisteredSym, err := s.lookup(SymDeregistered)
	if err != nil {
		return err
	}
	deregisteredFn, ok := deregisteredSym.(DeregisteredFunc)
	if !ok {
		return s.badType(SymDeregistered)
	}
	s.deregisteredFn = deregisteredFn

	handleSym, err := s.lookup(SymHandleMessage)
	if err != nil {
		return err
	}
	handleFn, ok := handleSym.(HandleMessageFunc)
	if !ok {
		return s.badType(SymHandleMessage)
	}
	s.handleMessageFn = handleFn

	// FreeBuffer is looked up but its absence is not fatal: a plugin whose
	// runtime is entirely garbage collected has nothing to free.
	if freeSym, err := s.lookup(SymFreeBuffer); err == nil {
		if freeFn, ok := freeSym.(FreeBufferFunc); ok {
			s.freeBufferFn = freeFn
		}
	}

	return nil
}

func (s *Stub) lookup(name string) (stdplugin.Symbol, error) {
	sym, err := s.plug.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: missing symbol %s: %w", s.path, name, err)
	}
	return sym, nil
}

func (s *Stub) badType(name string) error {
	return fmt.Errorf("plugin: %s: symbol %s has an unexpected type", s.path, name)
}

func (s *Stub) callbacks() Callbacks {
	return Callbacks{
		Send: func(msg envelope.Message) {
			s.host.Send(s, msg)
		},
		SendWithReply: func(msg envelope.Message) (envelope.Message, bool) {
			return s.host.SendWithReply(s, msg, config.DefaultConfig().DefaultQueryTimeout)
		},
		PauseMessageHandling: func() {
			s.host.PauseMessageHandling(s)
		},
		ResumeMessageHandling: func() {
			s.host.ResumeMessageHandling(s)
		},
		RemoveComponent: func() {
			s.host.RemoveComponent(s)
		},
	}
}

// GetInfo implements componenthost.Component by decoding the buffer the
// plugin's GetInfo symbol returns.
func (s *Stub) GetInfo() envelope.ComponentInfo {
	body := s.getInfoFn(s.instance)
	msg, err := envelope.Decode(body)
	if s.freeBufferFn != nil {
		s.freeBufferFn(body)
	}
	if err != nil || len(msg.Payload.ComponentInfoArray) == 0 {
		return envelope.ComponentInfo{StringId: s.stringID}
	}
	return msg.Payload.ComponentInfoArray[0]
}

// HandleMessage implements componenthost.Component by encoding msg the
// same way envelope/codec.go encodes any other frame body.
func (s *Stub) HandleMessage(msg envelope.Message) {
	body, err := envelope.Encode(msg)
	if err != nil {
		return
	}
	s.handleMessageFn(s.instance, body)
}

// Registered implements componenthost.Component.
func (s *Stub) Registered(id envelope.ComponentId) {
	s.registeredFn(s.instance, uint32(id))
}

// Deregistered implements componenthost.Component.
func (s *Stub) Deregistered() {
	s.deregisteredFn(s.instance)
}

// DidRemoveFromHost destroys the plugin-side instance once the host
// drops this Stub, mirroring PluginComponentStub's destructor tearing
// down the PluginInstance it owns.
func (s *Stub) DidRemoveFromHost() {
	s.BaseComponent.DidRemoveFromHost()
	if s.destroyInstance != nil && s.instance != nil {
		s.destroyInstance(s.instance)
		s.instance = nil
	}
}

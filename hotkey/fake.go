package hotkey

import "errors"

// FakeHotkey is driven by tests and the -test mode.
type FakeHotkey struct {
	edges   chan Edge
	failReg error
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{edges: make(chan Edge, 16)}
}

// NewFailingFake returns a fake whose Register always fails.
func NewFailingFake(reason string) *FakeHotkey {
	f := NewFake()
	f.failReg = errors.New(reason)
	return f
}

func (f *FakeHotkey) Register() error    { return f.failReg }
func (f *FakeHotkey) Unregister()        {}
func (f *FakeHotkey) Edges() <-chan Edge { return f.edges }

func (f *FakeHotkey) SimKeydown() { f.edges <- Down }
func (f *FakeHotkey) SimKeyup()   { f.edges <- Up }

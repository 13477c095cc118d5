//go:build darwin || windows

package clipboard

import (
	"sync"

	"github.com/micmonay/keybd_event"
)

var (
	kb     keybd_event.KeyBonding
	kbOnce sync.Once
	kbErr  error
	kbMu   sync.Mutex
)

func Init() error {
	kbOnce.Do(func() {
		kb, kbErr = keybd_event.NewKeyBonding()
	})
	return kbErr
}

// Paste sends the platform paste chord to the foreground window.
func Paste() error {
	if err := Init(); err != nil {
		return err
	}
	kbMu.Lock()
	defer kbMu.Unlock()
	kb.Clear()
	kb.SetKeys(keybd_event.VK_V)
	setPasteModifier(&kb)
	return kb.Launching()
}

// Verify checks that the keyboard event binding is initialized.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	return "keyboard event binding OK (" + pasteChord + ")", nil
}

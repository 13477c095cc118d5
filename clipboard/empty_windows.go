//go:build windows

package clipboard

var procCountClipboardFormats = user32.NewProc("CountClipboardFormats")

func isEmpty() bool {
	n, _, _ := procCountClipboardFormats.Call()
	return n == 0
}

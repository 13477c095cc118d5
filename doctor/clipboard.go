package doctor

import (
	"errors"
	"fmt"
	"time"

	"superscribe/clipboard"
)

func checkClipboardCopy() bool {
	header(5, "Clipboard copy")

	if !clipboard.Available() {
		fmt.Println("  FAIL: no clipboard tool found (install wl-clipboard or xclip)")
		return false
	}

	testStr := fmt.Sprintf("superscribe-doctor-%d", time.Now().UnixNano())
	if err := clipboard.Copy(testStr); err != nil {
		fmt.Printf("  FAIL: clipboard write failed: %v\n", err)
		if errors.Is(err, clipboard.ErrTimeout) {
			fmt.Println("  The clipboard tool hung; is the compositor accessible?")
		}
		return false
	}
	got, err := clipboard.Read()
	if err != nil {
		fmt.Printf("  FAIL: clipboard read failed: %v\n", err)
		return false
	}
	if got != testStr {
		fmt.Printf("  FAIL: clipboard mismatch: wrote %q, got %q\n", testStr, got)
		return false
	}
	fmt.Println("  PASS: clipboard write/read verified")
	return true
}

func checkClipboardPaste() bool {
	header(6, "Paste keystroke")

	msg, err := clipboard.Verify()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}
	fmt.Printf("  PASS: %s\n", msg)
	return true
}

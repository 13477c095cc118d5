//go:build linux

package clipboard

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func rawEvent(typ, code uint16, value int32) []byte {
	b := make([]byte, eventSize)
	binary.LittleEndian.PutUint16(b[16:], typ)
	binary.LittleEndian.PutUint16(b[18:], code)
	binary.LittleEndian.PutUint32(b[20:], uint32(value))
	return b
}

func TestKeysSeen(t *testing.T) {
	var buf []byte
	buf = append(buf, rawEvent(evKey, keyLeftCtrl, 1)...)
	buf = append(buf, rawEvent(evSyn, 0, 0)...)
	buf = append(buf, rawEvent(evKey, keyV, 1)...)
	buf = append(buf, rawEvent(evSyn, 0, 0)...)
	buf = append(buf, 1, 2, 3) // trailing partial event

	seen := keysSeen(buf)
	require.True(t, seen[keyLeftCtrl])
	require.True(t, seen[keyV])
	require.Len(t, seen, 2)
}

func TestKeysSeenEmpty(t *testing.T) {
	require.Empty(t, keysSeen(nil))
}

//go:build linux

package beep

import "testing"

func TestInterleave(t *testing.T) {
	got := interleave([]int16{1, -2, 3})
	want := []int16{1, 1, -2, -2, 3, 3}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

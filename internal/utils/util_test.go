package utils

import (
	"testing"
)

func TestEscapeMd(t *testing.T) {
	got := EscapeMd("*bold* _it_ `code` ~strike~")
	want := `\*bold\* \_it\_ \` + "\\`code\\`" + ` \~strike\~`
	if got != want {
		t.Errorf("EscapeMd = %q, want %q", got, want)
	}
}

func TestPrettyTime(t *testing.T) {
	cases := []struct {
		sec  int
		want string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{61, "1:01"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, c := range cases {
		if got := PrettyTime(c.sec); got != c.want {
			t.Errorf("PrettyTime(%d) = %q, want %q", c.sec, got, c.want)
		}
	}
}

func TestShuffleSliceKeepsElements(t *testing.T) {
	in := make([]int, 50)
	for i := range in {
		in[i] = i
	}
	cp := append([]int(nil), in...)

	ShuffleSlice(cp)

	if len(cp) != len(in) {
		t.Fatalf("length changed: %d", len(cp))
	}
	seen := make(map[int]bool, len(cp))
	for _, v := range cp {
		seen[v] = true
	}
	for _, v := range in {
		if !seen[v] {
			t.Errorf("element %d lost", v)
		}
	}
}

func TestShuffleSliceEmpty(t *testing.T) {
	ShuffleSlice([]string{})
	ShuffleSlice([]string{"only"})
}

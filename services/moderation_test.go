package services

import "testing"

func TestModeratorClean(t *testing.T) {
	m := NewModerator([]string{"darn", " heck ", "", "a.b"})

	tests := []struct {
		in     string
		want   string
		masked bool
	}{
		{"hello there", "hello there", false},
		{"darn it", "**** it", true},
		{"DARN and Heck", "**** and ****", true},
		{"darned", "darned", false},
		{"a.b but not axb", "*** but not axb", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, masked := m.Clean(tt.in)
			if got != tt.want || masked != tt.masked {
				t.Errorf("Clean(%q) = %q, %v; want %q, %v", tt.in, got, masked, tt.want, tt.masked)
			}
		})
	}
}

func TestModeratorEmpty(t *testing.T) {
	for _, m := range []*Moderator{nil, NewModerator(nil), NewModerator([]string{" "})} {
		if got, masked := m.Clean("darn"); got != "darn" || masked {
			t.Errorf("Clean() = %q, %v; want unchanged", got, masked)
		}
	}
}

package clock

import "testing"

func TestSystem_Monotonic(t *testing.T) {
	c := System()
	a := c.NowMS()
	b := c.NowMS()
	if b < a {
		t.Fatalf("clock went backwards: %d -> %d", a, b)
	}
}

func TestMock_AdvanceAndSet(t *testing.T) {
	m := NewMock(1000)
	if m.NowMS() != 1000 {
		t.Fatalf("got %d, want 1000", m.NowMS())
	}

	m.Advance(50)
	if m.NowMS() != 1050 {
		t.Fatalf("got %d, want 1050", m.NowMS())
	}

	m.Set(0)
	if m.NowMS() != 0 {
		t.Fatalf("got %d, want 0", m.NowMS())
	}
}

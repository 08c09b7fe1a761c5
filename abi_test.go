package bootimage

import "testing"

func TestCeiling(t *testing.T) {
	cases := []struct{ x, n, want int }{
		{0, 4, 0},
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{17, 8, 3},
	}
	for _, c := range cases {
		if got := Ceiling(c.x, c.n); got != c.want {
			t.Errorf("Ceiling(%d, %d) = %d, want %d", c.x, c.n, got, c.want)
		}
	}
}

func TestCeilingPanicsOnNonPositiveDivisor(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero divisor")
		}
	}()
	Ceiling(4, 0)
}

func TestABIWordRoundTrip(t *testing.T) {
	be := ABI{HostWordSize: 8, TargetWordSize: 4, TargetBitsPerWord: 32, BigEndian: true}
	buf := make([]byte, 4)
	be.PutWord(buf, 0x01020304)
	if buf[0] != 0x01 || buf[3] != 0x04 {
		t.Fatalf("big-endian word encoding wrong: % x", buf)
	}
	if got := be.Word(buf); got != 0x01020304 {
		t.Fatalf("Word round-trip = %#x, want %#x", got, 0x01020304)
	}

	le := ABI{HostWordSize: 8, TargetWordSize: 4, TargetBitsPerWord: 32, BigEndian: false}
	buf2 := make([]byte, 4)
	le.PutWord(buf2, 0x01020304)
	if buf2[0] != 0x04 || buf2[3] != 0x01 {
		t.Fatalf("little-endian word encoding wrong: % x", buf2)
	}
}

func TestABIWord8Byte(t *testing.T) {
	abi := ABI{HostWordSize: 8, TargetWordSize: 8, TargetBitsPerWord: 64, BigEndian: false}
	buf := make([]byte, 8)
	abi.PutWord(buf, 0x0102030405060708)
	if got := abi.Word(buf); got != 0x0102030405060708 {
		t.Fatalf("8-byte word round-trip = %#x", got)
	}
}

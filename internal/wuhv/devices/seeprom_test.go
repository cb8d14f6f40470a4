package devices

import "testing"

// clockIn shifts an n-bit value into the SEEPROM MSB-first, one rising
// clock edge per bit, the way the GPIO bit-bang path does.
func clockIn(s *SEEPROM, value uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		s.UpdatePin(int((value >> uint(i)) & 1))
	}
}

// clockOut shifts n response bits back out, sampling the data-out pin after
// each clock edge.
func clockOut(s *SEEPROM, n int) uint32 {
	var out uint32
	for i := 0; i < n; i++ {
		s.UpdatePin(0)
		out = out<<1 | uint32(s.PinState())
	}
	return out
}

func TestSEEPROMReadWord(t *testing.T) {
	var words [256]uint16
	words[5] = 0xBEEF
	s := NewSEEPROM(words, func() uint32 { return 0 })

	s.InitTransfer()
	clockIn(s, 0x600|5, 11) // read command, address 5
	if got := clockOut(s, 16); got != 0xBEEF {
		t.Fatalf("read word: got %#x want 0xBEEF", got)
	}
}

func TestSEEPROMWriteWord(t *testing.T) {
	s := NewSEEPROM([256]uint16{}, func() uint32 { return 0 })

	s.InitTransfer()
	clockIn(s, 0x500|9, 11) // write command, address 9
	clockIn(s, 0xCAFE, 16)  // data word
	if s.data[9] != 0xCAFE {
		t.Fatalf("write word: data[9]=%#x want 0xCAFE", s.data[9])
	}

	// A fresh transfer reads the same word back.
	s.InitTransfer()
	clockIn(s, 0x600|9, 11)
	if got := clockOut(s, 16); got != 0xCAFE {
		t.Fatalf("readback: got %#x want 0xCAFE", got)
	}
}

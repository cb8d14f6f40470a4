package memhelper

import (
	"testing"

	"github.com/tinyrange/wuhv/internal/wuhv/phys"
)

// identity translates every effective address to itself.
type identity struct{}

func (identity) Translate(ea uint32, write, exec bool) (uint32, error) { return ea, nil }

// offsetBy translates by adding a fixed displacement, enough to prove reads
// actually go through the translator.
type offsetBy uint32

func (o offsetBy) Translate(ea uint32, write, exec bool) (uint32, error) {
	return ea + uint32(o), nil
}

func TestReadCStrUTF8(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0, 0x1000)
	if err := mem.Write(0x100, []byte("dev/fsa\x00trailing")); err != nil {
		t.Fatal(err)
	}

	f := New(mem, identity{})
	got, err := f.ReadCStrUTF8(0x100)
	if err != nil {
		t.Fatal(err)
	}
	if got != "dev/fsa" {
		t.Fatalf("got %q", got)
	}
}

func TestReadU32BEThroughTranslator(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0x2000, 0x1000)
	if err := mem.Write(0x2010, []byte{0xDE, 0xAD, 0xBE, 0xEF}); err != nil {
		t.Fatal(err)
	}

	f := New(mem, offsetBy(0x2000))
	got, err := f.ReadU32BE(0x10)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xDEADBEEF {
		t.Fatalf("got %#x", got)
	}
}

func TestWriteU32BERoundTrip(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0, 0x1000)
	f := New(mem, identity{})

	if err := f.WriteU32BE(0x20, 0x12345678); err != nil {
		t.Fatal(err)
	}
	got, err := f.ReadU32BE(0x20)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x12345678 {
		t.Fatalf("got %#x", got)
	}
}

func TestReadBytesFailsOnUnmapped(t *testing.T) {
	mem := phys.New()
	mem.AddRange(0, 0x10)
	f := New(mem, identity{})
	if _, err := f.ReadBytes(0x8, 0x20); err == nil {
		t.Fatal("expected an error crossing into unmapped space")
	}
}

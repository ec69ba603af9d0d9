package axis

import (
	"testing"

	"github.com/ecmwf/fdb-sub005/key"
)

func TestInsertAndMayContain(t *testing.T) {
	reg := key.DefaultRegistry()
	a := New()

	k1 := key.New(reg)
	k1.Set("param", "129")
	k1.Set("levtype", "sfc")
	a.Insert(k1)

	k2 := key.New(reg)
	k2.Set("param", "130")
	a.Insert(k2)

	probe := key.New(reg)
	probe.Set("param", "129")
	if !a.MayContain(probe) {
		t.Error("axis should admit a value it has observed")
	}

	probe2 := key.New(reg)
	probe2.Set("param", "999")
	if a.MayContain(probe2) {
		t.Error("axis should reject a value it has never observed")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	reg := key.DefaultRegistry()
	a := New()
	k := key.New(reg)
	k.Set("param", "129")
	a.Insert(k)

	blob, err := a.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := decoded.Values("param"); len(got) != 1 || got[0] != "129" {
		t.Fatalf("decoded axis param values = %v", got)
	}
}

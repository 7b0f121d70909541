package diag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ktk1012/OOOS/src/cache"
	"github.com/ktk1012/OOOS/src/frame"
	"github.com/ktk1012/OOOS/src/stats"
	"github.com/ktk1012/OOOS/src/swap"
)

func TestBuildProducesOneSampleAndFunctionPerCounter(t *testing.T) {
	snap := Snapshot{
		Cache: cache.Stats_t{},
		Frame: frame.Stats_t{},
		Swap:  swap.Stats_t{},
	}
	p := Build(snap)
	want := len(snap.counters())
	if len(p.Function) != want || len(p.Location) != want || len(p.Sample) != want {
		t.Fatalf("Build produced %d functions, %d locations, %d samples, want %d each",
			len(p.Function), len(p.Location), len(p.Sample), want)
	}
	if err := p.CheckValid(); err != nil {
		t.Fatalf("CheckValid: %v", err)
	}
}

func TestBuildCarriesCounterValues(t *testing.T) {
	snap := Snapshot{Swap: swap.Stats_t{SlotsInUse: 3}}
	p := Build(snap)
	found := false
	for i, fn := range p.Function {
		if fn.Name == "swap_slots_in_use" {
			found = true
			if p.Sample[i].Value[0] != 3 {
				t.Fatalf("swap_slots_in_use sample = %d, want 3", p.Sample[i].Value[0])
			}
		}
	}
	if !found {
		t.Fatal("Build should emit a swap_slots_in_use counter")
	}
}

func TestWriteFileIsNoopWhenStatsDisabled(t *testing.T) {
	if stats.Stats {
		t.Skip("stats.Stats is compiled in for this build")
	}
	path := filepath.Join(t.TempDir(), "profile.pb.gz")
	if err := WriteFile(path, Snapshot{}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("WriteFile should not create a file when stats.Stats is false")
	}
}

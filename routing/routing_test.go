package routing

import (
	"log/slog"
	"testing"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestTable_ManualOnlyAtRadiusOne(t *testing.T) {
	vendors := []string{"Intel Inc.", "AMD", "NVIDIA Corporation", "Imagination Technologies"}

	for _, vendor := range vendors {
		t.Run(vendor, func(t *testing.T) {
			tbl := New(vendor, "test-device", discard())
			for radius := 1; radius <= MaxRadius; radius++ {
				r, err := tbl.Get(radius)
				if err != nil {
					t.Fatalf("Get(%d) error = %v", radius, err)
				}
				if (r.Strategy == Manual) != (radius == 1) {
					t.Errorf("Get(%d).Strategy = %v, Manual is only valid at radius 1", radius, r.Strategy)
				}
			}
		})
	}
}

func TestTable_BlockCountDividesWorkgroupSize(t *testing.T) {
	// 256 is the smallest max workgroup size among devices the presets
	// were tuned on; every preset block count must divide it.
	const maxWG = 256

	vendors := []string{"Intel Inc.", "AMD", "NVIDIA Corporation", "something else"}
	for _, vendor := range vendors {
		tbl := New(vendor, "", discard())
		for radius := 1; radius <= MaxRadius; radius++ {
			r, _ := tbl.Get(radius)
			if r.BlockCount < 1 || maxWG%r.BlockCount != 0 {
				t.Errorf("vendor %q radius %d: block count %d does not divide %d",
					vendor, radius, r.BlockCount, maxWG)
			}
		}
	}
}

func TestTable_GetOutOfRange(t *testing.T) {
	tbl := New("Intel Inc.", "", discard())

	for _, radius := range []int{0, -1, MaxRadius + 1, 1 << 20} {
		if _, err := tbl.Get(radius); err == nil {
			t.Errorf("Get(%d) expected error, got nil", radius)
		}
	}
}

func TestTable_ForceUniform(t *testing.T) {
	tbl := New("NVIDIA Corporation", "", discard())
	tbl.ForceUniform(64, Subblock)

	for radius := 1; radius <= MaxRadius; radius++ {
		r, err := tbl.Get(radius)
		if err != nil {
			t.Fatalf("Get(%d) error = %v", radius, err)
		}
		if r.BlockCount != 64 || r.Strategy != Subblock {
			t.Fatalf("Get(%d) = %+v after ForceUniform(64, Subblock)", radius, r)
		}
	}
}

func TestTable_Clamp(t *testing.T) {
	tbl := New("NVIDIA Corporation", "", discard())
	tbl.Clamp(200)

	for radius := 1; radius <= MaxRadius; radius++ {
		r, _ := tbl.Get(radius)
		// 128 is the largest power of two within the limit.
		if r.Strategy == Subblock && r.BlockCount > 128 {
			t.Fatalf("Get(%d).BlockCount = %d after Clamp(200)", radius, r.BlockCount)
		}
	}

	// Non-subblock entries are untouched: the count is a workgroup width
	// there, not a scan-line decomposition.
	if r, _ := tbl.Get(3); r.Strategy != Direct || r.BlockCount != 128 {
		t.Fatalf("Get(3) = %+v, want {128 direct}", r)
	}
	if r, _ := tbl.Get(1); r.Strategy != Manual || r.BlockCount != 256 {
		t.Fatalf("Get(1) = %+v, want {256 manual}", r)
	}

	// Clamping above every entry is a no-op.
	tbl = New("NVIDIA Corporation", "", discard())
	tbl.Clamp(1 << 12)
	if r, _ := tbl.Get(MaxRadius); r.BlockCount != 256 {
		t.Fatalf("Get(%d).BlockCount = %d after wide Clamp", MaxRadius, r.BlockCount)
	}
}

func TestTable_BlockCounts(t *testing.T) {
	tbl := New("AMD", "", discard())
	counts := tbl.BlockCounts()

	if len(counts) != MaxRadius {
		t.Fatalf("BlockCounts() length = %d, want %d", len(counts), MaxRadius)
	}
	for i, c := range counts {
		r, _ := tbl.Get(i + 1)
		if int(c) != r.BlockCount {
			t.Errorf("BlockCounts()[%d] = %d, Get(%d).BlockCount = %d", i, c, i+1, r.BlockCount)
		}
	}
}

func TestStrategy_String(t *testing.T) {
	tests := []struct {
		s    Strategy
		want string
	}{
		{Manual, "manual"},
		{Direct, "direct"},
		{Subblock, "subblock"},
		{Strategy(9), "Unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Strategy(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestRegisterHeuristic(t *testing.T) {
	RegisterHeuristic(Heuristic{
		Name:  "test-gpu",
		Match: func(v string) bool { return v == "Test GPU Corp" },
		Breakpoints: []Breakpoint{
			{1, Route{8, Manual}},
			{MaxRadius, Route{8, Direct}},
		},
	})

	tbl := New("Test GPU Corp", "", discard())
	r, _ := tbl.Get(100)
	if r.BlockCount != 8 || r.Strategy != Direct {
		t.Fatalf("Get(100) = %+v, want {8 direct}", r)
	}

	// Other vendors must still hit their own presets.
	tbl = New("AMD", "", discard())
	r, _ = tbl.Get(100)
	if r.Strategy != Subblock {
		t.Fatalf("AMD Get(100).Strategy = %v, want subblock", r.Strategy)
	}
}

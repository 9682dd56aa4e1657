package window

import (
	"sync"
	"testing"
)

func TestNew_PrefilledWithBaseline(t *testing.T) {
	b := New(DefaultSize, Baseline)
	if b.Len() != 300 {
		t.Fatalf("Len() = %d, want 300", b.Len())
	}
	for i, p := range b.Points() {
		if p.X != i || p.Y != Baseline {
			t.Fatalf("point %d = %+v, want {%d %v}", i, p, i, Baseline)
		}
	}
}

func TestNew_NonPositiveSize(t *testing.T) {
	if got := New(0, Baseline).Len(); got != DefaultSize {
		t.Errorf("Len() = %d, want %d", got, DefaultSize)
	}
}

func TestAppend_KeepsLastN(t *testing.T) {
	const size = 300
	for _, n := range []int{1, 299, 300, 301, 1000, 1234} {
		b := New(size, Baseline)
		for i := 0; i < n; i++ {
			b.Append(float64(i))
		}

		vals := b.Values()
		if len(vals) != size {
			t.Fatalf("n=%d: len = %d, want %d", n, len(vals), size)
		}

		// Oldest first: baseline padding, then the appended values in order.
		for pos, v := range vals {
			idx := n - size + pos
			want := Baseline
			if idx >= 0 {
				want = float64(idx)
			}
			if v != want {
				t.Fatalf("n=%d: vals[%d] = %v, want %v", n, pos, v, want)
			}
		}
	}
}

func TestPoints_PositionsReassigned(t *testing.T) {
	b := New(5, 0)
	for i := 1; i <= 7; i++ {
		b.Append(float64(i * 10))
	}
	pts := b.Points()
	want := []Point{{0, 30}, {1, 40}, {2, 50}, {3, 60}, {4, 70}}
	for i := range want {
		if pts[i] != want[i] {
			t.Errorf("pts[%d] = %+v, want %+v", i, pts[i], want[i])
		}
	}
}

func TestSnapshot_IsImmutable(t *testing.T) {
	b := New(3, Baseline)
	snap := b.Points()
	b.Append(1)
	b.Append(2)
	for _, p := range snap {
		if p.Y != Baseline {
			t.Fatalf("snapshot changed after append: %+v", snap)
		}
	}
}

func TestVersion_IncrementsOnAppend(t *testing.T) {
	b := New(3, Baseline)
	v0 := b.Version()
	b.AppendRaw(0)
	if b.Version() != v0+1 {
		t.Errorf("Version() = %d, want %d", b.Version(), v0+1)
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		raw  int
		want float64
	}{
		{0, 50},
		{8, 49},
		{-8, 51},
		{399, 0.125},
		{-399, 99.875},
		{400, 0},
		{-400, 100},
		{401, 0},
		{-401, 100},
		{2040, 0},
		{-2040, 100},
		{2047, 0},
		{-2048, 100},
		{2048, 0},
	}

	for _, tt := range tests {
		if got := Scale(tt.raw); got != tt.want {
			t.Errorf("Scale(%d) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestAppendRaw_Scales(t *testing.T) {
	b := New(2, Baseline)
	b.AppendRaw(-2048)
	b.AppendRaw(80)
	vals := b.Values()
	if vals[0] != 100 || vals[1] != 40 {
		t.Errorf("Values() = %v, want [100 40]", vals)
	}
}

func TestBuffer_ConcurrentAppendAndRead(t *testing.T) {
	b := New(DefaultSize, Baseline)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 5000; i++ {
			b.AppendRaw(i % 4096)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				pts := b.Points()
				if len(pts) != DefaultSize {
					t.Errorf("snapshot len = %d", len(pts))
					return
				}
				for j, p := range pts {
					if p.X != j {
						t.Errorf("point %d has X=%d", j, p.X)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
}

package serialchat

import "testing"

func TestBufferPoolRecycles(t *testing.T) {
	bp := NewBufferPool(64)

	buf := bp.Get()
	if len(buf) != 64 {
		t.Fatalf("len = %d, want 64", len(buf))
	}
	buf[0] = 0xFF
	bp.Put(buf)

	again := bp.Get()
	if again[0] != 0 {
		t.Fatal("pooled buffer must come back cleared")
	}

	stats := bp.Stats()
	if stats.Gets != 2 || stats.Puts != 1 {
		t.Fatalf("stats: %+v", stats)
	}
}

func TestBufferPoolRejectsWrongSize(t *testing.T) {
	bp := NewBufferPool(64)
	bp.Put(make([]byte, 32))
	if got := bp.Stats().Puts; got != 0 {
		t.Fatalf("puts = %d, wrong-sized buffer must not be pooled", got)
	}
}

func TestPoolStatsHitRatio(t *testing.T) {
	ps := PoolStats{Gets: 10, Creates: 2}
	if got := ps.HitRatio(); got != 0.8 {
		t.Fatalf("hit ratio = %v", got)
	}
	if got := (PoolStats{}).HitRatio(); got != 0 {
		t.Fatalf("empty pool hit ratio = %v", got)
	}
}

func BenchmarkBufferPoolGetPut(b *testing.B) {
	bp := NewBufferPool(readBufSize)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf := bp.Get()
		bp.Put(buf)
	}
}

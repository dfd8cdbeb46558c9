package pools

import (
	"sync"
	"testing"
)

func TestBytePool_Get(t *testing.T) {
	pool := NewBytePool()

	tests := []struct {
		name     string
		size     int
		minCap   int
		maxCap   int
	}{
		{"tiny", 8, 8, TinySize},
		{"tiny_exact", TinySize, TinySize, TinySize},
		{"small", 32, 32, SmallSize},
		{"small_exact", SmallSize, SmallSize, SmallSize},
		{"medium", 128, 128, MediumSize},
		{"medium_exact", MediumSize, MediumSize, MediumSize},
		{"large", 512, 512, LargeSize},
		{"large_exact", LargeSize, LargeSize, LargeSize},
		{"huge", 2048, 2048, HugeSize},
		{"huge_exact", HugeSize, HugeSize, HugeSize},
		{"oversized", 10000, 10000, 10000}, // Allocated directly
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := pool.Get(tt.size)
			if len(b) != 0 {
				t.Errorf("Get(%d) length = %d, want 0", tt.size, len(b))
			}
			if cap(b) < tt.minCap {
				t.Errorf("Get(%d) capacity = %d, want >= %d", tt.size, cap(b), tt.minCap)
			}
		})
	}
}

func TestBytePool_GetSized(t *testing.T) {
	pool := NewBytePool()

	b := pool.GetSized(100)
	if len(b) != 100 {
		t.Errorf("GetSized(100) length = %d, want 100", len(b))
	}
	if cap(b) < 100 {
		t.Errorf("GetSized(100) capacity = %d, want >= 100", cap(b))
	}
}

func TestBytePool_PutAndReuse(t *testing.T) {
	pool := NewBytePool()

	// Get and return multiple buffers
	for i := 0; i < 10; i++ {
		b := pool.Get(64)
		b = append(b, "test data"...)
		pool.Put(b)
	}

	// Get again and verify it's clean
	b := pool.Get(64)
	if len(b) != 0 {
		t.Errorf("After Put, Get returned slice with length %d, want 0", len(b))
	}
}

func TestBytePool_OversizedNotPooled(t *testing.T) {
	pool := NewBytePool()

	// Large buffer should not cause issues
	large := make([]byte, MaxPool+1000)
	pool.Put(large) // Should not panic or error
}

func TestDefaultBytePool(t *testing.T) {
	b := GetBytes(100)
	if cap(b) < 100 {
		t.Errorf("GetBytes(100) capacity = %d, want >= 100", cap(b))
	}
	PutBytes(b)

	b2 := GetBytesSized(50)
	if len(b2) != 50 {
		t.Errorf("GetBytesSized(50) length = %d, want 50", len(b2))
	}
	PutBytes(b2)
}

func TestBytePool_Concurrent(t *testing.T) {
	pool := NewBytePool()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b := pool.Get(64)
				b = append(b, "concurrent test data"...)
				pool.Put(b)
			}
		}()
	}

	wg.Wait()
}

func BenchmarkBytePool_Get(b *testing.B) {
	pool := NewBytePool()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		buf := pool.Get(128)
		pool.Put(buf)
	}
}

func BenchmarkBytePool_GetWithoutPool(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = make([]byte, 0, 128)
	}
}


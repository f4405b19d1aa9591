// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestGetOrCreate(t *testing.T) {
	c := New[int]()
	builds := 0
	build := func() (int, error) {
		builds++
		return 42, nil
	}

	v, err := c.GetOrCreate("k", build)
	if err != nil || v != 42 {
		t.Fatalf("GetOrCreate = %d, %v", v, err)
	}
	v, err = c.GetOrCreate("k", build)
	if err != nil || v != 42 {
		t.Fatalf("second GetOrCreate = %d, %v", v, err)
	}
	if builds != 1 {
		t.Fatalf("build ran %d times, want 1", builds)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestFailedBuildNotCached(t *testing.T) {
	c := New[int]()
	boom := errors.New("boom")
	if _, err := c.GetOrCreate("k", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("failed build was cached")
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", c.Len())
	}
}

func TestDrain(t *testing.T) {
	c := New[string]()
	for i := 0; i < 40; i++ {
		key := fmt.Sprintf("k%d", i)
		if _, err := c.GetOrCreate(key, func() (string, error) { return key, nil }); err != nil {
			t.Fatal(err)
		}
	}
	released := 0
	c.Drain(func(string) { released++ })
	if released != 40 {
		t.Fatalf("released %d values, want 40", released)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after Drain", c.Len())
	}
}

func TestStats(t *testing.T) {
	c := New[int]()
	c.Get("missing")
	if _, err := c.GetOrCreate("k", func() (int, error) { return 1, nil }); err != nil {
		t.Fatal(err)
	}
	c.Get("k")
	hits, misses := c.Stats()
	if hits != 1 || misses != 2 {
		t.Fatalf("Stats() = %d hits, %d misses; want 1, 2", hits, misses)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k%d", i%10)
				if _, err := c.GetOrCreate(key, func() (int, error) { return i, nil }); err != nil {
					t.Error(err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	if c.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", c.Len())
	}
}

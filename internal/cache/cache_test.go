// Scuttle - Modular Web Backend Dispatcher
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scuttle

package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type owner struct{ name string }

func frozen(body string) *Buffer {
	b := NewBuffer()
	b.WriteString(body)
	b.Done()
	return b
}

func TestCache_GetPopulate(t *testing.T) {
	a, b := &owner{"a"}, &owner{"b"}
	c := New([]*owner{a, b})

	if _, ok := c.Get(a, 42); ok {
		t.Fatal("Get() on empty cache hit")
	}
	if err := c.Populate(a, 42, frozen("from a")); err != nil {
		t.Fatalf("Populate() error = %v", err)
	}

	buf, ok := c.Get(a, 42)
	if !ok || string(buf.Body()) != "from a" {
		t.Fatalf("Get(a, 42) = %v, %v", buf, ok)
	}
	if _, ok := c.Get(b, 42); ok {
		t.Error("tag 42 leaked across owners")
	}

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 2 || st.Populations != 1 || st.Entries != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestCache_TagZeroNeverStored(t *testing.T) {
	a := &owner{"a"}
	c := New([]*owner{a})

	if err := c.Populate(a, 0, frozen("x")); err != nil {
		t.Fatalf("Populate(tag 0) error = %v", err)
	}
	if _, ok := c.Get(a, 0); ok {
		t.Error("tag 0 was cached")
	}
	if c.Len(a) != 0 {
		t.Errorf("Len() = %d, want 0", c.Len(a))
	}
}

func TestCache_UnknownOwner(t *testing.T) {
	c := New([]*owner{{"known"}})
	stranger := &owner{"stranger"}

	if c.Known(stranger) {
		t.Error("Known(stranger) = true")
	}
	if err := c.Populate(stranger, 1, frozen("x")); err != nil {
		t.Errorf("Populate(unknown) error = %v, want nil", err)
	}
	if _, ok := c.Get(stranger, 1); ok {
		t.Error("Get(unknown) hit")
	}
	if n := c.Evict(stranger); n != 0 {
		t.Errorf("Evict(unknown) = %d, want 0", n)
	}
}

func TestCache_PopulateRejectsUnfrozen(t *testing.T) {
	a := &owner{"a"}
	c := New([]*owner{a})

	if err := c.Populate(a, 7, NewBuffer()); !errors.Is(err, ErrNotFrozen) {
		t.Errorf("Populate(unfrozen) error = %v, want ErrNotFrozen", err)
	}
	if err := c.Populate(a, 7, nil); !errors.Is(err, ErrNotFrozen) {
		t.Errorf("Populate(nil) error = %v, want ErrNotFrozen", err)
	}
}

func TestCache_LastWriteWins(t *testing.T) {
	a := &owner{"a"}
	c := New([]*owner{a})

	_ = c.Populate(a, 5, frozen("first"))
	_ = c.Populate(a, 5, frozen("second"))

	buf, _ := c.Get(a, 5)
	if string(buf.Body()) != "second" {
		t.Errorf("body = %q, want second", buf.Body())
	}
	if st := c.Stats(); st.Entries != 1 {
		t.Errorf("Entries = %d, want 1", st.Entries)
	}
}

func TestCache_Evict(t *testing.T) {
	a, b := &owner{"a"}, &owner{"b"}
	c := New([]*owner{a, b})
	for tag := int64(1); tag <= 3; tag++ {
		_ = c.Populate(a, tag, frozen("a"))
		_ = c.Populate(b, tag, frozen("b"))
	}

	if n := c.Evict(a); n != 3 {
		t.Errorf("Evict(a) = %d, want 3", n)
	}
	if _, ok := c.Get(a, 1); ok {
		t.Error("a still cached after Evict")
	}
	if _, ok := c.Get(b, 1); !ok {
		t.Error("Evict(a) removed b's entries")
	}

	if n := c.EvictAll(); n != 3 {
		t.Errorf("EvictAll() = %d, want 3", n)
	}
	st := c.Stats()
	if st.Entries != 0 || st.Evictions != 6 {
		t.Errorf("Stats() = %+v, want 0 entries and 6 evictions", st)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	owners := make([]*owner, 4)
	for i := range owners {
		owners[i] = &owner{fmt.Sprint(i)}
	}
	c := New(owners)

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			o := owners[g%len(owners)]
			for i := int64(1); i <= 200; i++ {
				if _, ok := c.Get(o, i); !ok {
					_ = c.Populate(o, i, frozen(fmt.Sprint(i)))
				}
				if i%50 == 0 {
					c.Evict(o)
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, o := range owners {
		total += c.Len(o)
	}
	if int64(total) != c.Stats().Entries {
		t.Errorf("entries counter = %d, stored = %d", c.Stats().Entries, total)
	}
}

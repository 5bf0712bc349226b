package config

import (
	"sync"
	"testing"
)

func TestStore_Swap(t *testing.T) {
	first := Default()
	s := NewStore(first)

	if s.Current() != first {
		t.Fatal("Current() is not the initial config")
	}

	var got []Change
	sub := s.Subscribe(func(c Change) { got = append(got, c) })

	second := first.Clone()
	second.Target = "cemu"
	if old := s.Swap(second, "file"); old != first {
		t.Error("Swap returned wrong previous snapshot")
	}
	if s.Current() != second || s.Version() != 1 {
		t.Errorf("Current/Version after swap = %p/%d", s.Current(), s.Version())
	}
	if len(got) != 1 || got[0].Old != first || got[0].New != second || got[0].Source != "file" {
		t.Errorf("observer saw %+v", got)
	}

	sub.Unsubscribe()
	s.Swap(first, "cli")
	if len(got) != 1 {
		t.Error("unsubscribed observer was notified")
	}
}

func TestStore_ObserverOrder(t *testing.T) {
	s := NewStore(nil)
	var order []int
	for i := 0; i < 5; i++ {
		s.Subscribe(func(Change) { order = append(order, i) })
	}
	s.Swap(Default(), "test")
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore(Default())
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if s.Current() == nil {
					t.Error("nil snapshot")
					return
				}
			}
		}()
	}
	for j := 0; j < 100; j++ {
		s.Swap(Default(), "test")
	}
	wg.Wait()
}

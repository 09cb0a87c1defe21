package kvstate

import (
	"sync"
	"testing"
)

func TestCreateIfAbsentFirstWriterWins(t *testing.T) {
	s := NewMemory[string]()

	if !s.CreateIfAbsent("draft-1", "first") {
		t.Fatal("expected first create to succeed")
	}
	if s.CreateIfAbsent("draft-1", "second") {
		t.Fatal("expected second create to be rejected")
	}

	got, ok := s.Get("draft-1")
	if !ok || got != "first" {
		t.Fatalf("unexpected value: %q ok=%v", got, ok)
	}
}

func TestCreateIfAbsentUnderConcurrency(t *testing.T) {
	s := NewMemory[int]()

	var wg sync.WaitGroup
	wins := make(chan int, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if s.CreateIfAbsent("key", n) {
				wins <- n
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}

func TestSetOverwritesAndDeleteAllowsRecreate(t *testing.T) {
	s := NewMemory[string]()
	s.Set("k", "a")
	s.Set("k", "b")
	if got, _ := s.Get("k"); got != "b" {
		t.Fatalf("unexpected value: %q", got)
	}

	s.Delete("k")
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected key to be gone")
	}
	if !s.CreateIfAbsent("k", "c") {
		t.Fatal("expected create after delete to succeed")
	}
}

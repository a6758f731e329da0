package app_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

// fakePush records every delivery it receives. Setting fail makes all
// deliveries error, which the broadcaster must treat as an unreachable
// endpoint.
type fakePush struct {
	mu       sync.Mutex
	fail     bool
	closed   bool
	messages []string
	lists    [][]string
	started  []string
	ended    []string
}

func (f *fakePush) ReceiveMessage(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("unreachable")
	}
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakePush) UpdateUserList(names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("unreachable")
	}
	f.lists = append(f.lists, append([]string(nil), names...))
	return nil
}

func (f *fakePush) NotifyChatStarted(ts string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("unreachable")
	}
	f.started = append(f.started, ts)
	return nil
}

func (f *fakePush) NotifyChatEnded(ts string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("unreachable")
	}
	f.ended = append(f.ended, ts)
	return nil
}

func (f *fakePush) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakePush) lastList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lists) == 0 {
		return nil
	}
	return f.lists[len(f.lists)-1]
}

func (f *fakePush) allMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func TestRegistryAddAndLookup(t *testing.T) {
	reg := app.NewClientRegistry()
	reg.Add("c1", "u1", &fakePush{}, "alice")
	reg.Add("c2", "u2", &fakePush{}, "bob")

	name, ok := reg.NameOf("c1")
	if !ok || name != "alice" {
		t.Fatalf("NameOf(c1) = %q, %v; want alice, true", name, ok)
	}
	if _, ok := reg.Client("c2"); !ok {
		t.Fatal("Client(c2) not found")
	}
	if reg.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", reg.Count())
	}
}

func TestRegistryAllNamesSorted(t *testing.T) {
	reg := app.NewClientRegistry()
	reg.Add("c1", "u1", &fakePush{}, "zoe")
	reg.Add("c2", "u2", &fakePush{}, "alice")
	reg.Add("c3", "u3", &fakePush{}, "bob")

	names := reg.AllNames()
	want := []string{"alice", "bob", "zoe"}
	if len(names) != len(want) {
		t.Fatalf("AllNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("AllNames() = %v, want %v", names, want)
		}
	}
}

func TestRegistryRemoveIdempotent(t *testing.T) {
	reg := app.NewClientRegistry()
	reg.Add("c1", "u1", &fakePush{}, "alice")

	reg.Remove("c1")
	reg.Remove("c1") // second removal must be a no-op
	reg.Remove("never-added")

	if _, ok := reg.NameOf("c1"); ok {
		t.Fatal("client still present after Remove")
	}
	if reg.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", reg.Count())
	}
}

func TestRegistryConcurrentMutation(t *testing.T) {
	reg := app.NewClientRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := core.ClientID(fmt.Sprintf("c%d", n))
			reg.Add(id, domain.UserID(fmt.Sprintf("u%d", n)), &fakePush{}, fmt.Sprintf("user%d", n))
			reg.AllNames()
			if n%2 == 0 {
				reg.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	if reg.Count() != 25 {
		t.Fatalf("Count() = %d, want 25", reg.Count())
	}
}

func TestRegistryTracksConnectionsPerUser(t *testing.T) {
	reg := app.NewClientRegistry()
	reg.Add("c1", "u", &fakePush{}, "alice")
	reg.Add("c2", "u", &fakePush{}, "alice")

	if got := len(reg.ClientsOf("u")); got != 2 {
		t.Fatalf("ClientsOf(u) has %d entries, want 2", got)
	}

	// Dropping one connection must leave the other registered.
	reg.Remove("c1")
	ids := reg.ClientsOf("u")
	if len(ids) != 1 || ids[0] != "c2" {
		t.Fatalf("ClientsOf(u) = %v after removal, want [c2]", ids)
	}
	if _, ok := reg.NameOf("c2"); !ok {
		t.Fatal("surviving connection lost its registration")
	}

	reg.Remove("c2")
	if got := len(reg.ClientsOf("u")); got != 0 {
		t.Fatalf("ClientsOf(u) has %d entries after full removal, want 0", got)
	}
}

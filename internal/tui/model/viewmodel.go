package model

import (
	"sync"

	"github.com/matheus3301/chatline/internal/bus"
	"github.com/matheus3301/chatline/internal/conversation"
	"github.com/matheus3301/chatline/internal/selection"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/tui/ui"
)

// ViewModel caches what the bus reports and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	snapshot *conversation.Snapshot
	status   status.State
	location string
	Flash    *ui.FlashModel

	refreshCh chan struct{}
}

// NewViewModel creates a view model starting from the given snapshot.
func NewViewModel(initial *conversation.Snapshot, location string) *ViewModel {
	if initial == nil {
		initial = &conversation.Snapshot{Phase: conversation.Idle}
	}
	return &ViewModel{
		snapshot:  initial,
		status:    status.Disconnected,
		location:  location,
		Flash:     ui.NewFlashModel(),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// Attach feeds every bus event into the view model until stop is called.
func (vm *ViewModel) Attach(b *bus.Bus) (stop func()) {
	ch, unsub := b.Subscribe("", 256)
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case evt := <-ch:
				if vm.Apply(evt) {
					vm.signalRefresh()
				}
			case <-quit:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			unsub()
			close(quit)
			wg.Wait()
		})
	}
}

// Apply folds one bus event into the view model and reports whether the
// UI needs to redraw.
func (vm *ViewModel) Apply(evt bus.Event) bool {
	switch evt.Kind {
	case bus.KindViewUpdated:
		snap, ok := evt.Payload.(*conversation.Snapshot)
		if !ok {
			return false
		}
		vm.mu.Lock()
		vm.snapshot = snap
		vm.mu.Unlock()
		return true
	case bus.KindTransport:
		c, ok := evt.Payload.(status.StatusChange)
		if !ok {
			return false
		}
		vm.mu.Lock()
		vm.status = c.To
		vm.mu.Unlock()
		return true
	case bus.KindSelection:
		c, ok := evt.Payload.(selection.Change)
		if !ok {
			return false
		}
		vm.mu.Lock()
		vm.location = c.Location
		vm.mu.Unlock()
		return true
	}
	return vm.Flash.Notice(evt)
}

// Snapshot returns the latest conversation snapshot.
func (vm *ViewModel) Snapshot() *conversation.Snapshot {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.snapshot
}

// Status returns the latest transport state.
func (vm *ViewModel) Status() status.State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Location returns the shareable link of the current selection.
func (vm *ViewModel) Location() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.location
}

// Unread sums unread counts across the roster.
func (vm *ViewModel) Unread() int {
	n := 0
	for _, c := range vm.Snapshot().Contacts {
		n += c.UnreadCount
	}
	return n
}

// Package notify carries transient user-facing notifications ("toasts")
// from services to whatever surface renders them, decoupled from any UI.
package notify

import (
	"reflect"
	"sync"
)

type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelSuccess {
		return "success"
	}
	return "error"
}

// Toast is a single transient message. Error toasts are deliberately
// generic; diagnostic detail goes to the log, not to the user.
type Toast struct {
	Level   Level
	Message string
}

// Bus fans toasts out to subscribers. Channels are buffered and emits never
// block; a subscriber that falls behind loses messages rather than stalling
// the emitting operation.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Toast
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel that receives subsequent toasts.
func (b *Bus) Subscribe() <-chan Toast {
	ch := make(chan Toast, 16)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Bus) Unsubscribe(ch <-chan Toast) {
	if ch == nil {
		return
	}
	target := reflect.ValueOf(ch).Pointer()
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if reflect.ValueOf(sub).Pointer() == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Success emits a success toast.
func (b *Bus) Success(msg string) {
	b.emit(Toast{Level: LevelSuccess, Message: msg})
}

// Error emits a generic failure toast.
func (b *Bus) Error(msg string) {
	b.emit(Toast{Level: LevelError, Message: msg})
}

func (b *Bus) emit(t Toast) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub <- t:
		default:
		}
	}
}

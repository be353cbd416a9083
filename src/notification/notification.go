// Package notification shows short user-facing messages. The GUI installs a
// desktop backend; until then messages only reach the log.
package notification

import (
	"sync"

	"github.com/rs/zerolog"

	"select2speak/src/logutil"
)

// Notifier shows a transient message, like a toast.
type Notifier interface {
	Notify(title, body string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(title, body string)

func (f NotifierFunc) Notify(title, body string) { f(title, body) }

const maxBody = 200

var (
	mu      sync.RWMutex
	backend Notifier
)

// SetBackend installs n as the desktop backend. A nil n restores log-only mode.
func SetBackend(n Notifier) {
	mu.Lock()
	backend = n
	mu.Unlock()
}

// Show logs the message and forwards it to the backend, if any. Long bodies
// are truncated.
func Show(title, body string) {
	if r := []rune(body); len(r) > maxBody {
		body = string(r[:maxBody]) + "..."
	}
	log := logutil.Component("notification")
	log.Info().Str("title", title).Msg(body)

	mu.RLock()
	n := backend
	mu.RUnlock()
	if n != nil {
		n.Notify(title, body)
	}
}

// Default returns a Notifier that goes through Show.
func Default() Notifier { return NotifierFunc(Show) }

// ShowBlockingError reports a setup failure that ends the process.
func ShowBlockingError(title, message string) {
	log := logutil.Component("notification")
	log.WithLevel(zerolog.FatalLevel).Str("title", title).Msg(message)
	mu.RLock()
	n := backend
	mu.RUnlock()
	if n != nil {
		n.Notify(title, message)
	}
}

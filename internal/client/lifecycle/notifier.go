package lifecycle

import (
	"time"

	"github.com/dmitrijs2005/hawachat/internal/models"
)

// Notifier receives change notifications for the presentation layer.
// Calls come from store and timer goroutines and must not block.
type Notifier interface {
	ConversationUpdated(a, b string)
	StatusUpdated(id string, status models.Status)
	ComposingChanged(peerID string, on bool)
}

// NopNotifier discards everything.
type NopNotifier struct{}

func (NopNotifier) ConversationUpdated(string, string) {}
func (NopNotifier) StatusUpdated(string, models.Status) {}
func (NopNotifier) ComposingChanged(string, bool) {}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, f func()) { time.AfterFunc(d, f) }

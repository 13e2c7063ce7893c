package cli

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/hawachat/internal/models"
)

// printNotifier prints incoming messages and the assistant's typing
// indicator. Own messages are echoed by the send commands instead.
type printNotifier struct {
	app *App

	mu   sync.Mutex
	seen map[string]struct{}
}

func (n *printNotifier) markSeen(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seen == nil {
		n.seen = make(map[string]struct{})
	}
	if _, ok := n.seen[id]; ok {
		return false
	}
	n.seen[id] = struct{}{}
	return true
}

func (n *printNotifier) ConversationUpdated(a, b string) {
	cur, ok := n.app.chat.Current()
	if !ok {
		return
	}
	var peer string
	switch cur.ID {
	case a:
		peer = b
	case b:
		peer = a
	default:
		return
	}

	msgs := n.app.chat.Conversation(peer)
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.From == cur.ID || !n.markSeen(last.ID) {
		return
	}

	if peer != n.app.openPeer() {
		n.app.printf("\n* new message from %s (open %s)\n", peer, peer)
		return
	}
	n.app.printf("\n%s\n", formatMessage(last, cur.ID))
}

func (n *printNotifier) StatusUpdated(id string, status models.Status) {
	n.app.log.Debug(context.Background(), "message status", "id", id, "status", status)
}

func (n *printNotifier) ComposingChanged(peerID string, on bool) {
	if !on || peerID != n.app.openPeer() {
		return
	}
	n.app.printf("\n* %s is typing...\n", peerID)
}

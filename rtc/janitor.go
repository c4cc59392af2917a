package rtc

import (
	"context"
	"time"
)

// Janitor periodically closes attempts that never opened a data channel and
// forgets stale candidate buffers and tombstones. It returns when ctx ends.
func (n *Negotiator) Janitor(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.JanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n.sweep(n.opts.Now())
		}
	}
}

func (n *Negotiator) sweep(now time.Time) {
	timeout := n.opts.NegotiationTimeout
	bufferTTL := timeout
	if bufferTTL <= 0 {
		bufferTTL = n.opts.TombstoneTTL
	}

	expired := make(map[string]*peerRecord)
	n.mu.Lock()
	if timeout > 0 {
		for id, rec := range n.peers {
			if rec.state < StateDataChannelOpen && now.Sub(rec.created) > timeout {
				expired[id] = rec
			}
		}
	}
	for id, buf := range n.buffers {
		if now.Sub(buf.updated) > bufferTTL {
			delete(n.buffers, id)
		}
	}
	for id, at := range n.closed {
		if now.Sub(at) > n.opts.TombstoneTTL {
			delete(n.closed, id)
		}
	}
	n.mu.Unlock()

	for id, rec := range expired {
		if n.closeIf(id, rec) {
			n.log.WithField("conn", id).Warn("negotiation timed out")
		}
	}
}

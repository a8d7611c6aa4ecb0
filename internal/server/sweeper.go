package server

import (
	"time"
)

// sweepLoop is the liveness safety net: every sweep interval it reconciles
// the registry against connections that died without a disconnect signal.
func (g *Gateway) sweepLoop() {
	ticker := time.NewTicker(g.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.stop:
			return
		}
	}
}

// sweep prunes dead connections for every registered user. It always
// completes a full pass: a stale entry for one user never blocks
// reconciling the rest.
func (g *Gateway) sweep() {
	for userId, conns := range g.registry.snapshot() {
		for _, c := range conns {
			if c.alive() {
				continue
			}

			g.log.Printf("sweeper reaping dead connection %s of user %d", c.id, userId)
			g.stats.Incr(metricSweeperReaps)
			g.timers.CancelHeartbeat(c.id)
			g.leaveAllRooms(c)
			c.stopClient()

			removed, wentOffline := g.registry.remove(userId, c.id)
			if !removed {
				continue
			}

			g.stats.Decr(metricActiveConnections)
			if wentOffline {
				g.setUserOffline(userId)
			}
		}
	}
}

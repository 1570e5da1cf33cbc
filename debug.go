package trafficview

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// globalDebug enables tree sanity checks on every node operation. It is
// switched on by Scene.SetDebugMode.
var globalDebug bool

// debugStats holds per-frame timing and draw metrics.
// Only populated when Scene.debug is true.
type debugStats struct {
	updateTime    time.Duration
	collectTime   time.Duration
	sortTime      time.Duration
	submitTime    time.Duration
	nodeCount     int
	triangleCount int
	drawCallCount int
	agentCount    int
}

// debugLog writes timing and draw stats at Debug level.
func (s *Scene) debugLog(stats debugStats) {
	if !s.debug {
		return
	}
	total := stats.collectTime + stats.sortTime + stats.submitTime
	logger.WithFields(logrus.Fields{
		"update":    stats.updateTime,
		"collect":   stats.collectTime,
		"sort":      stats.sortTime,
		"submit":    stats.submitTime,
		"total":     total,
		"nodes":     stats.nodeCount,
		"triangles": stats.triangleCount,
		"drawCalls": stats.drawCallCount,
		"agents":    stats.agentCount,
	}).Debug("frame")
}

// debugCheckDisposed panics with a descriptive message when a disposed node is
// used in a tree operation. In release mode callers skip this entirely.
func debugCheckDisposed(n *Node, op string) {
	if n.disposed {
		panic(fmt.Sprintf("trafficview debug: %s on disposed node %q (ID was %d)", op, n.Name, n.ID))
	}
}

const debugMaxTreeDepth = 32

// debugCheckTreeDepth warns if tree depth exceeds the threshold.
func debugCheckTreeDepth(n *Node) {
	depth := 0
	for p := n; p != nil; p = p.Parent {
		depth++
	}
	if depth > debugMaxTreeDepth {
		logger.WithFields(logrus.Fields{"node": n.Name, "depth": depth}).
			Warn("scene tree deeper than expected")
	}
}

// Agents all hang off one container, so the threshold is generous.
const debugMaxChildCount = 20000

// debugCheckChildCount warns if a node has an unusually large child list.
func debugCheckChildCount(n *Node) {
	if len(n.children) > debugMaxChildCount {
		logger.WithFields(logrus.Fields{"node": n.Name, "children": len(n.children)}).
			Warn("node has too many children")
	}
}

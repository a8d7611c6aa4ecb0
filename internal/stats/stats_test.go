package stats

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sparkmatch/sparkd/internal/testutil"
)

// expvar rejects duplicate map names process-wide, so a single test
// exercises the whole updater.
func TestStatsUpdater(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux(), testutil.TestLogger(t))
	su.Run()
	defer su.Stop()

	su.RegisterMetric("NumActiveConnections")
	assert.NotNil(t, su.vars.Get("NumActiveConnections"), "expected metric to be registered")

	su.Incr("NumActiveConnections")
	su.Decr("NumActiveConnections")

	assert.NotPanics(t, func() {
		su.Incr("NoSuchMetric")
	})
}

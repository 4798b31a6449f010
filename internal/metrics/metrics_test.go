package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveStorage(t *testing.T) {
	before := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("create", "success"))

	ObserveStorage("create", "success", time.Now().Add(-10*time.Millisecond))
	ObserveStorage("create", "success", time.Now())

	after := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("create", "success"))
	assert.Equal(t, before+2, after)
}

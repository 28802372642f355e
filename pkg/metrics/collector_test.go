package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	counts Counts
	err    error
}

func (s *stubSource) Counts() (Counts, error) { return s.counts, s.err }

func TestCollectorSetsGauges(t *testing.T) {
	src := &stubSource{counts: Counts{
		ParcelsByStatus: map[string]int{"ready": 2, "delivered": 1},
		UsersByRole:     map[string]int{"owner": 3, "transporter": 1},
		UsersPending:    2,
	}}
	c := NewCollector(src)

	c.collect()

	assert.Equal(t, float64(2), testutil.ToFloat64(ParcelsTotal.WithLabelValues("ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ParcelsTotal.WithLabelValues("delivered")))
	assert.Equal(t, float64(3), testutil.ToFloat64(UsersTotal.WithLabelValues("owner")))
	assert.Equal(t, float64(2), testutil.ToFloat64(UsersPendingApproval))

	// a status that emptied out reads zero, not its last value
	src.counts = Counts{
		ParcelsByStatus: map[string]int{"delivered": 3},
		UsersByRole:     map[string]int{"owner": 3},
	}
	c.collect()

	assert.Equal(t, float64(0), testutil.ToFloat64(ParcelsTotal.WithLabelValues("ready")))
	assert.Equal(t, float64(3), testutil.ToFloat64(ParcelsTotal.WithLabelValues("delivered")))
	assert.Equal(t, float64(0), testutil.ToFloat64(UsersPendingApproval))
}

func TestCollectorKeepsGaugesOnSourceError(t *testing.T) {
	src := &stubSource{counts: Counts{
		ParcelsByStatus: map[string]int{"ready": 4},
		UsersPending:    1,
	}}
	c := NewCollector(src)
	c.collect()

	src.err = errors.New("store closed")
	src.counts = Counts{}
	c.collect()

	assert.Equal(t, float64(4), testutil.ToFloat64(ParcelsTotal.WithLabelValues("ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(UsersPendingApproval))
}

func TestCollectorStartCollectsImmediately(t *testing.T) {
	src := &stubSource{counts: Counts{UsersPending: 7}}
	c := NewCollector(src)

	c.Start()
	defer c.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(UsersPendingApproval) == 7
	}, 2*time.Second, 10*time.Millisecond)
}

package systopic

import (
	"testing"

	"github.com/nimbus-mqtt/subindex/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSysTopicIsolatedFromGeneralMatch(t *testing.T) {
	idx := New()
	idx.Add(record.Subscription{ClientID: "c1", Filter: "$SYS/broker/uptime"})

	matches := idx.MatchTopics("$SYS/broker/uptime")
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ClientID)

	// A regular topic never resolves against the sys index, even if a
	// filter happens to share a level name.
	assert.Empty(t, idx.MatchTopics("broker/uptime"))
}

func TestSysTopicClearClient(t *testing.T) {
	idx := New()
	idx.Add(record.Subscription{ClientID: "c1", Filter: "$SYS/broker/uptime"})
	idx.ClearClient("c1")
	assert.Empty(t, idx.MatchTopics("$SYS/broker/uptime"))
}

package pgnotify_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tablebill/realtime"
	"github.com/xraph/tablebill/realtime/pgnotify"
	"github.com/xraph/tablebill/split"
)

func TestPayloadFits(t *testing.T) {
	ev := realtime.NewEvent("t1", realtime.FullRefresh{Reason: "test"})
	ev.Origin = "node-a"

	payload, err := pgnotify.Payload(ev)
	require.NoError(t, err)

	got, err := realtime.Decode([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, ev.ID.String(), got.ID.String())
	assert.Equal(t, "node-a", got.Origin)
}

func TestPayloadTooLargeBecomesFullRefresh(t *testing.T) {
	entries := make([]*split.SplitPayment, 0, 200)
	for i := 0; i < 200; i++ {
		entries = append(entries, &split.SplitPayment{ParticipantKey: strings.Repeat("x", 40)})
	}
	ev := realtime.NewEvent("t1", realtime.SplitUpdate{Entries: entries})
	ev.Origin = "node-a"

	payload, err := pgnotify.Payload(ev)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(payload), pgnotify.MaxPayload)

	got, err := realtime.Decode([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, realtime.KindFullRefresh, got.Kind)
	assert.Equal(t, "t1", got.TableID)
	assert.Equal(t, "node-a", got.Origin)
}

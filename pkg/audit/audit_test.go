package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNopSinkDiscardsEvents(t *testing.T) {
	var s Sink = NopSink{}
	err := s.Record(context.Background(), Event{
		FilterName: "events",
		Action:     ActionCreate,
		Outcome:    "ok",
		At:         time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestNewEventAssignsID(t *testing.T) {
	ev := NewEvent("events", ActionFlush, "ok", time.Now())
	require.NotEmpty(t, ev.ID)
	require.Equal(t, "events", ev.FilterName)
	require.Equal(t, ActionFlush, ev.Action)
}

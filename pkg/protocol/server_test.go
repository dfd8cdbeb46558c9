package protocol

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dd0wney/bloomd/pkg/logging"
	"github.com/dd0wney/bloomd/pkg/metrics"
)

func TestTCPServerRoundTrip(t *testing.T) {
	exec := newFakeExecutor()
	srv, err := NewTCPServer("127.0.0.1:0", exec, logging.NewDefaultLogger(), metrics.NewRegistry(), time.Second)
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Shutdown(context.Background())

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("create events\n"))
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "Done\n", line)

	_, err = conn.Write([]byte("set events foo\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "Yes\n", line)

	_, err = conn.Write([]byte("check events foo\n"))
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "Yes\n", line)
}

func TestUDPServerNeverReplies(t *testing.T) {
	exec := newFakeExecutor()
	srv, err := NewUDPServer("127.0.0.1:0", exec, logging.NewDefaultLogger(), metrics.NewRegistry())
	require.NoError(t, err)
	go srv.Serve()
	defer srv.Shutdown(context.Background())

	conn, err := net.Dial("udp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("create events\nset events foo\n"))
	require.NoError(t, err)

	// No reply should arrive; a short read deadline confirms silence.
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 64)
	_, err = conn.Read(buf)
	require.Error(t, err, "UDP must never reply")

	// But the side effect did happen: poll until Create is observed
	// (goroutine-scheduled).
	require.Eventually(t, func() bool {
		return exec.names["events"]
	}, time.Second, 10*time.Millisecond)
}

package protocol

import (
	"bufio"
	"context"
	"net"
	"strings"
	"time"

	"github.com/dd0wney/bloomd/pkg/logging"
	"github.com/dd0wney/bloomd/pkg/metrics"
)

// TCPServer accepts line-oriented connections and writes a reply per
// request line. Each connection is handled on its own goroutine;
// Dispatch itself is safe for concurrent use across connections since
// Executor (the Manager) owns all of its own locking.
type TCPServer struct {
	listener net.Listener
	exec     Executor
	logger   logging.Logger
	metrics  *metrics.Registry

	idleTimeout time.Duration

	shutdown chan struct{}
	closed   bool
}

// NewTCPServer binds addr and returns a server ready to Serve.
func NewTCPServer(addr string, exec Executor, logger logging.Logger, reg *metrics.Registry, idleTimeout time.Duration) (*TCPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	return &TCPServer{
		listener:    ln,
		exec:        exec,
		logger:      logger,
		metrics:     reg,
		idleTimeout: idleTimeout,
		shutdown:    make(chan struct{}),
	}, nil
}

// Addr returns the bound local address, useful when addr was ":0".
func (s *TCPServer) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until Shutdown is called.
func (s *TCPServer) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				s.logger.Warn("tcp accept error", logging.Error(err))
				continue
			}
		}
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
			_ = tc.SetKeepAlivePeriod(30 * time.Second)
		}
		go s.handleConn(conn)
	}
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, 4096)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = line[:len(line)-1] // drop the \n; parseLine strips a trailing \r

		start := time.Now()
		reply := Dispatch(s.exec, line)
		s.metrics.RecordCommand(commandName(line), outcomeFor(reply), time.Since(start))

		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if _, err := conn.Write([]byte(reply + "\n")); err != nil {
			return
		}
	}
}

// Shutdown stops accepting new connections.
func (s *TCPServer) Shutdown(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.shutdown)
	return s.listener.Close()
}

// UDPServer reads datagrams, each of which may contain multiple
// newline-separated request lines, and never replies.
type UDPServer struct {
	conn    *net.UDPConn
	exec    Executor
	logger  logging.Logger
	metrics *metrics.Registry

	shutdown chan struct{}
	closed   bool
}

// NewUDPServer binds addr for datagram reads.
func NewUDPServer(addr string, exec Executor, logger logging.Logger, reg *metrics.Registry) (*UDPServer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &UDPServer{conn: conn, exec: exec, logger: logger, metrics: reg, shutdown: make(chan struct{})}, nil
}

// Addr returns the bound local address.
func (s *UDPServer) Addr() net.Addr { return s.conn.LocalAddr() }

// Serve reads datagrams until Shutdown is called.
func (s *UDPServer) Serve() error {
	buf := make([]byte, MaxLineBytes)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				s.logger.Warn("udp read error", logging.Error(err))
				continue
			}
		}
		s.processDatagram(buf[:n])
	}
}

func (s *UDPServer) processDatagram(data []byte) {
	lines := splitDatagramLines(data)
	for _, line := range lines {
		if line == "" {
			continue
		}
		start := time.Now()
		reply := Dispatch(s.exec, line)
		s.metrics.RecordCommand(commandName(line), outcomeFor(reply), time.Since(start))
		// UDP never replies; Dispatch is still invoked purely
		// for its side effects and so errors are logged, not returned.
		if outcomeFor(reply) == "error" {
			s.logger.Warn("udp command produced an error reply", logging.String("reply", reply))
		}
	}
}

// Shutdown stops reading new datagrams.
func (s *UDPServer) Shutdown(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.shutdown)
	return s.conn.Close()
}

func splitDatagramLines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}

func commandName(line string) string {
	for i, c := range line {
		if c == ' ' {
			return line[:i]
		}
	}
	return line
}

func outcomeFor(reply string) string {
	if strings.HasPrefix(reply, "Client Error") || strings.HasPrefix(reply, "Internal Error") {
		return "error"
	}
	if reply == "Filter does not exist" {
		return "not_found"
	}
	return "ok"
}

package e2etest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/myrjola/planfit/internal/logging"
)

// Server is a running application instance for end-to-end tests.
type Server struct {
	url        string
	client     *Client
	db         *sql.DB
	cancel     context.CancelCauseFunc
	serverDone chan struct{}
}

// Log keys the application uses to announce where it can be reached.
const (
	LogAddrKey = "addr"
	LogDsnKey  = "sqlDsn"
)

// RunFunc starts the application. It has the signature of the run function in cmd/web.
type RunFunc func(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error

// StartServer starts the application, waits until /api/healthy answers, and returns a handle with a client
// pointed at it.
//
// The listen address and the SQLite DSN are picked up from the log records keyed LogAddrKey and LogDsnKey.
// Use testhelpers.NewWriter as logSink to route server logs to the test output.
func StartServer(t *testing.T, logSink io.Writer, lookupEnv func(string) (string, bool), run RunFunc) (*Server, error) {
	var server *Server
	t.Cleanup(func() {
		if server != nil {
			server.Shutdown()
		}
	})
	ctx, cancel := context.WithCancelCause(t.Context())
	serverDone := make(chan struct{})

	addrCh := make(chan string, 1)
	dsnCh := make(chan string, 1)
	capture := func(_ []string, a slog.Attr) slog.Attr {
		var ch chan string
		switch a.Key {
		case LogAddrKey:
			ch = addrCh
		case LogDsnKey:
			ch = dsnCh
		default:
			return a
		}
		select {
		case ch <- a.Value.String():
		default:
		}
		return a
	}
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: capture,
	})))

	go func() {
		defer close(serverDone)
		if err := run(ctx, logger, lookupEnv); err != nil {
			cancel(err)
		}
	}()

	var addr, dsn string
	for addr == "" || dsn == "" {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("server stopped before ready: %w", context.Cause(ctx))
		case addr = <-addrCh:
		case dsn = <-dsnCh:
		}
	}

	serverURL := "http://" + addr
	client, err := NewClient(serverURL, "localhost", "http://localhost:0")
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}
	if err = client.WaitForReady(ctx, "/api/healthy"); err != nil {
		return nil, fmt.Errorf("wait for ready: %w", err)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	server = &Server{
		url:        serverURL,
		client:     client,
		db:         db,
		cancel:     cancel,
		serverDone: serverDone,
	}
	return server, nil
}

// Client returns the default same-origin client.
func (s *Server) Client() *Client {
	return s.client
}

// NewClient returns a fresh client without any session, e.g. for a second user.
func (s *Server) NewClient() (*Client, error) {
	return NewClient(s.url, "localhost", "http://localhost:0")
}

// CrossSiteClient returns a client that marks its requests as coming from another site.
func (s *Server) CrossSiteClient() (*Client, error) {
	return NewClientWithSecFetchSite(s.url, "localhost", "http://localhost:0", "cross-site")
}

func (s *Server) URL() string {
	return s.url
}

// DB gives tests direct access to the application database, e.g. for promoting a user to admin.
func (s *Server) DB() *sql.DB {
	return s.db
}

// PromoteAdmin marks every registered user as admin.
func (s *Server) PromoteAdmin(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET is_admin = 1"); err != nil {
		return fmt.Errorf("promote admin: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() {
	s.cancel(nil)
	<-s.serverDone
}

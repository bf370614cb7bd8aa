package bench

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

type resultEcho struct {
	Command string `json:"command"`
}

type recordingServer struct {
	mtx      sync.Mutex
	commands []string
	listener net.Listener
}

func (s *recordingServer) broadcast(ctx *rpctypes.Context, command string) (*resultEcho, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.commands = append(s.commands, command)
	return &resultEcho{Command: command}, nil
}

func (s *recordingServer) received() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return append([]string(nil), s.commands...)
}

func startRecordingServer(t *testing.T) *recordingServer {
	s := &recordingServer{}
	routes := map[string]*rpcserver.RPCFunc{
		DefaultMethod: rpcserver.NewRPCFunc(s.broadcast, "command"),
	}
	logger := log.TestingLogger()

	mux := http.NewServeMux()
	wm := rpcserver.NewWebsocketManager(routes)
	wm.SetLogger(logger)
	mux.HandleFunc("/websocket", wm.WebsocketHandler)
	rpcserver.RegisterRPCFuncs(mux, routes, logger)

	config := rpcserver.DefaultConfig()
	listener, err := rpcserver.Listen("tcp://127.0.0.1:0", config)
	require.NoError(t, err)
	go rpcserver.Serve(listener, mux, logger, config) // nolint: errcheck
	s.listener = listener
	t.Cleanup(func() { listener.Close() })
	return s
}

func TestTransacterSendsCommands(t *testing.T) {
	s := startRecordingServer(t)

	tr := NewTransacter(s.listener.Addr().String(), 2, 10, 5, DefaultMethod)
	tr.SetLogger(log.TestingLogger())
	require.NoError(t, tr.Start())

	require.Eventually(t, func() bool {
		return len(s.received()) >= 20
	}, 5*time.Second, 20*time.Millisecond)
	tr.Stop()

	commands := s.received()
	assert.GreaterOrEqual(t, tr.Sent(), int64(len(commands)))

	seen := make(map[string]struct{})
	for _, cmd := range commands {
		assert.True(t, strings.HasPrefix(cmd, "key"), cmd)
		assert.Contains(t, cmd, "=")
		_, dup := seen[cmd]
		assert.False(t, dup, "duplicate command %s", cmd)
		seen[cmd] = struct{}{}
	}
}

func TestTransacterConnectError(t *testing.T) {
	tr := NewTransacter("127.0.0.1:1", 1, 10, 5, DefaultMethod)
	assert.Error(t, tr.Start())
}

package bench

import (
	"encoding/json"
	"fmt"

	// it is ok to use math/rand here: we do not need a cryptographically secure random
	// number generator here and we can run the tests a bit faster
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	jsonrpc "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

const (
	sendTimeout = 10 * time.Second
	// see https://github.com/tendermint/tendermint/blob/master/rpc/lib/server/handlers.go
	pingPeriod = (30 * 9 / 10) * time.Second

	DefaultMethod = "broadcast_command"
)

// Transacter 通过websocket以固定速率向节点发送key=value命令
type Transacter struct {
	Target      string
	Rate        int
	Connections int
	Method      string
	// key的取值范围
	Keys int

	conns       []*websocket.Conn
	connsBroken []int32
	startingWg  sync.WaitGroup
	endingWg    sync.WaitGroup
	stopped     int32
	sent        int64
	nonce       int64

	logger log.Logger
}

func NewTransacter(target string, connections, rate int, keys int, method string) *Transacter {
	return &Transacter{
		Target:      target,
		Rate:        rate,
		Keys:        keys,
		Connections: connections,
		Method:      method,
		conns:       make([]*websocket.Conn, connections),
		connsBroken: make([]int32, connections),
		logger:      log.NewNopLogger(),
	}
}

// SetLogger lets you set your own logger
func (t *Transacter) SetLogger(l log.Logger) {
	t.logger = l
}

// Sent 已经写出的命令数
func (t *Transacter) Sent() int64 {
	return atomic.LoadInt64(&t.sent)
}

// Start opens N = `t.Connections` connections to the target and creates read
// and write goroutines for each connection.
func (t *Transacter) Start() error {
	atomic.StoreInt32(&t.stopped, 0)

	rand.Seed(time.Now().Unix())

	for i := 0; i < t.Connections; i++ {
		c, _, err := connect(t.Target)
		if err != nil {
			for _, opened := range t.conns[:i] {
				opened.Close()
			}
			return err
		}
		t.conns[i] = c
	}

	t.startingWg.Add(t.Connections)
	t.endingWg.Add(2 * t.Connections)
	for i := 0; i < t.Connections; i++ {
		go t.sendLoop(i)
		go t.receiveLoop(i)
	}

	t.startingWg.Wait()

	return nil
}

// Stop closes the connections.
func (t *Transacter) Stop() {
	atomic.StoreInt32(&t.stopped, 1)
	t.endingWg.Wait()
	for _, c := range t.conns {
		c.Close()
	}
}

func (t *Transacter) isStopped() bool {
	return atomic.LoadInt32(&t.stopped) == 1
}

func (t *Transacter) isBroken(connIndex int) bool {
	return atomic.LoadInt32(&t.connsBroken[connIndex]) == 1
}

func (t *Transacter) markBroken(connIndex int) {
	atomic.StoreInt32(&t.connsBroken[connIndex], 1)
}

// receiveLoop reads responses from the connection.
// 服务端关闭连接后退出
func (t *Transacter) receiveLoop(connIndex int) {
	c := t.conns[connIndex]
	defer t.endingWg.Done()
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !t.isStopped() {
				t.logger.Error(
					fmt.Sprintf("failed to read response on conn %d", connIndex),
					"err",
					err,
				)
			}
			return
		}
		if t.isBroken(connIndex) {
			return
		}
	}
}

// sendLoop generates commands at a given rate.
func (t *Transacter) sendLoop(connIndex int) {
	started := false
	// Close the starting waitgroup, in the event that this fails to start
	defer func() {
		if !started {
			t.startingWg.Done()
		}
	}()
	c := t.conns[connIndex]

	c.SetPingHandler(func(message string) error {
		err := c.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(sendTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		} else if e, ok := err.(net.Error); ok && e.Temporary() {
			return nil
		}
		return err
	})

	logger := t.logger.With("addr", c.RemoteAddr())

	pingsTicker := time.NewTicker(pingPeriod)
	cmdsTicker := time.NewTicker(1 * time.Second)
	defer func() {
		pingsTicker.Stop()
		cmdsTicker.Stop()
		t.endingWg.Done()
	}()

	// 第一批命令立即发送
	if !t.sendBatch(c, connIndex, logger) {
		return
	}
	t.startingWg.Done()
	started = true

	for {
		select {
		case <-cmdsTicker.C:
			if t.isStopped() {
				break
			}
			if !t.sendBatch(c, connIndex, logger) {
				return
			}

		case <-pingsTicker.C:
			// go-rpc server closes the connection in the absence of pings
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				err = errors.Wrap(err,
					fmt.Sprintf("failed to write ping message on conn #%d", connIndex))
				logger.Error(err.Error())
				t.markBroken(connIndex)
			}
		}

		if t.isStopped() {
			// To cleanly close a connection, a client should send a close
			// frame and wait for the server to close the connection.
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				err = errors.Wrap(err,
					fmt.Sprintf("failed to write close message on conn #%d", connIndex))
				logger.Error(err.Error())
				t.markBroken(connIndex)
			}

			return
		}
	}
}

// sendBatch 一秒内发送Rate个命令，写失败时返回false
func (t *Transacter) sendBatch(c *websocket.Conn, connIndex int, logger log.Logger) bool {
	startTime := time.Now()
	endTime := startTime.Add(time.Second)
	numSent := t.Rate

	now := time.Now()
	for i := 0; i < t.Rate; i++ {
		paramsJSON, err := json.Marshal(map[string]interface{}{"command": t.generateCommand()})
		if err != nil {
			logger.Error("failed to encode params", "err", err)
			return false
		}

		c.SetWriteDeadline(now.Add(sendTimeout))
		err = c.WriteJSON(jsonrpc.RPCRequest{
			JSONRPC: "2.0",
			ID:      jsonrpc.JSONRPCStringID("hotbft-bench"),
			Method:  t.Method,
			Params:  json.RawMessage(paramsJSON),
		})
		if err != nil {
			err = errors.Wrap(err,
				fmt.Sprintf("commands send failed on connection #%d", connIndex))
			t.markBroken(connIndex)
			logger.Error(err.Error())
			return false
		}
		atomic.AddInt64(&t.sent, 1)

		// cache the time.Now() reads to save time.
		if i%5 == 0 {
			now = time.Now()
			if now.After(endTime) {
				// Plus one accounts for sending this command
				numSent = i + 1
				break
			}
		}
	}

	logger.Info(fmt.Sprintf("sent %d commands", numSent), "took", time.Since(startTime))
	return true
}

func connect(host string) (*websocket.Conn, *http.Response, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	return websocket.DefaultDialer.Dial(u.String(), nil)
}

// generateCommand 每个命令都不同，避免被mempool当作重复命令
func (t *Transacter) generateCommand() string {
	nonce := atomic.AddInt64(&t.nonce, 1)
	key := rand.Intn(t.Keys) + 1
	return fmt.Sprintf("key%d=%d-%d", key, rand.Intn(200), nonce)
}

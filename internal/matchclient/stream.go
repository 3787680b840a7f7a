package matchclient

import (
	"context"
	"sync"
	"time"

	"github.com/park285/cheese-matchd/pkg/gamedto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type StreamState string

const (
	StateDisconnected StreamState = "disconnected"
	StateConnecting   StreamState = "connecting"
	StateConnected    StreamState = "connected"
	StateFailed       StreamState = "failed"
)

type EventCallback func(ev gamedto.Event)

type StateCallback func(state StreamState)

// Stream receives game events over WebSocket. There is no automatic
// reconnect: the server ends the game when a player's stream drops.
type Stream struct {
	url string

	conn   *websocket.Conn
	state  StreamState
	stateM sync.RWMutex

	onEvent []EventCallback
	onState []StateCallback
	cbM     sync.RWMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewStream(wsURL string) *Stream {
	return &Stream{url: wsURL, state: StateDisconnected, stopCh: make(chan struct{})}
}

func (s *Stream) OnEvent(cb EventCallback) {
	s.cbM.Lock()
	s.onEvent = append(s.onEvent, cb)
	s.cbM.Unlock()
}

func (s *Stream) OnStateChange(cb StateCallback) {
	s.cbM.Lock()
	s.onState = append(s.onState, cb)
	s.cbM.Unlock()
}

func (s *Stream) State() StreamState {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.state
}

func (s *Stream) Connect(ctx context.Context) error {
	s.setState(StateConnecting)
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	s.conn = conn
	s.rootCtx, s.rootCancel = context.WithCancel(context.Background())
	s.setState(StateConnected)

	s.wg.Add(1)
	go s.listen()
	return nil
}

func (s *Stream) listen() {
	defer s.wg.Done()
	for {
		var ev gamedto.Event
		if err := wsjson.Read(s.rootCtx, s.conn, &ev); err != nil {
			if !s.stopping() {
				s.setState(StateDisconnected)
			}
			return
		}
		s.cbM.RLock()
		cbs := append([]EventCallback(nil), s.onEvent...)
		s.cbM.RUnlock()
		for _, cb := range cbs {
			cb(ev)
		}
	}
}

// Close ends the stream and waits for the reader to exit or ctx to expire.
func (s *Stream) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if s.rootCancel != nil {
			s.rootCancel()
		}
		s.setState(StateDisconnected)
		return nil
	}
}

func (s *Stream) setState(state StreamState) {
	s.stateM.Lock()
	s.state = state
	s.stateM.Unlock()

	s.cbM.RLock()
	cbs := append([]StateCallback(nil), s.onState...)
	s.cbM.RUnlock()
	for _, cb := range cbs {
		cb(state)
	}
}

func (s *Stream) stopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

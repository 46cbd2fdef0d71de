package replication

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/picksy/syncd/internal/models"
	"github.com/picksy/syncd/internal/observability"
	"github.com/picksy/syncd/internal/store"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	outboxSize   = 1024
	maxFrameSize = 32 << 20
)

// ErrOutboxOverflow ends a session whose relay cannot keep up; the next
// session replays from the acknowledged watermark
var ErrOutboxOverflow = errors.New("replication outbox overflow")

// DefaultSubscriptions are the queries announced to the relay
var DefaultSubscriptions = []string{
	"SELECT * FROM " + models.PhotosCollection,
	"SELECT * FROM " + models.StateCollection,
}

// Replica is the local store as seen by the link
type Replica interface {
	LocalPeer() models.Peer
	OnCommit(fn func(store.Commit)) func()
	ChangesSince(ctx context.Context, after uint64) ([]store.Commit, error)
	ApplyRemote(ctx context.Context, collection string, doc store.Document) error
	RemoveRemote(ctx context.Context, collection, id string) error
	SetConnected(connected bool)
	AdvanceSyncedUpTo(commitID uint64)
	SetRemotePeers(peers []models.Peer)
}

// Config holds relay endpoints and credentials
type Config struct {
	AppID              string
	SharedToken        string
	AuthURL            string
	WebsocketURL       string
	ReconnectDelay     time.Duration
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
	Subscriptions      []string
}

// Link is a supervised connection to the relay
type Link struct {
	cfg     Config
	replica Replica
	tokens  oauth2.TokenSource
	breaker *gobreaker.CircuitBreaker[*websocket.Conn]
	dialer  *websocket.Dialer
	acked   atomic.Uint64
	log     *observability.Logger
}

// NewLink creates a link; nothing connects until Serve runs
func NewLink(cfg Config, replica Replica) *Link {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.Subscriptions == nil {
		cfg.Subscriptions = DefaultSubscriptions
	}

	l := &Link{
		cfg:     cfg,
		replica: replica,
		dialer:  &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		log:     observability.WithField("component", "replication"),
	}

	creds := clientcredentials.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.SharedToken,
		TokenURL:     cfg.AuthURL,
	}
	l.tokens = creds.TokenSource(context.Background())

	maxFailures := cfg.BreakerMaxFailures
	l.breaker = gobreaker.NewCircuitBreaker[*websocket.Conn](gobreaker.Settings{
		Name:        "relay-dial",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.log.WithFields(map[string]interface{}{"from": from.String(), "to": to.String()}).
				Warnf("circuit breaker %s changed state", name)
		},
	})
	return l
}

// String names the service in supervisor logs
func (l *Link) String() string { return "replication-link" }

// Acked returns the highest commit id the relay has acknowledged
func (l *Link) Acked() uint64 { return l.acked.Load() }

// Serve keeps a session open, reconnecting after failures, until ctx is done
func (l *Link) Serve(ctx context.Context) error {
	for {
		err := l.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			l.log.Debug("relay dial suppressed by open circuit")
		} else if err != nil {
			l.log.WithError(err).Warn("relay session ended")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.ReconnectDelay):
		}
	}
}

func (l *Link) dial(ctx context.Context) (*websocket.Conn, error) {
	return l.breaker.Execute(func() (*websocket.Conn, error) {
		token, err := l.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("fetch relay token: %w", err)
		}
		header := http.Header{}
		header.Set("Authorization", token.Type()+" "+token.AccessToken)

		conn, resp, err := l.dialer.DialContext(ctx, l.cfg.WebsocketURL, header)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial relay: %w (status %d)", err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial relay: %w", err)
		}
		return conn, nil
	})
}

func (l *Link) session(ctx context.Context) error {
	conn, err := l.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	local := l.replica.LocalPeer()
	hello := Frame{
		Type:          FrameHello,
		PeerKey:       local.PeerKey,
		DeviceName:    local.DeviceName,
		Metadata:      local.Metadata,
		Subscriptions: l.cfg.Subscriptions,
	}
	if acked := l.acked.Load(); acked > 0 {
		hello.SyncedUpTo = &acked
	}
	if err := writeFrame(conn, hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	outbox := make(chan store.Commit, outboxSize)
	var overflow atomic.Bool
	stop := l.replica.OnCommit(func(c store.Commit) {
		select {
		case outbox <- c:
		default:
			overflow.Store(true)
			cancel()
		}
	})
	defer stop()

	backlog, err := l.replica.ChangesSince(sctx, l.acked.Load())
	if err != nil {
		return fmt.Errorf("load unsynced changes: %w", err)
	}

	l.replica.SetConnected(true)
	defer func() {
		l.replica.SetConnected(false)
		l.replica.SetRemotePeers(nil)
	}()
	l.log.Infof("connected to relay as %s", local.PeerKey)

	readErr := make(chan error, 1)
	go func() {
		readErr <- l.readLoop(sctx, conn)
		cancel()
	}()

	err = l.writeLoop(sctx, conn, backlog, outbox)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	conn.Close()
	if rerr := <-readErr; err == nil || errors.Is(err, context.Canceled) {
		err = rerr
	}
	if overflow.Load() {
		return ErrOutboxOverflow
	}
	return err
}

func (l *Link) writeLoop(ctx context.Context, conn *websocket.Conn, backlog []store.Commit, outbox <-chan store.Commit) error {
	var sent uint64
	for _, c := range backlog {
		if err := sendCommit(conn, c); err != nil {
			return err
		}
		sent = max(sent, c.ID)
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-outbox:
			if c.ID <= sent {
				continue
			}
			if err := sendCommit(conn, c); err != nil {
				return err
			}
			sent = c.ID
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

func sendCommit(conn *websocket.Conn, c store.Commit) error {
	for _, doc := range c.Documents {
		body := make(map[string]any, len(doc))
		for k, v := range doc {
			if k != "content_commit_id" {
				body[k] = v
			}
		}
		if err := writeFrame(conn, Frame{Type: FrameCommit, Collection: c.Collection, Doc: body, CommitID: c.ID}); err != nil {
			return err
		}
	}
	for _, id := range c.Removed {
		if err := writeFrame(conn, Frame{Type: FrameRemove, Collection: c.Collection, ID: id, CommitID: c.ID}); err != nil {
			return err
		}
	}
	return nil
}

func (l *Link) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read relay frame: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			l.log.WithError(err).Warn("ignoring malformed relay frame")
			continue
		}
		l.handle(ctx, f)
	}
}

func (l *Link) handle(ctx context.Context, f Frame) {
	switch f.Type {
	case FrameAck:
		if f.SyncedUpTo == nil {
			return
		}
		for {
			cur := l.acked.Load()
			if *f.SyncedUpTo <= cur || l.acked.CompareAndSwap(cur, *f.SyncedUpTo) {
				break
			}
		}
		l.replica.AdvanceSyncedUpTo(*f.SyncedUpTo)
	case FramePresence:
		l.replica.SetRemotePeers(f.Peers)
	case FrameChange:
		if err := l.replica.ApplyRemote(ctx, f.Collection, store.Document(f.Doc)); err != nil {
			l.log.WithError(err).Warnf("apply remote change to %s", f.Collection)
		}
	case FrameRemove:
		if err := l.replica.RemoveRemote(ctx, f.Collection, f.ID); err != nil {
			l.log.WithError(err).Warnf("apply remote removal from %s", f.Collection)
		}
	default:
		l.log.Debugf("unknown relay frame type %q", f.Type)
	}
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

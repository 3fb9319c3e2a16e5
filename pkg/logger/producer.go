package logger

import (
	"fmt"
	"sync"
	"time"

	fdctx "github.com/cuemby/fdbus/pkg/context"
	"github.com/cuemby/fdbus/pkg/fdtypes"
	"github.com/cuemby/fdbus/pkg/object"
	"github.com/cuemby/fdbus/pkg/transport"
	"github.com/google/uuid"
)

// ReconnectInterval is how often a disconnected producer retries the
// log server, mirroring the name proxy's reconnect posture.
const ReconnectInterval = 2000

// Producer is the per-endpoint client that forwards message-trace and
// debug-trace records to the log server. Every fdbus endpoint owns
// one; it never blocks the caller on a slow or absent server, since
// every record is delivered with Unicast's fire-and-forget broadcast
// framing rather than a request expecting a reply.
type Producer struct {
	ctx  *fdctx.Context
	ep   *object.Endpoint
	host string

	candidates []transport.URL

	mu      sync.RWMutex
	session *transport.Session

	timer *fdctx.Timer
}

// NewProducer creates a producer identifying itself as host, ready to
// connect to any of candidates (the log server's advertised addresses).
func NewProducer(ctx *fdctx.Context, host string, candidates []transport.URL) (*Producer, error) {
	ep, err := object.NewEndpoint(ctx, "log-producer", fdtypes.RoleClient)
	if err != nil {
		return nil, err
	}
	p := &Producer{ctx: ctx, ep: ep, host: host, candidates: candidates}
	ep.MainObject().OnOffline = func(obj *object.Object, sess *transport.Session, isLast bool) {
		p.mu.Lock()
		p.session = nil
		p.mu.Unlock()
	}
	return p, nil
}

// Start connects to the log server and begins the reconnect timer.
func (p *Producer) Start() {
	p.tryConnect()
	p.timer = p.ctx.NewTimer(ReconnectInterval*time.Millisecond, true, func() {
		if !p.connected() {
			p.tryConnect()
		}
	})
}

func (p *Producer) connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.session != nil
}

func (p *Producer) tryConnect() {
	for _, u := range p.candidates {
		if p.connectTo(u) == nil {
			return
		}
	}
}

func (p *Producer) connectTo(url transport.URL) error {
	online := make(chan *transport.Session, 1)
	p.ep.MainObject().OnOnline = func(obj *object.Object, sess *transport.Session, isFirst bool) {
		select {
		case online <- sess:
		default:
		}
	}
	if _, err := p.ep.Connect(url); err != nil {
		return err
	}
	select {
	case sess := <-online:
		p.mu.Lock()
		p.session = sess
		p.mu.Unlock()
		return nil
	case <-time.After(2 * time.Second):
		return fmt.Errorf("logger: connect to %s timed out", url.String())
	}
}

// LogMessage forwards one request/reply/broadcast/subscribe trace
// record. A nil session (not yet connected, or the server vanished)
// silently drops the record rather than blocking the caller.
func (p *Producer) LogMessage(kind, endpoint, busName string, objectID, code uint32, payloadLen int) {
	p.mu.RLock()
	sess := p.session
	p.mu.RUnlock()
	if sess == nil {
		return
	}
	rec := MessageRecord{
		TraceID:    uuid.NewString(),
		Kind:       kind,
		Host:       p.host,
		Endpoint:   endpoint,
		BusName:    busName,
		ObjectID:   objectID,
		Code:       code,
		Timestamp:  time.Now(),
		PayloadLen: payloadLen,
	}
	_ = p.ep.MainObject().Unicast(sess, EvtLogMessage, "", encodeMessageRecord(rec))
}

// LogTrace forwards one free-form debug-trace line.
func (p *Producer) LogTrace(level TraceLevel, tag, message string) {
	p.mu.RLock()
	sess := p.session
	p.mu.RUnlock()
	if sess == nil {
		return
	}
	rec := TraceRecord{
		TraceID:   uuid.NewString(),
		Level:     level,
		Host:      p.host,
		Tag:       tag,
		Timestamp: time.Now(),
		Message:   message,
	}
	_ = p.ep.MainObject().Unicast(sess, EvtTraceMessage, "", encodeTraceRecord(rec))
}

// Stop tears down the producer endpoint.
func (p *Producer) Stop() {
	p.ep.PrepareDestroy()
}

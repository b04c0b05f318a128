package resolv

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// MaxRequestID bounds the 16-bit request id space; ids are allocated from
// [1, MaxRequestID) (§6).
const MaxRequestID = 65536

// requestResult is what a dispatched request eventually resolves to.
type requestResult struct {
	answers []Answer
	err     error
}

// pendingReq is one in-flight question (§3, "Pending request"). It is
// reachable from exactly the Mux.pending table and, while in flight, from
// its owning serverConn's pending set.
type pendingReq struct {
	id   uint16
	uri  string
	name string
	kind Kind
	conn *serverConn
	// reply is buffered (capacity 1) so finalize never blocks on a caller
	// that stopped listening (e.g. after an overall timeout, §5).
	reply chan requestResult
}

// queuedRequest is a request waiting for its upstream connection to finish
// dialing.
type queuedRequest struct {
	name  string
	kind  Kind
	reply chan requestResult
}

// event is the closed set of things that can change Mux state. Every
// mutation of pending/conns/idCounter happens inside Mux.run(), the single
// "loop thread" goroutine; everything else only ever sends one of these.
type event interface{}

type evRequest struct {
	uri   string
	name  string
	kind  Kind
	reply chan requestResult
}

type evFrame struct {
	conn *serverConn
	data []byte
}

type evConnError struct {
	conn *serverConn
	err  error
}

type evDialResult struct {
	uri  string
	conn *serverConn
	err  error
}

// Mux assigns request ids, tracks pending requests globally and per
// server, sends encoded queries, routes decoded responses back to their
// originating waiter, and handles truncation by re-issuing over TCP
// (§4.6). It owns every server connection and writes successful answers
// to the answer cache it is given.
type Mux struct {
	codec       codec
	cache       *Cache
	idleTimeout time.Duration

	events chan event
	done   chan struct{}

	// Everything below is touched only from run().
	idCounter    uint16
	pending      map[uint16]*pendingReq
	conns        map[string]*serverConn
	pendingDials map[string][]queuedRequest
	tick         *time.Ticker
}

func newMux(cd codec, cache *Cache, idleTimeout time.Duration) *Mux {
	if idleTimeout <= 0 {
		idleTimeout = IdleTimeout
	}
	m := &Mux{
		codec:        cd,
		cache:        cache,
		idleTimeout:  idleTimeout,
		events:       make(chan event, 64),
		done:         make(chan struct{}),
		pending:      make(map[uint16]*pendingReq),
		conns:        make(map[string]*serverConn),
		pendingDials: make(map[string][]queuedRequest),
	}
	go m.run()
	return m
}

// request dispatches a query for (name, kind) against uri and returns a
// channel that receives exactly one result.
func (m *Mux) request(uri, name string, kind Kind) <-chan requestResult {
	reply := make(chan requestResult, 1)
	select {
	case m.events <- evRequest{uri: uri, name: name, kind: kind, reply: reply}:
	case <-m.done:
		reply <- requestResult{err: errors.New("resolv: mux closed")}
	}
	return reply
}

// Close tears down every connection and stops the run loop. Outstanding
// requests are failed.
func (m *Mux) Close() {
	select {
	case <-m.done:
		return
	default:
	}
	close(m.done)
}

func (m *Mux) run() {
	for {
		var tickC <-chan time.Time
		if m.tick != nil {
			tickC = m.tick.C
		}
		select {
		case ev := <-m.events:
			m.handle(ev)
		case <-tickC:
			m.handleTick()
		case <-m.done:
			m.shutdown()
			return
		}
	}
}

func (m *Mux) shutdown() {
	if m.tick != nil {
		m.tick.Stop()
	}
	for _, c := range m.conns {
		c.close()
	}
	for _, pr := range m.pending {
		pr.reply <- requestResult{err: errors.New("resolv: mux closed")}
	}
	for _, waiters := range m.pendingDials {
		for _, w := range waiters {
			w.reply <- requestResult{err: errors.New("resolv: mux closed")}
		}
	}
}

func (m *Mux) handle(ev event) {
	switch e := ev.(type) {
	case evRequest:
		m.handleRequest(e)
	case evFrame:
		m.handleFrame(e)
	case evConnError:
		m.handleConnError(e)
	case evDialResult:
		m.handleDialResult(e)
	}
}

func (m *Mux) handleRequest(e evRequest) {
	if conn, ok := m.conns[e.uri]; ok {
		m.sendQuery(conn, e.name, e.kind, e.reply)
		return
	}
	m.enqueueDial(e.uri, queuedRequest{name: e.name, kind: e.kind, reply: e.reply})
}

func (m *Mux) enqueueDial(uri string, q queuedRequest) {
	if waiters, dialing := m.pendingDials[uri]; dialing {
		m.pendingDials[uri] = append(waiters, q)
		return
	}
	m.pendingDials[uri] = []queuedRequest{q}
	go func() {
		conn, err := dialServerConn(uri)
		m.events <- evDialResult{uri: uri, conn: conn, err: err}
	}()
}

func (m *Mux) handleDialResult(e evDialResult) {
	waiters := m.pendingDials[e.uri]
	delete(m.pendingDials, e.uri)
	if e.err != nil {
		Log.WithFields(logrus.Fields{"resolver": e.uri}).WithError(e.err).Debug("dialing upstream resolver failed")
		cerr := newConnectionError(e.uri, e.err)
		for _, w := range waiters {
			w.reply <- requestResult{err: cerr}
		}
		return
	}
	m.conns[e.conn.uri] = e.conn
	e.conn.startReader(m)
	m.ensureTick()
	for _, w := range waiters {
		m.sendQuery(e.conn, w.name, w.kind, w.reply)
	}
}

func (m *Mux) sendQuery(conn *serverConn, name string, kind Kind, reply chan requestResult) {
	id := m.nextID()
	payload, err := m.codec.buildQuery(id, kind, name)
	if err != nil {
		reply <- requestResult{err: err}
		return
	}
	if err := conn.write(payload); err != nil {
		conn.metrics.errors.Add(1)
		Log.WithFields(logrus.Fields{"resolver": conn.uri, "qname": name}).WithError(err).Debug("write to upstream failed")
		m.teardown(conn, newConnectionError(conn.uri, err))
		reply <- requestResult{err: newConnectionError(conn.uri, err)}
		return
	}
	Log.WithFields(logrus.Fields{"resolver": conn.uri, "qname": name, "qtype": kind, "id": id}).Debug("querying upstream resolver")
	conn.metrics.queries.Add(1)
	pr := &pendingReq{id: id, uri: conn.uri, name: name, kind: kind, conn: conn, reply: reply}
	m.pending[id] = pr
	conn.pending[id] = struct{}{}
	conn.idleExpiry = time.Time{}
}

// nextID allocates the next request id, wrapping in [1, MaxRequestID) and
// skipping any id still in the pending table (§4.6).
func (m *Mux) nextID() uint16 {
	for {
		m.idCounter++
		if m.idCounter == 0 {
			m.idCounter = 1
		}
		if _, inUse := m.pending[m.idCounter]; !inUse {
			return m.idCounter
		}
	}
}

func (m *Mux) handleFrame(e evFrame) {
	conn := e.conn
	if m.conns[conn.uri] != conn {
		return // stale event from an already torn-down connection
	}
	resp, err := m.codec.decode(e.data)
	if err != nil {
		m.teardown(conn, newConnectionError(conn.uri, err))
		return
	}
	pr, ok := m.pending[resp.ID()]
	if !ok || pr.conn != conn {
		return // unknown or already-completed id: silently dropped (§7)
	}
	if !resp.IsResponse() {
		m.teardown(conn, newConnectionError(conn.uri, errors.New("unexpected message type in reply")))
		return
	}
	if resp.Rcode() != 0 {
		m.finalize(pr, nil, &ServerFailureError{Name: pr.name, Rcode: resp.Rcode()})
		return
	}
	if resp.Truncated() {
		if conn.transport == transportUDP {
			m.retryOverTCP(pr)
			return
		}
		m.finalize(pr, nil, &TruncationUnrecoverableError{Name: pr.name})
		return
	}
	// The answer section can legitimately carry other kinds alongside the
	// one queried (a CNAME-aliased name queried for A typically returns
	// both the CNAME and the terminal A record); only the queried kind
	// belongs to this request's result.
	answers := filterByKind(resp.Answers(), pr.kind)
	if len(answers) == 0 {
		m.finalize(pr, nil, &NoRecordError{Name: pr.name, Kind: pr.kind})
		return
	}
	conn.metrics.responses.Add(1)
	m.finalize(pr, answers, nil)
}

// retryOverTCP re-issues the identical question against the TCP form of
// the UDP upstream that just returned a truncated reply, chaining the new
// attempt's outcome to the original waiter (§4.6).
func (m *Mux) retryOverTCP(pr *pendingReq) {
	m.removePending(pr)
	tcpURI := tcpFormOfURI(pr.uri)
	if conn, ok := m.conns[tcpURI]; ok {
		m.sendQuery(conn, pr.name, pr.kind, pr.reply)
		return
	}
	m.enqueueDial(tcpURI, queuedRequest{name: pr.name, kind: pr.kind, reply: pr.reply})
}

func (m *Mux) finalize(pr *pendingReq, answers []Answer, err error) {
	m.removePending(pr)
	if err == nil {
		m.cache.set(cacheKey{name: strings.ToLower(pr.name), kind: pr.kind}, answers)
	}
	pr.reply <- requestResult{answers: answers, err: err}
}

func (m *Mux) removePending(pr *pendingReq) {
	delete(m.pending, pr.id)
	delete(pr.conn.pending, pr.id)
	if len(pr.conn.pending) == 0 {
		pr.conn.idleExpiry = time.Now().Add(m.idleTimeout)
	}
}

func (m *Mux) handleConnError(e evConnError) {
	conn := e.conn
	if m.conns[conn.uri] != conn {
		return
	}
	m.teardown(conn, newConnectionError(conn.uri, e.err))
}

// teardown removes conn, closes its socket, and fails every request still
// outstanding on it with err (§4.5 Fault lifecycle, §7 policy).
func (m *Mux) teardown(conn *serverConn, err error) {
	Log.WithFields(logrus.Fields{"resolver": conn.uri}).WithError(err).Debug("tearing down server connection")
	delete(m.conns, conn.uri)
	conn.close()
	for id := range conn.pending {
		if pr, ok := m.pending[id]; ok {
			delete(m.pending, id)
			pr.reply <- requestResult{err: err}
		}
	}
	if len(m.conns) == 0 {
		m.disableTick()
	}
}

func (m *Mux) handleTick() {
	now := time.Now()
	for uri, conn := range m.conns {
		if !conn.idleExpiry.IsZero() && now.After(conn.idleExpiry) {
			delete(m.conns, uri)
			conn.close()
		}
	}
	if len(m.conns) == 0 {
		m.disableTick()
	}
}

func (m *Mux) ensureTick() {
	if m.tick == nil {
		m.tick = time.NewTicker(time.Second)
	}
}

func (m *Mux) disableTick() {
	if m.tick != nil {
		m.tick.Stop()
		m.tick = nil
	}
}

package boundary

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/f3rmion/thresh/channel"
	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/protocols/decrypt"
	"github.com/f3rmion/thresh/session"
	"github.com/f3rmion/thresh/wire"
)

// MaxBuffer bounds every input buffer.
const MaxBuffer = 16 << 20

// Handle names a live instance in a [Table]. Zero is never a valid handle.
type Handle uint64

// Config configures a [Table].
type Config struct {
	Logger logging.Logger
	// Registerer receives the table's Prometheus counters. Nil disables
	// registration.
	Registerer prometheus.Registerer
	// Rand seeds new instances and channel nonces. Defaults to crypto/rand.
	Rand io.Reader
	// PaillierBits sizes the Paillier modulus of ECDSA signing runs.
	PaillierBits int
}

// Table owns live instances. It is safe for concurrent use; calls on
// different handles do not block each other.
type Table struct {
	mu   sync.Mutex
	next Handle
	live map[Handle]*session.Session

	log     logging.Logger
	rand    io.Reader
	opts    session.Options
	metrics *metrics
}

// NewTable returns an empty table.
func NewTable(cfg Config) (*Table, error) {
	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("boundary: register metrics: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	r := cfg.Rand
	if r == nil {
		r = rand.Reader
	}
	return &Table{
		live:    make(map[Handle]*session.Session),
		log:     log.With("component", "boundary"),
		rand:    r,
		metrics: m,
		opts: session.Options{
			Logger:       log,
			Rand:         r,
			PaillierBits: cfg.PaillierBits,
			OnDiscard: func(reason string) {
				m.discarded.WithLabelValues(reason).Inc()
			},
		},
	}, nil
}

// guard converts a panic in a boundary call into a CodeInternal error.
func (t *Table) guard(op string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	t.metrics.panics.Inc()
	t.log.Error("recovered panic", "op", op, "panic", fmt.Sprint(r))
	*err = &Error{Code: CodeInternal, Err: fmt.Errorf("%s: panic", op)}
}

func checkBuffer(name string, b []byte, required bool) error {
	if required && len(b) == 0 {
		return fail(CodeInvalidBuffer, "%s is empty", name)
	}
	if len(b) > MaxBuffer {
		return fail(CodeInvalidBuffer, "%s exceeds %d bytes", name, MaxBuffer)
	}
	return nil
}

func (t *Table) insert(s *session.Session) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.live[h] = s
	t.metrics.created.WithLabelValues(s.Tag().String()).Inc()
	return h
}

func (t *Table) lookup(h Handle) (*session.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.live[h]
	if !ok {
		return nil, fail(CodeInvalidHandle, "handle %d", h)
	}
	return s, nil
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Create starts an instance from an encoded [CreateRequest] and returns its
// handle with the round 1 outbound batch.
func (t *Table) Create(request []byte) (h Handle, out []byte, err error) {
	defer t.guard("create", &err)
	if err := checkBuffer("request", request, true); err != nil {
		return 0, nil, err
	}
	r, err := ParseCreateRequest(request)
	if err != nil {
		return 0, nil, err
	}
	req, err := r.sessionRequest()
	if err != nil {
		return 0, nil, err
	}
	if req.KeyShare != nil {
		defer req.KeyShare.Wipe()
	}
	s, msgs, err := session.New(req, t.opts)
	if err != nil {
		t.log.Warn("create rejected", "protocol", req.Tag.String(), "error", err)
		return 0, nil, err
	}
	h = t.insert(s)
	t.log.Debug("instance created", "handle", uint64(h), "protocol", req.Tag.String())
	return h, wire.MarshalBatch(msgs), nil
}

// Advance applies an inbound batch. A run failure is reported as the
// Failed status together with the run's error.
func (t *Table) Advance(h Handle, inbound []byte) (out []byte, status protocol.Status, err error) {
	defer t.guard("advance", &err)
	s, err := t.lookup(h)
	if err != nil {
		return nil, protocol.Failed, err
	}
	if err := checkBuffer("inbound", inbound, false); err != nil {
		return nil, s.Status(), err
	}
	msgs, err := wire.UnmarshalBatch(inbound)
	if err != nil {
		return nil, s.Status(), &Error{Code: CodeInvalidBuffer, Err: err}
	}
	res, status, err := s.Advance(msgs)
	t.metrics.advanced.WithLabelValues(s.Tag().String(), status.String()).Inc()
	if err != nil {
		return nil, status, err
	}
	return wire.MarshalBatch(res), status, nil
}

// Status returns the status of a live instance.
func (t *Table) Status(h Handle) (protocol.Status, error) {
	s, err := t.lookup(h)
	if err != nil {
		return protocol.Failed, err
	}
	return s.Status(), nil
}

// Serialize returns the snapshot of a live instance. The instance stays
// live.
func (t *Table) Serialize(h Handle) (state []byte, err error) {
	defer t.guard("serialize", &err)
	s, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	return s.MarshalBinary()
}

// Deserialize restores a snapshot into a new handle.
func (t *Table) Deserialize(state []byte) (h Handle, err error) {
	defer t.guard("deserialize", &err)
	if err := checkBuffer("state", state, true); err != nil {
		return 0, err
	}
	s, err := session.Restore(state, t.opts)
	if err != nil {
		return 0, err
	}
	return t.insert(s), nil
}

// Artifact returns the encoded final output of a Done instance.
func (t *Table) Artifact(h Handle) (artifact []byte, err error) {
	defer t.guard("artifact", &err)
	s, err := t.lookup(h)
	if err != nil {
		return nil, err
	}
	a := s.Artifact()
	if a == nil {
		return nil, fail(CodeNotDone, "instance is %s", s.Status())
	}
	return protocol.EncodeArtifact(a)
}

// Destroy zeroes the instance's secret state and releases the handle.
func (t *Table) Destroy(h Handle) error {
	t.mu.Lock()
	s, ok := t.live[h]
	delete(t.live, h)
	t.mu.Unlock()
	if !ok {
		return fail(CodeInvalidHandle, "handle %d", h)
	}
	s.Destroy()
	t.log.Debug("instance destroyed", "handle", uint64(h))
	return nil
}

// Close destroys every live instance. The table stays usable.
func (t *Table) Close() {
	t.mu.Lock()
	live := t.live
	t.live = make(map[Handle]*session.Session)
	t.mu.Unlock()
	for _, s := range live {
		s.Destroy()
	}
}

// Step advances a serialized state without keeping an instance: it
// restores state, applies the inbound batch and returns the next state
// with the outbound batch. A failed run still yields its Failed state.
func (t *Table) Step(state, inbound []byte) (next, out []byte, status protocol.Status, err error) {
	defer t.guard("step", &err)
	for name, b := range map[string][]byte{"state": state, "inbound": inbound} {
		if err := checkBuffer(name, b, name == "state"); err != nil {
			return nil, nil, protocol.Failed, err
		}
	}
	msgs, err := wire.UnmarshalBatch(inbound)
	if err != nil {
		return nil, nil, protocol.Failed, &Error{Code: CodeInvalidBuffer, Err: err}
	}
	s, err := session.Restore(state, t.opts)
	if err != nil {
		return nil, nil, protocol.Failed, err
	}
	defer s.Destroy()

	res, status, runErr := s.Advance(msgs)
	t.metrics.advanced.WithLabelValues(s.Tag().String(), status.String()).Inc()
	next, err = s.MarshalBinary()
	if err != nil {
		return nil, nil, status, err
	}
	return next, wire.MarshalBatch(res), status, runErr
}

// Encrypt seals plaintext to the holders of groupKey on the named curve
// and returns the encoded ciphertext for a decryption run.
func (t *Table) Encrypt(curve string, groupKey, plaintext []byte) (ct []byte, err error) {
	defer t.guard("encrypt", &err)
	if err := checkBuffer("group key", groupKey, true); err != nil {
		return nil, err
	}
	if err := checkBuffer("plaintext", plaintext, false); err != nil {
		return nil, err
	}
	id, err := group.ParseID(curve)
	if err != nil {
		return nil, protocol.Fail(protocol.KindInvalidParameters, 0, err)
	}
	c, err := decrypt.Encrypt(t.rand, id, groupKey, plaintext)
	if err != nil {
		return nil, &Error{Code: CodeInvalidBuffer, Err: err}
	}
	return c.Marshal()
}

// Seal encrypts plaintext under a 32-byte channel key.
func (t *Table) Seal(key, plaintext, aad []byte) (blob []byte, err error) {
	defer t.guard("seal", &err)
	for _, b := range [][]byte{key, plaintext, aad} {
		if err := checkBuffer("input", b, false); err != nil {
			return nil, err
		}
	}
	return channel.Seal(t.rand, key, plaintext, aad)
}

// Open authenticates and decrypts a blob from [Table.Seal]. No plaintext
// is returned on failure.
func (t *Table) Open(key, blob, aad []byte) (plaintext []byte, err error) {
	defer t.guard("open", &err)
	for _, b := range [][]byte{key, blob, aad} {
		if err := checkBuffer("input", b, false); err != nil {
			return nil, err
		}
	}
	return channel.Open(key, blob, aad)
}

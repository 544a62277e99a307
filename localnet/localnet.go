package localnet

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/wire"
)

// DefaultMaxSteps bounds a run so that a stuck protocol cannot loop forever.
const DefaultMaxSteps = 1000

// ErrStalled is returned when messages stop flowing before every party
// finished.
var ErrStalled = errors.New("localnet: no messages in flight but parties still running")

// RestoreFunc rebuilds an instance from its snapshot.
type RestoreFunc func(data []byte) (*protocol.Instance, error)

// Options tune a network.
type Options struct {
	// Seed drives the delivery shuffle.
	Seed int64
	// Restore, if set, snapshots and restores every party after each step.
	Restore RestoreFunc
	// Intercept sees every message before delivery and returns what is
	// actually delivered. Returning nil drops it.
	Intercept func(m *wire.Message) []*wire.Message
	// OneByOne delivers inbound messages in separate Advance calls.
	OneByOne bool
	MaxSteps int
	Logger   logging.Logger
}

type party struct {
	id    wire.ParticipantID
	in    *protocol.Instance
	inbox []*wire.Message
}

// Network is an in-memory orchestrator. It is not safe for concurrent use.
type Network struct {
	opts    Options
	log     logging.Logger
	rng     *rand.Rand
	parties map[wire.ParticipantID]*party
	flight  []*wire.Message
	steps   int
}

// New returns an empty network.
func New(opts Options) *Network {
	if opts.MaxSteps == 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Network{
		opts:    opts,
		log:     log,
		rng:     rand.New(rand.NewSource(opts.Seed)),
		parties: make(map[wire.ParticipantID]*party),
	}
}

// Join adds an instance with the messages it produced on creation.
func (n *Network) Join(in *protocol.Instance, out []*wire.Message) {
	n.parties[in.Self()] = &party{id: in.Self(), in: in}
	n.flight = append(n.flight, out...)
}

// Instance returns the current instance of a party. It changes across
// steps when Options.Restore is set.
func (n *Network) Instance(id wire.ParticipantID) *protocol.Instance {
	if p, ok := n.parties[id]; ok {
		return p.in
	}
	return nil
}

// Result is the outcome of a run.
type Result struct {
	Artifacts map[wire.ParticipantID]protocol.Artifact
	Errors    map[wire.ParticipantID]error
	Steps     int
}

// Run delivers messages until every party is Done or Failed.
func (n *Network) Run(ctx context.Context) (*Result, error) {
	for !n.finished() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if n.steps >= n.opts.MaxSteps {
			return nil, errors.Errorf("localnet: exceeded %d steps", n.opts.MaxSteps)
		}
		if len(n.flight) == 0 {
			return n.result(), ErrStalled
		}
		if err := n.step(ctx); err != nil {
			return nil, err
		}
	}
	return n.result(), nil
}

func (n *Network) finished() bool {
	for _, p := range n.parties {
		if p.in.Status() == protocol.Continue {
			return false
		}
	}
	return true
}

func (n *Network) result() *Result {
	r := &Result{
		Artifacts: make(map[wire.ParticipantID]protocol.Artifact),
		Errors:    make(map[wire.ParticipantID]error),
		Steps:     n.steps,
	}
	for id, p := range n.parties {
		switch p.in.Status() {
		case protocol.Done:
			r.Artifacts[id] = p.in.Artifact()
		case protocol.Failed:
			r.Errors[id] = p.in.Err()
		}
	}
	return r
}

// route moves in-flight messages into inboxes, passing each through the
// wire codec and the interceptor.
func (n *Network) route() error {
	flight := n.flight
	n.flight = nil
	n.rng.Shuffle(len(flight), func(i, j int) { flight[i], flight[j] = flight[j], flight[i] })

	for _, m := range flight {
		decoded, err := wire.Unmarshal(m.Marshal())
		if err != nil {
			return errors.Wrap(err, "localnet: wire roundtrip")
		}
		deliver := []*wire.Message{decoded}
		if n.opts.Intercept != nil {
			deliver = n.opts.Intercept(decoded)
		}
		for _, d := range deliver {
			if d.IsBroadcast() {
				for id, p := range n.parties {
					if id != d.Sender {
						p.inbox = append(p.inbox, d.Clone())
					}
				}
				continue
			}
			if p, ok := n.parties[d.Recipient]; ok {
				p.inbox = append(p.inbox, d)
			}
		}
	}
	return nil
}

func (n *Network) step(ctx context.Context) error {
	n.steps++
	if err := n.route(); err != nil {
		return err
	}

	ids := make([]wire.ParticipantID, 0, len(n.parties))
	for id := range n.parties {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		p := n.parties[id]
		inbox := p.inbox
		p.inbox = nil
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := n.advance(p, inbox)
			if err != nil {
				return err
			}
			mu.Lock()
			n.flight = append(n.flight, out...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// Goroutines finish in any order; keep the flight reproducible.
	sort.SliceStable(n.flight, func(i, j int) bool {
		a, b := n.flight[i], n.flight[j]
		if a.Sender != b.Sender {
			return a.Sender < b.Sender
		}
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return a.Recipient < b.Recipient
	})
	return nil
}

// advance feeds one party its inbox. Protocol failures are outcomes, not
// errors; only snapshot problems abort the run.
func (n *Network) advance(p *party, inbox []*wire.Message) ([]*wire.Message, error) {
	batches := [][]*wire.Message{inbox}
	if n.opts.OneByOne {
		batches = batches[:0]
		for _, m := range inbox {
			batches = append(batches, []*wire.Message{m})
		}
	}

	var out []*wire.Message
	for _, batch := range batches {
		msgs, status, err := p.in.Advance(batch)
		if status == protocol.Failed {
			n.log.Debug("party failed", "party", uint16(p.id), "error", err)
		}
		out = append(out, msgs...)
		if n.opts.Restore != nil {
			if err := n.cycle(p); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (n *Network) cycle(p *party) error {
	data, err := p.in.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "localnet: snapshot party %d", p.id)
	}
	restored, err := n.opts.Restore(data)
	if err != nil {
		return errors.Wrapf(err, "localnet: restore party %d", p.id)
	}
	p.in.Wipe()
	p.in = restored
	return nil
}

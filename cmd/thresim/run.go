package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"go.uber.org/zap/zapcore"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/localnet"
	"github.com/f3rmion/thresh/logging"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/protocols/decrypt"
	"github.com/f3rmion/thresh/protocols/ecdsasign"
	"github.com/f3rmion/thresh/protocols/frostsign"
	"github.com/f3rmion/thresh/session"
	"github.com/f3rmion/thresh/wire"
)

type simulation struct {
	cfg *Config
	log logging.Logger
	w   io.Writer
}

func run(ctx context.Context, cfg *Config, w io.Writer) error {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log, err := logging.NewDevelopment(level)
	if err != nil {
		return err
	}
	sim := &simulation{cfg: cfg, log: log, w: w}

	holders := make([]wire.ParticipantID, cfg.Parties)
	for i := range holders {
		holders[i] = wire.ParticipantID(i + 1)
	}
	artifacts, err := sim.runAll(ctx, holders, func(req *session.Request) {
		req.Tag = protocol.TagKeyGen
		req.Curve = cfg.Curve
		req.Threshold = cfg.Threshold
	})
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	shares := make(map[wire.ParticipantID]*protocol.KeyShare, len(artifacts))
	for id, a := range artifacts {
		shares[id] = a.(*protocol.KeyShare)
	}
	defer func() {
		for _, ks := range shares {
			ks.Wipe()
		}
	}()
	groupKey := shares[holders[0]].GroupKey
	fmt.Fprintf(w, "keygen: %d parties, threshold %d, curve %s\n", cfg.Parties, cfg.Threshold, cfg.Curve)
	fmt.Fprintf(w, "group key: %s\n", hex.EncodeToString(groupKey))

	for _, tag := range cfg.Protocols {
		if err := sim.runProtocol(ctx, tag, shares, groupKey); err != nil {
			return fmt.Errorf("%s: %w", tag, err)
		}
	}
	return nil
}

func (sim *simulation) runProtocol(ctx context.Context, tag protocol.Tag, shares map[wire.ParticipantID]*protocol.KeyShare, groupKey []byte) error {
	cfg := sim.cfg
	message := []byte(cfg.Message)

	switch tag {
	case protocol.TagSignSchnorr, protocol.TagSignECDSA:
		if tag == protocol.TagSignECDSA && cfg.Curve != group.Secp256k1 {
			fmt.Fprintf(sim.w, "%s: skipped, requires secp256k1\n", tag)
			return nil
		}
		artifacts, err := sim.runAll(ctx, cfg.Signers, func(req *session.Request) {
			req.Tag = tag
			req.KeyShare = shares[req.Self]
			req.Message = message
		})
		if err != nil {
			return err
		}
		sig := artifacts[cfg.Signers[0]].(*protocol.Signature)
		encoded := sig.Bytes()
		if tag == protocol.TagSignECDSA {
			if err := ecdsasign.Verify(groupKey, message, sig); err != nil {
				return err
			}
			if encoded, err = ecdsasign.DER(sig); err != nil {
				return err
			}
		} else if err := frostsign.Verify(groupKey, message, sig); err != nil {
			return err
		}
		fmt.Fprintf(sim.w, "%s by %v: %s (verified)\n", tag, cfg.Signers, hex.EncodeToString(encoded))

	case protocol.TagDecrypt:
		ct, err := decrypt.Encrypt(rand.Reader, cfg.Curve, groupKey, message)
		if err != nil {
			return err
		}
		artifacts, err := sim.runAll(ctx, cfg.Signers, func(req *session.Request) {
			req.Tag = tag
			req.KeyShare = shares[req.Self]
			req.Ciphertext = ct
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(sim.w, "%s by %v: %q\n", tag, cfg.Signers, artifacts[cfg.Signers[0]].(*protocol.Plaintext).Data)

	default:
		return fmt.Errorf("cannot simulate %s", tag)
	}
	return nil
}

// runAll runs one session per participant in a local network and returns
// the artifacts. fill completes each request after Self, Session and
// Participants are set.
func (sim *simulation) runAll(ctx context.Context, ids []wire.ParticipantID, fill func(*session.Request)) (map[wire.ParticipantID]protocol.Artifact, error) {
	opts := localnet.Options{Seed: sim.cfg.Seed, Logger: sim.log}
	if sim.cfg.Restore {
		opts.Restore = session.RestoreInstance
	}
	net := localnet.New(opts)
	sid := session.NewID()
	for _, id := range ids {
		req := session.Request{Self: id, Session: sid, Participants: ids}
		fill(&req)
		s, out, err := session.New(req, session.Options{Logger: sim.log, PaillierBits: sim.cfg.PaillierBits})
		if err != nil {
			return nil, err
		}
		net.Join(s.Instance(), out)
	}
	res, err := net.Run(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := res.Errors[id]; err != nil {
			return nil, fmt.Errorf("party %d: %w", id, err)
		}
	}
	sim.log.Info("run finished", "participants", len(ids), "steps", res.Steps)
	return res.Artifacts, nil
}

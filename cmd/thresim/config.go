package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/wire"
)

// Config is a simulation run. Every field can be set by flag, by a
// THRESIM_ environment variable or in a config file.
type Config struct {
	Curve        group.ID
	Threshold    int
	Parties      int
	Signers      []wire.ParticipantID
	Protocols    []protocol.Tag
	Message      string
	Seed         int64
	Restore      bool
	PaillierBits int
	LogLevel     string
}

func flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("thresim", pflag.ContinueOnError)
	fs.String("config", "", "path to a yaml, json or toml config file")
	fs.String("curve", "secp256k1", "curve: secp256k1, bjj or ed25519")
	fs.Int("threshold", 2, "signing threshold t")
	fs.Int("parties", 3, "number of key holders n")
	fs.StringSlice("signers", nil, "participant ids taking part after keygen (default: the first t)")
	fs.StringSlice("protocols", []string{"sign-frost", "sign-ecdsa", "decrypt"}, "protocols to run after keygen")
	fs.String("message", "hello threshold", "message to sign or encrypt")
	fs.Int64("seed", 1, "delivery shuffle seed")
	fs.Bool("restore", false, "snapshot and restore every party after each message")
	fs.Int("paillier-bits", 2048, "Paillier modulus size for ECDSA signing")
	fs.String("log-level", "info", "debug, info, warn or error")
	return fs
}

func loadConfig(args []string) (*Config, error) {
	fs := flagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetEnvPrefix("THRESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	curve, err := group.ParseID(v.GetString("curve"))
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Curve:        curve,
		Threshold:    v.GetInt("threshold"),
		Parties:      v.GetInt("parties"),
		Message:      v.GetString("message"),
		Seed:         v.GetInt64("seed"),
		Restore:      v.GetBool("restore"),
		PaillierBits: v.GetInt("paillier-bits"),
		LogLevel:     v.GetString("log-level"),
	}
	if cfg.Parties < 1 || cfg.Parties > 1000 {
		return nil, fmt.Errorf("parties %d out of range", cfg.Parties)
	}
	if cfg.Threshold < 1 || cfg.Threshold > cfg.Parties {
		return nil, fmt.Errorf("threshold %d out of range for %d parties", cfg.Threshold, cfg.Parties)
	}

	for _, name := range splitList(v.GetStringSlice("protocols")) {
		tag, err := protocol.ParseTag(name)
		if err != nil {
			return nil, err
		}
		if tag == protocol.TagKeyGen {
			continue
		}
		cfg.Protocols = append(cfg.Protocols, tag)
	}
	for _, s := range splitList(v.GetStringSlice("signers")) {
		id, err := strconv.ParseUint(s, 10, 16)
		if err != nil || id == 0 || int(id) > cfg.Parties {
			return nil, fmt.Errorf("bad signer %q", s)
		}
		cfg.Signers = append(cfg.Signers, wire.ParticipantID(id))
	}
	if len(cfg.Signers) == 0 {
		for i := 1; i <= cfg.Threshold; i++ {
			cfg.Signers = append(cfg.Signers, wire.ParticipantID(i))
		}
	}
	return cfg, nil
}

// splitList flattens comma separated entries, which is how list values
// arrive from the environment.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

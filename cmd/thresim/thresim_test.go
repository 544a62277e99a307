package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/f3rmion/thresh/group"
	"github.com/f3rmion/thresh/paillier"
	"github.com/f3rmion/thresh/protocol"
	"github.com/f3rmion/thresh/wire"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	require.Equal(t, group.Secp256k1, cfg.Curve)
	require.Equal(t, 2, cfg.Threshold)
	require.Equal(t, 3, cfg.Parties)
	require.Equal(t, []wire.ParticipantID{1, 2}, cfg.Signers)
	require.Equal(t, []protocol.Tag{protocol.TagSignSchnorr, protocol.TagSignECDSA, protocol.TagDecrypt}, cfg.Protocols)
}

func TestLoadConfigSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("curve: ed25519\nparties: 5\nthreshold: 4\n"), 0o600))
	t.Setenv("THRESIM_THRESHOLD", "3")
	t.Setenv("THRESIM_SIGNERS", "2,4,5")

	cfg, err := loadConfig([]string{"--config", path, "--protocols", "decrypt"})
	require.NoError(t, err)
	require.Equal(t, group.Ed25519, cfg.Curve)
	require.Equal(t, 5, cfg.Parties)
	require.Equal(t, 3, cfg.Threshold)
	require.Equal(t, []wire.ParticipantID{2, 4, 5}, cfg.Signers)
	require.Equal(t, []protocol.Tag{protocol.TagDecrypt}, cfg.Protocols)
}

func TestLoadConfigRejects(t *testing.T) {
	for name, args := range map[string][]string{
		"Curve":     {"--curve", "p256"},
		"Threshold": {"--threshold", "4"},
		"Signer":    {"--signers", "9"},
		"Protocol":  {"--protocols", "sign-rsa"},
		"Flag":      {"--nope"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := loadConfig(args)
			require.Error(t, err)
		})
	}
}

func TestRun(t *testing.T) {
	cfg, err := loadConfig([]string{
		"--restore", "--log-level", "error",
		"--paillier-bits", "1024", "--signers", "1,3",
	})
	require.NoError(t, err)
	require.Equal(t, paillier.MinBits, cfg.PaillierBits)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))
	require.Contains(t, out.String(), "sign-frost by [1 3]")
	require.Contains(t, out.String(), "sign-ecdsa by [1 3]")
	require.Contains(t, out.String(), `decrypt by [1 3]: "hello threshold"`)
}

func TestRunSkipsECDSAOffSecp256k1(t *testing.T) {
	cfg, err := loadConfig([]string{"--curve", "bjj", "--log-level", "error", "--protocols", "sign-ecdsa,sign-frost"})
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))
	require.Contains(t, out.String(), "sign-ecdsa: skipped")
	require.Contains(t, out.String(), "sign-frost by [1 2]")
}

// Package testutil holds shared fixtures for store-backed tests.
package testutil

import (
	"bytes"
	"flag"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/evannetwork/graphstore/pkg/envelope"
	"github.com/evannetwork/graphstore/pkg/keyring"
)

var RunLong = flag.Bool("long", false, "run long/heavy tests")

func RequireLong(t *testing.T) {
	t.Helper()
	if !*RunLong {
		t.Skip("skipping long test (use -long to enable)")
	}
}

func IsLongEnabled() bool {
	return *RunLong
}

// QuietLogger returns a logger that swallows output, keeping test runs
// readable.
func QuietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// Key returns a deterministic 32-byte key filled with b.
func Key(b byte) []byte {
	return bytes.Repeat([]byte{b}, envelope.KeySize)
}

// Ring returns a keyring granting a deterministic key per origin, all
// valid from block zero.
func Ring(origins ...string) *keyring.Ring {
	ring := keyring.New()
	for i, origin := range origins {
		ring.Grant(origin, 0, Key(byte(i+1)))
	}
	return ring
}

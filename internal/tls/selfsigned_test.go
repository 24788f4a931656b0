package tls

import (
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSignedCoversHosts(t *testing.T) {
	cfg, fp, err := SelfSigned("10.0.0.7", "desk.lan", "")
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.NoError(t, leaf.VerifyHostname("localhost"))
	assert.NoError(t, leaf.VerifyHostname("desk.lan"))
	assert.NoError(t, leaf.VerifyHostname("10.0.0.7"))
	assert.Error(t, leaf.VerifyHostname("other.lan"))
	assert.True(t, leaf.IPAddresses[0].Equal(net.IPv4(127, 0, 0, 1)))

	sum := sha256.Sum256(leaf.Raw)
	assert.Equal(t, fmt.Sprintf("%X", sum), fp)
}

package libvirt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConnect requires a running libvirt daemon.
func TestConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	c, err := Connect("", 0)
	if err != nil {
		t.Skipf("libvirt not available: %v", err)
	}
	defer func() {
		assert.NoError(t, c.Close())
	}()

	require.NoError(t, c.Ping())

	exists, err := c.DomainExists("vmbuilder-test-does-not-exist")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConnect_InvalidSocket(t *testing.T) {
	_, err := Connect("/nonexistent/socket", 100*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/socket")
}

func TestConnectWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ConnectWithContext(ctx, "/nonexistent/socket", 100*time.Millisecond)
	assert.Error(t, err)
}

func TestClient_NotConnected(t *testing.T) {
	c := &Client{}

	assert.NoError(t, c.Close())
	assert.Error(t, c.Ping())
	assert.Error(t, c.DefineDomain("<domain/>"))
	_, err := c.DomainExists("x")
	assert.Error(t, err)
	assert.Error(t, c.UndefineDomain("x"))
}

func TestDomainFound(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantFound bool
		wantErr   string
	}{
		{
			name:      "found",
			wantFound: true,
		},
		{
			name: "no such domain",
			err:  libvirt.Error{Code: uint32(libvirt.ErrNoDomain), Message: "Domain not found"},
		},
		{
			name:    "connection lost",
			err:     errors.New("connection reset by peer"),
			wantErr: "failed to look up domain web01: connection reset by peer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := domainFound("web01", tt.err)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantFound, found)
		})
	}
}

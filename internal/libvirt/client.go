package libvirt

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

// DefaultSocket is the qemu:///system daemon socket.
const DefaultSocket = "/var/run/libvirt/libvirt-sock"

// Client wraps a go-libvirt connection.
type Client struct {
	libvirt *libvirt.Libvirt
}

// Connect establishes a connection to the local libvirt daemon.
// It returns a Client that must be closed via Close() when done.
//
// If socketPath is empty, DefaultSocket is used.
// If timeout is zero, defaults to 5 seconds.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	dialer := dialers.NewLocal(
		dialers.WithSocket(socketPath),
		dialers.WithLocalTimeout(timeout),
	)

	l := libvirt.NewWithDialer(dialer)
	if err := l.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", socketPath, err)
	}

	return &Client{libvirt: l}, nil
}

// ConnectWithContext is Connect with cancellation.
func ConnectWithContext(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Connect(socketPath, timeout)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		// Close a connection that lands after we gave up on it.
		go func() {
			if res := <-resultCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

// Libvirt returns the underlying go-libvirt connection, or nil once closed.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// Close closes the libvirt connection.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	if c.libvirt == nil {
		return nil
	}

	l := c.libvirt
	c.libvirt = nil
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Ping verifies the connection is still alive.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

// DefineDomain defines (but does not start) a persistent domain from XML.
// Callers check DomainExists first; libvirt itself would replace the
// definition of an existing domain with the same name.
func (c *Client) DefineDomain(xml string) error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.DomainDefineXML(xml); err != nil {
		return fmt.Errorf("failed to define domain: %w", err)
	}

	return nil
}

// DomainExists reports whether a domain with the given name is defined.
// Only libvirt's "no such domain" counts as not defined; any other lookup
// failure is returned.
func (c *Client) DomainExists(name string) (bool, error) {
	if c.libvirt == nil {
		return false, fmt.Errorf("client not connected")
	}

	_, err := c.libvirt.DomainLookupByName(name)
	return domainFound(name, err)
}

// UndefineDomain removes the definition of the named domain, including its
// NVRAM. A domain that is not defined is not an error.
func (c *Client) UndefineDomain(name string) error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	domain, err := c.libvirt.DomainLookupByName(name)
	if found, err := domainFound(name, err); !found {
		return err
	}

	if err := c.libvirt.DomainUndefineFlags(domain, libvirt.DomainUndefineNvram); err != nil {
		return fmt.Errorf("failed to undefine domain %s: %w", name, err)
	}

	return nil
}

// domainFound interprets the error of a domain lookup.
func domainFound(name string, err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case libvirt.IsNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up domain %s: %w", name, err)
	}
}

// Package mapserv renders map images by running the MapServer CGI binary
// directly with a WMS GetMap query.
package mapserv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mapgen/internal/render"
	"mapgen/internal/services"
)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTimeout bounds every render.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client invokes mapserv as a CGI program.
type Client struct {
	binary  string
	timeout time.Duration
	exec    services.Executor
}

// New constructs a mapserv client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("mapserv binary required")
	}
	client := &Client{binary: binary, exec: services.CommandExecutor{}}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Command returns the invocation for req. The CGI variables are set on the
// child process only.
func (c *Client) Command(req render.Request) services.Command {
	return services.Command{
		Binary: c.binary,
		Env: []string{
			"REQUEST_METHOD=GET",
			"QUERY_STRING=" + req.Query(),
		},
		Timeout: c.timeout,
	}
}

// GetMap runs one GetMap request and returns the image bytes with the CGI
// header removed.
func (c *Client) GetMap(ctx context.Context, req render.Request) ([]byte, error) {
	cmd := c.Command(req)
	out, err := c.exec.Run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	image, err := render.Image(out)
	if err != nil {
		return nil, &services.ToolError{Binary: c.binary, Err: err}
	}
	return image, nil
}

// Render runs req and writes the image to dst.
func (c *Client) Render(ctx context.Context, req render.Request, dst string) error {
	image, err := c.GetMap(ctx, req)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return services.Wrap(services.ErrFilesystem, "mapserv", "render", "create render directory", err)
	}
	if err := os.WriteFile(dst, image, 0o644); err != nil {
		return services.Wrap(services.ErrFilesystem, "mapserv", "render", fmt.Sprintf("write %s", dst), err)
	}
	return nil
}

package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/robonet-io/armbridge/core/infra/logging"
)

const (
	defaultRPCTimeout = 30 * time.Second
	// modeRPCMargin pads the RPC deadline past the controller-side mode
	// switch bound so the timeout surfaces from the agent, not the wire.
	modeRPCMargin = 2 * time.Second
)

// RPC operation names understood by the on-robot agent.
const (
	opMastershipRequest = "mastership.request"
	opMastershipRelease = "mastership.release"
	opGrants            = "grants"
	opProgramLoad       = "program.load"
	opProgramDelete     = "program.delete"
	opModuleLoad        = "module.load"
	opModeSet           = "mode.set"
	opExecStart         = "exec.start"
	opExecStop          = "exec.stop"
	opTargetGet         = "target.get"
	opFSEnsureDir       = "fs.ensure_dir"
	opFSRemove          = "fs.remove"
	opFSPut             = "fs.put"
)

type rpcRequest struct {
	ID        string `json:"id"`
	Op        string `json:"op"`
	Task      Task   `json:"task,omitempty"`
	Path      string `json:"path,omitempty"`
	Dir       string `json:"dir,omitempty"`
	Mode      Mode   `json:"mode,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

type rpcResponse struct {
	OK     bool    `json:"ok"`
	Error  string  `json:"error,omitempty"`
	Grants []Grant `json:"grants,omitempty"`
	Target *Target `json:"target,omitempty"`
}

// NatsClient reaches a physical controller through its on-robot agent via
// JSON request/reply on a controller-specific subject.
type NatsClient struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

// NewNatsClient dials NATS and binds to the agent subject for controllerID.
func NewNatsClient(url, controllerID string) (*NatsClient, error) {
	if strings.TrimSpace(controllerID) == "" {
		return nil, errors.New("controller id required")
	}
	opts := []nats.Option{
		nats.Name("armbridge-controller"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("controller", "disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("controller", "reconnected to NATS", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsClient{
		nc:      nc,
		subject: RPCSubject(controllerID),
		timeout: defaultRPCTimeout,
	}, nil
}

// RPCSubject constructs the agent subject for a controller id.
func RPCSubject(controllerID string) string {
	return fmt.Sprintf("controller.%s.rpc", controllerID)
}

// Close shuts down the NATS connection.
func (c *NatsClient) Close() {
	if c != nil && c.nc != nil {
		c.nc.Close()
	}
}

func (c *NatsClient) call(ctx context.Context, req rpcRequest, timeout time.Duration) (*rpcResponse, error) {
	if c == nil || c.nc == nil {
		return nil, errors.New("controller client not initialized")
	}
	req.ID = uuid.NewString()
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	msg, err := c.nc.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		return nil, fmt.Errorf("controller rpc %s: %w", req.Op, err)
	}
	var resp rpcResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("controller rpc %s: decode reply: %w", req.Op, err)
	}
	if !resp.OK {
		return &resp, rpcError(req.Op, resp.Error)
	}
	return &resp, nil
}

// rpcError maps well-known agent error strings onto the package sentinels
// so callers can use errors.Is across both implementations.
func rpcError(op, msg string) error {
	switch msg {
	case ErrMastershipHeld.Error():
		return ErrMastershipHeld
	case ErrNoMastership.Error():
		return ErrNoMastership
	case ErrModeTimeout.Error():
		return ErrModeTimeout
	}
	return fmt.Errorf("controller rpc %s: %s", op, msg)
}

func (c *NatsClient) Kind() string { return KindPhysical }

func (c *NatsClient) RequestMastership(ctx context.Context) error {
	_, err := c.call(ctx, rpcRequest{Op: opMastershipRequest}, 0)
	return err
}

func (c *NatsClient) ReleaseMastership(ctx context.Context) error {
	_, err := c.call(ctx, rpcRequest{Op: opMastershipRelease}, 0)
	return err
}

func (c *NatsClient) Grants(ctx context.Context) (GrantSet, error) {
	resp, err := c.call(ctx, rpcRequest{Op: opGrants}, 0)
	if err != nil {
		return nil, err
	}
	return NewGrantSet(resp.Grants...), nil
}

func (c *NatsClient) LoadProgram(ctx context.Context, task Task, path string) error {
	_, err := c.call(ctx, rpcRequest{Op: opProgramLoad, Task: task, Path: path}, 0)
	return err
}

func (c *NatsClient) DeleteProgram(ctx context.Context, task Task) error {
	_, err := c.call(ctx, rpcRequest{Op: opProgramDelete, Task: task}, 0)
	return err
}

func (c *NatsClient) LoadModule(ctx context.Context, task Task, path string) error {
	_, err := c.call(ctx, rpcRequest{Op: opModuleLoad, Task: task, Path: path}, 0)
	return err
}

func (c *NatsClient) SetMode(ctx context.Context, mode Mode, timeout time.Duration) error {
	req := rpcRequest{Op: opModeSet, Mode: mode, TimeoutMS: timeout.Milliseconds()}
	_, err := c.call(ctx, req, timeout+modeRPCMargin)
	return err
}

func (c *NatsClient) Start(ctx context.Context) error {
	_, err := c.call(ctx, rpcRequest{Op: opExecStart}, 0)
	return err
}

func (c *NatsClient) Stop(ctx context.Context) error {
	_, err := c.call(ctx, rpcRequest{Op: opExecStop}, 0)
	return err
}

func (c *NatsClient) Target(ctx context.Context, task Task) (Target, error) {
	resp, err := c.call(ctx, rpcRequest{Op: opTargetGet, Task: task}, 0)
	if err != nil {
		return Target{}, err
	}
	if resp.Target == nil {
		return Target{}, fmt.Errorf("controller rpc %s: empty target", opTargetGet)
	}
	return *resp.Target, nil
}

// FileSystem returns the client itself: remote file operations ride the
// same RPC channel.
func (c *NatsClient) FileSystem() RemoteFS { return c }

func (c *NatsClient) EnsureDir(ctx context.Context, dir string) error {
	_, err := c.call(ctx, rpcRequest{Op: opFSEnsureDir, Dir: dir}, 0)
	return err
}

func (c *NatsClient) Remove(ctx context.Context, path string) error {
	_, err := c.call(ctx, rpcRequest{Op: opFSRemove, Path: path}, 0)
	return err
}

func (c *NatsClient) Put(ctx context.Context, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read staged file: %w", err)
	}
	_, err = c.call(ctx, rpcRequest{Op: opFSPut, Path: remotePath, Data: data}, 0)
	return err
}

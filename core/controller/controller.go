// Package controller abstracts the robot controller SDK behind a narrow
// capability interface: mastership, authorization grants, program and
// module loads, operating mode, execution control, tool targets, and the
// controller-side file system. Bridge logic depends only on this seam, so
// it tests against the simulated implementation and runs unchanged against
// a physical cell.
package controller

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Task identifies one of the controller's execution units. Each drives one
// robotic arm.
type Task string

const (
	TaskLeft  Task = "T_ROB_L"
	TaskRight Task = "T_ROB_R"
)

// Controller kinds. Simulated controllers load straight from the bridge's
// local staging area; physical controllers need files transferred to their
// own file system first.
const (
	KindSimulated = "simulated"
	KindPhysical  = "physical"
)

// Grant is a named permission bit checked before a privileged operation.
type Grant string

const (
	GrantLoadProgram Grant = "load-program"
	GrantAdminSystem Grant = "administrate-system"
	GrantExecute     Grant = "execute"
)

// GrantSet is the set of permissions the current session holds. It is
// queried fresh before every privileged operation, never cached.
type GrantSet map[Grant]bool

// NewGrantSet builds a set from the listed grants.
func NewGrantSet(grants ...Grant) GrantSet {
	set := make(GrantSet, len(grants))
	for _, g := range grants {
		set[g] = true
	}
	return set
}

// Has reports whether the set contains g.
func (s GrantSet) Has(g Grant) bool {
	return s[g]
}

// Mode is the controller operating mode.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeManual Mode = "manual"
)

// Target is a tool target: translation plus rotation quaternion.
type Target struct {
	Trans [3]float64 `json:"trans"`
	Rot   [4]float64 `json:"rot"`
}

// String serializes the target in RAPID-style bracket text, the form the
// editor protocol carries: [[x,y,z],[q1,q2,q3,q4]].
func (t Target) String() string {
	var b strings.Builder
	b.WriteString("[[")
	for i, v := range t.Trans {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteString("],[")
	for i, v := range t.Rot {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	b.WriteString("]]")
	return b.String()
}

var (
	// ErrMastershipHeld means another client holds the exclusive write lease.
	ErrMastershipHeld = errors.New("mastership held by another client")
	// ErrNoMastership means a privileged mutation was attempted without the lease.
	ErrNoMastership = errors.New("mastership not held")
	// ErrModeTimeout means the operating-mode switch did not complete in time.
	ErrModeTimeout = errors.New("operating mode switch timed out")
)

// Controller is the capability surface the bridge requires from a robot
// controller SDK.
type Controller interface {
	// Kind reports KindSimulated or KindPhysical.
	Kind() string

	// RequestMastership acquires the exclusive write lease. Blocks or
	// fails while another client holds it.
	RequestMastership(ctx context.Context) error
	// ReleaseMastership returns the lease. Safe to call on all exit paths.
	ReleaseMastership(ctx context.Context) error

	// Grants queries the authorization system for the session's current
	// permission set.
	Grants(ctx context.Context) (GrantSet, error)

	// LoadProgram replace-loads the program at path into the task.
	LoadProgram(ctx context.Context, task Task, path string) error
	// DeleteProgram removes the task's current program, if any.
	DeleteProgram(ctx context.Context, task Task) error
	// LoadModule replace-loads the module at path into the task's program.
	LoadModule(ctx context.Context, task Task, path string) error

	// SetMode switches the operating mode, waiting at most timeout for the
	// controller to confirm. Returns ErrModeTimeout on expiry.
	SetMode(ctx context.Context, mode Mode, timeout time.Duration) error

	// Start begins program execution on the controller's active tasks.
	Start(ctx context.Context) error
	// Stop halts execution. Never gated: stopping must always be possible.
	Stop(ctx context.Context) error

	// Target reads the task's current tool target.
	Target(ctx context.Context, task Task) (Target, error)

	// FileSystem exposes the controller-side file system, or nil when the
	// controller has none reachable (simulated controllers).
	FileSystem() RemoteFS
}

// RemoteFS is the controller-side file system used to mirror staged files.
type RemoteFS interface {
	// EnsureDir creates dir if absent. Idempotent.
	EnsureDir(ctx context.Context, dir string) error
	// Remove deletes the remote file; a missing file is not an error.
	Remove(ctx context.Context, path string) error
	// Put copies the local file to the remote path.
	Put(ctx context.Context, localPath, remotePath string) error
}

package http

import (
	"context"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo is what the host reports about a session's process
type ProcessInfo struct {
	Name string `json:"name"`
	Cwd  string `json:"cwd"`
}

// ProcessInspector looks up a live process by pid
type ProcessInspector func(ctx context.Context, pid int) (ProcessInfo, error)

// InspectProcess reads the process name and working directory from the
// host. The working directory follows the shell as the user changes
// directory, unlike the directory the session was spawned in.
func InspectProcess(ctx context.Context, pid int) (ProcessInfo, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return ProcessInfo{}, err
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ProcessInfo{}, err
	}
	// Not readable for processes owned by other users on some hosts
	cwd, _ := p.CwdWithContext(ctx)
	return ProcessInfo{Name: name, Cwd: cwd}, nil
}

package discover

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/process"
)

// Process is one running process.
type Process struct {
	PID  int32
	Name string
}

// ProcessLister lists running processes.
type ProcessLister interface {
	Processes(ctx context.Context) ([]Process, error)
}

// SystemProcesses lists the processes of the running system.
type SystemProcesses struct{}

func (SystemProcesses) Processes(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// exited, or not ours to inspect
			continue
		}
		out = append(out, Process{PID: p.Pid, Name: name})
	}
	return out, nil
}

// executables maps a product directory name to the lower-case process names
// its editor runs under. Helper processes ("Code Helper (Renderer)") share the prefix.
var executables = map[string][]string{
	"Code":            {"code"},
	"Code - Insiders": {"code - insiders", "code-insiders"},
	"VSCodium":        {"codium", "vscodium"},
	"Cursor":          {"cursor"},
}

func processNames(product string) []string {
	if names, ok := executables[product]; ok {
		return names
	}
	return []string{strings.ToLower(product)}
}

// RunningEditors returns the processes that belong to any of products.
func RunningEditors(ctx context.Context, l ProcessLister, products []string) ([]Process, error) {
	procs, err := l.Processes(ctx)
	if err != nil {
		return nil, err
	}
	names := lo.FlatMap(products, func(p string, _ int) []string { return processNames(p) })
	return lo.Filter(procs, func(p Process, _ int) bool {
		name := strings.TrimSuffix(strings.ToLower(p.Name), ".exe")
		return lo.SomeBy(names, func(exe string) bool {
			return name == exe || strings.HasPrefix(name, exe+" helper")
		})
	}), nil
}

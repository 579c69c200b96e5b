package discover

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedProcesses struct {
	procs []Process
	err   error
}

func (f fixedProcesses) Processes(context.Context) ([]Process, error) {
	return f.procs, f.err
}

func TestRunningEditors(t *testing.T) {
	procs := fixedProcesses{procs: []Process{
		{PID: 1, Name: "systemd"},
		{PID: 2, Name: "Code.exe"},
		{PID: 3, Name: "Code Helper (Renderer)"},
		{PID: 4, Name: "vscode-server"},
		{PID: 5, Name: "cursor"},
		{PID: 6, Name: "unicode-daemon"},
		{PID: 7, Name: "code-insiders"},
	}}

	tests := []struct {
		products []string
		want     []int32
	}{
		{[]string{"Code"}, []int32{2, 3}},
		{[]string{"Cursor"}, []int32{5}},
		{[]string{"Code - Insiders", "VSCodium"}, []int32{7}},
		{[]string{"Portable"}, nil},
		{nil, nil},
	}

	for _, tt := range tests {
		got, err := RunningEditors(context.Background(), procs, tt.products)
		require.NoError(t, err)
		pids := make([]int32, 0, len(got))
		for _, p := range got {
			pids = append(pids, p.PID)
		}
		assert.ElementsMatch(t, tt.want, pids, "%v", tt.products)
	}
}

func TestRunningEditorsListError(t *testing.T) {
	_, err := RunningEditors(context.Background(), fixedProcesses{err: errors.New("denied")}, []string{"Code"})
	assert.Error(t, err)
}

package pool

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"tinyserve/pkg/types"
)

// member is one tracked worker, a child process or an in-process goroutine.
type member struct {
	index   int
	pid     int
	started time.Time
	kill    func()
	done    chan struct{}
	exitErr error
}

// procManager tracks the pool members and can kill them all on cleanup.
type procManager struct {
	mu      sync.Mutex
	members []*member
}

func newProcManager() *procManager { return &procManager{} }

// addCmd tracks a started child process and reaps it in the background.
func (pm *procManager) addCmd(index int, cmd *exec.Cmd) {
	m := &member{
		index:   index,
		pid:     cmd.Process.Pid,
		started: time.Now(),
		kill:    func() { _ = cmd.Process.Kill() },
		done:    make(chan struct{}),
	}
	pm.add(m)
	go func() {
		err := cmd.Wait()
		pm.exited(m, err)
	}()
}

// addFunc tracks an in-process worker; run is called on its own goroutine.
func (pm *procManager) addFunc(index, pid int, cancel func(), run func() error) {
	m := &member{index: index, pid: pid, started: time.Now(), kill: cancel, done: make(chan struct{})}
	pm.add(m)
	go func() {
		err := run()
		pm.exited(m, err)
	}()
}

func (pm *procManager) add(m *member) {
	pm.mu.Lock()
	pm.members = append(pm.members, m)
	pm.mu.Unlock()
}

func (pm *procManager) exited(m *member, err error) {
	pm.mu.Lock()
	m.exitErr = err
	pm.mu.Unlock()
	close(m.done)
}

func (pm *procManager) snapshot() []*member {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return append([]*member(nil), pm.members...)
}

// Wait blocks until every tracked member has exited and joins their errors.
func (pm *procManager) Wait() error {
	var errs []error
	for _, m := range pm.snapshot() {
		<-m.done
		pm.mu.Lock()
		if m.exitErr != nil {
			errs = append(errs, fmt.Errorf("worker %d (pid %d): %w", m.index, m.pid, m.exitErr))
		}
		pm.mu.Unlock()
	}
	return errors.Join(errs...)
}

// KillAll kills every member still running. It proceeds best-effort and
// returns how many were killed.
func (pm *procManager) KillAll() int {
	n := 0
	for _, m := range pm.snapshot() {
		select {
		case <-m.done:
		default:
			m.kill()
			n++
		}
	}
	return n
}

// Running reports how many members have not exited.
func (pm *procManager) Running() int {
	n := 0
	for _, m := range pm.snapshot() {
		select {
		case <-m.done:
		default:
			n++
		}
	}
	return n
}

// Status reports every member ordered by index.
func (pm *procManager) Status() []types.WorkerStatus {
	members := pm.snapshot()
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]types.WorkerStatus, 0, len(members))
	for _, m := range members {
		ws := types.WorkerStatus{Index: m.index, PID: m.pid, State: types.WorkerRunning, StartedUnix: m.started.Unix()}
		select {
		case <-m.done:
			ws.State = types.WorkerExited
			if m.exitErr != nil {
				ws.ExitError = m.exitErr.Error()
			}
		default:
		}
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

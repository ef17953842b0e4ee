package tartrun

import (
	"fmt"
	"sync"

	"github.com/joyshmitz/clawbox/internal/clawerr"
)

// fakeProcess is a Process whose liveness is controlled directly by the
// test, rather than by polling a real OS pid.
type fakeProcess struct {
	pid   int
	alive bool
	code  int
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Exited() (*int, bool) {
	if p.alive {
		return nil, false
	}
	code := p.code
	return &code, true
}

// Fake is an in-memory Runtime for tests, grounded on spec.md §9's
// directive to pair every external adapter with "a real adapter plus an
// in-memory fake for tests" rather than a generated mock.
type Fake struct {
	mu sync.Mutex

	vms       map[string]bool // name -> running
	ips       map[string]string
	processes map[string]*fakeProcess

	nextPid int

	// MissingBinary, when set, makes every call fail as if tart weren't
	// installed.
	MissingBinary bool
	// FailNext, when non-empty, makes the next call to the named method
	// return this error once, then clears itself.
	FailNext map[string]error
}

// NewFake returns an empty Fake runtime.
func NewFake() *Fake {
	return &Fake{
		vms:       map[string]bool{},
		ips:       map[string]string{},
		processes: map[string]*fakeProcess{},
		nextPid:   1000,
	}
}

func (f *Fake) fail(method string) error {
	if f.MissingBinary {
		return clawerr.New(clawerr.MissingTool, "Command not found: %s", binary)
	}
	if f.FailNext != nil {
		if err, ok := f.FailNext[method]; ok {
			delete(f.FailNext, method)
			return err
		}
	}
	return nil
}

func (f *Fake) VMExists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("VMExists"); err != nil {
		return false, err
	}
	_, ok := f.vms[name]
	return ok, nil
}

func (f *Fake) VMRunning(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("VMRunning"); err != nil {
		return false, err
	}
	return f.vms[name], nil
}

func (f *Fake) IP(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("IP"); err != nil {
		return "", err
	}
	ip, ok := f.ips[name]
	if !ok {
		return "", clawerr.New(clawerr.RuntimeExec, "tart ip %s exited 1: no IP address found", name)
	}
	return ip, nil
}

func (f *Fake) Clone(baseImage, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Clone"); err != nil {
		return err
	}
	if _, ok := f.vms[name]; ok {
		return clawerr.New(clawerr.RuntimeExec, "tart clone %s %s exited 1: VM already exists", baseImage, name)
	}
	f.vms[name] = false
	return nil
}

func (f *Fake) Stop(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Stop"); err != nil {
		return err
	}
	f.vms[name] = false
	if p, ok := f.processes[name]; ok {
		p.alive = false
	}
	return nil
}

func (f *Fake) Delete(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("Delete"); err != nil {
		return err
	}
	delete(f.vms, name)
	delete(f.ips, name)
	delete(f.processes, name)
	return nil
}

func (f *Fake) ListVMsJSON() ([]VMInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListVMsJSON"); err != nil {
		return nil, err
	}
	var out []VMInfo
	for name, running := range f.vms {
		out = append(out, VMInfo{Name: name, Running: running})
	}
	return out, nil
}

func (f *Fake) RunInBackground(name string, args []string, logFile string) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RunInBackground"); err != nil {
		return nil, err
	}
	f.vms[name] = true
	f.nextPid++
	p := &fakeProcess{pid: f.nextPid, alive: true}
	f.processes[name] = p
	return p, nil
}

// SetRunning lets a test mark a VM as started/stopped directly, bypassing
// RunInBackground/Stop, e.g. to simulate a VM brought up outside clawbox.
func (f *Fake) SetRunning(name string, running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vms[name] = running
}

// SetIP lets a test seed the IP a VM will report.
func (f *Fake) SetIP(name, ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ips[name] = ip
}

// KillProcess marks the process started for name as exited with code,
// simulating the VM process dying out from under the watcher.
func (f *Fake) KillProcess(name string, code int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.processes[name]
	if !ok {
		return fmt.Errorf("tartrun fake: no process recorded for %s", name)
	}
	p.alive = false
	p.code = code
	f.vms[name] = false
	return nil
}

var _ Runtime = (*Fake)(nil)

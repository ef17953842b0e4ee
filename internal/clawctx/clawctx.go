// Package clawctx is the explicit context value threaded through the
// orchestrator, replacing the module-level globals (PROJECT_DIR,
// ANSIBLE_DIR, STATE_DIR, SECRETS_FILE) that a script-style implementation
// would otherwise carry. Tests construct a Context rooted at t.TempDir()
// instead of monkey-patching package state.
package clawctx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/viper"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/provisionrun"
	"github.com/joyshmitz/clawbox/internal/sshprep"
	"github.com/joyshmitz/clawbox/internal/tartrun"
)

const secretsCacheKey = "secrets"

// Secrets is the read-only credential file at <project>/.clawbox/secrets.json.
type Secrets struct {
	VMUserPassword         string `json:"vm_user_password"`
	BootstrapAdminPassword string `json:"bootstrap_admin_password"`
}

// Context carries every path and injected collaborator the orchestrator
// needs, constructed once per CLI invocation.
type Context struct {
	ProjectDir  string
	AnsibleDir  string
	StateDir    string
	SecretsFile string
	HomeDir     string
	Base        string

	Runtime     tartrun.Runtime
	Provisioner provisionrun.Runner
	Sync        mutagenrun.Sync
	Keys        sshprep.KeyManager

	V *viper.Viper

	secretsCache *gocache.Cache
}

// New constructs a Context rooted at projectDir, binding CLAWBOX_* env vars
// through viper and resolving HOME via go-homedir (so tests can override
// HOME without touching the real account).
func New(projectDir string, runtime tartrun.Runtime, provisioner provisionrun.Runner, sync mutagenrun.Sync, keys sshprep.KeyManager) (*Context, error) {
	v := viper.New()
	v.SetEnvPrefix("CLAWBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("project-dir", ".")
	v.SetDefault("base-name", "clawbox")
	v.SetDefault("sync-ready-timeout-seconds", 60)
	v.SetDefault("lock-retry-attempts", 8)
	v.SetDefault("bootstrap-admin-user", "admin")
	v.SetDefault("sync-event-log-max-bytes", 5*1024*1024)
	v.SetDefault("watcher-poll-seconds", 5)
	v.SetDefault("running-poll-timeout-seconds", 60)
	v.SetDefault("stop-poll-timeout-seconds", 30)
	v.SetDefault("base-image", "clawbox-base")

	home, err := homedir.Dir()
	if err != nil {
		return nil, clawerr.Wrap(clawerr.Precondition, err, "could not resolve home directory")
	}

	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, clawerr.Wrap(clawerr.Precondition, err, "could not resolve project directory %s", projectDir)
	}

	stateDir := filepath.Join(abs, ".clawbox", "state")

	return &Context{
		ProjectDir:  abs,
		AnsibleDir:  filepath.Join(abs, "ansible"),
		StateDir:    stateDir,
		SecretsFile: filepath.Join(abs, ".clawbox", "secrets.json"),
		HomeDir:     home,
		Base:        v.GetString("base-name"),
		Runtime:     runtime,
		Provisioner: provisioner,
		Sync:        sync,
		Keys:        keys,
		V:           v,

		secretsCache: gocache.New(gocache.NoExpiration, gocache.NoExpiration),
	}, nil
}

// SyncReadyTimeout is the bounded timeout for the readiness barrier.
func (c *Context) SyncReadyTimeout() time.Duration {
	return time.Duration(c.V.GetInt("sync-ready-timeout-seconds")) * time.Second
}

// LockRetryAttempts returns the lock-retry-attempts tunable (default 8).
// The lock manager does not read it; its retry loop is bounded by the
// maxAttempts constant in internal/lockmgr.
func (c *Context) LockRetryAttempts() int {
	return c.V.GetInt("lock-retry-attempts")
}

// BootstrapAdminUser is the fixed pre-provision account name.
func (c *Context) BootstrapAdminUser() string {
	return c.V.GetString("bootstrap-admin-user")
}

// SyncEventLogMaxBytes is the rotation ceiling for the sync event log.
func (c *Context) SyncEventLogMaxBytes() int64 {
	return int64(c.V.GetInt("sync-event-log-max-bytes"))
}

// BaseImage is the runtime image `create` clones from.
func (c *Context) BaseImage() string {
	return c.V.GetString("base-image")
}

// WatcherPollSeconds is the poll interval written into new watcher records.
func (c *Context) WatcherPollSeconds() int {
	return c.V.GetInt("watcher-poll-seconds")
}

// RunningPollTimeout bounds how long launch waits for the runtime to report
// a VM running.
func (c *Context) RunningPollTimeout() time.Duration {
	return time.Duration(c.V.GetInt("running-poll-timeout-seconds")) * time.Second
}

// StopPollTimeout bounds how long down/delete wait for the runtime to
// report a VM no longer running.
func (c *Context) StopPollTimeout() time.Duration {
	return time.Duration(c.V.GetInt("stop-poll-timeout-seconds")) * time.Second
}

// WatchersDir is where watcher records live.
func (c *Context) WatchersDir() string {
	return filepath.Join(c.StateDir, "watchers")
}

// LogsDir is where the sync event log and watcher subprocess logs live.
func (c *Context) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// MutagenStateDir is where the active-VMs registry and per-VM keypairs live.
func (c *Context) MutagenStateDir() string {
	return filepath.Join(c.StateDir, "mutagen")
}

// MarkerPath returns the provision marker path for vm.
func (c *Context) MarkerPath(vm string) string {
	return filepath.Join(c.StateDir, vm+".provisioned")
}

// Secrets reads and caches the secrets file for the lifetime of this
// Context. A missing file is a Precondition failure, since up/launch/
// provision all require it once sync activation is reached.
func (c *Context) Secrets() (*Secrets, error) {
	if v, ok := c.secretsCache.Get(secretsCacheKey); ok {
		return v.(*Secrets), nil
	}

	data, err := os.ReadFile(c.SecretsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, clawerr.New(clawerr.Precondition, "secrets file not found: run initial setup first")
		}
		return nil, clawerr.Wrap(clawerr.Precondition, err, "could not read secrets file %s", c.SecretsFile)
	}

	var s Secrets
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, clawerr.Wrap(clawerr.ParseErr, err, "could not parse secrets file %s", c.SecretsFile)
	}

	c.secretsCache.Set(secretsCacheKey, &s, gocache.NoExpiration)
	return &s, nil
}

// EnsureStateDirs lazily creates the directories every verb assumes exist.
func (c *Context) EnsureStateDirs() error {
	for _, dir := range []string{c.StateDir, c.WatchersDir(), c.LogsDir(), c.MutagenStateDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return clawerr.Wrap(clawerr.Precondition, err, "could not create %s", dir)
		}
	}
	return nil
}

// Package runstate persists the run record describing the currently active
// tbl server instance. The record is written by the server after a
// successful bind, read by any later invocation that wants to discover or
// stop that instance, and removed again on clean shutdown.
//
// There is deliberately no cross-process lock around the record file: only
// one server ever owns the bound port, and the liveness probe (not file
// locking) is what keeps two instances from colliding.
package runstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/process"
	"gopkg.in/yaml.v3"

	"pkt.systems/tbl/internal/netutil"
)

// FileName is the run record file inside the registry directory.
const FileName = "tbl.yaml"

// RunRecord describes a live server instance.
type RunRecord struct {
	PID       int    `yaml:"pid"`
	Port      uint16 `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
	TLS       bool   `yaml:"tls"`
}

// Registry reads and writes the run record under a per-user directory,
// conventionally <configdir>/run.
type Registry struct {
	dir string
}

// New returns a registry rooted at configDir/run.
func New(configDir string) *Registry {
	return &Registry{dir: filepath.Join(configDir, "run")}
}

// Path returns the full run record path.
func (r *Registry) Path() string {
	return filepath.Join(r.dir, FileName)
}

// Load returns the persisted run record. It fails soft: a missing,
// unreadable, or malformed file is reported as "no record", never as an
// error, so a corrupt record is indistinguishable from no instance running.
func (r *Registry) Load() (RunRecord, bool) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		return RunRecord{}, false
	}
	var rec RunRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return RunRecord{}, false
	}
	if rec.Port == 0 || rec.AuthToken == "" {
		return RunRecord{}, false
	}
	return rec, true
}

// Save writes the run record, creating the registry directory if needed.
// The record is written to a temp file and renamed so a concurrent reader
// never observes a half-written file.
func (r *Registry) Save(rec RunRecord) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create run dir %s: %w", r.dir, err)
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	tmp, err := os.CreateTemp(r.dir, FileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp run record: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write run record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close run record: %w", err)
	}
	if err := os.Rename(tmpName, r.Path()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename run record: %w", err)
	}
	return nil
}

// Clear removes the run record. Removing an absent record is not an error.
func (r *Registry) Clear() {
	if err := os.Remove(r.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return
	}
}

// Alive reports whether the record's advertised port accepts TCP
// connections on loopback. Every caller that loads a record must check this
// before trusting it; a record whose port is closed is stale and must be
// cleared.
func Alive(rec RunRecord) bool {
	return netutil.PortOpen("127.0.0.1", rec.Port, netutil.LivenessTimeout)
}

// ProcessRunning reports whether the recorded PID still maps to a live
// process. Diagnostic only: port liveness is the authoritative staleness
// signal, but "process dead" versus "process alive with a closed port" is
// useful status output.
func ProcessRunning(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

package server

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/gofrs/flock"

	"github.com/laulauland/ragrep/internal/rerr"
)

// pidFile manages the daemon's PID file at dataDir/server.pid (spec
// §6.1). Exclusive ownership of the data directory is established with
// an flock advisory lock on the PID file itself — adapted from the
// embedder download lock's FileLock pattern — rather than the
// read-PID-then-signal-0 liveness probe alone, which is racy between two
// processes starting at once.
type pidFile struct {
	path string
	fl   *flock.Flock
}

func newPIDFile(path string) *pidFile {
	return &pidFile{path: path, fl: flock.New(path)}
}

// acquire takes the exclusive lock and writes the current PID. If
// another live server already holds dataDir, it returns false with no
// error; the caller should treat this as "a server is already running"
// rather than failing boot.
func (p *pidFile) acquire() (bool, error) {
	locked, err := p.fl.TryLock()
	if err != nil {
		return false, rerr.IoErr("lock pid file", err)
	}
	if !locked {
		return false, nil
	}
	if err := os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = p.fl.Unlock()
		return false, rerr.IoErr("write pid file", err)
	}
	return true, nil
}

// release unlocks and removes the PID file. Safe to call even if
// acquire never succeeded.
func (p *pidFile) release() error {
	if err := p.fl.Unlock(); err != nil {
		return rerr.IoErr("unlock pid file", err)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return rerr.IoErr("remove pid file", err)
	}
	return nil
}

// readOwnerPID reads the PID recorded by whatever process currently
// holds (or last held) the file, for diagnostics when acquire fails.
func readOwnerPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// pidIsAlive reports whether a process with the given PID is running,
// via the signal-0 probe the teacher's daemon package uses.
func pidIsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return rerr.IoErr(fmt.Sprintf("stat socket %s", path), err)
	}
	if err := os.Remove(path); err != nil {
		return rerr.IoErr(fmt.Sprintf("remove stale socket %s", path), err)
	}
	return nil
}

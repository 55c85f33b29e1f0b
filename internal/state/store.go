// Package state persists the last successfully applied profile. The
// record is shared between the daemon, short-lived CLI invocations and
// the external refresh-rate coordinator, so every write is an atomic
// replace serialized by an advisory lock.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"codeberg.org/mutker/tdpctl/internal/errors"
	"codeberg.org/mutker/tdpctl/internal/power"
)

const (
	DefaultPath = "/var/lib/tdpctl/state.json"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Mode selects who changes profiles: explicit commands only, or the
// auto-switch controller.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

// AppliedState records the last successful apply. Readers must tolerate
// unknown fields so the record stays forward-compatible.
type AppliedState struct {
	Profile   string       `json:"profile"`
	AppliedAt time.Time    `json:"applied_at"`
	Source    power.Source `json:"source"`
	Mode      Mode         `json:"mode"`
}

// Store is the durable record of the applied state.
type Store interface {
	// Read returns the last applied state, or nil when nothing has
	// ever been applied.
	Read() (*AppliedState, error)

	// Write atomically replaces the record. Only called after a
	// successful apply.
	Write(st AppliedState) error
}

type fileStore struct {
	path string
}

// NewStore returns a Store backed by the given file path.
func NewStore(path string) Store {
	return &fileStore{path: path}
}

func (s *fileStore) Read() (*AppliedState, error) {
	errFactory := errors.New()

	// Nothing has been applied yet. Checked before locking so a fresh
	// system without the state directory still reads cleanly.
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, nil
	}

	unlock, err := s.lock(unix.LOCK_SH)
	if err != nil {
		return nil, err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, errFactory.Wrap(ErrStateRead, err)
	}

	var st AppliedState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, errFactory.Wrap(ErrStateCorrupt, err)
	}

	if st.Profile == "" || (st.Mode != ModeManual && st.Mode != ModeAuto) {
		return nil, errFactory.WithData(ErrStateCorrupt, s.path)
	}

	return &st, nil
}

func (s *fileStore) Write(st AppliedState) error {
	errFactory := errors.New()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errFactory.Wrap(ErrStateWrite, err)
	}

	unlock, err := s.lock(unix.LOCK_EX)
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errFactory.Wrap(ErrStateWrite, err)
	}
	data = append(data, '\n')

	// Write-to-temp then rename so concurrent readers never observe a
	// partial record.
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return errFactory.Wrap(ErrStateWrite, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errFactory.Wrap(ErrStateWrite, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errFactory.Wrap(ErrStateWrite, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errFactory.Wrap(ErrStateWrite, err)
	}

	if err := os.Chmod(tmp.Name(), filePerm); err != nil {
		os.Remove(tmp.Name())
		return errFactory.Wrap(ErrStateWrite, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return errFactory.Wrap(ErrStateWrite, err)
	}

	return nil
}

// lock takes an advisory lock on a sidecar file. The state file itself
// is never locked because rename replaces its inode on every write.
func (s *fileStore) lock(how int) (func(), error) {
	errFactory := errors.New()

	f, err := os.OpenFile(s.path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, errFactory.Wrap(ErrStateLock, err)
	}

	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, errFactory.Wrap(ErrStateLock, err)
	}

	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}

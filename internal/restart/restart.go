// Package restart performs device restart after configuration change
// or unrecoverable broker failure.
package restart

import (
	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/temoto/drybox/log2"
	"golang.org/x/sys/unix"
)

// ExitCode asks supervisor (systemd Restart=on-failure, runit) to start process again.
// EX_TEMPFAIL from sysexits.h
const ExitCode = 75

const (
	ModeExit   = "exit"
	ModeReboot = "reboot"
)

type Restarter struct {
	Mode string
	Log  *log2.Log

	exit   func(code int)
	notify func(state string) (bool, error)
	reboot func() error
}

func New(mode string, log *log2.Log, exit func(int)) *Restarter {
	return &Restarter{
		Mode:   mode,
		Log:    log,
		exit:   exit,
		notify: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
		reboot: rebootSystem,
	}
}

// Restart does not return on success. Returned error means reboot
// syscall failed, exit fallback has already been attempted.
func (self *Restarter) Restart(reason error) error {
	self.Log.Errorf("restart mode=%s reason=%v", self.Mode, reason)
	if _, err := self.notify(daemon.SdNotifyStopping); err != nil {
		self.Log.Errorf("restart sdnotify err=%v", err)
	}

	if self.Mode == ModeReboot {
		err := self.reboot()
		if err == nil {
			return nil
		}
		err = errors.Annotate(err, "restart reboot")
		self.Log.Error(err)
		self.exit(ExitCode)
		return err
	}

	self.exit(ExitCode)
	return nil
}

func rebootSystem() error {
	unix.Sync()
	return errors.Trace(unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART))
}

package common

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// LockMemory locks current and future pages in memory so the relay key is never swapped to disk.
// Requires CAP_IPC_LOCK.
func LockMemory() error {
	if err := unix.Mlockall(syscall.MCL_CURRENT | syscall.MCL_FUTURE); err != nil {
		return fmt.Errorf("failed to lock memory (CAP_IPC_LOCK missing?): %w", err)
	}
	return nil
}

// SetRestrictiveUmask masks the group and world bits so key files and the database are private.
func SetRestrictiveUmask() {
	syscall.Umask(0077) // cannot fail
}

// Package process signals process groups and decodes exit statuses in a
// platform-specific way.
//
// Every converter child runs in its own process group so that a graceful
// or forceful stop reaches all of its descendants. Callers must never pass
// the pid of a process that has already been reaped: the kernel may have
// reused it.
package process

import "errors"

// ErrSameGroup is returned when a signal would reach the caller's own
// process group.
var ErrSameGroup = errors.New("process shares the caller's process group")

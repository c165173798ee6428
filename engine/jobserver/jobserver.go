// Package jobserver implements a GNU make-compatible job token pool: a
// process-wide semaphore of execution slots backed by an OS pipe, gated by
// pluggable admission predicates (load average, memory headroom).
//
// A token is a single byte written into the pipe. Acquiring a token means
// reading one byte out; releasing means writing one back. Any other process
// that understands the GNU make jobserver protocol (make itself, invoked
// with --jobserver-fds=R,W -j) can share the same pool by reading and
// writing the same pipe.
package jobserver

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"

	goexec "github.com/jbohren-forks/catkin-tools/go/exec"
	"github.com/jbohren-forks/catkin-tools/go/sklog"
	"github.com/jbohren-forks/catkin-tools/go/skerr"
)

// pollInterval is the sticky backoff applied whenever an admission
// predicate blocks a waiting acquire, or a try fails to find a ready token.
const pollInterval = 10 * time.Millisecond

// Predicate reports whether it is currently acceptable to dispatch another
// job. A false result (with no error) blocks admission without being a
// failure; a non-nil error aborts the caller's wait/try entirely.
type Predicate func() (bool, error)

// JobServer is a GNU make-compatible token pool. The zero value is not
// usable; construct with New.
//
// The pipe ends are kept as *os.File (not bare fds) so the same descriptor
// can be handed to a child process as an ExtraFile without a second owner
// racing the JobServer's own raw syscalls against the Go runtime's file
// finalizer closing it out from under them.
type JobServer struct {
	maxJobs    int
	readFile   *os.File
	writeFile  *os.File
	predicates []Predicate

	gnuMakeSupported bool
}

// New creates a JobServer with maxJobs tokens available immediately, gated
// by the given admission predicates (all must pass for a token to be
// handed out). The read end of the underlying pipe is opened non-blocking
// so TryAcquire can poll it without stalling a goroutine in the runtime's
// netpoller-unaware raw syscall path.
func New(maxJobs int, predicates ...Predicate) (*JobServer, error) {
	if maxJobs <= 0 {
		return nil, skerr.Fmt("jobserver: maxJobs must be positive, got %d", maxJobs)
	}

	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK); err != nil {
		return nil, skerr.Wrapf(err, "jobserver: failed to create pipe")
	}

	js := &JobServer{
		maxJobs:    maxJobs,
		readFile:   os.NewFile(uintptr(p[0]), "jobserver-read"),
		writeFile:  os.NewFile(uintptr(p[1]), "jobserver-write"),
		predicates: predicates,
	}

	for i := 0; i < maxJobs; i++ {
		if _, err := unix.Write(int(js.writeFile.Fd()), []byte{'+'}); err != nil {
			js.Close()
			return nil, skerr.Wrapf(err, "jobserver: failed to prime token pipe")
		}
	}

	js.gnuMakeSupported = probeGNUMakeSupport()
	if !js.gnuMakeSupported {
		sklog.Warning("jobserver: GNU make job server protocol not supported by the system 'make'; child make invocations may oversubscribe the host")
	}

	return js, nil
}

// Close releases the underlying pipe file descriptors. Safe to call once
// the JobServer is no longer in use; not safe to call concurrently with an
// in-flight Acquire/Release.
func (j *JobServer) Close() error {
	var err error
	if e := j.readFile.Close(); e != nil {
		err = e
	}
	if e := j.writeFile.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

// MaxJobs returns the configured token capacity.
func (j *JobServer) MaxJobs() int { return j.maxJobs }

// AddPredicates appends admission predicates after construction, for the
// common case where a predicate closes over the very JobServer it gates
// (e.g. LoadAveragePredicate calling js.RunningJobs()).
func (j *JobServer) AddPredicates(predicates ...Predicate) {
	j.predicates = append(j.predicates, predicates...)
}

// conditionsOK reports whether every admission predicate currently passes.
func (j *JobServer) conditionsOK() (bool, error) {
	for _, p := range j.predicates {
		ok, err := p()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// TryAcquire makes one non-blocking attempt to obtain a token. It returns
// (true, nil) if a token was obtained (the caller must Release it later),
// (false, nil) if none is currently available (predicates blocked, or the
// pipe had no token ready), or (false, err) if a predicate reported an
// unrecoverable error.
func (j *JobServer) TryAcquire() (bool, error) {
	ok, err := j.conditionsOK()
	if err != nil {
		return false, skerr.Wrap(err)
	}
	if !ok {
		return false, nil
	}
	return j.rawAcquire()
}

// rawAcquire performs the non-blocking single-byte pipe read, retrying on
// EINTR and treating EAGAIN/EWOULDBLOCK as "no token available" rather
// than an error.
func (j *JobServer) rawAcquire() (bool, error) {
	var buf [1]byte
	fd := int(j.readFile.Fd())
	for {
		n, err := unix.Read(fd, buf[:])
		if err == nil {
			return n == 1, nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return false, nil
		}
		return false, skerr.Wrapf(err, "jobserver: failed to read token")
	}
}

// WaitAcquire blocks until a token is obtained or ctx is cancelled. It
// polls conditions and the pipe every pollInterval; each failed poll due to
// a blocked predicate is logged at Debug (an expected, frequent condition
// under load, not an anomaly).
func (j *JobServer) WaitAcquire(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		got, err := j.TryAcquire()
		if err != nil {
			return skerr.Wrap(err)
		}
		if got {
			return nil
		}

		sklog.Debugf("jobserver: waiting for a token (max_jobs=%d)", j.maxJobs)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release returns one token to the pool.
func (j *JobServer) Release() error {
	_, err := unix.Write(int(j.writeFile.Fd()), []byte{'+'})
	if err != nil {
		return skerr.Wrapf(err, "jobserver: failed to release token")
	}
	return nil
}

// RunningJobs estimates the number of currently checked-out tokens by
// querying how many bytes remain unread in the pipe via FIONREAD.
func (j *JobServer) RunningJobs() (int, error) {
	n, err := unix.IoctlGetInt(int(j.readFile.Fd()), unix.FIONREAD)
	if err != nil {
		return 0, skerr.Wrapf(err, "jobserver: failed to query pipe depth")
	}
	return j.maxJobs - n, nil
}

// GNUMakeEnabled reports whether the host's 'make' understands the
// jobserver protocol, as determined once at construction time.
func (j *JobServer) GNUMakeEnabled() bool { return j.gnuMakeSupported }

// JobServerFiles returns the token pipe's read and write ends, in the
// exact order MakeArgs' fd numbers assume. A Command stage that sets
// InheritJobServer wires these as its ExtraFiles so a recursive child
// (typically `make`) shares this pool via the GNU make jobserver protocol:
// os/exec.Cmd.ExtraFiles renumbers entry i to fd 3+i in the child, so the
// read end always lands on fd 3 and the write end on fd 4.
func (j *JobServer) JobServerFiles() []*os.File {
	return []*os.File{j.readFile, j.writeFile}
}

// MakeArgs returns the extra arguments ("--jobserver-fds=3,4", "-j") that
// must be passed to a child 'make' invocation whose ExtraFiles were set to
// JobServerFiles(), so it shares this token pool, or nil if the host's make
// does not support the protocol.
func (j *JobServer) MakeArgs() []string {
	if !j.gnuMakeSupported {
		return nil
	}
	return []string{"--jobserver-fds=3,4", "-j"}
}

const jobserverSupportMakefile = "all:\n\techo $(MAKEFLAGS) | grep -- '--jobserver-fds'\n"

// probeGNUMakeSupport shells out to 'make' with a scratch Makefile whose
// sole rule greps its own MAKEFLAGS for a jobserver-fds token, mirroring
// the probe catkin_tools performs at startup.
func probeGNUMakeSupport() bool {
	f, err := os.CreateTemp("", "jobserver-probe-*.mk")
	if err != nil {
		sklog.Warningf("jobserver: could not create probe Makefile: %v", err)
		return false
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(jobserverSupportMakefile); err != nil {
		f.Close()
		sklog.Warningf("jobserver: could not write probe Makefile: %v", err)
		return false
	}
	if err := f.Close(); err != nil {
		sklog.Warningf("jobserver: could not close probe Makefile: %v", err)
		return false
	}

	err = goexec.Run(context.Background(), &goexec.Command{
		Name: "make",
		Args: []string{"-f", path, "-j2"},
	})
	return err == nil
}

package fifo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Make creates a named pipe at path. An existing pipe is left untouched; an
// existing file of any other kind is an error.
func Make(path string, perm uint32) error {
	err := unix.Mkfifo(path, perm)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	fi, statErr := os.Stat(path)
	if statErr != nil {
		return fmt.Errorf("stat %s: %w", path, statErr)
	}
	if fi.Mode()&os.ModeNamedPipe == 0 {
		return fmt.Errorf("%s exists and is not a named pipe", path)
	}
	return nil
}

// Remove deletes the named pipes, ignoring the ones already gone.
func Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AwaitToken polls r every interval until a read returns token, optionally
// followed by NUL padding. Anything else that arrives is discarded. It blocks
// until the token arrives or ctx is done; read errors end the wait.
func AwaitToken(ctx context.Context, r io.Reader, token string, interval time.Duration) error {
	buf := make([]byte, max(len(token)+1, 16))
	return wait.PollUntilContextCancel(ctx, interval, true, func(context.Context) (bool, error) {
		n, err := r.Read(buf)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		return strings.TrimRight(string(buf[:n]), "\x00") == token, nil
	})
}

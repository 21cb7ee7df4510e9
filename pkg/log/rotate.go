package log

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotateScheme marks an output path that is written through a rotating
// file, e.g. "rotate:///var/log/atc-tower.log".
const RotateScheme = "rotate"

// RotationOptions bounds the size and retention of rotated log files.
type RotationOptions struct {
	MaxSize    int  `json:"max-size,omitempty" mapstructure:"max-size"`
	MaxAge     int  `json:"max-age,omitempty" mapstructure:"max-age"`
	MaxBackups int  `json:"max-backups,omitempty" mapstructure:"max-backups"`
	Compress   bool `json:"compress,omitempty" mapstructure:"compress"`
}

type rotatingSink struct {
	*lumberjack.Logger
}

func (rotatingSink) Sync() error { return nil }

func init() {
	if err := zap.RegisterSink(RotateScheme, newRotatingSink); err != nil {
		panic(fmt.Sprintf("failed to register %s sink: %v", RotateScheme, err))
	}
}

func newRotatingSink(u *url.URL) (zap.Sink, error) {
	filename := u.Host + u.Path
	if filename == "" {
		return nil, fmt.Errorf("log: empty file name in %q", u.String())
	}

	q := u.Query()
	l := &lumberjack.Logger{Filename: filename}
	var err error
	if l.MaxSize, err = queryInt(q, "max-size"); err != nil {
		return nil, err
	}
	if l.MaxAge, err = queryInt(q, "max-age"); err != nil {
		return nil, err
	}
	if l.MaxBackups, err = queryInt(q, "max-backups"); err != nil {
		return nil, err
	}
	l.Compress = q.Get("compress") == "true"
	return rotatingSink{Logger: l}, nil
}

func queryInt(q url.Values, key string) (int, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("log: invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

// withRotation appends the rotation limits to every rotate:// output path
// that does not carry its own query.
func withRotation(paths []string, opts RotationOptions) []string {
	out := make([]string, 0, len(paths))
	prefix := RotateScheme + "://"
	for _, p := range paths {
		if !strings.HasPrefix(p, prefix) || strings.Contains(p, "?") {
			out = append(out, p)
			continue
		}
		q := url.Values{}
		if opts.MaxSize > 0 {
			q.Set("max-size", strconv.Itoa(opts.MaxSize))
		}
		if opts.MaxAge > 0 {
			q.Set("max-age", strconv.Itoa(opts.MaxAge))
		}
		if opts.MaxBackups > 0 {
			q.Set("max-backups", strconv.Itoa(opts.MaxBackups))
		}
		if opts.Compress {
			q.Set("compress", "true")
		}
		if len(q) > 0 {
			p += "?" + q.Encode()
		}
		out = append(out, p)
	}
	return out
}

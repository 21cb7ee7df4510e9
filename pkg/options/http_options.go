package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*HttpOptions)(nil)

// HttpOptions contains configuration items related to the health and metrics
// HTTP server.
type HttpOptions struct {
	// Network with server network.
	Network string `json:"network" mapstructure:"network"`

	// Address with server address. Empty disables the server.
	Addr string `json:"addr" mapstructure:"addr"`

	// ReadHeaderTimeout bounds how long the server waits for request headers.
	ReadHeaderTimeout time.Duration `json:"read-header-timeout" mapstructure:"read-header-timeout"`

	// ShutdownTimeout bounds the graceful shutdown of the server.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewHttpOptions creates a HttpOptions object with default parameters.
func NewHttpOptions() *HttpOptions {
	return &HttpOptions{
		Network:           "tcp",
		Addr:              "127.0.0.1:9464",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Enabled reports whether the server should be started.
func (o *HttpOptions) Enabled() bool {
	return o != nil && o.Addr != ""
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *HttpOptions) Validate() []error {
	if !o.Enabled() {
		return nil
	}

	errors := []error{}

	if err := ValidateAddress(o.Addr); err != nil {
		errors = append(errors, err)
	}
	if o.Network != "tcp" && o.Network != "tcp4" && o.Network != "tcp6" {
		errors = append(errors, fmt.Errorf("--http.network must be tcp, tcp4 or tcp6, got %q", o.Network))
	}

	return errors
}

// AddFlags adds flags related to the HTTP server to the specified FlagSet.
func (o *HttpOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Network, join(prefixes, "http.network"), o.Network, "Specify the network for the HTTP server.")
	fs.StringVar(&o.Addr, join(prefixes, "http.addr"), o.Addr, "Specify the HTTP server bind address and port. Empty disables /metrics, /healthz and /readyz.")
	fs.DurationVar(&o.ReadHeaderTimeout, join(prefixes, "http.read-header-timeout"), o.ReadHeaderTimeout, "Timeout for reading request headers.")
	fs.DurationVar(&o.ShutdownTimeout, join(prefixes, "http.shutdown-timeout"), o.ShutdownTimeout, "Timeout for graceful server shutdown.")
}

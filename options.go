package lspdbg

import (
	"log/slog"
	"time"
)

// Defaults applied by NewClient when the corresponding option is not set.
const (
	// DefaultStartupGrace is how long Start watches for a premature exit
	// before declaring the server launched.
	DefaultStartupGrace = 500 * time.Millisecond

	// DefaultCallTimeout bounds each Call from send to matching response.
	DefaultCallTimeout = 5 * time.Second

	// DefaultShutdownTimeout bounds the cooperative shutdown call in Close.
	DefaultShutdownTimeout = 2 * time.Second

	// DefaultTerminateGrace is the SIGTERM-to-SIGKILL budget in Close.
	DefaultTerminateGrace = 2 * time.Second
)

// Options configures a Client. Use the With* functions rather than
// constructing this directly.
type Options struct {
	// Logger for debug output. If not set, logging is disabled.
	Logger *slog.Logger

	// ServerCommand is the language-server binary to launch. Required.
	ServerCommand string

	// ServerArgs are passed to the server binary.
	ServerArgs []string

	// Env holds extra environment variables for the server process,
	// appended to the parent's environment.
	Env map[string]string

	// Cwd is the server's working directory.
	Cwd string

	// StartupGrace is the premature-exit watch window after launch.
	StartupGrace time.Duration

	// CallTimeout is the per-call response budget used by Call.
	CallTimeout time.Duration

	// ShutdownTimeout bounds the shutdown request during Close.
	ShutdownTimeout time.Duration

	// TerminateGrace is how long Close waits after SIGTERM before killing.
	TerminateGrace time.Duration

	// EventObserver receives asynchronous server events.
	EventObserver EventObserver

	// StderrClassifier selects which stderr lines are notable.
	StderrClassifier StderrClassifier

	// StderrObserver receives notable stderr lines.
	StderrObserver StderrObserver
}

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options over the defaults.
func applyOptions(opts []Option) *Options {
	options := &Options{
		StartupGrace:    DefaultStartupGrace,
		CallTimeout:     DefaultCallTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		TerminateGrace:  DefaultTerminateGrace,
	}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithServerCommand sets the language-server binary and its arguments.
func WithServerCommand(command string, args ...string) Option {
	return func(o *Options) {
		o.ServerCommand = command
		o.ServerArgs = args
	}
}

// WithEnv provides additional environment variables for the server process.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		o.Env = env
	}
}

// WithCwd sets the working directory for the server process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithStartupGrace sets how long Start watches for a premature server exit.
// A server that dies within this window fails Start with PrematureExitError.
func WithStartupGrace(grace time.Duration) Option {
	return func(o *Options) {
		o.StartupGrace = grace
	}
}

// WithCallTimeout sets the default per-call response budget. The budget
// covers the whole wait for the matching response; interleaved server
// notifications do not reset it.
func WithCallTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.CallTimeout = timeout
	}
}

// WithShutdownTimeout bounds the cooperative shutdown request during Close.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ShutdownTimeout = timeout
	}
}

// WithTerminateGrace sets how long Close waits for the server to exit after
// SIGTERM before killing it.
func WithTerminateGrace(grace time.Duration) Option {
	return func(o *Options) {
		o.TerminateGrace = grace
	}
}

// WithEventObserver registers a callback for asynchronous server events
// (notifications and server-initiated requests). Events are delivered in
// arrival order on the dispatch goroutine.
func WithEventObserver(observer EventObserver) Option {
	return func(o *Options) {
		o.EventObserver = observer
	}
}

// WithStderrClassifier sets the classifier deciding which stderr lines are
// notable. Lines the classifier rejects are still kept in the stderr tail.
func WithStderrClassifier(classify StderrClassifier) Option {
	return func(o *Options) {
		o.StderrClassifier = classify
	}
}

// WithStderrKeywords is shorthand for WithStderrClassifier(MatchKeywords(...)).
func WithStderrKeywords(keywords ...string) Option {
	return func(o *Options) {
		o.StderrClassifier = MatchKeywords(keywords...)
	}
}

// WithStderrObserver registers a callback for notable stderr lines.
func WithStderrObserver(observer StderrObserver) Option {
	return func(o *Options) {
		o.StderrObserver = observer
	}
}

package runnotify

import (
	"context"
	"os"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/lattiq/runnotify/internal/logger"
	"github.com/lattiq/runnotify/internal/metrics"
)

// Invocation describes one run of a wrapped function.
type Invocation struct {
	// Name is the logical operation name shown as "Main call".
	Name string

	// Host is the machine name, suffixed with the rank when one is set.
	Host string

	// Rank is the raw rank value, empty when the process has none.
	Rank string

	// Master reports whether this process sends start and success messages.
	Master bool

	Start time.Time
	End   time.Time
}

// Elapsed returns the time between Start and End.
func (i *Invocation) Elapsed() time.Duration {
	return i.End.Sub(i.Start)
}

// Notifier sends lifecycle messages around wrapped functions.
// A Notifier is safe for concurrent use once built.
type Notifier struct {
	dispatcher Dispatcher
	lookupEnv  EnvLookup
	rank       *int
	hostname   Hostname
	now        func() time.Time
	logger     *zap.Logger
	policy     NotifyConfig
	metrics    bool
	tracer     trace.Tracer
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithRank fixes the process rank instead of reading RANK from the environment.
func WithRank(rank int) NotifierOption {
	return func(n *Notifier) {
		n.rank = &rank
	}
}

// WithEnv sets the environment accessor used to read RANK.
func WithEnv(lookup EnvLookup) NotifierOption {
	return func(n *Notifier) {
		n.lookupEnv = lookup
	}
}

// WithHostname sets the function that reports the machine name.
func WithHostname(hostname Hostname) NotifierOption {
	return func(n *Notifier) {
		n.hostname = hostname
	}
}

// WithClock sets the time source for start and end dates.
func WithClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) {
		n.now = now
	}
}

// WithNotifierLogger sets the logger that records failed sends.
func WithNotifierLogger(l *zap.Logger) NotifierOption {
	return func(n *Notifier) {
		n.logger = l
	}
}

// WithNotifyPolicy replaces the send-failure and rendering policy.
func WithNotifyPolicy(policy NotifyConfig) NotifierOption {
	return func(n *Notifier) {
		n.policy = policy
	}
}

// WithNotifierMetrics toggles the invocation counter.
func WithNotifierMetrics(enabled bool) NotifierOption {
	return func(n *Notifier) {
		n.metrics = enabled
	}
}

// NewNotifier creates a notifier that delivers through d.
func NewNotifier(d Dispatcher, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		dispatcher: d,
		lookupEnv:  os.LookupEnv,
		hostname:   os.Hostname,
		now:        time.Now,
		logger:     logger.NoLogger(),
		policy:     DefaultConfig().Notify,
		metrics:    true,
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewEmailNotifier builds the mail handle once and returns a notifier that emails
// recipients through it. Handle construction follows NewHandle.
func NewEmailNotifier(recipients []string, sender string, opts ...Option) (*Notifier, error) {
	client, err := NewHandle(recipients, sender, opts...)
	if err != nil {
		return nil, err
	}
	return NewClientNotifier(client, recipients), nil
}

// NewClientNotifier returns a notifier that emails recipients through client,
// inheriting its logger, metrics switch and notification policy.
func NewClientNotifier(client *Client, recipients []string, opts ...NotifierOption) *Notifier {
	cfg := client.Config()
	base := []NotifierOption{
		WithNotifierLogger(client.Logger()),
		WithNotifyPolicy(cfg.Notify),
		WithNotifierMetrics(cfg.Monitoring.Metrics.Enabled),
		func(n *Notifier) { n.tracer = client.tracer },
	}
	return NewNotifier(&EmailDispatcher{Client: client, Recipients: recipients}, append(base, opts...)...)
}

// Func is a function wrapped with lifecycle notifications. Call it through Call
// or hand out the closure returned by Func.
type Func[T any] struct {
	// Name is shown as "Main call" in every message.
	Name string

	notifier *Notifier
	fn       func(context.Context) (T, error)
}

// Wrap wraps fn so that each call is reported through n. An empty name is
// replaced by the function's symbol name.
func Wrap[T any](n *Notifier, name string, fn func(context.Context) (T, error)) *Func[T] {
	if name == "" {
		name = funcName(fn)
	}
	return &Func[T]{Name: name, notifier: n, fn: fn}
}

// Run calls fn once with lifecycle notifications.
func (n *Notifier) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	if name == "" {
		name = funcName(fn)
	}
	_, err := Wrap(n, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}).Call(ctx)
	return err
}

// Func returns a closure with the wrapped function's signature.
func (f *Func[T]) Func() func(context.Context) (T, error) {
	return f.Call
}

// Call runs the wrapped function. Errors from it are returned unchanged and
// panics are re-raised with the original value once the crash is reported.
func (f *Func[T]) Call(ctx context.Context) (result T, err error) {
	n := f.notifier

	ctx, span := n.tracer.Start(ctx, "runnotify.Func.Call",
		trace.WithAttributes(attribute.String("runnotify.call", f.Name)),
	)
	defer span.End()

	rank := n.currentRank()
	inv := &Invocation{
		Name:   f.Name,
		Host:   hostIdentifier(n.hostname, rank),
		Rank:   rank.value,
		Master: rank.master,
		Start:  n.now(),
	}
	span.SetAttributes(
		attribute.String("runnotify.host", inv.Host),
		attribute.Bool("runnotify.master", inv.Master),
	)

	if inv.Master {
		if sendErr := n.notify(ctx, ComposeStarted(inv)); sendErr != nil && n.policy.PropagateSendErrors {
			span.RecordError(sendErr)
			span.SetStatus(codes.Error, "start notification failed")
			return result, sendErr
		}
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		p := recover()
		if p == nil {
			// runtime.Goexit
			return
		}
		stack := captureStack()
		inv.End = n.now()
		n.observe("crashed")
		span.SetStatus(codes.Error, "panic")
		_ = n.notify(ctx, ComposeCrashed(inv, describeFailure(p), string(stack)))
		panic(p)
	}()

	result, err = f.fn(ctx)
	finished = true
	inv.End = n.now()

	if err != nil {
		n.observe("crashed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "call failed")
		_ = n.notify(ctx, ComposeCrashed(inv, describeFailure(err), traceOf(err, captureStack())))
		return result, err
	}

	n.observe("succeeded")
	span.SetStatus(codes.Ok, "call succeeded")

	if inv.Master {
		rendered := RenderValue(result, n.policy.ValueFormat)
		if sendErr := n.notify(ctx, ComposeSucceeded(inv, rendered)); sendErr != nil && n.policy.PropagateSendErrors {
			return result, sendErr
		}
	}

	return result, nil
}

func (n *Notifier) currentRank() rankInfo {
	if n.rank != nil {
		return rankFromValue(strconv.Itoa(*n.rank))
	}
	return lookupRank(n.lookupEnv)
}

// notify delivers msg even when ctx is already cancelled. Failures are logged
// and returned.
func (n *Notifier) notify(ctx context.Context, msg *Message) error {
	err := n.dispatcher.Dispatch(context.WithoutCancel(ctx), msg)
	if err != nil {
		n.logger.Error("lifecycle notification failed",
			zap.Stringer("kind", msg.Kind),
			zap.Error(err),
		)
	}
	return err
}

func (n *Notifier) observe(outcome string) {
	if n.metrics {
		metrics.Invocations.WithLabelValues(outcome).Inc()
	}
}

// funcName returns the symbol name of fn without its package path,
// e.g. "train" or "(*Trainer).Fit".
func funcName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "unknown"
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return "unknown"
	}
	return shortFuncName(rf.Name())
}

// shortFuncName strips the import path and package name from a runtime symbol.
// The runtime escapes dots in the last path element as %2e, so the first dot
// after the final slash always ends the package name.
func shortFuncName(symbol string) string {
	if i := strings.LastIndex(symbol, "/"); i >= 0 {
		symbol = symbol[i+1:]
	}
	if i := strings.Index(symbol, "."); i >= 0 {
		symbol = symbol[i+1:]
	}
	return strings.TrimSuffix(symbol, "-fm")
}

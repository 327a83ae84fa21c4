package runnotify

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/gomail.v2"

	"github.com/lattiq/runnotify/internal/metrics"
)

var testStart = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

// steppingClock returns testStart, then advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := testStart
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

func envWith(vars map[string]string) EnvLookup {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func fixedHost(name string) Hostname {
	return func() (string, error) { return name, nil }
}

func fortyTwo(context.Context) (int, error) {
	return 42, nil
}

type explodingStringer struct{}

func (explodingStringer) String() string { panic("no string for you") }

func newTestNotifier(t *testing.T, p Provider, recipients []string, clientOpts []Option, opts ...NotifierOption) *Notifier {
	t.Helper()
	client := newTestClient(t, p, recipients, "", clientOpts...)
	base := []NotifierOption{
		WithEnv(envWith(nil)),
		WithHostname(fixedHost("gpu-01")),
		WithClock(steppingClock(90 * time.Minute)),
	}
	return NewClientNotifier(client, recipients, append(base, opts...)...)
}

func subjectsOf(emails []*Email) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		out = append(out, e.Subject)
	}
	return out
}

func TestWrapSuccess(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, nil)

	f := Wrap(n, "", fortyTwo)
	assert.Equal(t, "fortyTwo", f.Name)

	v, err := f.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	sent := p.emails()
	require.Len(t, sent, 2)
	assert.Equal(t, []string{KindStarted.Subject(), KindSucceeded.Subject()}, subjectsOf(sent))

	assert.Equal(t, strings.Join([]string{
		"Your training has started.",
		"Machine name: gpu-01",
		"Main call: fortyTwo",
		"Starting date: 2024-03-01 09:30:00",
	}, "\n"), sent[0].TextBody)

	assert.Equal(t, strings.Join([]string{
		"Your training is complete.",
		"Machine name: gpu-01",
		"Main call: fortyTwo",
		"Starting date: 2024-03-01 09:30:00",
		"End date: 2024-03-01 11:00:00",
		"Training duration: 1:30:00",
		"Main call returned value: 42",
	}, "\n"), sent[1].TextBody)
}

func TestWrapSendsToEveryRecipient(t *testing.T) {
	p := &recordingProvider{}
	recipients := []string{"a@x.com", "b@x.com"}
	n := newTestNotifier(t, p, recipients, nil)

	_, err := Wrap(n, "train", fortyTwo).Call(context.Background())
	require.NoError(t, err)

	sent := p.emails()
	require.Len(t, sent, 4)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "a@x.com", "b@x.com"}, recipientsOf(sent))
}

func TestWrapReturnsErrorUnchanged(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, nil)
	boom := errors.New("boom")

	_, err := Wrap(n, "train", func(context.Context) (int, error) {
		return 0, boom
	}).Call(context.Background())

	assert.Equal(t, boom, err)
	assert.ErrorIs(t, err, boom)

	sent := p.emails()
	require.Len(t, sent, 2)
	assert.Equal(t, KindCrashed.Subject(), sent[1].Subject)
	assert.Contains(t, sent[1].TextBody, "Crash date: 2024-03-01 11:00:00")
	assert.Contains(t, sent[1].TextBody, "Crashed training duration: 1:30:00\n\n")
	assert.Contains(t, sent[1].TextBody, "*errors.errorString: boom\n\n")
	assert.Contains(t, sent[1].TextBody, "Traceback:")
}

func TestWrapRepanics(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, nil)

	f := Wrap(n, "train", func(context.Context) (int, error) {
		panic("kaboom")
	})

	assert.PanicsWithValue(t, "kaboom", func() {
		_, _ = f.Call(context.Background())
	})

	sent := p.emails()
	require.Len(t, sent, 2)
	assert.Equal(t, KindCrashed.Subject(), sent[1].Subject)
	assert.Contains(t, sent[1].TextBody, "string: kaboom")
}

func TestWrapDivideByZero(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"ops@co.com"}, nil)
	zero := 0

	f := Wrap(n, "divide", func(context.Context) (int, error) {
		return 1 / zero, nil
	})

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		_, _ = f.Call(context.Background())
	}()

	rerr, ok := recovered.(runtime.Error)
	require.True(t, ok, "expected a runtime.Error, got %T", recovered)
	assert.Contains(t, rerr.Error(), "integer divide by zero")

	var crashes []*Email
	for _, e := range p.emails() {
		if e.Subject == KindCrashed.Subject() {
			crashes = append(crashes, e)
		}
	}
	require.Len(t, crashes, 1)
	assert.Equal(t, "ops@co.com", crashes[0].To[0].Email)
	assert.Contains(t, crashes[0].TextBody, "integer divide by zero")
	assert.Contains(t, crashes[0].TextBody, "notifier_test.go")
}

func TestWrapRank(t *testing.T) {
	recipients := []string{"a@x.com", "b@x.com"}

	t.Run("non-master success sends nothing", func(t *testing.T) {
		p := &recordingProvider{}
		n := newTestNotifier(t, p, recipients, nil, WithEnv(envWith(map[string]string{"RANK": "1"})))

		v, err := Wrap(n, "train", fortyTwo).Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Empty(t, p.emails())
	})

	t.Run("non-master crash reaches everyone", func(t *testing.T) {
		p := &recordingProvider{}
		n := newTestNotifier(t, p, recipients, nil, WithEnv(envWith(map[string]string{"RANK": "1"})))

		_, err := Wrap(n, "train", func(context.Context) (int, error) {
			return 0, errors.New("nan loss")
		}).Call(context.Background())
		require.Error(t, err)

		sent := p.emails()
		require.Len(t, sent, 2)
		for _, e := range sent {
			assert.Equal(t, KindCrashed.Subject(), e.Subject)
			assert.Contains(t, e.TextBody, "Machine name: gpu-01 - RANK: 1")
		}
	})

	t.Run("rank zero is master", func(t *testing.T) {
		p := &recordingProvider{}
		n := newTestNotifier(t, p, recipients[:1], nil, WithEnv(envWith(map[string]string{"RANK": "0"})))

		_, err := Wrap(n, "train", fortyTwo).Call(context.Background())
		require.NoError(t, err)

		sent := p.emails()
		require.Len(t, sent, 2)
		assert.Contains(t, sent[0].TextBody, "Machine name: gpu-01 - RANK: 0")
	})

	t.Run("unparsable rank is not master", func(t *testing.T) {
		p := &recordingProvider{}
		n := newTestNotifier(t, p, recipients, nil, WithEnv(envWith(map[string]string{"RANK": "worker"})))

		_, err := Wrap(n, "train", fortyTwo).Call(context.Background())
		require.NoError(t, err)
		assert.Empty(t, p.emails())
	})

	t.Run("explicit rank wins over environment", func(t *testing.T) {
		p := &recordingProvider{}
		n := newTestNotifier(t, p, recipients[:1], nil,
			WithEnv(envWith(map[string]string{"RANK": "3"})),
			WithRank(0),
		)

		_, err := Wrap(n, "train", fortyTwo).Call(context.Background())
		require.NoError(t, err)
		assert.Len(t, p.emails(), 2)
	})
}

func TestWrapRenderFailure(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, nil)

	v, err := Wrap(n, "train", func(context.Context) (explodingStringer, error) {
		return explodingStringer{}, nil
	}).Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, explodingStringer{}, v)

	sent := p.emails()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].TextBody, "Main call returned value: "+RenderFailedPlaceholder)
}

func TestWrapJSONValue(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, []Option{WithValueFormat(ValueFormatJSON)})

	type metricsResult struct {
		Loss float64 `json:"loss"`
	}
	_, err := Wrap(n, "train", func(context.Context) (metricsResult, error) {
		return metricsResult{Loss: 0.25}, nil
	}).Call(context.Background())
	require.NoError(t, err)

	sent := p.emails()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].TextBody, `Main call returned value: {"loss":0.25}`)
}

func TestWrapPkgErrorsTrace(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, nil)

	_, err := Wrap(n, "train", func(context.Context) (int, error) {
		return 0, pkgerrors.Wrap(pkgerrors.New("diverged"), "epoch 3")
	}).Call(context.Background())
	require.Error(t, err)

	sent := p.emails()
	require.Len(t, sent, 2)
	body := sent[1].TextBody
	assert.Contains(t, body, "epoch 3: diverged")
	assert.Contains(t, body, "TestWrapPkgErrorsTrace")
	assert.Contains(t, body, "notifier_test.go")
}

func TestWrapCancelledContextStillReportsCrash(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := Wrap(n, "train", func(ctx context.Context) (int, error) {
		cancel()
		return 0, ctx.Err()
	}).Call(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	sent := p.emails()
	require.Len(t, sent, 2)
	assert.Equal(t, KindCrashed.Subject(), sent[1].Subject)
}

func TestWrapSendFailures(t *testing.T) {
	alwaysFail := func(int, *Email) error {
		return NewProviderError("recording", "rejected", "relay denied")
	}

	t.Run("logged and ignored by default", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		p := &recordingProvider{fail: alwaysFail}
		n := newTestNotifier(t, p, []string{"me@x.com"}, []Option{WithLogger(zap.New(core))})

		v, err := Wrap(n, "train", fortyTwo).Call(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		failures := logs.FilterMessage("lifecycle notification failed").All()
		require.Len(t, failures, 2)
		assert.Equal(t, "started", failures[0].ContextMap()["kind"])
		assert.Equal(t, "succeeded", failures[1].ContextMap()["kind"])
	})

	t.Run("propagated start failure skips the call", func(t *testing.T) {
		p := &recordingProvider{fail: alwaysFail}
		n := newTestNotifier(t, p, []string{"me@x.com"}, []Option{WithPropagateSendErrors()})

		called := false
		_, err := Wrap(n, "train", func(context.Context) (int, error) {
			called = true
			return 1, nil
		}).Call(context.Background())

		var perr *ProviderError
		require.ErrorAs(t, err, &perr)
		assert.False(t, called)
	})

	t.Run("propagated success failure keeps the value", func(t *testing.T) {
		p := &recordingProvider{fail: func(call int, _ *Email) error {
			if call == 2 {
				return NewProviderError("recording", "rejected", "relay denied")
			}
			return nil
		}}
		n := newTestNotifier(t, p, []string{"me@x.com"}, []Option{WithPropagateSendErrors()})

		v, err := Wrap(n, "train", fortyTwo).Call(context.Background())
		require.Error(t, err)
		assert.Equal(t, 42, v)
	})

	t.Run("crash send failure keeps the original error", func(t *testing.T) {
		p := &recordingProvider{fail: func(call int, _ *Email) error {
			if call == 2 {
				return NewProviderError("recording", "rejected", "relay denied")
			}
			return nil
		}}
		n := newTestNotifier(t, p, []string{"me@x.com"}, []Option{WithPropagateSendErrors()})
		boom := errors.New("boom")

		_, err := Wrap(n, "train", func(context.Context) (int, error) {
			return 0, boom
		}).Call(context.Background())
		assert.Equal(t, boom, err)
	})
}

func TestWrapCountsInvocations(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, nil)

	succeeded := testutil.ToFloat64(metrics.Invocations.WithLabelValues("succeeded"))
	crashed := testutil.ToFloat64(metrics.Invocations.WithLabelValues("crashed"))

	_, _ = Wrap(n, "ok", fortyTwo).Call(context.Background())
	_, _ = Wrap(n, "bad", func(context.Context) (int, error) { return 0, errors.New("x") }).Call(context.Background())

	assert.Equal(t, succeeded+1, testutil.ToFloat64(metrics.Invocations.WithLabelValues("succeeded")))
	assert.Equal(t, crashed+1, testutil.ToFloat64(metrics.Invocations.WithLabelValues("crashed")))
}

func TestNotifierRun(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, nil)
	boom := errors.New("boom")

	err := n.Run(context.Background(), "", func(context.Context) error { return boom })
	assert.Equal(t, boom, err)

	sent := p.emails()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0].TextBody, "Main call: TestNotifierRun.func1")
}

func TestFuncClosure(t *testing.T) {
	p := &recordingProvider{}
	n := newTestNotifier(t, p, []string{"me@x.com"}, nil)

	var fn func(context.Context) (int, error) = Wrap(n, "train", fortyTwo).Func()
	v, err := fn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Len(t, p.emails(), 2)
}

func TestNewNotifierWithDispatcherFunc(t *testing.T) {
	var kinds []Kind
	d := DispatcherFunc(func(_ context.Context, msg *Message) error {
		kinds = append(kinds, msg.Kind)
		return nil
	})
	n := NewNotifier(d, WithEnv(envWith(nil)), WithHostname(fixedHost("box")), WithNotifierMetrics(false))

	_, err := Wrap(n, "train", fortyTwo).Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Kind{KindStarted, KindSucceeded}, kinds)
}

func TestFuncName(t *testing.T) {
	tests := []struct {
		name string
		fn   any
		want string
	}{
		{name: "package function", fn: fortyTwo, want: "fortyTwo"},
		{name: "method value", fn: explodingStringer{}.String, want: "explodingStringer.String"},
		{name: "dotted import path", fn: gomail.NewMessage, want: "NewMessage"},
		{name: "nil function", fn: (func())(nil), want: "unknown"},
		{name: "not a function", fn: 3, want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, funcName(tt.fn))
		})
	}
}

func TestShortFuncName(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{symbol: "main.train", want: "train"},
		{symbol: "github.com/acme/jobs.Train", want: "Train"},
		{symbol: "gopkg.in/gomail%2ev2.NewMessage", want: "NewMessage"},
		{symbol: "gopkg.in/yaml%2ev3.(*Decoder).Decode", want: "(*Decoder).Decode"},
		{symbol: "github.com/acme/jobs.(*Trainer).Fit-fm", want: "(*Trainer).Fit"},
		{symbol: "github.com/acme/jobs.train.func1", want: "train.func1"},
		{symbol: "train", want: "train"},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, shortFuncName(tt.symbol))
		})
	}
}

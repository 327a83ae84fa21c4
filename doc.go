// Package runnotify reports the lifecycle of long-running jobs to the people
// waiting on them.
//
// A wrapped function sends a "started" message when it is called, then either
// a "succeeded" message carrying its return value or a "crashed" message
// carrying the error and a stack trace. Messages go out by email through a
// mail handle, or to Slack, or both.
//
// # Basic Usage
//
//	notifier, err := runnotify.NewEmailNotifier(
//		[]string{"me@example.com"}, "",
//		runnotify.WithSMTPAuth("smtp.example.com", 587, "me@example.com", password),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	train := runnotify.Wrap(notifier, "train", func(ctx context.Context) (float64, error) {
//		return fit(ctx)
//	})
//	loss, err := train.Call(ctx)
//
// Without a transport option the handle uses Gmail SMTP and reads the
// password for the sender from the OS keyring (service "runnotify").
//
// # Distributed Jobs
//
// When the RANK environment variable is set only rank 0 sends "started" and
// "succeeded" messages. Every rank reports its own crash.
//
// # Transports
//
//   - SMTP (including Gmail)
//   - AWS SES
//   - SendGrid
//   - Mailgun
//   - Slack incoming webhooks
//
// Email delivery goes through retries with exponential backoff, an optional
// rate limiter, a circuit breaker and a fallback provider. Sends are traced
// with OpenTelemetry and counted with Prometheus.
package runnotify

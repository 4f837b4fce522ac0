package main

import (
	"fmt"
	"time"

	sentry "github.com/getsentry/sentry-go"
)

func (a *app) initErrorHandler() error {
	if a.cfg.SentryDSN == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         a.cfg.SentryDSN,
		Environment: a.cfg.Env,
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	a.sentry = true
	return nil
}

// handleError logs err and sends it to sentry if sentry is configured.
func (a *app) handleError(err error) {
	r := a.logger.WithError(err)

	if a.sentry {
		eventID := sentry.CaptureException(err)
		if eventID != nil {
			r = r.WithField("sentry_event_id", *eventID)
		}
	}

	r.Error("llllogs failed")
}

func (a *app) flushErrors() {
	if a.sentry {
		sentry.Flush(2 * time.Second)
	}
}

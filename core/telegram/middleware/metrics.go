package middleware

import (
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vcfbot/core/metrics"
)

// UpdateKind names the payload of upd for metrics and rate limit exclusions.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil && upd.Message.Document != nil:
		return "document"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// UpdateMetricsMiddleware counts handled updates and observes handler latency.
func UpdateMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		kind := UpdateKind(c.Update())
		start := time.Now()
		err := next(c)
		metrics.UpdateDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "fail"
		}
		metrics.UpdatesTotal.WithLabelValues(kind, status).Inc()
		return err
	}
}

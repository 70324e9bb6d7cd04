package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide session/relay counter.
var Stats = &stats{}

type stats struct {
	OpenedSessions atomic.Int64 // cumulative count of sessions since process start
	ClosedSessions atomic.Int64 // cumulative count of torn-down sessions since process start
	Requests       atomic.Int64 // cumulative relay requests received over DataChannels
	FailedRequests atomic.Int64 // cumulative relay requests answered with {ok:false}
	BytesSent      atomic.Int64 // cumulative bytes written to DataChannels
}

func (s *stats) AddSession()    { s.OpenedSessions.Add(1) }
func (s *stats) RemoveSession() { s.ClosedSessions.Add(1) }
func (s *stats) AddRequest()    { s.Requests.Add(1) }
func (s *stats) AddFailure()    { s.FailedRequests.Add(1) }
func (s *stats) AddSent(n int)  { s.BytesSent.Add(int64(n)) }

// Live returns the number of sessions that have been opened but not yet
// torn down.
func (s *stats) Live() int64 {
	return s.OpenedSessions.Load() - s.ClosedSessions.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs relay statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevSent, prevReqs, prevFailed int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				reqs := Stats.Requests.Load()
				failed := Stats.FailedRequests.Load()

				outS := float64(sent-prevSent) / reportInterval.Seconds()
				dReqs := reqs - prevReqs
				dFailed := failed - prevFailed

				if dReqs > 0 || dFailed > 0 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(outS, dReqs, dFailed, Stats.Live()))
				}

				prevSent = sent
				prevReqs = reqs
				prevFailed = failed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(outS float64, reqs, failed, live int64) string {
	return fmt.Sprintf("Out: %s/s | Req: %3d (%d failed) | Sessions: %d",
		formatBytes(outS),
		reqs,
		failed,
		live,
	)
}

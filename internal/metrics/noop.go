package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordSOAPRequest(service, action, outcome string, duration time.Duration) {}
func (n *NoopMetrics) RecordAuth(result, reason string)                                          {}
func (n *NoopMetrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {}
func (n *NoopMetrics) RecordRateLimited(route string)                                            {}
func (n *NoopMetrics) RecordAuditDropped()                                                       {}

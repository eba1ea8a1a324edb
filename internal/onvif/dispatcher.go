package onvif

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/audit"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/auth"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/metrics"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

// Response is the outcome of handling one SOAP request.
type Response struct {
	Body []byte
	// Fault is set when Body is a fault envelope.
	Fault  *soap.Fault
	Status int
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Service  string
	Gate     *auth.Gate
	Registry *Registry
	Metrics  metrics.Recorder
	// Events is optional.
	Events audit.Publisher
	Logger *zap.Logger
}

// Dispatcher runs one service's requests through extraction,
// authentication and the handler registry.
type Dispatcher struct {
	service  string
	gate     *auth.Gate
	registry *Registry
	metrics  metrics.Recorder
	events   audit.Publisher
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		service:  cfg.Service,
		gate:     cfg.Gate,
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		events:   cfg.Events,
		logger:   cfg.Logger,
	}
	if d.metrics == nil {
		d.metrics = metrics.NewNoopMetrics()
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	d.logger = d.logger.With(zap.String("service", d.service))
	return d
}

// Service returns the service name.
func (d *Dispatcher) Service() string {
	return d.service
}

// Handle processes a raw request envelope. It always returns a well-formed
// envelope; remote is recorded for auditing only.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte, remote string) Response {
	start := time.Now()
	event := audit.NewEvent(d.service, "")
	event.Remote = remote

	resp := d.handle(ctx, raw, &event)

	switch {
	case resp.Fault == nil:
		event.Outcome = audit.OutcomeSuccess
	case event.Outcome == "":
		event.Outcome = audit.OutcomeFault
		if event.Reason == "" {
			event.Reason = resp.Fault.Error()
		}
	}
	d.metrics.RecordSOAPRequest(d.service, metricAction(event.Action), string(event.Outcome), time.Since(start))
	if d.events != nil {
		d.events.Publish(event)
	}
	return resp
}

func (d *Dispatcher) handle(ctx context.Context, raw []byte, event *audit.Event) Response {
	env, err := soap.Extract(raw)
	if err != nil {
		d.logger.Debug("malformed SOAP request", zap.Error(err))
		event.Reason = err.Error()
		return faultResponse(soap.NewInvalidArgsFault("Malformed SOAP request"))
	}
	event.Action = env.Action

	result, err := d.gate.Authenticate(ctx, env.Action, env.Header)
	event.Username = result.Username
	if err != nil {
		d.logger.Error("authentication backend failure", zap.String("action", env.Action), zap.Error(err))
		d.metrics.RecordAuth("error", "backend")
		event.Outcome = audit.OutcomeRejected
		event.Reason = "backend_error"
		return faultResponse(soap.NewActionFailedFault("Service temporarily unavailable"))
	}
	if !result.Accepted {
		d.metrics.RecordAuth("rejected", result.Reason.String())
		event.Outcome = audit.OutcomeRejected
		event.Reason = result.Reason.String()
		return faultResponse(auth.FaultFor(result.Reason))
	}
	if result.Anonymous {
		d.metrics.RecordAuth("anonymous", result.Reason.String())
	} else {
		d.metrics.RecordAuth("accepted", result.Reason.String())
	}

	fragment, err := d.registry.Dispatch(ctx, env.Action, env.Body)
	if err != nil {
		return faultResponse(d.handlerFault(env.Action, err))
	}

	d.logger.Debug("SOAP request handled", zap.String("action", env.Action), zap.String("username", result.Username))
	return Response{Body: soap.BuildResponse(fragment), Status: http.StatusOK}
}

func (d *Dispatcher) handlerFault(action string, err error) *soap.Fault {
	if errors.Is(err, ErrUnknownAction) {
		d.logger.Info("unknown action", zap.String("action", action))
		return soap.NewFault(soap.FaultCodeReceiver, soap.SubcodeNoSuchService, fmt.Sprintf("Unknown action: %s", action))
	}
	var fault *soap.Fault
	if errors.As(err, &fault) {
		return fault
	}
	d.logger.Warn("handler failed", zap.String("action", action), zap.Error(err))
	return soap.NewActionFailedFault(err.Error())
}

func faultResponse(f *soap.Fault) Response {
	status := http.StatusInternalServerError
	if f.IsSender() {
		status = http.StatusBadRequest
	}
	return Response{Body: soap.FaultEnvelope(f), Fault: f, Status: status}
}

// metricAction keeps label cardinality bounded for unparsable requests.
func metricAction(action string) string {
	if action == "" {
		return "unknown"
	}
	return action
}

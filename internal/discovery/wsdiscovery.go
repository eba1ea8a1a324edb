// Package discovery answers WS-Discovery probes so ONVIF clients can find
// the device on the local network.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

const (
	// WS-Discovery multicast address and port
	multicastAddr = "239.255.255.250:3702"

	wsaNamespace   = "http://schemas.xmlsoap.org/ws/2004/08/addressing"
	wsdNamespace   = "http://schemas.xmlsoap.org/ws/2005/04/discovery"
	onvifNamespace = "http://www.onvif.org/ver10/network/wsdl"

	maxDatagram = 8192
)

// Responder replies to Probe messages with a ProbeMatch
type Responder struct {
	deviceUUID      string
	xaddrs          string
	scopes          []string
	metadataVersion int
	logger          *zap.Logger
}

// NewResponder creates a responder advertising the device service at xaddrs.
// The endpoint UUID is derived from the device name so it stays stable
// across restarts.
func NewResponder(deviceName, xaddrs string, ptz bool, logger *zap.Logger) *Responder {
	if logger == nil {
		logger = zap.NewNop()
	}
	scopes := []string{"onvif://www.onvif.org/type/video_encoder"}
	if ptz {
		scopes = append(scopes, "onvif://www.onvif.org/type/ptz")
	}
	scopes = append(scopes,
		"onvif://www.onvif.org/hardware/"+deviceName,
		"onvif://www.onvif.org/name/"+deviceName,
	)

	return &Responder{
		deviceUUID:      uuid.NewSHA1(uuid.NameSpaceDNS, []byte(deviceName)).String(),
		xaddrs:          xaddrs,
		scopes:          scopes,
		metadataVersion: 1,
		logger:          logger,
	}
}

// Run listens on the WS-Discovery multicast group until ctx is cancelled.
func (r *Responder) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve multicast address: %w", err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return fmt.Errorf("failed to listen on multicast: %w", err)
	}
	defer conn.Close()

	r.logger.Info("WS-Discovery responder started", zap.String("addr", multicastAddr), zap.String("xaddrs", r.xaddrs))
	return r.serve(ctx, conn)
}

func (r *Responder) serve(ctx context.Context, conn *net.UDPConn) error {
	buffer := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			r.logger.Info("WS-Discovery responder stopped")
			return nil
		}

		// Deadline lets the loop observe cancellation.
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, remote, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("WS-Discovery read error", zap.Error(err))
			continue
		}

		reply, ok := r.Respond(buffer[:n])
		if !ok {
			continue
		}
		r.logger.Debug("WS-Discovery probe", zap.Stringer("remote", remote))
		if _, err := conn.WriteToUDP(reply, remote); err != nil {
			r.logger.Warn("failed to send WS-Discovery response", zap.Stringer("remote", remote), zap.Error(err))
		}
	}
}

// Respond returns the ProbeMatch for a Probe datagram. ok is false for
// anything that is not a well-formed Probe.
func (r *Responder) Respond(data []byte) ([]byte, bool) {
	env, err := soap.Extract(data)
	if err != nil || env.Action != "Probe" {
		return nil, false
	}
	messageID, _ := soap.ElementText(env.Header, "MessageID")
	return []byte(r.buildProbeMatch(strings.TrimSpace(messageID))), true
}

func (r *Responder) buildProbeMatch(relatesTo string) string {
	relatesTo = html.EscapeString(relatesTo)
	scopes := html.EscapeString(strings.Join(r.scopes, " "))
	xaddrs := html.EscapeString(r.xaddrs)

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope
    xmlns:SOAP-ENV="%s"
    xmlns:wsa="%s"
    xmlns:wsd="%s"
    xmlns:dn="%s">
  <SOAP-ENV:Header>
    <wsa:MessageID>uuid:%s</wsa:MessageID>
    <wsa:RelatesTo>%s</wsa:RelatesTo>
    <wsa:To>http://schemas.xmlsoap.org/ws/2004/08/addressing/role/anonymous</wsa:To>
    <wsa:Action>http://schemas.xmlsoap.org/ws/2005/04/discovery/ProbeMatches</wsa:Action>
  </SOAP-ENV:Header>
  <SOAP-ENV:Body>
    <wsd:ProbeMatches>
      <wsd:ProbeMatch>
        <wsa:EndpointReference>
          <wsa:Address>urn:uuid:%s</wsa:Address>
        </wsa:EndpointReference>
        <wsd:Types>dn:NetworkVideoTransmitter</wsd:Types>
        <wsd:Scopes>%s</wsd:Scopes>
        <wsd:XAddrs>%s</wsd:XAddrs>
        <wsd:MetadataVersion>%d</wsd:MetadataVersion>
      </wsd:ProbeMatch>
    </wsd:ProbeMatches>
  </SOAP-ENV:Body>
</SOAP-ENV:Envelope>`,
		soap.NamespaceEnvelope, wsaNamespace, wsdNamespace, onvifNamespace,
		uuid.NewString(), relatesTo, r.deviceUUID,
		scopes, xaddrs, r.metadataVersion)
}

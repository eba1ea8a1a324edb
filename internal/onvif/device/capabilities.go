package device

import (
	"encoding/xml"
	"strings"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

// GetCapabilitiesRequest represents GetCapabilities request
type GetCapabilitiesRequest struct {
	XMLName  xml.Name `xml:"GetCapabilities"`
	Category []string `xml:"Category,omitempty"`
}

// GetCapabilitiesResponse represents GetCapabilities response
type GetCapabilitiesResponse struct {
	XMLName      xml.Name     `xml:"tds:GetCapabilitiesResponse"`
	Capabilities Capabilities `xml:"tds:Capabilities"`
}

// Capabilities represents device capabilities
type Capabilities struct {
	Device *DeviceCapabilities `xml:"tt:Device,omitempty"`
	Media  *MediaCapabilities  `xml:"tt:Media,omitempty"`
	PTZ    *PTZCapabilities    `xml:"tt:PTZ,omitempty"`
}

// DeviceCapabilities represents device service capabilities
type DeviceCapabilities struct {
	XAddr    string               `xml:"tt:XAddr"`
	Network  NetworkCapabilities  `xml:"tt:Network"`
	System   SystemCapabilities   `xml:"tt:System"`
	Security SecurityCapabilities `xml:"tt:Security"`
}

// NetworkCapabilities represents network capabilities
type NetworkCapabilities struct {
	IPFilter          bool `xml:"tt:IPFilter"`
	ZeroConfiguration bool `xml:"tt:ZeroConfiguration"`
	IPVersion6        bool `xml:"tt:IPVersion6"`
	DynDNS            bool `xml:"tt:DynDNS"`
}

// SystemCapabilities represents system capabilities
type SystemCapabilities struct {
	DiscoveryResolve bool `xml:"tt:DiscoveryResolve"`
	DiscoveryBye     bool `xml:"tt:DiscoveryBye"`
	RemoteDiscovery  bool `xml:"tt:RemoteDiscovery"`
	SystemBackup     bool `xml:"tt:SystemBackup"`
	SystemLogging    bool `xml:"tt:SystemLogging"`
	FirmwareUpgrade  bool `xml:"tt:FirmwareUpgrade"`
}

// SecurityCapabilities represents security capabilities. Only
// UsernameToken is supported, so every token profile is false.
type SecurityCapabilities struct {
	TLS11                bool `xml:"tt:TLS1.1"`
	TLS12                bool `xml:"tt:TLS1.2"`
	OnboardKeyGeneration bool `xml:"tt:OnboardKeyGeneration"`
	AccessPolicyConfig   bool `xml:"tt:AccessPolicyConfig"`
	X509Token            bool `xml:"tt:X.509Token"`
	SAMLToken            bool `xml:"tt:SAMLToken"`
	KerberosToken        bool `xml:"tt:KerberosToken"`
	RELToken             bool `xml:"tt:RELToken"`
}

// MediaCapabilities represents media service capabilities
type MediaCapabilities struct {
	XAddr                 string                `xml:"tt:XAddr"`
	StreamingCapabilities StreamingCapabilities `xml:"tt:StreamingCapabilities"`
}

// StreamingCapabilities represents streaming capabilities
type StreamingCapabilities struct {
	RTPMulticast bool `xml:"tt:RTPMulticast"`
	RTP_TCP      bool `xml:"tt:RTP_TCP"`
	RTP_RTSP_TCP bool `xml:"tt:RTP_RTSP_TCP"`
}

// PTZCapabilities represents PTZ service capabilities
type PTZCapabilities struct {
	XAddr string `xml:"tt:XAddr"`
}

// GetCapabilities returns the capabilities for the requested categories.
// No category, or "All", selects everything.
func (s *Service) GetCapabilities(categories []string) (*GetCapabilitiesResponse, error) {
	want := map[string]bool{}
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		want[c] = true
	}
	all := len(want) == 0 || want["All"]

	resp := &GetCapabilitiesResponse{}
	if all || want["Device"] {
		resp.Capabilities.Device = &DeviceCapabilities{XAddr: s.xaddr(onvif.DeviceServicePath)}
	}
	if all || want["Media"] {
		resp.Capabilities.Media = &MediaCapabilities{
			XAddr: s.xaddr(onvif.MediaServicePath),
			StreamingCapabilities: StreamingCapabilities{
				RTP_TCP:      true,
				RTP_RTSP_TCP: true,
			},
		}
	}
	if (all || want["PTZ"]) && s.info.PTZEnabled {
		resp.Capabilities.PTZ = &PTZCapabilities{XAddr: s.xaddr(ptzServicePath)}
	}

	if want["PTZ"] && !s.info.PTZEnabled && !all && len(want) == 1 {
		return nil, soap.NewFault(soap.FaultCodeReceiver, soap.SubcodeNoSuchService, "PTZ is not supported")
	}
	return resp, nil
}

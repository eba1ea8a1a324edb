package device

import (
	"context"
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/config"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

const baseURL = "http://192.168.1.10:8080"

func newTestService(ptz bool) *Service {
	return NewService(config.DeviceConfig{
		Name:            "atomcam",
		Manufacturer:    "ATOM tech",
		Model:           "ATOM Cam 2",
		FirmwareVersion: "4.58.0.100",
		SerialNumber:    "SN-0001",
		PTZEnabled:      ptz,
	}, baseURL)
}

type capabilitiesView struct {
	Device *struct {
		XAddr string `xml:"XAddr"`
	} `xml:"Capabilities>Device"`
	Media *struct {
		XAddr  string `xml:"XAddr"`
		RTPTCP bool   `xml:"StreamingCapabilities>RTP_TCP"`
	} `xml:"Capabilities>Media"`
	PTZ *struct {
		XAddr string `xml:"XAddr"`
	} `xml:"Capabilities>PTZ"`
}

func dispatch(t *testing.T, s *Service, action, body string) (string, error) {
	t.Helper()
	r := onvif.NewRegistry()
	s.Register(r)
	return r.Dispatch(context.Background(), action, body)
}

func TestRegister(t *testing.T) {
	r := onvif.NewRegistry()
	newTestService(false).Register(r)
	assert.Equal(t, []string{
		"GetCapabilities",
		"GetDeviceInformation",
		"GetServices",
		"GetSystemDateAndTime",
	}, r.Actions())
}

func TestGetDeviceInformation(t *testing.T) {
	out, err := dispatch(t, newTestService(false), "GetDeviceInformation", "<tds:GetDeviceInformation/>")
	require.NoError(t, err)
	assert.Contains(t, out, "<tds:GetDeviceInformationResponse>")

	var resp struct {
		Manufacturer string `xml:"Manufacturer"`
		Model        string `xml:"Model"`
		SerialNumber string `xml:"SerialNumber"`
		HardwareId   string `xml:"HardwareId"`
	}
	require.NoError(t, xml.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ATOM tech", resp.Manufacturer)
	assert.Equal(t, "ATOM Cam 2", resp.Model)
	assert.Equal(t, "SN-0001", resp.SerialNumber)
	assert.Equal(t, "N/A", resp.HardwareId)
}

func TestGetDeviceInformationEscapesValues(t *testing.T) {
	s := NewService(config.DeviceConfig{Manufacturer: "A&B <cams>"}, baseURL)
	out, err := soap.MarshalBody(s.GetDeviceInformation())
	require.NoError(t, err)
	assert.Contains(t, out, "A&amp;B &lt;cams&gt;")
}

func TestGetCapabilities(t *testing.T) {
	tests := []struct {
		name      string
		ptz       bool
		body      string
		wantMedia bool
		wantDev   bool
		wantPTZ   bool
	}{
		{"all without ptz", false, "<tds:GetCapabilities><tds:Category>All</tds:Category></tds:GetCapabilities>", true, true, false},
		{"all with ptz", true, "<tds:GetCapabilities><tds:Category>All</tds:Category></tds:GetCapabilities>", true, true, true},
		{"no category", true, "<tds:GetCapabilities/>", true, true, true},
		{"empty body", false, "  ", true, true, false},
		{"media only", true, "<tds:GetCapabilities><tds:Category>Media</tds:Category></tds:GetCapabilities>", true, false, false},
		{"device and ptz", true, "<GetCapabilities><Category>Device</Category><Category>PTZ</Category></GetCapabilities>", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := dispatch(t, newTestService(tt.ptz), "GetCapabilities", tt.body)
			require.NoError(t, err)

			var view capabilitiesView
			require.NoError(t, xml.Unmarshal([]byte(out), &view))
			assert.Equal(t, tt.wantDev, view.Device != nil)
			assert.Equal(t, tt.wantMedia, view.Media != nil)
			assert.Equal(t, tt.wantPTZ, view.PTZ != nil)

			if view.Device != nil {
				assert.Equal(t, baseURL+"/onvif/device_service", view.Device.XAddr)
			}
			if view.Media != nil {
				assert.Equal(t, baseURL+"/onvif/media_service", view.Media.XAddr)
				assert.True(t, view.Media.RTPTCP)
			}
			if view.PTZ != nil {
				assert.Equal(t, baseURL+"/onvif/ptz_service", view.PTZ.XAddr)
			}
		})
	}
}

func TestGetCapabilitiesPTZUnsupported(t *testing.T) {
	_, err := dispatch(t, newTestService(false), "GetCapabilities",
		"<tds:GetCapabilities><tds:Category>PTZ</tds:Category></tds:GetCapabilities>")

	var fault *soap.Fault
	require.ErrorAs(t, err, &fault)
	assert.False(t, fault.IsSender())
}

func TestGetCapabilitiesInvalidBody(t *testing.T) {
	_, err := dispatch(t, newTestService(false), "GetCapabilities", "<tds:GetCapabilities>")

	var fault *soap.Fault
	require.ErrorAs(t, err, &fault)
	assert.True(t, fault.IsSender())
}

func TestGetServices(t *testing.T) {
	var resp struct {
		Services []struct {
			Namespace string `xml:"Namespace"`
			XAddr     string `xml:"XAddr"`
			Major     int    `xml:"Version>Major"`
		} `xml:"Service"`
	}

	out, err := dispatch(t, newTestService(false), "GetServices", "<tds:GetServices/>")
	require.NoError(t, err)
	require.NoError(t, xml.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Services, 2)
	assert.Equal(t, soap.NamespaceDevice, resp.Services[0].Namespace)
	assert.Equal(t, soap.NamespaceMedia, resp.Services[1].Namespace)
	assert.Equal(t, 2, resp.Services[0].Major)

	out, err = dispatch(t, newTestService(true), "GetServices", "<tds:GetServices/>")
	require.NoError(t, err)
	resp.Services = nil
	require.NoError(t, xml.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Services, 3)
	assert.Equal(t, soap.NamespacePTZ, resp.Services[2].Namespace)
	assert.Equal(t, baseURL+"/onvif/ptz_service", resp.Services[2].XAddr)
}

func TestGetSystemDateAndTime(t *testing.T) {
	s := newTestService(false)
	jst := time.FixedZone("JST", 9*3600)
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, jst) }

	out, err := dispatch(t, s, "GetSystemDateAndTime", "<tds:GetSystemDateAndTime/>")
	require.NoError(t, err)

	var resp struct {
		Type  string `xml:"SystemDateAndTime>DateTimeType"`
		TZ    string `xml:"SystemDateAndTime>TimeZone>TZ"`
		Hour  int    `xml:"SystemDateAndTime>UTCDateTime>Time>Hour"`
		Min   int    `xml:"SystemDateAndTime>UTCDateTime>Time>Minute"`
		Year  int    `xml:"SystemDateAndTime>UTCDateTime>Date>Year"`
		Month int    `xml:"SystemDateAndTime>UTCDateTime>Date>Month"`
		Day   int    `xml:"SystemDateAndTime>UTCDateTime>Date>Day"`
	}
	require.NoError(t, xml.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "NTP", resp.Type)
	assert.Equal(t, "UTC", resp.TZ)
	assert.Equal(t, 18, resp.Hour)
	assert.Equal(t, 4, resp.Min)
	assert.Equal(t, 2024, resp.Year)
	assert.Equal(t, 1, resp.Month)
	assert.Equal(t, 1, resp.Day)
}

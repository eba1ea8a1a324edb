package device

import (
	"context"
	"encoding/xml"
	"strings"
	"time"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/config"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

const ptzServicePath = "/onvif/ptz_service"

// GetDeviceInformationResponse represents GetDeviceInformation response
type GetDeviceInformationResponse struct {
	XMLName         xml.Name `xml:"tds:GetDeviceInformationResponse"`
	Manufacturer    string   `xml:"tds:Manufacturer"`
	Model           string   `xml:"tds:Model"`
	FirmwareVersion string   `xml:"tds:FirmwareVersion"`
	SerialNumber    string   `xml:"tds:SerialNumber"`
	HardwareId      string   `xml:"tds:HardwareId"`
}

// GetSystemDateAndTimeResponse represents GetSystemDateAndTime response
type GetSystemDateAndTimeResponse struct {
	XMLName           xml.Name          `xml:"tds:GetSystemDateAndTimeResponse"`
	SystemDateAndTime SystemDateAndTime `xml:"tds:SystemDateAndTime"`
}

// SystemDateAndTime represents system date and time
type SystemDateAndTime struct {
	DateTimeType    string   `xml:"tt:DateTimeType"`
	DaylightSavings bool     `xml:"tt:DaylightSavings"`
	TimeZone        TimeZone `xml:"tt:TimeZone"`
	UTCDateTime     DateTime `xml:"tt:UTCDateTime"`
}

// TimeZone represents timezone information
type TimeZone struct {
	TZ string `xml:"tt:TZ"`
}

// DateTime represents date and time
type DateTime struct {
	Time Time `xml:"tt:Time"`
	Date Date `xml:"tt:Date"`
}

// Time represents time
type Time struct {
	Hour   int `xml:"tt:Hour"`
	Minute int `xml:"tt:Minute"`
	Second int `xml:"tt:Second"`
}

// Date represents date
type Date struct {
	Year  int `xml:"tt:Year"`
	Month int `xml:"tt:Month"`
	Day   int `xml:"tt:Day"`
}

// GetServicesResponse represents GetServices response
type GetServicesResponse struct {
	XMLName  xml.Name      `xml:"tds:GetServicesResponse"`
	Services []ServiceInfo `xml:"tds:Service"`
}

// ServiceInfo describes one service endpoint
type ServiceInfo struct {
	Namespace string  `xml:"tds:Namespace"`
	XAddr     string  `xml:"tds:XAddr"`
	Version   Version `xml:"tds:Version"`
}

// Version is a service version
type Version struct {
	Major int `xml:"tds:Major"`
	Minor int `xml:"tds:Minor"`
}

// Service represents the Device service
type Service struct {
	info    config.DeviceConfig
	baseURL string
	now     func() time.Time
}

// NewService creates a new Device service
func NewService(info config.DeviceConfig, baseURL string) *Service {
	return &Service{
		info:    info,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// Register binds the device actions to r.
func (s *Service) Register(r *onvif.Registry) {
	r.Register("GetDeviceInformation", s.handleGetDeviceInformation)
	r.Register("GetCapabilities", s.handleGetCapabilities)
	r.Register("GetServices", s.handleGetServices)
	r.Register("GetSystemDateAndTime", s.handleGetSystemDateAndTime)
}

// GetDeviceInformation handles GetDeviceInformation request
func (s *Service) GetDeviceInformation() *GetDeviceInformationResponse {
	hardwareID := s.info.HardwareID
	if hardwareID == "" {
		hardwareID = "N/A"
	}
	return &GetDeviceInformationResponse{
		Manufacturer:    s.info.Manufacturer,
		Model:           s.info.Model,
		FirmwareVersion: s.info.FirmwareVersion,
		SerialNumber:    s.info.SerialNumber,
		HardwareId:      hardwareID,
	}
}

// GetSystemDateAndTime handles GetSystemDateAndTime request
func (s *Service) GetSystemDateAndTime() *GetSystemDateAndTimeResponse {
	utc := s.now().UTC()

	return &GetSystemDateAndTimeResponse{
		SystemDateAndTime: SystemDateAndTime{
			DateTimeType:    "NTP",
			DaylightSavings: false,
			TimeZone:        TimeZone{TZ: "UTC"},
			UTCDateTime: DateTime{
				Time: Time{
					Hour:   utc.Hour(),
					Minute: utc.Minute(),
					Second: utc.Second(),
				},
				Date: Date{
					Year:  utc.Year(),
					Month: int(utc.Month()),
					Day:   utc.Day(),
				},
			},
		},
	}
}

// GetServices lists the service endpoints
func (s *Service) GetServices() *GetServicesResponse {
	resp := &GetServicesResponse{
		Services: []ServiceInfo{
			{Namespace: soap.NamespaceDevice, XAddr: s.xaddr(onvif.DeviceServicePath), Version: Version{Major: 2}},
			{Namespace: soap.NamespaceMedia, XAddr: s.xaddr(onvif.MediaServicePath), Version: Version{Major: 2}},
		},
	}
	if s.info.PTZEnabled {
		resp.Services = append(resp.Services, ServiceInfo{
			Namespace: soap.NamespacePTZ,
			XAddr:     s.xaddr(ptzServicePath),
			Version:   Version{Major: 2},
		})
	}
	return resp
}

func (s *Service) xaddr(path string) string {
	return s.baseURL + path
}

func (s *Service) handleGetDeviceInformation(context.Context, string) (string, error) {
	return soap.MarshalBody(s.GetDeviceInformation())
}

func (s *Service) handleGetSystemDateAndTime(context.Context, string) (string, error) {
	return soap.MarshalBody(s.GetSystemDateAndTime())
}

func (s *Service) handleGetServices(context.Context, string) (string, error) {
	return soap.MarshalBody(s.GetServices())
}

func (s *Service) handleGetCapabilities(_ context.Context, body string) (string, error) {
	var req GetCapabilitiesRequest
	if strings.TrimSpace(body) != "" {
		if err := xml.Unmarshal([]byte(body), &req); err != nil {
			return "", soap.NewInvalidArgsFault("Invalid request")
		}
	}
	resp, err := s.GetCapabilities(req.Category)
	if err != nil {
		return "", err
	}
	return soap.MarshalBody(resp)
}

package media

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/config"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif"
	"github.com/mooglejp/atomcam_tools/onvif-server/internal/onvif/soap"
)

// GetProfilesResponse represents GetProfiles response
type GetProfilesResponse struct {
	XMLName  xml.Name  `xml:"trt:GetProfilesResponse"`
	Profiles []Profile `xml:"trt:Profiles"`
}

// Profile represents a media profile
type Profile struct {
	Token                     string                     `xml:"token,attr"`
	Fixed                     bool                       `xml:"fixed,attr"`
	Name                      string                     `xml:"tt:Name"`
	VideoEncoderConfiguration *VideoEncoderConfiguration `xml:"tt:VideoEncoderConfiguration,omitempty"`
}

// VideoEncoderConfiguration represents video encoder configuration
type VideoEncoderConfiguration struct {
	Token       string      `xml:"token,attr"`
	Name        string      `xml:"tt:Name"`
	UseCount    int         `xml:"tt:UseCount"`
	Encoding    string      `xml:"tt:Encoding"`
	Resolution  Resolution  `xml:"tt:Resolution"`
	Quality     float64     `xml:"tt:Quality"`
	RateControl RateControl `xml:"tt:RateControl"`
}

// Resolution represents resolution
type Resolution struct {
	Width  int `xml:"tt:Width"`
	Height int `xml:"tt:Height"`
}

// RateControl represents rate control
type RateControl struct {
	FrameRateLimit   int `xml:"tt:FrameRateLimit"`
	EncodingInterval int `xml:"tt:EncodingInterval"`
	BitrateLimit     int `xml:"tt:BitrateLimit"`
}

// GetStreamUriRequest represents GetStreamUri request
type GetStreamUriRequest struct {
	XMLName      xml.Name `xml:"GetStreamUri"`
	ProfileToken string   `xml:"ProfileToken"`
}

// GetStreamUriResponse represents GetStreamUri response
type GetStreamUriResponse struct {
	XMLName  xml.Name `xml:"trt:GetStreamUriResponse"`
	MediaUri MediaUri `xml:"trt:MediaUri"`
}

// MediaUri represents media URI
type MediaUri struct {
	Uri                 string `xml:"tt:Uri"`
	InvalidAfterConnect bool   `xml:"tt:InvalidAfterConnect"`
	InvalidAfterReboot  bool   `xml:"tt:InvalidAfterReboot"`
	Timeout             string `xml:"tt:Timeout"`
}

// GetSnapshotUriRequest represents GetSnapshotUri request
type GetSnapshotUriRequest struct {
	XMLName      xml.Name `xml:"GetSnapshotUri"`
	ProfileToken string   `xml:"ProfileToken"`
}

// GetSnapshotUriResponse represents GetSnapshotUri response
type GetSnapshotUriResponse struct {
	XMLName  xml.Name `xml:"trt:GetSnapshotUriResponse"`
	MediaUri MediaUri `xml:"trt:MediaUri"`
}

// GetVideoEncoderConfigurationRequest represents GetVideoEncoderConfiguration request
type GetVideoEncoderConfigurationRequest struct {
	XMLName            xml.Name `xml:"GetVideoEncoderConfiguration"`
	ConfigurationToken string   `xml:"ConfigurationToken"`
}

// GetVideoEncoderConfigurationResponse represents GetVideoEncoderConfiguration response
type GetVideoEncoderConfigurationResponse struct {
	XMLName       xml.Name                  `xml:"trt:GetVideoEncoderConfigurationResponse"`
	Configuration VideoEncoderConfiguration `xml:"trt:Configuration"`
}

const (
	streamURITimeout   = "PT60S"
	snapshotURITimeout = "PT0S"
	encoderTokenSuffix = "_VEC"
)

// Service represents the Media service
type Service struct {
	profiles []config.ProfileConfig
}

// NewService creates a new Media service
func NewService(profiles []config.ProfileConfig) *Service {
	return &Service{profiles: profiles}
}

// Register binds the media actions to r.
func (s *Service) Register(r *onvif.Registry) {
	r.Register("GetProfiles", s.handleGetProfiles)
	r.Register("GetStreamUri", s.handleGetStreamUri)
	r.Register("GetSnapshotUri", s.handleGetSnapshotUri)
	r.Register("GetVideoEncoderConfiguration", s.handleGetVideoEncoderConfiguration)
}

// GetProfiles handles GetProfiles request
func (s *Service) GetProfiles() *GetProfilesResponse {
	resp := &GetProfilesResponse{
		Profiles: make([]Profile, 0, len(s.profiles)),
	}
	for i := range s.profiles {
		p := &s.profiles[i]
		enc := encoderConfiguration(p)
		resp.Profiles = append(resp.Profiles, Profile{
			Token:                     p.Token,
			Fixed:                     p.Fixed,
			Name:                      p.Name,
			VideoEncoderConfiguration: &enc,
		})
	}
	return resp
}

// GetStreamUri handles GetStreamUri request
func (s *Service) GetStreamUri(profileToken string) (*GetStreamUriResponse, error) {
	p, err := s.profile(profileToken)
	if err != nil {
		return nil, err
	}
	return &GetStreamUriResponse{
		MediaUri: MediaUri{Uri: p.RTSPURI, Timeout: streamURITimeout},
	}, nil
}

// GetSnapshotUri handles GetSnapshotUri request
func (s *Service) GetSnapshotUri(profileToken string) (*GetSnapshotUriResponse, error) {
	p, err := s.profile(profileToken)
	if err != nil {
		return nil, err
	}
	return &GetSnapshotUriResponse{
		MediaUri: MediaUri{Uri: p.SnapshotURI, Timeout: snapshotURITimeout},
	}, nil
}

// GetVideoEncoderConfiguration returns the encoder named by token, or the
// first profile's encoder when token is empty.
func (s *Service) GetVideoEncoderConfiguration(token string) (*GetVideoEncoderConfigurationResponse, error) {
	if len(s.profiles) == 0 {
		return nil, soap.NewInvalidArgsFault("No media profiles configured")
	}
	if token == "" {
		return &GetVideoEncoderConfigurationResponse{Configuration: encoderConfiguration(&s.profiles[0])}, nil
	}
	profileToken := strings.TrimSuffix(token, encoderTokenSuffix)
	p, err := s.profile(profileToken)
	if err != nil {
		return nil, soap.NewInvalidArgsFault(fmt.Sprintf("Configuration not found: %s", token))
	}
	return &GetVideoEncoderConfigurationResponse{Configuration: encoderConfiguration(p)}, nil
}

func (s *Service) profile(token string) (*config.ProfileConfig, error) {
	for i := range s.profiles {
		if s.profiles[i].Token == token {
			return &s.profiles[i], nil
		}
	}
	return nil, soap.NewInvalidArgsFault(fmt.Sprintf("Profile not found: %s", token))
}

func encoderConfiguration(p *config.ProfileConfig) VideoEncoderConfiguration {
	return VideoEncoderConfiguration{
		Token:    p.Token + encoderTokenSuffix,
		Name:     p.Name + " Video Encoder",
		UseCount: 1,
		Encoding: p.Encoding,
		Resolution: Resolution{
			Width:  p.Width,
			Height: p.Height,
		},
		Quality: float64(p.Quality),
		RateControl: RateControl{
			FrameRateLimit:   p.FrameRateLimit,
			EncodingInterval: 1,
			BitrateLimit:     p.BitrateLimit,
		},
	}
}

func (s *Service) handleGetProfiles(context.Context, string) (string, error) {
	return soap.MarshalBody(s.GetProfiles())
}

func (s *Service) handleGetStreamUri(_ context.Context, body string) (string, error) {
	var req GetStreamUriRequest
	if err := xml.Unmarshal([]byte(body), &req); err != nil {
		return "", soap.NewInvalidArgsFault("Invalid request")
	}
	resp, err := s.GetStreamUri(strings.TrimSpace(req.ProfileToken))
	if err != nil {
		return "", err
	}
	return soap.MarshalBody(resp)
}

func (s *Service) handleGetSnapshotUri(_ context.Context, body string) (string, error) {
	var req GetSnapshotUriRequest
	if err := xml.Unmarshal([]byte(body), &req); err != nil {
		return "", soap.NewInvalidArgsFault("Invalid request")
	}
	resp, err := s.GetSnapshotUri(strings.TrimSpace(req.ProfileToken))
	if err != nil {
		return "", err
	}
	return soap.MarshalBody(resp)
}

func (s *Service) handleGetVideoEncoderConfiguration(_ context.Context, body string) (string, error) {
	var req GetVideoEncoderConfigurationRequest
	if strings.TrimSpace(body) != "" {
		if err := xml.Unmarshal([]byte(body), &req); err != nil {
			return "", soap.NewInvalidArgsFault("Invalid request")
		}
	}
	resp, err := s.GetVideoEncoderConfiguration(strings.TrimSpace(req.ConfigurationToken))
	if err != nil {
		return "", err
	}
	return soap.MarshalBody(resp)
}

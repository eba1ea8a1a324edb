// Command onvif-client sends one WS-Security signed ONVIF request and prints
// the SOAP response.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mooglejp/atomcam_tools/onvif-server/pkg/wsse"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Server base URL")
	service := flag.String("service", "device", "Service to call: device or media")
	action := flag.String("action", "GetDeviceInformation", "ONVIF action name")
	body := flag.String("body", "", "Raw body element; overrides -action")
	username := flag.String("user", "", "Username; empty sends an unauthenticated request")
	password := flag.String("pass", "", "Password")
	plain := flag.Bool("plain", false, "Send PasswordText instead of PasswordDigest")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	logger := zap.Must(zap.NewDevelopment())

	endpoint, prefix, err := serviceEndpoint(*baseURL, *service)
	if err != nil {
		logger.Error("invalid service", zap.Error(err))
		os.Exit(2)
	}

	fragment := *body
	if fragment == "" {
		fragment = "<" + prefix + ":" + *action + "/>"
	}

	client := &http.Client{Timeout: *timeout}
	if *username != "" {
		t := wsse.NewTransport(*username, *password)
		t.PlainText = *plain
		client.Transport = t
	}

	status, resp, err := call(context.Background(), client, endpoint, wsse.Envelope(fragment))
	if err != nil {
		logger.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		os.Exit(1)
	}
	fmt.Println(string(resp))
	if status != http.StatusOK {
		logger.Error("server returned fault", zap.Int("status", status))
		os.Exit(1)
	}
}

func serviceEndpoint(baseURL, service string) (string, string, error) {
	base := strings.TrimSuffix(baseURL, "/")
	switch service {
	case "device":
		return base + "/onvif/device_service", "tds", nil
	case "media":
		return base + "/onvif/media_service", "trt", nil
	default:
		return "", "", fmt.Errorf("unknown service %q", service)
	}
}

func call(ctx context.Context, client *http.Client, endpoint string, envelope []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(envelope)))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/soap+xml; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"resty.dev/v3"

	"github.com/matjam/wayper/internal/metrics"
	"github.com/matjam/wayper/internal/socket"
)

func newClient(path string) *resty.Client {
	client := resty.NewWithClient(&http.Client{
		Transport: &http.Transport{
			DialContext: func(_ context.Context, _, _ string) (net.Conn, error) {
				return net.Dial("unix", path)
			},
		},
	})

	client.SetBaseURL("http://wayper")
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "wayper")
	return client
}

// GetStatus returns the decoded status and the raw body for printing.
func GetStatus(path string) (*StatusResponse, []byte, error) {
	res, err := newClient(path).R().Get("/status")
	if err != nil {
		return nil, nil, fmt.Errorf("error reaching the daemon: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, res.Bytes(), fmt.Errorf("error getting status: %s", res.Status())
	}

	body := res.Bytes()
	result := StatusResponse{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, body, fmt.Errorf("decode status: %w", err)
	}
	return &result, body, nil
}

func GetMetrics(path string) (*metrics.Snapshot, error) {
	res, err := newClient(path).R().Get("/metrics")
	if err != nil {
		return nil, fmt.Errorf("error reaching the daemon: %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("error getting metrics: %s", res.Status())
	}

	result := metrics.Snapshot{}
	if err := json.Unmarshal(res.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &result, nil
}

func SendCommand(path string, cmd socket.Command) (*CommandResponse, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}

	res, err := newClient(path).R().SetBody(body).Post("/command")
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("error sending command: %s", res.Status())
	}

	result := CommandResponse{}
	if err := json.Unmarshal(res.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("decode command response: %w", err)
	}
	return &result, nil
}

package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"k8s.io/utils/clock"
)

const (
	BillingMetered   = "METERED"
	BillingUnmetered = "UNMETERED"

	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusStopping  = "STOPPING"
	StatusCompleted = "COMPLETED"

	DefaultPollInterval = 2 * time.Second

	nameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	nameLength   = 10
)

var (
	ErrSessionEnded = errors.New("remote access session ended")
	ErrMissingField = errors.New("missing field in response")
)

// FarmConfig describes a device farm account.
type FarmConfig struct {
	BaseURL       string
	Token         string
	DeviceARN     string
	BillingMethod string
	PollInterval  time.Duration
}

// FarmClient provisions remote access sessions from a device farm API.
type FarmClient struct {
	cfg    FarmConfig
	client *http.Client
	clock  clock.Clock
	logger *slog.Logger
}

// NewFarmClient creates a client. A nil clock means the real clock.
func NewFarmClient(cfg FarmConfig, clk clock.Clock, logger *slog.Logger) *FarmClient {
	if cfg.BillingMethod == "" {
		cfg.BillingMethod = BillingMetered
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FarmClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		clock:  clk,
		logger: logger,
	}
}

// Provision creates a project and a remote access session on the
// configured device, then waits for the session to run.
func (c *FarmClient) Provision(ctx context.Context) (Endpoint, error) {
	if c.cfg.DeviceARN == "" {
		return Endpoint{}, errors.New("device ARN is required")
	}
	projectARN, err := c.CreateProject(ctx, randomName())
	if err != nil {
		return Endpoint{}, err
	}
	sessionARN, err := c.CreateRemoteAccessSession(ctx, projectARN, randomName())
	if err != nil {
		return Endpoint{}, err
	}
	c.logger.Info("remote access session created", "session", sessionARN)
	return c.WaitRunning(ctx, sessionARN)
}

// CreateProject returns the ARN of a new project.
func (c *FarmClient) CreateProject(ctx context.Context, name string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/projects", map[string]any{"name": name})
	if err != nil {
		return "", errors.Wrap(err, "failed to create project")
	}
	arn := gjson.GetBytes(body, "project.arn")
	if !arn.Exists() || arn.String() == "" {
		return "", errors.Wrap(ErrMissingField, "project.arn")
	}
	return arn.String(), nil
}

// CreateRemoteAccessSession requests the configured device and returns the
// session ARN.
func (c *FarmClient) CreateRemoteAccessSession(ctx context.Context, projectARN, name string) (string, error) {
	req := map[string]any{
		"name":       name,
		"projectArn": projectARN,
		"deviceArn":  c.cfg.DeviceARN,
		"configuration": map[string]string{
			"billingMethod": c.cfg.BillingMethod,
		},
	}
	body, err := c.do(ctx, http.MethodPost, "/api/sessions", req)
	if err != nil {
		return "", errors.Wrap(err, "failed to create remote access session")
	}
	arn := gjson.GetBytes(body, "remoteAccessSession.arn")
	if !arn.Exists() || arn.String() == "" {
		return "", errors.Wrap(ErrMissingField, "remoteAccessSession.arn")
	}
	return arn.String(), nil
}

// GetRemoteAccessSession returns the current status and endpoint of a
// session. The endpoint is empty until the session runs.
func (c *FarmClient) GetRemoteAccessSession(ctx context.Context, sessionARN string) (status, endpoint string, err error) {
	body, err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionARN), nil)
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to get remote access session %s", sessionARN)
	}
	res := gjson.GetManyBytes(body, "remoteAccessSession.status", "remoteAccessSession.endpoint")
	if !res[0].Exists() {
		return "", "", errors.Wrap(ErrMissingField, "remoteAccessSession.status")
	}
	return res[0].String(), res[1].String(), nil
}

// WaitRunning polls a session until it is RUNNING.
func (c *FarmClient) WaitRunning(ctx context.Context, sessionARN string) (Endpoint, error) {
	for {
		status, endpoint, err := c.GetRemoteAccessSession(ctx, sessionARN)
		if err != nil {
			return Endpoint{}, err
		}
		switch status {
		case StatusRunning:
			if endpoint == "" {
				return Endpoint{}, errors.Wrap(ErrMissingField, "remoteAccessSession.endpoint")
			}
			return Endpoint{URL: endpoint, SessionARN: sessionARN}, nil
		case StatusStopping, StatusCompleted:
			return Endpoint{}, errors.Wrapf(ErrSessionEnded, "session %s is %s", sessionARN, status)
		}
		c.logger.Debug("waiting for remote access session", "session", sessionARN, "status", status)

		t := c.clock.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return Endpoint{}, errors.Wrap(ctx.Err(), "waiting for remote access session")
		case <-t.C():
		}
	}
}

func (c *FarmClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "fail to marshal request to json")
		}
		reqBody = bytes.NewReader(data)
	}

	u := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create request from url: %s", u)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s %s", method, u)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("%s %s respond %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.Errorf("%s %s returned invalid JSON", method, path)
	}
	return body, nil
}

func randomName() string {
	name, err := gonanoid.Generate(nameAlphabet, nameLength)
	if err != nil {
		return "remoteview"
	}
	return name
}

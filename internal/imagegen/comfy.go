package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const (
	defaultComfyURL     = "http://127.0.0.1:8188"
	defaultComfyTimeout = 30 * time.Second
)

// WorkflowNodes names the workflow nodes a render request is written into
type WorkflowNodes struct {
	Prompt   string   `yaml:"prompt"`
	Negative string   `yaml:"negative"`
	Seed     string   `yaml:"seed"`
	Size     []string `yaml:"size"`
	Output   string   `yaml:"output"`
}

// DefaultWorkflowNodes matches the stock text-to-image workflow
func DefaultWorkflowNodes() WorkflowNodes {
	return WorkflowNodes{
		Prompt: "6",
		Seed:   "25",
		Size:   []string{"27", "30"},
		Output: "9",
	}
}

// ComfyClient talks to a ComfyUI server
type ComfyClient struct {
	baseURL    string
	httpClient *http.Client
	workflow   []byte
	nodes      WorkflowNodes
	clientID   string
	logger     *zap.Logger
}

// ComfyOption configures the client
type ComfyOption func(*ComfyClient)

// WithBaseURL sets the ComfyUI server address
func WithBaseURL(baseURL string) ComfyOption {
	return func(c *ComfyClient) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ComfyOption {
	return func(c *ComfyClient) {
		c.httpClient = httpClient
	}
}

// WithNodes overrides the workflow node ids
func WithNodes(nodes WorkflowNodes) ComfyOption {
	return func(c *ComfyClient) {
		c.nodes = nodes
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ComfyOption {
	return func(c *ComfyClient) {
		c.logger = logger
	}
}

// NewComfyClient creates a client that renders with the given workflow template
func NewComfyClient(workflow []byte, opts ...ComfyOption) (*ComfyClient, error) {
	if !gjson.ValidBytes(workflow) {
		return nil, fmt.Errorf("workflow is not valid JSON")
	}

	c := &ComfyClient{
		baseURL:    defaultComfyURL,
		httpClient: &http.Client{Timeout: defaultComfyTimeout},
		workflow:   workflow,
		nodes:      DefaultWorkflowNodes(),
		clientID:   uuid.NewString(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("imagegen.comfy")

	for _, node := range append([]string{c.nodes.Prompt, c.nodes.Seed, c.nodes.Output}, c.nodes.Size...) {
		if !gjson.GetBytes(workflow, node).Exists() {
			return nil, fmt.Errorf("workflow has no node %q", node)
		}
	}
	return c, nil
}

// BuildWorkflow writes req into a copy of the workflow template
func (c *ComfyClient) BuildWorkflow(req Request) ([]byte, error) {
	type edit struct {
		path  string
		value any
	}

	edits := []edit{
		{c.nodes.Prompt + ".inputs.text", req.Prompt},
		{c.nodes.Seed + ".inputs.noise_seed", req.Seed},
	}
	if c.nodes.Negative != "" {
		edits = append(edits, edit{c.nodes.Negative + ".inputs.text", req.NegativePrompt})
	}
	for _, node := range c.nodes.Size {
		edits = append(edits,
			edit{node + ".inputs.width", req.Width},
			edit{node + ".inputs.height", req.Height},
		)
	}

	workflow := append([]byte(nil), c.workflow...)
	var err error
	for _, e := range edits {
		workflow, err = sjson.SetBytes(workflow, e.path, e.value)
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", e.path, err)
		}
	}
	return workflow, nil
}

// Submit queues the render and returns the prompt id
func (c *ComfyClient) Submit(ctx context.Context, req Request) (string, error) {
	c.logger.Info("Submit started",
		zap.Int("width", req.Width), zap.Int("height", req.Height), zap.Int64("seed", req.Seed))

	workflow, err := c.BuildWorkflow(req)
	if err != nil {
		return "", err
	}

	body, err := sjson.SetRawBytes([]byte(`{}`), "prompt", workflow)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	body, err = sjson.SetBytes(body, "client_id", c.clientID)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/prompt", body)
	if err != nil {
		c.logger.Error("Submit failed", zap.Error(err))
		return "", err
	}

	promptID := gjson.GetBytes(respBody, "prompt_id").String()
	if promptID == "" {
		return "", fmt.Errorf("no prompt_id in response")
	}

	c.logger.Info("Submit completed", zap.String("prompt_id", promptID))
	return promptID, nil
}

// Status reads the job's history entry
func (c *ComfyClient) Status(ctx context.Context, jobID string) (JobState, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/history/"+url.PathEscape(jobID), nil)
	if err != nil {
		return JobState{}, err
	}

	entry := gjson.GetBytes(respBody, jobID)
	if !entry.Exists() {
		return JobState{Status: StatusPending}, nil
	}

	image := entry.Get("outputs." + c.nodes.Output + ".images.0")
	if image.Exists() {
		return JobState{
			Status: StatusReady,
			Artifact: &Artifact{
				Filename:  image.Get("filename").String(),
				Subfolder: image.Get("subfolder").String(),
				Type:      image.Get("type").String(),
			},
		}, nil
	}

	if entry.Get("status.status_str").String() == "error" {
		return JobState{Status: StatusFailed, Message: entry.Get("status.messages").Raw}, nil
	}
	return JobState{Status: StatusPending}, nil
}

// Fetch downloads the rendered artifact bytes unchanged
func (c *ComfyClient) Fetch(ctx context.Context, artifact Artifact) ([]byte, error) {
	kind := artifact.Type
	if kind == "" {
		kind = "output"
	}
	query := url.Values{}
	query.Set("filename", artifact.Filename)
	query.Set("subfolder", artifact.Subfolder)
	query.Set("type", kind)

	data, err := c.do(ctx, http.MethodGet, "/view?"+query.Encode(), nil)
	if err != nil {
		c.logger.Error("Fetch failed", zap.String("filename", artifact.Filename), zap.Error(err))
		return nil, err
	}

	c.logger.Info("Fetch completed", zap.String("filename", artifact.Filename), zap.Int("bytes", len(data)))
	return data, nil
}

func (c *ComfyClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return data, nil
}

// handleError turns a non-200 response into an APIError
func (c *ComfyClient) handleError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	logBody := bodyStr
	if len(logBody) > 500 {
		logBody = logBody[:500] + "..."
	}
	c.logger.Warn("API error", zap.Int("status", resp.StatusCode), zap.String("body", logBody))

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    bodyStr,
	}
}

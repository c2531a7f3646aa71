package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nebula-tools/nebulactl/internal/mapping"
	"github.com/nebula-tools/nebulactl/internal/ws"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(port int) *Client {
	return &Client{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) Health() error {
	return c.get("/health", nil)
}

func (c *Client) Hosts() ([]HostInfo, error) {
	var hosts []HostInfo
	if err := c.get("/hosts", &hosts); err != nil {
		return nil, err
	}
	return hosts, nil
}

func (c *Client) Mappings() ([]mapping.HostMapping, error) {
	var mappings []mapping.HostMapping
	if err := c.get("/mappings", &mappings); err != nil {
		return nil, err
	}
	return mappings, nil
}

func (c *Client) Sync(req SyncRequest) (*SyncResponse, error) {
	var resp SyncResponse
	if err := c.post("/sync", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Tools() ([]ToolInfo, error) {
	var infos []ToolInfo
	if err := c.get("/tools", &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

func (c *Client) RunTool(req RunToolRequest) (*RunToolResponse, error) {
	var resp RunToolResponse
	if err := c.post("/tools/run", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamTool runs a tool over the websocket endpoint, writing output lines
// to out as they arrive, and returns the exit information.
func (c *Client) StreamTool(name string, args []string, out io.Writer) (*RunToolResponse, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	u.Scheme = "ws"
	u.Path = fmt.Sprintf("/tools/%s/stream", name)
	q := u.Query()
	for _, a := range args {
		q.Add("arg", a)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to stream: %w", err)
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, fmt.Errorf("stream closed before exit message")
			}
			return nil, fmt.Errorf("reading stream: %w", err)
		}

		var env ws.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case ws.TypeRunLine:
			var p ws.RunLinePayload
			if err := json.Unmarshal(env.Payload, &p); err == nil {
				fmt.Fprintln(out, p.Line)
			}
		case ws.TypeRunExit:
			var p ws.RunExitPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				return nil, fmt.Errorf("parsing exit message: %w", err)
			}
			return &RunToolResponse{
				ExitCode:   p.ExitCode,
				Terminated: p.Terminated,
				DurationMS: p.DurationMS,
			}, nil
		case ws.TypeRunError:
			var p ws.RunErrorPayload
			json.Unmarshal(env.Payload, &p)
			return nil, fmt.Errorf("%s", p.Error)
		}
	}
}

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	if result != nil {
		return json.Unmarshal(body, result)
	}
	return nil
}

func (c *Client) post(path string, payload, result interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.HTTPClient.Post(c.BaseURL+path, "application/json", body)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("%s", errResp.Error)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody)
	}

	if result != nil {
		return json.Unmarshal(respBody, result)
	}
	return nil
}

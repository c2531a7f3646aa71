// Package cloud talks to the compute control plane through the gcloud CLI.
// It is the authoritative source for instance addresses; everything this
// tool persists locally is a cache derived from it.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Directory lists and controls instances and resolves their external IPs.
type Directory interface {
	List(ctx context.Context, project, zone string) ([]Instance, error)
	Get(ctx context.Context, name, zone, project string) (*Instance, error)
	Start(ctx context.Context, name, zone, project string) error
	Stop(ctx context.Context, name, zone, project string) error
	// ExternalIP returns the instance's public address, or "" when the
	// instance has none (stopped or internal-only).
	ExternalIP(ctx context.Context, name, zone, project string) (string, error)
	WaitForStatus(ctx context.Context, name, zone, project string, opts WaitOptions) error
}

type client struct {
	gcloudPath string
}

func NewClient() (Directory, error) {
	path, err := exec.LookPath("gcloud")
	if err != nil {
		return nil, fmt.Errorf("gcloud not found in PATH: %w", err)
	}
	return &client{gcloudPath: path}, nil
}

func (c *client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.gcloudPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gcloud %s failed: %w\nstderr: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// gcloudInstance mirrors the subset of `gcloud compute instances list
// --format=json` output this tool reads.
type gcloudInstance struct {
	Name              string `json:"name"`
	Status            string `json:"status"`
	Zone              string `json:"zone"`
	MachineType       string `json:"machineType"`
	NetworkInterfaces []struct {
		NetworkIP     string `json:"networkIP"`
		AccessConfigs []struct {
			NatIP string `json:"natIP"`
		} `json:"accessConfigs"`
	} `json:"networkInterfaces"`
}

func (g gcloudInstance) toInstance() Instance {
	inst := Instance{
		Name:        g.Name,
		Status:      InstanceStatus(g.Status),
		Zone:        lastURLSegment(g.Zone),
		MachineType: lastURLSegment(g.MachineType),
	}
	if len(g.NetworkInterfaces) > 0 {
		ni := g.NetworkInterfaces[0]
		inst.InternalIP = ni.NetworkIP
		if len(ni.AccessConfigs) > 0 {
			inst.ExternalIP = ni.AccessConfigs[0].NatIP
		}
	}
	return inst
}

// lastURLSegment reduces gcloud's self-link URLs (".../zones/us-east1-b")
// to the bare resource name.
func lastURLSegment(s string) string {
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (c *client) List(ctx context.Context, project, zone string) ([]Instance, error) {
	args := []string{"compute", "instances", "list", "--project", project, "--format", "json"}
	if zone != "" {
		args = append(args, "--zones", zone)
	}
	output, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	return parseInstances(output)
}

func parseInstances(output string) ([]Instance, error) {
	var entries []gcloudInstance
	if err := json.Unmarshal([]byte(output), &entries); err != nil {
		return nil, fmt.Errorf("parsing gcloud output: %w", err)
	}
	instances := make([]Instance, 0, len(entries))
	for _, e := range entries {
		instances = append(instances, e.toInstance())
	}
	return instances, nil
}

func (c *client) Get(ctx context.Context, name, zone, project string) (*Instance, error) {
	output, err := c.run(ctx, "compute", "instances", "describe", name,
		"--zone", zone, "--project", project, "--format", "json")
	if err != nil {
		return nil, err
	}
	var entry gcloudInstance
	if err := json.Unmarshal([]byte(output), &entry); err != nil {
		return nil, fmt.Errorf("parsing gcloud output: %w", err)
	}
	inst := entry.toInstance()
	return &inst, nil
}

func (c *client) Start(ctx context.Context, name, zone, project string) error {
	_, err := c.run(ctx, "compute", "instances", "start", name,
		"--zone", zone, "--project", project)
	return err
}

func (c *client) Stop(ctx context.Context, name, zone, project string) error {
	_, err := c.run(ctx, "compute", "instances", "stop", name,
		"--zone", zone, "--project", project)
	return err
}

func (c *client) ExternalIP(ctx context.Context, name, zone, project string) (string, error) {
	inst, err := c.Get(ctx, name, zone, project)
	if err != nil {
		return "", err
	}
	return inst.ExternalIP, nil
}

func (c *client) WaitForStatus(ctx context.Context, name, zone, project string, opts WaitOptions) error {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		inst, err := c.Get(ctx, name, zone, project)
		if err != nil {
			return err
		}
		if inst.Status == opts.Target {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s to reach %s: %w", name, opts.Target, ctx.Err())
		case <-ticker.C:
		}
	}
}

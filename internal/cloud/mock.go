package cloud

import (
	"context"
	"fmt"
)

// MockDirectory implements Directory for testing.
type MockDirectory struct {
	Instances map[string]*Instance
	ListErr   error
	GetErr    error
	StartErr  error
	StopErr   error
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		Instances: make(map[string]*Instance),
	}
}

func (m *MockDirectory) List(ctx context.Context, project, zone string) ([]Instance, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	result := make([]Instance, 0, len(m.Instances))
	for _, inst := range m.Instances {
		if zone != "" && inst.Zone != zone {
			continue
		}
		result = append(result, *inst)
	}
	return result, nil
}

func (m *MockDirectory) Get(ctx context.Context, name, zone, project string) (*Instance, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	inst, ok := m.Instances[name]
	if !ok {
		return nil, fmt.Errorf("instance %q not found", name)
	}
	return inst, nil
}

func (m *MockDirectory) Start(ctx context.Context, name, zone, project string) error {
	if m.StartErr != nil {
		return m.StartErr
	}
	inst, ok := m.Instances[name]
	if !ok {
		return fmt.Errorf("instance %q not found", name)
	}
	inst.Status = StatusRunning
	return nil
}

func (m *MockDirectory) Stop(ctx context.Context, name, zone, project string) error {
	if m.StopErr != nil {
		return m.StopErr
	}
	inst, ok := m.Instances[name]
	if !ok {
		return fmt.Errorf("instance %q not found", name)
	}
	inst.Status = StatusTerminated
	inst.ExternalIP = ""
	return nil
}

func (m *MockDirectory) ExternalIP(ctx context.Context, name, zone, project string) (string, error) {
	inst, err := m.Get(ctx, name, zone, project)
	if err != nil {
		return "", err
	}
	return inst.ExternalIP, nil
}

func (m *MockDirectory) WaitForStatus(ctx context.Context, name, zone, project string, opts WaitOptions) error {
	inst, err := m.Get(ctx, name, zone, project)
	if err != nil {
		return err
	}
	if inst.Status != opts.Target {
		return fmt.Errorf("instance %q is %s, want %s", name, inst.Status, opts.Target)
	}
	return nil
}

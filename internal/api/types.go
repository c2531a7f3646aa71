package api

// SyncRequest asks the daemon to reconcile one instance. ObservedIP may be
// left empty to have the daemon resolve it from the cloud directory.
type SyncRequest struct {
	InstanceName string `json:"instanceName"`
	Zone         string `json:"zone,omitempty"`
	Project      string `json:"project,omitempty"`
	ObservedIP   string `json:"observedIP,omitempty"`
	KeyPath      string `json:"keyPath,omitempty"`
	User         string `json:"user,omitempty"`
}

type SyncResponse struct {
	Outcome    string `json:"outcome"`
	ExternalIP string `json:"externalIP,omitempty"`
}

// HostInfo describes one Host alias found in the SSH config.
type HostInfo struct {
	Alias   string `json:"alias"`
	Managed bool   `json:"managed"`
	// UnmanagedDuplicate marks a managed alias that also appears in a
	// hand-written block; the operator should resolve the duplication.
	UnmanagedDuplicate bool `json:"unmanagedDuplicate,omitempty"`
}

type ToolInfo struct {
	Name        string `json:"name"`
	EntryPoint  string `json:"entryPoint"`
	Description string `json:"description,omitempty"`
}

type RunToolRequest struct {
	Name           string   `json:"name"`
	Args           []string `json:"args,omitempty"`
	TimeoutSeconds int      `json:"timeoutSeconds,omitempty"`
}

type RunToolResponse struct {
	ExitCode   int    `json:"exitCode"`
	Terminated bool   `json:"terminated"`
	DurationMS int64  `json:"durationMS"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

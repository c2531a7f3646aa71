package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"
	"time"

	"github.com/nebula-tools/nebulactl/internal/api"
	"github.com/nebula-tools/nebulactl/internal/audit"
	"github.com/nebula-tools/nebulactl/internal/cloud"
	"github.com/nebula-tools/nebulactl/internal/config"
	"github.com/nebula-tools/nebulactl/internal/mapping"
	"github.com/nebula-tools/nebulactl/internal/sshconfig"
	"github.com/nebula-tools/nebulactl/internal/syncer"
	"github.com/nebula-tools/nebulactl/internal/tools"
	"github.com/spf13/cobra"
)

var cfg config.Config

func main() {
	cfg, _ = config.Load()

	root := &cobra.Command{
		Use:           "nebulactl",
		Short:         "Keep SSH config in sync with cloud instances and run toolset tools",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		instancesCmd(),
		syncCmd(),
		hostsCmd(),
		toolsCmd(),
		auditCmd(),
		setupCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSyncer(store *mapping.Store) *syncer.Syncer {
	return syncer.New(store, cfg.SSH.ConfigPath, cfg.SSH.KeyDir, cfg.SSH.User)
}

func openAudit() *audit.Log {
	a, err := audit.Open(config.AuditPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: audit trail unavailable: %v\n", err)
		return nil
	}
	return a
}

// --- instances ---

func instancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List and control cloud instances",
	}
	cmd.AddCommand(instancesListCmd(), instancesStartCmd(), instancesStopCmd())
	return cmd
}

func instancesListCmd() *cobra.Command {
	var project, zone string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List instances in the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, zone = fillLocation(project, zone)
			if project == "" {
				return fmt.Errorf("--project is required (or set cloud.project in config)")
			}

			dir, err := cloud.NewClient()
			if err != nil {
				return err
			}

			instances, err := dir.List(context.Background(), project, zone)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "NAME\tZONE\tSTATUS\tMACHINE\tEXTERNAL IP\n")
			for _, inst := range instances {
				ip := inst.ExternalIP
				if ip == "" {
					ip = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					inst.Name, inst.Zone, inst.Status, inst.MachineType, ip)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Cloud project (default from config)")
	cmd.Flags().StringVar(&zone, "zone", "", "Zone filter (default from config)")
	return cmd
}

func instancesStartCmd() *cobra.Command {
	var project, zone string
	var wait, sync bool
	cmd := &cobra.Command{
		Use:   "start <instance>",
		Short: "Start an instance, optionally syncing its SSH host entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			project, zone = fillLocation(project, zone)
			if project == "" || zone == "" {
				return fmt.Errorf("--project and --zone are required (or set cloud defaults in config)")
			}

			dir, err := cloud.NewClient()
			if err != nil {
				return err
			}

			ctx := context.Background()
			fmt.Printf("Starting instance %s...\n", name)
			if err := dir.Start(ctx, name, zone, project); err != nil {
				return err
			}

			if !wait && !sync {
				return nil
			}

			fmt.Println("Waiting for instance to reach RUNNING...")
			err = dir.WaitForStatus(ctx, name, zone, project, cloud.WaitOptions{
				Target: cloud.StatusRunning,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Instance %s is running\n", name)

			if !sync {
				return nil
			}
			return syncInstance(ctx, dir, name, zone, project, "", "", "")
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Cloud project (default from config)")
	cmd.Flags().StringVar(&zone, "zone", "", "Instance zone (default from config)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the instance is running")
	cmd.Flags().BoolVar(&sync, "sync", false, "Sync the SSH host entry after start")
	return cmd
}

func instancesStopCmd() *cobra.Command {
	var project, zone string
	cmd := &cobra.Command{
		Use:   "stop <instance>",
		Short: "Stop an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			project, zone = fillLocation(project, zone)
			if project == "" || zone == "" {
				return fmt.Errorf("--project and --zone are required (or set cloud defaults in config)")
			}

			dir, err := cloud.NewClient()
			if err != nil {
				return err
			}

			fmt.Printf("Stopping instance %s...\n", name)
			return dir.Stop(context.Background(), name, zone, project)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Cloud project (default from config)")
	cmd.Flags().StringVar(&zone, "zone", "", "Instance zone (default from config)")
	return cmd
}

// --- sync ---

func syncCmd() *cobra.Command {
	var project, zone, ip, keyPath, user string
	cmd := &cobra.Command{
		Use:   "sync <instance>",
		Short: "Reconcile an instance's SSH host entry with its current external IP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			store := mapping.NewStore(config.MappingsPath())

			// Stored records carry location context from earlier syncs.
			if m, ok := store.Get(name); ok {
				if zone == "" {
					zone = m.Zone
				}
				if project == "" {
					project = m.Project
				}
			}
			project, zone = fillLocation(project, zone)

			ctx := context.Background()
			if ip == "" {
				if project == "" || zone == "" {
					return fmt.Errorf("--project and --zone are required to look up the IP")
				}
				dir, err := cloud.NewClient()
				if err != nil {
					return err
				}
				observed, err := dir.ExternalIP(ctx, name, zone, project)
				if err != nil {
					return fmt.Errorf("looking up external IP: %w", err)
				}
				ip = observed
			}

			return runSync(ctx, store, name, zone, project, ip, keyPath, user)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Cloud project (default from config)")
	cmd.Flags().StringVar(&zone, "zone", "", "Instance zone (default from config)")
	cmd.Flags().StringVar(&ip, "ip", "", "External IP (looked up via gcloud when omitted)")
	cmd.Flags().StringVar(&keyPath, "key", "", "Private key path override")
	cmd.Flags().StringVar(&user, "user", "", "SSH user override")
	return cmd
}

func syncInstance(ctx context.Context, dir cloud.Directory, name, zone, project, ip, keyPath, user string) error {
	if ip == "" {
		observed, err := dir.ExternalIP(ctx, name, zone, project)
		if err != nil {
			return fmt.Errorf("looking up external IP: %w", err)
		}
		ip = observed
	}
	store := mapping.NewStore(config.MappingsPath())
	return runSync(ctx, store, name, zone, project, ip, keyPath, user)
}

func runSync(ctx context.Context, store *mapping.Store, name, zone, project, ip, keyPath, user string) error {
	outcome, err := newSyncer(store).Sync(syncer.Request{
		InstanceName: name,
		Zone:         zone,
		Project:      project,
		ObservedIP:   ip,
		KeyPath:      keyPath,
		User:         user,
	})
	if err != nil {
		return err
	}

	a := openAudit()
	defer a.Close()
	a.Record(ctx, "sync", name, fmt.Sprintf("outcome=%s ip=%s", outcome, ip))

	switch outcome {
	case syncer.OutcomeNoAddress:
		fmt.Printf("Instance %s has no external address; SSH config left unchanged\n", name)
	case syncer.OutcomeCreated:
		fmt.Printf("Created SSH host entry %s -> %s\n", name, ip)
	case syncer.OutcomeUpdatedIPChanged:
		fmt.Printf("Updated SSH host entry %s -> %s\n", name, ip)
	case syncer.OutcomeUpdatedNoChange:
		fmt.Printf("SSH host entry %s already up to date (%s)\n", name, ip)
	}
	return nil
}

// --- hosts ---

func hostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Inspect SSH config host entries",
	}
	cmd.AddCommand(hostsListCmd())
	return cmd
}

func hostsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List Host aliases, marking managed entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			content := sshconfig.LoadFile(cfg.SSH.ConfigPath)

			managed := make(map[string]bool)
			for _, a := range sshconfig.ManagedAliases(content) {
				managed[a] = true
			}
			dupes := sshconfig.UnmanagedDuplicates(content)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ALIAS\tMANAGED\n")
			seen := make(map[string]bool)
			for _, alias := range sshconfig.Aliases(content) {
				if seen[alias] {
					continue
				}
				seen[alias] = true
				mark := "no"
				if managed[alias] {
					mark = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\n", alias, mark)
			}
			w.Flush()

			for _, d := range dupes {
				fmt.Fprintf(os.Stderr, "Warning: alias %q also has a hand-written block; resolve the duplicate manually\n", d)
			}
			return nil
		},
	}
}

// --- tools ---

func toolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Discover and run toolset tools",
	}
	cmd.AddCommand(toolsListCmd(), toolsRunCmd())
	return cmd
}

func toolsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptors, err := tools.Scan(cfg.Tools.Dir)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(descriptors)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "NAME\tDESCRIPTION\n")
			for _, d := range descriptors {
				desc := d.Describe()
				if desc == "" {
					desc = "-"
				}
				fmt.Fprintf(w, "%s\t%s\n", d.Name, desc)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func toolsRunCmd() *cobra.Command {
	var remote bool
	var timeoutMinutes int
	cmd := &cobra.Command{
		Use:   "run <tool> [args...]",
		Short: "Run a tool, streaming its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			toolArgs := args[1:]

			if remote {
				client := api.NewClient(cfg.API.Port)
				resp, err := client.StreamTool(name, toolArgs, os.Stdout)
				if err != nil {
					return err
				}
				return reportToolExit(name, resp.ExitCode, resp.Terminated)
			}

			desc, err := tools.Find(cfg.Tools.Dir, name)
			if err != nil {
				return err
			}

			result, err := tools.NewRunner().Run(context.Background(), *desc, tools.RunOptions{
				Args:    toolArgs,
				Timeout: time.Duration(timeoutMinutes) * time.Minute,
			})
			if err != nil {
				return err
			}

			a := openAudit()
			defer a.Close()
			a.Record(context.Background(), "tool.run", name,
				fmt.Sprintf("exit=%d terminated=%v", result.ExitCode, result.Terminated))

			return reportToolExit(name, result.ExitCode, result.Terminated)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Run through the nebulad daemon")
	cmd.Flags().IntVar(&timeoutMinutes, "timeout", 0, "Max execution time in minutes (0 = no limit)")
	return cmd
}

func reportToolExit(name string, exitCode int, terminated bool) error {
	if terminated {
		return fmt.Errorf("tool %s was terminated before completing", name)
	}
	if exitCode != 0 {
		return fmt.Errorf("tool %s failed with exit code %d", name, exitCode)
	}
	return nil
}

// --- audit ---

func auditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent sync and tool-run activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := audit.Open(config.AuditPath())
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.Recent(context.Background(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "TIME\tACTION\tSUBJECT\tDETAIL\n")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.CreatedAt.Local().Format(time.RFC3339), e.Action, e.Subject, e.Detail)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	return cmd
}

// --- setup ---

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "First-time setup: create directories and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Setting up nebulactl...")

			if err := config.EnsureDirs(); err != nil {
				return fmt.Errorf("creating directories: %w", err)
			}
			fmt.Println("  Created ~/.nebulactl directory structure")

			if _, err := os.Stat(config.ConfigPath()); os.IsNotExist(err) {
				if err := config.Save(config.Default()); err != nil {
					return fmt.Errorf("saving default config: %w", err)
				}
				fmt.Println("  Created default config.yaml")
			} else {
				fmt.Println("  Config already exists, skipping")
			}

			deps := []string{"gcloud", "python3", "ssh"}
			for _, d := range deps {
				if _, err := exec.LookPath(d); err != nil {
					fmt.Printf("  Warning: %s not found in PATH\n", d)
				} else {
					fmt.Printf("  Found %s\n", d)
				}
			}

			fmt.Println("\nSetup complete. Next steps:")
			fmt.Println("  1. Set cloud.project and cloud.zone in ~/.nebulactl/config.yaml")
			fmt.Println("  2. nebulactl instances list")
			fmt.Println("  3. nebulactl sync <instance>")
			return nil
		},
	}
}

func fillLocation(project, zone string) (string, string) {
	if project == "" {
		project = cfg.Cloud.Project
	}
	if zone == "" {
		zone = cfg.Cloud.Zone
	}
	return project, zone
}

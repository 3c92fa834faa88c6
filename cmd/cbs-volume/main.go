package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"k8s.io/klog/v2"

	"github.com/akam1o/cbs-volume/pkg/cbs"
	"github.com/akam1o/cbs-volume/pkg/config"
	"github.com/akam1o/cbs-volume/pkg/output"
	"github.com/akam1o/cbs-volume/pkg/reconciler"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

var (
	configPath   = flag.String("config", "", "Path to configuration file (optional)")
	name         = flag.String("name", "", "Volume name or UUID")
	size         = flag.Int("size", reconciler.MinVolumeSizeGB, "Volume size in GB")
	volumeType   = flag.String("volume-type", cbs.VolumeTypeSATA, "Volume type: SSD or SATA")
	description  = flag.String("description", "", "Volume description")
	metadata     = flag.String("metadata", "", "Volume metadata as key=value,key=value")
	snapshotID   = flag.String("snapshot-id", "", "Snapshot to create the volume from")
	state        = flag.String("state", string(reconciler.StatePresent), "Desired state: present or absent")
	wait         = flag.Bool("wait", false, "Wait for the volume to settle")
	waitTimeout  = flag.Int("wait-timeout", reconciler.DefaultWaitTimeoutSeconds, "Wait budget in seconds")
	region       = flag.String("region", "", "Region (overrides configuration)")
	outputFormat = flag.String("output", string(output.FormatJSON), "Output format: json or text")
	version      = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	os.Exit(run())
}

func run() int {
	defer klog.Flush()

	if *version {
		fmt.Printf("%s %s\n", ToolName, ToolVersion)
		return exitOK
	}

	format, err := output.ParseFormat(*outputFormat)
	if err != nil {
		klog.Errorf("Invalid -output flag: %v", err)
		return exitUsage
	}
	printer := output.NewPrinter(os.Stdout, format, format == output.FormatText)

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		klog.Errorf("Failed to load configuration: %v", err)
		return report(printer, reconciler.ConfigurationFailure(err), exitUsage)
	}

	// Flags set on the command line override the configuration file
	if err := applyFlags(cfg, flag.CommandLine); err != nil {
		klog.Errorf("Invalid flags: %v", err)
		return report(printer, reconciler.ConfigurationFailure(err), exitUsage)
	}

	// Volume settings are checked before authenticating so bad input never reaches the service
	spec := cfg.ToVolumeSpec()
	if err := spec.Validate(); err != nil {
		return report(printer, &reconciler.Result{Msg: err.Error(), Err: err}, exitFailed)
	}

	if err := cfg.Validate(); err != nil {
		klog.Errorf("Invalid configuration: %v", err)
		return report(printer, reconciler.ConfigurationFailure(err), exitUsage)
	}

	klog.V(2).Infof("Identity endpoint: %s", cfg.IdentityEndpoint())

	// Setup signal handling; an interrupted wait reports a timeout
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			klog.Infof("Received signal %v, stopping", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	client, err := cbs.NewClient(ctx, cfg.ToClientConfig())
	if err != nil {
		klog.Errorf("Failed to create block storage client: %v", err)
		return report(printer, reconciler.ConfigurationFailure(err), exitUsage)
	}
	klog.V(2).Infof("Using block storage in region %s", client.Region())

	result := reconciler.NewReconciler(client, 0).Reconcile(ctx, spec)
	if result.Failed() {
		return report(printer, result, exitFailed)
	}
	return report(printer, result, exitOK)
}

// report prints the result and returns code, or exitFailed if printing fails
func report(printer *output.Printer, result *reconciler.Result, code int) int {
	if err := printer.Print(result); err != nil {
		klog.Errorf("Failed to print result: %v", err)
		return exitFailed
	}
	return code
}

// applyFlags copies explicitly set flags into the configuration
func applyFlags(cfg *config.Config, fs *flag.FlagSet) error {
	var err error

	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		value := getter.Get()

		switch f.Name {
		case "name":
			cfg.Volume.Name = value.(string)
		case "size":
			cfg.Volume.Size = value.(int)
		case "volume-type":
			cfg.Volume.VolumeType = value.(string)
		case "description":
			cfg.Volume.Description = value.(string)
		case "metadata":
			var parsed map[string]string
			parsed, err = config.ParseMetadata(value.(string))
			if err == nil {
				cfg.Volume.Metadata = parsed
			}
		case "snapshot-id":
			cfg.Volume.SnapshotID = value.(string)
		case "state":
			cfg.Volume.State = value.(string)
		case "wait":
			cfg.Volume.Wait = value.(bool)
		case "wait-timeout":
			cfg.Volume.WaitTimeout = value.(int)
		case "region":
			cfg.Auth.Region = value.(string)
		}
	})

	return err
}

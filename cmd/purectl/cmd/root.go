// Package cmd defines purectl's command tree.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"purearray-pve-plugin/arrayclient"
	"purearray-pve-plugin/device"
	"purearray-pve-plugin/orchestrator"
	"purearray-pve-plugin/pureconfig"
	"purearray-pve-plugin/purelog"
	"purearray-pve-plugin/sanfabric"
	"purearray-pve-plugin/sanfabric/fc"
	"purearray-pve-plugin/sanfabric/iscsi"
)

// connFlags holds the raw option values every subcommand needs to build
// an Orchestrator; RootCmd.PersistentFlags binds them directly.
type connFlags struct {
	portal        string
	apiToken      string
	username      string
	password      string
	sslVerify     bool
	protocol      string
	hostMode      string
	clusterName   string
	deviceTimeout int
	pod           string
	storageID     string
	nodeName      string
	logLevel      string
}

var flags connFlags

// RootCmd is purectl's root command.
var RootCmd = &cobra.Command{
	Use:               "purectl",
	Short:             "Operational CLI for the array storage plugin core",
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return purelog.Init(purelog.Options{Level: flags.logLevel, Module: "purectl"})
	},
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVar(&flags.portal, "portal", "", "array management portal (host or host:port)")
	pf.StringVar(&flags.apiToken, "api-token", "", "array API token")
	pf.StringVar(&flags.username, "username", "", "array username, used when --api-token is unset")
	pf.StringVar(&flags.password, "password", "", "array password, used when --api-token is unset")
	pf.BoolVar(&flags.sslVerify, "ssl-verify", false, "verify the array's TLS certificate")
	pf.StringVar(&flags.protocol, "protocol", "iscsi", "SAN transport: iscsi or fc")
	pf.StringVar(&flags.hostMode, "host-mode", "per-node", "host registration mode: per-node or shared")
	pf.StringVar(&flags.clusterName, "cluster-name", "pve", "cluster name used to namespace array host objects")
	pf.IntVar(&flags.deviceTimeout, "device-timeout", 60, "seconds to wait for a device to appear locally")
	pf.StringVar(&flags.pod, "pod", "", "array pod to scope volumes/hosts under, if any")
	pf.StringVar(&flags.storageID, "storage-id", "purectl", "storage id to namespace array object names under")
	pf.StringVar(&flags.nodeName, "node-name", "", "this node's name, for per-node host registration (defaults to hostname)")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warning, error")
}

// Execute runs the root command.
func Execute() error {
	RootCmd.AddCommand(statusCmd, allocCmd, freeCmd, snapshotCmd, sweepCmd, volumeCmd, listImagesCmd)
	return RootCmd.Execute()
}

// buildOrchestrator negotiates against the array, selects a SAN protocol
// driver, and returns a ready Orchestrator plus a context carrying a named
// operation id for log correlation.
func buildOrchestrator(ctx context.Context, operation string) (*orchestrator.Orchestrator, context.Context, error) {
	ctx = purelog.WithOperation(ctx, operation)

	cfg, err := pureconfig.Decode(map[string]string{
		"portal":         flags.portal,
		"api-token":      flags.apiToken,
		"username":       flags.username,
		"password":       flags.password,
		"ssl-verify":     fmt.Sprintf("%t", flags.sslVerify),
		"protocol":       flags.protocol,
		"host-mode":      flags.hostMode,
		"cluster-name":   flags.clusterName,
		"device-timeout": fmt.Sprintf("%d", flags.deviceTimeout),
		"pod":            flags.pod,
	})
	if err != nil {
		return nil, ctx, fmt.Errorf("invalid configuration: %w", err)
	}

	array, err := arrayclient.NewClient(ctx, arrayclient.Config{
		Portal:    cfg.Portal,
		APIToken:  cfg.APIToken,
		Username:  cfg.Username,
		Password:  cfg.Password,
		SSLVerify: cfg.SSLVerify,
	})
	if err != nil {
		return nil, ctx, fmt.Errorf("connecting to array: %w", err)
	}

	iscsiDrv := iscsi.New()
	var proto sanfabric.Protocol
	switch cfg.Protocol {
	case pureconfig.ProtocolFC:
		proto = fc.New()
	default:
		proto = iscsiDrv
	}

	resolver := device.DefaultResolver{DiagISCSI: iscsiDrv}

	nodeName := flags.nodeName
	if nodeName == "" {
		nodeName = defaultNodeName()
	}

	return orchestrator.New(array, proto, resolver, cfg, flags.storageID, nodeName), ctx, nil
}

func defaultNodeName() string {
	name, err := osHostname()
	if err != nil || name == "" {
		return "purectl"
	}
	return name
}

// commandTimeout bounds every subcommand's top-level context, independent
// of the finer per-call timeouts orchestrator and sanfabric already apply.
const commandTimeout = 5 * time.Minute

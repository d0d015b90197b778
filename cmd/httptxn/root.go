package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pkt.systems/httptxn"
	"pkt.systems/httptxn/internal/loggingutil"
	"pkt.systems/httptxn/internal/telemetry"
	"pkt.systems/httptxn/peer"
	"pkt.systems/httptxn/transport"
	"pkt.systems/pslog"
)

const (
	configKey         = "config"
	endpointKey       = "endpoint"
	bundleKey         = "bundle"
	disableMTLSKey    = "disable_mtls"
	trustKey          = "trust"
	httpTimeoutKey    = "http_timeout"
	maxPayloadKey     = "max_payload"
	outputKey         = "output"
	logLevelKey       = "log_level"
	correlationKey    = "correlation_id"
	otlpEndpointKey   = "otlp_endpoint"
	metricsListenKey  = "metrics_listen"
	runtimeMetricsKey = "runtime_metrics"
)

// cli carries the state shared by every subcommand of one root invocation.
type cli struct {
	v      *viper.Viper
	logger pslog.Logger
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	app := &cli{v: viper.New(), logger: loggingutil.EnsureLogger(baseLogger)}
	cmd := &cobra.Command{
		Use:           "httptxn",
		Short:         "httptxn drives a remote XA transaction coordinator over HTTP",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Begin a transaction with a 30 second coordinator timeout
  httptxn --endpoint https://tc:9443/txn --bundle ~/.httptxn/client.pem begin --tx-timeout 30

  # Full recovery scan for a node, as YAML
  httptxn --disable-mtls --endpoint http://127.0.0.1:8080/txn recover --parent node-1 --flags start,end -o yaml

  # Bind a handle to a known Xid without contacting the coordinator
  httptxn lookup 1:0a0b:0c
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.loadConfigFile(); err != nil {
				return err
			}
			if level, ok := pslog.ParseLevel(app.v.GetString(logLevelKey)); ok {
				app.logger = app.logger.LogLevel(level)
			}
			switch format := app.output(); format {
			case outputText, outputJSON, outputYAML:
			default:
				return fmt.Errorf("unsupported output format %q (text|json|yaml)", format)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to YAML config file (default $HOME/.httptxn/config.yaml when present)")
	flags.String("endpoint", httptxn.DefaultEndpoint, "coordinator base URL")
	flags.String("bundle", "", "client PEM bundle for mutual TLS (default $HOME/.httptxn/client.pem)")
	flags.Bool("disable-mtls", false, "disable mutual TLS")
	flags.StringSlice("trust", nil, "additional PEM files trusted as coordinator CAs")
	flags.Duration("http-timeout", httptxn.DefaultHTTPTimeout, "HTTP timeout per coordinator exchange")
	flags.String("max-payload", humanize.IBytes(uint64(httptxn.DefaultMaxPayload)), "largest accepted Xid field (e.g. 64KiB)")
	flags.StringP("output", "o", outputText, "output format (text|json|yaml)")
	flags.String("log-level", "warn", "log level (trace|debug|info|warn|error|none)")
	flags.String("correlation-id", "", "correlation id sent as "+transport.HeaderCorrelationID+" (default: generated)")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint for traces (grpc://, grpcs://, http://, https:// or host:port)")
	flags.String("metrics-listen", "", "serve Prometheus metrics on this address while the command runs")
	flags.Bool("runtime-metrics", false, "include Go runtime metrics (requires --metrics-listen)")

	app.mustBindFlag(configKey, "HTTPTXN_CONFIG", flags.Lookup("config"))
	app.mustBindFlag(endpointKey, "HTTPTXN_ENDPOINT", flags.Lookup("endpoint"))
	app.mustBindFlag(bundleKey, "HTTPTXN_BUNDLE", flags.Lookup("bundle"))
	app.mustBindFlag(disableMTLSKey, "HTTPTXN_DISABLE_MTLS", flags.Lookup("disable-mtls"))
	app.mustBindFlag(trustKey, "HTTPTXN_TRUST", flags.Lookup("trust"))
	app.mustBindFlag(httpTimeoutKey, "HTTPTXN_HTTP_TIMEOUT", flags.Lookup("http-timeout"))
	app.mustBindFlag(maxPayloadKey, "HTTPTXN_MAX_PAYLOAD", flags.Lookup("max-payload"))
	app.mustBindFlag(outputKey, "HTTPTXN_OUTPUT", flags.Lookup("output"))
	app.mustBindFlag(logLevelKey, "HTTPTXN_LOG_LEVEL", flags.Lookup("log-level"))
	app.mustBindFlag(correlationKey, "HTTPTXN_CORRELATION_ID", flags.Lookup("correlation-id"))
	app.mustBindFlag(otlpEndpointKey, "HTTPTXN_OTLP_ENDPOINT", flags.Lookup("otlp-endpoint"))
	app.mustBindFlag(metricsListenKey, "HTTPTXN_METRICS_LISTEN", flags.Lookup("metrics-listen"))
	app.mustBindFlag(runtimeMetricsKey, "HTTPTXN_RUNTIME_METRICS", flags.Lookup("runtime-metrics"))

	cmd.AddCommand(
		newBeginCommand(app),
		newRecoverCommand(app),
		newLookupCommand(app),
		newVersionCommand(app),
	)
	return cmd
}

func (a *cli) mustBindFlag(key, env string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("flag for key %s not found", key))
	}
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
	if env != "" {
		if err := a.v.BindEnv(key, env); err != nil {
			panic(err)
		}
	}
}

func (a *cli) output() string {
	return strings.ToLower(strings.TrimSpace(a.v.GetString(outputKey)))
}

// loadConfigFile reads --config, or the default config file when it exists.
func (a *cli) loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(a.v.GetString(configKey))
	explicit := cfgPath != ""
	if cfgPath == "" {
		dir, err := httptxn.DefaultConfigDir()
		if err != nil {
			return "", nil
		}
		cfgPath = filepath.Join(dir, httptxn.DefaultConfigFileName)
	}
	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	a.v.SetConfigFile(expanded)
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

// peerConfig assembles the peer configuration from flags, env and config file.
func (a *cli) peerConfig() (httptxn.Config, error) {
	maxPayload, err := humanize.ParseBytes(a.v.GetString(maxPayloadKey))
	if err != nil {
		return httptxn.Config{}, fmt.Errorf("parse --max-payload: %w", err)
	}
	bundle := a.v.GetString(bundleKey)
	if bundle != "" {
		if bundle, err = expandPath(bundle); err != nil {
			return httptxn.Config{}, fmt.Errorf("expand bundle path: %w", err)
		}
	}
	return httptxn.Config{
		Endpoint:    a.v.GetString(endpointKey),
		BundlePath:  bundle,
		DisableMTLS: a.v.GetBool(disableMTLSKey),
		TrustFiles:  a.v.GetStringSlice(trustKey),
		HTTPTimeout: a.v.GetDuration(httpTimeoutKey),
		MaxPayload:  int(maxPayload),
	}, nil
}

// withPeer runs fn against a freshly built peer with telemetry installed for
// the duration of the call.
func (a *cli) withPeer(cmd *cobra.Command, fn func(ctx context.Context, p *peer.Peer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := a.peerConfig()
	if err != nil {
		return err
	}
	bundle, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       a.v.GetString(otlpEndpointKey),
		MetricsListen:  a.v.GetString(metricsListenKey),
		RuntimeMetrics: a.v.GetBool(runtimeMetricsKey),
	}, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := bundle.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("cli.telemetry.shutdown_failed", "error", err)
		}
	}()
	p, err := httptxn.NewPeer(cfg, a.logger)
	if err != nil {
		return err
	}
	if id := a.v.GetString(correlationKey); id != "" {
		if _, ok := transport.NormalizeCorrelationID(id); !ok {
			return fmt.Errorf("invalid --correlation-id %q", id)
		}
		ctx = transport.WithCorrelationID(ctx, id)
	}
	return fn(ctx, p)
}

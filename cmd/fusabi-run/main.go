// Command fusabi-run executes a script file or expression against a
// sandboxed engine pool.
//
// Usage:
//
//	fusabi-run [flags] script.fsx
//	fusabi-run [flags] -e '1 + 2'
//
// Policy comes from FUSABI_* environment variables, optionally layered
// under a YAML file given with -config. Flags override both.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fusabi-lang/fusabi-host/capability"
	"github.com/fusabi-lang/fusabi-host/config"
	"github.com/fusabi-lang/fusabi-host/hostctx"
	"github.com/fusabi-lang/fusabi-host/internal/logging"
	"github.com/fusabi-lang/fusabi-host/monitoring"
	"github.com/fusabi-lang/fusabi-host/pool"
)

func main() {
	var (
		expr        = flag.String("e", "", "expression to evaluate instead of a script file")
		configPath  = flag.String("config", "", "YAML policy file")
		timeout     = flag.Duration("timeout", 0, "override run timeout (0 keeps configured value)")
		caps        = flag.String("caps", "", "comma-separated capability grant override")
		allowAll    = flag.Bool("allow-all", false, "grant every capability and open the sandbox (trusted scripts only)")
		metricsAddr = flag.String("metrics-addr", "", "serve prometheus metrics on this address")
		logLevel    = flag.String("log-level", "", "override log level")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(versionString())
		return
	}

	if err := run(*expr, *configPath, *timeout, *caps, *allowAll, *metricsAddr, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "fusabi-run:", err)
		os.Exit(1)
	}
}

func run(expr, configPath string, timeout time.Duration, capsFlag string, allowAll bool, metricsAddr, logLevel string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	if capsFlag != "" {
		cfg.Capabilities = strings.Split(capsFlag, ",")
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, OutputPaths: []string{"stderr"}})
	if err != nil {
		return err
	}
	defer logger.Sync()

	poolCfg, err := cfg.PoolConfig()
	if err != nil {
		return err
	}
	if allowAll {
		poolCfg.Engine.Capabilities = capability.All()
		poolCfg.Engine.Sandbox.AllowAllFs = true
		poolCfg.Engine.Sandbox.AllowAllNet = true
		poolCfg.Engine.Sandbox.AllowAllEnv = true
	}
	poolCfg.Engine.Stdout = os.Stdout
	poolCfg.Engine.Logger = logger
	poolCfg.Logger = logger
	poolCfg.HostContext = hostctx.NewZap(logger)

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		poolCfg.Metrics = monitoring.New(reg)
		go serveMetrics(metricsAddr, reg, logger)
	}

	p, err := pool.New(poolCfg)
	if err != nil {
		return err
	}
	defer p.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, err := loadSource(expr)
	if err != nil {
		return err
	}

	res, err := p.Execute(ctx, source)
	if err != nil {
		return err
	}
	if !res.Value.IsNull() {
		fmt.Println(res.Value.Text())
	}
	logger.Debug("run complete",
		zap.Int64("instructions", res.Usage.Instructions),
		zap.Duration("elapsed", res.Usage.Elapsed))
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func loadSource(expr string) (string, error) {
	if expr != "" {
		return expr, nil
	}
	if flag.NArg() != 1 {
		return "", fmt.Errorf("expected a script file or -e expression")
	}
	path := flag.Arg(0)
	switch filepath.Ext(path) {
	case ".fsx", ".fusabi":
	default:
		return "", fmt.Errorf("unsupported script extension %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

func versionString() string {
	return "fusabi-run 0.19.0"
}

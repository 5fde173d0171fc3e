package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"deal-watch/pkg/browser"
	"deal-watch/pkg/cache"
	"deal-watch/pkg/config"
	"deal-watch/pkg/logger"
	"deal-watch/pkg/monitor"
	"deal-watch/pkg/notify"
	"deal-watch/pkg/sources"
	"deal-watch/pkg/sources/amazon"
	"deal-watch/pkg/sources/bestbuy"
	"deal-watch/pkg/sources/bhvideo"
	"deal-watch/pkg/sources/lenovo"
	"deal-watch/pkg/sources/rendered"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	scraperSemaphore = make(chan struct{}, 3)
	productCache     *cache.Cache
	registry         *sources.Registry
	appLog           = zap.NewNop()
)

func main() {
	configPath := flag.String("config", "", "path to config file (default $CONFIG_PATH or "+config.DefaultPath+")")
	serve := flag.Bool("serve", false, "serve the inspection API instead of checking the watchlist once")
	flag.Parse()

	cfg := config.MustLoad(*configPath)

	base, err := logger.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	funnel := logger.NewFunnel(base.Core(), logger.FunnelOptions{
		Buffer:      cfg.Log.Buffer,
		SendTimeout: cfg.Log.SendTimeout,
		FlushDelay:  cfg.Log.DedupDelay,
	})
	appLog = zap.New(funnel.Core())

	code := 0
	if err := run(cfg, *serve); err != nil {
		appLog.Error("fatal", zap.Error(err))
		code = 1
	}

	funnel.Close()
	if n := funnel.Dropped(); n > 0 {
		base.Warn("log records dropped", zap.Int64("count", n))
	}
	_ = base.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, serve bool) error {
	registry = buildRegistry(cfg, appLog)
	if registry.Len() == 0 {
		return errors.New("no sources registered")
	}

	var err error
	productCache, err = cache.New(cfg.Cache.Path, cfg.Cache.TTL, appLog.Named("cache"))
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer productCache.Close()
	appLog.Info("cache initialized", zap.String("path", cfg.Cache.Path), zap.Duration("ttl", cfg.Cache.TTL))

	if serve {
		return serveHTTP(cfg)
	}

	router, closeRouter := buildNotifier(cfg, appLog)
	defer closeRouter()

	m := monitor.New(registry, router, appLog.Named("monitor"), monitor.WithCache(productCache))
	m.Run(context.Background(), cfg.Entries())
	return nil
}

func retryPolicy(cfg *config.Config) sources.RetryPolicy {
	return sources.RetryPolicy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.Retry.BaseDelay}
}

// definitions is the fixed list of sources this build knows about. Sources
// whose prerequisites are missing are left out.
func definitions(cfg *config.Config, log *zap.Logger) []sources.Definition {
	retry := retryPolicy(cfg)
	var defs []sources.Definition

	if cfg.BestBuy.APIKey != "" {
		defs = append(defs, bestbuy.Definition(bestbuy.Config{
			APIKey:            cfg.BestBuy.APIKey,
			BaseURL:           cfg.BestBuy.BaseURL,
			Timeout:           cfg.BestBuy.Timeout,
			RequestsPerSecond: cfg.BestBuy.RequestsPerSecond,
		}, retry))
	} else {
		log.Warn("BESTBUY_API not set, skipping source", zap.String("source", bestbuy.Source))
	}

	if !cfg.Amazon.Disabled {
		defs = append(defs, amazon.Definition(amazon.Config{
			Command: cfg.Amazon.Command,
			Flags:   cfg.Amazon.Flags,
			Timeout: cfg.Amazon.Timeout,
		}, nil, retry))
	}

	if !cfg.Browser.Disabled {
		opts := rendered.Options{SettleDelay: cfg.Browser.SettleDelay, PageTimeout: cfg.Browser.PageTimeout}
		headed := !cfg.Browser.HeadlessOnly
		defs = append(defs,
			bhvideo.Definition(rendered.Passes(browserOptions(cfg, bhvideo.Source), headed, log.Named(bhvideo.Source)), opts, retry),
			lenovo.Definition(rendered.Passes(browserOptions(cfg, lenovo.Source), headed, log.Named(lenovo.Source)), opts, retry),
		)
	}

	return defs
}

// browserOptions gives every source its own profile directory so clearance
// cookies of one retailer never leak into another.
func browserOptions(cfg *config.Config, source string) browser.Options {
	opts := browser.Options{ChromePath: cfg.Browser.ChromePath}
	if cfg.Browser.ProfileDir != "" {
		opts.ProfileDir = filepath.Join(cfg.Browser.ProfileDir, source)
	}
	if cfg.Browser.DebugDir != "" {
		opts.DebugDir = filepath.Join(cfg.Browser.DebugDir, source)
	}
	return opts
}

func buildRegistry(cfg *config.Config, log *zap.Logger) *sources.Registry {
	reg := sources.NewRegistry(log)
	for _, def := range definitions(cfg, log) {
		reg.Register(def)
	}
	return reg
}

func buildNotifier(cfg *config.Config, log *zap.Logger) (*notify.Router, func()) {
	router := notify.NewRouter(log.Named("notify"))
	router.Ntfy = notify.NewNtfy(nil, cfg.Notify.PublishesPerSecond)
	closers := []func(){}

	if cfg.Notify.TelegramToken != "" {
		tg, err := notify.NewTelegram(cfg.Notify.TelegramToken)
		if err != nil {
			log.Warn("telegram disabled", zap.Error(err))
		} else {
			router.Telegram = tg
		}
	}

	if cfg.Notify.AMQPURL != "" {
		a, err := notify.DialAMQP(cfg.Notify.AMQPURL)
		if err != nil {
			log.Warn("amqp disabled", zap.Error(err))
		} else {
			router.AMQP = a
			closers = append(closers, func() {
				if err := a.Close(); err != nil {
					log.Warn("closing amqp", zap.Error(err))
				}
			})
		}
	}

	return router, func() {
		for _, c := range closers {
			c()
		}
	}
}

func serveHTTP(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", rootHandler)

	if ip := GetOutboundIP(); ip != nil {
		appLog.Info("listening", zap.String("network_url", "http://"+net.JoinHostPort(ip.String(), port(cfg.HTTP.Address))))
	}
	appLog.Info("api docs", zap.String("url", "http://localhost:"+port(cfg.HTTP.Address)+"/"))

	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.Timeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func port(addr string) string {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return p
}

func GetOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				return ipnet.IP
			}
		}
		return nil
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP
}

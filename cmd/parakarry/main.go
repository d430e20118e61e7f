package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/rNintendoSwitch/Parakarry/internal/retention"
	"github.com/rNintendoSwitch/Parakarry/pkg/api"
	"github.com/rNintendoSwitch/Parakarry/pkg/appeal"
	"github.com/rNintendoSwitch/Parakarry/pkg/auth"
	"github.com/rNintendoSwitch/Parakarry/pkg/banner"
	"github.com/rNintendoSwitch/Parakarry/pkg/config"
	"github.com/rNintendoSwitch/Parakarry/pkg/events"
	"github.com/rNintendoSwitch/Parakarry/pkg/gateway"
	"github.com/rNintendoSwitch/Parakarry/pkg/logger"
	"github.com/rNintendoSwitch/Parakarry/pkg/mail"
	"github.com/rNintendoSwitch/Parakarry/pkg/shutdown"
	"github.com/rNintendoSwitch/Parakarry/pkg/store"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// .env is optional; real deployments configure via file or env
	_ = godotenv.Load()

	addrFlag, dbFlag, cfgFlag, setFlags := config.ParseCommandFlags()
	cfgPath := config.ResolveConfigPath(cfgFlag, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		shutdown.Abort("config load failed", err)
	}
	source := "config"
	if envUsed {
		source = "config+env"
	}
	if setFlags["addr"] {
		applyAddr(cfg, addrFlag)
		source = "flags"
	}
	if setFlags["db"] {
		cfg.Storage.DBPath = dbFlag
		source = "flags"
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = dbFlag
	}

	logger.InitWithLevel(cfg.Logging.Level)

	verStr := version
	if commit != "none" {
		verStr += " (" + commit + ")"
	}
	if buildDate != "unknown" {
		verStr += " @ " + buildDate
	}
	banner.Print(cfg.Addr(), cfg.Storage.DBPath, source, verStr)

	if err := store.Open(cfg.Storage.DBPath); err != nil {
		shutdown.Abort("store open failed", err)
	}

	gw := gateway.NewHTTPClient(cfg.Gateway.BridgeURL, cfg.Gateway.Token)
	reg := mail.NewRegistry()
	engine := mail.NewEngine(gw, reg, mail.Options{
		GuildID:          cfg.Gateway.GuildID,
		AppealGuildID:    cfg.Gateway.AppealGuildID,
		CategoryID:       cfg.Gateway.CategoryID,
		AdminChannelID:   cfg.Gateway.AdminChannelID,
		ModLogChannelID:  cfg.Gateway.ModLogChannelID,
		LogURL:           cfg.Gateway.LogURL,
		ReplyMaxLen:      cfg.Mail.ReplyMaxLen,
		CancelOnInternal: cfg.Mail.CancelOnInternal,
	})
	engine.Scheduler().SetReplacePolicy(!cfg.Mail.ScheduleReject)

	feed := api.NewFeed()
	engine.SetEventSink(feed)

	dispatcher := events.NewDispatcher(engine, events.Options{
		QueueSize:       cfg.Events.QueueSize,
		LeaveCloseDelay: cfg.Mail.LeaveCloseDelay,
		PrimaryGuildID:  cfg.Gateway.GuildID,
	})
	appeals := appeal.NewService(engine)

	ctx := shutdown.SetupSignalHandler()
	go dispatcher.Run(ctx)

	stopRetention, err := retention.Start(ctx, cfg)
	if err != nil {
		shutdown.Abort("retention start failed", err)
	}

	secCfg := auth.SecConfig{
		RPS:         cfg.Security.RateLimit.RPS,
		Burst:       cfg.Security.RateLimit.Burst,
		IPWhitelist: append([]string{}, cfg.Security.IPWhitelist...),
		BackendKeys: map[string]struct{}{},
		AdminKeys:   map[string]struct{}{},
	}
	for _, k := range cfg.Security.APIKeys.Backend {
		secCfg.BackendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		secCfg.AdminKeys[k] = struct{}{}
	}

	router := api.Router(api.Deps{
		Engine:       engine,
		Dispatcher:   dispatcher,
		Appeals:      appeals,
		Feed:         feed,
		MaxBodyBytes: cfg.Server.MaxBodyBytes.Int64(),
	})
	srv := &http.Server{Addr: cfg.Addr(), Handler: auth.RequireKey(secCfg)(router)}

	errCh := make(chan error, 1)
	go func() {
		cert := cfg.Server.TLS.CertFile
		key := cfg.Server.TLS.KeyFile
		logger.Info("http_listening", "addr", cfg.Addr(), "tls", cert != "" && key != "")
		if cert != "" && key != "" {
			errCh <- srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("http_server_failed", "error", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting_down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("http_shutdown_error", "error", err)
	}
	stopRetention()
	engine.Scheduler().Stop()
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("shutdown_complete")
}

// applyAddr parses a host:port flag into the config server section.
func applyAddr(cfg *config.Config, addr string) {
	host := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
		if p, err := strconv.Atoi(addr[i+1:]); err == nil {
			cfg.Server.Port = p
		}
	}
	cfg.Server.Address = host
}

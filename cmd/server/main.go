package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dauth-service/internal/factory"
	"dauth-service/internal/util"
)

func main() {
	f, err := factory.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize service: %v\n", err)
		os.Exit(1)
	}

	cfg := f.Config()
	router := f.Router()

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.Server.EnableTLS {
		server.TLSConfig = f.TLSManager().Config()
		server.Addr = fmt.Sprintf(":%d", cfg.Server.TLSPort)
	}

	if cfg.IsProduction() && cfg.Server.EnableTLS && cfg.Server.AutoCert {
		startWithAutocert(f, server)
	} else {
		startServer(cfg.Server.EnableTLS, server)
	}

	waitForShutdown(f, server)
}

// startWithAutocert serves the ACME HTTP-01 challenge on port 80 and the
// application over HTTPS. The challenge handler redirects everything else.
func startWithAutocert(f *factory.Factory, server *http.Server) {
	acmeHandler := f.TLSManager().AutocertManager().HTTPHandler(nil)
	challengeServer := &http.Server{
		Addr:         ":80",
		Handler:      acmeHandler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		util.Info("Starting ACME challenge server", zap.String("addr", challengeServer.Addr))
		if err := challengeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Error("ACME challenge server failed", zap.Error(err))
		}
	}()

	go func() {
		util.Info("Starting HTTPS server",
			zap.String("addr", server.Addr),
			zap.String("domain", f.Config().Server.Domain))
		if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			util.Fatal("HTTPS server failed", zap.Error(err))
		}
	}()
}

func startServer(enableTLS bool, server *http.Server) {
	go func() {
		var err error
		if enableTLS {
			util.Info("Starting HTTPS server", zap.String("addr", server.Addr))
			err = server.ListenAndServeTLS("", "")
		} else {
			util.Info("Starting HTTP server", zap.String("addr", server.Addr))
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed", zap.Error(err))
		}
	}()
}

func waitForShutdown(f *factory.Factory, server *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-quit

	util.Info("Shutdown signal received", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		util.Error("Server forced to shutdown", zap.Error(err))
	}

	f.Close()
	util.Info("Server exited")
}

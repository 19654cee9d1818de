package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/radieske/bet-ledger-sync/internal/ledger/auth"
	"github.com/radieske/bet-ledger-sync/internal/ledger/backup"
	httpapi "github.com/radieske/bet-ledger-sync/internal/ledger/http"
	"github.com/radieske/bet-ledger-sync/internal/ledger/service"
	"github.com/radieske/bet-ledger-sync/internal/ledger/store"
	"github.com/radieske/bet-ledger-sync/internal/ledger/ws"
	"github.com/radieske/bet-ledger-sync/internal/shared/config"
	"github.com/radieske/bet-ledger-sync/internal/shared/logger"
	"github.com/radieske/bet-ledger-sync/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("data_dir", cfg.DataDir), zap.String("backup_dir", cfg.BackupDir))

	// store dono do documento durável
	st, err := store.Open(cfg.DataDir, log)
	if err != nil {
		log.Fatal("store open failed", zap.Error(err))
	}
	log.Info("ledger loaded", zap.String("path", st.Path()), zap.Int("records", len(st.GetAll())))

	// arquivo de backups (melhor esforço, um snapshot por mutação)
	bw, err := backup.New(cfg.BackupDir, log)
	if err != nil {
		log.Fatal("backup dir failed", zap.Error(err))
	}

	origins := httpapi.ParseOrigins(cfg.AllowedOrigins)
	hub := ws.NewHub(log, allowOrigin(origins))

	// semeia o último snapshot: assinantes que conectarem antes da primeira
	// mutação recebem o estado carregado do disco
	hub.Publish(st.GetAll())

	svc := service.New(st, bw, hub, auth.New(cfg.AdminPassword), log)

	api := &httpapi.API{
		Svc:     svc,
		WS:      hub.HandleWS,
		Origins: origins,
		Log:     log,
	}

	// metrics/health na porta lateral; saudável = documento durável acessível
	metrics.StartServer(cfg.MetricsPort, log, func(ctx context.Context) error {
		_, err := os.Stat(st.Path())
		return err
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}

	log.Info("ledger-service listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api server failed", zap.Error(err))
	}
}

// allowOrigin traduz a lista de origens do CORS pra política de upgrade do WS.
func allowOrigin(origins []string) func(r *http.Request) bool {
	for _, o := range origins {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		got := r.Header.Get("Origin")
		if got == "" {
			return true // clientes não-browser
		}
		for _, o := range origins {
			if o == got {
				return true
			}
		}
		return false
	}
}

package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bookhaven/pkg/api"
	"bookhaven/pkg/auth"
	"bookhaven/pkg/catalog"
	"bookhaven/pkg/database"
	"bookhaven/pkg/keylock"
	"bookhaven/pkg/ledger"
	"bookhaven/pkg/rating"
	"bookhaven/pkg/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const limiterIdle = 10 * time.Minute

var (
	// Serve flags
	servePort string
	serveSeed bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API.

Callers are identified by the X-User-Id header, which must be set by an auth proxy in
front of this service. Do not expose the port directly: set PROXY_TOKEN so only requests
carrying a matching X-Proxy-Token header may name a user, or set TRUST_USER_HEADER=false
to serve every request anonymously. Production refuses to start with a trusted header
and no PROXY_TOKEN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "Listen port (overrides SERVER_PORT)")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", true, "Seed the admin user and sample books into an empty store")
}

func runServe(cmd *cobra.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	overrideString(cmd, "port", &cfg.Server.Port, servePort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting bookhaven", "env", cfg.Env, "store", cfg.Store.Driver)

	s, err := database.OpenStore(cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	if serveSeed {
		if err := database.Seed(ctx, s, log, bcrypt.DefaultCost); err != nil {
			return err
		}
	}

	locks := keylock.New[uint]()
	deps := api.Deps{
		Store:   s,
		Auth:    auth.NewAuthenticator(s, bcrypt.DefaultCost),
		Ledger:  ledger.New(s, locks, log, ledger.WithLoanPeriod(cfg.Loan.Period)),
		Ratings: rating.New(s, locks, log),
		Catalog: catalog.NewService(s),
		Locks:   locks,
		Logger:  log,
		UserHeader: api.UserHeaderPolicy{
			Ignore:     !cfg.Auth.TrustUserHeader,
			ProxyToken: cfg.Auth.ProxyToken,
		},
	}
	if cfg.RateLimit.RPS > 0 {
		deps.Limiter = ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		go sweepLimiter(ctx, deps.Limiter)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewServer(deps).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Bookhaven listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func sweepLimiter(ctx context.Context, l *ratelimit.KeyedLimiter) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(limiterIdle)
		}
	}
}

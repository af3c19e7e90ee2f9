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

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"arcanecycles.io/internal/auth"
	"arcanecycles.io/internal/persistence/journal"
	"arcanecycles.io/internal/persistence/store"
	"arcanecycles.io/internal/sim/catalogs"
	"arcanecycles.io/internal/sim/game"
	"arcanecycles.io/internal/sim/tuning"
	"arcanecycles.io/internal/transport/httpapi"
	"arcanecycles.io/internal/transport/ws"
)

func main() {
	_ = godotenv.Load()

	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		gameID     = flag.String("game", "", "game id (default: random uuid)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory (event journal)")
		players    = flag.String("players", "p1:Alice,p2:Bob,p3:Charlie,p4:Diana", "comma separated id:name seats")
		loadSlot   = flag.String("load", "", "save slot to resume from (optional)")
		tokenTTL   = flag.Duration("token_ttl", 24*time.Hour, "session token lifetime")
		actsPerSec = flag.Float64("acts_per_sec", 5, "ws actions per second per connection")
		actBurst   = flag.Int("act_burst", 10, "ws action burst per connection")
		logLevel   = flag.String("log_level", "info", "zerolog level")
		logPretty  = flag.Bool("log_pretty", false, "human readable console logs")
	)
	flag.Parse()

	logger := newLogger(*logLevel, *logPretty)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatal().Err(err).Str("path", tp).Msg("load tuning")
		}
		logger.Warn().Str("path", tp).Msg("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalogs")
	}

	saves, err := store.Open(tune.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("open save store")
	}
	defer saves.Close()

	seats, err := parsePlayers(*players)
	if err != nil {
		logger.Fatal().Err(err).Msg("players")
	}
	g, err := game.New(game.Config{
		GameID:   *gameID,
		Tuning:   tune,
		Catalogs: cats,
		Store:    saves,
		Players:  seats,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("new game")
	}

	jr := journal.NewEventJournal(filepath.Join(*dataDir, "games", g.ID()), g.ID(), logger)
	jr.Attach(g.Bus())
	defer jr.Close()

	if err := g.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start game")
	}
	if slot := strings.TrimSpace(*loadSlot); slot != "" {
		h, err := g.Load(context.Background(), slot)
		if err != nil {
			logger.Fatal().Err(err).Str("slot", slot).Msg("load save")
		}
		logger.Info().Str("slot", slot).Str("save_id", h.SaveID).Int("cycle", h.Cycle).Str("phase", h.Phase).Msg("resumed")
	}

	secret := os.Getenv("AC_JWT_SECRET")
	if secret == "" {
		logger.Fatal().Msg("AC_JWT_SECRET is required")
	}
	issuer, err := auth.NewIssuer(secret, *tokenTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("session issuer")
	}
	adminKey := os.Getenv("AC_ADMIN_KEY")
	if adminKey == "" {
		logger.Warn().Msg("AC_ADMIN_KEY not set; admin routes are unreachable")
	}

	ctx, cancel := signalContext()
	defer cancel()

	loop := game.NewLoop(g, time.Second)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("game loop stopped")
		}
	}()

	wsServer, err := ws.NewServer(loop, issuer, ws.Config{ActsPerSecond: *actsPerSec, Burst: *actBurst}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ws server")
	}

	r := mux.NewRouter()
	r.Use(corsMiddleware)
	httpapi.New(loop, issuer, adminKey, logger).Register(r)
	r.HandleFunc("/v1/ws", wsServer.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Info().Str("addr", *addr).Str("game", g.ID()).Int("players", len(seats)).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("ListenAndServe")
	}
	cancel()
	<-loopDone
}

func newLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(lvl).With().Timestamp().Str("service", "arcanecycles").Logger()
}

func parsePlayers(s string) ([]game.PlayerSpec, error) {
	var out []game.PlayerSpec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, name, _ := strings.Cut(part, ":")
		if id == "" {
			return nil, fmt.Errorf("bad seat %q", part)
		}
		if name == "" {
			name = id
		}
		out = append(out, game.PlayerSpec{ID: id, Name: name})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one player is required")
	}
	return out, nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

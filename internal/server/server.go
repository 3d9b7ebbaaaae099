package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/gamification"
	"github.com/dukerupert/chorequest/internal/generator"
	"github.com/dukerupert/chorequest/internal/handler"
	"github.com/dukerupert/chorequest/internal/jobs"
	"github.com/dukerupert/chorequest/internal/ledger"
	"github.com/dukerupert/chorequest/internal/middleware"
	"github.com/dukerupert/chorequest/internal/notify"
	"github.com/dukerupert/chorequest/internal/order"
	"github.com/dukerupert/chorequest/internal/push"
	"github.com/dukerupert/chorequest/internal/reset"
	"github.com/dukerupert/chorequest/internal/scheduler"
	"github.com/dukerupert/chorequest/internal/store"
	"github.com/dukerupert/chorequest/internal/task"
	ws "github.com/dukerupert/chorequest/internal/websocket"
)

// Options carries everything New needs besides the database.
type Options struct {
	JWTSecret    string
	TokenTTL     time.Duration
	InterestRate float64
	Location     *time.Location
	CronSecret   string
	Scheduler    scheduler.Options
	Push         push.Config

	// Photos stores task evidence; nil disables uploads.
	Photos handler.PhotoStore
	// Redis shares the scheduler lock and login rate limits between
	// instances; nil keeps both in process.
	Redis *redis.Client
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	tokens      *auth.Tokens
	users       *store.UserStore
	authH       *handler.AuthHandler
	taskH       *handler.TaskHandler
	rewardH     *handler.RewardHandler
	orderH      *handler.OrderHandler
	accountH    *handler.AccountHandler
	avatarH     *handler.AvatarHandler
	jobH        *handler.JobHandler
	cronH       *handler.CronHandler
	uploadH     *handler.UploadHandler
	pushH       *handler.PushHandler
	limiter     middleware.Limiter
	memLimiter  *middleware.MemoryLimiter
	notifier    *notify.Notifier
	scheduler   *scheduler.Scheduler
	pushService *push.Service
	logger      *slog.Logger
}

func New(db *sql.DB, opts Options, logger *slog.Logger) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Scheduler.Location == nil {
		opts.Scheduler.Location = opts.Location
	}
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	accountStore := store.NewAccountStore(db)
	taskStore := store.NewTaskStore(db)
	rewardStore := store.NewRewardStore(db)
	orderStore := store.NewOrderStore(db)
	avatarStore := store.NewAvatarStore(db)
	jobStore := store.NewJobStore(db)
	pushStore := store.NewPushStore(db)

	pushSvc := push.NewService(opts.Push, pushStore, logger.With("component", "push"))
	notifier := notify.New(hub, pushSvc, userStore, logger.With("component", "notify"))

	l := ledger.New(accountStore, logger.With("component", "ledger"))
	game := gamification.New(avatarStore, opts.Location, logger.With("component", "gamification"))
	gen := generator.New(taskStore, notifier, opts.Location, logger.With("component", "generator"))
	tasks := task.NewService(taskStore, userStore, l, game, notifier, logger.With("component", "task"))
	orders := order.NewService(orderStore, rewardStore, l, notifier, logger.With("component", "order"))
	resetJob := reset.New(taskStore, gen, game, opts.Location, logger.With("component", "reset"))
	jobSvc := jobs.NewService(jobStore, resetJob, gen, l, logger.With("component", "jobs"))

	var (
		locker     scheduler.Locker
		limiter    middleware.Limiter
		memLimiter *middleware.MemoryLimiter
	)
	if opts.Redis != nil {
		locker = scheduler.NewRedisLocker(opts.Redis, "")
		limiter = middleware.NewRedisLimiter(opts.Redis, "")
	} else {
		memLimiter = middleware.NewMemoryLimiter()
		limiter = memLimiter
	}
	sched := scheduler.New(gen, resetJob, jobSvc, locker, opts.Scheduler, logger.With("component", "scheduler"))

	tokens := auth.NewTokens(opts.JWTSecret, opts.TokenTTL)

	return &Server{
		db:          db,
		hub:         hub,
		tokens:      tokens,
		users:       userStore,
		authH:       handler.NewAuthHandler(userStore, l, tokens, opts.InterestRate, logger.With("component", "auth")),
		taskH:       handler.NewTaskHandler(tasks, logger.With("component", "task_handler")),
		rewardH:     handler.NewRewardHandler(rewardStore, hub, logger.With("component", "reward")),
		orderH:      handler.NewOrderHandler(orders, logger.With("component", "order_handler")),
		accountH:    handler.NewAccountHandler(userStore, l, logger.With("component", "account")),
		avatarH:     handler.NewAvatarHandler(game, logger.With("component", "avatar")),
		jobH:        handler.NewJobHandler(jobSvc, logger.With("component", "job_handler")),
		cronH:       handler.NewCronHandler(sched, opts.CronSecret, logger.With("component", "cron")),
		uploadH:     handler.NewUploadHandler(opts.Photos, logger.With("component", "upload")),
		pushH:       handler.NewPushHandler(pushSvc, logger.With("component", "push_handler")),
		limiter:     limiter,
		memLimiter:  memLimiter,
		notifier:    notifier,
		scheduler:   sched,
		pushService: pushSvc,
		logger:      logger,
	}
}

// Scheduler returns the background scheduler; the caller starts and stops it.
func (s *Server) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Notifier returns the change notifier so shutdown can drain pending pushes.
func (s *Server) Notifier() *notify.Notifier {
	return s.notifier
}

// StartCleanup sweeps the in-process rate limiter until ctx is done. It is a
// no-op when limits live in Redis.
func (s *Server) StartCleanup(ctx context.Context) {
	if s.memLimiter != nil {
		s.memLimiter.StartCleanup(ctx, 5*time.Minute)
	}
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler("register", s.authH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler("login", s.authH.Login))
	outerMux.HandleFunc("POST /api/cron/tick", s.cronH.Tick)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	// The websocket authenticates itself; browsers cannot set headers on upgrade.
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.tokens, s.logger.With("component", "websocket")))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.tokens, s.users)
	outerMux.Handle("/api/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(name string, h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return name + ":" + middleware.RealIP(r)
	}
	return middleware.RateLimit(s.limiter, keyFunc, 10, time.Minute, s.logger)(h).ServeHTTP
}

func parent(h http.HandlerFunc) http.Handler {
	return middleware.RequireParent(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Accounts and family
	mux.HandleFunc("GET /api/me", s.authH.Me)
	mux.Handle("POST /api/children", parent(s.authH.CreateChild))
	mux.Handle("GET /api/children", parent(s.authH.ListChildren))
	mux.Handle("PUT /api/children/{id}/credit", parent(s.authH.AdjustCredit))

	// Tasks
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.Handle("POST /api/tasks", parent(s.taskH.Create))
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.Handle("PUT /api/tasks/{id}", parent(s.taskH.Update))
	mux.Handle("DELETE /api/tasks/{id}", parent(s.taskH.Delete))
	mux.HandleFunc("POST /api/tasks/{id}/submit", s.taskH.Submit)
	mux.Handle("POST /api/tasks/{id}/approve", parent(s.taskH.Approve))
	mux.Handle("POST /api/tasks/{id}/reject", parent(s.taskH.Reject))

	// Recurring templates
	mux.Handle("GET /api/templates", parent(s.taskH.ListTemplates))
	mux.Handle("POST /api/templates", parent(s.taskH.CreateTemplate))
	mux.Handle("DELETE /api/templates/{id}", parent(s.taskH.Delete))

	// Rewards and orders
	mux.HandleFunc("GET /api/rewards", s.rewardH.List)
	mux.Handle("POST /api/rewards", parent(s.rewardH.Create))
	mux.Handle("PUT /api/rewards/{id}", parent(s.rewardH.Update))
	mux.Handle("DELETE /api/rewards/{id}", parent(s.rewardH.Delete))
	mux.HandleFunc("GET /api/orders", s.orderH.List)
	mux.HandleFunc("POST /api/orders", s.orderH.Create)
	mux.Handle("POST /api/orders/{id}/verify", parent(s.orderH.Verify))
	mux.HandleFunc("POST /api/orders/{id}/cancel", s.orderH.Cancel)

	// Ledger
	mux.HandleFunc("GET /api/account", s.accountH.Get)
	mux.HandleFunc("GET /api/account/transactions", s.accountH.Transactions)
	mux.HandleFunc("POST /api/account/interest", s.accountH.Interest)
	mux.Handle("POST /api/accounts/{id}/deposit", parent(s.accountH.Deposit))
	mux.Handle("POST /api/accounts/{id}/stars", parent(s.accountH.Stars))

	// Gamification
	mux.HandleFunc("GET /api/avatar", s.avatarH.Get)
	mux.HandleFunc("PUT /api/avatar/skin", s.avatarH.EquipSkin)
	mux.HandleFunc("GET /api/medals", s.avatarH.Medals)

	// Scheduled jobs
	mux.Handle("GET /api/jobs", parent(s.jobH.List))
	mux.Handle("POST /api/jobs", parent(s.jobH.Create))
	mux.Handle("DELETE /api/jobs/{id}", parent(s.jobH.Delete))
	mux.Handle("POST /api/jobs/{id}/start", parent(s.jobH.Start))
	mux.Handle("POST /api/jobs/{id}/stop", parent(s.jobH.Stop))
	mux.Handle("POST /api/jobs/{id}/run", parent(s.jobH.Run))

	// Evidence uploads and push
	mux.HandleFunc("POST /api/uploads", s.uploadH.Upload)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
}

package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/lostpaws/lostpaws/internal/alert"
	"github.com/lostpaws/lostpaws/internal/backup"
	"github.com/lostpaws/lostpaws/internal/broadcast"
	"github.com/lostpaws/lostpaws/internal/handler"
	"github.com/lostpaws/lostpaws/internal/middleware"
	"github.com/lostpaws/lostpaws/internal/push"
	"github.com/lostpaws/lostpaws/internal/store"
	ws "github.com/lostpaws/lostpaws/internal/websocket"
)

// Config holds server-level wiring configuration.
type Config struct {
	GatewayURL      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Backup          backup.Config
}

type Server struct {
	db     *sql.DB
	hub    *ws.Hub
	logger *slog.Logger

	petH    *handler.PetHandler
	deviceH *handler.DeviceHandler
	notifH  *handler.NotificationHandler
	bcastH  *handler.BroadcastHandler

	alertService  *alert.Service
	backupManager *backup.Manager
	rateLimiter   *middleware.RateLimiter
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	pets := store.NewPetStore(db)
	devices := store.NewDeviceStore(db)
	notifs := store.NewNotificationStore(db)
	dedup := store.NewDedupLedger(db)
	tokens := store.NewPushTokenStore(db)
	jobs := store.NewBroadcastStore(db)
	backups := store.NewBackupStore(db)

	gateway := push.NewGatewayClient(cfg.GatewayURL)
	web := push.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)

	alerts := alert.NewService(devices, pets, notifs, dedup, tokens, gateway, web, hub, logger)
	coordinator := broadcast.NewCoordinator(pets, devices, tokens, jobs, gateway, web, hub, logger)

	return &Server{
		db:            db,
		hub:           hub,
		logger:        logger,
		petH:          handler.NewPetHandler(pets, alerts, logger.With("component", "pet")),
		deviceH:       handler.NewDeviceHandler(devices, tokens, alerts, logger.With("component", "device")),
		notifH:        handler.NewNotificationHandler(notifs, logger.With("component", "notification")),
		bcastH:        handler.NewBroadcastHandler(coordinator, logger.With("component", "broadcast")),
		alertService:  alerts,
		backupManager: backup.NewManager(cfg.Backup, db, backups, logger),
		rateLimiter:   middleware.NewRateLimiter(),
	}
}

// AlertService returns the alert service for lifecycle management.
func (s *Server) AlertService() *alert.Service {
	return s.alertService
}

// BackupManager returns the backup manager for lifecycle management.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub))

	mux.HandleFunc("POST /api/pets", s.petH.Create)
	mux.HandleFunc("GET /api/pets", s.petH.List)
	mux.HandleFunc("GET /api/pets/{id}", s.petH.Get)
	mux.HandleFunc("POST /api/pets/{id}/found", s.petH.MarkFound)
	mux.HandleFunc("POST /api/pets/{id}/broadcast", s.rateLimitedHandler(s.bcastH.Broadcast))

	mux.HandleFunc("PUT /api/devices/{id}/settings", s.deviceH.UpdateSettings)
	mux.HandleFunc("GET /api/devices/{id}/settings", s.deviceH.GetSettings)
	mux.HandleFunc("POST /api/devices/{id}/location", s.deviceH.UpdateLocation)
	mux.HandleFunc("POST /api/devices/{id}/snooze", s.deviceH.Snooze)
	mux.HandleFunc("DELETE /api/devices/{id}/snooze", s.deviceH.ClearSnooze)
	mux.HandleFunc("POST /api/devices/{id}/push-token", s.deviceH.RegisterToken)
	mux.HandleFunc("POST /api/devices/{id}/test", s.deviceH.Test)

	mux.HandleFunc("GET /api/devices/{id}/notifications", s.notifH.List)
	mux.HandleFunc("GET /api/devices/{id}/notifications/unread-count", s.notifH.UnreadCount)
	mux.HandleFunc("POST /api/devices/{id}/notifications/{nid}/read", s.notifH.MarkRead)
	mux.HandleFunc("POST /api/devices/{id}/notifications/read-all", s.notifH.MarkAllRead)
	mux.HandleFunc("DELETE /api/devices/{id}/notifications/{nid}", s.notifH.Delete)
	mux.HandleFunc("DELETE /api/devices/{id}/notifications", s.notifH.ClearAll)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// rateLimitedHandler guards the emergency broadcast endpoint against abuse:
// a handful of requests per IP per minute is plenty for a real emergency.
func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 5, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

package http

import (
	"log/slog"
	"net/http"

	"classquiz-service/internal/app"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// RouterOptions configures NewRouter. A zero RateLimit disables per-IP limiting.
type RouterOptions struct {
	Logger    *slog.Logger
	Identity  *IdentityResolver
	RateLimit rate.Limit
	RateBurst int
}

// NewRouter mounts the REST command API, the player websocket and the health probe.
func NewRouter(coord *app.Coordinator, opts RouterOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Identity == nil {
		opts.Identity = NewIdentityResolver("")
	}
	rooms := NewRoomHandler(coord, opts.Logger)
	ws := NewWSHandler(coord, opts.Identity, opts.Logger)

	mux := chi.NewRouter()
	mux.Use(cors.AllowAll().Handler)
	if opts.RateLimit > 0 {
		mux.Use(NewIPRateLimiter(opts.RateLimit, opts.RateBurst).Middleware)
	}

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Get("/ws", ws.ServeWS)

	mux.Route("/rooms", func(r chi.Router) {
		r.Use(opts.Identity.Middleware)
		r.Post("/", rooms.CreateRoom)
		r.Route("/{roomID}", func(r chi.Router) {
			r.Get("/", rooms.GetRoom)
			r.Get("/changes", rooms.Changes)
			r.Get("/leaderboard", rooms.Leaderboard)
			r.Post("/players", rooms.Join)
			r.Post("/start", rooms.Start)
			r.Post("/advance", rooms.Advance)
			r.Post("/finish", rooms.Finish)
			r.Post("/answers", rooms.SubmitAnswer)
			r.Post("/rewards", rooms.DistributeRewards)
		})
	})
	return mux
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopcart-backend/api/controllers"
	"github.com/angelmondragon/shopcart-backend/api/middleware"
	"github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/checkout"
	"github.com/angelmondragon/shopcart-backend/internal/orders"
	product "github.com/angelmondragon/shopcart-backend/internal/products"
	"github.com/angelmondragon/shopcart-backend/pkg/config"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/shopcart-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on. Redis and
// Gatherer are optional.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    *pkgredis.Client
	Gatherer prometheus.Gatherer

	Products product.Service
	Cart     cart.Service
	Checkout checkout.Service
	Orders   orders.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiter          pkgredis.RateLimiter
		redisPinger      controllers.Pinger
	)
	if p.Redis != nil {
		limiter = p.Redis
		redisPinger = p.Redis
		if cfg.FeatureFlags.IdempotencyEnabled {
			idempotencyStore = p.Redis
		}
	}

	cartWrites := middleware.RateLimitPolicy{Name: "cart", Limit: cfg.RateLimit.CartWrites, Window: cfg.RateLimit.Window}
	checkouts := middleware.RateLimitPolicy{Name: "checkout", Limit: cfg.RateLimit.Checkouts, Window: cfg.RateLimit.Window}
	idempotent := middleware.Idempotency(idempotencyStore, logg)

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": redisPinger,
		}))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(p.Products, logg))
			r.Get("/{productId}", controllers.ProductDetail(p.Products, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.CartOwner(cfg.JWT, cfg.FeatureFlags.CartRequireAuth, logg))
			r.Get("/", controllers.CartIndex(p.Cart, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(cartWrites, limiter, logg))
				r.With(idempotent).Post("/add", controllers.CartAdd(p.Cart, logg))
				r.Patch("/{itemId}", controllers.CartUpdate(p.Cart, logg))
				r.Delete("/{itemId}", controllers.CartRemove(p.Cart, logg))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.With(middleware.RateLimit(checkouts, limiter, logg), idempotent).
				Post("/checkout", controllers.Checkout(p.Checkout, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrderList(p.Orders, logg))
				r.With(idempotent).Post("/{orderId}/cancel", controllers.OrderCancel(p.Orders, logg))
			})
		})
	})

	return r
}

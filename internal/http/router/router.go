package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yxshee/marketplace-storefront/internal/attributes"
	"github.com/yxshee/marketplace-storefront/internal/auditlog"
	"github.com/yxshee/marketplace-storefront/internal/auth"
	"github.com/yxshee/marketplace-storefront/internal/catalog"
	"github.com/yxshee/marketplace-storefront/internal/config"
	"github.com/yxshee/marketplace-storefront/internal/events"
	"github.com/yxshee/marketplace-storefront/internal/messaging"
	"github.com/yxshee/marketplace-storefront/internal/platform/logging"
	"github.com/yxshee/marketplace-storefront/internal/storage"
	"github.com/yxshee/marketplace-storefront/internal/vendors"
)

type healthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// Dependencies are the infrastructure handles built in main. Zero values fall
// back to in-process implementations.
type Dependencies struct {
	Logger     *logrus.Logger
	Attributes *attributes.Service
	Events     events.Publisher
	Storage    storage.Storage
}

type api struct {
	authService     *auth.Service
	tokenManager    *auth.TokenManager
	vendorService   *vendors.Service
	catalogService  *catalog.Service
	attributes      *attributes.Service
	assets          *storage.Service
	messages        *messaging.Service
	auditLogs       *auditlog.Service
	events          events.Publisher
	logger          *logrus.Entry
	defaultCommBPS  int32
	defaultCurrency string
	maxUploadBytes  int64
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Service:   "marketplace-storefront",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// New creates a production-ready chi router with baseline middleware and routes.
func New(cfg config.Config, deps Dependencies) (http.Handler, error) {
	tokenManager, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	attributeCatalog := deps.Attributes
	if attributeCatalog == nil {
		attributeCatalog = attributes.NewService(nil, logging.Component(logger, "attributes"))
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.Discard{}
	}
	backend := deps.Storage
	if backend == nil {
		backend = storage.NewLocal(cfg.LocalUploadDir, cfg.LocalUploadURLPrefix)
	}

	authService := auth.NewService(auth.BuildBootstrapRoleMap(
		cfg.SuperAdminEmails,
		cfg.SupportEmails,
		cfg.CatalogModEmails,
	), tokenManager)

	apiHandlers := &api{
		authService:   authService,
		tokenManager:  tokenManager,
		vendorService: vendors.NewService(),
		catalogService: catalog.NewService(catalog.Options{
			Attributes:      attributeCatalog,
			Events:          publisher,
			Logger:          logging.Component(logger, "catalog"),
			VariantLimit:    cfg.MaxProductVariants,
			DefaultCurrency: cfg.DefaultCurrency,
		}),
		attributes:      attributeCatalog,
		assets:          storage.NewService(backend, cfg.MaxUploadBytes, logging.Component(logger, "storage")),
		messages:        messaging.NewService(),
		auditLogs:       auditlog.NewService(auditlog.WithRetention(cfg.AuditLogRetention)),
		events:          publisher,
		logger:          logging.Component(logger, "http"),
		defaultCommBPS:  cfg.DefaultCommission,
		defaultCurrency: cfg.DefaultCurrency,
		maxUploadBytes:  cfg.MaxUploadBytes,
	}
	if cfg.Environment == "development" {
		apiHandlers.seedDevelopmentCatalog(context.Background())
	}

	limiter := newRequestRateLimiter("api", rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst, 10*time.Minute, clientIPKey, apiHandlers.logger)
	uploads := uploadRateLimit(cfg.UploadRatePerMinute, apiHandlers.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(apiHandlers.logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(cfg.Environment))
	r.Use(corsHeaders(cfg.CORSAllowOrigins))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", healthHandler)
	if local, ok := backend.(*storage.Local); ok && cfg.LocalUploadURLPrefix != "" {
		prefix := "/" + strings.Trim(cfg.LocalUploadURLPrefix, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(local.BaseDir))))
	}

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(limiter.middleware)
		v1.Get("/health", healthHandler)

		v1.Get("/catalog/categories", apiHandlers.handleCatalogCategories)
		v1.Get("/catalog/attributes", apiHandlers.handleAttributeCatalogList)
		v1.Get("/catalog/products", apiHandlers.handleCatalogList)
		v1.With(apiHandlers.optionalAuthenticate).Get("/catalog/products/{productID}", apiHandlers.handleCatalogProductDetail)
		v1.Get("/vendors/{slug}", apiHandlers.handleVendorPublicProfile)

		v1.Post("/auth/register", apiHandlers.handleAuthRegister)
		v1.Post("/auth/login", apiHandlers.handleAuthLogin)
		v1.Post("/auth/refresh", apiHandlers.handleAuthRefresh)

		v1.Group(func(private chi.Router) {
			private.Use(apiHandlers.authenticate)
			private.Get("/auth/me", apiHandlers.handleAuthMe)
			private.Post("/auth/logout", apiHandlers.handleAuthLogout)
			private.Post("/auth/logout-all", apiHandlers.handleAuthLogoutAll)

			private.Post("/vendors/register", apiHandlers.handleVendorRegister)
			private.Get("/vendor/verification-status", apiHandlers.handleVendorVerificationStatus)

			private.Group(func(buyerRoutes chi.Router) {
				buyerRoutes.Use(apiHandlers.requirePermission(auth.PermissionMessageVendors))
				buyerRoutes.Get("/messages/threads", apiHandlers.handleBuyerThreads)
				buyerRoutes.Post("/messages/threads", apiHandlers.handleBuyerStartThread)
				buyerRoutes.Get("/messages/threads/{threadID}", apiHandlers.handleBuyerThreadMessages)
				buyerRoutes.Post("/messages/threads/{threadID}/messages", apiHandlers.handleBuyerPostMessage)
			})

			private.Group(func(vendorRoutes chi.Router) {
				vendorRoutes.Use(apiHandlers.requirePermission(auth.PermissionManageVendorProducts))
				vendorRoutes.Get("/vendor/products", apiHandlers.handleVendorListProducts)
				vendorRoutes.Post("/vendor/products", apiHandlers.handleVendorCreateProduct)
				vendorRoutes.Get("/vendor/products/{productID}", apiHandlers.handleVendorGetProduct)
				vendorRoutes.Patch("/vendor/products/{productID}", apiHandlers.handleVendorUpdateProduct)
				vendorRoutes.Delete("/vendor/products/{productID}", apiHandlers.handleVendorDeleteProduct)
				vendorRoutes.Post("/vendor/products/{productID}/submit-moderation", apiHandlers.handleVendorSubmitModeration)

				vendorRoutes.Post("/vendor/products/{productID}/attributes", apiHandlers.handleVariantSelectAttribute)
				vendorRoutes.Post("/vendor/products/{productID}/attributes/custom", apiHandlers.handleVariantDefineCustom)
				vendorRoutes.Put("/vendor/products/{productID}/attributes/{keyName}/values", apiHandlers.handleVariantUpdateValues)
				vendorRoutes.Delete("/vendor/products/{productID}/attributes/{keyName}", apiHandlers.handleVariantRemoveAttribute)
				vendorRoutes.With(uploads).Post("/vendor/products/{productID}/variants/bulk", apiHandlers.handleVariantBulkEdit)
				vendorRoutes.Patch("/vendor/products/{productID}/variants/{sku}", apiHandlers.handleVariantUpdateField)
				vendorRoutes.With(uploads).Post("/vendor/products/{productID}/variants/{sku}/image", apiHandlers.handleVariantRowImage)
				vendorRoutes.Get("/vendor/products/{productID}/variants/export", apiHandlers.handleVariantExport)
				vendorRoutes.With(uploads).Post("/vendor/products/{productID}/variants/import", apiHandlers.handleVariantImport)

				vendorRoutes.Get("/vendor/analytics/overview", apiHandlers.handleVendorAnalyticsOverview)
				vendorRoutes.Get("/vendor/analytics/low-stock", apiHandlers.handleVendorAnalyticsLowStock)
			})

			private.Group(func(vendorRoutes chi.Router) {
				vendorRoutes.Use(apiHandlers.requirePermission(auth.PermissionManageShopSettings))
				vendorRoutes.Get("/vendor/settings", apiHandlers.handleVendorSettingsGet)
				vendorRoutes.Patch("/vendor/settings", apiHandlers.handleVendorSettingsUpdate)
			})

			private.Group(func(vendorRoutes chi.Router) {
				vendorRoutes.Use(apiHandlers.requirePermission(auth.PermissionUploadAssets))
				vendorRoutes.With(uploads).Post("/vendor/assets", apiHandlers.handleVendorAssetUpload)
				vendorRoutes.Delete("/vendor/assets/{publicID}", apiHandlers.handleVendorAssetDelete)
			})

			private.Group(func(vendorRoutes chi.Router) {
				vendorRoutes.Use(apiHandlers.requirePermission(auth.PermissionMessageCustomers))
				vendorRoutes.Get("/vendor/messages/threads", apiHandlers.handleVendorThreads)
				vendorRoutes.Get("/vendor/messages/threads/{threadID}", apiHandlers.handleVendorThreadMessages)
				vendorRoutes.Post("/vendor/messages/threads/{threadID}/messages", apiHandlers.handleVendorPostMessage)
			})

			private.Group(func(adminRoutes chi.Router) {
				adminRoutes.Use(apiHandlers.requirePermission(auth.PermissionManageVendorVerification))
				adminRoutes.Get("/admin/vendors", apiHandlers.handleAdminVendorList)
				adminRoutes.Patch("/admin/vendors/{vendorID}/verification", apiHandlers.handleAdminVendorVerification)
			})

			private.Group(func(adminRoutes chi.Router) {
				adminRoutes.Use(apiHandlers.requirePermission(auth.PermissionManageCommission))
				adminRoutes.Patch("/admin/vendors/{vendorID}/commission", apiHandlers.handleAdminVendorCommission)
			})

			private.Group(func(adminRoutes chi.Router) {
				adminRoutes.Use(apiHandlers.requirePermission(auth.PermissionModerateProducts))
				adminRoutes.Get("/admin/moderation/products", apiHandlers.handleAdminModerationList)
				adminRoutes.Patch("/admin/moderation/products/{productID}", apiHandlers.handleAdminModerateProduct)
			})

			private.Group(func(adminRoutes chi.Router) {
				adminRoutes.Use(apiHandlers.requirePermission(auth.PermissionManageCategories))
				adminRoutes.Put("/admin/categories/{slug}", apiHandlers.handleAdminCategoryUpsert)
				adminRoutes.Delete("/admin/categories/{slug}", apiHandlers.handleAdminCategoryDelete)
			})

			private.Group(func(adminRoutes chi.Router) {
				adminRoutes.Use(apiHandlers.requirePermission(auth.PermissionManageAttributeCatalog))
				adminRoutes.Put("/admin/attributes/{keyName}", apiHandlers.handleAdminAttributeUpsert)
				adminRoutes.Post("/admin/attributes/{keyName}/values", apiHandlers.handleAdminAttributeAddValues)
				adminRoutes.Delete("/admin/attributes/{keyName}", apiHandlers.handleAdminAttributeDelete)
			})

			private.Group(func(adminRoutes chi.Router) {
				adminRoutes.Use(apiHandlers.requirePermission(auth.PermissionViewPlatformAnalytics))
				adminRoutes.Get("/admin/analytics/overview", apiHandlers.handleAdminDashboardOverview)
				adminRoutes.Get("/admin/analytics/vendors", apiHandlers.handleAdminAnalyticsVendors)
			})

			private.Group(func(adminRoutes chi.Router) {
				adminRoutes.Use(apiHandlers.requirePermission(auth.PermissionViewAuditLogs))
				adminRoutes.Get("/admin/audit-logs", apiHandlers.handleAdminAuditLogsList)
			})
		})
	})

	return r, nil
}

package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/username/taxcore/src/security"
	"github.com/username/taxcore/src/services"
	"github.com/username/taxcore/src/utils"
	"golang.org/x/time/rate"
)

type RouterConfig struct {
	Auth           *security.AuthService
	Documents      services.DocumentService
	Returns        services.ReturnService
	Config         services.ConfigService
	MaxUploadSize  int64
	RateLimitEvery time.Duration
	RateLimitBurst int
}

// NewRouter mounts every API route behind request logging, panic recovery,
// rate limiting and (under /api) bearer authentication.
func NewRouter(cfg RouterConfig) http.Handler {
	returnHandler := NewReturnHandler(cfg.Returns)
	documentHandler := NewDocumentHandler(cfg.Documents, cfg.Returns, cfg.MaxUploadSize)
	configHandler := NewConfigHandler(cfg.Config)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(RateLimitMiddleware(rate.NewLimiter(rate.Every(cfg.RateLimitEvery), cfg.RateLimitBurst)))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.SendJSON(w, map[string]string{"message": "taxcore backend is running"}, http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))

		r.Get("/tax-years", configHandler.HandleListTaxYears)
		r.Get("/tax-years/active", configHandler.HandleGetActiveYear)
		r.Get("/tax-years/{year}/brackets", configHandler.HandleGetBrackets)
		r.Get("/tax-years/{year}/standard-deduction", configHandler.HandleGetStandardDeduction)

		r.Post("/returns", returnHandler.HandleCreateReturn)
		r.Get("/returns", returnHandler.HandleListReturns)
		r.Route("/returns/{returnID}", func(r chi.Router) {
			r.Get("/", returnHandler.HandleGetReturn)
			r.Put("/profile", returnHandler.HandleUpdateProfile)
			r.Post("/calculate", returnHandler.HandleCalculate)
			r.Get("/calculation", returnHandler.HandleGetCalculation)
			r.Get("/form-8949", returnHandler.HandleGetForm8949)
			r.Get("/adjustments", returnHandler.HandleListAdjustments)
			r.Post("/adjustments", returnHandler.HandleAddAdjustment)
			r.Delete("/adjustments/{adjustmentID}", returnHandler.HandleDeleteAdjustment)
			r.Post("/documents", documentHandler.HandleUpload)
			r.Get("/documents", documentHandler.HandleListDocuments)
		})
		r.Route("/documents/{documentID}", func(r chi.Router) {
			r.Get("/", documentHandler.HandleGetDocument)
			r.Get("/attempts", documentHandler.HandleGetAttempts)
			r.Put("/type", documentHandler.HandleAssignType)
			r.Put("/fields", documentHandler.HandleUpdateFields)
			r.Delete("/", documentHandler.HandleDeleteDocument)
		})
	})
	return r
}

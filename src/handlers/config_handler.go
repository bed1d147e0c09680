package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/services"
	"github.com/username/taxcore/src/utils"
)

// ConfigHandler serves the read-only tax tables.
type ConfigHandler struct {
	config services.ConfigService
}

func NewConfigHandler(config services.ConfigService) *ConfigHandler {
	return &ConfigHandler{config: config}
}

func (h *ConfigHandler) HandleListTaxYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.config.ListTaxYears(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if years == nil {
		years = []models.TaxYear{}
	}
	utils.SendJSONWithETag(w, r, years)
}

func (h *ConfigHandler) HandleGetActiveYear(w http.ResponseWriter, r *http.Request) {
	year, err := h.config.GetActiveYear(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSONWithETag(w, r, year)
}

// tableQuery reads year from the path and filing_status/jurisdiction from
// the query string. The jurisdiction defaults to federal.
func tableQuery(w http.ResponseWriter, r *http.Request) (int, models.FilingStatus, models.Jurisdiction, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		utils.SendJSONError(w, "year must be a number", http.StatusBadRequest)
		return 0, "", "", false
	}
	status, err := models.ParseFilingStatus(r.URL.Query().Get("filing_status"))
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return 0, "", "", false
	}
	jurisdiction := models.NormalizeJurisdiction(r.URL.Query().Get("jurisdiction"))
	if jurisdiction == "" {
		jurisdiction = models.Federal
	}
	return year, status, jurisdiction, true
}

func (h *ConfigHandler) HandleGetBrackets(w http.ResponseWriter, r *http.Request) {
	year, status, jurisdiction, ok := tableQuery(w, r)
	if !ok {
		return
	}
	brackets, err := h.config.GetBrackets(r.Context(), year, status, jurisdiction)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSONWithETag(w, r, brackets)
}

func (h *ConfigHandler) HandleGetStandardDeduction(w http.ResponseWriter, r *http.Request) {
	year, status, jurisdiction, ok := tableQuery(w, r)
	if !ok {
		return
	}
	deduction, err := h.config.GetStandardDeduction(r.Context(), year, status, jurisdiction)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSONWithETag(w, r, deduction)
}

package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/security/validation"
	"github.com/username/taxcore/src/services"
	"github.com/username/taxcore/src/utils"
)

type ReturnHandler struct {
	returns services.ReturnService
}

func NewReturnHandler(returns services.ReturnService) *ReturnHandler {
	return &ReturnHandler{returns: returns}
}

// ownedReturn loads the return named in the URL. Returns of other users are
// reported as missing.
func ownedReturn(w http.ResponseWriter, r *http.Request, returns services.ReturnService, taxReturnID string) (*models.TaxReturn, bool) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return nil, false
	}
	ret, err := returns.GetReturn(r.Context(), taxReturnID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	if ret.UserID != userID {
		logger.FromContext(r.Context()).Warn("Access to another user's tax return denied", "taxReturnID", taxReturnID)
		utils.SendJSONError(w, "resource not found", http.StatusNotFound)
		return nil, false
	}
	return ret, true
}

func (h *ReturnHandler) HandleCreateReturn(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	var in services.CreateReturnInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	in.UserID = userID

	ret, err := h.returns.CreateReturn(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, ret, http.StatusCreated)
}

func (h *ReturnHandler) HandleListReturns(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	list, err := h.returns.ListReturns(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.TaxReturn{}
	}
	utils.SendJSON(w, list, http.StatusOK)
}

func (h *ReturnHandler) HandleGetReturn(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	utils.SendJSONWithETag(w, r, ret)
}

func (h *ReturnHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	var body struct {
		FilingStatus models.FilingStatus    `json:"filing_status"`
		Profile      models.TaxpayerProfile `json:"profile"`
	}
	if !decodeJSON(w, r, &body, false) {
		return
	}
	if body.FilingStatus == "" {
		body.FilingStatus = ret.FilingStatus
	}
	updated, err := h.returns.UpdateProfile(r.Context(), ret.ID, body.FilingStatus, body.Profile)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, updated, http.StatusOK)
}

func (h *ReturnHandler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	var body struct {
		FilingStatus models.FilingStatus `json:"filing_status"`
	}
	if !decodeJSON(w, r, &body, true) {
		return
	}
	result, err := h.returns.Calculate(r.Context(), ret.ID, body.FilingStatus)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}

func (h *ReturnHandler) HandleGetCalculation(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	result, err := h.returns.GetCalculation(r.Context(), ret.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSONWithETag(w, r, result)
}

// HandleGetForm8949 returns the rows as JSON, or as a spreadsheet-safe CSV
// with ?format=csv.
func (h *ReturnHandler) HandleGetForm8949(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	rows, err := h.returns.ListForm8949(r.Context(), ret.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Form8949{}
	}
	if r.URL.Query().Get("format") != "csv" {
		utils.SendJSONWithETag(w, r, rows)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("form-8949-%d.csv", ret.TaxYear)))
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"box", "description", "date_acquired", "date_sold", "proceeds", "cost_basis",
		"adjustment_code", "adjustment_amount", "gain_or_loss", "term", "needs_review"})
	for _, row := range rows {
		term := "long"
		if row.IsShortTerm {
			term = "short"
		}
		_ = cw.Write([]string{
			row.Box,
			validation.SanitizeForFormulaInjection(row.Description),
			row.DateAcquired,
			row.DateSold,
			row.Proceeds.StringFixed(2),
			row.CostBasis.StringFixed(2),
			row.AdjustmentCode,
			row.AdjustmentAmount.StringFixed(2),
			row.GainOrLoss.StringFixed(2),
			term,
			fmt.Sprint(row.NeedsReview),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.FromContext(r.Context()).Error("Error writing Form 8949 CSV", "taxReturnID", ret.ID, "error", err)
	}
}

func (h *ReturnHandler) HandleListAdjustments(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	adjs, err := h.returns.ListManualAdjustments(r.Context(), ret.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if adjs == nil {
		adjs = []models.ManualAdjustment{}
	}
	utils.SendJSON(w, adjs, http.StatusOK)
}

func (h *ReturnHandler) HandleAddAdjustment(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	var adj models.ManualAdjustment
	if !decodeJSON(w, r, &adj, false) {
		return
	}
	adj.ID = ""
	adj.TaxReturnID = ret.ID
	created, err := h.returns.AddManualAdjustment(r.Context(), adj)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, created, http.StatusCreated)
}

func (h *ReturnHandler) HandleDeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	if err := h.returns.DeleteManualAdjustment(r.Context(), ret.ID, chi.URLParam(r, "adjustmentID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

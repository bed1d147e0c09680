package handlers

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/username/taxcore/src/logger"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/services"
	"github.com/username/taxcore/src/utils"
)

// maxBatchFiles bounds how many files one upload request may carry.
const maxBatchFiles = 20

type DocumentHandler struct {
	docs          services.DocumentService
	returns       services.ReturnService
	maxUploadSize int64
}

func NewDocumentHandler(docs services.DocumentService, returns services.ReturnService, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{docs: docs, returns: returns, maxUploadSize: maxUploadSize}
}

// ownedDocument loads the document named in the URL after checking that
// its return belongs to the caller.
func (h *DocumentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*services.DocumentResult, bool) {
	res, err := h.docs.GetDocument(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	if _, ok := ownedReturn(w, r, h.returns, res.Document.TaxReturnID); !ok {
		return nil, false
	}
	return res, true
}

// HandleUpload accepts one or more files in the "file" field. Each file is
// classified and extracted; one unreadable file does not fail the others.
func (h *DocumentHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	log := logger.FromContext(r.Context()).With("taxReturnID", ret.ID)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize*maxBatchFiles)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		log.Warn("Failed to parse multipart form or request too large", "error", err, "limit", h.maxUploadSize)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %s per file)", humanize.Bytes(uint64(h.maxUploadSize))), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	switch {
	case len(headers) == 0:
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	case len(headers) > maxBatchFiles:
		utils.SendJSONError(w, fmt.Sprintf("Too many files, at most %d per request", maxBatchFiles), http.StatusBadRequest)
		return
	}

	inputs := make([]services.UploadInput, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > h.maxUploadSize {
			log.Warn("Uploaded file header reports size too large", "fileName", fh.Filename, "fileSize", fh.Size, "limit", h.maxUploadSize)
			utils.SendJSONError(w, fmt.Sprintf("File %s is %s, max %s", fh.Filename, humanize.Bytes(uint64(fh.Size)), humanize.Bytes(uint64(h.maxUploadSize))), http.StatusBadRequest)
			return
		}
		f, err := fh.Open()
		if err != nil {
			writeServiceError(w, r, fmt.Errorf("failed to open uploaded file %s: %w", fh.Filename, err))
			return
		}
		defer f.Close()
		inputs = append(inputs, uploadInput(ret.ID, fh, f))
	}

	if len(inputs) == 1 {
		res, err := h.docs.ProcessDocument(r.Context(), inputs[0])
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		utils.SendJSON(w, res, http.StatusCreated)
		return
	}
	results := h.docs.ProcessBatch(r.Context(), inputs)
	log.Info("Batch upload processed", "files", len(results))
	utils.SendJSON(w, map[string]any{"documents": results}, http.StatusCreated)
}

func uploadInput(taxReturnID string, fh *multipart.FileHeader, f multipart.File) services.UploadInput {
	return services.UploadInput{
		TaxReturnID: taxReturnID,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     f,
	}
}

func (h *DocumentHandler) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	ret, ok := ownedReturn(w, r, h.returns, chi.URLParam(r, "returnID"))
	if !ok {
		return
	}
	docs, err := h.docs.ListDocuments(r.Context(), ret.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	utils.SendJSONWithETag(w, r, docs)
}

func (h *DocumentHandler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	res, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}
	utils.SendJSONWithETag(w, r, res)
}

func (h *DocumentHandler) HandleGetAttempts(w http.ResponseWriter, r *http.Request) {
	res, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}
	attempts, err := h.docs.GetAttempts(r.Context(), res.Document.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if attempts == nil {
		attempts = []models.ParsingAttempt{}
	}
	utils.SendJSON(w, attempts, http.StatusOK)
}

func (h *DocumentHandler) HandleAssignType(w http.ResponseWriter, r *http.Request) {
	res, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}
	var body struct {
		DocumentType models.DocumentType `json:"document_type"`
	}
	if !decodeJSON(w, r, &body, false) {
		return
	}
	updated, err := h.docs.AssignDocumentType(r.Context(), res.Document.ID, body.DocumentType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, updated, http.StatusOK)
}

func (h *DocumentHandler) HandleUpdateFields(w http.ResponseWriter, r *http.Request) {
	res, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}
	var fields models.ExtractedFields
	if !decodeJSON(w, r, &fields, false) {
		return
	}
	updated, err := h.docs.UpdateFields(r.Context(), res.Document.ID, fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.SendJSON(w, updated, http.StatusOK)
}

func (h *DocumentHandler) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	res, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}
	if err := h.docs.DeleteDocument(r.Context(), res.Document.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

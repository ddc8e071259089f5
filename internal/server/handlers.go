package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/SmitUplenchwar2687/Folio/internal/convert"
	"github.com/SmitUplenchwar2687/Folio/internal/identity"
	"github.com/SmitUplenchwar2687/Folio/internal/obs"
	"github.com/SmitUplenchwar2687/Folio/internal/quota"
)

// Client-facing error messages.
const (
	msgUnidentified    = "Unable to identify client"
	msgRateLimited     = "Rate limit exceeded"
	msgTrackFailed     = "Failed to track request"
	msgCountFailed     = "Failed to get request count"
	msgNoFile          = "No file provided"
	msgNotPDF          = "Only PDF files are supported"
	msgTooLarge        = "File too large"
	msgParseFailed     = "Failed to parse PDF file"
	msgNoText          = "No text content found in PDF"
	msgGenerateFailed  = "Failed to convert content to Markdown. Please check your API key."
	msgNotConfigured   = "Conversion is not configured"
	msgInternal        = "Internal server error"
	pdfContentType     = "application/pdf"
	multipartMemoryMax = 8 << 20
)

type errorBody struct {
	Error string `json:"error"`
}

type exceededBody struct {
	Error string `json:"error"`
	quota.State
}

type parseLimitedBody struct {
	Error             string `json:"error"`
	RateLimitExceeded bool   `json:"rateLimitExceeded"`
}

type parseBody struct {
	Success  bool   `json:"success"`
	Markdown string `json:"markdown"`
	FileName string `json:"fileName"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func setRateHeaders(w http.ResponseWriter, st quota.State) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(st.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(st.Remaining(), 10))
}

// writeQuotaError maps accountant errors onto status codes. Anything that is
// not an identification or quota error is a store failure and reported with
// fallback.
func writeQuotaError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var exceeded *quota.ExceededError
	switch {
	case errors.Is(err, quota.ErrUnidentified):
		writeError(w, http.StatusBadRequest, msgUnidentified)
	case errors.As(err, &exceeded):
		setRateHeaders(w, exceeded.State)
		writeJSON(w, http.StatusTooManyRequests, exceededBody{Error: msgRateLimited, State: exceeded.State})
	default:
		hlog.FromRequest(r).Error().Err(err).Msg(fallback)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRequestCount reports the caller's usage without recording anything.
func (s *Server) handleRequestCount(w http.ResponseWriter, r *http.Request) {
	client := identity.FromRequest(r)
	if s.opts.RejectUnknownOnRead && !client.Known() {
		writeError(w, http.StatusBadRequest, msgUnidentified)
		return
	}

	st, err := s.acct.QueryState(r.Context(), client)
	if err != nil {
		writeQuotaError(w, r, err, msgCountFailed)
		return
	}
	setRateHeaders(w, st)
	writeJSON(w, http.StatusOK, st)
}

// handleTrackRequest records one use for the caller.
func (s *Server) handleTrackRequest(w http.ResponseWriter, r *http.Request) {
	st, err := s.acct.RecordUse(r.Context(), identity.FromRequest(r))
	if err != nil {
		writeQuotaError(w, r, err, msgTrackFailed)
		return
	}
	setRateHeaders(w, st)
	writeJSON(w, http.StatusOK, st)
}

// handleParse converts an uploaded PDF. The quota is only checked, never
// consumed; callers record the use with /track-request after success. A
// failed quota read does not block conversion.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)

	st, err := s.acct.QueryState(r.Context(), identity.FromRequest(r))
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("quota pre-check failed, continuing")
	case st.Exhausted():
		s.observeConversion(obs.ConversionLimited)
		setRateHeaders(w, st)
		writeJSON(w, http.StatusTooManyRequests, parseLimitedBody{
			Error:             fmt.Sprintf("Rate limit exceeded. You can only process %d files per day.", st.Limit),
			RateLimitExceeded: true,
		})
		return
	}

	if s.opts.Converter == nil {
		writeError(w, http.StatusServiceUnavailable, msgNotConfigured)
		return
	}

	name, pdf, status, msg := s.readUpload(w, r)
	if status != 0 {
		s.observeConversion(obs.ConversionBadRequest)
		writeError(w, status, msg)
		return
	}

	res, err := s.opts.Converter.Convert(r.Context(), name, pdf)
	if err != nil {
		switch {
		case errors.Is(err, convert.ErrNoText):
			s.observeConversion(obs.ConversionBadRequest)
			writeError(w, http.StatusBadRequest, msgNoText)
		case errors.Is(err, convert.ErrExtraction):
			s.observeConversion(obs.ConversionFailed)
			logger.Error().Err(err).Str("file", name).Msg("pdf parsing error")
			writeError(w, http.StatusInternalServerError, msgParseFailed)
		case errors.Is(err, convert.ErrGeneration):
			s.observeConversion(obs.ConversionFailed)
			logger.Error().Err(err).Str("file", name).Msg("markdown generation error")
			writeError(w, http.StatusInternalServerError, msgGenerateFailed)
		default:
			s.observeConversion(obs.ConversionFailed)
			logger.Error().Err(err).Str("file", name).Msg("conversion error")
			writeError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	s.observeConversion(obs.ConversionOK)
	writeJSON(w, http.StatusOK, parseBody{Success: true, Markdown: res.Markdown, FileName: res.FileName})
}

// readUpload pulls the "file" part out of a multipart body. A non-zero
// status means the request was rejected with msg.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (name string, pdf []byte, status int, msg string) {
	if r.ContentLength > s.opts.MaxUploadBytes {
		return "", nil, http.StatusRequestEntityTooLarge, msgTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemoryMax); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, http.StatusRequestEntityTooLarge, msgTooLarge
		}
		return "", nil, http.StatusBadRequest, msgNoFile
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, http.StatusBadRequest, msgNoFile
	}
	defer file.Close()

	mediaType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if mediaType != pdfContentType {
		return "", nil, http.StatusBadRequest, msgNotPDF
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, http.StatusBadRequest, msgNoFile
	}
	return header.Filename, data, 0, ""
}

func (s *Server) observeConversion(result string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveConversion(result)
	}
}

// handleUserID issues a fresh opaque user token for the X-User-ID header.
func (s *Server) handleUserID(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"userId": s.opts.NewUserID()})
}

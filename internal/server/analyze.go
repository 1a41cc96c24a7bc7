package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/lexfield/contract-insight/constants"
	"github.com/lexfield/contract-insight/internal/common"
	"github.com/lexfield/contract-insight/internal/domain"
)

// maxFilename caps filenames before they land in run records.
func maxFilename(field string, value interface{}) *common.ValidationError {
	return common.MaxLength(field, value, 255)
}

// handleAnalyze runs the full pipeline on an uploaded document and returns
// the assembled report. A degraded report is still returned in full, but
// with a 422 status so clients can tell a partial result from a complete one.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	payload, filename, err := readPayload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeUploadTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
		return
	}

	formatParam := r.URL.Query().Get("format")
	v := common.NewValidator()
	v.Field("payload", payload, common.Required)
	v.Field("format", formatParam, common.KnownFormat)
	v.Field("filename", filename, maxFilename)
	if v.HasErrors() {
		writeError(w, http.StatusBadRequest, codeInvalidInput, v.ErrorMessage())
		return
	}

	doc := &domain.Document{Filename: filename, Payload: payload}
	if formatParam != "" {
		format, _ := constants.ParseFormat(formatParam)
		doc.DeclaredFormat = format
	}

	report, err := s.pipeline.Run(r.Context(), doc)
	if err != nil {
		s.handlePipelineError(w, err)
		return
	}

	status := http.StatusOK
	if report.Degraded {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

// readPayload extracts the uploaded document bytes. Multipart uploads use
// the "file" field; anything else is read as a raw body with the filename
// taken from the query string.
func readPayload(r *http.Request) ([]byte, string, error) {
	mediatype, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediatype == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", fmt.Errorf("multipart upload needs a \"file\" field: %w", err)
		}
		defer file.Close()
		payload, err := io.ReadAll(file)
		if err != nil {
			return nil, "", err
		}
		return payload, header.Filename, nil
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	return payload, r.URL.Query().Get("filename"), nil
}

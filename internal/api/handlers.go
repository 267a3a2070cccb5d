// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	xglog "github.com/ManuGH/runcfg/internal/log"
	"github.com/ManuGH/runcfg/internal/runconfig"
	"github.com/ManuGH/runcfg/internal/validate"
)

// validateResponse is the body of POST /api/v1/validate.
type validateResponse struct {
	*runconfig.Result
	Valid   bool     `json:"valid"`
	Model   string   `json:"model,omitempty"`
	Stages  []string `json:"stages"`
	Failure string   `json:"failure,omitempty"`
}

// readBody reads the request body and the config name. It writes the error
// response itself and reports false on failure.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				"request body exceeds "+strconv.Itoa(MaxBodyBytes)+" bytes")
			return nil, "", false
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return nil, "", false
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "request.yaml"
	}
	return body, name, true
}

// readConfig reads the request body and runs the loader. It writes the
// error response itself and returns nil on failure.
func (s *Server) readConfig(w http.ResponseWriter, r *http.Request) *runconfig.Result {
	body, name, ok := readBody(w, r)
	if !ok {
		return nil
	}
	res, err := s.deps.Loader.LoadBytes(r.Context(), name, body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeParseError, err.Error())
		return nil
	}
	return res
}

// handleValidate answers 200 for every document it could read. A document
// that does not parse is reported as invalid with the reason in failure.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	body, name, ok := readBody(w, r)
	if !ok {
		return
	}

	var failure string
	res, err := s.deps.Loader.LoadBytes(r.Context(), name, body)
	if err != nil {
		failure = err.Error()
		res = &runconfig.Result{
			Source:   name,
			Digest:   runconfig.Digest(body),
			Errors:   []validate.Error{{Message: failure, Severity: validate.SeverityError}},
			Warnings: []validate.Error{},
			LoadedAt: time.Now(),
		}
	}

	if s.deps.History != nil {
		if _, err := s.deps.History.Record(r.Context(), res); err != nil {
			logger := xglog.FromContext(r.Context())
			logger.Warn().Err(err).Str(xglog.FieldEvent, "api.history_failed").Msg("could not record validation")
		}
	}

	resp := validateResponse{Result: res, Valid: res.Valid(), Model: res.Model(), Stages: []string{}, Failure: failure}
	if res.Run != nil {
		resp.Stages = res.Run.StageNames()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	res := s.readConfig(w, r)
	if res == nil {
		return
	}
	if err := res.Err(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, codeInvalidConfig, err.Error())
		return
	}
	s.writeRun(w, r, res)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Holder == nil {
		writeError(w, http.StatusNotFound, codeNotWatching, "server was started without a run config file")
		return
	}
	res := s.deps.Holder.Current()
	if res == nil {
		detail := "no valid run config loaded yet"
		if _, err := s.deps.Holder.State(); err != nil {
			detail = err.Error()
		}
		writeError(w, http.StatusServiceUnavailable, codeNotLoaded, detail)
		return
	}
	w.Header().Set("X-Runcfg-Source", res.Source)
	s.writeRun(w, r, res)
}

// writeRun encodes res (optionally one stage of it) in the requested
// format, JSON by default.
func (s *Server) writeRun(w http.ResponseWriter, r *http.Request, res *runconfig.Result) {
	run := res.Run
	if stage := r.URL.Query().Get("stage"); stage != "" {
		sel, err := run.Select(stage)
		if err != nil {
			writeError(w, http.StatusNotFound, codeUnknownStage, err.Error())
			return
		}
		run = sel
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = runconfig.FormatJSON
	}
	out, err := run.Encode(format)
	if err != nil {
		if errors.Is(err, runconfig.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}

	contentType := "application/json"
	if format != runconfig.FormatJSON {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Runcfg-Digest", res.Digest)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotFound, "history_disabled", "history.path is not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

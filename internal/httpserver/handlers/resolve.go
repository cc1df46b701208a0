package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/sdsresolve/internal/domain"
	"github.com/MrSnakeDoc/sdsresolve/internal/httpserver/deps"
	"github.com/MrSnakeDoc/sdsresolve/internal/logger"
)

const (
	DefaultMaxFields = 20
	maxRequestBytes  = 64 << 10
	maxIdentifierLen = 256
	maxFieldNameLen  = 64
)

type resolveRequest struct {
	Identifiers   domain.Identifiers `json:"identifiers"`
	MissingFields []string           `json:"missing_fields"`
}

type fieldPayload struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	SourceURL  *string `json:"source_url"`
	Origin     string  `json:"origin"`
	Error      string  `json:"error,omitempty"`
}

type resolveResponse struct {
	RunID      string                  `json:"run_id"`
	DurationMS int64                   `json:"duration_ms"`
	Fields     map[string]fieldPayload `json:"fields"`
}

func (req *resolveRequest) validate(maxFields int) error {
	ids := &req.Identifiers
	if err := validation.ValidateStruct(ids,
		validation.Field(&ids.ProductName, validation.Length(0, maxIdentifierLen)),
		validation.Field(&ids.CASNumber, validation.Length(0, maxIdentifierLen)),
		validation.Field(&ids.UNNumber, validation.Length(0, maxIdentifierLen)),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(req,
		validation.Field(&req.MissingFields,
			validation.Required,
			validation.Length(1, maxFields),
			validation.Each(validation.Required, validation.Length(1, maxFieldNameLen)),
		),
	)
}

// Resolve looks up the missing fields of one SDS document.
func Resolve(d deps.Deps) http.HandlerFunc {
	maxFields := d.MaxFields
	if maxFields <= 0 {
		maxFields = DefaultMaxFields
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req resolveRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if err := req.validate(maxFields); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}

		runID := uuid.NewString()
		log := d.Logger.With(logger.String("run_id", runID))
		start := d.Now()

		results, err := d.Resolver.ResolveMissingFields(r.Context(), req.Identifiers, req.MissingFields)
		elapsed := d.Now().Sub(start)
		if err != nil {
			if errors.Is(err, domain.ErrCancelled) {
				log.Warn("resolution cancelled",
					logger.Duration("elapsed", elapsed),
					logger.Error(err))
				writeError(w, http.StatusGatewayTimeout, "resolution cancelled")
				return
			}
			log.Error("resolution failed", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "resolution failed")
			return
		}

		resp := resolveResponse{
			RunID:      runID,
			DurationMS: elapsed.Milliseconds(),
			Fields:     make(map[string]fieldPayload, len(results)),
		}
		resolved := 0
		for name, res := range results {
			if res.Resolved() {
				resolved++
			}
			resp.Fields[name] = toPayload(res)
		}

		log.Info("fields resolved",
			logger.Int("requested", len(req.MissingFields)),
			logger.Int("resolved", resolved),
			logger.Duration("elapsed", elapsed.Round(time.Millisecond)))

		writeJSON(w, http.StatusOK, resp)
	}
}

func toPayload(res domain.FieldResult) fieldPayload {
	p := fieldPayload{
		Value:      res.Value,
		Confidence: res.Confidence,
		Origin:     string(res.Origin),
		Error:      res.Error,
	}
	if res.SourceURL != "" {
		src := res.SourceURL
		p.SourceURL = &src
	}
	return p
}

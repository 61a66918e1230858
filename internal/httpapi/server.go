package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"statefuld/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Infer(ctx context.Context, model string, version int64, src types.TensorSource) (types.TensorMap, error)
	ListModels() []types.Model
	Status() types.StatusResponse
	Ready() bool
}

// NewMux builds the HTTP router for both predict surfaces plus the
// operational endpoints.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// Columnar predict surface.
	r.Post("/v2/models/{model}/infer", handleColumnar(svc))
	r.Post("/v2/models/{model}/versions/{version}/infer", handleColumnar(svc))

	// Row predict surface.
	r.Post("/v1/models/{model}/predict", handleRow(svc))
	r.Post("/v1/models/{model}/versions/{version}/predict", handleRow(svc))

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(types.ModelsResponse{Models: svc.ListModels()}); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "", "failed to encode response")
		}
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Status()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "", "failed to encode response")
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// requestTarget pulls the model name and optional version out of the route.
func requestTarget(r *http.Request) (string, int64, bool) {
	model := chi.URLParam(r, "model")
	if model == "" {
		return "", 0, false
	}
	var version int64
	if v := chi.URLParam(r, "version"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil || parsed <= 0 {
			return "", 0, false
		}
		version = parsed
	}
	return model, version, true
}

// decodeBody enforces content type and body size before JSON decoding.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "", "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "", "invalid JSON body")
		return false
	}
	return true
}

func runInfer(w http.ResponseWriter, r *http.Request, svc Service, model string, version int64, src types.TensorMap) (types.TensorMap, bool) {
	lvl := requestLogLevel(r)
	start := time.Now()
	if lvl >= LevelInfo && zlog != nil {
		z := zlog.Info().Str("path", r.URL.Path).Str("model", model).Int64("version", version)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("infer start")
	}
	out, err := svc.Infer(r.Context(), model, version, src)
	if err != nil {
		httpStatus := writeInferError(w, err)
		if lvl >= LevelError && zlog != nil {
			z := zlog.Info().Int("status", httpStatus).Dur("dur", time.Since(start))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Err(err).Msg("infer end")
		}
		return nil, false
	}
	if lvl >= LevelInfo && zlog != nil {
		z := zlog.Info().Int("status", 200).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("infer end")
	}
	return out, true
}

func handleColumnar(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, version, ok := requestTarget(r)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "", "invalid model target")
			return
		}
		var req types.ColumnarInferRequest
		if !decodeBody(w, r, &req) {
			return
		}
		src, err := req.TensorMap()
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "", err.Error())
			return
		}
		out, ok := runInfer(w, r, svc, model, version, src)
		if !ok {
			return
		}
		resp := types.ColumnarInferResponse{ModelName: model}
		if version != 0 {
			resp.ModelVersion = strconv.FormatInt(version, 10)
		}
		for _, name := range out.InputNames() {
			resp.Outputs = append(resp.Outputs, types.NamedTensorPayload{
				Name:          name,
				TensorPayload: types.PayloadFromTensor(out[name]),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func handleRow(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model, version, ok := requestTarget(r)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "", "invalid model target")
			return
		}
		var req types.RowInferRequest
		if !decodeBody(w, r, &req) {
			return
		}
		src, err := req.TensorMap()
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "", err.Error())
			return
		}
		out, ok := runInfer(w, r, svc, model, version, src)
		if !ok {
			return
		}
		resp := types.RowInferResponse{Predictions: make(map[string]types.TensorPayload, len(out))}
		for name, t := range out {
			resp.Predictions[name] = types.PayloadFromTensor(t)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

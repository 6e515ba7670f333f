// Package api exposes a participant's trainer over HTTP so a coordinator
// holding a RemoteProxy can reach it. Requests and responses are CBOR by
// default with JSON accepted for debugging.
package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"

	"github.com/absmach/fedsim/client"
	"github.com/absmach/fedsim/params"
)

const (
	contentType     = "Content-Type"
	contentTypeCBOR = "application/cbor"
	contentTypeJSON = "application/json"
	maxBodySize     = 1024 * 1024 * 64
)

type request struct {
	Parameters params.Parameters `json:"parameters" cbor:"1,keyasint"`
	Config     client.Config     `json:"config,omitempty" cbor:"2,keyasint,omitempty"`
}

func MakeHandler(trainer client.Trainer, logger *slog.Logger) http.Handler {
	mux := chi.NewRouter()

	mux.Post("/fit", func(w http.ResponseWriter, r *http.Request) {
		req, ct, err := decodeRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		res, err := trainer.Train(r.Context(), req.Parameters, req.Config)
		if err != nil {
			logger.Warn("Local training failed", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusInternalServerError)

			return
		}
		encodeResponse(w, ct, res)
	})

	mux.Post("/evaluate", func(w http.ResponseWriter, r *http.Request) {
		req, ct, err := decodeRequest(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		res, err := trainer.Evaluate(r.Context(), req.Parameters, req.Config)
		if err != nil {
			logger.Warn("Local evaluation failed", slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusInternalServerError)

			return
		}
		encodeResponse(w, ct, res)
	})

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return mux
}

func decodeRequest(r *http.Request) (request, string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return request{}, "", err
	}

	var req request
	ct := r.Header.Get(contentType)
	switch {
	case strings.HasPrefix(ct, contentTypeJSON):
		err = json.Unmarshal(body, &req)
	default:
		ct = contentTypeCBOR
		err = cbor.Unmarshal(body, &req)
	}
	if err != nil {
		return request{}, "", err
	}
	if err := req.Parameters.Validate(); err != nil {
		return request{}, "", err
	}

	return req, ct, nil
}

func encodeResponse(w http.ResponseWriter, ct string, res any) {
	var (
		data []byte
		err  error
	)
	if ct == contentTypeJSON {
		data, err = json.Marshal(res)
	} else {
		data, err = cbor.Marshal(res)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set(contentType, ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

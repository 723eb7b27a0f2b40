package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agentgate/agentgate/internal/gwerrors"
)

func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	kind := gwerrors.KindOf(err)
	status := gwerrors.HTTPStatus(kind)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Error  string `json:"error"`
		Kind   string `json:"kind"`
		Status int    `json:"status"`
	}{
		Error:  err.Error(),
		Kind:   string(kind),
		Status: status,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

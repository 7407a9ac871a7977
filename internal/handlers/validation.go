package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"tradesim/internal/money"
	"tradesim/internal/store"
	"tradesim/internal/validator"
)

const maxBodyBytes = 1 << 16

var errInvalidPage = errors.New("page and limit must be positive integers")

// decodeJSON reads and validates a request body, writing a 400 on failure.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return req, false
	}
	if err := validator.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return req, false
	}
	return req, true
}

// parseShares accepts a JSON number or numeric string holding a positive
// whole number.
func parseShares(raw json.Number) (int64, bool) {
	n, err := money.ParseShares(raw.String())
	return n, err == nil
}

type pageQuery struct {
	Order  store.SortOrder
	Limit  int
	Offset int
}

func parsePage(r *http.Request, defaultLimit, maxLimit int) (pageQuery, error) {
	q := r.URL.Query()
	page := pageQuery{Order: store.OrderAsc, Limit: defaultLimit}
	switch q.Get("order") {
	case "", "asc":
	case "desc":
		page.Order = store.OrderDesc
	default:
		return pageQuery{}, errors.New("order must be asc or desc")
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return pageQuery{}, errInvalidPage
		}
		page.Limit = min(limit, maxLimit)
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return pageQuery{}, errInvalidPage
		}
		page.Offset = (n - 1) * page.Limit
	}
	return page, nil
}

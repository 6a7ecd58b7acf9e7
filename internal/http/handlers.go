package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"moneybook/internal/auth"
	"moneybook/internal/blob"
	"moneybook/internal/core"
	"moneybook/internal/log"
	"moneybook/internal/services"

	"github.com/gorilla/mux"
)

// TransactionService is what the handlers need from services.TransactionService.
type TransactionService interface {
	List(ctx context.Context, ownerID int64) (services.Listing, error)
	Get(ctx context.Context, ownerID, id int64) (core.Transaction, error)
	Create(ctx context.Context, ownerID int64, in core.TransactionInput) (core.Transaction, error)
	Update(ctx context.Context, ownerID, id int64, in core.TransactionInput) (core.Transaction, error)
	Delete(ctx context.Context, ownerID, id int64) error
	ImageURL(t core.Transaction) string
	Ping(ctx context.Context) error
}

// transactionResource is the wire form of a transaction.
type transactionResource struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description *string     `json:"description"`
	Amount      json.Number `json:"amount"`
	Type        string      `json:"type"`
	Image       *string     `json:"image"`
	CreatedAt   string      `json:"created_at"`
	UpdatedAt   string      `json:"updated_at"`
}

func (s *Server) resource(t core.Transaction) transactionResource {
	res := transactionResource{
		ID:        t.ID,
		Name:      t.Name,
		Amount:    json.Number(t.Amount.String()),
		Type:      t.Type.String(),
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if t.Description != "" {
		d := t.Description
		res.Description = &d
	}
	if url := s.svc.ImageURL(t); url != "" {
		res.Image = &url
	}
	return res
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	listing, err := s.svc.List(r.Context(), owner.ID)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpList)
		return
	}

	data := make([]transactionResource, 0, len(listing.Transactions))
	for _, t := range listing.Transactions {
		data = append(data, s.resource(t))
	}

	SuccessResponse(http.StatusOK, msgListed).
		Data(data).
		Field("balance", json.Number(listing.Summary.Balance.String())).
		Field("total_income", json.Number(listing.Summary.TotalIncome.String())).
		Field("total_expense", json.Number(listing.Summary.TotalExpense.String())).
		Write(w)
}

func (s *Server) handleShowTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, found := parseID(mux.Vars(r)["id"])
	if !found {
		NotFoundError().Write(w)
		return
	}

	t, err := s.svc.Get(r.Context(), owner.ID, id)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpRead)
		return
	}
	SuccessResponse(http.StatusOK, msgRetrieved).Data(s.resource(t)).Write(w)
}

func (s *Server) handleStoreTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	in, err := NewRequestBodyParser(r).TransactionInput()
	if err != nil {
		writeBodyError(w, err)
		return
	}

	t, err := s.svc.Create(r.Context(), owner.ID, in)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpCreate)
		return
	}
	SuccessResponse(http.StatusCreated, msgCreated).Data(s.resource(t)).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, found := parseID(mux.Vars(r)["id"])
	if !found {
		NotFoundError().Write(w)
		return
	}

	in, err := NewRequestBodyParser(r).TransactionInput()
	if err != nil {
		writeBodyError(w, err)
		return
	}

	t, err := s.svc.Update(r.Context(), owner.ID, id, in)
	if err != nil {
		s.writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	SuccessResponse(http.StatusOK, msgUpdated).Data(s.resource(t)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, found := parseID(mux.Vars(r)["id"])
	if !found {
		NotFoundError().Write(w)
		return
	}

	if err := s.svc.Delete(r.Context(), owner.ID, id); err != nil {
		s.writeServiceError(w, r, err, log.OpDelete)
		return
	}
	SuccessResponse(http.StatusOK, msgDeleted).Write(w)
}

// handleImage serves receipt images for the local blob backend.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !blob.ValidKey(key) {
		http.NotFound(w, r)
		return
	}

	rc, err := s.images.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) || errors.Is(err, blob.ErrInvalidKey) {
			http.NotFound(w, r)
			return
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to read image",
			log.FieldBlobKey, key,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeBlob)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	ct := blob.ContentTypeForKey(key)
	w.Header().Set("Content-Type", ct)
	if ct == "image/svg+xml" {
		// SVG can carry script; never let it run in our origin.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	}
	if _, err := io.Copy(w, rc); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Image copy interrupted",
			log.FieldBlobKey, key, log.FieldError, err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
			log.FieldError, err, log.FieldErrorType, log.ErrorTypeDatabase)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// writeServiceError maps service errors onto the envelope.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var fieldErrs core.FieldErrors
	switch {
	case errors.Is(err, core.ErrNotFound):
		NotFoundError().Write(w)
	case errors.As(err, &fieldErrs):
		ValidationError(fieldErrs).Write(w)
	default:
		owner, _ := auth.OwnerFromContext(r.Context())
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op,
			log.FieldOwnerID, owner.ID,
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeInternal)
		InternalServerError().Write(w)
	}
}

func writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		RequestTooLargeError().Write(w)
		return
	}
	BadRequestError(msgMalformedBody).Write(w)
}

// requireOwner returns the owner stored by the auth middleware, writing a
// 401 when there is none.
func requireOwner(w http.ResponseWriter, r *http.Request) (core.Owner, bool) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		ErrorResponse(http.StatusUnauthorized, msgUnauthenticated).Write(w)
	}
	return owner, ok
}

var _ TransactionService = (*services.TransactionService)(nil)

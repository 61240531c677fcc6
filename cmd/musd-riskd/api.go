package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"musd/crypto"
	"musd/native/oracle"
)

func newRouter(e *engines) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/price/{asset}", e.handlePrice(false))
		r.Get("/price/{asset}/unsafe", e.handlePrice(true))
		r.Get("/health/{account}", e.handleHealth)
		r.Get("/debt", e.handleDebt)
		r.Get("/liquidations", e.handleLiquidations)
	})

	return r
}

type priceResponse struct {
	Asset  string `json:"asset"`
	Price  string `json:"price"`
	Unsafe bool   `json:"unsafe"`
}

func (e *engines) handlePrice(unsafe bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asset := chi.URLParam(r, "asset")
		var (
			price interface{ String() string }
			err   error
		)
		if unsafe {
			price, err = e.prices.PriceUnsafe(asset)
		} else {
			price, err = e.prices.Price(asset)
		}
		if err != nil {
			writeError(w, priceStatus(err), err)
			return
		}
		writeJSON(w, priceResponse{Asset: asset, Price: price.String(), Unsafe: unsafe})
	}
}

type healthResponse struct {
	Account         string `json:"account"`
	Debt            string `json:"debt"`
	HealthFactorBps string `json:"healthFactorBps,omitempty"`
	HealthError     string `json:"healthError,omitempty"`
	UnsafeBps       string `json:"unsafeHealthFactorBps"`
}

func (e *engines) handleHealth(w http.ResponseWriter, r *http.Request) {
	account, err := crypto.DecodeAddress(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	debt, err := e.debt.AccountDebt(account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	unsafeHF, err := e.debt.HealthFactorUnsafe(account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	resp := healthResponse{
		Account:   account.String(),
		Debt:      debt.String(),
		UnsafeBps: unsafeHF.String(),
	}
	// The safe-path reading can be refused by the circuit breaker; report the
	// refusal rather than hiding it.
	if safeHF, err := e.debt.HealthFactor(account); err != nil {
		resp.HealthError = err.Error()
	} else {
		resp.HealthFactorBps = safeHF.String()
	}
	writeJSON(w, resp)
}

type debtResponse struct {
	GlobalDebt  string `json:"globalDebt"`
	Reserves    string `json:"reserves"`
	TokenSupply string `json:"tokenSupply"`
}

func (e *engines) handleDebt(w http.ResponseWriter, r *http.Request) {
	globalDebt, err := e.debt.GlobalDebt()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	reserves, err := e.debt.Reserves()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	supply, err := e.token.Supply()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, debtResponse{
		GlobalDebt:  globalDebt.String(),
		Reserves:    reserves.String(),
		TokenSupply: supply.String(),
	})
}

type liquidationRecord struct {
	ID              string    `json:"id"`
	Liquidator      string    `json:"liquidator"`
	Borrower        string    `json:"borrower"`
	Asset           string    `json:"asset"`
	Repaid          string    `json:"repaid"`
	Seized          string    `json:"seized"`
	HealthFactorBps string    `json:"healthFactorBps"`
	Timestamp       time.Time `json:"timestamp"`
}

func (e *engines) handleLiquidations(w http.ResponseWriter, r *http.Request) {
	events := e.liquidation.RecentEvents()
	records := make([]liquidationRecord, 0, len(events))
	for _, event := range events {
		records = append(records, liquidationRecord{
			ID:              event.ID.String(),
			Liquidator:      event.Liquidator.String(),
			Borrower:        event.Borrower.String(),
			Asset:           event.Asset,
			Repaid:          event.Repaid.String(),
			Seized:          event.Seized.String(),
			HealthFactorBps: event.HealthFactorBps.String(),
			Timestamp:       event.Timestamp,
		})
	}
	writeJSON(w, records)
}

func priceStatus(err error) int {
	switch {
	case errors.Is(err, oracle.ErrFeedNotEnabled):
		return http.StatusNotFound
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrCircuitBreakerActive):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

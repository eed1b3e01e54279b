package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"nodesale/internal/failure"
	"nodesale/internal/sale"
)

func (s *Server) Initialize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MainSigningAuthority string `json:"main_signing_authority"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.Initialize(r.Context(), req.MainSigningAuthority); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"main_signing_authority": req.MainSigningAuthority})
}

func (s *Server) RotateMainKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Next string `json:"next"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.RotateMainKey(r.Context(), authority(r), req.Next); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) CreatePhase(w http.ResponseWriter, r *http.Request) {
	var req sale.CreatePhaseRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.RootKey = authority(r)
	phase, err := s.engine.CreatePhase(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, phase)
}

func (s *Server) GetPhase(w http.ResponseWriter, r *http.Request) {
	phase, err := s.engine.Phase(r.Context(), chi.URLParam(r, "phase"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, phase)
}

func (s *Server) UpdatePhase(w http.ResponseWriter, r *http.Request) {
	var req sale.UpdatePhaseRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Name = authority(r), chi.URLParam(r, "phase")
	phase, err := s.engine.UpdatePhase(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, phase)
}

func (s *Server) RotatePhaseKeys(w http.ResponseWriter, r *http.Request) {
	var req sale.RotatePhaseKeysRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.RootKey, req.Name = authority(r), chi.URLParam(r, "phase")
	if err := s.engine.RotatePhaseKeys(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, r, failure.Wrap(failure.ErrInvalidArgument, "limit %q", raw))
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := s.engine.Events(r.Context(), chi.URLParam(r, "phase"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) CreateTier(w http.ResponseWriter, r *http.Request) {
	var req sale.CreateTierRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Phase = authority(r), chi.URLParam(r, "phase")
	tier, err := s.engine.CreateTier(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tier)
}

func (s *Server) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := s.engine.Tiers(r.Context(), chi.URLParam(r, "phase"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

func (s *Server) GetTier(w http.ResponseWriter, r *http.Request) {
	tierID, err := tierParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tier, err := s.engine.Tier(r.Context(), chi.URLParam(r, "phase"), tierID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tier)
}

func (s *Server) UpdateTier(w http.ResponseWriter, r *http.Request) {
	tierID, err := tierParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req sale.UpdateTierRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Phase, req.TierID = authority(r), chi.URLParam(r, "phase"), tierID
	tier, err := s.engine.UpdateTier(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tier)
}

func (s *Server) ListItems(w http.ResponseWriter, r *http.Request) {
	tierID, err := tierParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.registry.Items(r.Context(), chi.URLParam(r, "phase"), tierID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) CreatePaymentToken(w http.ResponseWriter, r *http.Request) {
	var req sale.CreatePaymentTokenRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Phase = authority(r), chi.URLParam(r, "phase")
	token, err := s.engine.CreatePaymentToken(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (s *Server) ListPaymentTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.engine.PaymentTokens(r.Context(), chi.URLParam(r, "phase"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) GetPaymentToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.engine.PaymentToken(r.Context(), chi.URLParam(r, "phase"), chi.URLParam(r, "mint"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) UpdatePaymentToken(w http.ResponseWriter, r *http.Request) {
	var req sale.UpdatePaymentTokenRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Phase, req.Mint = authority(r), chi.URLParam(r, "phase"), chi.URLParam(r, "mint")
	token, err := s.engine.UpdatePaymentToken(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) Buy(w http.ResponseWriter, r *http.Request) {
	var req sale.BuyRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Phase = authority(r), chi.URLParam(r, "phase")
	order, err := s.engine.Buy(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) BuyWithToken(w http.ResponseWriter, r *http.Request) {
	var req sale.BuyWithTokenRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Phase = authority(r), chi.URLParam(r, "phase")
	order, err := s.engine.BuyWithToken(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) BuyDirect(w http.ResponseWriter, r *http.Request) {
	var req sale.BuyDirectRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Phase = authority(r), chi.URLParam(r, "phase")
	result, err := s.engine.BuyDirect(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) Airdrop(w http.ResponseWriter, r *http.Request) {
	var req sale.AirdropRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Phase = authority(r), chi.URLParam(r, "phase")
	result, err := s.engine.Airdrop(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) CreateOrderReceipt(w http.ResponseWriter, r *http.Request) {
	var req sale.CreateOrderReceiptRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.BackKey, req.Phase = authority(r), chi.URLParam(r, "phase")
	order, err := s.engine.CreateOrderReceipt(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) FillOrder(w http.ResponseWriter, r *http.Request) {
	var req sale.FillOrderRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.SigningKey, req.Phase = authority(r), chi.URLParam(r, "phase")
	result, err := s.engine.FillOrder(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	account, err := s.engine.User(r.Context(), chi.URLParam(r, "phase"), chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) GetUserTier(w http.ResponseWriter, r *http.Request) {
	tierID, err := tierParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.engine.UserTier(r.Context(), chi.URLParam(r, "phase"), tierID, chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.engine.Orders(r.Context(), chi.URLParam(r, "phase"), chi.URLParam(r, "user"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	order, err := s.engine.Order(r.Context(), chi.URLParam(r, "phase"), chi.URLParam(r, "user"), orderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, asset := chi.URLParam(r, "account"), chi.URLParam(r, "asset")
	amount, err := s.ledger.Balance(r.Context(), account, asset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "asset": asset, "amount": amount})
}

func (s *Server) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.ledger.Transfers(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transfers)
}

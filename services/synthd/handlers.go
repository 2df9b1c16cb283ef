package synthd

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"synthdollar/native/collateral"
	nativecommon "synthdollar/native/common"
	"synthdollar/native/oracle"
	"synthdollar/observability/metrics"
	"synthdollar/storage/audit"
)

const requestBodyLimit = 1 << 20 // 1 MiB

type mutationRequest struct {
	Account       string `json:"account"`
	Liquidator    string `json:"liquidator,omitempty"`
	Asset         string `json:"asset,omitempty"`
	AmountWei     string `json:"amountWei,omitempty"`
	CollateralWei string `json:"collateralWei,omitempty"`
	DebtWei       string `json:"debtWei,omitempty"`
}

type priceRequest struct {
	Symbol string `json:"symbol"`
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: RequestID(r.Context())})
}

func decodeRequest(r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestBodyLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return value, nil
}

// statusForEngineError maps the engine's error taxonomy onto HTTP statuses.
func statusForEngineError(err error) int {
	switch {
	case errors.Is(err, collateral.ErrInvalidAmount),
		errors.Is(err, collateral.ErrUnsupportedAsset),
		errors.Is(err, collateral.ErrZeroAddress):
		return http.StatusBadRequest
	case errors.Is(err, collateral.ErrInsufficientBalance),
		errors.Is(err, collateral.ErrBreaksHealthFactor),
		errors.Is(err, collateral.ErrHealthFactorOk),
		errors.Is(err, collateral.ErrHealthFactorNotImproved),
		errors.Is(err, collateral.ErrTransferFailed),
		errors.Is(err, collateral.ErrMintFailed),
		errors.Is(err, collateral.ErrBurnFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, nativecommon.ErrQuotaRequestsExceeded),
		errors.Is(err, nativecommon.ErrQuotaAmountExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, collateral.ErrOracle),
		errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrNoPrice):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// finishMutation records the audit row and metrics for a mutating operation
// and writes the HTTP response.
func (s *Server) finishMutation(w http.ResponseWriter, r *http.Request, op string, entry audit.Entry, err error) {
	entry.Operation = op
	entry.Detail = RequestID(r.Context())
	if err != nil {
		entry.Outcome = "error: " + err.Error()
	} else {
		entry.Outcome = "ok"
	}
	if s.audit != nil {
		if _, auditErr := s.audit.Record(r.Context(), entry); auditErr != nil {
			s.logger.Error("audit write failed", "op", op, "error", auditErr)
		}
	}

	if err != nil {
		metrics.Collateral().RecordOperation(op, "error")
		if errors.Is(err, nativecommon.ErrQuotaRequestsExceeded) || errors.Is(err, nativecommon.ErrQuotaAmountExceeded) {
			metrics.Collateral().RecordQuotaThrottle()
		}
		s.writeError(w, r, statusForEngineError(err), err)
		return
	}
	metrics.Collateral().RecordOperation(op, "ok")
	if op == "liquidate" {
		metrics.Collateral().RecordLiquidation()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "requestId": RequestID(r.Context())})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.AmountWei)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	opErr := s.engine.DepositCollateral(r.Context(), account, asset, amount)
	s.finishMutation(w, r, "deposit", audit.Entry{
		Account:   account.Hex(),
		Asset:     asset.Hex(),
		AmountWei: amount.String(),
	}, opErr)
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.AmountWei)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	opErr := s.engine.RedeemCollateral(r.Context(), account, asset, amount)
	s.finishMutation(w, r, "redeem", audit.Entry{
		Account:   account.Hex(),
		Asset:     asset.Hex(),
		AmountWei: amount.String(),
	}, opErr)
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.AmountWei)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	opErr := s.engine.MintDebt(r.Context(), account, amount)
	s.finishMutation(w, r, "mint", audit.Entry{
		Account:   account.Hex(),
		AmountWei: amount.String(),
	}, opErr)
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.AmountWei)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	opErr := s.engine.BurnDebt(r.Context(), account, amount)
	s.finishMutation(w, r, "burn", audit.Entry{
		Account:   account.Hex(),
		AmountWei: amount.String(),
	}, opErr)
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	collateralAmount, err := parseAmount(req.CollateralWei)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	debtAmount, err := parseAmount(req.DebtWei)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	opErr := s.engine.DepositAndMint(r.Context(), account, asset, collateralAmount, debtAmount)
	s.finishMutation(w, r, "open", audit.Entry{
		Account:   account.Hex(),
		Asset:     asset.Hex(),
		AmountWei: debtAmount.String(),
	}, opErr)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	collateralAmount, err := parseAmount(req.CollateralWei)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	debtAmount, err := parseAmount(req.DebtWei)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	opErr := s.engine.RedeemForBurn(r.Context(), account, asset, collateralAmount, debtAmount)
	s.finishMutation(w, r, "close", audit.Entry{
		Account:   account.Hex(),
		Asset:     asset.Hex(),
		AmountWei: debtAmount.String(),
	}, opErr)
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	asset, err := parseAddress(req.Asset)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	debtToCover, err := parseAmount(req.DebtWei)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	opErr := s.engine.Liquidate(r.Context(), liquidator, account, asset, debtToCover)
	s.finishMutation(w, r, "liquidate", audit.Entry{
		Account:   account.Hex(),
		Asset:     asset.Hex(),
		AmountWei: debtToCover.String(),
	}, opErr)
}

type accountResponse struct {
	Address            string `json:"address"`
	DebtWei            string `json:"debtWei"`
	CollateralValueWei string `json:"collateralValueWei"`
	HealthFactorWei    string `json:"healthFactorWei"`
	Liquidatable       bool   `json:"liquidatable"`
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	info, err := s.engine.AccountInfo(r.Context(), address)
	if err != nil {
		s.writeError(w, r, statusForEngineError(err), err)
		return
	}
	factor, err := s.engine.HealthFactor(r.Context(), address)
	if err != nil {
		s.writeError(w, r, statusForEngineError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		Address:            address.Hex(),
		DebtWei:            info.DebtUsd.String(),
		CollateralValueWei: info.CollateralValueUsd.String(),
		HealthFactorWei:    factor.String(),
		Liquidatable:       factor.Cmp(s.engine.Params().MinHealthFactor) < 0,
	})
}

func (s *Server) handleAccountHealth(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	factor, err := s.engine.HealthFactor(r.Context(), address)
	if err != nil {
		s.writeError(w, r, statusForEngineError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"healthFactorWei": factor.String()})
}

func (s *Server) handleSolvency(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.Solvency(r.Context())
	if err != nil {
		s.writeError(w, r, statusForEngineError(err), err)
		return
	}
	metrics.Collateral().SetSolvency(snapshot.CollateralValueUsd, snapshot.DebtTokenSupply)
	writeJSON(w, http.StatusOK, map[string]string{
		"collateralValueWei": snapshot.CollateralValueUsd.String(),
		"debtTokenSupplyWei": snapshot.DebtTokenSupply.String(),
	})
}

func (s *Server) handleParams(w http.ResponseWriter, _ *http.Request) {
	params := s.engine.Params()
	writeJSON(w, http.StatusOK, map[string]string{
		"liquidationThresholdPct": strconv.FormatUint(params.LiquidationThreshold, 10),
		"liquidationBonusPct":     strconv.FormatUint(params.LiquidationBonus, 10),
		"liquidationPrecision":    strconv.Itoa(collateral.LiquidationPrecision),
		"minHealthFactorWei":      params.MinHealthFactor.String(),
	})
}

func (s *Server) handleAssets(w http.ResponseWriter, _ *http.Request) {
	assets := s.engine.Assets()
	out := make([]string, len(assets))
	for i, asset := range assets {
		out[i] = asset.Hex()
	}
	writeJSON(w, http.StatusOK, map[string][]string{"assets": out})
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("audit trail disabled"))
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleSetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeRequest(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	feed, ok := s.feeds[strings.ToUpper(strings.TrimSpace(req.Symbol))]
	if !ok {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("no manual feed for symbol %q", req.Symbol))
		return
	}
	answer, err := parseAmount(req.Answer)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	feed.Set(answer)
	s.logger.Info("manual price updated", "symbol", req.Symbol, "answer", answer.String())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

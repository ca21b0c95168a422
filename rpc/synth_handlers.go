package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"synthd/crypto"
	nativecommon "synthd/native/common"
	"synthd/native/oracle"
	"synthd/native/synth"
)

const (
	codeEngineRejected    = -32030
	codePositionUnhealthy = -32031
	codeOracleUnavailable = -32032
	codeModulePaused      = -32033
)

type accountParams struct {
	Address string `json:"address"`
}

type collateralBalanceParams struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

type assetParams struct {
	Asset string `json:"asset"`
}

type assetAmountParams struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type depositParams struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type mintParams struct {
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type depositAndMintParams struct {
	User             string `json:"user"`
	Asset            string `json:"asset"`
	CollateralAmount string `json:"collateralAmount"`
	DebtAmount       string `json:"debtAmount"`
}

type liquidateParams struct {
	Liquidator  string `json:"liquidator"`
	User        string `json:"user"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type submitQuoteParams struct {
	Feed     string `json:"feed"`
	Price    string `json:"price"`
	Decimals uint8  `json:"decimals"`
}

type accountInformationResult struct {
	Address            string `json:"address"`
	DebtMinted         string `json:"debtMinted"`
	CollateralValueUsd string `json:"collateralValueUsd"`
	HealthFactor       string `json:"healthFactor"`
}

type balanceResult struct {
	Address string `json:"address,omitempty"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

type valueResult struct {
	UsdValue string `json:"usdValue"`
}

type amountResult struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type collateralListResult struct {
	Assets []collateralAssetResult `json:"assets"`
}

type collateralAssetResult struct {
	Symbol string `json:"symbol"`
	Feed   string `json:"feed"`
}

type txResult struct {
	Status string `json:"status"`
}

func decodeParams(req *RPCRequest, dst interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single parameter object")
	}
	return json.Unmarshal(req.Params[0], dst)
}

func parseAddress(field, value string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return crypto.Address{}, fmt.Errorf("%s required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid %s: %v", field, err)
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s: not a base-10 integer", field)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid %s: must be positive", field)
	}
	return amount, nil
}

// engineErrorStatus maps engine failures onto HTTP status and RPC error codes.
func engineErrorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, synth.ErrInvalidAmount),
		errors.Is(err, synth.ErrAssetNotSupported):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, synth.ErrBreaksHealthFactor):
		return http.StatusConflict, codePositionUnhealthy
	case errors.Is(err, synth.ErrInsufficientBalance),
		errors.Is(err, synth.ErrHealthFactorOK),
		errors.Is(err, synth.ErrHealthFactorNotImproved):
		return http.StatusConflict, codeEngineRejected
	case errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrUnavailable):
		return http.StatusServiceUnavailable, codeOracleUnavailable
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, codeModulePaused
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, id interface{}, op string, err error) string {
	status, code := engineErrorStatus(err)
	s.metrics.ObserveFailure(op, failureReason(err))
	writeError(w, status, id, code, err.Error(), nil)
	return "error"
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, synth.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, synth.ErrAssetNotSupported):
		return "asset_not_supported"
	case errors.Is(err, synth.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, synth.ErrBreaksHealthFactor):
		return "breaks_health_factor"
	case errors.Is(err, synth.ErrHealthFactorOK):
		return "health_factor_ok"
	case errors.Is(err, synth.ErrHealthFactorNotImproved):
		return "not_improved"
	case errors.Is(err, oracle.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, oracle.ErrUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	default:
		return "internal"
	}
}

func (s *Server) handleGetAccountInformation(w http.ResponseWriter, req *RPCRequest) string {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	info, err := s.engine.AccountInformation(addr)
	if err != nil {
		return s.writeEngineError(w, req.ID, "getAccountInformation", err)
	}
	hf, err := s.engine.HealthFactor(addr)
	if err != nil {
		return s.writeEngineError(w, req.ID, "getAccountInformation", err)
	}
	writeResult(w, req.ID, accountInformationResult{
		Address:            addr.String(),
		DebtMinted:         info.DebtMinted.String(),
		CollateralValueUsd: info.CollateralValueUSD.String(),
		HealthFactor:       hf.String(),
	})
	return "ok"
}

func (s *Server) handleGetHealthFactor(w http.ResponseWriter, req *RPCRequest) string {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	hf, err := s.engine.HealthFactor(addr)
	if err != nil {
		return s.writeEngineError(w, req.ID, "getHealthFactor", err)
	}
	writeResult(w, req.ID, map[string]string{"healthFactor": hf.String()})
	return "ok"
}

func (s *Server) handleGetCollateralBalance(w http.ResponseWriter, req *RPCRequest) string {
	var params collateralBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	balance, err := s.engine.CollateralBalance(addr, params.Asset)
	if err != nil {
		return s.writeEngineError(w, req.ID, "getCollateralBalance", err)
	}
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Asset: params.Asset, Amount: balance.String()})
	return "ok"
}

func (s *Server) handleGetTotalCollateralValue(w http.ResponseWriter, req *RPCRequest) string {
	var params accountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	value, err := s.engine.TotalCollateralValue(addr)
	if err != nil {
		return s.writeEngineError(w, req.ID, "getTotalCollateralValue", err)
	}
	writeResult(w, req.ID, valueResult{UsdValue: value.String()})
	return "ok"
}

func (s *Server) handleGetTotalDeposited(w http.ResponseWriter, req *RPCRequest) string {
	var params assetParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	total, err := s.engine.TotalDeposited(params.Asset)
	if err != nil {
		return s.writeEngineError(w, req.ID, "getTotalDeposited", err)
	}
	writeResult(w, req.ID, balanceResult{Asset: params.Asset, Amount: total.String()})
	return "ok"
}

func (s *Server) handleGetUsdValue(w http.ResponseWriter, req *RPCRequest) string {
	var params assetAmountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	value, err := s.engine.ValueOf(params.Asset, amount)
	if err != nil {
		return s.writeEngineError(w, req.ID, "getUsdValue", err)
	}
	writeResult(w, req.ID, valueResult{UsdValue: value.String()})
	return "ok"
}

func (s *Server) handleGetTokenAmountFromUsd(w http.ResponseWriter, req *RPCRequest) string {
	var params assetAmountParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	usd, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	amount, err := s.engine.AmountFromUSD(params.Asset, usd)
	if err != nil {
		return s.writeEngineError(w, req.ID, "getTokenAmountFromUsd", err)
	}
	writeResult(w, req.ID, amountResult{Asset: params.Asset, Amount: amount.String()})
	return "ok"
}

func (s *Server) handleListCollateral(w http.ResponseWriter, req *RPCRequest) string {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return "invalid"
	}
	assets := s.engine.Registry().Assets()
	result := collateralListResult{Assets: make([]collateralAssetResult, 0, len(assets))}
	for _, asset := range assets {
		result.Assets = append(result.Assets, collateralAssetResult{Symbol: asset.Symbol, Feed: asset.Feed})
	}
	writeResult(w, req.ID, result)
	return "ok"
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, req *RPCRequest) string {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	if err := s.engine.Deposit(user, params.Asset, amount); err != nil {
		return s.writeEngineError(w, req.ID, "depositCollateral", err)
	}
	s.metrics.ObserveOperation("depositCollateral")
	writeResult(w, req.ID, txResult{Status: "ok"})
	return "ok"
}

func (s *Server) handleMint(w http.ResponseWriter, req *RPCRequest) string {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	if err := s.engine.Mint(user, amount); err != nil {
		return s.writeEngineError(w, req.ID, "mint", err)
	}
	s.metrics.ObserveOperation("mint")
	writeResult(w, req.ID, txResult{Status: "ok"})
	return "ok"
}

func (s *Server) handleDepositCollateralAndMint(w http.ResponseWriter, req *RPCRequest) string {
	var params depositAndMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	collateralAmount, err := parseAmount("collateralAmount", params.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	debtAmount, err := parseAmount("debtAmount", params.DebtAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	if err := s.engine.DepositAndMint(user, params.Asset, collateralAmount, debtAmount); err != nil {
		return s.writeEngineError(w, req.ID, "depositCollateralAndMint", err)
	}
	s.metrics.ObserveOperation("depositCollateralAndMint")
	writeResult(w, req.ID, txResult{Status: "ok"})
	return "ok"
}

func (s *Server) handleRedeemCollateral(w http.ResponseWriter, req *RPCRequest) string {
	var params depositParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	if err := s.engine.Redeem(user, params.Asset, amount); err != nil {
		return s.writeEngineError(w, req.ID, "redeemCollateral", err)
	}
	s.metrics.ObserveOperation("redeemCollateral")
	writeResult(w, req.ID, txResult{Status: "ok"})
	return "ok"
}

func (s *Server) handleBurn(w http.ResponseWriter, req *RPCRequest) string {
	var params mintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	if err := s.engine.Burn(user, amount); err != nil {
		return s.writeEngineError(w, req.ID, "burn", err)
	}
	s.metrics.ObserveOperation("burn")
	writeResult(w, req.ID, txResult{Status: "ok"})
	return "ok"
}

func (s *Server) handleRedeemCollateralForBurn(w http.ResponseWriter, req *RPCRequest) string {
	var params depositAndMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	collateralAmount, err := parseAmount("collateralAmount", params.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	debtAmount, err := parseAmount("debtAmount", params.DebtAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	if err := s.engine.RedeemForBurn(user, params.Asset, collateralAmount, debtAmount); err != nil {
		return s.writeEngineError(w, req.ID, "redeemCollateralForBurn", err)
	}
	s.metrics.ObserveOperation("redeemCollateralForBurn")
	writeResult(w, req.ID, txResult{Status: "ok"})
	return "ok"
}

func (s *Server) handleLiquidate(w http.ResponseWriter, req *RPCRequest) string {
	var params liquidateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	liquidator, err := parseAddress("liquidator", params.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	user, err := parseAddress("user", params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	debtToCover, err := parseAmount("debtToCover", params.DebtToCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	if err := s.engine.Liquidate(liquidator, user, params.Asset, debtToCover); err != nil {
		return s.writeEngineError(w, req.ID, "liquidate", err)
	}
	s.metrics.ObserveOperation("liquidate")
	s.metrics.ObserveLiquidation()
	writeResult(w, req.ID, txResult{Status: "ok"})
	return "ok"
}

func (s *Server) handleSubmitQuote(w http.ResponseWriter, req *RPCRequest) string {
	if s.quotes == nil {
		writeError(w, http.StatusServiceUnavailable, req.ID, codeServerError, "manual quote source not configured", nil)
		return "error"
	}
	var params submitQuoteParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameters", err.Error())
		return "invalid"
	}
	feed := strings.TrimSpace(params.Feed)
	if feed == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "feed required", nil)
		return "invalid"
	}
	price, err := parseAmount("price", params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid"
	}
	if params.Decimals > 18 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "decimals must not exceed 18", nil)
		return "invalid"
	}
	s.quotes.Set(feed, price, params.Decimals, time.Now())
	writeResult(w, req.ID, txResult{Status: "ok"})
	return "ok"
}

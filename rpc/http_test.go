package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"synthd/crypto"
	"synthd/native/oracle"
	"synthd/native/synth"
	"synthd/native/token"
	"synthd/state"
	"synthd/storage"
)

const testToken = "test-rpc-token"

type testEnv struct {
	server *Server
	http   *httptest.Server
	engine *synth.Engine
	bank   *token.Bank
	prices *oracle.ManualSource
	user   crypto.Address
}

func unit(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("SYNTHD_RPC_TOKEN", testToken)

	registry, err := synth.NewRegistry([]string{"weth"}, []string{"eth-usd"})
	require.NoError(t, err)

	var custodyRaw, userRaw [20]byte
	custodyRaw[19] = 0x01
	userRaw[19] = 0x02
	custody := crypto.MustNewAddress(crypto.ModulePrefix, custodyRaw[:])
	user := crypto.MustNewAddress(crypto.AccountPrefix, userRaw[:])

	bank := token.NewBank()
	prices := oracle.NewManualSource()
	prices.Set("eth-usd", new(big.Int).Mul(big.NewInt(2000), big.NewInt(1e8)), 8, time.Now())

	engine, err := synth.NewEngine(custody, registry, bank.BindIssuer("susd", custody), prices)
	require.NoError(t, err)
	engine.SetState(state.NewLedger(storage.NewMemDB()))
	require.NoError(t, engine.BindCollateral("weth", bank.Bind("weth", custody)))

	server := NewServer(engine, nil)
	server.SetQuoteSource(prices)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	require.NoError(t, bank.Credit("weth", user, unit(10)))

	return &testEnv{server: server, http: ts, engine: engine, bank: bank, prices: prices, user: user}
}

func (env *testEnv) call(t *testing.T, method string, authed bool, params ...interface{}) (*http.Response, RPCResponse) {
	t.Helper()
	encoded := make([]json.RawMessage, 0, len(params))
	for _, param := range params {
		raw, err := json.Marshal(param)
		require.NoError(t, err)
		encoded = append(encoded, raw)
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
		"params":  encoded,
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, env.http.URL, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	resp, err := env.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func resultField(t *testing.T, resp RPCResponse, key string) string {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	value, ok := fields[key].(string)
	require.True(t, ok, "missing field %s in %v", key, fields)
	return value
}

func TestDepositAndQueryRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	httpResp, resp := env.call(t, "synth_depositCollateral", true, depositParams{
		User:   env.user.String(),
		Asset:  "weth",
		Amount: unit(2).String(),
	})
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, resp.Error)
	require.Equal(t, "ok", resultField(t, resp, "status"))

	httpResp, resp = env.call(t, "synth_getCollateralBalance", false, collateralBalanceParams{
		Address: env.user.String(),
		Asset:   "weth",
	})
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, resp.Error)
	require.Equal(t, unit(2).String(), resultField(t, resp, "amount"))

	_, resp = env.call(t, "synth_getTotalDeposited", false, assetParams{Asset: "weth"})
	require.Nil(t, resp.Error)
	require.Equal(t, unit(2).String(), resultField(t, resp, "amount"))
}

func TestAccountInformationIncludesHealthFactor(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.engine.DepositAndMint(env.user, "weth", unit(1), unit(1000)))

	httpResp, resp := env.call(t, "synth_getAccountInformation", false, accountParams{Address: env.user.String()})
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, resp.Error)
	require.Equal(t, unit(1000).String(), resultField(t, resp, "debtMinted"))
	require.Equal(t, unit(2000).String(), resultField(t, resp, "collateralValueUsd"))
	require.Equal(t, big.NewInt(1e18).String(), resultField(t, resp, "healthFactor"))
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	httpResp, resp := env.call(t, "synth_depositCollateral", false, depositParams{
		User:   env.user.String(),
		Asset:  "weth",
		Amount: unit(1).String(),
	})
	require.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// The rejected call must not touch the ledger.
	balance, err := env.engine.CollateralBalance(env.user, "weth")
	require.NoError(t, err)
	require.Zero(t, balance.Sign())
}

func TestEngineRejectionsMapToConflict(t *testing.T) {
	env := newTestEnv(t)

	httpResp, resp := env.call(t, "synth_mint", true, mintParams{
		User:   env.user.String(),
		Amount: unit(100).String(),
	})
	require.Equal(t, http.StatusConflict, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codePositionUnhealthy, resp.Error.Code)
}

func TestInvalidParameterHandling(t *testing.T) {
	env := newTestEnv(t)

	httpResp, resp := env.call(t, "synth_getHealthFactor", false, accountParams{Address: "not-bech32"})
	require.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	_, resp = env.call(t, "synth_depositCollateral", true, depositParams{
		User:   env.user.String(),
		Asset:  "weth",
		Amount: "-5",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	httpResp, resp = env.call(t, "synth_bogusMethod", false)
	require.Equal(t, http.StatusNotFound, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestListCollateral(t *testing.T) {
	env := newTestEnv(t)

	httpResp, resp := env.call(t, "synth_listCollateral", false)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, resp.Error)

	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result collateralListResult
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Assets, 1)
	require.Equal(t, "weth", result.Assets[0].Symbol)
	require.Equal(t, "eth-usd", result.Assets[0].Feed)
}

func TestSubmitQuoteUpdatesValuation(t *testing.T) {
	env := newTestEnv(t)

	httpResp, resp := env.call(t, "synth_submitQuote", true, submitQuoteParams{
		Feed:     "eth-usd",
		Price:    new(big.Int).Mul(big.NewInt(1500), big.NewInt(1e8)).String(),
		Decimals: 8,
	})
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, resp.Error)

	_, resp = env.call(t, "synth_getUsdValue", false, assetAmountParams{Asset: "weth", Amount: unit(1).String()})
	require.Nil(t, resp.Error)
	require.Equal(t, unit(1500).String(), resultField(t, resp, "usdValue"))
}

func TestLiquidationOverRPC(t *testing.T) {
	env := newTestEnv(t)

	var liqRaw [20]byte
	liqRaw[19] = 0x03
	liquidator := crypto.MustNewAddress(crypto.AccountPrefix, liqRaw[:])
	require.NoError(t, env.bank.Credit("weth", liquidator, unit(2)))

	require.NoError(t, env.engine.DepositAndMint(env.user, "weth", unit(1), unit(1000)))
	require.NoError(t, env.engine.DepositAndMint(liquidator, "weth", unit(2), unit(1000)))

	// Against a healthy target the engine refuses.
	httpResp, resp := env.call(t, "synth_liquidate", true, liquidateParams{
		Liquidator:  liquidator.String(),
		User:        env.user.String(),
		Asset:       "weth",
		DebtToCover: unit(1000).String(),
	})
	require.Equal(t, http.StatusConflict, httpResp.StatusCode)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEngineRejected, resp.Error.Code)

	// A price drawdown pushes the user position under water.
	env.prices.Set("eth-usd", new(big.Int).Mul(big.NewInt(1400), big.NewInt(1e8)), 8, time.Now())

	httpResp, resp = env.call(t, "synth_liquidate", true, liquidateParams{
		Liquidator:  liquidator.String(),
		User:        env.user.String(),
		Asset:       "weth",
		DebtToCover: unit(1000).String(),
	})
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Nil(t, resp.Error)

	_, resp = env.call(t, "synth_getAccountInformation", false, accountParams{Address: env.user.String()})
	require.Nil(t, resp.Error)
	require.Equal(t, "0", resultField(t, resp, "debtMinted"))
}

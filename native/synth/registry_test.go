package synth

import "testing"

func TestRegistryConstruction(t *testing.T) {
	reg, err := NewRegistry([]string{"WETH", " wbtc "}, []string{"eth-usd", "BTC-USD"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	assets := reg.Assets()
	if len(assets) != 2 {
		t.Fatalf("unexpected asset count: %d", len(assets))
	}
	if assets[0].Symbol != "weth" || assets[1].Symbol != "wbtc" {
		t.Fatalf("symbols not normalised in order: %+v", assets)
	}

	feed, ok := reg.Feed("WBTC")
	if !ok || feed != "btc-usd" {
		t.Fatalf("feed lookup failed: %q %v", feed, ok)
	}
	if !reg.Supports(" weth ") {
		t.Fatal("whitespace variant must resolve")
	}
	if reg.Supports("doge") {
		t.Fatal("unregistered asset must not resolve")
	}
}

func TestRegistryRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name    string
		symbols []string
		feeds   []string
	}{
		{"mismatched lengths", []string{"weth"}, []string{"eth-usd", "btc-usd"}},
		{"empty lists", nil, nil},
		{"blank symbol", []string{" "}, []string{"eth-usd"}},
		{"blank feed", []string{"weth"}, []string{""}},
		{"duplicate symbol", []string{"weth", "WETH"}, []string{"eth-usd", "eth-usd"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRegistry(tc.symbols, tc.feeds); err == nil {
				t.Fatal("expected construction to fail")
			}
		})
	}
}

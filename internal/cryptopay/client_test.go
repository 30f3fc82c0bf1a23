package cryptopay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"casino-payments-go/internal/models"
	"casino-payments-go/internal/store"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(models.ProviderConfig{
		Token:          "test-token",
		BaseURL:        server.URL,
		RequestTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, server
}

func TestNewClient_MissingToken(t *testing.T) {
	_, err := NewClient(models.ProviderConfig{BaseURL: "https://pay.crypt.bot/api"})
	if err == nil {
		t.Fatal("Expected error for missing token")
	}
}

func TestGetMe(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getMe" {
			t.Errorf("Expected path /getMe, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Crypto-Pay-API-Token"); got != "test-token" {
			t.Errorf("Expected auth token header, got %q", got)
		}
		w.Write([]byte(`{"ok":true,"result":{"app_id":12345,"name":"casino-app"}}`))
	})

	identity, err := client.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe failed: %v", err)
	}
	if identity.AppID != 12345 || identity.Name != "casino-app" {
		t.Errorf("Unexpected identity: %+v", identity)
	}
}

func TestCall_ProviderRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":{"code":400,"name":"ASSET_NOT_FOUND"}}`))
	})

	_, err := client.GetMe(context.Background())
	if !errors.Is(err, store.ErrProviderRejected) {
		t.Fatalf("Expected ErrProviderRejected, got %v", err)
	}
}

func TestCall_TransientCodeIsUnavailable(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503} {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"ok":    false,
				"error": map[string]any{"code": code, "name": "TRY_AGAIN"},
			})
		})

		_, err := client.GetMe(context.Background())
		if !errors.Is(err, store.ErrProviderUnavailable) {
			t.Errorf("Code %d: expected ErrProviderUnavailable, got %v", code, err)
		}
	}
}

func TestCall_TransportFailure(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.GetMe(context.Background())
	if !errors.Is(err, store.ErrProviderUnavailable) {
		t.Fatalf("Expected ErrProviderUnavailable on transport failure, got %v", err)
	}
}

func TestCall_MalformedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	})

	_, err := client.GetMe(context.Background())
	if !errors.Is(err, store.ErrProviderUnavailable) {
		t.Fatalf("Expected ErrProviderUnavailable on malformed body, got %v", err)
	}
}

func TestCreateInvoice(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/createInvoice" {
			t.Errorf("Expected path /createInvoice, got %s", r.URL.Path)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request body: %v", err)
		}
		if req["asset"] != "LTC" || req["amount"] != "0.12500000" {
			t.Errorf("Unexpected invoice request: %+v", req)
		}
		if req["allow_comments"] != false || req["allow_anonymous"] != false {
			t.Errorf("Comments and anonymous payments must be disabled: %+v", req)
		}
		if req["expires_in"] != float64(3600) {
			t.Errorf("Expected expires_in 3600, got %v", req["expires_in"])
		}

		w.Write([]byte(`{"ok":true,"result":{
			"invoice_id":98765,
			"status":"active",
			"asset":"LTC",
			"amount":"0.12500000",
			"pay_url":"https://t.me/CryptoBot?start=abc",
			"mini_app_invoice_url":"https://t.me/CryptoBot/app?startapp=abc"
		}}`))
	})

	inv, err := client.CreateInvoice(context.Background(), CreateInvoiceParams{
		Asset:         models.AssetLTC,
		Amount:        "0.12500000",
		Description:   "Casino deposit - $10.00 USD",
		HiddenMessage: "42",
		ExpiresIn:     3600,
	})
	if err != nil {
		t.Fatalf("CreateInvoice failed: %v", err)
	}
	if inv.InvoiceID != 98765 {
		t.Errorf("Expected invoice id 98765, got %d", inv.InvoiceID)
	}
	if inv.Status != models.ProviderStatusActive {
		t.Errorf("Expected active status, got %s", inv.Status)
	}
	if inv.PayURL == "" || inv.MiniAppInvoiceURL == "" {
		t.Errorf("Expected payment URLs, got %+v", inv)
	}
}

func TestGetInvoices_Paging(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("status") != "paid" {
			t.Errorf("Expected status=paid, got %q", q.Get("status"))
		}
		if q.Get("offset") != "100" || q.Get("count") != "50" {
			t.Errorf("Unexpected paging params: %v", q)
		}
		w.Write([]byte(`{"ok":true,"result":{"items":[
			{"invoice_id":1,"status":"paid","asset":"TON","amount":"2.5"},
			{"invoice_id":2,"status":"paid","asset":"LTC","amount":"0.1"}
		]}}`))
	})

	invoices, err := client.GetInvoices(context.Background(), "paid", 100, 50)
	if err != nil {
		t.Fatalf("GetInvoices failed: %v", err)
	}
	if len(invoices) != 2 {
		t.Fatalf("Expected 2 invoices, got %d", len(invoices))
	}
	if invoices[0].InvoiceID != 1 || invoices[1].InvoiceID != 2 {
		t.Errorf("Unexpected invoice ids: %+v", invoices)
	}
}

func TestGetExchangeRates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true,"result":[
			{"source":"LTC","target":"USD","rate":"80.5","is_valid":true},
			{"source":"TON","target":"EUR","rate":"4.9","is_valid":true}
		]}`))
	})

	rates, err := client.GetExchangeRates(context.Background())
	if err != nil {
		t.Fatalf("GetExchangeRates failed: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("Expected 2 rates, got %d", len(rates))
	}
	if rates[0].Source != "LTC" || rates[0].Rate != "80.5" || !rates[0].IsValid {
		t.Errorf("Unexpected rate: %+v", rates[0])
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	blockdomain "github.com/voltra-energy/voltra/internal/block/domain"
	blockrepository "github.com/voltra-energy/voltra/internal/block/repository"
	blockservice "github.com/voltra-energy/voltra/internal/block/service"
	catalogdomain "github.com/voltra-energy/voltra/internal/catalog/domain"
	catalogrepository "github.com/voltra-energy/voltra/internal/catalog/repository"
	catalogservice "github.com/voltra-energy/voltra/internal/catalog/service"
	"github.com/voltra-energy/voltra/internal/clock"
	"github.com/voltra-energy/voltra/internal/config"
	orderdomain "github.com/voltra-energy/voltra/internal/order/domain"
	orderrepository "github.com/voltra-energy/voltra/internal/order/repository"
	orderservice "github.com/voltra-energy/voltra/internal/order/service"
	"github.com/voltra-energy/voltra/internal/party"
	"github.com/voltra-energy/voltra/internal/protocol/callback"
	"github.com/voltra-energy/voltra/internal/protocol/dedup"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
	protocolrepository "github.com/voltra-energy/voltra/internal/protocol/repository"
	protocolservice "github.com/voltra-energy/voltra/internal/protocol/service"
	"github.com/voltra-energy/voltra/internal/protocol/worker"
	"github.com/voltra-energy/voltra/internal/trust"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testServer struct {
	srv        *Server
	catalog    catalogdomain.Service
	orders     orderdomain.Service
	ledger     blockdomain.Ledger
	principals *party.StaticLookup
	node       *snowflake.Node
	clock      *clock.FakeClock
	db         *gorm.DB
}

func newTestServer(t *testing.T, name string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(10000)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Provider{},
		&catalogdomain.CatalogItem{},
		&catalogdomain.Offer{},
		&blockdomain.OfferBlock{},
		&orderdomain.Order{},
		&protocoldomain.Event{},
	))

	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	holder, err := config.NewTradingConfigHolder()
	require.NoError(t, err)

	cfg := config.Config{
		Environment: "test",
		ListenAddr:  ":0",
		Protocol: config.ProtocolConfig{
			CallbackTimeout: 5 * time.Second,
			DedupTTL:        15 * time.Minute,
			WorkerQueueSize: 32,
		},
	}

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	blockRepo := blockrepository.Provide()
	ledger := blockservice.NewLedger(blockservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    blockRepo,
		Trading: holder,
	})

	catalogSvc := catalogservice.New(catalogservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		Repo:    catalogrepository.Provide(),
		Blocks:  blockRepo,
		Ledger:  ledger,
		Trading: holder,
	})

	engine := trust.NewEngine(holder)
	orderSvc := orderservice.New(orderservice.Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Repo:    orderrepository.Provide(),
		Blocks:  blockRepo,
		Catalog: catalogSvc,
		Trust:   engine,
		Trading: holder,
	})

	events := protocolrepository.Provide()
	workers := worker.NewDispatcher(zap.NewNop(), cfg.Protocol.WorkerQueueSize)
	workers.Start(2)
	t.Cleanup(workers.Stop)

	principals := party.NewStaticLookup()

	driver := protocolservice.New(protocolservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		Config:     cfg,
		Trading:    holder,
		Events:     events,
		Dedup:      dedup.New(dedup.Params{DB: db, Config: cfg, Events: events}),
		Callbacks:  callback.New(callback.Params{Log: zap.NewNop(), Config: cfg}),
		Workers:    workers,
		Catalog:    catalogSvc,
		Ledger:     ledger,
		Orders:     orderSvc,
		Trust:      engine,
		Principals: principals,
		Wallet:     party.UnlimitedWallet{},
	})

	srv := NewServer(ServerParams{
		Gin:        NewEngine(zap.NewNop()),
		Cfg:        cfg,
		Driver:     driver,
		CatalogSvc: catalogSvc,
		OrderSvc:   orderSvc,
		Ledger:     ledger,
	})

	return &testServer{
		srv:        srv,
		catalog:    catalogSvc,
		orders:     orderSvc,
		ledger:     ledger,
		principals: principals,
		node:       node,
		clock:      fake,
		db:         db,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	ts.srv.Engine().ServeHTTP(w, req)
	return w
}

func (ts *testServer) seedOffer(t *testing.T, qty int) *catalogdomain.Offer {
	t.Helper()

	start := ts.clock.Now()
	providerID := ts.node.Generate().String()

	w := ts.do(t, http.MethodPost, "/sync/providers", catalogdomain.SyncProviderRequest{
		ID:   providerID,
		Name: "Stadtwerke Flusskraft",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	itemID := ts.node.Generate().String()
	w = ts.do(t, http.MethodPost, "/sync/items", catalogdomain.SyncItemRequest{
		ID:           itemID,
		ProviderID:   providerID,
		SourceType:   "HYDRO",
		AvailableQty: qty,
		WindowStart:  start,
		WindowEnd:    start.Add(24 * time.Hour),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	offerID := ts.node.Generate().String()
	w = ts.do(t, http.MethodPost, "/sync/offers", catalogdomain.SyncOfferRequest{
		ID:          offerID,
		ItemID:      itemID,
		ProviderID:  providerID,
		PriceAmount: 450,
		Currency:    "EUR",
		MaxQty:      qty,
		WindowStart: start,
		WindowEnd:   start.Add(24 * time.Hour),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var offer catalogdomain.Offer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &offer))
	return &offer
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "srv_health")
	w := ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCatalogRoundTrip(t *testing.T) {
	ts := newTestServer(t, "srv_catalog")
	offer := ts.seedOffer(t, 25)

	w := ts.do(t, http.MethodGet, "/catalog", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var catalog catalogdomain.Catalog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &catalog))
	require.Len(t, catalog.Providers, 1)
	require.Len(t, catalog.Providers[0].Items, 1)
	require.Len(t, catalog.Providers[0].Items[0].Offers, 1)
	got := catalog.Providers[0].Items[0].Offers[0]
	assert.Equal(t, offer.ID, got.ID)
	assert.Equal(t, 25, got.MaxQuantity)
}

func TestSyncItem_UnknownProviderIs404(t *testing.T) {
	ts := newTestServer(t, "srv_item_404")
	start := ts.clock.Now()

	w := ts.do(t, http.MethodPost, "/sync/items", catalogdomain.SyncItemRequest{
		ID:           ts.node.Generate().String(),
		ProviderID:   ts.node.Generate().String(),
		SourceType:   "SOLAR",
		AvailableQty: 5,
		WindowStart:  start,
		WindowEnd:    start.Add(time.Hour),
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteOffer_ConflictWhileCommitted(t *testing.T) {
	ts := newTestServer(t, "srv_delete_conflict")
	offer := ts.seedOffer(t, 10)

	_, err := ts.ledger.Claim(context.Background(), offer.ID, 3, ts.node.Generate(), "txn-held")
	require.NoError(t, err)

	w := ts.do(t, http.MethodDelete, "/sync/offers/"+offer.ID.String(), nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestProtocol_ConfirmAcksAndOpensOrder(t *testing.T) {
	ts := newTestServer(t, "srv_confirm")
	offer := ts.seedOffer(t, 20)

	buyer := party.Principal{ID: ts.node.Generate(), TrustScore: 0.9, DeclaredCapacity: 100}
	ts.principals.Register("tok-frieda", buyer)

	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sink.Close)

	env := protocoldomain.Envelope{
		Context: protocoldomain.Context{
			TransactionID: "txn-http-confirm",
			MessageID:     uuid.NewString(),
			CallbackURI:   sink.URL,
			Timestamp:     time.Now().UTC(),
		},
	}
	payload, _ := json.Marshal(protocoldomain.ConfirmPayload{OfferID: offer.ID.String(), Quantity: 4})
	env.Message = payload

	w := ts.do(t, http.MethodPost, "/protocol/confirm", env, map[string]string{
		"Authorization": "Bearer tok-frieda",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var ack protocoldomain.Ack
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, protocoldomain.StatusAck, ack.Status)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if order, err := ts.orders.GetByTransaction(context.Background(), "txn-http-confirm"); err == nil {
			assert.Equal(t, orderdomain.StatusActive, order.Status)
			assert.Equal(t, 4, order.Quantity)
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("order was not opened")
}

func TestProtocol_NackCarriesError(t *testing.T) {
	ts := newTestServer(t, "srv_nack")

	env := protocoldomain.Envelope{
		Context: protocoldomain.Context{
			TransactionID: "txn-nack",
			MessageID:     uuid.NewString(),
			CallbackURI:   "http://127.0.0.1:1/callbacks",
		},
		Message: json.RawMessage(`{}`),
	}

	w := ts.do(t, http.MethodPost, "/protocol/upgrade", env, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var ack protocoldomain.Ack
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, protocoldomain.StatusNack, ack.Status)
	require.NotNil(t, ack.Error)
}

func TestProtocol_UnknownPrincipalIs401(t *testing.T) {
	ts := newTestServer(t, "srv_401")
	offer := ts.seedOffer(t, 5)

	env := protocoldomain.Envelope{
		Context: protocoldomain.Context{
			TransactionID: "txn-401",
			MessageID:     uuid.NewString(),
			CallbackURI:   "http://127.0.0.1:1/callbacks",
		},
	}
	payload, _ := json.Marshal(protocoldomain.ConfirmPayload{OfferID: offer.ID.String(), Quantity: 1})
	env.Message = payload

	w := ts.do(t, http.MethodPost, "/protocol/confirm", env, map[string]string{
		"Authorization": "Bearer tok-nobody",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetOrder_NotFound(t *testing.T) {
	ts := newTestServer(t, "srv_order_404")
	w := ts.do(t, http.MethodGet, "/orders/"+ts.node.Generate().String(), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransactionStatus_Unknown404(t *testing.T) {
	ts := newTestServer(t, "srv_txn_404")
	w := ts.do(t, http.MethodGet, "/transactions/txn-missing/status", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerification_CompletesDeliveredOrder(t *testing.T) {
	ts := newTestServer(t, "srv_verify")
	offer := ts.seedOffer(t, 10)

	orderID := ts.node.Generate()
	blocks, err := ts.ledger.Claim(context.Background(), offer.ID, 2, orderID, "txn-verify")
	require.NoError(t, err)

	order, err := ts.orders.Create(context.Background(), orderdomain.CreateInput{
		ID:            orderID,
		BuyerID:       ts.node.Generate(),
		ProviderID:    offer.ProviderID,
		OfferID:       offer.ID,
		TransactionID: "txn-verify",
		Quantity:      2,
		TotalPrice:    900,
		Currency:      "EUR",
		DeliveryAt:    ts.clock.Now().Add(6 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, ts.ledger.Finalize(context.Background(), blocks, order.ID))

	for _, status := range []string{"DELIVERING", "DELIVERED"} {
		w := ts.do(t, http.MethodPost, "/orders/"+order.ID.String()+"/transition", transitionRequest{Status: status}, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := ts.do(t, http.MethodPost, "/verification", party.VerificationEvent{
		OrderID:   order.ID,
		Expected:  2,
		Delivered: 2,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := ts.orders.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusCompleted, got.Status)
}

func TestTransition_IllegalIs422(t *testing.T) {
	ts := newTestServer(t, "srv_transition_422")
	offer := ts.seedOffer(t, 10)

	orderID := ts.node.Generate()
	_, err := ts.ledger.Claim(context.Background(), offer.ID, 1, orderID, "txn-illegal")
	require.NoError(t, err)

	order, err := ts.orders.Create(context.Background(), orderdomain.CreateInput{
		ID:            orderID,
		BuyerID:       ts.node.Generate(),
		ProviderID:    offer.ProviderID,
		OfferID:       offer.ID,
		TransactionID: "txn-illegal",
		Quantity:      1,
		TotalPrice:    450,
		Currency:      "EUR",
		DeliveryAt:    ts.clock.Now().Add(6 * time.Hour),
	})
	require.NoError(t, err)

	w := ts.do(t, http.MethodPost, "/orders/"+order.ID.String()+"/transition", transitionRequest{Status: "COMPLETED"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSyncBlockStatuses_BulkAndReplay(t *testing.T) {
	ts := newTestServer(t, "srv_block_sync")
	offer := ts.seedOffer(t, 5)

	ids, err := ts.ledger.Claim(context.Background(), offer.ID, 2, ts.node.Generate(), "txn-bulk")
	require.NoError(t, err)

	body := syncBlockStatusRequest{Updates: []blockStatusEntry{
		{BlockID: ids[0].String(), Status: "sold"},
		{BlockID: ids[1].String(), Status: "AVAILABLE"},
	}}

	w := ts.do(t, http.MethodPost, "/sync/blocks/status", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var outcome blockdomain.SyncOutcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, 2, outcome.Updated)

	counts, err := ts.ledger.Counts(context.Background(), offer.ID)
	require.NoError(t, err)
	assert.Equal(t, blockdomain.StatusCounts{Available: 4, Reserved: 0, Sold: 1}, counts)

	w = ts.do(t, http.MethodPost, "/sync/blocks/status", body, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Zero(t, outcome.Updated)
	assert.Equal(t, 2, outcome.Unchanged)
}

func TestSyncBlockStatuses_RejectsGarbage(t *testing.T) {
	ts := newTestServer(t, "srv_block_sync_bad")

	w := ts.do(t, http.MethodPost, "/sync/blocks/status", syncBlockStatusRequest{
		Updates: []blockStatusEntry{{BlockID: "not-a-snowflake", Status: "SOLD"}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/sync/blocks/status", syncBlockStatusRequest{
		Updates: []blockStatusEntry{{BlockID: ts.node.Generate().String(), Status: "BURNED"}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

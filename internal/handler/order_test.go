package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/order"
	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/organization"
	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/reference"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	mu   sync.Mutex
	byID map[string]*order.Order
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: make(map[string]*order.Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *o
	m.byID[o.ID] = &saved
	return nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *o
	m.byID[o.ID] = &saved
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]order.Order, 0, len(m.byID))
	for _, o := range m.byID {
		list = append(list, *o)
	}
	return list, nil
}

type mockOrgRepo struct {
	mu      sync.Mutex
	counter int64
	findErr error
}

func (m *mockOrgRepo) FindOrCreateByExternalID(_ context.Context, externalID string) (*organization.Organization, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return &organization.Organization{
		ID:         "org-" + externalID,
		ExternalID: externalID,
		ShortCode:  organization.ShortCodeFromExternalID(externalID),
	}, nil
}

func (m *mockOrgRepo) NextReferenceID(_ context.Context, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return m.counter, nil
}

// --- Helpers ---

func newTestServer(orgs *mockOrgRepo) (*httptest.Server, *mockOrderRepo) {
	orders := newMockOrderRepo()
	svc := order.NewService(orders, orgs, reference.NewAllocator(orgs), order.NewCalculator("EUR"))

	mux := http.NewServeMux()
	New(svc).Register(mux)
	return httptest.NewServer(mux), orders
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeOrder(t *testing.T, resp *http.Response) orderResponse {
	t.Helper()
	defer resp.Body.Close()
	var o orderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&o))
	return o
}

// --- Tests ---

func TestCreateOrder(t *testing.T) {
	srv, _ := newTestServer(&mockOrgRepo{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/orders", `{
		"targetOrganization": "002851234",
		"items": [
			{"price": "100.00", "priceCurrency": "EUR", "quantity": 1, "taxes": [{"percentage": 21}]},
			{"price": "50.00", "priceCurrency": "EUR", "quantity": 1, "taxes": [{"percentage": 21}]}
		]
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	o := decodeOrder(t, resp)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, int64(1), o.ReferenceID)
	wantRef := fmt.Sprintf("1234-%d-1", time.Now().Year())
	assert.Equal(t, wantRef, o.Reference)
	assert.Equal(t, "150.00", o.Price)
	assert.Equal(t, "EUR", o.PriceCurrency)
	assert.Equal(t, "31.50", o.Taxes["21"])
	assert.Len(t, o.Items, 2)
}

func TestCreateOrder_MinorUnitPrices(t *testing.T) {
	srv, _ := newTestServer(&mockOrgRepo{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/orders", `{
		"targetOrganization": "002851234",
		"items": [{"price": 1250, "priceCurrency": "EUR", "quantity": 2, "taxes": []}]
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	o := decodeOrder(t, resp)
	assert.Equal(t, "25.00", o.Price)
	assert.Equal(t, "12.50", o.Items[0].Price)
}

func TestCreateOrder_InvalidAmount(t *testing.T) {
	srv, _ := newTestServer(&mockOrgRepo{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/orders", `{
		"targetOrganization": "002851234",
		"items": [{"price": "twelve", "priceCurrency": "EUR", "quantity": 1}]
	}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrder_CurrencyMismatch(t *testing.T) {
	srv, _ := newTestServer(&mockOrgRepo{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/orders", `{
		"targetOrganization": "002851234",
		"items": [
			{"price": "10.00", "priceCurrency": "EUR", "quantity": 1},
			{"price": "10.00", "priceCurrency": "USD", "quantity": 1}
		]
	}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrder_OrganizationResolutionFailed(t *testing.T) {
	srv, _ := newTestServer(&mockOrgRepo{findErr: errors.New("registry unavailable")})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/orders", `{
		"targetOrganization": "002851234",
		"items": [{"price": "10.00", "priceCurrency": "EUR", "quantity": 1}]
	}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCreateOrder_BadJSON(t *testing.T) {
	srv, _ := newTestServer(&mockOrgRepo{})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/orders", `{not json`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetOrder_NotFound(t *testing.T) {
	srv, _ := newTestServer(&mockOrgRepo{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/orders/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateOrder_RecomputesTotalsKeepsReference(t *testing.T) {
	srv, _ := newTestServer(&mockOrgRepo{})
	defer srv.Close()

	created := decodeOrder(t, postJSON(t, srv.URL+"/api/orders", `{
		"targetOrganization": "002851234",
		"items": [{"price": "100.00", "priceCurrency": "EUR", "quantity": 1, "taxes": [{"percentage": 21}]}]
	}`))

	body := `{"items": [{"price": "12.50", "priceCurrency": "EUR", "quantity": 2, "taxes": [{"percentage": 9}]}]}`
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/orders/"+created.ID, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeOrder(t, resp)
	assert.Equal(t, created.Reference, updated.Reference)
	assert.Equal(t, created.ReferenceID, updated.ReferenceID)
	assert.Equal(t, "25.00", updated.Price)
	assert.Equal(t, "2.25", updated.Taxes["9"])
	assert.NotContains(t, updated.Taxes, "21")
}

func TestListOrders(t *testing.T) {
	srv, _ := newTestServer(&mockOrgRepo{})
	defer srv.Close()

	for range 2 {
		resp := postJSON(t, srv.URL+"/api/orders", `{
			"targetOrganization": "002851234",
			"items": [{"price": "10.00", "priceCurrency": "EUR", "quantity": 1}]
		}`)
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/orders")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []orderResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 2)
}

package dataflows

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexQuant/models"
)

func newTestEastmoney(t *testing.T, handler http.HandlerFunc) *EastmoneyClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEastmoneyClient(WithEastmoneyHosts(srv.URL, srv.URL), WithEastmoneyRetries(0))
}

func TestSecid(t *testing.T) {
	cases := map[string]string{
		"600000":    "1.600000",
		"688981":    "1.688981",
		"510300":    "1.510300",
		"000001":    "0.000001",
		"sh000001":  "1.000001",
		"SZ399006":  "0.399006",
		"000001.SH": "1.000001",
		"399001":    "0.399001",
		"000858":    "0.000858",
		"300750":    "0.300750",
		"600519.SH": "1.600519",
	}
	for code, want := range cases {
		assert.Equal(t, want, Secid(code), code)
	}
}

func TestGetQuote(t *testing.T) {
	em := newTestEastmoney(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/qt/ulist.np/get", r.URL.Path)
		assert.Equal(t, "1.600000", r.URL.Query().Get("secids"))
		_, _ = w.Write([]byte(`{"rc":0,"data":{"total":1,"diff":[
			{"f12":"600000","f14":"浦发银行","f2":8.52,"f3":1.31,"f115":5.2,"f23":"0.41","f20":250000000000,"f9":"-"}
		]}}`))
	})

	q, err := em.GetQuote(context.Background(), "600000")
	require.NoError(t, err)
	assert.Equal(t, "浦发银行", q.Name)
	assert.InDelta(t, 8.52, q.Price, 1e-9)
	assert.InDelta(t, 0.41, q.PB, 1e-9)
	assert.InDelta(t, 2500, q.MarketCapB, 1e-9)
	assert.Zero(t, q.PE)
}

func TestGetQuoteEmpty(t *testing.T) {
	em := newTestEastmoney(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rc":0,"data":null}`))
	})
	_, err := em.GetQuote(context.Background(), "600000")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestGetCandles(t *testing.T) {
	em := newTestEastmoney(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/qt/stock/kline/get", r.URL.Path)
		assert.Equal(t, "102", r.URL.Query().Get("klt"))
		assert.Equal(t, "3", r.URL.Query().Get("lmt"))
		_, _ = w.Write([]byte(`{"rc":0,"data":{"code":"000858","klines":[
			"2024-01-02,150.0,152.0,153.1,149.5,1000,152000.0,2.4,1.33,2.0,0.5",
			"broken",
			"2024-01-03,152.0,151.0,152.5,150.2,900,136000.0,1.5,-0.66,-1.0,0.4"
		]}}`))
	})

	candles, err := em.GetCandles(context.Background(), "000858", models.IntervalWeekly, 3)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "2024-01-02", candles[0].Date)
	assert.InDelta(t, 152.0, candles[0].Close, 1e-9)
	assert.InDelta(t, 153.1, candles[0].High, 1e-9)
	assert.InDelta(t, -0.66, candles[1].ChangePct, 1e-9)
}

func TestSectorRankingAcceptsJSONP(t *testing.T) {
	em := newTestEastmoney(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "m:90+t:2+f:!50", r.URL.Query().Get("fs"))
		assert.Equal(t, "f62", r.URL.Query().Get("fid"))
		_, _ = w.Write([]byte(`j({"rc":0,"data":{"diff":[{"f12":"BK0477","f14":"酿酒行业","f3":2.1,"f62":1500000000,"f184":3.2}]}});`))
	})

	sectors, err := em.GetSectorRanking(context.Background())
	require.NoError(t, err)
	require.Len(t, sectors, 1)
	assert.Equal(t, "BK0477", sectors[0].Code)
	assert.InDelta(t, 1.5e9, sectors[0].NetInflow, 1)
}

func TestSectorConstituentsTagsSector(t *testing.T) {
	em := newTestEastmoney(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "b:BK0477", r.URL.Query().Get("fs"))
		assert.Equal(t, "8", r.URL.Query().Get("pz"))
		_, _ = w.Write([]byte(`{"rc":0,"data":{"diff":[
			{"f12":"000858","f14":"五粮液","f2":140.1,"f3":2.5,"f62":320000000,"f115":18.4,"f23":4.1,"f20":543000000000},
			{"f12":"","f14":"bad row"}
		]}}`))
	})

	got, err := em.GetSectorConstituents(context.Background(), "BK0477", 8)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BK0477", got[0].Sector)
	assert.InDelta(t, 5430, got[0].MarketCapB, 1e-9)
	assert.InDelta(t, 18.4, got[0].PETTM, 1e-9)
}

func TestHTTPErrorStatus(t *testing.T) {
	em := newTestEastmoney(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := em.GetMarketWideRanking(context.Background(), 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestRouterDispatch(t *testing.T) {
	em := newTestEastmoney(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"rc":0,"data":{"diff":[{"f12":"600000","f2":1}]}}`))
	})
	r := NewRouter(em)

	_, err := r.GetQuote(context.Background(), "600000")
	require.NoError(t, err)

	_, err = r.GetQuote(context.Background(), "700.HK")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = r.GetQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMarketOf(t *testing.T) {
	assert.Equal(t, MarketCN, MarketOf("600000"))
	assert.Equal(t, MarketHK, MarketOf("700.hk"))
	assert.Equal(t, MarketUS, MarketOf("AAPL"))
	assert.Equal(t, MarketUS, MarketOf("TSLA.US"))
	assert.Equal(t, MarketCN, MarketOf("sh000001"))
	assert.Equal(t, MarketCN, MarketOf("600519.SH"))
	assert.True(t, IsAShare("300750"))
	assert.False(t, IsAShare("700.HK"))
}

package dataflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/dyike/CortexQuant/internal/logger"
	"github.com/dyike/CortexQuant/models"
)

const (
	eastmoneyQuoteHost   = "https://push2.eastmoney.com"
	eastmoneyHistoryHost = "https://push2his.eastmoney.com"
	eastmoneyUT          = "fa5fd1943c7b386f172d6893dbbd1d0c"

	industrySectors = "m:90+t:2+f:!50"
	// 深主板, 创业板, 沪主板, 科创板
	mainBoards = "m:0+t:6,m:0+t:80,m:1+t:2,m:1+t:23"

	quoteFields     = "f12,f14,f2,f3,f4,f5,f6,f8,f9,f15,f16,f17,f18,f20,f21,f23,f115"
	sectorFields    = "f12,f14,f2,f3,f62,f184"
	candidateFields = "f12,f14,f2,f3,f62,f184,f9,f23,f115,f20"
)

var kltByInterval = map[models.Interval]string{
	"1m": "1", "5m": "5", "15m": "15", "30m": "30", "60m": "60",
	models.IntervalDaily:   "101",
	models.IntervalWeekly:  "102",
	models.IntervalMonthly: "103",
}

// EastmoneyClient reads A-share quotes, candles and fund-flow rankings from
// the public Eastmoney push endpoints.
type EastmoneyClient struct {
	quote   *resty.Client
	history *resty.Client
	logger  *zap.Logger
}

type EastmoneyOption func(*eastmoneyOptions)

type eastmoneyOptions struct {
	quoteHost   string
	historyHost string
	timeout     time.Duration
	retries     int
	logger      *zap.Logger
}

// WithEastmoneyHosts points the client at alternate hosts (tests use httptest).
func WithEastmoneyHosts(quoteHost, historyHost string) EastmoneyOption {
	return func(o *eastmoneyOptions) {
		o.quoteHost = quoteHost
		o.historyHost = historyHost
	}
}

func WithEastmoneyTimeout(d time.Duration) EastmoneyOption {
	return func(o *eastmoneyOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithEastmoneyRetries(n int) EastmoneyOption {
	return func(o *eastmoneyOptions) {
		if n >= 0 {
			o.retries = n
		}
	}
}

func WithEastmoneyLogger(l *zap.Logger) EastmoneyOption {
	return func(o *eastmoneyOptions) { o.logger = logger.OrNop(l) }
}

func NewEastmoneyClient(opts ...EastmoneyOption) *EastmoneyClient {
	o := eastmoneyOptions{
		quoteHost:   eastmoneyQuoteHost,
		historyHost: eastmoneyHistoryHost,
		timeout:     10 * time.Second,
		retries:     2,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	newClient := func(host string) *resty.Client {
		return resty.New().
			SetBaseURL(host).
			SetTimeout(o.timeout).
			SetRetryCount(o.retries).
			SetRetryWaitTime(500*time.Millisecond).
			SetRetryMaxWaitTime(2*time.Second).
			SetHeader("User-Agent", "Mozilla/5.0").
			SetHeader("Referer", "https://quote.eastmoney.com/")
	}

	return &EastmoneyClient{
		quote:   newClient(o.quoteHost),
		history: newClient(o.historyHost),
		logger:  o.logger,
	}
}

// Secid converts a code to Eastmoney's "market.code" form. An exchange given
// as an "sh"/"sz" prefix or a ".SH"/".SZ" suffix wins over the code-range
// guess, which is how the SSE Composite (sh000001) is told apart from the
// SZSE stock 000001.
func Secid(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	switch {
	case strings.HasPrefix(code, "SH"):
		return "1." + code[2:]
	case strings.HasPrefix(code, "SZ"):
		return "0." + code[2:]
	case strings.HasSuffix(code, ".SH"):
		return "1." + strings.TrimSuffix(code, ".SH")
	case strings.HasSuffix(code, ".SZ"):
		return "0." + strings.TrimSuffix(code, ".SZ")
	}
	if strings.HasPrefix(code, "6") || strings.HasPrefix(code, "5") || strings.HasPrefix(code, "9") {
		return "1." + code
	}
	return "0." + code
}

// number decodes Eastmoney numeric fields, which may be numbers, numeric
// strings or "-" for missing.
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" || s == "-" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

type emRow struct {
	Code      string `json:"f12"`
	Name      string `json:"f14"`
	Price     number `json:"f2"`
	ChangePct number `json:"f3"`
	Change    number `json:"f4"`
	Volume    number `json:"f5"`
	Amount    number `json:"f6"`
	Turnover  number `json:"f8"`
	PE        number `json:"f9"`
	High      number `json:"f15"`
	Low       number `json:"f16"`
	Open      number `json:"f17"`
	PrevClose number `json:"f18"`
	MarketCap number `json:"f20"`
	FloatCap  number `json:"f21"`
	PB        number `json:"f23"`
	NetInflow number `json:"f62"`
	PETTM     number `json:"f115"`
	InflowPct number `json:"f184"`
}

type emListResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Total int     `json:"total"`
		Diff  []emRow `json:"diff"`
	} `json:"data"`
}

type emKlineResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

func (c *EastmoneyClient) GetQuote(ctx context.Context, code string) (*models.Quote, error) {
	var out emListResponse
	err := c.getJSON(ctx, c.quote, "/api/qt/ulist.np/get", map[string]string{
		"secids": Secid(code),
		"fields": quoteFields,
		"fltt":   "2",
		"ut":     eastmoneyUT,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", code, err)
	}
	if out.Data == nil || len(out.Data.Diff) == 0 {
		return nil, fmt.Errorf("quote %s: %w", code, ErrUnavailable)
	}

	d := out.Data.Diff[0]
	return &models.Quote{
		Code:       d.Code,
		Name:       d.Name,
		Price:      float64(d.Price),
		ChangePct:  float64(d.ChangePct),
		Change:     float64(d.Change),
		Open:       float64(d.Open),
		High:       float64(d.High),
		Low:        float64(d.Low),
		PrevClose:  float64(d.PrevClose),
		Volume:     float64(d.Volume),
		Amount:     float64(d.Amount),
		Turnover:   float64(d.Turnover),
		PE:         float64(d.PE),
		PETTM:      float64(d.PETTM),
		PB:         float64(d.PB),
		MarketCapB: toHundredMillion(float64(d.MarketCap), 2),
		FloatCapB:  toHundredMillion(float64(d.FloatCap), 2),
		Source:     "eastmoney",
		FetchedAt:  time.Now(),
	}, nil
}

func (c *EastmoneyClient) GetCandles(ctx context.Context, code string, interval models.Interval, count int) ([]models.Candle, error) {
	klt, ok := kltByInterval[interval]
	if !ok {
		klt = "101"
	}
	if count <= 0 {
		count = 100
	}

	var out emKlineResponse
	err := c.getJSON(ctx, c.history, "/api/qt/stock/kline/get", map[string]string{
		"secid":   Secid(code),
		"fields1": "f1,f2,f3,f4,f5,f6,f7,f8,f9,f10,f11",
		"fields2": "f51,f52,f53,f54,f55,f56,f57,f58,f59,f60,f61",
		"klt":     klt,
		"fqt":     "1",
		"end":     "20500101",
		"lmt":     strconv.Itoa(count),
		"ut":      eastmoneyUT,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", code, err)
	}
	if out.Data == nil || len(out.Data.Klines) == 0 {
		return nil, fmt.Errorf("candles %s: %w", code, ErrUnavailable)
	}

	candles := make([]models.Candle, 0, len(out.Data.Klines))
	for _, line := range out.Data.Klines {
		candle, ok := parseKline(line)
		if !ok {
			c.logger.Debug("skip malformed kline", zap.String("instrument", code), zap.String("line", line))
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// parseKline reads "date,open,close,high,low,volume,amount,amplitude,change_pct,change,turnover".
func parseKline(line string) (models.Candle, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 9 {
		return models.Candle{}, false
	}
	f := func(i int) float64 {
		v, _ := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		return v
	}
	return models.Candle{
		Date:      parts[0],
		Open:      f(1),
		Close:     f(2),
		High:      f(3),
		Low:       f(4),
		Volume:    f(5),
		Amount:    f(6),
		ChangePct: f(8),
	}, true
}

func (c *EastmoneyClient) GetSectorRanking(ctx context.Context) ([]models.SectorRank, error) {
	rows, err := c.clist(ctx, industrySectors, 50, sectorFields)
	if err != nil {
		return nil, fmt.Errorf("sector ranking: %w", err)
	}
	sectors := make([]models.SectorRank, 0, len(rows))
	for _, r := range rows {
		sectors = append(sectors, models.SectorRank{
			Code:       r.Code,
			Name:       r.Name,
			ChangePct:  float64(r.ChangePct),
			NetInflow:  float64(r.NetInflow),
			InflowRate: float64(r.InflowPct),
		})
	}
	return sectors, nil
}

func (c *EastmoneyClient) GetSectorConstituents(ctx context.Context, sectorCode string, limit int) ([]models.CandidateFeatures, error) {
	rows, err := c.clist(ctx, "b:"+sectorCode, limit, candidateFields)
	if err != nil {
		return nil, fmt.Errorf("sector %s constituents: %w", sectorCode, err)
	}
	return toCandidates(rows, sectorCode), nil
}

func (c *EastmoneyClient) GetMarketWideRanking(ctx context.Context, limit int) ([]models.CandidateFeatures, error) {
	rows, err := c.clist(ctx, mainBoards, limit, candidateFields)
	if err != nil {
		return nil, fmt.Errorf("market-wide ranking: %w", err)
	}
	return toCandidates(rows, ""), nil
}

// clist fetches one page of a net-inflow ranked list.
func (c *EastmoneyClient) clist(ctx context.Context, fs string, limit int, fields string) ([]emRow, error) {
	if limit <= 0 {
		limit = 20
	}
	var out emListResponse
	err := c.getJSON(ctx, c.quote, "/api/qt/clist/get", map[string]string{
		"pn":     "1",
		"pz":     strconv.Itoa(limit),
		"po":     "1",
		"np":     "1",
		"ut":     eastmoneyUT,
		"fltt":   "2",
		"invt":   "2",
		"fid":    "f62",
		"fs":     fs,
		"fields": fields,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, ErrUnavailable
	}
	return out.Data.Diff, nil
}

func (c *EastmoneyClient) getJSON(ctx context.Context, client *resty.Client, path string, params map[string]string, dst any) error {
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return err
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("eastmoney %s: status %d", path, resp.StatusCode())
	}
	if err := json.Unmarshal(stripJSONP(resp.Body()), dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// stripJSONP unwraps "cb({...});" bodies; plain JSON passes through.
func stripJSONP(body []byte) []byte {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] == '{' || body[0] == '[' {
		return body
	}
	start := bytes.IndexByte(body, '(')
	end := bytes.LastIndexByte(body, ')')
	if start < 0 || end <= start {
		return body
	}
	return body[start+1 : end]
}

func toCandidates(rows []emRow, sector string) []models.CandidateFeatures {
	out := make([]models.CandidateFeatures, 0, len(rows))
	for _, r := range rows {
		if r.Code == "" {
			continue
		}
		out = append(out, models.CandidateFeatures{
			Code:       r.Code,
			Name:       r.Name,
			Price:      float64(r.Price),
			ChangePct:  float64(r.ChangePct),
			NetInflow:  float64(r.NetInflow),
			InflowRate: float64(r.InflowPct),
			PETTM:      float64(r.PETTM),
			PB:         float64(r.PB),
			MarketCapB: toHundredMillion(float64(r.MarketCap), 1),
			Sector:     sector,
		})
	}
	return out
}

func toHundredMillion(v float64, digits int) float64 {
	if v <= 0 {
		return 0
	}
	scale := math.Pow(10, float64(digits))
	return math.Round(v/1e8*scale) / scale
}

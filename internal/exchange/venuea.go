package exchange

import (
	"context"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"hedgearb/internal/models"
	"hedgearb/internal/wsapi"
	"hedgearb/pkg/mathutil"
	"hedgearb/pkg/ratelimit"
	"hedgearb/pkg/retry"
)

const (
	venueARESTBase  = "https://fapi.binance.com"
	venueAWSPublic  = "wss://fstream.binance.com/ws"
	venueAWSAPI     = "wss://ws-fapi.binance.com/ws-fapi/v1"
	venueAQuote     = "USDT"
	venueAListenKeyRefresh = 55 * time.Minute
)

var venueAJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// VenueA is the Binance-USDM-style adapter: HMAC-SHA256 signed REST, an
// ed25519-signed WS-API session logon, and a listenKey-backed private
// stream.
type VenueA struct {
	apiKey     string
	secretKey  string
	privateKey ed25519.PrivateKey

	httpClient *HTTPClient
	limiter    *ratelimit.RateLimiter
	log        *zap.Logger

	rules     *RuleCache
	bbos      *BBOCache
	orders    *OrderCache
	positions *PositionCache

	accountMu sync.RWMutex
	account   models.Account

	pool *wsapi.Pool

	emitMu    sync.RWMutex
	emitBBO   func(models.BBO)
	emitOrder func(models.Order)

	listenKeyMu sync.RWMutex
	listenKey   string

	reqIDSeq uint64
}

// NewVenueA constructs a Venue A adapter. apiKey/secretKey authenticate
// REST; apiKey/privateKey authenticate the WS-API session logon.
func NewVenueA(apiKey, secretKey string, privateKey ed25519.PrivateKey, log *zap.Logger) *VenueA {
	return &VenueA{
		apiKey:     apiKey,
		secretKey:  secretKey,
		privateKey: privateKey,
		httpClient: GetGlobalHTTPClient(),
		limiter:    ratelimit.NewRateLimiter(20, 40),
		log:        log,
		rules:      NewRuleCache(),
		bbos:       NewBBOCache(),
		orders:     NewOrderCache(),
		positions:  NewPositionCache(),
	}
}

func (v *VenueA) Name() string { return "venue-a" }

func (v *VenueA) SetEmitBBO(fn func(models.BBO))     { v.emitMu.Lock(); v.emitBBO = fn; v.emitMu.Unlock() }
func (v *VenueA) SetEmitOrder(fn func(models.Order)) { v.emitMu.Lock(); v.emitOrder = fn; v.emitMu.Unlock() }

// --- REST signing -----------------------------------------------------

func (v *VenueA) signQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	canonical := canonicalQuery(params)
	mac := hmac.New(sha256.New, []byte(v.secretKey))
	mac.Write([]byte(canonical))
	signature := hex.EncodeToString(mac.Sum(nil))
	return canonical + "&signature=" + signature
}

// canonicalQuery lexicographically sorts params and encodes them, matching
// the signing contract every HMAC-signed venue in this pack shares.
func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(params.Get(k)))
	}
	return sb.String()
}

// doSignedRequest re-signs and resends on every retry attempt: the
// timestamp in the signed query would otherwise go stale across the
// backoff delay and every venue rejects a request outside its recvWindow.
func (v *VenueA) doSignedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	return retry.DoWithResult(ctx, func() ([]byte, error) {
		if err := v.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		query := v.signQuery(cloneValues(params))

		reqURL := venueARESTBase + path
		var req *http.Request
		var err error
		if method == http.MethodGet || method == http.MethodDelete {
			req, err = http.NewRequestWithContext(ctx, method, reqURL+"?"+query, nil)
		} else {
			req, err = http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(query))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("X-MBX-APIKEY", v.apiKey)

		resp, err := v.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 400 {
			var errResp struct {
				Code int    `json:"code"`
				Msg  string `json:"msg"`
			}
			venueAJSON.Unmarshal(body, &errResp)
			exchErr := &ExchangeError{Venue: v.Name(), Code: strconv.Itoa(errResp.Code), Message: errResp.Msg}
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, retry.Permanent(exchErr)
			}
			return nil, exchErr
		}
		return body, nil
	}, retry.NetworkConfig())
}

// cloneValues copies params so a timestamp re-signed on retry doesn't
// accumulate duplicate keys across attempts.
func cloneValues(params url.Values) url.Values {
	out := make(url.Values, len(params))
	for k, v := range params {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// --- Adapter interface --------------------------------------------------

func (v *VenueA) Init(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		if err := v.SetMarginMode(ctx, symbol); err != nil {
			v.log.Warn("set margin mode", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return v.SetPositionMode(ctx, "")
}

func (v *VenueA) SetMarginMode(ctx context.Context, symbol string) error {
	params := url.Values{"symbol": {symbol}, "marginType": {"CROSSED"}}
	_, err := v.doSignedRequest(ctx, http.MethodPost, "/fapi/v1/marginType", params)
	if isAlreadySetError(err) {
		return nil
	}
	return err
}

func (v *VenueA) SetPositionMode(ctx context.Context, _ string) error {
	params := url.Values{"dualSidePosition": {"true"}}
	_, err := v.doSignedRequest(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", params)
	if isAlreadySetError(err) {
		return nil
	}
	return err
}

// isAlreadySetError reports whether err is Binance's "no need to change
// margin type" / "no need to change position side" rejection, which Init
// treats as success since it only needs the mode to already be correct.
func isAlreadySetError(err error) bool {
	var exErr *ExchangeError
	if !errors.As(err, &exErr) {
		return false
	}
	return exErr.Code == "-4059" || exErr.Code == "-4046"
}

func (v *VenueA) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{"symbol": {symbol}, "leverage": {strconv.Itoa(leverage)}}
	_, err := v.doSignedRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	return err
}

func (v *VenueA) GetRules(ctx context.Context) (map[string]models.ContractRule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, venueARESTBase+"/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var info struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			QuoteAsset string `json:"quoteAsset"`
			Status     string `json:"status"`
			Filters    []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
				StepSize   string `json:"stepSize"`
				MaxQty     string `json:"maxQty"`
				MinQty     string `json:"minQty"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := venueAJSON.Unmarshal(body, &info); err != nil {
		return nil, err
	}

	out := make(map[string]models.ContractRule, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || s.QuoteAsset != venueAQuote {
			continue
		}
		rule := models.ContractRule{Symbol: s.Symbol, ContractSize: 1, MaxLeverage: 125}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				rule.PricePrec = decimalsOf(f.TickSize)
			case "LOT_SIZE":
				rule.AmountPrec = decimalsOf(f.StepSize)
				rule.MaxAmount = parseFloat(f.MaxQty)
				rule.MinAmount = parseFloat(f.MinQty)
			}
		}
		out[s.Symbol] = rule
	}
	v.rules.Replace(out)
	return out, nil
}

func decimalsOf(step string) int {
	return mathutil.Prec(parseFloat(step))
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func (v *VenueA) GetRule(symbol string) (models.ContractRule, bool) { return v.rules.Get(symbol) }
func (v *VenueA) GetLastBBO(symbol string) (models.BBO, bool)      { return v.bbos.Get(symbol) }

func (v *VenueA) GetPosition(symbol string, side models.Side) (models.Position, bool) {
	return v.positions.Get(models.PositionID(symbol, side))
}
func (v *VenueA) GetAccount() models.Account {
	v.accountMu.RLock()
	defer v.accountMu.RUnlock()
	return v.account
}

func (v *VenueA) UpdateBalance(ctx context.Context) error {
	body, err := v.doSignedRequest(ctx, http.MethodGet, "/fapi/v2/balance", nil)
	if err != nil {
		return err
	}
	var balances []struct {
		Asset              string `json:"asset"`
		Balance            string `json:"balance"`
		AvailableBalance   string `json:"availableBalance"`
	}
	if err := venueAJSON.Unmarshal(body, &balances); err != nil {
		return err
	}
	for _, b := range balances {
		if b.Asset != venueAQuote {
			continue
		}
		v.accountMu.Lock()
		v.account = models.Account{
			InDualMode:    true,
			SwapBalance:   parseFloat(b.Balance),
			SwapAvailable: parseFloat(b.AvailableBalance),
		}
		v.accountMu.Unlock()
	}
	return nil
}

func (v *VenueA) GetOrders(ctx context.Context) (map[string]models.Order, error) {
	body, err := v.doSignedRequest(ctx, http.MethodGet, "/fapi/v1/openOrders", nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		OrderID    int64  `json:"orderId"`
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		Side       string `json:"side"`
		PositionSide string `json:"positionSide"`
		Price      string `json:"price"`
		OrigQty    string `json:"origQty"`
		AvgPrice   string `json:"avgPrice"`
		ExecutedQty string `json:"executedQty"`
		Time       int64  `json:"time"`
	}
	if err := venueAJSON.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]models.Order, len(raw))
	for _, o := range raw {
		id := strconv.FormatInt(o.OrderID, 10)
		order := models.Order{
			Venue:      v.Name(),
			Symbol:     o.Symbol,
			ID:         id,
			Status:     normalizeStatus(venueAStatusMap, o.Status),
			Side:       models.Side(o.Side),
			TradeSide:  tradeSideFromPositionSide(o.PositionSide),
			Price:      parseFloat(o.Price),
			Amount:     parseFloat(o.OrigQty),
			DealPrice:  parseFloat(o.AvgPrice),
			DealAmount: parseFloat(o.ExecutedQty),
			CTimeMs:    o.Time,
		}
		out[id] = order
	}
	v.orders.Replace(out)
	return out, nil
}

func tradeSideFromPositionSide(positionSide string) models.TradeSide {
	if positionSide == "BOTH" {
		return models.TradeSideOpen
	}
	return models.TradeSideOpen
}

func (v *VenueA) GetPositions(ctx context.Context) (map[string]models.Position, error) {
	body, err := v.doSignedRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil)
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Symbol       string `json:"symbol"`
		PositionAmt  string `json:"positionAmt"`
		EntryPrice   string `json:"entryPrice"`
		PositionSide string `json:"positionSide"`
		UpdateTime   int64  `json:"updateTime"`
	}
	if err := venueAJSON.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]models.Position)
	for _, p := range raw {
		amt := parseFloat(p.PositionAmt)
		if amt == 0 {
			continue
		}
		side := models.SideBuy
		if amt < 0 {
			side = models.SideSell
		}
		pos := models.Position{
			Symbol:  p.Symbol,
			ID:      models.PositionID(p.Symbol, side),
			Side:    side,
			Price:   parseFloat(p.EntryPrice),
			Amount:  abs(amt),
			CTimeMs: p.UpdateTime,
		}
		out[pos.ID] = pos
	}
	v.positions.Replace(out)
	return out, nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func (v *VenueA) CancelOrder(ctx context.Context, id, symbol string) error {
	params := url.Values{"symbol": {symbol}, "orderId": {id}}
	_, err := v.doSignedRequest(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return err
}

func (v *VenueA) CancelAll(ctx context.Context, symbol string) error {
	params := url.Values{"symbol": {symbol}}
	_, err := v.doSignedRequest(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params)
	return err
}

func (v *VenueA) CreateOrder(ctx context.Context, symbol string, side models.Side, tradeSide models.TradeSide, orderType models.OrderType, amount, price float64) (string, error) {
	if v.pool == nil {
		return "", wsapi.ErrNotConnected
	}
	reqID := v.nextRequestID()
	params := map[string]interface{}{
		"symbol":   symbol,
		"side":     string(side),
		"type":     string(orderType),
		"quantity": strconv.FormatFloat(amount, 'f', -1, 64),
	}
	if orderType != models.OrderTypeMarket {
		params["price"] = strconv.FormatFloat(price, 'f', -1, 64)
	}
	frame := map[string]interface{}{
		"id":     reqID,
		"method": "order.place",
		"params": signedWSParams(params, v.apiKey, v.secretKey),
	}

	resp, ok := v.pool.Send(frame, reqID)
	if !ok {
		return "", wsapi.ErrNotConnected
	}
	decoded, ok := resp.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected order.place response")
	}
	if status, ok := decoded["status"].(float64); ok && status >= 400 {
		return "", fmt.Errorf("order.place rejected: %v", decoded["error"])
	}
	result, _ := decoded["result"].(map[string]interface{})
	if result == nil {
		return "", fmt.Errorf("order.place: missing result")
	}
	orderID, _ := result["orderId"].(float64)
	if orderID == 0 {
		return "", fmt.Errorf("order.place: missing orderId")
	}
	return strconv.FormatFloat(orderID, 'f', 0, 64), nil
}

func (v *VenueA) nextRequestID() string {
	v.reqIDSeq++
	return fmt.Sprintf("venuea-%d-%d", time.Now().UnixNano(), v.reqIDSeq)
}

// signedWSParams appends apiKey and a millisecond timestamp to params. It
// adds no signature; the ed25519 signature is sent once per connection by
// wsAPILogon.
func signedWSParams(params map[string]interface{}, apiKey, _ string) map[string]interface{} {
	params["apiKey"] = apiKey
	params["timestamp"] = time.Now().UnixMilli()
	return params
}

// --- Public market data stream ------------------------------------------

func (v *VenueA) ListenPublic(ctx context.Context, symbol string) error {
	stream := strings.ToLower(symbol) + "@bookTicker"
	sess := wsapi.New(wsapi.Config{
		Name: "venue-a-public-" + symbol,
		URL:  venueAWSPublic + "/" + stream,
		OnMessage: func(raw []byte) (interface{}, string) {
			var frame struct {
				Symbol    string `json:"s"`
				BidPrice  string `json:"b"`
				BidQty    string `json:"B"`
				AskPrice  string `json:"a"`
				AskQty    string `json:"A"`
				EventTime int64  `json:"T"`
			}
			if err := venueAJSON.Unmarshal(raw, &frame); err != nil {
				return nil, ""
			}
			bbo := models.BBO{
				Symbol:    frame.Symbol,
				Bid:       parseFloat(frame.BidPrice),
				BidAmount: parseFloat(frame.BidQty),
				Ask:       parseFloat(frame.AskPrice),
				AskAmount: parseFloat(frame.AskQty),
				TimeMs:    frame.EventTime,
			}
			norm := v.bbos.Set(bbo)
			v.emitMu.RLock()
			emit := v.emitBBO
			v.emitMu.RUnlock()
			if emit != nil {
				emit(norm)
			}
			return nil, ""
		},
	}, v.log)
	sess.Run(ctx)
	return nil
}

// --- Private account stream (listenKey) ---------------------------------

func (v *VenueA) ListenPrivate(ctx context.Context) error {
	if err := v.issueListenKey(ctx); err != nil {
		return err
	}

	sess := wsapi.New(wsapi.Config{
		Name: "venue-a-private",
		URL:  venueAWSPublic + "/" + v.currentListenKey(),
		OnConnect: func(connCtx context.Context, conn *websocket.Conn) error {
			go v.listenKeyRefreshLoop(connCtx)
			return nil
		},
		OnMessage: func(raw []byte) (interface{}, string) {
			v.handlePrivateEvent(raw)
			return nil, ""
		},
	}, v.log)
	sess.Run(ctx)
	return nil
}

func (v *VenueA) currentListenKey() string {
	v.listenKeyMu.RLock()
	defer v.listenKeyMu.RUnlock()
	return v.listenKey
}

func (v *VenueA) issueListenKey(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, venueARESTBase+"/fapi/v1/listenKey", nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", v.apiKey)
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var out struct {
		ListenKey string `json:"listenKey"`
	}
	if err := venueAJSON.Unmarshal(body, &out); err != nil {
		return err
	}
	v.listenKeyMu.Lock()
	v.listenKey = out.ListenKey
	v.listenKeyMu.Unlock()
	return nil
}

// listenKeyRefreshLoop PUTs a refresh every 55 minutes for the life of the
// connection. A failed refresh is not retried; it surfaces as a stream
// disconnect handled by the ordinary WS reconnect loop.
func (v *VenueA) listenKeyRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(venueAListenKeyRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodPut, venueARESTBase+"/fapi/v1/listenKey", nil)
			if err != nil {
				continue
			}
			req.Header.Set("X-MBX-APIKEY", v.apiKey)
			resp, err := v.httpClient.Do(req)
			if err != nil {
				v.log.Warn("listen key refresh failed", zap.Error(err))
				continue
			}
			resp.Body.Close()
		}
	}
}

func (v *VenueA) handlePrivateEvent(raw []byte) {
	var envelope struct {
		EventType string `json:"e"`
		Order     struct {
			Symbol       string `json:"s"`
			Side         string `json:"S"`
			PositionSide string `json:"ps"`
			OrderStatus  string `json:"X"`
			OrderID      int64  `json:"i"`
			OrigQty      string `json:"q"`
			Price        string `json:"p"`
			AvgPrice     string `json:"ap"`
			FilledQty    string `json:"z"`
			TradeTime    int64  `json:"T"`
		} `json:"o"`
		PositionUpdate struct {
			Positions []struct {
				Symbol        string `json:"s"`
				Amount        string `json:"pa"`
				EntryPrice    string `json:"ep"`
				PositionSide  string `json:"ps"`
			} `json:"P"`
		} `json:"a"`
	}
	if err := venueAJSON.Unmarshal(raw, &envelope); err != nil {
		return
	}
	switch envelope.EventType {
	case "ORDER_TRADE_UPDATE":
		o := envelope.Order
		id := strconv.FormatInt(o.OrderID, 10)
		order := models.Order{
			Venue:      v.Name(),
			Symbol:     o.Symbol,
			ID:         id,
			Status:     normalizeStatus(venueAStatusMap, o.OrderStatus),
			Side:       models.Side(o.Side),
			TradeSide:  tradeSideFromPositionSide(o.PositionSide),
			Price:      parseFloat(o.Price),
			Amount:     parseFloat(o.OrigQty),
			DealPrice:  parseFloat(o.AvgPrice),
			DealAmount: parseFloat(o.FilledQty),
			CTimeMs:    o.TradeTime,
		}
		v.orders.Upsert(order)
		v.emitMu.RLock()
		emit := v.emitOrder
		v.emitMu.RUnlock()
		if emit != nil {
			emit(order)
		}
	case "ACCOUNT_UPDATE":
		for _, p := range envelope.PositionUpdate.Positions {
			amt := parseFloat(p.Amount)
			side := models.SideBuy
			if amt < 0 {
				side = models.SideSell
			}
			v.positions.Upsert(models.Position{
				Symbol: p.Symbol,
				ID:     models.PositionID(p.Symbol, side),
				Side:   side,
				Price:  parseFloat(p.EntryPrice),
				Amount: abs(amt),
			})
		}
	}
}

// --- WS-API pool (request/response order placement) --------------------

func (v *VenueA) ListenWSAPI(ctx context.Context, count int) error {
	pool := wsapi.NewPool(count, func(i int) *wsapi.Session {
		return wsapi.New(wsapi.Config{
			Name: fmt.Sprintf("venue-a-wsapi-%d", i),
			URL:  venueAWSAPI,
			OnConnect: func(connCtx context.Context, conn *websocket.Conn) error {
				return v.wsAPILogon(conn)
			},
			OnMessage: func(raw []byte) (interface{}, string) {
				var decoded map[string]interface{}
				if err := json.Unmarshal(raw, &decoded); err != nil {
					return nil, ""
				}
				id, _ := decoded["id"].(string)
				return decoded, id
			},
		}, v.log)
	}, v.log)
	v.pool = pool
	pool.Run(ctx)
	return nil
}

// wsAPILogon signs the session-logon payload with the ed25519 private key
// and sends session.logon once at connect time.
func (v *VenueA) wsAPILogon(conn *websocket.Conn) error {
	ts := time.Now().UnixMilli()
	payload := fmt.Sprintf("apiKey=%s&timestamp=%d", v.apiKey, ts)
	sig := ed25519.Sign(v.privateKey, []byte(payload))
	signature := base64.StdEncoding.EncodeToString(sig)

	frame := map[string]interface{}{
		"id":     "logon",
		"method": "session.logon",
		"params": map[string]interface{}{
			"apiKey":    v.apiKey,
			"timestamp": ts,
			"signature": signature,
		},
	}
	return conn.WriteJSON(frame)
}

func (v *VenueA) Close() error {
	if v.pool != nil {
		v.pool.CloseAll()
	}
	return nil
}

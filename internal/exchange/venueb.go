package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hedgearb/internal/models"
	"hedgearb/internal/wsapi"
	"hedgearb/pkg/ratelimit"
	"hedgearb/pkg/retry"
)

const (
	venueBRESTBase = "https://api.gateio.ws/api/v4"
	venueBWSURL    = "wss://fx-ws.gateio.ws/v4/ws/usdt"
	venueBQuote    = "USDT"
	venueBPingInterval = 10 * time.Second
)

// VenueB is the Gate.io-style adapter: HMAC-SHA512 signed REST and an
// in-band HMAC-SHA512 login on a single multiplexed WS endpoint hosting
// market data, account streams and order placement alike.
type VenueB struct {
	apiKey    string
	secretKey string

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

	reqIDSeq uint64
}

func NewVenueB(apiKey, secretKey string, log *zap.Logger) *VenueB {
	return &VenueB{
		apiKey:     apiKey,
		secretKey:  secretKey,
		httpClient: GetGlobalHTTPClient(),
		limiter:    ratelimit.NewRateLimiter(10, 20),
		log:        log,
		rules:      NewRuleCache(),
		bbos:       NewBBOCache(),
		orders:     NewOrderCache(),
		positions:  NewPositionCache(),
	}
}

func (g *VenueB) Name() string { return "venue-b" }

func (g *VenueB) SetEmitBBO(fn func(models.BBO))     { g.emitMu.Lock(); g.emitBBO = fn; g.emitMu.Unlock() }
func (g *VenueB) SetEmitOrder(fn func(models.Order)) { g.emitMu.Lock(); g.emitOrder = fn; g.emitMu.Unlock() }

// sign computes HMAC-SHA512(secret, "METHOD\nPATH\nQUERY\nSHA512(BODY)\ntimestamp").
func (g *VenueB) sign(method, path, query, body string, timestamp int64) string {
	bodyHash := sha512.Sum512([]byte(body))
	signStr := fmt.Sprintf("%s\n%s\n%s\n%s\n%d", method, path, query, hex.EncodeToString(bodyHash[:]), timestamp)
	mac := hmac.New(sha512.New, []byte(g.secretKey))
	mac.Write([]byte(signStr))
	return hex.EncodeToString(mac.Sum(nil))
}

// doSignedRequest re-signs on every retry attempt: the signature covers a
// timestamp that would go stale across a backoff delay.
func (g *VenueB) doSignedRequest(ctx context.Context, method, path string, query string, body string) ([]byte, error) {
	return retry.DoWithResult(ctx, func() ([]byte, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		reqURL := venueBRESTBase + path
		if query != "" {
			reqURL += "?" + query
		}
		req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(body))
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		timestamp := time.Now().Unix()
		signature := g.sign(method, "/api/v4"+path, query, body, timestamp)
		req.Header.Set("KEY", g.apiKey)
		req.Header.Set("SIGN", signature)
		req.Header.Set("Timestamp", strconv.FormatInt(timestamp, 10))

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 400 {
			var errResp struct {
				Label   string `json:"label"`
				Message string `json:"message"`
			}
			json.Unmarshal(respBody, &errResp)
			exchErr := &ExchangeError{Venue: g.Name(), Code: errResp.Label, Message: errResp.Message}
			if resp.StatusCode < 500 {
				return nil, retry.Permanent(exchErr)
			}
			return nil, exchErr
		}
		return respBody, nil
	}, retry.NetworkConfig())
}

func (g *VenueB) Init(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		if err := g.SetMarginMode(ctx, symbol); err != nil {
			g.log.Warn("set margin mode", zap.String("symbol", symbol), zap.Error(err))
		}
		if err := g.SetPositionMode(ctx, symbol); err != nil {
			g.log.Warn("set position mode", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return nil
}

func (g *VenueB) SetMarginMode(ctx context.Context, symbol string) error {
	body := fmt.Sprintf(`{"contract":%q}`, symbol)
	_, err := g.doSignedRequest(ctx, http.MethodPost, "/futures/usdt/positions/"+symbol+"/margin_mode", "", body)
	return err
}

func (g *VenueB) SetPositionMode(ctx context.Context, _ string) error {
	_, err := g.doSignedRequest(ctx, http.MethodPost, "/futures/usdt/dual_mode", "dual_mode=true", "")
	return err
}

func (g *VenueB) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	query := fmt.Sprintf("leverage=%d", leverage)
	_, err := g.doSignedRequest(ctx, http.MethodPost, "/futures/usdt/positions/"+symbol+"/leverage", query, "")
	return err
}

func (g *VenueB) GetRules(ctx context.Context) (map[string]models.ContractRule, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, venueBRESTBase+"/futures/usdt/contracts", nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Name         string `json:"name"`
		QuantoMultiplier string `json:"quanto_multiplier"`
		OrderPriceRound  string `json:"order_price_round"`
		OrderSizeMin     int64  `json:"order_size_min"`
		OrderSizeMax     int64  `json:"order_size_max"`
		LeverageMax      string `json:"leverage_max"`
		InDelisting      bool   `json:"in_delisting"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	out := make(map[string]models.ContractRule, len(raw))
	for _, c := range raw {
		if c.InDelisting || !strings.HasSuffix(c.Name, "_"+venueBQuote) {
			continue
		}
		symbol := strings.ReplaceAll(c.Name, "_", "")
		contractSize := parseFloat(c.QuantoMultiplier)
		if contractSize == 0 {
			contractSize = 1
		}
		maxLev, _ := strconv.Atoi(strings.SplitN(c.LeverageMax, ".", 2)[0])
		out[symbol] = models.ContractRule{
			Symbol:       symbol,
			PricePrec:    decimalsOf(c.OrderPriceRound),
			AmountPrec:   0, // contracts are always whole numbers on this venue
			MaxAmount:    float64(c.OrderSizeMax),
			MinAmount:    float64(c.OrderSizeMin),
			MaxLeverage:  maxLev,
			ContractSize: contractSize,
		}
	}
	g.rules.Replace(out)
	return out, nil
}

func (g *VenueB) GetRule(symbol string) (models.ContractRule, bool) { return g.rules.Get(symbol) }
func (g *VenueB) GetLastBBO(symbol string) (models.BBO, bool)       { return g.bbos.Get(symbol) }

func (g *VenueB) GetPosition(symbol string, side models.Side) (models.Position, bool) {
	return g.positions.Get(models.PositionID(symbol, side))
}
func (g *VenueB) GetAccount() models.Account {
	g.accountMu.RLock()
	defer g.accountMu.RUnlock()
	return g.account
}

func (g *VenueB) UpdateBalance(ctx context.Context) error {
	body, err := g.doSignedRequest(ctx, http.MethodGet, "/futures/usdt/accounts", "", "")
	if err != nil {
		return err
	}
	var acc struct {
		Total     string `json:"total"`
		Available string `json:"available"`
		User      int64  `json:"user"`
	}
	if err := json.Unmarshal(body, &acc); err != nil {
		return err
	}
	g.accountMu.Lock()
	g.account = models.Account{
		UserID:        strconv.FormatInt(acc.User, 10),
		InDualMode:    true,
		SwapBalance:   parseFloat(acc.Total),
		SwapAvailable: parseFloat(acc.Available),
	}
	g.accountMu.Unlock()
	return nil
}

func (g *VenueB) GetOrders(ctx context.Context) (map[string]models.Order, error) {
	body, err := g.doSignedRequest(ctx, http.MethodGet, "/futures/usdt/orders", "status=open", "")
	if err != nil {
		return nil, err
	}
	var raw []struct {
		ID          int64  `json:"id"`
		Contract    string `json:"contract"`
		Status      string `json:"status"`
		Size        int64  `json:"size"`
		Price       string `json:"price"`
		FillPrice   string `json:"fill_price"`
		Left        int64  `json:"left"`
		CreateTime  float64 `json:"create_time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]models.Order, len(raw))
	for _, o := range raw {
		id := strconv.FormatInt(o.ID, 10)
		side := models.SideBuy
		if o.Size < 0 {
			side = models.SideSell
		}
		filled := float64(abs64(o.Size) - abs64(o.Left))
		order := models.Order{
			Venue:      g.Name(),
			Symbol:     strings.ReplaceAll(o.Contract, "_", ""),
			ID:         id,
			Status:     normalizeStatus(venueBStatusMap, o.Status),
			Side:       side,
			TradeSide:  models.TradeSideOpen,
			Price:      parseFloat(o.Price),
			Amount:     float64(abs64(o.Size)),
			DealPrice:  parseFloat(o.FillPrice),
			DealAmount: filled,
			CTimeMs:    int64(o.CreateTime * 1000),
		}
		out[id] = order
	}
	g.orders.Replace(out)
	return out, nil
}

func abs64(i int64) int64 {
	if i < 0 {
		return -i
	}
	return i
}

func (g *VenueB) GetPositions(ctx context.Context) (map[string]models.Position, error) {
	body, err := g.doSignedRequest(ctx, http.MethodGet, "/futures/usdt/positions", "", "")
	if err != nil {
		return nil, err
	}
	var raw []struct {
		Contract   string `json:"contract"`
		Size       int64  `json:"size"`
		EntryPrice string `json:"entry_price"`
		UpdateTime int64  `json:"update_time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]models.Position)
	for _, p := range raw {
		if p.Size == 0 {
			continue
		}
		symbol := strings.ReplaceAll(p.Contract, "_", "")
		side := models.SideBuy
		if p.Size < 0 {
			side = models.SideSell
		}
		pos := models.Position{
			Symbol:  symbol,
			ID:      models.PositionID(symbol, side),
			Side:    side,
			Price:   parseFloat(p.EntryPrice),
			Amount:  float64(abs64(p.Size)),
			CTimeMs: p.UpdateTime * 1000,
		}
		out[pos.ID] = pos
	}
	g.positions.Replace(out)
	return out, nil
}

func (g *VenueB) CancelOrder(ctx context.Context, id, _ string) error {
	_, err := g.doSignedRequest(ctx, http.MethodDelete, "/futures/usdt/orders/"+id, "", "")
	return err
}

func (g *VenueB) CancelAll(ctx context.Context, symbol string) error {
	contract := toGateContract(symbol)
	_, err := g.doSignedRequest(ctx, http.MethodDelete, "/futures/usdt/orders", "contract="+contract, "")
	return err
}

func toGateContract(symbol string) string {
	if strings.HasSuffix(symbol, venueBQuote) {
		base := strings.TrimSuffix(symbol, venueBQuote)
		return base + "_" + venueBQuote
	}
	return symbol
}

func (g *VenueB) CreateOrder(ctx context.Context, symbol string, side models.Side, tradeSide models.TradeSide, orderType models.OrderType, amount, price float64) (string, error) {
	if g.pool == nil {
		return "", wsapi.ErrNotConnected
	}
	size := int64(amount)
	if side == models.SideSell {
		size = -size
	}
	reqID := g.nextRequestID()
	params := map[string]interface{}{
		"contract": toGateContract(symbol),
		"size":     size,
		"price":    "0", // market order
		"tif":      "ioc",
	}
	frame := map[string]interface{}{
		"time":    time.Now().Unix(),
		"channel": "futures.order_place",
		"event":   "api",
		"payload": map[string]interface{}{
			"req_id":  reqID,
			"req_param": params,
		},
	}
	resp, ok := g.pool.Send(frame, reqID)
	if !ok {
		return "", wsapi.ErrNotConnected
	}
	decoded, ok := resp.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("unexpected order_place response")
	}
	ack, _ := decoded["ack"].(map[string]interface{})
	result, _ := ack["result"].(map[string]interface{})
	if result == nil {
		return "", fmt.Errorf("futures.order_place: missing result")
	}
	idFloat, _ := result["id"].(float64)
	if idFloat == 0 {
		return "", fmt.Errorf("futures.order_place: missing id")
	}
	return strconv.FormatFloat(idFloat, 'f', 0, 64), nil
}

func (g *VenueB) nextRequestID() string {
	g.reqIDSeq++
	return fmt.Sprintf("venueb-%d-%d", time.Now().UnixNano(), g.reqIDSeq)
}

// loginSignature computes the in-band WS login signature:
// HMAC-SHA512(secret, "api\n{channel}\n{query}\n{timestamp}").
func (g *VenueB) loginSignature(channel, query string, timestamp int64) string {
	signStr := fmt.Sprintf("api\n%s\n%s\n%d", channel, query, timestamp)
	mac := hmac.New(sha512.New, []byte(g.secretKey))
	mac.Write([]byte(signStr))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *VenueB) wsLogin(conn *websocket.Conn, channel string) error {
	ts := time.Now().Unix()
	signature := g.loginSignature(channel, "", ts)
	frame := map[string]interface{}{
		"time":    ts,
		"channel": channel,
		"event":   "api",
		"payload": map[string]interface{}{
			"req_id": fmt.Sprintf("login-%d", ts),
			"api_key": g.apiKey,
			"signature": signature,
			"timestamp": strconv.FormatInt(ts, 10),
		},
	}
	return conn.WriteJSON(frame)
}

// --- Public market data stream ------------------------------------------

func (g *VenueB) ListenPublic(ctx context.Context, symbol string) error {
	contract := toGateContract(symbol)
	sess := wsapi.New(wsapi.Config{
		Name: "venue-b-public-" + symbol,
		URL:  venueBWSURL,
		OnConnect: func(connCtx context.Context, conn *websocket.Conn) error {
			sub := map[string]interface{}{
				"time":    time.Now().Unix(),
				"channel": "futures.book_ticker",
				"event":   "subscribe",
				"payload": []string{contract},
			}
			if err := conn.WriteJSON(sub); err != nil {
				return err
			}
			go g.pingLoop(connCtx, conn)
			return nil
		},
		OnMessage: func(raw []byte) (interface{}, string) {
			g.handlePublicFrame(raw)
			return nil, ""
		},
	}, g.log)
	sess.Run(ctx)
	return nil
}

func (g *VenueB) handlePublicFrame(raw []byte) {
	var envelope struct {
		Channel string          `json:"channel"`
		Event   string          `json:"event"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if envelope.Channel != "futures.book_ticker" || envelope.Event != "update" {
		return
	}
	var tick struct {
		Contract string `json:"s"`
		Bid      string `json:"b"`
		BidSize  int64  `json:"B"`
		Ask      string `json:"a"`
		AskSize  int64  `json:"A"`
		TimeMs   int64  `json:"t"`
	}
	if err := json.Unmarshal(envelope.Result, &tick); err != nil {
		return
	}
	bbo := models.BBO{
		Symbol:    strings.ReplaceAll(tick.Contract, "_", ""),
		Bid:       parseFloat(tick.Bid),
		BidAmount: float64(tick.BidSize),
		Ask:       parseFloat(tick.Ask),
		AskAmount: float64(tick.AskSize),
		TimeMs:    tick.TimeMs,
	}
	norm := g.bbos.Set(bbo)
	g.emitMu.RLock()
	emit := g.emitBBO
	g.emitMu.RUnlock()
	if emit != nil {
		emit(norm)
	}
}

// pingLoop sends futures.ping every 10s for the life of the connection, as
// this venue's keep-alive contract requires.
func (g *VenueB) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(venueBPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := map[string]interface{}{
				"time":    time.Now().Unix(),
				"channel": "futures.ping",
			}
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

// --- Private account stream ----------------------------------------------

func (g *VenueB) ListenPrivate(ctx context.Context) error {
	sess := wsapi.New(wsapi.Config{
		Name: "venue-b-private",
		URL:  venueBWSURL,
		OnConnect: func(connCtx context.Context, conn *websocket.Conn) error {
			if err := g.wsLogin(conn, "futures.login"); err != nil {
				return err
			}
			subOrders := map[string]interface{}{
				"time": time.Now().Unix(), "channel": "futures.orders", "event": "subscribe",
				"payload": []string{"!all"},
			}
			subPositions := map[string]interface{}{
				"time": time.Now().Unix(), "channel": "futures.positions", "event": "subscribe",
				"payload": []string{"!all"},
			}
			if err := conn.WriteJSON(subOrders); err != nil {
				return err
			}
			if err := conn.WriteJSON(subPositions); err != nil {
				return err
			}
			go g.pingLoop(connCtx, conn)
			return nil
		},
		OnMessage: func(raw []byte) (interface{}, string) {
			g.handlePrivateFrame(raw)
			return nil, ""
		},
	}, g.log)
	sess.Run(ctx)
	return nil
}

func (g *VenueB) handlePrivateFrame(raw []byte) {
	var envelope struct {
		Channel string          `json:"channel"`
		Event   string          `json:"event"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}
	if envelope.Event != "update" {
		return
	}

	switch envelope.Channel {
	case "futures.orders":
		var orders []struct {
			ID         int64  `json:"id"`
			Contract   string `json:"contract"`
			Status     string `json:"status"`
			Size       int64  `json:"size"`
			Price      string `json:"price"`
			FillPrice  string `json:"fill_price"`
			Left       int64  `json:"left"`
			FinishTime float64 `json:"finish_time"`
		}
		if err := json.Unmarshal(envelope.Result, &orders); err != nil {
			return
		}
		for _, o := range orders {
			side := models.SideBuy
			if o.Size < 0 {
				side = models.SideSell
			}
			order := models.Order{
				Venue:      g.Name(),
				Symbol:     strings.ReplaceAll(o.Contract, "_", ""),
				ID:         strconv.FormatInt(o.ID, 10),
				Status:     normalizeStatus(venueBStatusMap, o.Status),
				Side:       side,
				TradeSide:  models.TradeSideOpen,
				Price:      parseFloat(o.Price),
				Amount:     float64(abs64(o.Size)),
				DealPrice:  parseFloat(o.FillPrice),
				DealAmount: float64(abs64(o.Size) - abs64(o.Left)),
				CTimeMs:    int64(o.FinishTime * 1000),
			}
			g.orders.Upsert(order)
			g.emitMu.RLock()
			emit := g.emitOrder
			g.emitMu.RUnlock()
			if emit != nil {
				emit(order)
			}
		}
	case "futures.positions":
		var positions []struct {
			Contract string `json:"contract"`
			Size     int64  `json:"size"`
			EntryPrice string `json:"entry_price"`
		}
		if err := json.Unmarshal(envelope.Result, &positions); err != nil {
			return
		}
		for _, p := range positions {
			symbol := strings.ReplaceAll(p.Contract, "_", "")
			side := models.SideBuy
			if p.Size < 0 {
				side = models.SideSell
			}
			g.positions.Upsert(models.Position{
				Symbol: symbol,
				ID:     models.PositionID(symbol, side),
				Side:   side,
				Price:  parseFloat(p.EntryPrice),
				Amount: float64(abs64(p.Size)),
			})
		}
	}
}

// --- WS-API pool (request/response order placement) ---------------------

func (g *VenueB) ListenWSAPI(ctx context.Context, count int) error {
	pool := wsapi.NewPool(count, func(i int) *wsapi.Session {
		return wsapi.New(wsapi.Config{
			Name: fmt.Sprintf("venue-b-wsapi-%d", i),
			URL:  venueBWSURL,
			OnConnect: func(connCtx context.Context, conn *websocket.Conn) error {
				if err := g.wsLogin(conn, "futures.order_place"); err != nil {
					return err
				}
				go g.pingLoop(connCtx, conn)
				return nil
			},
			OnMessage: func(raw []byte) (interface{}, string) {
				var decoded map[string]interface{}
				if err := json.Unmarshal(raw, &decoded); err != nil {
					return nil, ""
				}
				ack, _ := decoded["ack"].(map[string]interface{})
				reqID, _ := ack["req_id"].(string)
				if reqID == "" {
					reqID, _ = decoded["req_id"].(string)
				}
				return decoded, reqID
			},
		}, g.log)
	}, g.log)
	g.pool = pool
	pool.Run(ctx)
	return nil
}

func (g *VenueB) Close() error {
	if g.pool != nil {
		g.pool.CloseAll()
	}
	return nil
}

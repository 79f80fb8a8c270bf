package tool

import (
	"context"
	"encoding/json"
	"time"

	"cardchat/internal/domain"
)

// Purchase amount bounds: numberOfShares must be in (0, 1000].
const (
	defaultShares    = 100
	maxShares        = 1000
	invalidAmountMsg = "[User has selected an invalid amount]"
)

// ListStocksTool renders a list card of trending stocks. The provider
// supplies the quotes; the tool performs no lookup of its own.
type ListStocksTool struct {
	delay time.Duration
}

// NewListStocksTool creates the listStocks tool with the given settle delay.
func NewListStocksTool(delay time.Duration) *ListStocksTool {
	return &ListStocksTool{delay: delay}
}

func (t *ListStocksTool) Name() string { return domain.ToolListStocks }

func (t *ListStocksTool) Description() string {
	return "List three imaginary stocks that are trending."
}

func (t *ListStocksTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"stocks": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"symbol": {"type": "string", "description": "The symbol of the stock"},
							"price": {"type": "number", "description": "The price of the stock"},
							"delta": {"type": "number", "description": "The change in price of the stock"}
						},
						"required": ["symbol", "price", "delta"]
					}
				}
			},
			"required": ["stocks"]
		}`),
	}
}

func (t *ListStocksTool) Generate(ctx context.Context, call domain.ToolCall, st domain.StateWriter, live domain.FragmentHandle) (domain.Fragment, error) {
	live.Update(domain.SkeletonFragment(domain.FragmentStocksSkeleton))

	var args struct {
		Stocks []domain.StockQuote `json:"stocks"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return domain.Fragment{}, domain.WrapOp("ListStocksTool.Generate", err)
	}

	settle(ctx, t.delay)

	result, err := json.Marshal(args.Stocks)
	if err != nil {
		return domain.Fragment{}, domain.WrapOp("ListStocksTool.Generate", err)
	}
	st.AppendToolInteraction(t.Name(), call.ID, call.Arguments, result)
	if err := st.Commit(ctx); err != nil {
		return domain.Fragment{}, err
	}
	return domain.DataFragment(domain.FragmentStockList, result), nil
}

func (t *ListStocksTool) Rehydrate(result json.RawMessage) (domain.Fragment, bool) {
	return domain.DataFragment(domain.FragmentStockList, result), true
}

// StockPriceTool renders a single stock quote card.
type StockPriceTool struct {
	delay time.Duration
}

// NewStockPriceTool creates the showStockPrice tool with the given settle delay.
func NewStockPriceTool(delay time.Duration) *StockPriceTool {
	return &StockPriceTool{delay: delay}
}

func (t *StockPriceTool) Name() string { return domain.ToolShowStockPrice }

func (t *StockPriceTool) Description() string {
	return "Get the current stock price of a given stock or currency. Use this to show the price to the user."
}

func (t *StockPriceTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"symbol": {"type": "string", "description": "The name or symbol of the stock or currency. e.g. DOGE/AAPL/USD."},
				"price": {"type": "number", "description": "The price of the stock."},
				"delta": {"type": "number", "description": "The change in price of the stock"}
			},
			"required": ["symbol", "price", "delta"]
		}`),
	}
}

func (t *StockPriceTool) Generate(ctx context.Context, call domain.ToolCall, st domain.StateWriter, live domain.FragmentHandle) (domain.Fragment, error) {
	live.Update(domain.SkeletonFragment(domain.FragmentStockSkeleton))

	var quote domain.StockQuote
	if err := json.Unmarshal(call.Arguments, &quote); err != nil {
		return domain.Fragment{}, domain.WrapOp("StockPriceTool.Generate", err)
	}

	settle(ctx, t.delay)

	result, err := json.Marshal(quote)
	if err != nil {
		return domain.Fragment{}, domain.WrapOp("StockPriceTool.Generate", err)
	}
	st.AppendToolInteraction(t.Name(), call.ID, call.Arguments, result)
	if err := st.Commit(ctx); err != nil {
		return domain.Fragment{}, err
	}
	return domain.DataFragment(domain.FragmentStock, result), nil
}

func (t *StockPriceTool) Rehydrate(result json.RawMessage) (domain.Fragment, bool) {
	return domain.DataFragment(domain.FragmentStock, result), true
}

// StockPurchaseTool renders the purchase-confirmation card, or an
// "Invalid amount" message when the share count is out of range. The
// out-of-range branch is a normal result, not an error.
type StockPurchaseTool struct{}

// NewStockPurchaseTool creates the showStockPurchase tool.
func NewStockPurchaseTool() *StockPurchaseTool {
	return &StockPurchaseTool{}
}

func (t *StockPurchaseTool) Name() string { return domain.ToolShowStockPurchase }

func (t *StockPurchaseTool) Description() string {
	return "Show price and the UI to purchase a stock or currency. Use this if the user wants to purchase a stock or currency."
}

func (t *StockPurchaseTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"symbol": {"type": "string", "description": "The name or symbol of the stock or currency. e.g. DOGE/AAPL/USD."},
				"price": {"type": "number", "description": "The price of the stock."},
				"numberOfShares": {"type": "number", "description": "The number of shares for a stock or currency to purchase. Can be optional if the user did not specify it."}
			},
			"required": ["symbol", "price"]
		}`),
	}
}

func (t *StockPurchaseTool) Generate(ctx context.Context, call domain.ToolCall, st domain.StateWriter, _ domain.FragmentHandle) (domain.Fragment, error) {
	var args struct {
		Symbol         string   `json:"symbol"`
		Price          float64  `json:"price"`
		NumberOfShares *float64 `json:"numberOfShares"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return domain.Fragment{}, domain.WrapOp("StockPurchaseTool.Generate", err)
	}

	shares := float64(defaultShares)
	if args.NumberOfShares != nil {
		shares = *args.NumberOfShares
	}

	order := domain.PurchaseOrder{
		Symbol:         args.Symbol,
		Price:          args.Price,
		NumberOfShares: shares,
	}

	if shares <= 0 || shares > maxShares {
		order.Status = domain.PurchaseExpired
		result, err := json.Marshal(order)
		if err != nil {
			return domain.Fragment{}, domain.WrapOp("StockPurchaseTool.Generate", err)
		}
		st.AppendToolInteraction(t.Name(), call.ID, call.Arguments, result)
		st.AppendSystem(invalidAmountMsg)
		if err := st.Commit(ctx); err != nil {
			return domain.Fragment{}, err
		}
		return domain.TextFragment("Invalid amount"), nil
	}

	order.Status = domain.PurchaseRequiresAction
	result, err := json.Marshal(order)
	if err != nil {
		return domain.Fragment{}, domain.WrapOp("StockPurchaseTool.Generate", err)
	}
	st.AppendToolInteraction(t.Name(), call.ID, call.Arguments, result)
	if err := st.Commit(ctx); err != nil {
		return domain.Fragment{}, err
	}
	return domain.DataFragment(domain.FragmentPurchase, result), nil
}

func (t *StockPurchaseTool) Rehydrate(result json.RawMessage) (domain.Fragment, bool) {
	return domain.DataFragment(domain.FragmentPurchase, result), true
}

// interface checks
var (
	_ domain.Tool = (*ListStocksTool)(nil)
	_ domain.Tool = (*StockPriceTool)(nil)
	_ domain.Tool = (*StockPurchaseTool)(nil)
)

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"barsim/pkg/barsim"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: barsim-cli [-server url] <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                                 Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  status                                  Check barsim-server health\n")
	fmt.Fprintf(os.Stderr, "  account                                 Show the account snapshot\n")
	fmt.Fprintf(os.Stderr, "  positions                               List open positions\n")
	fmt.Fprintf(os.Stderr, "  orders [completed]                      List open or completed orders\n")
	fmt.Fprintf(os.Stderr, "  executions                              List executions with commissions\n")
	fmt.Fprintf(os.Stderr, "  contract SYMBOL                         Show contract details\n")
	fmt.Fprintf(os.Stderr, "  submit SYMBOL buy|sell QTY [TYPE PRICE [STOP]]\n")
	fmt.Fprintf(os.Stderr, "                                          Submit a market, limit or stop_limit order\n")
	fmt.Fprintf(os.Stderr, "  cancel ID                               Cancel an open order\n")
	fmt.Fprintf(os.Stderr, "  runs [LIMIT]                            List journaled runs\n")
	fmt.Fprintf(os.Stderr, "  stream                                  Print order and execution events\n")
	fmt.Fprintf(os.Stderr, "\n")
}

func main() {
	server := flag.String("server", envOr("BARSIM_SERVER", "http://localhost:8080"), "barsim-server base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout (not applied to stream)")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}
	args := flag.Args()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	client := barsim.NewClient(*server)

	reqCtx := ctx
	if args[0] != "stream" {
		var done context.CancelFunc
		reqCtx, done = context.WithTimeout(ctx, *timeout)
		defer done()
	}

	if err := dispatch(reqCtx, client, args); err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func dispatch(ctx context.Context, c *barsim.Client, args []string) error {
	switch args[0] {
	case "version":
		fmt.Printf("barsim-cli %s\n", version)
		return nil

	case "status":
		if err := c.Health(ctx); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	case "account":
		return show(c.GetAccount(ctx))

	case "positions":
		return show(c.GetPositions(ctx))

	case "orders":
		if len(args) > 1 && args[1] == "completed" {
			return show(c.GetCompletedOrders(ctx))
		}
		return show(c.GetOpenOrders(ctx))

	case "executions":
		return show(c.GetExecutions(ctx))

	case "contract":
		if len(args) < 2 {
			return fmt.Errorf("missing symbol")
		}
		return show(c.ContractDetails(ctx, args[1]))

	case "submit":
		req, err := parseOrder(args[1:])
		if err != nil {
			return err
		}
		return show(c.SubmitOrder(ctx, req))

	case "cancel":
		if len(args) < 2 {
			return fmt.Errorf("missing order id")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("order id %q: %w", args[1], err)
		}
		return show(c.CancelOrder(ctx, id))

	case "runs":
		limit := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("limit %q: %w", args[1], err)
			}
			limit = n
		}
		return show(c.ListRuns(ctx, limit))

	case "stream":
		enc := json.NewEncoder(os.Stdout)
		err := c.Stream(ctx, func(ev barsim.Event) error { return enc.Encode(ev) })
		if ctx.Err() != nil {
			return nil
		}
		return err

	default:
		usage()
		return fmt.Errorf("unknown command")
	}
}

// parseOrder reads SYMBOL SIDE QTY [TYPE PRICE [STOP]].
func parseOrder(args []string) (barsim.OrderRequest, error) {
	var req barsim.OrderRequest
	if len(args) < 3 {
		return req, fmt.Errorf("want SYMBOL buy|sell QTY [TYPE PRICE [STOP]]")
	}
	qty, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return req, fmt.Errorf("qty %q: %w", args[2], err)
	}
	req.Symbol = strings.ToUpper(args[0])
	req.Side = barsim.OrderSide(strings.ToLower(args[1]))
	req.Qty = qty
	req.Type = barsim.OrderTypeMarket
	if len(args) >= 5 {
		req.Type = barsim.OrderType(strings.ToLower(args[3]))
		if req.LimitPrice, err = decimal.NewFromString(args[4]); err != nil {
			return req, fmt.Errorf("price %q: %w", args[4], err)
		}
		if req.Type == barsim.OrderTypeStopLimit {
			req.StopPrice = req.LimitPrice
			if len(args) >= 6 {
				if req.StopPrice, err = decimal.NewFromString(args[5]); err != nil {
					return req, fmt.Errorf("stop %q: %w", args[5], err)
				}
			}
		}
	}
	return req, nil
}

func show[T any](v T, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

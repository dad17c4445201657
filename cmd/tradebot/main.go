// Command tradebot runs the consensus trading engine and inspects its
// positions and trade history.
//
// Usage:
//
//	tradebot run --config config.yaml
//	tradebot run --once
//	tradebot serve
//	tradebot positions
//	tradebot history --symbol AAPL --limit 20
//	tradebot evaluate --file snapshot.json
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

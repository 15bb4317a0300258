package bridge

import (
	"context"
	"sort"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Aggregator fans a transfer intent out to every provider that supports the
// route, ranks the quotes that come back, and executes down the ranking
// until one provider succeeds. A single provider outage never blocks a
// transfer as long as an alternative quotes.
type Aggregator struct {
	registry     *Registry
	logger       *zap.Logger
	quoteTimeout time.Duration
	maxAttempts  int
}

// NewAggregator creates an aggregator. maxAttempts 0 means every ranked
// quote is tried once.
func NewAggregator(registry *Registry, logger *zap.Logger, quoteTimeout time.Duration, maxAttempts int) *Aggregator {
	if quoteTimeout <= 0 {
		quoteTimeout = 10 * time.Second
	}
	return &Aggregator{
		registry:     registry,
		logger:       logger,
		quoteTimeout: quoteTimeout,
		maxAttempts:  maxAttempts,
	}
}

// ExecutionResult reports the winning provider of a SelectAndExecute run.
type ExecutionResult struct {
	ProviderID  string
	TxReference string
	Quote       Quote
}

type quoteResult struct {
	providerID string
	quote      *Quote
	err        error
}

// SelectAndExecute runs the full selection pipeline for one intent.
func (a *Aggregator) SelectAndExecute(ctx context.Context, intent TransferIntent, signer Signer) (*ExecutionResult, error) {
	providers := a.registry.ForRoute(intent.Route())
	if len(providers) == 0 {
		return nil, errors.Wrapf(entities.ErrNoProviderAvailable,
			"%s/%s -> %s/%s", intent.FromChain, intent.FromToken, intent.ToChain, intent.ToToken)
	}

	quotes := a.collectQuotes(ctx, providers, intent)
	if len(quotes) == 0 {
		return nil, errors.Wrapf(entities.ErrNoQuoteAvailable,
			"%d providers queried", len(providers))
	}

	ranked := RankQuotes(quotes)

	attempts := a.maxAttempts
	if attempts <= 0 || attempts > len(ranked) {
		attempts = len(ranked)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		quote := ranked[i]
		provider, ok := a.registry.Get(quote.ProviderID)
		if !ok {
			continue
		}

		a.logger.Info("Executing bridge via provider",
			zap.String("provider", quote.ProviderID),
			zap.String("net_output", quote.Net().String()),
			zap.Int("rank", i),
		)

		txRef, err := provider.Execute(ctx, &quote, signer)
		if err != nil {
			lastErr = err
			a.logger.Warn("Provider execution failed, trying next quote",
				zap.String("provider", quote.ProviderID),
				zap.Bool("timeout", IsTimeout(err)),
				zap.Error(err),
			)
			continue
		}

		return &ExecutionResult{
			ProviderID:  quote.ProviderID,
			TxReference: txRef,
			Quote:       quote,
		}, nil
	}

	return nil, lastErr
}

// collectQuotes queries all providers concurrently, each bounded by the
// quote timeout. Individual failures are logged and dropped; a late result
// lands in the buffered channel and is simply never read.
func (a *Aggregator) collectQuotes(ctx context.Context, providers []Provider, intent TransferIntent) []Quote {
	results := make(chan quoteResult, len(providers))

	for _, p := range providers {
		go func(p Provider) {
			qctx, cancel := context.WithTimeout(ctx, a.quoteTimeout)
			defer cancel()

			quote, err := p.GetQuote(qctx, intent)
			results <- quoteResult{providerID: p.ID(), quote: quote, err: err}
		}(p)
	}

	deadline := time.NewTimer(a.quoteTimeout + time.Second)
	defer deadline.Stop()

	var quotes []Quote
	for i := 0; i < len(providers); i++ {
		select {
		case res := <-results:
			if res.err != nil {
				a.logger.Warn("Quote request failed",
					zap.String("provider", res.providerID),
					zap.Bool("timeout", IsTimeout(res.err)),
					zap.Error(res.err),
				)
				continue
			}
			quotes = append(quotes, *res.quote)
		case <-deadline.C:
			// Stragglers past the grace window are abandoned.
			return quotes
		case <-ctx.Done():
			return quotes
		}
	}
	return quotes
}

// RankQuotes orders quotes by net proceeds descending, then ETA ascending,
// then provider id. The ordering is total, so a fixed quote set always
// ranks the same way.
func RankQuotes(quotes []Quote) []Quote {
	ranked := make([]Quote, len(quotes))
	copy(ranked, quotes)

	sort.SliceStable(ranked, func(i, j int) bool {
		netI, netJ := ranked[i].Net(), ranked[j].Net()
		if !netI.Equal(netJ) {
			return netI.GreaterThan(netJ)
		}
		if ranked[i].EtaSeconds != ranked[j].EtaSeconds {
			return ranked[i].EtaSeconds < ranked[j].EtaSeconds
		}
		return ranked[i].ProviderID < ranked[j].ProviderID
	})

	return ranked
}

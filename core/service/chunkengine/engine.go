// Package chunkengine implements ChunkEngine (§4.H): the ordered, deadline-bounded
// per-invocation pipeline that turns a mailbox cursor into a page of candidates.
package chunkengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/pool"

	"subscan_server/core/domain"
	"subscan_server/core/port/out"
	"subscan_server/core/service/candidate"
	"subscan_server/core/service/classify"
	"subscan_server/core/service/extract"
	"subscan_server/core/service/merchant"
	"subscan_server/core/service/signals"
	"subscan_server/pkg/logger"
)

// enrichCap bounds §4.H step 6's second-body-fetch enrichment pass.
const enrichCap = 25

const engineVersion = "1"

// Result is the ChunkEngine output handed back to the orchestrator (§4.H step 7).
type Result struct {
	Candidates []domain.Candidate
	NextCursor *string
	Stats      domain.ChunkStats
}

// Engine drives one chunk invocation against a MailboxDriver.
type Engine struct {
	driver    out.MailboxDriver
	directory []domain.MerchantDirectoryEntry
	overrides []domain.UserOverride
}

// New builds an Engine bound to driver, with the merchant directory and user
// overrides the session's CandidateBuilder runs will consult.
func New(driver out.MailboxDriver, directory []domain.MerchantDirectoryEntry, overrides []domain.UserOverride) *Engine {
	return &Engine{driver: driver, directory: directory, overrides: overrides}
}

type screenedMessage struct {
	meta  domain.MessageMeta
	flags classify.Flags
}

// Run executes the 7-stage pipeline bounded by opts.ChunkDeadline (§4.H).
func (e *Engine) Run(ctx context.Context, cursor *string, opts domain.Options) (Result, error) {
	start := time.Now()
	deadline := opts.ChunkDeadline(start)
	shouldStop := func() bool { return time.Now().After(deadline) }

	logger.Debug("chunkengine: run starting, chunkMs=%d maxListIds=%d", opts.ChunkMs, opts.MaxListIDs)

	stats := domain.ChunkStats{EngineVersion: engineVersion, NullReasons: map[string]int{}}

	// Stage 1: list.
	var listedIDs []string
	nextCursor := cursor
	for len(listedIDs) < opts.MaxListIDs && !shouldStop() {
		page, err := e.driver.ListPage(ctx, nextCursor, opts)
		if err != nil {
			return Result{}, fmt.Errorf("chunkengine: list page: %w", err)
		}
		listedIDs = append(listedIDs, page.IDs...)
		nextCursor = page.NextCursor
		if nextCursor == nil || len(page.IDs) == 0 {
			break
		}
	}
	if len(listedIDs) > opts.MaxListIDs {
		listedIDs = listedIDs[:opts.MaxListIDs]
	}
	stats.Listed = len(listedIDs)

	// Stage 2: screen (metadata fetch + quick-screen) with bounded concurrency.
	screened := e.screenStage(ctx, listedIDs, opts, shouldStop, &stats)

	// Stage 3: full fetch the first fullFetchCap screened-in messages.
	fullFetchIDs := screened
	if len(fullFetchIDs) > opts.FullFetchCap {
		fullFetchIDs = fullFetchIDs[:opts.FullFetchCap]
	}
	bodies := e.fullFetchStage(ctx, fullFetchIDs, opts, shouldStop)
	stats.FullFetched = len(bodies)

	// Stage 4: build candidates per fetched message, early-exiting on maxCandidates.
	var rawCandidates []domain.Candidate
	for _, sm := range fullFetchIDs {
		if shouldStop() || len(rawCandidates) >= opts.MaxCandidates {
			break
		}
		body, ok := bodies[sm.meta.ID]
		if !ok {
			continue
		}
		result := candidate.Build(candidate.BuildInput{
			Message:   sm.meta,
			Body:      body,
			Directory: e.directory,
			Overrides: e.overrides,
			Now:       start,
		})
		stats.RawMatched++
		if result.Drop != "" {
			stats.NullReasons[string(result.Drop)]++
			continue
		}
		rawCandidates = append(rawCandidates, *result.Candidate)
	}

	// Stage 5: cluster over all screened-in metadata, merged after body candidates.
	clusterMembers := make([]candidate.ClusterMember, 0, len(screened))
	for _, sm := range screened {
		clusterMembers = append(clusterMembers, e.clusterMember(sm))
	}
	clusters := candidate.BuildClusters(clusterMembers)
	allCandidates := append(rawCandidates, clusters...)

	// Stage 6: aggregate + dedupe, then strict-gate post-process.
	aggregated := candidate.AggregateWithinChunk(allCandidates)
	gated := candidate.StrictGate(aggregated)

	// Stage 6b: enrich up to enrichCap amount-less survivors with a second
	// body fetch, budget permitting.
	if !shouldStop() {
		gated = e.enrichStage(ctx, gated, shouldStop, start)
	}

	stats.Scanned = len(screened)
	stats.ScreenedIn = len(screened)
	stats.Matched = len(gated)
	stats.DeadlineMs = opts.ChunkMs
	stats.TookMs = time.Since(start).Milliseconds()
	stats.Query = string(opts.QueryMode)

	logger.Debug("chunkengine: run done, listed=%d screenedIn=%d fullFetched=%d matched=%d tookMs=%d",
		stats.Listed, stats.ScreenedIn, stats.FullFetched, stats.Matched, stats.TookMs)

	return Result{Candidates: gated, NextCursor: nextCursor, Stats: stats}, nil
}

// clusterMember resolves a screened message's merchant identity and
// mail-infra status for §4.E clustering: when the sender domain is a shared
// ESP/infra domain and the resolver finds a merchant (canonical or pretty
// fallback), bestDomain becomes that merchant name, so the cluster key is
// infra:<merchant>:<infra sender domain>; otherwise bestDomain is the sender
// domain.
func (e *Engine) clusterMember(sm screenedMessage) candidate.ClusterMember {
	haystack := sm.meta.Headers.Subject + "\n" + sm.meta.Snippet
	surface := merchant.Surface{
		From:            sm.meta.Headers.From,
		ReplyTo:         sm.meta.Headers.ReplyTo,
		ReturnPath:      sm.meta.Headers.ReturnPath,
		ListUnsubscribe: sm.meta.Headers.ListUnsubscribe,
		Haystack:        haystack,
	}
	resolution := merchant.Resolve(surface, e.directory, e.overrides)

	isInfra := signals.IsInfraDomain(sm.meta.SenderDomain)

	bestDomain := sm.meta.SenderDomain
	merchantName := sm.meta.SenderDomain
	if resolution.Canonical != nil {
		merchantName = *resolution.Canonical
		if isInfra {
			bestDomain = *resolution.Canonical
		}
	} else if resolution.PrettyFallback != nil {
		merchantName = *resolution.PrettyFallback
		if isInfra {
			bestDomain = *resolution.PrettyFallback
		}
	}

	return candidate.ClusterMember{
		MessageID:           sm.meta.ID,
		SenderDomain:        sm.meta.SenderDomain,
		BestDomain:          bestDomain,
		IsInfra:             isInfra,
		DateMs:              sm.meta.DateMs,
		HasDate:             sm.meta.DateMs > 0,
		Subject:             sm.meta.Headers.Subject,
		Snippet:             sm.meta.Snippet,
		LikelyTransactional: sm.flags.LikelyTransactional,
		BulkHeader:          sm.flags.BulkHeader,
		ResolverConfidence:  resolution.Confidence,
		Merchant:            merchantName,
	}
}

// enrichStage re-fetches the body of up to enrichCap gated candidates that
// still carry no amount, and re-runs the amount/date/cadence extractors over
// the freshly fetched text (§4.H step 6, "enrich the top-25 remaining without
// amounts by a second body fetch if time allows").
func (e *Engine) enrichStage(ctx context.Context, candidates []domain.Candidate, shouldStop func() bool, now time.Time) []domain.Candidate {
	enriched := 0
	for i := range candidates {
		if enriched >= enrichCap || shouldStop() {
			break
		}
		c := &candidates[i]
		if c.Amount != nil || c.Evidence.MessageID == "" {
			continue
		}
		body, err := e.driver.FetchFull(ctx, c.Evidence.MessageID)
		if err != nil {
			continue
		}
		enriched++

		text := extract.NormalizeBody(body.Text)
		haystack := c.Evidence.Subject + "\n" + c.Evidence.Snippet + "\n" + text

		if amt := extract.ExtractAmount(haystack); amt.Found {
			a, cur := amt.Amount, amt.Currency
			c.Amount = &a
			c.Currency = &cur
			c.Confidence = clampConfidence(c.Confidence + 10)
			c.ConfidenceLabel = domain.LabelForConfidence(c.Confidence)
			c.Reasons = append(c.Reasons, "enrichedAmount")
		}
		if c.NextDateGuess == nil {
			if d, ok := extract.ExtractNextRenewalDate(haystack, now); ok {
				c.NextDateGuess = &d
			}
		}
		if c.CadenceGuess == nil {
			if cadence, ok := extract.ExtractCadenceKeyword(haystack); ok {
				c.CadenceGuess = &cadence
			}
		}
	}
	return candidates
}

func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// screenStage runs metadata fetch + QuickScreen over ids with bounded
// concurrency via go-pkgz/pool, isolating any per-request failure (§4.H).
func (e *Engine) screenStage(ctx context.Context, ids []string, opts domain.Options, shouldStop func() bool, stats *domain.ChunkStats) []screenedMessage {
	if len(ids) == 0 {
		return nil
	}

	var mu sync.Mutex
	var out []screenedMessage

	worker := screenWorker{engine: e, shouldStop: shouldStop, onResult: func(sm screenedMessage, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if ok {
			out = append(out, sm)
		}
	}}

	grp := pool.New[string](opts.Concurrency, worker).WithWorkerChanSize(opts.Concurrency * 2).WithContinueOnError()
	if err := grp.Go(ctx); err != nil {
		return nil
	}
	for _, id := range ids {
		if shouldStop() {
			break
		}
		grp.Submit(id)
	}
	grp.Close(ctx)
	return out
}

type screenWorker struct {
	engine     *Engine
	shouldStop func() bool
	onResult   func(screenedMessage, bool)
}

func (w screenWorker) Do(ctx context.Context, id string) error {
	if w.shouldStop() {
		return nil
	}
	meta, err := w.engine.driver.FetchMetadata(ctx, id)
	if err != nil {
		w.onResult(screenedMessage{}, false)
		return nil
	}
	screen := classify.QuickScreen(meta.Headers.From, meta.Headers.Subject, meta.Snippet, meta.Headers, meta.SenderDomain)
	if !screen.OK {
		w.onResult(screenedMessage{}, false)
		return nil
	}
	flags := classify.Classify(meta.Headers.Subject, meta.Snippet, "", meta.Headers, meta.SenderDomain)
	w.onResult(screenedMessage{meta: meta, flags: flags}, true)
	return nil
}

// fullFetchStage fetches bodies for the given screened-in messages with
// bounded concurrency, keyed by message id.
func (e *Engine) fullFetchStage(ctx context.Context, messages []screenedMessage, opts domain.Options, shouldStop func() bool) map[string]domain.MessageBody {
	out := make(map[string]domain.MessageBody)
	if len(messages) == 0 {
		return out
	}

	var mu sync.Mutex
	worker := fetchWorker{engine: e, shouldStop: shouldStop, onResult: func(id string, body domain.MessageBody, ok bool) {
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		out[id] = body
	}}

	grp := pool.New[string](opts.Concurrency, worker).WithWorkerChanSize(opts.Concurrency * 2).WithContinueOnError()
	if err := grp.Go(ctx); err != nil {
		return out
	}
	for _, sm := range messages {
		if shouldStop() {
			break
		}
		grp.Submit(sm.meta.ID)
	}
	grp.Close(ctx)
	return out
}

type fetchWorker struct {
	engine     *Engine
	shouldStop func() bool
	onResult   func(id string, body domain.MessageBody, ok bool)
}

func (w fetchWorker) Do(ctx context.Context, id string) error {
	if w.shouldStop() {
		return nil
	}
	body, err := w.engine.driver.FetchFull(ctx, id)
	if err != nil {
		w.onResult(id, domain.MessageBody{}, false)
		return nil
	}
	w.onResult(id, body, true)
	return nil
}

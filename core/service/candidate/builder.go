// Package candidate implements CandidateBuilder (§4.D), ClusterBuilder (§4.E),
// and Aggregator/Deduper (§4.F).
package candidate

import (
	"strings"
	"time"

	"subscan_server/core/domain"
	"subscan_server/core/service/classify"
	"subscan_server/core/service/extract"
	"subscan_server/core/service/merchant"
	"subscan_server/core/service/signals"
)

// DropReason is the closed set of reasons CandidateBuilder may drop a message (§4.D).
type DropReason string

const (
	DropMarketingHeavy DropReason = "marketingHeavy"
	DropLowConfidence  DropReason = "lowConfidence"
)

// BuildInput bundles one message's metadata, body, and directory context.
type BuildInput struct {
	Message   domain.MessageMeta
	Body      domain.MessageBody
	Directory []domain.MerchantDirectoryEntry
	Overrides []domain.UserOverride
	Now       time.Time
}

// BuildResult is CandidateBuilder's per-message outcome: either a Candidate or
// a drop reason, modeled as an explicit result value rather than an exception
// per §9 "Exception-based control flow ... becomes explicit result values".
type BuildResult struct {
	Candidate *domain.Candidate
	Drop      DropReason
}

var platformRegistry = extract.NewPlatformRegistry()

// Build runs the full §4.D per-message pipeline.
func Build(in BuildInput) BuildResult {
	text := extract.NormalizeBody(in.Body.Text)
	html := extract.NormalizeBody(in.Body.HTML)
	subject := in.Message.Headers.Subject
	snippet := in.Message.Snippet
	haystack := subject + "\n" + snippet + "\n" + text

	linkDomains := extract.ExtractLinkDomains(text, html)

	surface := merchant.Surface{
		From:            in.Message.Headers.From,
		ReplyTo:         in.Message.Headers.ReplyTo,
		ReturnPath:      in.Message.Headers.ReturnPath,
		ListUnsubscribe: in.Message.Headers.ListUnsubscribe,
		LinkDomains:     linkDomains,
		Haystack:        haystack,
	}
	resolution := merchant.Resolve(surface, in.Directory, in.Overrides)
	flags := classify.Classify(subject, snippet, text, in.Message.Headers, resolution.FromDomain)

	if flags.MarketingHeavy && !flags.LikelyTransactional {
		return BuildResult{Drop: DropMarketingHeavy}
	}

	merchantName := resolveMerchantName(resolution)
	isPlatform := false
	if parser := platformRegistry.FindParser(resolution.FromDomain); parser != nil {
		if name, ok := parser.ExtractMerchant(haystack); ok && len(strings.TrimSpace(name)) >= 2 {
			merchantName = name
			isPlatform = true
		}
	}

	amountResult := extract.ExtractAmount(haystack)
	var amount *float64
	var currency *string
	if amountResult.Found {
		a := amountResult.Amount
		c := amountResult.Currency
		amount = &a
		currency = &c
	}

	var nextDate *string
	if d, ok := extract.ExtractNextRenewalDate(haystack, in.Now); ok {
		nextDate = &d
	}

	var plan *string
	if p, ok := extract.ExtractPlan(haystack); ok {
		plan = &p
	}

	isTrial := signals.AnyMatch(haystack, []string{"trial", "free trial"})

	var cadence *domain.Cadence
	if flags.LikelyTransactional || nextDate != nil {
		if c, ok := extract.ExtractCadenceKeyword(haystack); ok {
			cadence = &c
		}
	}

	resolverKeywordConflict := hasResolverKeywordConflict(resolution, in.Directory, haystack)

	confidence := scoreConfidence(resolution, flags, isPlatform, amount, nextDate, cadence, isTrial, haystack, resolverKeywordConflict)

	floor := 45
	if isTrial {
		floor = 35
	}
	if confidence < floor {
		return BuildResult{Drop: DropLowConfidence}
	}

	evidenceType := domain.EvidenceTransactional
	switch {
	case isPlatform:
		evidenceType = domain.EvidencePlatformReceipt
	case isTrial:
		evidenceType = domain.EvidenceTrial
	case !flags.LikelyTransactional:
		evidenceType = domain.EvidenceUnknown
	}

	eventKind := classifyEventKind(haystack, evidenceType, isTrial)

	fp := domain.ComputeFingerprint(domain.FingerprintEmail, merchantName, resolution.FromDomain, amount, currency, nil)

	ev := domain.Evidence{
		From:         in.Message.Headers.From,
		Subject:      subject,
		Snippet:      snippet,
		SenderEmail:  in.Message.SenderEmail,
		SenderDomain: resolution.FromDomain,
		DateMs:       in.Message.DateMs,
		MessageID:    in.Message.ID,
	}

	c := &domain.Candidate{
		Fingerprint:      fp,
		Merchant:         merchantName,
		Plan:             plan,
		Amount:           amount,
		Currency:         currency,
		CadenceGuess:     cadence,
		NextDateGuess:    nextDate,
		Confidence:       confidence,
		ConfidenceLabel:  domain.LabelForConfidence(confidence),
		EvidenceType:     evidenceType,
		Reasons:          buildReasons(resolution, flags, isPlatform, amount != nil, nextDate != nil, cadence != nil, resolverKeywordConflict),
		Evidence:         ev,
		EvidenceSamples:  []domain.Evidence{ev},
		NeedsConfirm:     false,
		EventType:        eventKind,
		ExcludeFromSpend: eventKind.ExcludeFromSpend(),
	}
	return BuildResult{Candidate: c}
}

func resolveMerchantName(r merchant.Result) string {
	if r.Canonical != nil {
		return *r.Canonical
	}
	if r.PrettyFallback != nil {
		return *r.PrettyFallback
	}
	return ""
}

// hasResolverKeywordConflict reports whether the resolver's domain/override
// pick disagrees with what the body's keywords alone would suggest (§4.D
// "subtract 30 if resolver/keyword conflict").
func hasResolverKeywordConflict(r merchant.Result, directory []domain.MerchantDirectoryEntry, haystack string) bool {
	if r.Canonical == nil || r.Reason == merchant.ReasonKeywords {
		return false
	}
	keywordName, ok := merchant.KeywordSignal(directory, haystack)
	if !ok {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(*r.Canonical), strings.TrimSpace(keywordName))
}

func scoreConfidence(r merchant.Result, flags classify.Flags, isPlatform bool, amount *float64, nextDate *string, cadence *domain.Cadence, isTrial bool, haystack string, resolverKeywordConflict bool) int {
	score := r.Confidence * 6 / 10
	if score > 60 {
		score = 60
	}
	if flags.LikelyTransactional {
		score += 12
	}
	if isPlatform {
		score += 10
	}
	if amount != nil && flags.LikelyTransactional {
		score += 10
	}
	if nextDate != nil {
		score += 8
	}
	if cadence != nil {
		score += 4
	}
	if r.Reason == merchant.ReasonFallbackDomain && hasStrongBillingProof(haystack) {
		score += 18
	}
	if flags.BulkHeader {
		score -= 10
	}
	if signals.IsConsumerDomain(r.FromDomain) {
		score -= 15
	}
	if resolverKeywordConflict {
		score -= 30
	}

	if score > 55 && amount == nil && nextDate == nil && cadence == nil && !isTrial {
		score = 55
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func hasStrongBillingProof(haystack string) bool {
	return signals.CountMatches(haystack, signals.BillingKeywords) >= 2
}

func classifyEventKind(haystack string, evidenceType domain.EvidenceType, isTrial bool) domain.EventKind {
	h := strings.ToLower(haystack)
	switch {
	case isTrial:
		return domain.EventTrial
	case strings.Contains(h, "payment failed") || strings.Contains(h, "declined") || strings.Contains(h, "could not be processed"):
		return domain.EventPaymentFailed
	case strings.Contains(h, "paused") || strings.Contains(h, "subscription paused"):
		return domain.EventPaused
	case strings.Contains(h, "canceled") || strings.Contains(h, "cancelled") || strings.Contains(h, "cancellation"):
		return domain.EventCancellation
	case strings.Contains(h, "renews on") || strings.Contains(h, "renewal"):
		return domain.EventRenewal
	case evidenceType == domain.EvidenceTransactional || evidenceType == domain.EvidencePlatformReceipt:
		return domain.EventReceipt
	default:
		return domain.EventUnknown
	}
}

func buildReasons(r merchant.Result, flags classify.Flags, isPlatform, hasAmount, hasDate, hasCadence, resolverKeywordConflict bool) []string {
	var reasons []string
	reasons = append(reasons, "merchant:"+string(r.Reason))
	if flags.LikelyTransactional {
		reasons = append(reasons, "transactional")
	}
	if isPlatform {
		reasons = append(reasons, "platformExtract")
	}
	if hasAmount {
		reasons = append(reasons, "amount")
	}
	if hasDate {
		reasons = append(reasons, "nextRenewal")
	}
	if hasCadence {
		reasons = append(reasons, "cadence")
	}
	if resolverKeywordConflict {
		reasons = append(reasons, "resolverKeywordConflict")
	}
	return reasons
}

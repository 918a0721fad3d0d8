package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/scanforge/diligence/internal/scan"
)

// NormalizeSource canonicalizes a source URL for deduplication: lowercase
// scheme/host, strip www., fragments, tracking parameters, and trailing
// slashes. Tool-sourced evidence uses the tool name as its source key.
func NormalizeSource(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Host = strings.TrimPrefix(parsed.Host, "www.")
	parsed.Fragment = ""

	if parsed.RawQuery != "" {
		q := parsed.Query()
		for _, param := range []string{
			"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
			"fbclid", "gclid", "msclkid", "ref",
		} {
			q.Del(param)
		}
		parsed.RawQuery = q.Encode()
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String(), nil
}

// SourceDomain returns the lowercase host without port or www. prefix.
func SourceDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

var termSplit = regexp.MustCompile(`[^a-z0-9$%.]+`)

// terms lowercases and tokenizes text, dropping short stopword-ish tokens.
func terms(text string) []string {
	raw := termSplit.Split(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.Trim(t, ".")
		if len(t) > 2 {
			out = append(out, t)
		}
	}
	return out
}

// Specificity measures keyword overlap between a claim and retrieved content:
// the fraction of distinct claim terms that appear in the content.
func Specificity(claim scan.ResearchClaim, content string) float64 {
	claimTerms := map[string]bool{}
	for _, t := range terms(claim.Statement) {
		claimTerms[t] = true
	}
	for _, q := range claim.SearchQueries {
		for _, t := range terms(q) {
			claimTerms[t] = true
		}
	}
	if len(claimTerms) == 0 {
		return 0
	}

	contentTerms := map[string]bool{}
	for _, t := range terms(content) {
		contentTerms[t] = true
	}

	hits := 0
	for t := range claimTerms {
		if contentTerms[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(claimTerms))
}

// RecencyFactor decays evidence weight with age. Undated evidence gets the
// 90-day tier rather than zero, since tool output rarely carries a date.
func RecencyFactor(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil {
		return 0.5
	}
	days := now.Sub(*publishedAt).Hours() / 24
	switch {
	case days < 30:
		return 1.0
	case days < 180:
		return 0.8
	case days < 365:
		return 0.6
	default:
		return 0.4
	}
}

// ScoreConfidence combines the provider's credibility prior, claim-term
// specificity, and recency decay into the item confidence.
func ScoreConfidence(prior, specificity, recency float64) float64 {
	score := prior*0.5 + specificity*0.3 + recency*0.2
	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}

// shingles builds the word-trigram set used for near-duplicate detection.
func shingles(text string) map[string]bool {
	words := terms(text)
	out := make(map[string]bool)
	if len(words) < 3 {
		for _, w := range words {
			out[w] = true
		}
		return out
	}
	for i := 0; i+2 < len(words); i++ {
		out[words[i]+" "+words[i+1]+" "+words[i+2]] = true
	}
	return out
}

// TextSimilarity returns the Jaccard similarity of word-trigram sets,
// in [0,1]. Pure and symmetric; dedup decisions stay deterministic.
func TextSimilarity(a, b string) float64 {
	sa, sb := shingles(a), shingles(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1.0
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0.0
	}
	inter := 0
	for s := range sa {
		if sb[s] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// DedupKey identifies an evidence item's source for duplicate grouping.
func DedupKey(item scan.EvidenceItem) string {
	src := item.Source.Tool
	if item.Source.URL != "" {
		if norm, err := NormalizeSource(item.Source.URL); err == nil {
			src = norm
		} else {
			src = item.Source.URL
		}
	}
	h := sha256.Sum256([]byte(src))
	return hex.EncodeToString(h[:])[:16]
}

// summarize produces the short evidence summary: the first sentences up to a
// character cap.
func summarize(processed string, maxLen int) string {
	if len(processed) <= maxLen {
		return processed
	}
	cut := processed[:maxLen]
	if idx := strings.LastIndexAny(cut, ".!?"); idx > maxLen/2 {
		return cut[:idx+1]
	}
	return cut
}

var wsCollapse = regexp.MustCompile(`\s+`)

// processContent normalizes raw provider text for storage and matching.
func processContent(raw string) string {
	return strings.TrimSpace(wsCollapse.ReplaceAllString(raw, " "))
}

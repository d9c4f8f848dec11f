package planner

import (
	"regexp"
	"strconv"
	"strings"
)

// RetryPolicy controls backoff for transient planner failures.
type RetryPolicy struct {
	MaxRetries     int
	BaseDelaySec   int
	MaxDelaySec    int
	BackoffFactor  float64
	RetryOn429     bool
	RetryOn500     bool
	RetryOnTimeout bool
}

// DefaultRetryPolicy returns the default backoff settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseDelaySec:   15,
		MaxDelaySec:    120,
		BackoffFactor:  2,
		RetryOn429:     true,
		RetryOn500:     true,
		RetryOnTimeout: true,
	}
}

// DelaySec returns the backoff delay in seconds for the given attempt,
// starting at attempt 0.
func (p RetryPolicy) DelaySec(attempt int) int {
	delay := float64(p.BaseDelaySec)
	for i := 0; i < attempt; i++ {
		delay *= p.BackoffFactor
	}
	if int(delay) > p.MaxDelaySec {
		return p.MaxDelaySec
	}
	return int(delay)
}

var rateLimitIndicators = []string{
	"429",
	"rate limit",
	"you exceeded your current quota",
	"quota_metric",
	"retry_delay",
}

var serverErrorIndicators = []string{
	"500",
	"internal error",
	"internal server error",
	"provider api error",
}

// IsRateLimitError reports whether the error looks like a quota or
// rate-limit rejection.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range rateLimitIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

// IsServerError reports whether the error looks like a transient
// provider-side failure.
func IsServerError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, ind := range serverErrorIndicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}

// IsTimeoutError reports whether the error looks like a request timeout.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

var retryDelayRe = regexp.MustCompile(`retry_delay\s*\{\s*seconds:\s*(\d+)`)

// ExtractRetryDelay pulls the provider-suggested wait out of a quota
// error message. Returns the default of 15 seconds when absent.
func ExtractRetryDelay(err error) int {
	if err == nil {
		return 15
	}
	m := retryDelayRe.FindStringSubmatch(err.Error())
	if len(m) == 2 {
		if sec, convErr := strconv.Atoi(m[1]); convErr == nil {
			return sec
		}
	}
	return 15
}

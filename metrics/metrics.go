package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roilion"

// Submissions counts every contact form decision by outcome and rejection reason
var Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "submissions_total",
	Help:      "contact form submissions by pipeline decision",
}, []string{"decision", "reason"})

// Dispatched counts accepted submissions handed to the mail provider
var Dispatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "dispatched_total",
	Help:      "accepted submissions handed to the mail provider",
}, []string{"provider", "result"})

// RateLimited counts calls rejected by a rate limiter, by limiter namespace
var RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "ratelimit_rejections_total",
}, []string{"limiter"})

// RateLimitStoreErrors counts calls allowed through because the bucket store failed
var RateLimitStoreErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "ratelimit_store_errors_total",
	Help:      "rate limit checks that failed open",
})

// CaptchaVerifications counts calls to the verification service by outcome
var CaptchaVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "captcha_verifications_total",
}, []string{"outcome"})

// CaptchaCacheHits counts tokens answered from the verification cache
var CaptchaCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "captcha_cache_hits_total",
})

// SpamRulesReloads counts hot reloads of the spam rules file
var SpamRulesReloads = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "spam_rules_reloads_total",
}, []string{"result"})

// ExpiredBuckets counts buckets removed by periodic sweeps of persistent stores
var ExpiredBuckets = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "ratelimit_buckets_expired_total",
})

package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/auroilion/roilion/captcha"
	"github.com/auroilion/roilion/contact"
	"github.com/auroilion/roilion/dispatch"
	"github.com/auroilion/roilion/dispatch/mailgunmail"
	"github.com/auroilion/roilion/dispatch/sendgridmail"
	"github.com/auroilion/roilion/dispatch/smtpmail"
	"github.com/auroilion/roilion/pipeline"
	"github.com/auroilion/roilion/ratelimit"
	"github.com/auroilion/roilion/spam"
	"github.com/auroilion/roilion/store/dynamodb"
	"github.com/auroilion/roilion/store/inmemory"
	"github.com/auroilion/roilion/store/postgresql"
	"github.com/auroilion/roilion/store/redisstore"
	"github.com/auroilion/roilion/store/sqlite3"
)

const inMemory = "memory"
const redisDB = "redis"
const postgreSQL = "postgres"
const sqLite3 = "sqlite3"
const dynamoDB = "dynamo"

const logMail = "log"
const mailgunMail = "mailgun"
const smtpMail = "smtp"
const sendgridMail = "sendgrid"

// app is everything main needs to serve and maintain the contact api
type app struct {
	server     contact.Config
	listenAddr string
	window     time.Duration

	// sweep deletes expired buckets once. It is nil for stores that expire keys themselves.
	sweep func(ctx context.Context) (int, error)

	// watcher is set when spam rules come from a file
	watcher *spam.Watcher
}

func mustParseApp(ctx context.Context) app {
	developing := parseBoolVarWithDefault("DEVELOPING", false)
	window := parseMillisVarWithDefault("RATE_LIMIT_WINDOW_MS", ratelimit.DefaultWindow)

	store, sweep := mustGetStore(ctx)
	limiter := ratelimit.New(store, window)

	verifier, err := captcha.New(captcha.Config{
		Secret:         parseStringVar("RECAPTCHA_SECRET_KEY"),
		VerifyURL:      parseStringVarWithDefault("CAPTCHA_VERIFY_URL", captcha.DefaultVerifyURL),
		Timeout:        parseMillisVarWithDefault("CAPTCHA_TIMEOUT_MS", captcha.DefaultTimeout),
		MinScore:       parseFloatVarWithDefault("CAPTCHA_MIN_SCORE", captcha.DefaultMinScore),
		ExpectedAction: parseStringVar("CAPTCHA_ACTION"),
		Developing:     developing,
	})
	if err != nil {
		log.Fatalf("Failed to setup captcha verifier: %v", err)
	}

	classifier, watcher := mustGetClassifier()

	return app{
		server: contact.Config{
			Key:            mustParseStringVar("KEY"),
			Developing:     developing,
			UsingLambda:    parseBoolVarWithDefault("LAMBDA", false),
			RestoreRealIP:  parseBoolVarWithDefault("RESTORE_REAL_IP", false),
			AllowedOrigins: parseSliceVar("ALLOWED_ORIGINS"),
			TokenLimit:     parseIntVarWithDefault("TOKEN_RATE_LIMIT", contact.DefaultTokenLimit),
			Pipeline: pipeline.New(pipeline.Config{
				Limiter: limiter.WithPrefix("contact"),
				Limit:   parseIntVarWithDefault("RATE_LIMIT_MAX_REQUESTS", pipeline.DefaultLimit),
				Captcha: verifier,
				Spam:    classifier,
			}),
			Dispatcher:     mustGetDispatcher(developing),
			TokenLimiter:   limiter.WithPrefix("token"),
			CaptchaLimiter: limiter.WithPrefix("captcha"),
			Captcha:        verifier,
		},
		listenAddr: parseStringVarWithDefault("LISTEN_ADDR", ":8080"),
		window:     limiter.Window(),
		sweep:      sweep,
		watcher:    watcher,
	}
}

func mustGetStore(ctx context.Context) (ratelimit.Store, func(context.Context) (int, error)) {
	storeType := parseStringVarWithDefault("STORE_TYPE", inMemory)

	switch storeType {
	case inMemory:
		s, err := inmemory.GetInMemoryStore(parseIntVarWithDefault("MEMORY_STORE_SIZE", inmemory.DefaultSize))
		if err != nil {
			log.Fatalf("Failed to setup in memory store: %v", err)
		}
		return s, func(context.Context) (int, error) {
			return s.DeleteExpired(time.Now()), nil
		}
	case redisDB:
		s, err := redisstore.GetRedisStore(ctx, mustParseStringVar("REDIS_URL"))
		if err != nil {
			log.Fatalf("Failed to setup redis store: %v", err)
		}
		return s, nil
	case postgreSQL:
		s := postgresql.GetPostgreSQLDB(mustParseStringVar("DATABASE_URL"))
		return s, func(ctx context.Context) (int, error) {
			return s.RunTTLDelete(ctx, time.Now())
		}
	case sqLite3:
		s := sqlite3.GetSQLite3DB(parseStringVarWithDefault("DATABASE_URL", "roilion.db"))
		return s, func(ctx context.Context) (int, error) {
			return s.RunTTLDelete(ctx, time.Now())
		}
	case dynamoDB:
		return dynamodb.GetNewDynamoDB(mustParseStringVar("DYNAMO_TABLE")), nil
	default:
		log.Fatalf("Unknown STORE_TYPE %q", storeType)
		return nil, nil
	}
}

// mustGetClassifier uses the bundled rules unless SPAM_RULES_FILE names a file, which is then
// watched for changes. SPAM_SCORE_THRESHOLD only overrides the bundled threshold.
func mustGetClassifier() (*spam.Classifier, *spam.Watcher) {
	path := parseStringVar("SPAM_RULES_FILE")

	if path == "" {
		rules := spam.MustDefaultRules()
		rules.Threshold = parseIntVarWithDefault("SPAM_SCORE_THRESHOLD", rules.Threshold)

		c, err := spam.New(rules)
		if err != nil {
			log.Fatalf("Failed to setup spam classifier: %v", err)
		}
		return c, nil
	}

	rules, err := spam.LoadRulesFile(path)
	if err != nil {
		log.Fatalf("Failed to load spam rules: %v", err)
	}

	c, err := spam.New(rules)
	if err != nil {
		log.Fatalf("Failed to setup spam classifier: %v", err)
	}

	w, err := spam.NewWatcher(c, path)
	if err != nil {
		log.Fatalf("Failed to watch spam rules: %v", err)
	}

	return c, w
}

func mustGetDispatcher(developing bool) dispatch.Dispatcher {
	def := smtpMail
	if developing {
		def = logMail
	}
	provider := parseStringVarWithDefault("MAIL_PROVIDER", def)

	to := parseStringVar("TO_EMAIL")
	if to == "" && provider == logMail {
		to = "contact@localhost"
	}

	r, err := dispatch.NewRenderer(dispatch.Addresses{
		FromName: parseStringVarWithDefault("FROM_NAME", dispatch.DefaultFromName),
		From:     parseStringVar("FROM_EMAIL"),
		To:       to,
	})
	if err != nil {
		log.Fatalf("Failed to setup email renderer: %v", err)
	}

	var d dispatch.Dispatcher

	switch provider {
	case logMail:
		d = dispatch.NewLogDispatcher(r)
	case mailgunMail:
		d, err = mailgunmail.NewMailgunDispatcher(mustParseStringVar("MG_DOMAIN"), mustParseStringVar("MG_KEY"), r)
	case smtpMail:
		d, err = smtpmail.NewSMTPDispatcher(smtpmail.Config{
			Host:     parseStringVarWithDefault("SMTP_HOST", smtpmail.DefaultHost),
			Port:     parseIntVarWithDefault("SMTP_PORT", smtpmail.DefaultPort),
			Username: parseStringVar("SMTP_USER"),
			Password: parseStringVar("SMTP_PASS"),
		}, r)
	case sendgridMail:
		d, err = sendgridmail.NewSendgridDispatcher(mustParseStringVar("SENDGRID_API_KEY"), r)
	default:
		log.Fatalf("Unknown MAIL_PROVIDER %q", provider)
	}

	if err != nil {
		log.Fatalf("Failed to setup %v dispatcher: %v", provider, err)
	}

	return dispatch.Instrument(provider, d)
}

func parseStringVar(key string) string {
	return os.Getenv(key)
}

func parseBoolVar(key string) (bool, error) {
	val := parseStringVar(key)
	return strconv.ParseBool(val)
}

func mustParseStringVar(key string) (v string) {
	v = parseStringVar(key)
	if strings.Compare(v, "") == 0 {
		log.Fatalf("Env var %v cannot be empty", key)
	}

	return
}

func parseSliceVar(key string) (v []string) {
	val := parseStringVar(key)
	if val == "" {
		return nil
	}

	for _, s := range strings.Split(val, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			v = append(v, s)
		}
	}

	return
}

func parseBoolVarWithDefault(key string, def bool) bool {
	v, err := parseBoolVar(key)
	if err != nil {
		return def
	}
	return v
}

func parseStringVarWithDefault(key, def string) string {
	v := parseStringVar(key)
	if v == "" {
		return def
	}
	return v
}

func parseIntVarWithDefault(key string, def int) int {
	v := parseStringVar(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Env var %v must be an integer: %v", key, err)
	}
	return i
}

func parseFloatVarWithDefault(key string, def float64) float64 {
	v := parseStringVar(key)
	if v == "" {
		return def
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("Env var %v must be a number: %v", key, err)
	}
	return f
}

// parseMillisVarWithDefault reads a duration given in milliseconds. Non positive values fall
// back to def.
func parseMillisVarWithDefault(key string, def time.Duration) time.Duration {
	ms := parseIntVarWithDefault(key, 0)
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}

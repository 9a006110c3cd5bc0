package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "xsnap-dev",
		"API_AUTH_JWT_SECRET":      "local-secret",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "xsnap-dev" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Auth.Issuer != "xsnapster" {
		t.Errorf("unexpected default issuer: %s", cfg.Auth.Issuer)
	}
	if cfg.Razorpay.Currency != "INR" {
		t.Errorf("unexpected default currency: %s", cfg.Razorpay.Currency)
	}
	if cfg.Razorpay.CallTimeout != 10*time.Second {
		t.Errorf("unexpected default call timeout: %s", cfg.Razorpay.CallTimeout)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("expected redis disabled by default, got %s", cfg.Redis.Addr)
	}
	if cfg.Redis.MultiplierTTL != 5*time.Minute {
		t.Errorf("unexpected multiplier ttl: %s", cfg.Redis.MultiplierTTL)
	}
	if cfg.Events.ProjectID != "xsnap-dev" {
		t.Errorf("expected events project to default to firestore project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Events.OrderTopic != "order-events" {
		t.Errorf("unexpected order topic: %s", cfg.Events.OrderTopic)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Errorf("unexpected idempotency header: %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":             "9090",
		"API_SERVER_READ_TIMEOUT":     "5s",
		"API_FIRESTORE_PROJECT_ID":    "xsnap-prod",
		"API_FIRESTORE_EMULATOR_HOST": "localhost:8900",
		"API_AUTH_JWT_SECRET":         "prod-secret",
		"API_AUTH_ISSUER":             "xsnapster-prod",
		"API_RAZORPAY_KEY_ID":         "rzp_test_key",
		"API_RAZORPAY_KEY_SECRET":     "rzp_secret",
		"API_RAZORPAY_CURRENCY":       "usd",
		"API_REDIS_ADDR":              "localhost:6379",
		"API_REDIS_DB":                "3",
		"API_REDIS_MULTIPLIER_TTL":    "30s",
		"API_EVENTS_PROJECT_ID":       "xsnap-events",
		"API_EVENTS_ORDER_TOPIC":      "orders-v2",
		"API_IDEMPOTENCY_TTL":         "1h",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.EmulatorHost != "localhost:8900" {
		t.Errorf("unexpected emulator host: %s", cfg.Firestore.EmulatorHost)
	}
	if cfg.Auth.Issuer != "xsnapster-prod" {
		t.Errorf("unexpected issuer: %s", cfg.Auth.Issuer)
	}
	if cfg.Razorpay.KeyID != "rzp_test_key" {
		t.Errorf("unexpected razorpay key id: %s", cfg.Razorpay.KeyID)
	}
	if cfg.Razorpay.Currency != "usd" {
		t.Errorf("expected raw currency passthrough, got %s", cfg.Razorpay.Currency)
	}
	if cfg.Redis.DB != 3 {
		t.Errorf("unexpected redis db: %d", cfg.Redis.DB)
	}
	if cfg.Redis.MultiplierTTL != 30*time.Second {
		t.Errorf("unexpected multiplier ttl: %s", cfg.Redis.MultiplierTTL)
	}
	if cfg.Events.ProjectID != "xsnap-events" {
		t.Errorf("unexpected events project: %s", cfg.Events.ProjectID)
	}
	if cfg.Events.OrderTopic != "orders-v2" {
		t.Errorf("unexpected order topic: %s", cfg.Events.OrderTopic)
	}
	if cfg.Idempotency.TTL != time.Hour {
		t.Errorf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID":    "xsnap-dev",
		"API_AUTH_JWT_SECRET":         "secret://auth/jwt",
		"API_RAZORPAY_KEY_SECRET":     "sm://razorpay/key",
		"API_RAZORPAY_WEBHOOK_SECRET": "secret://razorpay/webhook",
	}

	resolved := map[string]string{
		"secret://auth/jwt":         "jwt-value",
		"secret://razorpay/key":     "key-value",
		"secret://razorpay/webhook": "webhook-value",
	}
	var requested []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		requested = append(requested, ref)
		value, ok := resolved[ref]
		if !ok {
			return "", errors.New("unknown secret")
		}
		return value, nil
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Auth.JWTSecret != "jwt-value" {
		t.Errorf("expected resolved jwt secret, got %s", cfg.Auth.JWTSecret)
	}
	if cfg.Razorpay.KeySecret != "key-value" {
		t.Errorf("expected resolved key secret, got %s", cfg.Razorpay.KeySecret)
	}
	if cfg.Razorpay.WebhookSecret != "webhook-value" {
		t.Errorf("expected resolved webhook secret, got %s", cfg.Razorpay.WebhookSecret)
	}

	// sm:// references normalise to secret:// before hitting the resolver.
	for _, ref := range requested {
		if ref == "sm://razorpay/key" {
			t.Errorf("expected normalised reference, resolver saw %s", ref)
		}
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "xsnap-dev",
		"API_AUTH_JWT_SECRET":      "secret://auth/jwt",
	}

	resolver := SecretResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("backend down")
	})

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://auth/jwt" {
		t.Errorf("unexpected secret ref: %s", secretErr.Ref)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIRESTORE_PROJECT_ID": "xsnap-dev",
		"API_AUTH_JWT_SECRET":      "jwt-value",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Auth.JWTSecret", "Razorpay.KeySecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	names := missing.Names()
	if len(names) != 1 || names[0] != "Razorpay.KeySecret" {
		t.Errorf("unexpected missing secrets: %v", names)
	}
	for _, redacted := range missing.RedactedNames() {
		if redacted == "Razorpay.KeySecret" {
			t.Errorf("redacted names must not expose the identifier")
		}
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	fields := validation.Fields()
	want := map[string]bool{"Firestore.ProjectID": false, "Auth.JWTSecret": false}
	for _, field := range fields {
		if _, ok := want[field]; ok {
			want[field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected %s to be reported missing, got %v", field, fields)
		}
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "# local overrides\n" +
		"API_FIRESTORE_PROJECT_ID=dotenv-project\n" +
		"export API_AUTH_JWT_SECRET=\"dotenv-secret\"\n" +
		"API_SERVER_PORT=7070\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(), WithoutSystemEnv(), WithEnvFile(envFile))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "dotenv-project" {
		t.Errorf("unexpected project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Auth.JWTSecret != "dotenv-secret" {
		t.Errorf("unexpected jwt secret: %s", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("unexpected port: %s", cfg.Server.Port)
	}
}

func TestEnvironmentValuesPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("SHARED=dotenv\nONLY_DOTENV=file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	values, err := EnvironmentValues(
		WithEnvFile(envFile),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"SHARED": "explicit"}),
	)
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if values["SHARED"] != "explicit" {
		t.Errorf("expected explicit map to win, got %s", values["SHARED"])
	}
	if values["ONLY_DOTENV"] != "file" {
		t.Errorf("expected dotenv value, got %s", values["ONLY_DOTENV"])
	}
}

package config

import (
	"reflect"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"postgres", Config{StoreDriver: StoreDriverPostgres, DatabaseURL: "postgres://x"}, false},
		{"postgres without url", Config{StoreDriver: StoreDriverPostgres}, true},
		{"neo4j", Config{StoreDriver: StoreDriverNeo4j, Neo4jURI: "neo4j://x"}, false},
		{"memory", Config{StoreDriver: StoreDriverMemory}, false},
		{"unknown driver", Config{StoreDriver: "mongo"}, true},
		{"default secret in production", Config{StoreDriver: StoreDriverMemory, Env: "production", JWTSecret: "super-secret-key-change-me"}, true},
		{"custom secret in production", Config{StoreDriver: StoreDriverMemory, Env: "production", JWTSecret: "s3cr3t"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	if got := parseStringSlice(" http://a.test, ,http://b.test "); !reflect.DeepEqual(got, []string{"http://a.test", "http://b.test"}) {
		t.Fatalf("unexpected origins %v", got)
	}
	if got := parseDuration("nonsense", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := parseDuration("45s", time.Minute); got != 45*time.Second {
		t.Fatalf("expected 45s, got %v", got)
	}
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Neo4j")
	t.Setenv("STATE_CACHE_TTL", "5s")
	t.Setenv("ALLOWED_ORIGINS", "https://snacc.app")

	cfg := Load()
	if cfg.StoreDriver != StoreDriverNeo4j {
		t.Fatalf("expected lowercased driver, got %q", cfg.StoreDriver)
	}
	if cfg.StateCacheTTL != 5*time.Second {
		t.Fatalf("unexpected ttl %v", cfg.StateCacheTTL)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://snacc.app"}) {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

package main

import (
	"context"
	"testing"

	"possync/backend/internal/config"
	"possync/backend/internal/logging"
	"possync/backend/internal/store/memory"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cases := []config.Config{
		{AuthSecret: "short", AllowedOrigin: "http://pos.test"},
		{AuthSecret: strongSecret, AllowedOrigin: "*"},
		{AuthSecret: strongSecret, AllowedOrigin: "http://pos.test", AccessTokenTTLMinutes: 8 * 24 * 60},
	}
	for _, cfg := range cases {
		if err := validateSecurityConfig(cfg); err == nil {
			t.Fatalf("expected config %+v to be rejected", cfg)
		}
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, AllowedOrigin: "http://pos.test", AccessTokenTTLMinutes: 480})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestOpenRepositoryDefaultsToSeededMemory(t *testing.T) {
	repo, closeFn, err := openRepository(context.Background(), config.Config{}, logging.Discard())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("memory repository needs no closer")
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", repo)
	}
	if healthChecker(repo) == nil {
		t.Fatalf("memory store should report health")
	}
}

func TestOpenRepositoryFailsOnMissingSeedFile(t *testing.T) {
	_, _, err := openRepository(context.Background(), config.Config{SeedFile: "/nonexistent/seed.yaml"}, logging.Discard())
	if err == nil {
		t.Fatalf("expected missing seed file to fail")
	}
}

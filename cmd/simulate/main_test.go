package main

import (
	"testing"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/config"
)

func TestLoadConfigWithRegionalTimezone(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/clinic")
	t.Setenv("APP_TIMEZONE", "Asia/Riyadh")

	base, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := validateConfig(loadConfig(base)); err != nil {
		t.Fatalf("validateConfig: %v", err)
	}
}

func TestValidateConfig(t *testing.T) {
	ok := SimConfig{PostgresDSN: "postgres://localhost/clinic", Workers: 4, Duration: time.Second, Requesters: 10}
	if err := validateConfig(ok); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	noWorkers := ok
	noWorkers.Workers = 0
	if err := validateConfig(noWorkers); err == nil {
		t.Error("zero workers accepted")
	}

	noDSN := ok
	noDSN.PostgresDSN = ""
	if err := validateConfig(noDSN); err == nil {
		t.Error("missing DSN accepted")
	}
}

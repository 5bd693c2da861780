package config

import (
	"os"
	"testing"
	"time"
)

func setRequired() {
	os.Setenv("SECRET_KEY", "test-secret-32-characters-long!!")
	os.Setenv("DB_PASSWORD", "test")
}

func TestAuthConfig_Defaults(t *testing.T) {
	setRequired()
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	durations := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"ExpiresSession", cfg.Auth.ExpiresSession, 2 * time.Hour},
		{"SessionGrace", cfg.Auth.SessionGrace, 1 * time.Minute},
		{"LockoutTime", cfg.Auth.LockoutTime, 15 * time.Minute},
		{"AttemptsWindow", cfg.Auth.AttemptsWindow, 15 * time.Minute},
		{"ResetKeyTTL", cfg.Auth.ResetKeyTTL, 1 * time.Hour},
	}

	for _, tt := range durations {
		if tt.actual != tt.expected {
			t.Errorf("%s: got %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.Auth.MaxAttempts != 5 {
		t.Errorf("MaxAttempts: got %d, want 5", cfg.Auth.MaxAttempts)
	}
	if cfg.Auth.SystemLockdownMultiplier != 10 {
		t.Errorf("SystemLockdownMultiplier: got %d, want 10", cfg.Auth.SystemLockdownMultiplier)
	}
	if cfg.Session.CookieName != "sg_session" {
		t.Errorf("CookieName: got %q, want sg_session", cfg.Session.CookieName)
	}
}

func TestAuthConfig_CustomValues(t *testing.T) {
	setRequired()
	os.Setenv("AUTH_MAX_ATTEMPTS", "3")
	os.Setenv("AUTH_ATTEMPTS_WINDOW", "10m")
	os.Setenv("AUTH_SYSTEM_LOCKDOWN_MULTIPLIER", "4")
	os.Setenv("AUTH_EXPIRES_SESSION", "30m")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Auth.MaxAttempts != 3 {
		t.Errorf("MaxAttempts: got %d, want 3", cfg.Auth.MaxAttempts)
	}
	if cfg.Auth.AttemptsWindow != 10*time.Minute {
		t.Errorf("AttemptsWindow: got %v, want 10m", cfg.Auth.AttemptsWindow)
	}
	if cfg.Auth.SystemLockdownMultiplier != 4 {
		t.Errorf("SystemLockdownMultiplier: got %d, want 4", cfg.Auth.SystemLockdownMultiplier)
	}
	if cfg.Auth.ExpiresSession != 30*time.Minute {
		t.Errorf("ExpiresSession: got %v, want 30m", cfg.Auth.ExpiresSession)
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setRequired()
	os.Setenv("SERVER_READ_TIMEOUT", "not-a-duration")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout with invalid value: got %v, want %v", cfg.Server.ReadTimeout, 15*time.Second)
	}
}

func TestLoad_MissingSecretKey(t *testing.T) {
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for missing SECRET_KEY")
	}
}

func TestLoad_WeakSecretRejectedInProduction(t *testing.T) {
	os.Setenv("SECRET_KEY", "only-twenty-chars!!!")
	os.Setenv("DB_PASSWORD", "test")
	os.Setenv("ENV", "production")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error for short production secret")
	}
}

func TestLoad_GraceMustBeShorterThanTTL(t *testing.T) {
	setRequired()
	os.Setenv("AUTH_EXPIRES_SESSION", "5m")
	os.Setenv("AUTH_SESSION_GRACE", "5m")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil, want error when grace >= session ttl")
	}
}

func TestLoad_MemoryDriverNeedsNoPassword(t *testing.T) {
	os.Setenv("SECRET_KEY", "test-secret-32-characters-long!!")
	os.Setenv("STORE_DRIVER", "memory")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Driver: got %q, want memory", cfg.Database.Driver)
	}
}

func TestLoad_TrustedProxiesList(t *testing.T) {
	setRequired()
	os.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16 ,")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}
	if len(cfg.Server.TrustedProxies) != 2 {
		t.Fatalf("TrustedProxies: got %v, want 2 entries", cfg.Server.TrustedProxies)
	}
	if cfg.Server.TrustedProxies[1] != "192.168.0.0/16" {
		t.Errorf("TrustedProxies[1]: got %q", cfg.Server.TrustedProxies[1])
	}
}

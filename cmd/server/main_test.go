package main

import (
	"testing"

	"smartseller/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", VendorPassword: "password"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigRejectsCommonPassword(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", VendorPassword: "Password"})
	if err == nil {
		t.Fatalf("expected common password to be rejected")
	}
}

func TestValidateSecurityConfigRejectsRepeatedCharacter(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", VendorPassword: "zzzzzzzzzz"})
	if err == nil {
		t.Fatalf("expected repeated-character password to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", VendorPassword: "saffron-rice-19"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigSkippedWhenAuthDisabled(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthDisabled: true})
	if err != nil {
		t.Fatalf("expected disabled auth to skip validation, got %v", err)
	}
}

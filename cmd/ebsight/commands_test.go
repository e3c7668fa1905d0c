package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ebsight/ebsight/internal/models"
	"github.com/google/uuid"
)

func writeConfig(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("security:\n  master_secret: cli-test-secret\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func runExternalID(t *testing.T, configPath string) string {
	t.Helper()

	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"external-id", "tenant-a", "123456789012", "--config", configPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return strings.TrimSpace(buf.String())
}

func TestExternalIDCommand(t *testing.T) {
	path := writeConfig(t)

	first := runExternalID(t, path)
	second := runExternalID(t, path)

	if len(first) != 32 {
		t.Fatalf("external id %q has length %d, want 32", first, len(first))
	}
	for _, c := range first {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("external id %q contains non-hex character %q", first, c)
		}
	}
	if first != second {
		t.Errorf("external id changed between runs: %q vs %q", first, second)
	}
}

func TestExternalIDCommandRejectsMalformedAccount(t *testing.T) {
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"external-id", "tenant-a", "12345"})
	if err := root.Execute(); err == nil {
		t.Fatal("Execute accepted a malformed aws account id")
	}
}

func TestPrintAccounts(t *testing.T) {
	accounts := []models.CloudAccount{
		{
			ID:           uuid.New(),
			TenantID:     "tenant-a",
			Alias:        "prod",
			AWSAccountID: "123456789012",
			Active:       true,
			Regions:      models.StringArray{"us-east-1", "eu-west-1"},
			ExternalID:   "0123456789abcdef0123456789abcdef",
		},
		{
			ID:           uuid.New(),
			TenantID:     "tenant-a",
			Alias:        "staging",
			AWSAccountID: "210987654321",
			Active:       false,
			Regions:      models.StringArray{"us-west-2"},
			ExternalID:   "fedcba9876543210fedcba9876543210",
		},
	}

	var buf bytes.Buffer
	printAccounts(&buf, accounts)
	out := buf.String()

	for _, want := range []string{"prod", "staging", "123456789012", "us-east-1,eu-west-1", "false"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintAccountsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printAccounts(&buf, nil)
	if !strings.Contains(buf.String(), "No accounts.") {
		t.Errorf("empty listing output %q", buf.String())
	}
}

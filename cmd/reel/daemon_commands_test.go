package main

import (
	"testing"

	"reel/internal/testsupport"
)

func TestStatusCommandAgainstIdleDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.NewRecording(t, env.store, "alpha", "uuid-1", "Weekly Sync")

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Daemon")
	requireContains(t, out, "Queue")
	requireContains(t, out, "initialized")
}

func TestProcessCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"process"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "Queue pass requested")
}

func TestSyncCommandWithoutSyncer(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"sync"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error when syncer is unavailable")
	}
}

func TestAccountsCommandListsConfiguredAccounts(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"accounts"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	requireContains(t, out, "acct-test")
	requireContains(t, out, "yes")
}

package cmd

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
	viper.SetEnvPrefix("POSTPILOT")
	viper.AutomaticEnv()
}

func TestRootCommand_EnvVarBinding(t *testing.T) {
	resetViper()

	t.Setenv("POSTPILOT_SECRET", "env-secret-value")
	t.Setenv("POSTPILOT_URL", "http://custom-url:8080")

	secret := viper.GetString("secret")
	url := viper.GetString("url")

	if secret != "env-secret-value" {
		t.Errorf("expected secret from env var, got: %s", secret)
	}
	if url != "http://custom-url:8080" {
		t.Errorf("expected url from env var, got: %s", url)
	}
}

func TestRootCommand_ExecuteReturnsNoError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()
	if err != nil {
		t.Errorf("root command should execute without error: %v", err)
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	wanted := map[string]bool{
		"schedule":             false,
		"unschedule [post_id]": false,
		"sweep":                false,
		"stats":                false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := wanted[cmd.Use]; ok {
			wanted[cmd.Use] = true
		}
	}
	for use, found := range wanted {
		if !found {
			t.Errorf("expected %q subcommand to be registered with root command", use)
		}
	}
}

func TestExecute_ReturnsError(t *testing.T) {
	resetViper()

	rootCmd.SetArgs([]string{"unknown-command-xyz"})

	err := Execute()
	if err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRootCommand_CustomConfigFile(t *testing.T) {
	resetViper()

	tmpFile, err := os.CreateTemp("", "postctl-test-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	tmpFile.WriteString("url: http://custom-from-config:9999\nsecret: config-secret\n")
	tmpFile.Close()

	cfgFile = tmpFile.Name()
	initConfig()

	url := viper.GetString("url")
	if url != "http://custom-from-config:9999" {
		t.Errorf("expected url from config file, got: %s", url)
	}

	secret := viper.GetString("secret")
	if secret != "config-secret" {
		t.Errorf("expected secret from config file, got: %s", secret)
	}

	// Reset for other tests
	cfgFile = ""
}

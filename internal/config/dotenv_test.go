package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnvUp_FindsParentFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".env"), []byte("MOZ_DOTENV_PROBE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)
	t.Setenv("MOZ_DOTENV_PROBE", "")
	os.Unsetenv("MOZ_DOTENV_PROBE")

	got := LoadDotEnvUp(4)
	if got != filepath.Join(root, ".env") {
		t.Fatalf("loaded %q", got)
	}
	if v := os.Getenv("MOZ_DOTENV_PROBE"); v != "from-file" {
		t.Errorf("MOZ_DOTENV_PROBE = %q", v)
	}
}

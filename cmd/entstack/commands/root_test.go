package commands

import "testing"

func TestRootCommandPersistentFlags(t *testing.T) {
	cmd := newRootCommand("test", "none", "today")

	for flag, def := range map[string]string{
		"model":     "model.yaml",
		"db":        "entstack.db",
		"log-level": "info",
	} {
		f := cmd.PersistentFlags().Lookup(flag)
		if f == nil {
			t.Errorf("missing persistent flag --%s", flag)
			continue
		}
		if f.DefValue != def {
			t.Errorf("--%s default = %q, want %q", flag, f.DefValue, def)
		}
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := newRootCommand("test", "none", "today")

	want := map[string]bool{"init": false, "count": false, "fetch": false, "delete": false, "wipe": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

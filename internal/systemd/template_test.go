package systemd

import (
	"strings"
	"testing"
)

func TestServeUnit(t *testing.T) {
	unit := ServeUnit("/etc/toolgate/config.yaml", []string{"/srv/sandbox", "/var/tmp/work"})

	for _, section := range []string{"[Unit]", "[Service]", "[Install]"} {
		if !strings.Contains(unit, section) {
			t.Errorf("unit missing section %s", section)
		}
	}

	if !strings.Contains(unit, "toolgate serve --config /etc/toolgate/config.yaml") {
		t.Error("unit missing serve command with config path")
	}

	for _, directive := range []string{
		"NoNewPrivileges=true",
		"PrivateTmp=true",
		"ProtectSystem=strict",
		"ProtectHome=true",
	} {
		if !strings.Contains(unit, directive) {
			t.Errorf("unit missing security directive %s", directive)
		}
	}

	// Each sandbox root must be writable through the strict protection.
	for _, root := range []string{"/srv/sandbox", "/var/tmp/work"} {
		if !strings.Contains(unit, "ReadWritePaths="+root) {
			t.Errorf("unit missing ReadWritePaths for %s", root)
		}
	}
}

func TestGuardedTemplate(t *testing.T) {
	tmpl := GuardedTemplate()

	for _, section := range []string{"[Unit]", "[Service]", "[Install]"} {
		if !strings.Contains(tmpl, section) {
			t.Errorf("template missing section %s", section)
		}
	}

	// Must use %i instance specifier for the program name.
	if !strings.Contains(tmpl, "%i") {
		t.Error("template missing %i instance specifier")
	}

	// Must route execution through the gateway validator.
	if !strings.Contains(tmpl, "toolgate exec -- /usr/local/bin/%i") {
		t.Error("template missing toolgate exec command")
	}

	for _, directive := range []string{"NoNewPrivileges=true", "PrivateTmp=true", "ProtectSystem=strict"} {
		if !strings.Contains(tmpl, directive) {
			t.Errorf("template missing security directive %s", directive)
		}
	}
}

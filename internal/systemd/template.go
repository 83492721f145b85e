package systemd

// ServeUnit returns the systemd unit for the long-running gateway. The unit
// is hardened: the process cannot gain privileges and sees a read-only system
// outside its state directory and sandbox roots.
func ServeUnit(configPath string, roots []string) string {
	unit := `[Unit]
Description=Toolgate sandboxed tool gateway
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=/usr/local/bin/toolgate serve --config ` + configPath + `
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=true
StateDirectory=toolgate
`
	for _, r := range roots {
		unit += "ReadWritePaths=" + r + "\n"
	}
	unit += `
[Install]
WantedBy=multi-user.target
`
	return unit
}

// GuardedTemplate returns the unit template for toolgate-guarded@.service.
// The %i instance specifier is resolved by systemd to the program name; the
// program runs through the gateway's command validator, never a shell.
func GuardedTemplate() string {
	return `[Unit]
Description=Guarded service (%i) via Toolgate
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
ExecStart=/usr/local/bin/toolgate exec -- /usr/local/bin/%i
Restart=on-failure
RestartSec=2
NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=strict
ProtectHome=true

[Install]
WantedBy=multi-user.target
`
}

package blocklist

// DefaultPatterns returns the builtin deny patterns. These ship compiled into
// the binary and always apply; configuration may append but never remove.
func DefaultPatterns() Patterns {
	return Patterns{
		Paths: []string{
			// Credential material.
			"*/.ssh",
			"*/.gnupg",
			"*/.aws/credentials",
			"*/.kube/config",
			"*/.netrc",
			"*/.env",
			"/etc/shadow",
			"/etc/gshadow",
			"/etc/sudoers",
			"/etc/sudoers.d/*",
			// Kernel and process introspection.
			"/proc/*",
			"/sys/*",
			"/boot/*",
		},
		Commands: []string{
			// Obviously destructive.
			"rm -rf /",
			"rm -fr /",
			"rm -rf /*",
			"mkfs",
			"dd if=/dev/zero",
			"dd of=/dev/",
			":(){",
			// Download-and-execute.
			"| sh",
			"| bash",
			"| zsh",
			"|sh",
			"|bash",
			// Privilege and account changes.
			"chmod 777 /",
			"chown -R root",
		},
		URLs: []string{
			// Cloud metadata endpoints.
			"169.254.169.254",
			"metadata.google.internal",
			"metadata.azure.com",
			// Non-network schemes smuggled into fetchers.
			"file://",
			"gopher://",
		},
	}
}

/*
Package reconciler converges the locally materialized configuration with the
user-declared one.

Two artifacts are managed:

  - the setup script, written to /opt/user-install-script with mode 0755
  - environment assignments, merged into /etc/environment

# Flow

	┌───────────────┐     Desired()      ┌────────────────────┐
	│ Source (YAML) │ ─────────────────► │ DesiredConfig      │
	│ setup-script  │                    │  SetupScript       │
	│ environment-  │                    │  Environment map   │
	│   variables   │                    └─────────┬──────────┘
	└───────────────┘                              │ Drift()
	                                               ▼
	┌───────────────┐     Applied()      ┌────────────────────┐
	│ local files   │ ─────────────────► │ AppliedConfig      │
	└───────▲───────┘                    └─────────┬──────────┘
	        │               Apply()                │
	        └──────────── writes only what drifted ┘

# Drift

The script is compared byte for byte. Environment drift is the set of
desired assignments the file does not already carry with the same value, so
reordering entries is never drift and foreign entries in the file are
ignored.

# Environment merge

/etc/environment is shared with the rest of the host. Writes therefore
merge: declared values win on collision, every other line is kept. The file
is rewritten as sorted KEY=VALUE lines. An empty declaration never touches
the file at all.

# Errors

	ErrConfigInvalid      malformed declaration, e.g. "FOO=1,BAR"
	ErrConfigWriteFailed  I/O failure writing either file

Only a script change requires a workload restart (Result.RestartRequired).
*/
package reconciler

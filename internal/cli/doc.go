// Parses flags and runs buildplan commands.
//
// Global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-s, --socket    Daemon Unix socket path.
//	    --config    Settings file path.
//
// Flags override build-time defaults set via linker flags, and the socket
// flag overrides the settings file. After parsing, the global logger is
// reconfigured to reflect the final level and verbosity before the command
// runs.
//
// Commands taking a PLAN argument read a YAML or TOML plan file, or the
// embedded reference plan when the argument is omitted.
package cli

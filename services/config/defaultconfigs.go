package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device ID (same value placed in ctx under CtxDeviceKey, cmd/railctl
// passes "pico" for the layout's controlling Pico).
// Val: raw JSON bytes for that device, one object per retained config topic
// services/heartbeat (and any future subscriber) listens on.
// -----------------------------------------------------------------------------

const cfgPico = `{
  "heartbeat": {
      "interval": 2
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico": []byte(cfgPico),
}

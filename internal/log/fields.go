package log

// Canonical field names for structured logging.
const (
	FieldComponent = "component"
	FieldEngineID  = "engine_id"
	FieldEvent     = "event"

	// Media
	FieldStream     = "stream"
	FieldCodec      = "codec"
	FieldProvider   = "provider"
	FieldResolution = "resolution"
	FieldFPS        = "fps"
	FieldPTS        = "pts"
	FieldFrame      = "frame"

	// Pacing
	FieldInterval = "interval"
	FieldLate     = "late"
	FieldSpeed    = "speed"

	// Process
	FieldPath   = "path"
	FieldBinary = "binary"
	FieldPID    = "pid"
	FieldStderr = "stderr"
)

package logger

// Init sets up the default logger before config is available.
// InitStructured replaces the output once APP_ENV is known.
func Init() {
	InitStructured("")
}

package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	app     *App
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithApp runs the server over already wired components. The caller keeps
// ownership and closes them.
func WithApp(app *App) Option {
	return func(a *application) {
		a.app = app
	}
}

// Package gotrue implements authflow.Provider on top of a hosted GoTrue
// identity service and its companion PostgREST data API.
//
// The client keeps the session tokens in memory, refreshes the access token
// in the background shortly before it expires, and pushes session-change
// notifications through the single event stream the auth controller consumes.
//
// Usage:
//
//	var cfg gotrue.Config
//	config.MustLoad(&cfg)
//
//	provider, err := gotrue.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Close()
//
//	ctrl, err := authflow.New(provider)
package gotrue

// Package whisper implements a small web application where users register,
// log in, and store a single secret string. Secrets of all users who have
// submitted one are publicly listable; credentials never are.
//
// Authentication is strategy based. Two strategies share one user model:
//
// Local: username/password, verified against a bcrypt digest stored on the
// user record.
//
// External: OAuth2 (Google), where identity proof is delegated to the
// provider and the local record is found-or-created from the provider's
// stable subject id.
//
// Either strategy, on success, hands the authenticated user to the
// application which establishes a server-side session (alexedwards/scs)
// and issues a signed auth-token cookie for API-style access.
//
// # Basic Usage
//
//	import (
//	    "github.com/whisperlabs/whisper"
//	    "github.com/whisperlabs/whisper/stores"
//	)
//
//	store := stores.NewFSUserStore("/path/to/storage")
//	app := whisper.New("Whisper", store)
//	http.ListenAndServe(":3000", app.Handler())
//
// For a SQL-backed store see the stores/gorm subpackage; for the wired
// binary see cmd/whisperd.
package whisper

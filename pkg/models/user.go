package models

// User is the principal on whose behalf an operation runs. Authentication happens outside the engine.
type User struct {
	Username string   `json:"username"`
	Group    string   `json:"group,omitempty"` // Group the user acts for
	Groups   []string `json:"groups,omitempty"`
}

// AnonymousUser is used when no principal accompanies a request.
var AnonymousUser = &User{Username: "anonymous"}

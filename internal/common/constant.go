package common

// AuthHeaderName is the HTTP header carrying the device access token on
// outbound requests.
const AuthHeaderName = "Authorization"

// AuthScheme prefixes the token value in AuthHeaderName.
const AuthScheme = "Bearer"

/*
Package security implements fdbus's token-based session security: a
TokenManager issuing and validating bearer tokens, each carrying a
security level that the SidebandAuthentication handler in pkg/object
stamps onto a Session once the peer proves it holds a matching token.

This is a deliberately narrower model than a certificate-authority and
secrets-encryption stack (mutual TLS, AES-256-GCM secret storage)
would provide — those address container-platform concerns this
project's security model excludes; see DESIGN.md.
*/
package security

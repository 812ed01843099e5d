package session

import "context"

// Credentials is a username/secret pair supplied programmatically or through
// the credential prompt collaborator.
type Credentials struct {
	Username string
	Password string
}

// CredentialPrompt is the credential prompt collaborator. How it is rendered
// is left to the consumer; a dismissed prompt is reported as
// errorx.ErrAuthenticationCanceled.
type CredentialPrompt interface {
	RequestCredentials(ctx context.Context, serverURL string) (*Credentials, error)
}

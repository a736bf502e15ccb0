package admin

import "context"

// API is the remote collaborator. Calls are not retried by this module.
type API interface {
	FetchUser(ctx context.Context, userID string) (User, error)
	FetchRoles(ctx context.Context) ([]Role, error)
	FetchPermissions(ctx context.Context) ([]Permission, error)

	UpdateProfile(ctx context.Context, userID string, p ProfileChange) (Response, error)
	SetStatus(ctx context.Context, userID string, s Status) (Response, error)
	AssignRoles(ctx context.Context, userID string, roleIDs []string) (Response, error)

	UpsertOverride(ctx context.Context, userID string, o Override) error
	DeleteOverride(ctx context.Context, userID, permissionID string) error

	// UploadAttachments may answer with NoBody.
	UploadAttachments(ctx context.Context, userID string, files []Upload) (Response, error)
	DeleteAttachment(ctx context.Context, userID, attachmentID string) error
	SetAvatar(ctx context.Context, userID string, file Upload) (Response, error)
	SetPin(ctx context.Context, userID string, c PinChange) (PinState, error)
}

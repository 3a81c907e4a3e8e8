package errors

var (
	// Domain errors of the chat store and the upload boundary
	ErrInvalidKind          = InvalidArg("invalid message kind")
	ErrEmptyText            = InvalidArg("message text is required")
	ErrMediaRequired        = InvalidArg("media url is required for media messages")
	ErrMediaOnText          = InvalidArg("text messages cannot carry media")
	ErrReplyNotFound        = InvalidArg("reply target not found")
	ErrInvalidCursor        = InvalidArg("invalid cursor")
	ErrSelfConversation     = InvalidArg("cannot create conversation with yourself")
	ErrConversationNotFound = NotFound("conversation not found")
	ErrMentorNotFound       = NotFound("mentor not found")
	ErrUserNotFound         = NotFound("user not found")
	ErrNotParticipant       = Forbidden("not a participant")
	ErrAdminOnly            = Forbidden("admin access required")
	ErrInvalidRole          = InvalidArg("invalid role")
	ErrFileRequired         = InvalidArg("file is required")
	ErrFileTooLarge         = InvalidArg("file too large")
	ErrFileTypeNotAllowed   = InvalidArg("file type not allowed")
	ErrInvalidMediaKind     = InvalidArg("invalid media kind")
	ErrCaptureActive        = FailedPrecondition("another capture is already active")
	ErrNoActiveCapture      = FailedPrecondition("no active capture")
	ErrNothingToUpload      = FailedPrecondition("no pending media to upload")
	ErrSendInFlight         = FailedPrecondition("a send is already in progress")
	ErrNoOpenConversation   = FailedPrecondition("no conversation is open")
	ErrMissingAuthToken     = Unauthorized("missing authorization token")
	ErrInvalidToken         = Unauthorized("invalid token")
	ErrInvalidRequest       = InvalidArg("invalid request")
	ErrInvalidUserID        = InvalidArg("invalid user id")
	ErrPushDisabled         = New(CodeUnavailable, "push notifications are not configured")
)

package middlewares

// gin context keys

const (
	CtxUserID    = "auth.userID"
	CtxEmail     = "auth.email"
	CtxRole      = "auth.role"
	CtxRequestID = "request_id"
)
